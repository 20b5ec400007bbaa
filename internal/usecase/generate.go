// Package usecase contains application business logic services.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fairyhunter13/ai-post-generator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-post-generator/internal/config"
	"github.com/fairyhunter13/ai-post-generator/internal/domain"
	"github.com/fairyhunter13/ai-post-generator/pkg/textx"
)

// upstreamRateLimitMarker is looked up in the last attempt's error text.
const upstreamRateLimitMarker = "429"

// KeySource hands out one credential per generation attempt.
type KeySource interface {
	Next() string
}

// PromptBuilder renders the text prompt for a set of post parameters.
type PromptBuilder interface {
	Build(platform, length, style string) (string, error)
}

// GenerateService turns post parameters plus an uploaded image into text by
// calling the content generator with retries and credential rotation.
type GenerateService struct {
	Keys      KeySource
	Generator domain.ContentGenerator
	Images    domain.ImageResolver
	Prompts   PromptBuilder
	Retry     config.RetryConfig

	sleep func(ctx context.Context, d time.Duration) error
}

// NewGenerateService constructs a GenerateService with its dependencies.
func NewGenerateService(keys KeySource, gen domain.ContentGenerator, images domain.ImageResolver, prompts PromptBuilder, retry config.RetryConfig) *GenerateService {
	return &GenerateService{
		Keys:      keys,
		Generator: gen,
		Images:    images,
		Prompts:   prompts,
		Retry:     retry,
		sleep:     sleepCtx,
	}
}

// Generate produces post text for p. A missing image fails before any key is
// taken; generation errors and empty text are retried with exponential delays.
func (s *GenerateService) Generate(ctx domain.Context, p domain.PostParams) (string, error) {
	lg := observability.LoggerFromContext(ctx)
	if strings.TrimSpace(p.ImagePath) == "" {
		observability.GenerationOutcome("no_image")
		return "", fmt.Errorf("%w: no image provided", domain.ErrGeneration)
	}
	img, err := s.Images.Load(ctx, p.ImagePath)
	if err != nil {
		observability.GenerationOutcome("image_missing")
		lg.Warn("generation image unavailable", slog.String("image_path", p.ImagePath), slog.Any("error", err))
		return "", fmt.Errorf("%w: image unavailable: %w", domain.ErrGeneration, err)
	}
	prompt, err := s.Prompts.Build(p.Platform, p.Length, p.Style)
	if err != nil {
		observability.GenerationOutcome("prompt_error")
		return "", fmt.Errorf("%w: %w", domain.ErrGeneration, err)
	}

	if s.Retry.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Retry.Timeout)
		defer cancel()
	}

	maxAttempts := s.Retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	bo := newBackOff(s.Retry)
	sleep := s.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		key := s.Keys.Next()
		text, err := s.attempt(ctx, attempt, key, prompt, img)
		if err == nil {
			observability.GenerationOutcome("success")
			lg.Info("generation succeeded", slog.Int("attempt", attempt), slog.Int("chars", len([]rune(text))))
			return text, nil
		}
		lastErr = err
		lg.Warn("generation attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxAttempts),
			slog.String("key", textx.MaskSecret(key)),
			slog.Any("error", err))
		if attempt == maxAttempts {
			break
		}
		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			break
		}
		if err := sleep(ctx, wait); err != nil {
			observability.GenerationOutcome("canceled")
			return "", fmt.Errorf("%w: %w", domain.ErrGeneration, err)
		}
	}

	if strings.Contains(lastErr.Error(), upstreamRateLimitMarker) {
		observability.GenerationOutcome("upstream_rate_limited")
		lg.Error("generation exhausted on upstream rate limit", slog.Any("error", lastErr))
		return "", fmt.Errorf("%w: %w", domain.ErrUpstreamRateLimit, lastErr)
	}
	observability.GenerationOutcome("failed")
	lg.Error("generation exhausted", slog.Int("attempts", maxAttempts), slog.Any("error", lastErr))
	return "", fmt.Errorf("%w: %w", domain.ErrGeneration, lastErr)
}

var errEmptyText = errors.New("empty response text")

func (s *GenerateService) attempt(ctx context.Context, n int, key, prompt string, img domain.Image) (string, error) {
	ctx, span := observability.Tracer().Start(ctx, "generation.attempt")
	defer span.End()
	span.SetAttributes(
		attribute.Int("generation.attempt", n),
		attribute.String("generation.key", textx.MaskSecret(key)),
		attribute.String("image.mime", img.MIME),
		attribute.String("request.id", observability.RequestIDFromContext(ctx)),
	)

	text, err := s.Generator.GenerateContent(ctx, key, prompt, img)
	if err == nil {
		text = strings.TrimSpace(text)
		if text == "" {
			observability.GenerationAttempt("empty")
			span.SetStatus(codes.Error, errEmptyText.Error())
			return "", errEmptyText
		}
	}
	if err != nil {
		observability.GenerationAttempt("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	observability.GenerationAttempt("ok")
	return text, nil
}

// newBackOff returns the delay schedule between attempts: InitialDelay, then
// multiplied each time, capped at MaxDelay, without jitter.
func newBackOff(rc config.RetryConfig) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = rc.InitialDelay
	bo.Multiplier = rc.Multiplier
	bo.MaxInterval = rc.MaxDelay
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
