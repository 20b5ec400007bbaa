package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fairyhunter13/ai-post-generator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-post-generator/internal/domain"
	"github.com/fairyhunter13/ai-post-generator/pkg/textx"
)

const previewRunes = 100

// Admitter decides whether a caller may issue another generation today.
type Admitter interface {
	Admit(callerID string) bool
}

// quotaReporter is implemented by limiters that know when the quota resets.
type quotaReporter interface {
	Remaining(callerID string) int
	ResetIn() time.Duration
}

type bucketCounter interface {
	Buckets() int
}

// TextCache stores generated text by request key.
type TextCache interface {
	Get(key string) (text string, storedAt time.Time, ok bool)
	Put(key, text string)
	Len() int
}

// Generator produces text for a set of post parameters.
type Generator interface {
	Generate(ctx domain.Context, p domain.PostParams) (string, error)
}

// PostService composes admission, the response cache and generation.
type PostService struct {
	Limiter   Admitter
	Cache     TextCache
	Generator Generator
	// Coalesce lets concurrent identical requests share one generation.
	Coalesce bool

	group singleflight.Group
}

// NewPostService constructs a PostService with its dependencies.
func NewPostService(l Admitter, c TextCache, g Generator, coalesce bool) *PostService {
	return &PostService{Limiter: l, Cache: c, Generator: g, Coalesce: coalesce}
}

// Generate admits the caller, answers from the cache when possible and
// otherwise generates and stores the result. Rejected callers get
// domain.ErrRateLimited and consume nothing else.
func (s *PostService) Generate(ctx domain.Context, callerID string, p domain.PostParams) (domain.Post, error) {
	lg := observability.LoggerFromContext(ctx)
	lg.Info("generate post requested",
		slog.String("platform", p.Platform),
		slog.String("length", p.Length),
		slog.String("style", p.Style),
		slog.String("image_path", p.ImagePath),
		slog.String("description", p.Description))

	admitted := s.Limiter.Admit(callerID)
	observability.RateLimitDecision(admitted)
	if bc, ok := s.Limiter.(bucketCounter); ok {
		observability.LimiterBuckets(bc.Buckets())
	}
	if !admitted {
		attrs := []any{slog.String("caller", callerID)}
		if qr, ok := s.Limiter.(quotaReporter); ok {
			attrs = append(attrs, slog.Duration("reset_in", qr.ResetIn()))
		}
		lg.Warn("daily quota exceeded", attrs...)
		return domain.Post{}, fmt.Errorf("%w: daily request quota exceeded, please try again tomorrow", domain.ErrRateLimited)
	}

	if qr, ok := s.Limiter.(quotaReporter); ok {
		lg.Debug("quota admitted", slog.String("caller", callerID), slog.Int("remaining", qr.Remaining(callerID)))
	}

	key := p.CacheKey()
	if text, storedAt, ok := s.Cache.Get(key); ok {
		observability.CacheLookup(true, s.Cache.Len())
		lg.Info("response cache hit",
			slog.Duration("age", time.Since(storedAt)),
			slog.String("preview", textx.Preview(text, previewRunes)))
		return domain.Post{Content: text, ImagePath: p.ImagePath, Cached: true}, nil
	}
	observability.CacheLookup(false, s.Cache.Len())

	text, err := s.generate(ctx, key, p)
	if err != nil {
		return domain.Post{}, err
	}
	lg.Info("post generated", slog.String("preview", textx.Preview(text, previewRunes)))
	return domain.Post{Content: text, ImagePath: p.ImagePath}, nil
}

// generate runs the generator, sharing one call among identical in-flight
// requests when coalescing is on. The shared call outlives any single
// waiter; each waiter stops only on its own cancellation.
func (s *PostService) generate(ctx domain.Context, key string, p domain.PostParams) (string, error) {
	run := func(ctx domain.Context) (string, error) {
		text, err := s.Generator.Generate(ctx, p)
		if err != nil {
			return "", err
		}
		s.Cache.Put(key, text)
		return text, nil
	}
	if !s.Coalesce {
		return run(ctx)
	}
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) { return run(shared) })
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			observability.LoggerFromContext(ctx).Debug("generation shared with concurrent request")
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", domain.ErrGeneration, ctx.Err())
	}
}
