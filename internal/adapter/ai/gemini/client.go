// Package gemini implements domain.ContentGenerator against the Gemini
// generateContent REST endpoint.
package gemini

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-post-generator/internal/adapter/ai"
	"github.com/fairyhunter13/ai-post-generator/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-post-generator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-post-generator/internal/domain"
)

const provider = "gemini"

// Client performs a single generateContent call per invocation.
// Retries and credential rotation belong to the caller.
type Client struct {
	baseURL string
	model   string
	hc      *http.Client
	tokens  *tokencount.Counter
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default traced HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.hc = hc } }

// WithTokenCounter enables token usage metrics.
func WithTokenCounter(tc *tokencount.Counter) Option { return func(c *Client) { c.tokens = tc } }

// New constructs a client for the given API base URL and model.
func New(baseURL, model string, opts ...Option) *Client {
	transport := otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return fmt.Sprintf("Gemini %s %s", r.Method, r.URL.Host)
		}),
	)
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		hc:      &http.Client{Timeout: 45 * time.Second, Transport: transport},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// GenerateContent sends the prompt and image to the model and returns the joined text parts.
// A 429 from the provider yields an error whose text contains "429".
func (c *Client) GenerateContent(ctx domain.Context, apiKey, prompt string, img domain.Image) (string, error) {
	lg := observability.LoggerFromContext(ctx)
	reqBody := generateRequest{Contents: []content{{
		Role: "user",
		Parts: []part{
			{Text: prompt},
			{InlineData: &inlineData{MimeType: img.MIME, Data: base64.StdEncoding.EncodeToString(img.Data)}},
		},
	}}}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("op=gemini.marshal: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("op=gemini.request: %w", err)
	}
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("x-goog-api-key", apiKey)

	start := time.Now()
	resp, err := c.hc.Do(r)
	if err != nil {
		observability.ObserveAIRequest(provider, "generate", "transport_error", time.Since(start))
		return "", fmt.Errorf("op=gemini.do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.ObserveAIRequest(provider, "generate", "read_error", time.Since(start))
		return "", fmt.Errorf("op=gemini.read: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		observability.ObserveAIRequest(provider, "generate", "rate_limited", time.Since(start))
		lg.Warn("ai provider rate limited", slog.String("provider", provider), slog.String("key", ai.MaskKey(apiKey)), slog.Int("status", resp.StatusCode))
		return "", fmt.Errorf("rate limited: 429")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.ObserveAIRequest(provider, "generate", "http_error", time.Since(start))
		snippet := string(bodyBytes)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		lg.Error("ai provider non-2xx", slog.String("provider", provider), slog.String("model", c.model), slog.Int("status", resp.StatusCode), slog.String("body", snippet))
		return "", fmt.Errorf("generate status %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.Unmarshal(bodyBytes, &out); err != nil {
		observability.ObserveAIRequest(provider, "generate", "decode_error", time.Since(start))
		return "", fmt.Errorf("op=gemini.decode: %w", err)
	}
	observability.ObserveAIRequest(provider, "generate", "ok", time.Since(start))

	if out.PromptFeedback.BlockReason != "" {
		lg.Warn("prompt blocked by provider", slog.String("provider", provider), slog.String("reason", out.PromptFeedback.BlockReason))
	}
	text := joinText(out)
	if c.tokens != nil {
		u := c.tokens.CalculateUsage(prompt, text, c.model)
		observability.AddTokens(provider, "prompt", u.PromptTokens)
		observability.AddTokens(provider, "completion", u.CompletionTokens)
		lg.Debug("gemini token usage", slog.Int("prompt_tokens", u.PromptTokens), slog.Int("completion_tokens", u.CompletionTokens), slog.Bool("estimated", u.Estimated))
	}
	return text, nil
}

func joinText(out generateResponse) string {
	if len(out.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

var _ domain.ContentGenerator = (*Client)(nil)
