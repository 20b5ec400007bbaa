package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fairyhunter13/ai-post-generator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-post-generator/internal/domain"
)

type errorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type uploadResponse struct {
	Success  bool   `json:"success"`
	FilePath string `json:"file_path"`
}

type postResponse struct {
	Success   bool   `json:"success"`
	Content   string `json:"content"`
	ImagePath string `json:"image_path"`
	Cached    bool   `json:"cached"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps the domain error taxonomy onto HTTP status codes.
// Upstream quota exhaustion stays a 500; its message tells it apart.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrGeneration), errors.Is(err, domain.ErrUpstreamRateLimit):
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= 500 {
		observability.LoggerFromContext(r.Context()).Error("request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	writeJSON(w, code, errorEnvelope{Success: false, Error: err.Error()})
}

// BurstLimited answers requests rejected by the per-minute guard.
func BurstLimited(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, errorEnvelope{Success: false, Error: "too many requests, please slow down"})
}
