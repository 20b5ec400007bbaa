package httpserver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-post-generator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-post-generator/internal/config"
	"github.com/fairyhunter13/ai-post-generator/internal/domain"
	"github.com/fairyhunter13/ai-post-generator/pkg/textx"
)

// formMemory bounds the in-memory part of a parsed generate-post form.
const formMemory = 1 << 20

// ArtifactStore persists uploaded images.
type ArtifactStore interface {
	Save(ctx domain.Context, filename string, r io.Reader) (domain.Artifact, error)
}

// PostGenerator answers generate-post requests for a caller.
type PostGenerator interface {
	Generate(ctx domain.Context, callerID string, p domain.PostParams) (domain.Post, error)
}

// Server aggregates handlers dependencies.
type Server struct {
	Cfg     config.Config
	Uploads ArtifactStore
	Posts   PostGenerator
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() {
		vld = validator.New()
		vld.RegisterTagNameFunc(func(f reflect.StructField) string { return f.Tag.Get("form") })
	})
	return vld
}

// NewServer constructs an HTTP server with all handlers wired.
func NewServer(cfg config.Config, uploads ArtifactStore, posts PostGenerator) *Server {
	return &Server{Cfg: cfg, Uploads: uploads, Posts: posts}
}

// IndexHandler serves <static>/index.html.
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := os.ReadFile(filepath.Join(s.Cfg.StaticDir, "index.html"))
		if err != nil {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			if errors.Is(err, os.ErrNotExist) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = io.WriteString(w, "index.html not found")
				return
			}
			observability.LoggerFromContext(r.Context()).Error("read index.html failed", slog.Any("error", err))
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, "failed to load page")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(b)
	}
}

// UploadImageHandler stores a single multipart image under the field "file".
func (s *Server) UploadImageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maxBytes := s.Cfg.MaxUploadBytes()
		// Leave room for multipart framing; the store enforces the exact limit.
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes*2)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) || strings.Contains(strings.ToLower(err.Error()), "request body too large") {
				observability.UploadOutcome("too_large")
				writeError(w, r, fmt.Errorf("%w: image size must not exceed %dMB", domain.ErrInvalidArgument, s.Cfg.MaxUploadMB))
				return
			}
			observability.UploadOutcome("bad_request")
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err))
			return
		}
		defer func() {
			if r.MultipartForm != nil {
				_ = r.MultipartForm.RemoveAll()
			}
		}()
		file, header, err := r.FormFile("file")
		if err != nil {
			observability.UploadOutcome("bad_request")
			writeError(w, r, fmt.Errorf("%w: file is required", domain.ErrInvalidArgument))
			return
		}
		defer func() { _ = file.Close() }()

		art, err := s.Uploads.Save(r.Context(), header.Filename, file)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, uploadResponse{Success: true, FilePath: art.URLPath})
	}
}

type generatePostForm struct {
	Platform    string `form:"platform" validate:"required,max=64"`
	Length      string `form:"length" validate:"required,max=16"`
	Style       string `form:"style" validate:"required,max=64"`
	ImagePath   string `form:"image_path" validate:"max=512"`
	Description string `form:"description" validate:"max=2000"`
}

// GeneratePostHandler runs quota admission, the response cache and generation.
func (s *Server) GeneratePostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(formMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			writeError(w, r, fmt.Errorf("%w: invalid form: %v", domain.ErrInvalidArgument, err))
			return
		}
		form := generatePostForm{
			Platform:    textx.SanitizeText(r.FormValue("platform")),
			Length:      textx.SanitizeText(r.FormValue("length")),
			Style:       textx.SanitizeText(r.FormValue("style")),
			ImagePath:   textx.SanitizeText(r.FormValue("image_path")),
			Description: textx.SanitizeText(r.FormValue("description")),
		}
		if err := getValidator().Struct(form); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid fields: %s", domain.ErrInvalidArgument, describeValidation(err)))
			return
		}

		post, err := s.Posts.Generate(r.Context(), callerID(r), domain.PostParams{
			Platform:    form.Platform,
			Length:      form.Length,
			Style:       form.Style,
			ImagePath:   form.ImagePath,
			Description: form.Description,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, postResponse{
			Success:   true,
			Content:   post.Content,
			ImagePath: post.ImagePath,
			Cached:    post.Cached,
		})
	}
}

// HealthzHandler reports liveness.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ok"})
	}
}

func describeValidation(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		parts = append(parts, fe.Field()+"="+fe.Tag())
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

// callerID identifies the client for quota purposes by its peer address.
func callerID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
