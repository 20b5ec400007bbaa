// Package storage keeps uploaded images on the local filesystem.
//
// Uploads are written under <static>/uploads with random names, validated by
// content sniffing, served back under /static/uploads, and removed by the
// retention sweeper once they are older than the configured age.
package storage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-post-generator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-post-generator/internal/domain"
)

// StaticURLPrefix is the public prefix under which the static directory is served.
const StaticURLPrefix = "/static/"

var allowedImageMIME = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
}

// UploadStore persists uploaded images and loads them back for generation.
type UploadStore struct {
	staticDir string
	uploadDir string
	maxBytes  int64
}

// NewUploadStore creates the uploads directory under staticDir if needed.
func NewUploadStore(staticDir string, maxBytes int64) (*UploadStore, error) {
	uploadDir := filepath.Join(staticDir, "uploads")
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("op=storage.mkdir: %w", err)
	}
	return &UploadStore{staticDir: staticDir, uploadDir: uploadDir, maxBytes: maxBytes}, nil
}

// Dir returns the directory holding uploaded artifacts.
func (s *UploadStore) Dir() string { return s.uploadDir }

// Save writes r to a randomly named file and validates it. Any validation
// failure removes the written file and returns a domain.ErrInvalidArgument.
func (s *UploadStore) Save(ctx domain.Context, filename string, r io.Reader) (domain.Artifact, error) {
	_, span := otel.Tracer("storage.uploads").Start(ctx, "uploads.Save")
	defer span.End()
	lg := observability.LoggerFromContext(ctx)

	ext := extOf(filename)
	if _, ok := domain.AllowedImageExts[ext]; !ok {
		observability.UploadOutcome("bad_extension")
		return domain.Artifact{}, fmt.Errorf("%w: unsupported image format, only JPG, PNG and GIF are accepted", domain.ErrInvalidArgument)
	}

	name := "image_" + randomHex() + "." + ext
	full := filepath.Join(s.uploadDir, name)
	span.SetAttributes(attribute.String("upload.name", name))

	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("op=storage.create: %w", err)
	}
	// Copy at most one byte beyond the limit so oversized files are detected
	// without writing the whole body to disk.
	n, copyErr := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		s.discard(full, lg)
		return domain.Artifact{}, fmt.Errorf("op=storage.write: %w", errors.Join(copyErr, closeErr))
	}

	mt, err := mimetype.DetectFile(full)
	if err != nil || !allowedMIME(mt.String()) {
		s.discard(full, lg)
		observability.UploadOutcome("bad_content")
		return domain.Artifact{}, fmt.Errorf("%w: invalid image file", domain.ErrInvalidArgument)
	}

	if n > s.maxBytes {
		s.discard(full, lg)
		observability.UploadOutcome("too_large")
		return domain.Artifact{}, fmt.Errorf("%w: image size must not exceed %dMB", domain.ErrInvalidArgument, s.maxBytes/(1024*1024))
	}

	observability.UploadOutcome("ok")
	lg.Info("image uploaded", slog.String("name", name), slog.String("mime", mt.String()), slog.Int64("size", n))
	return domain.Artifact{
		Name:      name,
		Path:      full,
		URLPath:   path.Join(StaticURLPrefix, "uploads", name),
		MIME:      mt.String(),
		Size:      n,
		CreatedAt: time.Now(),
	}, nil
}

// Load resolves a public /static/... path to the artifact bytes.
// It returns domain.ErrNotFound when the file does not exist and
// domain.ErrInvalidArgument when the path escapes the static directory.
func (s *UploadStore) Load(ctx domain.Context, imagePath string) (domain.Image, error) {
	_, span := otel.Tracer("storage.uploads").Start(ctx, "uploads.Load")
	defer span.End()

	full, err := s.resolve(imagePath)
	if err != nil {
		return domain.Image{}, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Image{}, fmt.Errorf("%w: image %s", domain.ErrNotFound, imagePath)
		}
		return domain.Image{}, fmt.Errorf("op=storage.read: %w", err)
	}
	return domain.Image{MIME: mimetype.Detect(data).String(), Data: data}, nil
}

func (s *UploadStore) resolve(imagePath string) (string, error) {
	rel := strings.Replace(imagePath, StaticURLPrefix, "", 1)
	rel = filepath.Clean("/" + filepath.FromSlash(rel))
	full := filepath.Join(s.staticDir, rel)
	base := filepath.Clean(s.staticDir)
	if full != base && !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: image path outside static directory", domain.ErrInvalidArgument)
	}
	return full, nil
}

func (s *UploadStore) discard(full string, lg *slog.Logger) {
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		lg.Error("failed to remove rejected upload", slog.String("path", full), slog.Any("error", err))
	}
}

// extOf returns the lowercase text after the last dot, or the whole name when there is none.
func extOf(filename string) string {
	if i := strings.LastIndex(filename, "."); i >= 0 {
		return strings.ToLower(filename[i+1:])
	}
	return strings.ToLower(filename)
}

func allowedMIME(m string) bool {
	_, ok := allowedImageMIME[strings.ToLower(m)]
	return ok
}

// randomHex returns 16 hex characters drawn from the fully random bytes of
// a v4 UUID. Bytes 6 and 8 carry the version and variant bits.
func randomHex() string {
	id := uuid.New()
	b := make([]byte, 0, 8)
	b = append(b, id[0:6]...)
	b = append(b, id[9:11]...)
	return hex.EncodeToString(b)
}

var _ domain.ImageResolver = (*UploadStore)(nil)
