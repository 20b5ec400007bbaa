package domain

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrGeneration        = errors.New("generation failed")
	ErrUpstreamRateLimit = errors.New("upstream quota exceeded")
	ErrConfiguration     = errors.New("invalid configuration")
)

// Supported upload image extensions (lowercase, no dot).
var AllowedImageExts = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"gif":  {},
}

// cacheKeyNone renders an absent optional field inside a cache key.
const cacheKeyNone = "None"

// PostParams carries every input that influences a generated post.
// ImagePath and Description are optional; an empty value means absent.
type PostParams struct {
	Platform    string
	Length      string
	Style       string
	ImagePath   string
	Description string
}

// CacheKey joins all parameters in a fixed order separated by ':'.
// Absent optional fields are rendered as "None" so that keys stay byte-identical
// for identical requests.
func (p PostParams) CacheKey() string {
	return strings.Join([]string{
		p.Platform,
		p.Length,
		p.Style,
		orNone(p.ImagePath),
		orNone(p.Description),
	}, ":")
}

func orNone(s string) string {
	if s == "" {
		return cacheKeyNone
	}
	return s
}

// Post is the outcome of a generate-post request.
type Post struct {
	Content   string
	ImagePath string
	Cached    bool
}

// Artifact is an uploaded image stored on disk.
type Artifact struct {
	Name      string
	Path      string
	URLPath   string
	MIME      string
	Size      int64
	CreatedAt time.Time
}

// Image is the payload sent to the generation provider alongside the prompt.
type Image struct {
	MIME string
	Data []byte
}

// ContentGenerator (port) performs a single generation call with the given credential.
type ContentGenerator interface {
	GenerateContent(ctx Context, apiKey, prompt string, img Image) (string, error)
}

// ImageResolver (port) maps a public image path to its bytes on the artifact store.
// Implementations return ErrNotFound when the artifact does not exist.
type ImageResolver interface {
	Load(ctx Context, imagePath string) (Image, error)
}

// Context is an alias so ports can be declared without importing context everywhere.
type Context = context.Context
