package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpserver "github.com/fairyhunter13/ai-post-generator/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-post-generator/internal/adapter/storage"
	"github.com/fairyhunter13/ai-post-generator/internal/config"
	"github.com/fairyhunter13/ai-post-generator/internal/domain"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type stubPosts struct {
	gotCaller string
	gotParams domain.PostParams
	post      domain.Post
	err       error
}

func (s *stubPosts) Generate(_ domain.Context, callerID string, p domain.PostParams) (domain.Post, error) {
	s.gotCaller = callerID
	s.gotParams = p
	return s.post, s.err
}

func newTestServer(t *testing.T, posts httpserver.PostGenerator) (*httpserver.Server, string) {
	t.Helper()
	static := t.TempDir()
	cfg := config.Config{AppEnv: "test", StaticDir: static, MaxUploadMB: 1}
	store, err := storage.NewUploadStore(static, cfg.MaxUploadBytes())
	require.NoError(t, err)
	return httpserver.NewServer(cfg, store, posts), static
}

func buildUpload(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	fw, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func TestIndexHandler(t *testing.T) {
	srv, static := newTestServer(t, &stubPosts{})

	rec := httptest.NewRecorder()
	srv.IndexHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<h1>hi</h1>"), 0o644))
	rec = httptest.NewRecorder()
	srv.IndexHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Equal(t, "<h1>hi</h1>", rec.Body.String())
}

func TestIndexHandler_ReadError(t *testing.T) {
	srv, static := newTestServer(t, &stubPosts{})
	require.NoError(t, os.Mkdir(filepath.Join(static, "index.html"), 0o755))

	rec := httptest.NewRecorder()
	srv.IndexHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestUploadImage_Success(t *testing.T) {
	srv, static := newTestServer(t, &stubPosts{})
	body, ct := buildUpload(t, "file", "cat.png", pngBytes)
	req := httptest.NewRequest(http.MethodPost, "/upload-image/", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()

	srv.UploadImageHandler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	m := decode(t, rec)
	assert.Equal(t, true, m["success"])
	fp, _ := m["file_path"].(string)
	assert.Regexp(t, `^/static/uploads/image_[0-9a-f]{16}\.png$`, fp)
	_, err := os.Stat(filepath.Join(static, strings.TrimPrefix(fp, "/static/")))
	assert.NoError(t, err)
}

func TestUploadImage_Rejections(t *testing.T) {
	cases := []struct {
		name     string
		field    string
		filename string
		data     []byte
		wantMsg  string
	}{
		{"unsupported extension", "file", "doc.pdf", pngBytes, "unsupported image format"},
		{"not an image", "file", "fake.png", []byte("hello, this is plain text"), "invalid image file"},
		{"missing file field", "image", "cat.png", pngBytes, "file is required"},
		{"oversized", "file", "big.png", append(append([]byte{}, pngBytes...), make([]byte, 3<<20)...), "must not exceed 1MB"},
		{"slightly oversized", "file", "big.png", append(append([]byte{}, pngBytes...), make([]byte, 1<<20)...), "must not exceed 1MB"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, static := newTestServer(t, &stubPosts{})
			body, ct := buildUpload(t, tc.field, tc.filename, tc.data)
			req := httptest.NewRequest(http.MethodPost, "/upload-image/", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()

			srv.UploadImageHandler().ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			m := decode(t, rec)
			assert.Equal(t, false, m["success"])
			assert.Contains(t, m["error"], tc.wantMsg)
			entries, err := os.ReadDir(filepath.Join(static, "uploads"))
			require.NoError(t, err)
			assert.Empty(t, entries, "rejected uploads must not stay on disk")
		})
	}
}

func TestUploadImage_NotMultipart(t *testing.T) {
	srv, _ := newTestServer(t, &stubPosts{})
	req := httptest.NewRequest(http.MethodPost, "/upload-image/", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.UploadImageHandler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func generateRequest(fields url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/generate-post/", strings.NewReader(fields.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "203.0.113.7:54321"
	return req
}

func TestGeneratePost_Success(t *testing.T) {
	posts := &stubPosts{post: domain.Post{Content: "hello", ImagePath: "/static/uploads/a.png", Cached: true}}
	srv, _ := newTestServer(t, posts)
	rec := httptest.NewRecorder()

	srv.GeneratePostHandler().ServeHTTP(rec, generateRequest(url.Values{
		"platform":   {"instagram"},
		"length":     {"10-20"},
		"style":      {"funny"},
		"image_path": {"/static/uploads/a.png"},
	}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	m := decode(t, rec)
	assert.Equal(t, true, m["success"])
	assert.Equal(t, "hello", m["content"])
	assert.Equal(t, "/static/uploads/a.png", m["image_path"])
	assert.Equal(t, true, m["cached"])
	assert.Equal(t, "203.0.113.7", posts.gotCaller)
	assert.Equal(t, domain.PostParams{Platform: "instagram", Length: "10-20", Style: "funny", ImagePath: "/static/uploads/a.png"}, posts.gotParams)
}

func TestGeneratePost_MultipartForm(t *testing.T) {
	posts := &stubPosts{post: domain.Post{Content: "ok"}}
	srv, _ := newTestServer(t, posts)
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range map[string]string{"platform": "tiktok", "length": "0-5", "style": "sad", "description": "rainy"} {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/generate-post/", buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()

	srv.GeneratePostHandler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rainy", posts.gotParams.Description)
	assert.Equal(t, "", posts.gotParams.ImagePath)
}

func TestGeneratePost_MissingFields(t *testing.T) {
	posts := &stubPosts{}
	srv, _ := newTestServer(t, posts)
	rec := httptest.NewRecorder()

	srv.GeneratePostHandler().ServeHTTP(rec, generateRequest(url.Values{"platform": {"facebook"}}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	m := decode(t, rec)
	assert.Equal(t, false, m["success"])
	assert.Contains(t, m["error"], "length=required")
	assert.Contains(t, m["error"], "style=required")
	assert.Empty(t, posts.gotCaller, "generation must not run")
}

func TestGeneratePost_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"rate limited", fmt.Errorf("%w: daily request quota exceeded", domain.ErrRateLimited), http.StatusTooManyRequests},
		{"generation", fmt.Errorf("%w: no image provided", domain.ErrGeneration), http.StatusInternalServerError},
		{"upstream quota", fmt.Errorf("%w: rate limited: 429", domain.ErrUpstreamRateLimit), http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newTestServer(t, &stubPosts{err: tc.err})
			rec := httptest.NewRecorder()
			srv.GeneratePostHandler().ServeHTTP(rec, generateRequest(url.Values{
				"platform": {"facebook"}, "length": {"5-10"}, "style": {"sad"},
			}))
			assert.Equal(t, tc.code, rec.Code)
			m := decode(t, rec)
			assert.Equal(t, false, m["success"])
			assert.Equal(t, tc.err.Error(), m["error"])
		})
	}
}

func TestRecoverer_ReturnsEnvelope(t *testing.T) {
	h := httpserver.Recoverer()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("kaboom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])
}

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	var seen string
	h := httpserver.RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-Id")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 26)
	assert.Equal(t, seen, rec.Header().Get("X-Request-Id"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "fixed-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(context.Background()))
	assert.Equal(t, "fixed-id", rec.Header().Get("X-Request-Id"))
}

func TestSecurityHeaders(t *testing.T) {
	h := httpserver.SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'self'")
}
