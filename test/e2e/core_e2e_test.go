//go:build e2e
// +build e2e

package e2e_test

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestE2E_IndexAndHealth(t *testing.T) {
	client := &http.Client{Timeout: httpTimeout}
	waitForApp(t, client)

	resp, err := client.Get(baseURL() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	m, err := client.Get(baseURL() + "/metrics")
	require.NoError(t, err)
	defer m.Body.Close()
	b, _ := io.ReadAll(m.Body)
	assert.Contains(t, string(b), "http_requests_total")
}

func TestE2E_UploadValidation(t *testing.T) {
	client := &http.Client{Timeout: httpTimeout}
	waitForApp(t, client)

	code, body := uploadImage(t, client, "notes.txt", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, body["success"])

	code, body = uploadImage(t, client, "fake.png", []byte("definitely not an image"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, body["success"])

	code, body = uploadImage(t, client, "pixel.png", pngPixel)
	require.Equal(t, http.StatusOK, code, body)
	fp, _ := body["file_path"].(string)
	assert.True(t, strings.HasPrefix(fp, "/static/uploads/image_"), fp)

	img, err := client.Get(baseURL() + fp)
	require.NoError(t, err)
	defer img.Body.Close()
	assert.Equal(t, http.StatusOK, img.StatusCode)
}

func TestE2E_GenerateWithoutImageFails(t *testing.T) {
	client := &http.Client{Timeout: httpTimeout}
	waitForApp(t, client)

	code, body := generatePost(t, client, url.Values{"platform": {"facebook"}, "length": {"0-5"}, "style": {"sad"}})
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, false, body["success"])
}

// TestE2E_Live_GenerateThenCached calls the real provider once; the second
// identical request must be served from the cache.
func TestE2E_Live_GenerateThenCached(t *testing.T) {
	if !liveEnabled() {
		t.Skip("E2E_LIVE not set")
	}
	client := &http.Client{Timeout: httpTimeout}
	waitForApp(t, client)

	code, up := uploadImage(t, client, "pixel.png", pngPixel)
	require.Equal(t, http.StatusOK, code, up)
	fields := url.Values{
		"platform":   {"instagram"},
		"length":     {"10-20"},
		"style":      {"funny"},
		"image_path": {up["file_path"].(string)},
	}

	code, first := generatePost(t, client, fields)
	require.Equal(t, http.StatusOK, code, first)
	assert.Equal(t, false, first["cached"])
	assert.NotEmpty(t, first["content"])

	code, second := generatePost(t, client, fields)
	require.Equal(t, http.StatusOK, code, second)
	assert.Equal(t, true, second["cached"])
	assert.Equal(t, first["content"], second["content"])
}
