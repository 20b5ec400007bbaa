//go:build e2e
// +build e2e

// Package e2e_test exercises a running server over HTTP.
//
// Point E2E_BASE_URL at the server (default http://localhost:5100). Tests
// that would call the real provider only run when E2E_LIVE=1, so the suite
// stays safe for the daily quota and for credentials without billing.
package e2e_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const httpTimeout = 90 * time.Second

// pngPixel is a complete 1x1 PNG.
var pngPixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01, 0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
	0x89, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0xf8, 0xff, 0xff, 0x3f,
	0x00, 0x05, 0xfe, 0x02, 0xfe, 0xa7, 0x35, 0x81, 0x84, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e,
	0x44, 0xae, 0x42, 0x60, 0x82,
}

// getenv returns the value of the environment variable k or def if empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func baseURL() string { return strings.TrimRight(getenv("E2E_BASE_URL", "http://localhost:5100"), "/") }

func liveEnabled() bool { return os.Getenv("E2E_LIVE") == "1" }

// waitForApp skips the test when the server does not answer /healthz in time.
func waitForApp(t *testing.T, client *http.Client) {
	t.Helper()
	if testing.Short() {
		t.Skip("short mode")
	}
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL() + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Skip("app not available; skipping E2E")
}

func uploadImage(t *testing.T, client *http.Client, filename string, data []byte) (int, map[string]any) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	resp, err := client.Post(baseURL()+"/upload-image/", w.FormDataContentType(), buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func generatePost(t *testing.T, client *http.Client, fields url.Values) (int, map[string]any) {
	t.Helper()
	resp, err := client.PostForm(baseURL()+"/generate-post/", fields)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}
