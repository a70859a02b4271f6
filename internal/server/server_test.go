package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vivek9454/FalconEye/internal/alert"
	"github.com/Vivek9454/FalconEye/internal/camera"
	"github.com/Vivek9454/FalconEye/internal/store"
	"github.com/Vivek9454/FalconEye/internal/vision"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	dir := t.TempDir()
	st, err := store.New(filepath.Join(dir, "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cooldowns := alert.NewCooldowns(time.Minute)
	dispatcher := alert.NewDispatcher(alert.SenderFunc(func(title, body string, tags []string) bool {
		return true
	}), cooldowns, 25)

	clipDir := filepath.Join(dir, "clips")
	require.NoError(t, os.MkdirAll(clipDir, 0o755))

	return &Server{
		Cameras:    camera.NewManager(),
		Settings:   vision.NewStore(filepath.Join(dir, "vision.json")),
		Store:      st,
		Dispatcher: dispatcher,
		ClipDir:    clipDir,
	}, clipDir
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body []byte) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec, body := doJSON(t, s.Routes(), "GET", "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestClipListingAndDownload(t *testing.T) {
	s, clipDir := newTestServer(t)

	clip := store.ClipMetadata{
		Filename:  "clip_20250901_020304pm.mp4",
		CameraID:  "cam1",
		Tags:      []string{"person"},
		Timestamp: time.Now(),
		Duration:  12 * time.Second,
	}
	require.NoError(t, s.Store.SaveClip(clip))
	require.NoError(t, os.WriteFile(filepath.Join(clipDir, clip.Filename), []byte("mp4data"), 0o644))

	mux := s.Routes()

	rec, body := doJSON(t, mux, "GET", "/api/clips", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	clips := body["clips"].([]any)
	require.Len(t, clips, 1)

	rec, _ = doJSON(t, mux, "GET", "/api/clips/"+clip.Filename, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mp4data", rec.Body.String())

	// Unknown clip is a 404 even if a stray file exists on disk.
	rec, _ = doJSON(t, mux, "GET", "/api/clips/clip_20990101_120000am.mp4", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClipNameValidation(t *testing.T) {
	assert.True(t, validClipName("clip_20250901_020304pm.mp4"))
	assert.False(t, validClipName("../etc/passwd"))
	assert.False(t, validClipName("a/b.mp4"))
	assert.False(t, validClipName("movie.avi"))
	assert.False(t, validClipName(""))
}

func TestSettingsRoundTrip(t *testing.T) {
	s, _ := newTestServer(t)
	mux := s.Routes()

	rec, body := doJSON(t, mux, "GET", "/api/settings", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["show_boxes"])

	rec, body = doJSON(t, mux, "PATCH", "/api/settings", []byte(`{"show_boxes": false, "min_area": 2000}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["show_boxes"])
	assert.Equal(t, float64(2000), body["min_area"])

	rec, _ = doJSON(t, mux, "PATCH", "/api/settings", []byte(`{not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlertsEndpointReturnsRecentEvents(t *testing.T) {
	s, _ := newTestServer(t)
	s.Dispatcher.Send("cam1", alert.KindTampering, nil)

	rec, body := doJSON(t, s.Routes(), "GET", "/api/alerts", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	alerts := body["alerts"].([]any)
	require.Len(t, alerts, 1)
	entry := alerts[0].(map[string]any)
	assert.Equal(t, "cam1", entry["camera"])
}

func TestFaceEndpointsWithoutServiceConfigured(t *testing.T) {
	s, _ := newTestServer(t)
	mux := s.Routes()

	rec, _ := doJSON(t, mux, "GET", "/api/faces", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, _ = doJSON(t, mux, "POST", "/api/faces/alice", []byte("jpegdata"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSnapshotUnknownCamera(t *testing.T) {
	s, _ := newTestServer(t)
	rec, _ := doJSON(t, s.Routes(), "GET", "/api/cameras/nope/snapshot", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRetryUploadsWithoutUploader(t *testing.T) {
	s, _ := newTestServer(t)
	rec, _ := doJSON(t, s.Routes(), "POST", "/api/uploads/retry", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
