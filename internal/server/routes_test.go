package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamediary/internal/capture"
	"gamediary/internal/config"
	"gamediary/internal/media"
	"gamediary/internal/notify"
	"gamediary/internal/session"
	"gamediary/internal/storage"
	"gamediary/internal/upload"
	"gamediary/internal/users"
)

// testBackend fakes the whole storage side: documents, key listing and
// signed URLs. PUT URLs point at a local test server that records bodies.
type testBackend struct {
	mu       sync.Mutex
	docs     map[string][]byte
	uploaded map[string][]byte
	putBase  string
}

func newTestBackend() *testBackend {
	return &testBackend{
		docs:     make(map[string][]byte),
		uploaded: make(map[string][]byte),
	}
}

func (b *testBackend) GetDocument(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	body, ok := b.docs[key]
	if !ok {
		return nil, storage.ErrNoDocument
	}
	return body, nil
}

func (b *testBackend) PutDocument(_ context.Context, key string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs[key] = body
	return nil
}

func (b *testBackend) PresignPut(_ context.Context, key string) (string, error) {
	return b.putBase + "/" + key, nil
}

func (b *testBackend) PresignGet(_ context.Context, key string) (string, error) {
	return "https://signed.example/" + key, nil
}

func (b *testBackend) ListKeys(_ context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.uploaded))
	for key := range b.uploaded {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (b *testBackend) record(key string, body []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploaded[key] = body
}

func (b *testBackend) uploadedKeys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.uploaded))
	for key := range b.uploaded {
		keys = append(keys, key)
	}
	return keys
}

type testGrabber struct{}

func (testGrabber) Bounds() (int, int, error) { return 32, 24, nil }

func (testGrabber) Grab() (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	img.Set(0, 0, color.RGBA{G: 255, A: 255})
	return img, nil
}

type testAudioInput struct {
	mu      sync.Mutex
	onBlock func([]int16, error)
}

func (f *testAudioInput) Channels() int   { return 2 }
func (f *testAudioInput) SampleRate() int { return 44100 }

func (f *testAudioInput) Start(onBlock func([]int16, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onBlock = onBlock
	// Deliver one block immediately so a stop right after start still
	// captures something.
	go onBlock([]int16{1, -1, 2, -2}, nil)
	return nil
}

func (f *testAudioInput) Stop() error { return nil }

type testEnv struct {
	server  *FiberServer
	backend *testBackend
	putSrv  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	backend := newTestBackend()
	putSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		backend.record(strings.TrimPrefix(r.URL.Path, "/"), body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(putSrv.Close)
	backend.putBase = putSrv.URL

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:         5000,
			Host:         "127.0.0.1",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  10 * time.Second,
		},
		Capture: config.CaptureConfig{
			Backend:   config.BackendSampler,
			FrameRate: 50,
		},
		User: config.UserConfig{Username: "testuser"},
		Security: config.SecurityConfig{
			CORSOrigins: []string{"*"},
			RateLimit:   1000,
			RateWindow:  time.Minute,
		},
	}

	sessions := session.NewRegistry(backend, cfg.User.Username)
	pipeline := upload.NewPipeline(backend, sessions)
	hub := notify.NewHub()
	go hub.Run()

	// Repackaging normally runs through ffmpeg; in tests the bytes move
	// unchanged into the mp4-named file.
	copyRemux := func(src, dst string) error {
		body, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		return os.WriteFile(dst, body, 0644)
	}

	recordingsDir := t.TempDir()
	captureHandler := capture.NewCaptureHandler(
		capture.NewScreenRecorder(testGrabber{}, recordingsDir, cfg.Capture.FrameRate, copyRemux),
		capture.NewAudioRecorder(&testAudioInput{}, t.TempDir()),
		capture.NewScreenshotter(testGrabber{}, t.TempDir()),
		capture.NewThumbnailer(""),
		pipeline,
		hub,
		cfg.User.Username,
		t.TempDir(),
	)

	srv := New(cfg, Deps{
		Store:    backend,
		Sessions: sessions,
		Users:    users.NewUserService(backend),
		Catalog:  media.NewCatalog(backend, backend, backend),
		Capture:  captureHandler,
		Hub:      hub,
	})
	srv.RegisterFiberRoutes()

	return &testEnv{server: srv, backend: backend, putSrv: putSrv}
}

func (e *testEnv) request(t *testing.T, method, target string, body interface{}) (*http.Response, map[string]json.RawMessage) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.server.Test(req, 15000)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	fields := make(map[string]json.RawMessage)
	// Some endpoints return arrays; callers decode those themselves.
	_ = json.Unmarshal(raw, &fields)
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	return resp, fields
}

func jsonString(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(raw, &s))
	return s
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, fields := env.request(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", jsonString(t, fields["status"]))
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	// No session yet.
	resp, fields := env.request(t, http.MethodGet, "/session/active", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "null", string(fields["game_id"]))

	// Ending with nothing open is a client error.
	resp, _ = env.request(t, http.MethodPost, "/session/end", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Start a session.
	resp, _ = env.request(t, http.MethodPost, "/session/update", map[string]string{"game_id": "elden-ring"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, fields = env.request(t, http.MethodGet, "/session/active", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "elden-ring", jsonString(t, fields["game_id"]))

	// End it.
	resp, _ = env.request(t, http.MethodPost, "/session/end", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, fields = env.request(t, http.MethodGet, "/session/active", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "null", string(fields["game_id"]))

	// Latest still reports the closed session.
	resp, fields = env.request(t, http.MethodGet, "/session/latest", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "elden-ring", jsonString(t, fields["game_id"]))

	// Durations lists exactly one closed entry.
	resp, _ = env.request(t, http.MethodGet, "/session/durations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var durations []session.SessionDuration
	raw, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(raw, &durations))
	require.Len(t, durations, 1)
	assert.NotNil(t, durations[0].EndTime)

	// Missing game_id is rejected.
	resp, _ = env.request(t, http.MethodPost, "/session/update", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestScreenshotEndpoint(t *testing.T) {
	env := newTestEnv(t)

	// Capture under an active session so the key nests under the game.
	resp, _ := env.request(t, http.MethodPost, "/session/update", map[string]string{"game_id": "g7"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, fields := env.request(t, http.MethodPost, "/screenshot", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", jsonString(t, fields["status"]))
	assert.NotEmpty(t, jsonString(t, fields["path"]))
	assert.NotEmpty(t, jsonString(t, fields["url"]))

	keys := env.backend.uploadedKeys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "testuser/g7/screenshot_"), "key %q", keys[0])
	assert.True(t, strings.HasSuffix(keys[0], ".png"))
}

func TestRecordingLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp, fields := env.request(t, http.MethodGet, "/recording/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "false", string(fields["recording"]))

	// Stop before start is a client error.
	resp, _ = env.request(t, http.MethodPost, "/recording/stop", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, fields = env.request(t, http.MethodPost, "/recording/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "started", jsonString(t, fields["status"]))

	resp, fields = env.request(t, http.MethodGet, "/recording/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", string(fields["recording"]))

	// Double start is rejected without disturbing the running capture.
	resp, _ = env.request(t, http.MethodPost, "/recording/start", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	time.Sleep(200 * time.Millisecond)

	resp, fields = env.request(t, http.MethodPost, "/recording/stop", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "stopped", jsonString(t, fields["status"]))
	assert.True(t, strings.HasSuffix(jsonString(t, fields["path"]), ".mp4"))
	assert.True(t, strings.HasSuffix(jsonString(t, fields["thumbnail_path"]), ".png"))

	keys := env.backend.uploadedKeys()
	require.NotEmpty(t, keys)
	var foundVideo, foundThumb bool
	for _, key := range keys {
		if strings.Contains(key, "recording_") && strings.HasSuffix(key, ".mp4") {
			foundVideo = true
		}
		if strings.HasSuffix(key, ".png") {
			foundThumb = true
		}
	}
	assert.True(t, foundVideo, "uploaded keys: %v", keys)
	assert.True(t, foundThumb, "uploaded keys: %v", keys)

	// The stored recording must come back from the catalog as a video.
	resp, _ = env.request(t, http.MethodGet, "/media/storage?media_type=video", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var records []media.Record
	raw, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(raw, &records))
	require.Len(t, records, 1)
	assert.Equal(t, media.TypeVideo, records[0].Type)
	assert.Equal(t, "testuser", records[0].OwnerUserID)
}

func TestAudioLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.request(t, http.MethodPost, "/audio/stop", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, fields := env.request(t, http.MethodPost, "/audio/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "started", jsonString(t, fields["status"]))

	resp, _ = env.request(t, http.MethodPost, "/audio/start", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	time.Sleep(50 * time.Millisecond)

	resp, fields = env.request(t, http.MethodPost, "/audio/stop", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "stopped", jsonString(t, fields["status"]))
	assert.True(t, strings.HasSuffix(jsonString(t, fields["path"]), ".wav"))

	keys := env.backend.uploadedKeys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "testuser/audio_recording_"), "key %q", keys[0])
}

func TestStorageMediaListing(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.request(t, http.MethodPost, "/screenshot", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.request(t, http.MethodGet, "/media/storage", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var records []media.Record
	raw, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(raw, &records))
	require.Len(t, records, 1)
	assert.Equal(t, media.TypeScreenshot, records[0].Type)
	assert.Equal(t, "testuser", records[0].OwnerUserID)
	assert.Contains(t, records[0].URL, "https://signed.example/")

	// Type filter that matches nothing.
	resp, _ = env.request(t, http.MethodGet, "/media/storage?media_type=video", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, _ = io.ReadAll(resp.Body)
	records = nil
	require.NoError(t, json.Unmarshal(raw, &records))
	assert.Empty(t, records)
}

func TestStaticMediaListingEmpty(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.request(t, http.MethodGet, "/media", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var records []media.Record
	raw, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(raw, &records))
	assert.Empty(t, records)
}

func TestGeneratePresignedURL(t *testing.T) {
	env := newTestEnv(t)

	resp, fields := env.request(t, http.MethodPost, "/generate-presigned-url", map[string]string{
		"file_name": "clip.mp4",
		"username":  "alice",
		"game_id":   "g7",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasSuffix(jsonString(t, fields["url"]), "/alice/g7/clip.mp4"))

	// Without a game the key flattens.
	resp, fields = env.request(t, http.MethodPost, "/generate-presigned-url", map[string]string{
		"file_name": "clip.mp4",
		"username":  "alice",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasSuffix(jsonString(t, fields["url"]), "/alice/clip.mp4"))

	// Missing required fields.
	resp, _ = env.request(t, http.MethodPost, "/generate-presigned-url", map[string]string{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUserRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.request(t, http.MethodPost, "/user/register", map[string]string{
		"username": "alice",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.request(t, http.MethodPost, "/user/login", map[string]string{
		"username": "alice",
		"password": "password123",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.request(t, http.MethodPost, "/user/login", map[string]string{
		"username": "alice",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.request(t, http.MethodPost, "/user/register", map[string]string{
		"username": "alice",
		"password": "again",
	})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
