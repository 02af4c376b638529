package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fernando-live/internal/api"
	"fernando-live/internal/ivs"
	"fernando-live/internal/observability/metrics"
	"fernando-live/internal/recording"
	"fernando-live/internal/storage"
	"fernando-live/internal/viewers"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *storage.Storage) {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	ingest := ivs.Config{IngestEndpoint: "rtmps://ingest.example:443/app/"}
	handler := api.NewHandler(store, recording.NewReconciler(store, nil, ingest, nil, metrics.New()), viewers.NewMemoryTracker(), ingest)
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	return New(handler, cfg), store
}

func TestRoutesAreWired(t *testing.T) {
	srv, store := newTestServer(t, Config{})
	creator, err := store.CreateCreator(storage.CreateCreatorParams{DisplayName: "ada", ChannelName: "ada"})
	if err != nil {
		t.Fatalf("CreateCreator: %v", err)
	}

	cases := []struct {
		method  string
		path    string
		body    string
		creator string
		want    int
	}{
		{http.MethodGet, "/healthz", "", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", "", http.StatusOK},
		{http.MethodGet, "/api/streams/live", "", "", http.StatusOK},
		{http.MethodGet, "/api/recordings", "", "", http.StatusOK},
		{http.MethodGet, "/api/creators", "", "", http.StatusOK},
		{http.MethodGet, "/api/categories", "", "", http.StatusOK},
		{http.MethodPost, "/api/streams/go-live", `{"title":"Show"}`, creator.ID, http.StatusCreated},
		{http.MethodGet, "/api/streams/mine", "", creator.ID, http.StatusOK},
		{http.MethodGet, "/api/streams/ingest-config", "", creator.ID, http.StatusOK},
		{http.MethodGet, "/api/streams/no-such-stream", "", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		var req *http.Request
		if tc.body != "" {
			req = httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
		} else {
			req = httptest.NewRequest(tc.method, tc.path, nil)
		}
		if tc.creator != "" {
			req.Header.Set("X-Creator-Id", tc.creator)
		}
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("%s %s = %d, want %d (body %s)", tc.method, tc.path, rec.Code, tc.want, rec.Body.String())
		}
	}
}

func TestRequestIDAssignedAndEchoed(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("no request id assigned")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "gateway-supplied")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "gateway-supplied" {
		t.Fatalf("request id = %q, want gateway-supplied", got)
	}
}

func TestGlobalRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, Config{RateLimit: RateLimitConfig{GlobalRPS: 1, GlobalBurst: 2}})

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("burst should pass: %v", codes)
	}
	if codes[3] != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst: %v", codes)
	}
}

func TestGoLiveThrottlePerCreator(t *testing.T) {
	srv, store := newTestServer(t, Config{RateLimit: RateLimitConfig{GoLiveLimit: 2, GoLiveWindow: time.Minute}})
	creator, err := store.CreateCreator(storage.CreateCreatorParams{DisplayName: "ada", ChannelName: "ada"})
	if err != nil {
		t.Fatalf("CreateCreator: %v", err)
	}

	goLive := func(id string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/streams/go-live", strings.NewReader(`{"title":"Show"}`))
		req.Header.Set("X-Creator-Id", id)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	if code := goLive(creator.ID); code != http.StatusCreated {
		t.Fatalf("first go-live = %d", code)
	}
	// Second attempt hits the one-live conflict but still consumes a token.
	if code := goLive(creator.ID); code != http.StatusConflict {
		t.Fatalf("second go-live = %d, want 409", code)
	}
	if code := goLive(creator.ID); code != http.StatusTooManyRequests {
		t.Fatalf("third go-live = %d, want 429", code)
	}
	// A different creator has its own window.
	if code := goLive("someone-else"); code == http.StatusTooManyRequests {
		t.Fatal("throttle leaked across creators")
	}
}

func TestMemoryTokenStoreWindowResets(t *testing.T) {
	store := newMemoryTokenStore()
	now := time.Date(2026, 1, 26, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		allowed, _, err := store.Allow(context.Background(), "k", 3, time.Minute)
		if err != nil || !allowed {
			t.Fatalf("attempt %d: allowed=%v err=%v", i, allowed, err)
		}
	}
	allowed, retry, err := store.Allow(context.Background(), "k", 3, time.Minute)
	if err != nil || allowed {
		t.Fatalf("over limit: allowed=%v err=%v", allowed, err)
	}
	if retry <= 0 || retry > time.Minute {
		t.Fatalf("retry = %s", retry)
	}

	now = now.Add(2 * time.Minute)
	if allowed, _, _ := store.Allow(context.Background(), "k", 3, time.Minute); !allowed {
		t.Fatal("window did not reset")
	}
}
