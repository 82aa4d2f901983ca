package llm

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCatalog(endpoint string) *Catalog {
	cfg := config.Default().LLM
	cfg.Endpoint = endpoint
	cfg.TimeoutMS = 2000
	return NewCatalog(cfg, newLogger())
}

func TestGetModelsFetchesAndCaches(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected authorization header %q", got)
		}
		w.Write([]byte(snakeFixture))
	}))
	defer server.Close()

	catalog := newTestCatalog(server.URL)
	models := catalog.GetModels(context.Background(), "sk-test", false)
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(models))
	}

	again := catalog.GetModels(context.Background(), "sk-test", false)
	if len(again) != 2 {
		t.Fatalf("expected cached models, got %d", len(again))
	}
	if hits != 1 {
		t.Fatalf("expected a single fetch, got %d", hits)
	}
}

func TestGetModelsForceRefreshBypassesCache(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.Write([]byte(snakeFixture))
	}))
	defer server.Close()

	catalog := newTestCatalog(server.URL)
	catalog.GetModels(context.Background(), "sk-test", false)
	catalog.GetModels(context.Background(), "sk-test", true)
	if hits != 2 {
		t.Fatalf("expected 2 fetches with force refresh, got %d", hits)
	}
}

func TestGetModelsServesCacheOnNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(snakeFixture))
	}))

	catalog := newTestCatalog(server.URL)
	first := catalog.GetModels(context.Background(), "sk-test", false)
	if len(first) != 2 {
		t.Fatalf("expected 2 models, got %d", len(first))
	}

	server.Close()

	cached := catalog.GetModels(context.Background(), "sk-test", true)
	if len(cached) != 2 {
		t.Fatalf("expected cached models after network failure, got %d", len(cached))
	}
	if cached[0].ID != first[0].ID {
		t.Fatalf("expected unchanged cache entries, got %+v", cached)
	}
}

func TestGetModelsExpiredEntryStillServesAsFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(snakeFixture))
	}))

	catalog := newTestCatalog(server.URL)
	catalog.GetModels(context.Background(), "sk-test", false)
	server.Close()

	// Move the catalog clock past the entry expiry so the fresh path is
	// skipped and the refetch fails.
	catalog.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	models := catalog.GetModels(context.Background(), "sk-test", false)
	if len(models) != 2 {
		t.Fatalf("expected stale fallback models, got %d", len(models))
	}
}

func TestGetModelsDefaultDescriptorWhenNothingAvailable(t *testing.T) {
	catalog := newTestCatalog("http://127.0.0.1:1")

	models := catalog.GetModels(context.Background(), "", false)
	if len(models) != 1 {
		t.Fatalf("expected exactly one default model, got %d", len(models))
	}
	if models[0].ID == "" {
		t.Fatal("expected non-empty default model id")
	}
}

func TestGetModelsCacheIsPerCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(snakeFixture))
	}))

	catalog := newTestCatalog(server.URL)
	catalog.GetModels(context.Background(), "sk-one", false)
	server.Close()

	models := catalog.GetModels(context.Background(), "sk-two", false)
	if len(models) != 1 || models[0].ID != DefaultModel().ID {
		t.Fatalf("expected default for unseen credential, got %+v", models)
	}
}
