package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/procuresight/internal/api"
	"github.com/opensource-finance/procuresight/internal/assess"
	"github.com/opensource-finance/procuresight/internal/bus"
	"github.com/opensource-finance/procuresight/internal/cache"
	"github.com/opensource-finance/procuresight/internal/domain"
	"github.com/opensource-finance/procuresight/internal/repository"
	"github.com/opensource-finance/procuresight/internal/sample"
	"github.com/opensource-finance/procuresight/internal/worker"
)

func newRepo(t *testing.T) *repository.SQLRepository {
	t.Helper()
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "procuresight.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestImportFixture(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	t.Run("NothingRequested", func(t *testing.T) {
		if err := importFixture(ctx, repo, false, ""); err != nil {
			t.Fatalf("importFixture failed: %v", err)
		}
		if _, err := repo.LoadSnapshot(ctx); !errors.Is(err, repository.ErrEmpty) {
			t.Errorf("expected ErrEmpty, got %v", err)
		}
	})

	t.Run("Seed", func(t *testing.T) {
		if err := importFixture(ctx, repo, true, ""); err != nil {
			t.Fatalf("importFixture failed: %v", err)
		}
		snap, err := repo.LoadSnapshot(ctx)
		if err != nil {
			t.Fatalf("LoadSnapshot failed: %v", err)
		}
		if snap.Version != sample.Version || snap.Len() != sample.DefaultSize {
			t.Errorf("unexpected snapshot %s with %d records", snap.Version, snap.Len())
		}
	})

	t.Run("FileWinsOverSeed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fixture.json")
		body := `{"version": "file-1", "records": [{"id": "a", "sector": "IT", "procedure": "open", "priceWeight": 1}]}`
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
		if err := importFixture(ctx, repo, true, path); err != nil {
			t.Fatalf("importFixture failed: %v", err)
		}
		snap, err := repo.LoadSnapshot(ctx)
		if err != nil {
			t.Fatalf("LoadSnapshot failed: %v", err)
		}
		if snap.Version != "file-1" || snap.Len() != 1 {
			t.Errorf("unexpected snapshot %s with %d records", snap.Version, snap.Len())
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		if err := importFixture(ctx, repo, false, filepath.Join(t.TempDir(), "nope.json")); err == nil {
			t.Error("expected error for a missing fixture file")
		}
	})
}

func TestLoadCatalog(t *testing.T) {
	if c, err := loadCatalog(""); err != nil || len(c.Rules()) != 8 {
		t.Fatalf("expected embedded catalog with 8 rules, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte("rules: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadCatalog(path); err == nil {
		t.Error("expected incomplete catalog to be rejected")
	}
	if _, err := loadCatalog(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected missing catalog file to fail")
	}
}

func TestNewLogger(t *testing.T) {
	ctx := context.Background()

	l := newLogger(domain.LoggingConfig{Level: "debug", Format: "text"})
	if !l.Enabled(ctx, slog.LevelDebug) {
		t.Error("expected debug level")
	}
	if _, ok := l.Handler().(*slog.TextHandler); !ok {
		t.Error("expected text handler")
	}

	l = newLogger(domain.LoggingConfig{Level: "bogus", Format: "json"})
	if l.Enabled(ctx, slog.LevelDebug) || !l.Enabled(ctx, slog.LevelInfo) {
		t.Error("expected unknown level to fall back to info")
	}
	if _, ok := l.Handler().(*slog.JSONHandler); !ok {
		t.Error("expected JSON handler")
	}
}

// TestEndToEnd wires the stack the way main does: seed the store, load the
// snapshot, queue an assessment over the bus and read it back from the cache.
func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	if err := importFixture(ctx, repo, true, ""); err != nil {
		t.Fatalf("importFixture failed: %v", err)
	}

	catalog, err := loadCatalog("")
	if err != nil {
		t.Fatalf("loadCatalog failed: %v", err)
	}
	assessor, err := assess.New(catalog, domain.DefaultConfig().Engine, nil)
	if err != nil {
		t.Fatalf("assess.New failed: %v", err)
	}
	snap, err := repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if err := assessor.Load(snap); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cacheImpl, err := cache.New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100, LocalTTL: time.Minute})
	if err != nil {
		t.Fatalf("cache.New failed: %v", err)
	}
	defer cacheImpl.Close()

	busImpl, err := bus.New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 100})
	if err != nil {
		t.Fatalf("bus.New failed: %v", err)
	}
	defer busImpl.Close()

	w := worker.NewWorker(busImpl, assessor, cacheImpl, nil)
	if err := w.Start(worker.Config{WorkerCount: 2, CacheTTL: time.Minute}); err != nil {
		t.Fatalf("worker start failed: %v", err)
	}
	defer w.Stop()

	srv := api.NewServer(domain.ServerConfig{}, api.Deps{
		Assessor: assessor,
		Source:   repo,
		Cache:    cacheImpl,
		Bus:      busImpl,
		Version:  "test",
	})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	var id string
	snap.Each(func(r *domain.Record) bool {
		id = r.ID
		return false
	})
	url := ts.URL + "/procurements/" + id + "/assessment"

	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		cached, err := cacheImpl.GetAssessment(ctx, snap.Version, id)
		if err != nil {
			t.Fatalf("cache read failed: %v", err)
		}
		if cached != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("worker never cached the assessment")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err = http.Get(url)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Cache"); got != "HIT" {
		t.Errorf("expected the queued assessment to be served from cache, got %q", got)
	}

	var as domain.Assessment
	if err := json.NewDecoder(resp.Body).Decode(&as); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if as.RecordID != id || as.Metadata.SnapshotVersion != snap.Version {
		t.Errorf("unexpected assessment %s at %s", as.RecordID, as.Metadata.SnapshotVersion)
	}

	for w.GetStats().Processed != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 1 processed request, got %d", w.GetStats().Processed)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
