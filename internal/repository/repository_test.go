package repository

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/procuresight/internal/domain"
	"github.com/opensource-finance/procuresight/internal/sample"
)

func newTestRepository(t *testing.T) *SQLRepository {
	t.Helper()
	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "procuresight-test.db"),
	}
	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("EmptyStore", func(t *testing.T) {
		_, err := repo.LoadSnapshot(ctx)
		if !errors.Is(err, ErrEmpty) {
			t.Errorf("expected ErrEmpty, got %v", err)
		}
	})

	fx := sample.Fixture(48)

	t.Run("ImportAndLoad", func(t *testing.T) {
		if err := repo.Import(ctx, fx); err != nil {
			t.Fatalf("Import failed: %v", err)
		}

		snap, err := repo.LoadSnapshot(ctx)
		if err != nil {
			t.Fatalf("LoadSnapshot failed: %v", err)
		}

		if snap.Version != fx.Version {
			t.Errorf("expected version %s, got %s", fx.Version, snap.Version)
		}
		if snap.Len() != len(fx.Records) {
			t.Errorf("expected %d records, got %d", len(fx.Records), snap.Len())
		}
		if !reflect.DeepEqual(snap.Model, fx.Model) {
			t.Errorf("model did not round-trip")
		}
		if len(snap.Buyers) != len(fx.Buyers) {
			t.Errorf("expected %d buyers, got %d", len(fx.Buyers), len(snap.Buyers))
		}
		if len(snap.Disputes) != len(fx.Disputes) {
			t.Errorf("expected %d disputed records, got %d", len(fx.Disputes), len(snap.Disputes))
		}
		if len(snap.Integrity) != len(fx.Integrity) {
			t.Errorf("expected %d integrity lookups, got %d", len(fx.Integrity), len(snap.Integrity))
		}
		if len(snap.Narratives) != len(fx.Narratives) {
			t.Errorf("expected %d narratives, got %d", len(fx.Narratives), len(snap.Narratives))
		}
		if !reflect.DeepEqual(snap.CustomRules, fx.CustomRules) {
			t.Errorf("watch rules did not round-trip: %+v", snap.CustomRules)
		}

		for _, want := range fx.Records {
			got := snap.Record(want.ID)
			if got == nil {
				t.Fatalf("record %s missing", want.ID)
			}
			if !reflect.DeepEqual(got.Procurement, want.Procurement) {
				t.Errorf("record %s: procurement mismatch\n got %+v\nwant %+v", want.ID, got.Procurement, want.Procurement)
			}
			if !reflect.DeepEqual(got.Features, want.Features) {
				t.Errorf("record %s: feature vector mismatch", want.ID)
			}
			if got.Title != want.Title {
				t.Errorf("record %s: expected title %q, got %q", want.ID, want.Title, got.Title)
			}
		}

		for id, want := range fx.Integrity {
			got := snap.Integrity[id]
			if !reflect.DeepEqual(got, want) {
				t.Errorf("integrity %s mismatch: got %+v want %+v", id, got, want)
			}
		}
		for id, want := range fx.Narratives {
			if !reflect.DeepEqual(snap.Narratives[id], want) {
				t.Errorf("narrative %s mismatch", id)
			}
		}
		for _, want := range fx.Buyers {
			if !reflect.DeepEqual(snap.Buyer(want.Name), want) {
				t.Errorf("buyer %s mismatch", want.Name)
			}
		}
	})

	t.Run("ImportReplaces", func(t *testing.T) {
		small := &domain.Fixture{Version: "v2"}
		p := domain.Procurement{ID: "only", Sector: domain.SectorIT, Procedure: domain.ProcedureOpen}
		small.Records = []*domain.Record{{Procurement: p}}

		if err := repo.Import(ctx, small); err != nil {
			t.Fatalf("Import failed: %v", err)
		}
		snap, err := repo.LoadSnapshot(ctx)
		if err != nil {
			t.Fatalf("LoadSnapshot failed: %v", err)
		}
		if snap.Version != "v2" || snap.Len() != 1 {
			t.Fatalf("expected only v2 with 1 record, got %s with %d", snap.Version, snap.Len())
		}
		if snap.Model != nil {
			t.Error("expected no model")
		}
		if len(snap.Buyers) != 0 || len(snap.CustomRules) != 0 {
			t.Error("expected previous lookup tables to be cleared")
		}

		rec := snap.Record("only")
		if !rec.Features.InSector(domain.SectorIT) {
			t.Error("expected missing features to be encoded on import")
		}
		if _, ok := rec.Features.Value(); ok {
			t.Error("expected value to be missing")
		}
	})

	t.Run("ImportRejectsBadInput", func(t *testing.T) {
		if err := repo.Import(ctx, &domain.Fixture{}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}

		bad := &domain.Fixture{Version: "v3", Model: &domain.LinearModel{FeatureNames: []string{"a"}}}
		if err := repo.Import(ctx, bad); !errors.Is(err, domain.ErrModelShape) {
			t.Errorf("expected ErrModelShape, got %v", err)
		}

		rule := &domain.Fixture{Version: "v4", CustomRules: []domain.CustomRule{{
			ID: "x", Title: "X", Expression: "true", Severity: "urgent",
		}}}
		if err := repo.Import(ctx, rule); !errors.Is(err, domain.ErrUnknownCategory) {
			t.Errorf("expected ErrUnknownCategory, got %v", err)
		}

		// Failed imports roll back.
		snap, err := repo.LoadSnapshot(ctx)
		if err != nil {
			t.Fatalf("LoadSnapshot failed: %v", err)
		}
		if snap.Version != "v2" {
			t.Errorf("expected v2 to survive failed imports, got %s", snap.Version)
		}
	})
}

func TestInMemorySQLite(t *testing.T) {
	repo, err := New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: memoryPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	if err := repo.Import(ctx, sample.Fixture(10)); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	snap, err := repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if snap.Len() != 10 {
		t.Errorf("expected 10 records, got %d", snap.Len())
	}
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(domain.RepositoryConfig{Driver: "mysql"})
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{driver: "postgres"}
	lite := &SQLRepository{driver: "sqlite"}

	query := "SELECT * FROM t WHERE a = ? AND b = ?"
	if got := pg.rebind(query); got != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Errorf("unexpected postgres query: %s", got)
	}
	if got := lite.rebind(query); got != query {
		t.Errorf("sqlite query should be unchanged: %s", got)
	}
}

func TestPostgresDSN(t *testing.T) {
	got := postgresDSN(domain.RepositoryConfig{PostgresUser: "ps", PostgresPassword: "pw"})
	want := "host=localhost port=5432 user=ps password=pw dbname=procuresight sslmode=disable"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	url := "postgres://ps:pw@db:5432/procuresight?sslmode=require"
	if got := postgresDSN(domain.RepositoryConfig{PostgresURL: url, PostgresHost: "ignored"}); got != url {
		t.Errorf("expected URL to win, got %q", got)
	}
}

func TestSQLiteDSN(t *testing.T) {
	if dsn := sqliteDSN(memoryPath); strings.Contains(dsn, "journal_mode") {
		t.Errorf("in-memory DSN should not set WAL: %s", dsn)
	}
	if dsn := sqliteDSN("/tmp/x.db"); !strings.Contains(dsn, "_pragma=journal_mode(WAL)") {
		t.Errorf("file DSN should set WAL: %s", dsn)
	}
}

func TestReadFixture(t *testing.T) {
	f, err := ReadFixture(strings.NewReader(`{
		"version": "v1",
		"records": [{"id": "a", "sector": "IT", "procedure": "open", "priceWeight": 1}]
	}`))
	if err != nil {
		t.Fatalf("ReadFixture failed: %v", err)
	}
	if len(f.Records) != 1 || f.Records[0].ID != "a" || f.Records[0].Sector != domain.SectorIT {
		t.Errorf("unexpected fixture: %+v", f.Records)
	}

	if _, err := ReadFixture(strings.NewReader(`{"version": "v1", "owner": "x"}`)); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected unknown field to be rejected, got %v", err)
	}
	if _, err := ReadFixture(strings.NewReader(`{"records": []}`)); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected missing version to be rejected, got %v", err)
	}
}

func TestPostgresImportRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := wrap(db, "postgres")

	mock.ExpectBegin()
	for _, table := range tables {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM " + table)).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO snapshot_meta (id, version, model, imported_at) VALUES (1, $1, $2, $3)")).
		WithArgs("v1", nil, sqlmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = repo.Import(context.Background(), &domain.Fixture{Version: "v1"})
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoadEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT version, model FROM snapshot_meta WHERE id = 1")).
		WillReturnRows(sqlmock.NewRows([]string{"version", "model"}))

	_, err = wrap(db, "postgres").LoadSnapshot(context.Background())
	assert.ErrorIs(t, err, ErrEmpty)
	assert.NoError(t, mock.ExpectationsWereMet())
}
