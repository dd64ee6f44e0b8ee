package domain

import (
	"context"
	"time"
)

// Source loads the read-only corpus and lookup tables.
// The engine never writes through it.
type Source interface {
	// LoadSnapshot reads every table and returns an immutable snapshot.
	LoadSnapshot(ctx context.Context) (*Snapshot, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// Importer writes a fixture into a store, replacing what was there.
// It is used for seeding and by offline tooling, never by the engine.
type Importer interface {
	Import(ctx context.Context, f *Fixture) error
}

// Fixture is the portable form of a snapshot.
type Fixture struct {
	Version     string                      `json:"version"`
	Model       *LinearModel                `json:"model,omitempty"`
	Records     []*Record                   `json:"records"`
	Buyers      []*BuyerProfile             `json:"buyers,omitempty"`
	Disputes    map[string][]Dispute        `json:"disputes,omitempty"`
	Integrity   map[string]IntegrityLookups `json:"integrity,omitempty"`
	Narratives  map[string]*NarrativeResult `json:"narratives,omitempty"`
	CustomRules []CustomRule                `json:"customRules,omitempty"`
}

// Snapshot builds the in-memory snapshot a fixture describes.
func (f *Fixture) Snapshot() *Snapshot {
	s := NewSnapshot(f.Version, f.Model, f.Records)
	for _, b := range f.Buyers {
		s.Buyers[b.Name] = b
	}
	for id, d := range f.Disputes {
		s.Disputes[id] = d
	}
	for id, l := range f.Integrity {
		s.Integrity[id] = l
	}
	for id, n := range f.Narratives {
		s.Narratives[id] = n
	}
	s.CustomRules = f.CustomRules
	return s
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific. PostgresURL, when set, replaces the fields below it.
	PostgresURL      string
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
