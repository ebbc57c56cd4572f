// Package storage opens the backend that keeps loss series, published
// snapshots and evaluation results.
package storage

import (
	"fmt"
	"io"

	"github.com/absmach/swamp/pkg/history"
	"github.com/absmach/swamp/pkg/series"
	"github.com/absmach/swamp/pkg/storage/badger"
	"github.com/absmach/swamp/pkg/storage/postgres"
	"github.com/absmach/swamp/pkg/storage/sqlite"
)

type Config struct {
	// Type is one of memory, badger, sqlite or postgres.
	Type       string          `env:"TYPE"        envDefault:"memory"        toml:"type"`
	BadgerPath string          `env:"BADGER_PATH" envDefault:"./data/badger" toml:"badger_path"`
	SQLitePath string          `env:"SQLITE_PATH" envDefault:"./swamp.db"    toml:"sqlite_path"`
	Postgres   postgres.Config `envPrefix:"POSTGRES_" toml:"postgres"`
}

// Persistent reports whether the configured backend outlives the process.
func (c Config) Persistent() bool {
	return c.Type != "memory" && c.Type != ""
}

type Repositories struct {
	Series    series.Sink
	Snapshots history.SnapshotRepository
	Evals     history.EvalRepository
	// Closer closes the underlying database. It is nil for the in-memory
	// backend.
	Closer io.Closer
}

// NewRepositories opens the configured backend. Loss series are scoped to
// runID.
func NewRepositories(cfg Config, runID string) (*Repositories, error) {
	switch cfg.Type {
	case "badger":
		db, err := badger.NewDatabase(cfg.BadgerPath)
		if err != nil {
			return nil, err
		}
		repos := badger.NewRepositories(db, runID)

		return &Repositories{Series: repos.Series, Snapshots: repos.Snapshots, Evals: repos.Evals, Closer: db}, nil
	case "sqlite":
		db, err := sqlite.NewDatabase(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		repos := sqlite.NewRepositories(db, runID)

		return &Repositories{Series: repos.Series, Snapshots: repos.Snapshots, Evals: repos.Evals, Closer: db}, nil
	case "postgres":
		db, err := postgres.NewDatabase(cfg.Postgres)
		if err != nil {
			return nil, err
		}
		repos := postgres.NewRepositories(db, runID)

		return &Repositories{Series: repos.Series, Snapshots: repos.Snapshots, Evals: repos.Evals, Closer: db}, nil
	case "memory", "":
		store := newInMemoryStorage()

		return &Repositories{
			Series:    series.NewMemorySink(),
			Snapshots: newMemorySnapshotRepository(store),
			Evals:     newMemoryEvalRepository(store),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

func (r *Repositories) Close() error {
	if r.Closer == nil {
		return nil
	}

	return r.Closer.Close()
}
