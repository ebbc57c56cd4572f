package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	pkgerrors "github.com/absmach/swamp/pkg/errors"
	"github.com/absmach/swamp/pkg/history"
	"github.com/absmach/swamp/pkg/series"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"
)

var (
	ErrDBConnection = errors.New("database connection error")
	ErrDBQuery      = errors.New("database query error")
	ErrCreate       = errors.New("create error")
	ErrNotFound     = pkgerrors.ErrNotFound
)

type Repositories struct {
	Series    series.Sink
	Snapshots history.SnapshotRepository
	Evals     history.EvalRepository
}

// NewRepositories scopes the series repository to runID.
func NewRepositories(db *Database, runID string) *Repositories {
	return &Repositories{
		Series:    NewSeriesRepository(db, runID),
		Snapshots: NewSnapshotRepository(db),
		Evals:     NewEvalRepository(db),
	}
}

type Database struct {
	*sqlx.DB
}

func NewDatabase(path string) (*Database, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	// One writer at a time; sqlite serializes writes anyway.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	database := &Database{DB: db}

	if err := database.Migrate(); err != nil {
		_ = db.Close()

		return nil, err
	}

	return database, nil
}

func (db *Database) Migrate() error {
	migrations := &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "1_create_tables",
				Up: []string{
					`CREATE TABLE IF NOT EXISTS loss_samples (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						run_id TEXT NOT NULL,
						actor TEXT NOT NULL,
						loss REAL,
						elapsed INTEGER NOT NULL,
						at TIMESTAMP NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_loss_samples_run_actor ON loss_samples(run_id, actor, id)`,
					`CREATE TABLE IF NOT EXISTS snapshots (
						run_id TEXT NOT NULL,
						version INTEGER NOT NULL,
						loss REAL,
						trainer_id TEXT NOT NULL,
						published_at TIMESTAMP NOT NULL,
						payload BLOB NOT NULL,
						PRIMARY KEY (run_id, version)
					)`,
					`CREATE TABLE IF NOT EXISTS eval_results (
						run_id TEXT NOT NULL,
						version INTEGER NOT NULL,
						loss REAL,
						batches INTEGER NOT NULL,
						samples INTEGER NOT NULL,
						elapsed INTEGER NOT NULL,
						evaluated_at TIMESTAMP NOT NULL,
						PRIMARY KEY (run_id, version)
					)`,
				},
				Down: []string{
					`DROP TABLE IF EXISTS eval_results`,
					`DROP TABLE IF EXISTS snapshots`,
					`DROP INDEX IF EXISTS idx_loss_samples_run_actor`,
					`DROP TABLE IF EXISTS loss_samples`,
				},
			},
		},
	}

	if _, err := migrate.Exec(db.DB.DB, "sqlite3", migrations, migrate.Up); err != nil {
		return fmt.Errorf("database migration error: %w", err)
	}

	return nil
}

// SQLite has no NaN; it is stored as NULL.
func toNullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}

	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}

	return v.Float64
}
