package postgres

import (
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/absmach/swamp/pkg/errors"
	"github.com/absmach/swamp/pkg/history"
	"github.com/absmach/swamp/pkg/series"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
)

var (
	ErrDBConnection = errors.New("database connection error")
	ErrDBQuery      = errors.New("database query error")
	ErrCreate       = errors.New("create error")
	ErrNotFound     = pkgerrors.ErrNotFound
)

type Config struct {
	Host    string `env:"HOST"    envDefault:"localhost" toml:"host"`
	Port    string `env:"PORT"    envDefault:"5432"      toml:"port"`
	User    string `env:"USER"    envDefault:"swamp"     toml:"user"`
	Pass    string `env:"PASS"    envDefault:"swamp"     toml:"pass"`
	Name    string `env:"DB"      envDefault:"swamp"     toml:"db"`
	SSLMode string `env:"SSLMODE" envDefault:"disable"   toml:"sslmode"`
}

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

func NewDatabase(cfg Config) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s", cfg.Host, cfg.Port, cfg.User, cfg.Pass, cfg.Name, cfg.SSLMode)
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
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
						id BIGSERIAL PRIMARY KEY,
						run_id VARCHAR(64) NOT NULL,
						actor VARCHAR(255) NOT NULL,
						loss DOUBLE PRECISION NOT NULL,
						elapsed BIGINT NOT NULL,
						at TIMESTAMPTZ NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_loss_samples_run_actor ON loss_samples(run_id, actor, id)`,
					`CREATE TABLE IF NOT EXISTS snapshots (
						run_id VARCHAR(64) NOT NULL,
						version BIGINT NOT NULL,
						loss DOUBLE PRECISION NOT NULL,
						trainer_id VARCHAR(255) NOT NULL,
						published_at TIMESTAMPTZ NOT NULL,
						payload BYTEA NOT NULL,
						PRIMARY KEY (run_id, version)
					)`,
					`CREATE TABLE IF NOT EXISTS eval_results (
						run_id VARCHAR(64) NOT NULL,
						version BIGINT NOT NULL,
						loss DOUBLE PRECISION NOT NULL,
						batches INTEGER NOT NULL,
						samples INTEGER NOT NULL,
						elapsed BIGINT NOT NULL,
						evaluated_at TIMESTAMPTZ NOT NULL,
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

	if _, err := migrate.Exec(db.DB.DB, "postgres", migrations, migrate.Up); err != nil {
		return fmt.Errorf("database migration error: %w", err)
	}

	return nil
}
