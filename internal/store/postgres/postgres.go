// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/quillworks/loom/internal/model"
	"github.com/quillworks/loom/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateEngine(ctx context.Context, engine *model.Engine) error {
	return queryCreateEngine(ctx, s.db, engine)
}

func (s *PostgresStore) GetEngine(ctx context.Context, id string) (*model.Engine, error) {
	return queryGetEngine(ctx, s.db, id)
}

func (s *PostgresStore) ListEngines(ctx context.Context, status model.EngineStatus) ([]*model.Engine, error) {
	return queryListEngines(ctx, s.db, status)
}

func (s *PostgresStore) UpdateEngine(ctx context.Context, engine *model.Engine) error {
	return queryUpdateEngine(ctx, s.db, engine)
}

func (s *PostgresStore) DeleteEngine(ctx context.Context, id string) error {
	return queryDeleteEngine(ctx, s.db, id)
}

func (s *PostgresStore) CreateRecord(ctx context.Context, rec *model.ExecutionRecord) error {
	return queryCreateRecord(ctx, s.db, rec)
}

func (s *PostgresStore) ReadRecord(ctx context.Context, executionID string) (*model.ExecutionRecord, error) {
	return queryGetRecord(ctx, s.db, executionID)
}

// MergeWriteRecord applies a partial update under a row lock so concurrent
// writers touching disjoint fields never clobber each other.
func (s *PostgresStore) MergeWriteRecord(ctx context.Context, executionID string, update *model.RecordUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rec, err := queryGetRecordForUpdate(ctx, tx, executionID)
	if err != nil {
		return err
	}
	update.Apply(rec)
	if err := queryWriteRecord(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) ListRecords(ctx context.Context, limit int) ([]*model.ExecutionRecord, error) {
	return queryListRecords(ctx, s.db, limit)
}
