// Package postgres implements the queue store contracts on PostgreSQL using
// pgx. Due jobs are claimed with a single UPDATE ... WHERE id IN (SELECT ...
// FOR UPDATE SKIP LOCKED) RETURNING statement so that concurrent dispatcher
// runs never receive the same row.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/mailqueue/pkg/queue"
)

// Migrations holds the goose migrations of the schema.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory of Migrations to pass to the migrator.
const MigrationsDir = "migrations"

var (
	_ queue.JobStore       = (*Store)(nil)
	_ queue.TemplateStore  = (*Store)(nil)
	_ queue.SequenceStore  = (*Store)(nil)
	_ queue.RecipientStore = (*Store)(nil)
	_ queue.LogSink        = (*Store)(nil)
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ DB = (*pgxpool.Pool)(nil)

// Store is a PostgreSQL-backed queue store.
type Store struct {
	db DB
}

// New returns a store over the given pool.
func New(db DB) *Store {
	return &Store{db: db}
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("queue/postgres: ping: %w", err)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
