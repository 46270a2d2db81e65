package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"workflow-scheme/backend/pkg/models"
)

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository is a PostgreSQL implementation of the Repository interface.
type PostgresRepository struct {
	pool *pgxpool.Pool
	db   querier
	inTx bool
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool, db: pool}
}

// Ping checks the database connection.
func (s *PostgresRepository) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InTx runs fn inside one database transaction. Calls made while already
// inside a transaction reuse it.
func (s *PostgresRepository) InTx(ctx context.Context, fn func(Repository) error) error {
	if s.inTx {
		return fn(s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&PostgresRepository{pool: s.pool, db: tx, inTx: true})
	})
}

// configTable maps a generation onto its table; both tables share one shape.
func configTable(gen models.Generation) (string, error) {
	switch gen {
	case models.Draft:
		return "state_machine_scheme_config_draft", nil
	case models.Live:
		return "state_machine_scheme_config", nil
	}
	return "", fmt.Errorf("repository: unknown generation %q", gen)
}

// expectOne converts a write's outcome into ErrPersistence unless exactly one row changed.
func expectOne(tag pgconn.CommandTag, err error, op string) error {
	if err != nil {
		return fmt.Errorf("repository: %s: %w", op, wrapWriteErr(err))
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("repository: %s affected %d rows: %w", op, tag.RowsAffected(), ErrPersistence)
	}
	return nil
}

// wrapWriteErr marks constraint violations as persistence failures.
func wrapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "23505" || pgErr.Code == "23514") {
		return fmt.Errorf("%w: %s", ErrPersistence, pgErr.Message)
	}
	return err
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("repository: %s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("repository: %s: %w", what, err)
}
