// Package postgres implements the core stores on PostgreSQL with pgx.
//
// Reads made inside a transaction lock the rows they return (SELECT … FOR UPDATE), so
// the read-then-decrement sequence of a commit is serialized per (item, warehouse).
// Decrements are additionally guarded by quantity_on_hand >= qty, which keeps the
// balance non-negative even for callers that did not lock first.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"stockout-engine/internal/core"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the pgx-backed core.UnitOfWork.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Stores returns stores that run each statement on its own pooled connection.
func (s *Store) Stores() core.Stores {
	return bind(&conn{q: s.pool})
}

// WithinTx runs fn in a read-committed transaction. Serialization failures, deadlocks,
// lock timeouts and connection losses come back wrapped in core.ErrTransient.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx core.Stores) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, bind(&conn{q: tx, inTx: true})); err != nil {
		return classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func bind(c *conn) core.Stores {
	return core.Stores{
		Items:    &itemCatalog{c},
		Balances: &balanceStore{c},
		Serials:  &serialStore{c},
		Requests: &requestStore{c},
	}
}

// conn is a querier plus whether it belongs to an open transaction.
type conn struct {
	q    querier
	inTx bool
}

// forUpdate returns the locking clause for reads made inside a transaction.
func (c *conn) forUpdate(clause string) string {
	if !c.inTx {
		return ""
	}
	return clause
}

// Transient SQLSTATE codes: serialization_failure, deadlock_detected, lock_not_available.
var transientCodes = map[string]bool{
	"40001": true,
	"40P01": true,
	"55P03": true,
}

// classify marks retryable failures with core.ErrTransient.
func classify(err error) error {
	if err == nil || errors.Is(err, core.ErrTransient) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if transientCodes[pgErr.Code] {
			return fmt.Errorf("%w: %w", core.ErrTransient, err)
		}
		return err
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %w", core.ErrTransient, err)
	}
	return err
}
