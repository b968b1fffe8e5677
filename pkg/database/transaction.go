package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/jmoiron/sqlx"
)

type txKey struct{}

type Tx interface {
	Executor
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transaction wraps sqlx.Tx. Whoever began it finishes it: Commit and Rollback
// called with a context that already carries the transaction do nothing.
type Transaction struct {
	*sqlx.Tx
	logger ectologger.Logger
	closed bool
}

func NewTx(tx *sqlx.Tx, logger ectologger.Logger) Tx {
	return &Transaction{Tx: tx, logger: logger}
}

// TxFromContext returns the open transaction carried by ctx.
func TxFromContext(ctx context.Context) (Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(Tx)
	if !ok || !tx.IsOpen() {
		return nil, false
	}
	return tx, true
}

// GetTx joins the transaction of ctx, or begins one and returns a context carrying
// it. Commit and Rollback take the context passed in, not the returned one.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if tx, ok := TxFromContext(ctx); ok {
		return ctx, tx, nil
	}

	sqlTx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Error("Failed to begin transaction")
		return ctx, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	tx := NewTx(sqlTx, logger)
	return context.WithValue(ctx, txKey{}, tx), tx, nil
}

// WithTransaction runs fn inside the transaction of ctx, or inside a new one that
// is committed when fn succeeds and rolled back when it fails or panics.
func WithTransaction(ctx context.Context, db DB, fn func(ctx context.Context) error) (err error) {
	txCtx, tx, err := db.GetTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(txCtx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ExecutorFor returns the transaction of ctx, or db outside one.
func ExecutorFor(ctx context.Context, db DB) Executor {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return db
}

func (t *Transaction) IsOpen() bool {
	return !t.closed
}

// joined reports whether ctx already carries t, which means a caller owns it.
func (t *Transaction) joined(ctx context.Context) bool {
	carried, ok := ctx.Value(txKey{}).(Tx)
	return ok && carried == Tx(t)
}

func (t *Transaction) Rollback(ctx context.Context) error {
	return t.finish(ctx, "rollback", t.Tx.Rollback)
}

func (t *Transaction) Commit(ctx context.Context) error {
	return t.finish(ctx, "commit", t.Tx.Commit)
}

func (t *Transaction) finish(ctx context.Context, action string, fn func() error) error {
	if t.closed || t.joined(ctx) {
		return nil
	}
	_, span := tracing.StartSpan(ctx, "database.Transaction."+action)
	defer span.End()

	t.closed = true
	if err := fn(); err != nil {
		tracing.RecordError(span, err)
		t.logger.WithContext(ctx).WithError(err).Errorf("Failed to %s transaction", action)
		return fmt.Errorf("failed to %s transaction: %w", action, err)
	}
	return nil
}
