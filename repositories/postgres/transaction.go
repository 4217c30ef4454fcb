package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/upb/action-gate/repositories"
	"go.uber.org/zap"
)

type txKey struct{}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// conn is embedded by every repository. A repository bound with WithTx always
// uses its transaction; otherwise a transaction carried by ctx wins over the pool.
type conn struct {
	db *DB
	tx *Tx
}

func (c conn) querier(ctx context.Context) querier {
	if c.tx != nil {
		return c.tx.tx
	}
	if tx, ok := TxFromContext(ctx); ok {
		return tx.tx
	}
	return c.db.DB
}

func (c conn) bind(tx repositories.Transaction) conn {
	if t, ok := tx.(*Tx); ok {
		c.tx = t
	}
	return c
}

// TxManager runs units of work in database transactions
type TxManager struct {
	db     *DB
	logger *zap.Logger
}

var _ repositories.TransactionManager = (*TxManager)(nil)

// NewTxManager creates a transaction manager over db
func NewTxManager(db *DB, logger *zap.Logger) *TxManager {
	return &TxManager{db: db, logger: logger}
}

// Begin starts a transaction. The returned Tx's Context carries it, so
// repositories called with that context join the transaction.
func (m *TxManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	sqlTx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	tx := &Tx{tx: sqlTx, logger: m.logger}
	tx.ctx = context.WithValue(ctx, txKey{}, tx)
	return tx, nil
}

// InTransaction commits when fn returns nil and rolls back otherwise,
// including when fn panics.
func (m *TxManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, err := m.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx.Context(), tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			m.logger.Error("failed to roll back transaction",
				zap.Error(rbErr),
				zap.NamedError("cause", err))
		}
		return err
	}

	return tx.Commit()
}

// Tx is a database transaction
type Tx struct {
	tx     *sql.Tx
	ctx    context.Context
	logger *zap.Logger
}

// Commit commits the transaction
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback aborts the transaction; rolling back a finished one is a no-op
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	t.logger.Debug("transaction rolled back")
	return nil
}

// Context returns a context carrying the transaction
func (t *Tx) Context() context.Context {
	return t.ctx
}

// TxFromContext returns the transaction carried by ctx, if any
func TxFromContext(ctx context.Context) (*Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*Tx)
	return tx, ok
}
