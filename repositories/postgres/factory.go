package postgres

import (
	"context"
	"errors"

	"github.com/upb/action-gate/config"
	"github.com/upb/action-gate/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory owns the gate's pools. Audit logs go to a pool of their
// own when config.AuditDatabase is set.
type RepositoryFactory struct {
	db      *DB
	auditDB *DB
	logger  *zap.Logger
}

// NewRepositoryFactory opens the gate database and, when configured, a separate audit database
func NewRepositoryFactory(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	f := &RepositoryFactory{db: db, auditDB: db, logger: logger}

	if cfg.AuditDatabase != nil {
		auditDB, err := Open(ctx, *cfg.AuditDatabase, logger.With(zap.String("pool", "audit")))
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		f.auditDB = auditDB
	}
	return f, nil
}

// InitSchema creates missing tables and indexes in every pool
func (f *RepositoryFactory) InitSchema(ctx context.Context) error {
	if err := f.db.Migrate(ctx, "gate", gateSchema); err != nil {
		return err
	}
	return f.auditDB.Migrate(ctx, "audit", auditSchema)
}

// NewRepositories returns every repository bound to the factory pools
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Rules:     NewRuleRepository(f.db, f.logger),
		Retries:   NewRetryRepository(f.db, f.logger),
		Users:     NewUserRepository(f.db, f.logger),
		Orders:    NewOrderRepository(f.db, f.logger),
		AuditLogs: NewAuditRepository(f.auditDB, f.logger),
	}
}

// GetTransactionManager spans the main pool only; audit writes are never
// part of a gate transaction.
func (f *RepositoryFactory) GetTransactionManager() repositories.TransactionManager {
	return NewTxManager(f.db, f.logger)
}

// GetDB returns the gate database
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// Close closes every pool the factory opened
func (f *RepositoryFactory) Close() error {
	var errs []error
	if f.auditDB != f.db {
		errs = append(errs, f.auditDB.Close())
	}
	errs = append(errs, f.db.Close())
	return errors.Join(errs...)
}
