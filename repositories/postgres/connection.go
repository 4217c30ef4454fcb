package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/upb/action-gate/config"
	"go.uber.org/zap"
)

const (
	connectTimeout = 5 * time.Second
	probeTimeout   = 2 * time.Second
)

// DB is a pooled connection to one PostgreSQL database
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// Open opens a pool sized by cfg and verifies it is reachable
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	pool, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.LogString(), err)
	}
	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.LogString(), err)
	}

	logger.Info("database connection established", zap.String("connection", cfg.LogString()))
	return &DB{DB: pool, logger: logger}, nil
}

// Close closes the connection pool
func (db *DB) Close() error {
	db.logger.Debug("closing database pool", zap.Int("open_connections", db.DB.Stats().OpenConnections))
	return db.DB.Close()
}

// HealthCheck runs a trivial query within a short deadline
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
