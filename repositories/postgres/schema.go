package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

const auditLogsDDL = `CREATE TABLE IF NOT EXISTS audit_logs (
	id UUID PRIMARY KEY,
	user_id BIGINT,
	action VARCHAR(100) NOT NULL,
	resource_type VARCHAR(100) NOT NULL,
	resource_id VARCHAR(255),
	details JSONB,
	request_id VARCHAR(255),
	timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	action_name VARCHAR(100),
	context_key VARCHAR(255),
	retry_count INTEGER,
	latency_ms INTEGER,
	error_message TEXT
)`

// auditSchema can live in a database of its own, so it has no foreign keys.
var auditSchema = []string{
	auditLogsDDL,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_request_id ON audit_logs(request_id)`,
}

var gateSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	username VARCHAR(100) NOT NULL UNIQUE,
	email VARCHAR(255) NOT NULL UNIQUE,
	tier VARCHAR(50) NOT NULL DEFAULT 'standard',
	role VARCHAR(50) NOT NULL DEFAULT 'user',
	has_escalated BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE TABLE IF NOT EXISTS orders (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	product_name VARCHAR(255) NOT NULL,
	product_type VARCHAR(100),
	status VARCHAR(50) NOT NULL DEFAULT 'active',
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	dispatched_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	cancelled_at TIMESTAMPTZ
)`,
	`CREATE TABLE IF NOT EXISTS rules (
	id UUID PRIMARY KEY,
	action_name VARCHAR(100) NOT NULL,
	condition TEXT NOT NULL,
	deny_message TEXT,
	escalate_after_retries INTEGER NOT NULL DEFAULT 2 CHECK (escalate_after_retries >= 0),
	created_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	// one counter per (user, action, context); rows are never deleted
	`CREATE TABLE IF NOT EXISTS action_retries (
	user_id BIGINT NOT NULL,
	action_name VARCHAR(100) NOT NULL,
	context_key VARCHAR(255) NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	last_attempt_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, action_name, context_key)
)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_users_has_escalated ON users(has_escalated) WHERE has_escalated`,
	`CREATE INDEX IF NOT EXISTS idx_rules_action_created ON rules(action_name, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_action_retries_user_id ON action_retries(user_id)`,
}

// Migrate applies statements in order inside one transaction. Every
// statement is idempotent, so Migrate is safe to run on each start.
func (db *DB) Migrate(ctx context.Context, name string, statements []string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate %s: %w", name, err)
	}
	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate %s: statement %d: %w", name, i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate %s: %w", name, err)
	}
	db.logger.Info("schema ready", zap.String("schema", name), zap.Int("statements", len(statements)))
	return nil
}
