package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
	"go.uber.org/zap"
)

const (
	auditSelect = `SELECT id, user_id, action, resource_type, resource_id, details, request_id, timestamp,
	action_name, context_key, retry_count, latency_ms, error_message FROM audit_logs`

	auditInsert = `INSERT INTO audit_logs (id, user_id, action, resource_type, resource_id, details,
	request_id, timestamp, action_name, context_key, retry_count, latency_ms, error_message)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
)

// AuditRepository stores gate audit entries. Entries are append-only.
type AuditRepository struct {
	conn
	logger *zap.Logger
}

// NewAuditRepository creates a PostgreSQL audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{conn: conn{db: db}, logger: logger}
}

// Insert persists an audit entry
func (r *AuditRepository) Insert(ctx context.Context, entry *models.AuditLog) error {
	var details interface{}
	if len(entry.Details) > 0 {
		details = []byte(entry.Details)
	}

	_, err := r.querier(ctx).ExecContext(ctx, auditInsert,
		entry.ID, entry.UserID, entry.Action, entry.ResourceType, entry.ResourceID, details,
		entry.RequestID, entry.Timestamp, entry.ActionName, entry.ContextKey, entry.RetryCount,
		entry.LatencyMs, entry.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	r.logger.Debug("audit log inserted", zap.String("id", entry.ID.String()), zap.String("action", string(entry.Action)))
	return nil
}

// GetByID retrieves an audit entry
func (r *AuditRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error) {
	entry, err := scanAuditLog(r.querier(ctx).QueryRowContext(ctx, auditSelect+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("audit log %s: %w", id, repositories.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit log: %w", err)
	}
	return entry, nil
}

// GetByUserID lists a user's audit entries, newest first
func (r *AuditRepository) GetByUserID(ctx context.Context, userID int64, limit, offset int) ([]*models.AuditLog, error) {
	return r.page(ctx, `user_id = $1`, limit, offset, userID)
}

// GetByAction lists audit entries of one action, newest first
func (r *AuditRepository) GetByAction(ctx context.Context, action models.AuditAction, limit, offset int) ([]*models.AuditLog, error) {
	return r.page(ctx, `action = $1`, limit, offset, action)
}

// GetByDateRange lists entries in [start, end)
func (r *AuditRepository) GetByDateRange(ctx context.Context, start, end time.Time, limit, offset int) ([]*models.AuditLog, error) {
	return r.page(ctx, `timestamp >= $1 AND timestamp < $2`, limit, offset, start, end)
}

// GetByRequestID returns every entry one request produced, in order
func (r *AuditRepository) GetByRequestID(ctx context.Context, requestID string) ([]*models.AuditLog, error) {
	return r.list(ctx, auditSelect+` WHERE request_id = $1 ORDER BY timestamp ASC`, requestID)
}

// WithTx returns a repository bound to tx
func (r *AuditRepository) WithTx(tx repositories.Transaction) repositories.AuditRepository {
	return &AuditRepository{conn: r.conn.bind(tx), logger: r.logger}
}

// page lists entries matching where, newest first. where uses placeholders
// $1..$n for args; limit and offset take the next two.
func (r *AuditRepository) page(ctx context.Context, where string, limit, offset int, args ...interface{}) ([]*models.AuditLog, error) {
	n := len(args)
	query := fmt.Sprintf("%s WHERE %s ORDER BY timestamp DESC LIMIT $%d OFFSET $%d", auditSelect, where, n+1, n+2)
	return r.list(ctx, query, append(args, limit, offset)...)
}

func (r *AuditRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.AuditLog, error) {
	rows, err := r.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.AuditLog, 0)
	for rows.Next() {
		entry, err := scanAuditLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit logs: %w", err)
	}
	return entries, nil
}

func scanAuditLog(row rowScanner) (*models.AuditLog, error) {
	var (
		entry                        models.AuditLog
		userID, retries, latency     sql.NullInt64
		resourceID, requestID        sql.NullString
		actionName, contextKey, fail sql.NullString
		details                      []byte
	)
	err := row.Scan(&entry.ID, &userID, &entry.Action, &entry.ResourceType, &resourceID, &details,
		&requestID, &entry.Timestamp, &actionName, &contextKey, &retries, &latency, &fail)
	if err != nil {
		return nil, err
	}

	entry.Details = details
	entry.ResourceID = resourceID.String
	entry.RequestID = requestID.String
	entry.UserID = nullableInt64(userID)
	entry.RetryCount = nullableInt(retries)
	entry.LatencyMs = nullableInt(latency)
	entry.ActionName = nullableString(actionName)
	entry.ContextKey = nullableString(contextKey)
	entry.ErrorMessage = nullableString(fail)
	return &entry, nil
}

func nullableInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}
