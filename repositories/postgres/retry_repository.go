package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
	"go.uber.org/zap"
)

// RetryRepository implements the repositories.RetryRepository interface.
// Increments are a single upsert statement so concurrent callers on the same
// key serialize on the row lock and never observe the same count.
type RetryRepository struct {
	conn
	logger *zap.Logger
}

// NewRetryRepository creates a new retry repository
func NewRetryRepository(db *DB, logger *zap.Logger) repositories.RetryRepository {
	return &RetryRepository{
		conn:   conn{db: db},
		logger: logger,
	}
}

// IncrementAndGet atomically increments the counter for the key and returns the new value
func (r *RetryRepository) IncrementAndGet(ctx context.Context, userID int64, actionName, contextKey string) (int, error) {
	query := `
		INSERT INTO action_retries (user_id, action_name, context_key, retry_count, last_attempt_at)
		VALUES ($1, $2, $3, 1, NOW())
		ON CONFLICT (user_id, action_name, context_key)
		DO UPDATE SET retry_count = action_retries.retry_count + 1,
		              last_attempt_at = NOW()
		RETURNING retry_count
	`

	q := r.querier(ctx)
	var count int
	if err := q.QueryRowContext(ctx, query, userID, actionName, contextKey).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to increment retry counter: %w", err)
	}

	r.logger.Debug("retry counter incremented",
		zap.Int64("user_id", userID),
		zap.String("action", actionName),
		zap.String("context_key", contextKey),
		zap.Int("retry_count", count))
	return count, nil
}

// Get retrieves a counter record
func (r *RetryRepository) Get(ctx context.Context, key models.RetryKey) (*models.RetryRecord, error) {
	query := `
		SELECT user_id, action_name, context_key, retry_count, last_attempt_at
		FROM action_retries
		WHERE user_id = $1 AND action_name = $2 AND context_key = $3
	`

	q := r.querier(ctx)
	rec := &models.RetryRecord{}
	err := q.QueryRowContext(ctx, query, key.UserID, key.ActionName, key.ContextKey).Scan(
		&rec.UserID,
		&rec.ActionName,
		&rec.ContextKey,
		&rec.RetryCount,
		&rec.LastAttemptAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("retry counter %s: %w", key, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get retry counter: %w", err)
	}

	return rec, nil
}

// ListByUser retrieves all counters for a user
func (r *RetryRepository) ListByUser(ctx context.Context, userID int64) ([]*models.RetryRecord, error) {
	query := `
		SELECT user_id, action_name, context_key, retry_count, last_attempt_at
		FROM action_retries
		WHERE user_id = $1
		ORDER BY last_attempt_at DESC
	`

	q := r.querier(ctx)
	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query retry counters: %w", err)
	}
	defer rows.Close()

	records := make([]*models.RetryRecord, 0)
	for rows.Next() {
		rec := &models.RetryRecord{}
		if err := rows.Scan(&rec.UserID, &rec.ActionName, &rec.ContextKey, &rec.RetryCount, &rec.LastAttemptAt); err != nil {
			return nil, fmt.Errorf("failed to scan retry counter: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating retry rows: %w", err)
	}

	return records, nil
}
