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

const userSelect = `SELECT id, username, email, tier, role, has_escalated, created_at, updated_at FROM users`

// setEscalatedSQL locks the row, flips the flag only when it differs, and
// reports both whether the user exists and whether the flag changed.
const setEscalatedSQL = `WITH target AS (
	SELECT id, has_escalated FROM users WHERE id = $1 FOR UPDATE
), flipped AS (
	UPDATE users u SET has_escalated = $2, updated_at = NOW()
	FROM target WHERE u.id = target.id AND target.has_escalated <> $2
	RETURNING u.id
)
SELECT EXISTS (SELECT 1 FROM target), EXISTS (SELECT 1 FROM flipped)`

// UserRepository implements repositories.UserRepository over PostgreSQL
type UserRepository struct {
	conn
	logger *zap.Logger
}

// NewUserRepository creates a PostgreSQL user repository
func NewUserRepository(db *DB, logger *zap.Logger) repositories.UserRepository {
	return &UserRepository{conn: conn{db: db}, logger: logger}
}

// Create inserts user and sets its ID. Usernames and emails are unique.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	err := r.querier(ctx).QueryRowContext(ctx,
		`INSERT INTO users (username, email, tier, role, has_escalated, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		user.Username, user.Email, user.Tier, user.Role, user.HasEscalated, user.CreatedAt, user.UpdatedAt,
	).Scan(&user.ID)
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("user %s: %w", user.Username, repositories.ErrConflict)
	case err != nil:
		return fmt.Errorf("failed to create user: %w", err)
	}

	r.logger.Debug("user created", zap.Int64("id", user.ID), zap.String("username", user.Username))
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.one(ctx, fmt.Sprintf("user %d", id), `id = $1`, id)
}

// GetByUsername retrieves a user by username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.one(ctx, fmt.Sprintf("user %q", username), `username = $1`, username)
}

// SetEscalated writes the escalation flag and reports whether it changed
func (r *UserRepository) SetEscalated(ctx context.Context, id int64, escalated bool) (bool, error) {
	var exists, changed bool
	if err := r.querier(ctx).QueryRowContext(ctx, setEscalatedSQL, id, escalated).Scan(&exists, &changed); err != nil {
		return false, fmt.Errorf("failed to update escalation flag: %w", err)
	}
	if !exists {
		return false, fmt.Errorf("user %d: %w", id, repositories.ErrNotFound)
	}
	if changed {
		r.logger.Debug("escalation flag updated", zap.Int64("id", id), zap.Bool("has_escalated", escalated))
	}
	return changed, nil
}

// IsEscalated reports whether the user has been handed to a human agent
func (r *UserRepository) IsEscalated(ctx context.Context, id int64) (bool, error) {
	var escalated bool
	err := r.querier(ctx).QueryRowContext(ctx, `SELECT has_escalated FROM users WHERE id = $1`, id).Scan(&escalated)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("user %d: %w", id, repositories.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to read escalation flag: %w", err)
	}
	return escalated, nil
}

// ListEscalated returns escalated users, most recently changed first
func (r *UserRepository) ListEscalated(ctx context.Context) ([]*models.User, error) {
	rows, err := r.querier(ctx).QueryContext(ctx, userSelect+` WHERE has_escalated ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read users: %w", err)
	}
	return users, nil
}

// WithTx returns a repository bound to tx
func (r *UserRepository) WithTx(tx repositories.Transaction) repositories.UserRepository {
	return &UserRepository{conn: r.conn.bind(tx), logger: r.logger}
}

func (r *UserRepository) one(ctx context.Context, label, where string, arg interface{}) (*models.User, error) {
	user, err := scanUser(r.querier(ctx).QueryRowContext(ctx, userSelect+` WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", label, repositories.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Tier, &u.Role, &u.HasEscalated, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
