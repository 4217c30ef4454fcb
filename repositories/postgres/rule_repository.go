package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
	"go.uber.org/zap"
)

const ruleColumns = `id, action_name, condition, deny_message, escalate_after_retries, created_by, created_at, updated_at`

// RuleRepository implements the repositories.RuleRepository interface
type RuleRepository struct {
	conn
	logger *zap.Logger
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *DB, logger *zap.Logger) repositories.RuleRepository {
	return &RuleRepository{
		conn:   conn{db: db},
		logger: logger,
	}
}

// Create persists a new rule
func (r *RuleRepository) Create(ctx context.Context, rule *models.Rule) error {
	query := `
		INSERT INTO rules (` + ruleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	q := r.querier(ctx)
	_, err := q.ExecContext(ctx, query,
		rule.ID,
		rule.ActionName,
		rule.Condition,
		rule.DenyMessage,
		rule.EscalateAfterRetries,
		rule.CreatedBy,
		rule.CreatedAt,
		rule.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("rule %s: %w", rule.ID, repositories.ErrConflict)
		}
		return fmt.Errorf("failed to create rule: %w", err)
	}

	r.logger.Debug("rule created",
		zap.String("id", rule.ID.String()),
		zap.String("action", rule.ActionName))
	return nil
}

// GetByID retrieves a rule by ID
func (r *RuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE id = $1`

	q := r.querier(ctx)
	rule, err := scanRule(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("rule %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	return rule, nil
}

// RulesForAction retrieves all rules for an action, newest first.
// Ties on created_at are broken by id so the order is stable.
func (r *RuleRepository) RulesForAction(ctx context.Context, actionName string) ([]*models.Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM rules
		WHERE action_name = $1
		ORDER BY created_at DESC, id DESC
	`

	return r.queryRules(ctx, query, actionName)
}

// List retrieves all rules, newest first, with pagination
func (r *RuleRepository) List(ctx context.Context, limit, offset int) ([]*models.Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM rules
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`

	return r.queryRules(ctx, query, limit, offset)
}

// Delete deletes a rule
func (r *RuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM rules WHERE id = $1`

	q := r.querier(ctx)
	result, err := q.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("rule %s: %w", id, repositories.ErrNotFound)
	}

	r.logger.Debug("rule deleted", zap.String("id", id.String()))
	return nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *RuleRepository) WithTx(tx repositories.Transaction) repositories.RuleRepository {
	return &RuleRepository{
		conn:   r.conn.bind(tx),
		logger: r.logger,
	}
}

func (r *RuleRepository) queryRules(ctx context.Context, query string, args ...interface{}) ([]*models.Rule, error) {
	q := r.querier(ctx)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	rules := make([]*models.Rule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule rows: %w", err)
	}

	return rules, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*models.Rule, error) {
	rule := &models.Rule{}
	var denyMessage sql.NullString
	var createdBy sql.NullInt64

	err := row.Scan(
		&rule.ID,
		&rule.ActionName,
		&rule.Condition,
		&denyMessage,
		&rule.EscalateAfterRetries,
		&createdBy,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if denyMessage.Valid {
		rule.DenyMessage = &denyMessage.String
	}
	if createdBy.Valid {
		rule.CreatedBy = &createdBy.Int64
	}
	return rule, nil
}
