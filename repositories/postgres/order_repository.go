package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
	"go.uber.org/zap"
)

const orderColumns = `id, user_id, product_name, product_type, status, created_at, dispatched_at, completed_at, cancelled_at`

// OrderRepository implements the repositories.OrderRepository interface
type OrderRepository struct {
	conn
	logger *zap.Logger
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *DB, logger *zap.Logger) repositories.OrderRepository {
	return &OrderRepository{
		conn:   conn{db: db},
		logger: logger,
	}
}

// Create creates a new order and sets its ID
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (user_id, product_name, product_type, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	q := r.querier(ctx)
	err := q.QueryRowContext(ctx, query,
		order.UserID,
		order.ProductName,
		order.ProductType,
		order.Status,
		order.CreatedAt,
	).Scan(&order.ID)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	r.logger.Debug("order created", zap.Int64("id", order.ID), zap.Int64("user_id", order.UserID))
	return nil
}

// GetByID retrieves an order by ID
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	q := r.querier(ctx)
	order, err := scanOrder(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("order %d: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return order, nil
}

// ListByUser retrieves a user's orders, newest first
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64) ([]*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	q := r.querier(ctx)
	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*models.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order rows: %w", err)
	}

	return orders, nil
}

// Cancel marks an active order as cancelled
func (r *OrderRepository) Cancel(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE orders
		SET status = 'cancelled',
		    cancelled_at = $2
		WHERE id = $1 AND status <> 'cancelled'
	`

	q := r.querier(ctx)
	result, err := q.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to cancel order: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("order %d is missing or already cancelled: %w", id, repositories.ErrNotFound)
	}

	r.logger.Debug("order cancelled", zap.Int64("id", id))
	return nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *OrderRepository) WithTx(tx repositories.Transaction) repositories.OrderRepository {
	return &OrderRepository{
		conn:   r.conn.bind(tx),
		logger: r.logger,
	}
}

func scanOrder(row rowScanner) (*models.Order, error) {
	order := &models.Order{}
	var productType sql.NullString
	var dispatchedAt, completedAt, cancelledAt sql.NullTime

	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.ProductName,
		&productType,
		&order.Status,
		&order.CreatedAt,
		&dispatchedAt,
		&completedAt,
		&cancelledAt,
	)
	if err != nil {
		return nil, err
	}

	if productType.Valid {
		order.ProductType = &productType.String
	}
	if dispatchedAt.Valid {
		order.DispatchedAt = &dispatchedAt.Time
	}
	if completedAt.Valid {
		order.CompletedAt = &completedAt.Time
	}
	if cancelledAt.Valid {
		order.CancelledAt = &cancelledAt.Time
	}
	return order, nil
}
