package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
	"github.com/upb/action-gate/services"
	"github.com/upb/action-gate/services/gating"
	"go.uber.org/zap"
)

// CancelOrderName is the action name cancellation rules are registered under
const CancelOrderName = "cancel_order"

// OrderStore is the order access cancel_order needs
type OrderStore interface {
	GetByID(ctx context.Context, id int64) (*models.Order, error)
	Cancel(ctx context.Context, id int64, at time.Time) error
}

// CancelOrder cancels one of the caller's orders
type CancelOrder struct {
	orders OrderStore
	logger *zap.Logger
	now    func() time.Time
}

// NewCancelOrder creates the cancel_order action
func NewCancelOrder(orders OrderStore, logger *zap.Logger) *CancelOrder {
	return &CancelOrder{orders: orders, logger: logger, now: time.Now}
}

// Name implements Action
func (a *CancelOrder) Name() string {
	return CancelOrderName
}

// Parameters implements Action
func (a *CancelOrder) Parameters() string {
	return `{
  "type": "object",
  "properties": {
    "order_id": {
      "description": "ID of the order to cancel",
      "type": ["integer", "string"],
      "pattern": "^[0-9]+$",
      "minimum": 1
    }
  },
  "required": ["order_id"],
  "additionalProperties": false
}`
}

// Prepare loads the order and checks it can be cancelled at all.
// Arguments: order_id.
func (a *CancelOrder) Prepare(ctx context.Context, inv Invocation) (*Target, error) {
	orderID, err := int64Argument(inv.Arguments, "order_id")
	if err != nil {
		return nil, err
	}

	order, err := a.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.NewDomainError(services.ErrorTypeNotFound, "Order not found.", err)
		}
		return nil, services.WrapStorage("failed to load order", err)
	}

	// Other users' orders are reported as missing.
	if order.UserID != inv.User.ID {
		return nil, services.NewDomainError(services.ErrorTypeNotFound, "Order not found.", nil)
	}
	if order.IsCancelled() {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "Order already cancelled.", nil)
	}

	return &Target{
		ContextKey: order.ContextKey(),
		Context: gating.GatingContext{
			"order": order.GatingView(),
			"user":  inv.User.GatingView(),
		},
		state: order,
	}, nil
}

// Perform marks the order cancelled
func (a *CancelOrder) Perform(ctx context.Context, inv Invocation, target *Target) (string, error) {
	order := target.state.(*models.Order)

	if err := a.orders.Cancel(ctx, order.ID, a.now().UTC()); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", services.NewDomainError(services.ErrorTypeValidation, "Order already cancelled.", err)
		}
		return "", services.WrapStorage("failed to cancel order", err)
	}

	a.logger.Info("order cancelled",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", inv.User.ID))
	return fmt.Sprintf("Order %d cancelled successfully.", order.ID), nil
}
