package models

import (
	"fmt"
	"time"
)

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusActive    OrderStatus = "active"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusCompleted OrderStatus = "completed"
)

// gatingTimeLayout matches the timestamp layout used in oracle prompts
const gatingTimeLayout = "2006-01-02 15:04:05"

// Order represents a customer order that gated actions may act on
type Order struct {
	ID           int64       `json:"id" db:"id"`
	UserID       int64       `json:"user_id" db:"user_id"`
	ProductName  string      `json:"product_name" db:"product_name"`
	ProductType  *string     `json:"product_type,omitempty" db:"product_type"`
	Status       OrderStatus `json:"status" db:"status"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	DispatchedAt *time.Time  `json:"dispatched_at,omitempty" db:"dispatched_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
	CancelledAt  *time.Time  `json:"cancelled_at,omitempty" db:"cancelled_at"`
}

// TableName returns the table name for the Order model
func (Order) TableName() string {
	return "orders"
}

// ContextKey disambiguates retries against this order
func (o *Order) ContextKey() string {
	return fmt.Sprintf("order_%d", o.ID)
}

// IsCancelled reports whether the order was already cancelled
func (o *Order) IsCancelled() bool {
	return o.Status == OrderStatusCancelled
}

// GatingView is the projection of an order handed to the decision oracle
func (o *Order) GatingView() map[string]interface{} {
	view := map[string]interface{}{
		"id":            o.ID,
		"product_name":  o.ProductName,
		"status":        string(o.Status),
		"created_at":    o.CreatedAt.UTC().Format(gatingTimeLayout),
		"product_type":  nil,
		"dispatched_at": nil,
		"cancelled_at":  nil,
	}
	if o.ProductType != nil {
		view["product_type"] = *o.ProductType
	}
	if o.DispatchedAt != nil {
		view["dispatched_at"] = o.DispatchedAt.UTC().Format(gatingTimeLayout)
	}
	if o.CancelledAt != nil {
		view["cancelled_at"] = o.CancelledAt.UTC().Format(gatingTimeLayout)
	}
	return view
}
