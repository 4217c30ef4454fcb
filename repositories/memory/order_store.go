package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
)

// OrderStore keeps orders in memory
type OrderStore struct {
	mu     sync.RWMutex
	orders map[int64]models.Order
	nextID int64
}

// NewOrderStore creates an empty order store
func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[int64]models.Order)}
}

var _ repositories.OrderRepository = (*OrderStore)(nil)

// Create creates a new order and sets its ID
func (s *OrderStore) Create(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	order.ID = s.nextID
	s.orders[order.ID] = *order
	return nil
}

// GetByID retrieves an order by ID
func (s *OrderStore) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, repositories.ErrNotFound)
	}
	return &o, nil
}

// ListByUser retrieves a user's orders, newest first
func (s *OrderStore) ListByUser(ctx context.Context, userID int64) ([]*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Order, 0)
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, &o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Cancel marks an active order as cancelled
func (s *OrderStore) Cancel(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok || o.IsCancelled() {
		return fmt.Errorf("order %d is missing or already cancelled: %w", id, repositories.ErrNotFound)
	}
	o.Status = models.OrderStatusCancelled
	o.CancelledAt = &at
	s.orders[id] = o
	return nil
}

// WithTx returns the store itself
func (s *OrderStore) WithTx(tx repositories.Transaction) repositories.OrderRepository {
	return s
}
