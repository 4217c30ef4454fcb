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

// UserStore keeps users in memory
type UserStore struct {
	mu     sync.RWMutex
	users  map[int64]models.User
	nextID int64
}

// NewUserStore creates an empty user store
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[int64]models.User)}
}

var _ repositories.UserRepository = (*UserStore)(nil)

// Create creates a new user and sets its ID
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == user.Username || u.Email == user.Email {
			return fmt.Errorf("user %s: %w", user.Username, repositories.ErrConflict)
		}
	}
	s.nextID++
	user.ID = s.nextID
	s.users[user.ID] = *user
	return nil
}

// GetByID retrieves a user by ID
func (s *UserStore) GetByID(ctx context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, repositories.ErrNotFound)
	}
	return &u, nil
}

// GetByUsername retrieves a user by username
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", username, repositories.ErrNotFound)
}

// SetEscalated writes the escalation flag and reports whether it changed
func (s *UserStore) SetEscalated(ctx context.Context, id int64, escalated bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return false, fmt.Errorf("user %d: %w", id, repositories.ErrNotFound)
	}
	if u.HasEscalated == escalated {
		return false, nil
	}
	u.HasEscalated = escalated
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return true, nil
}

// IsEscalated reads the escalation flag
func (s *UserStore) IsEscalated(ctx context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return false, fmt.Errorf("user %d: %w", id, repositories.ErrNotFound)
	}
	return u.HasEscalated, nil
}

// ListEscalated retrieves all users with the escalation flag set
func (s *UserStore) ListEscalated(ctx context.Context) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.User, 0)
	for _, u := range s.users {
		if u.HasEscalated {
			out = append(out, &u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// WithTx returns the store itself
func (s *UserStore) WithTx(tx repositories.Transaction) repositories.UserRepository {
	return s
}
