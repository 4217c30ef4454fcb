package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
)

// AuditStore keeps audit logs in memory
type AuditStore struct {
	mu   sync.RWMutex
	logs []models.AuditLog
}

// NewAuditStore creates an empty audit store
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

var _ repositories.AuditRepository = (*AuditStore)(nil)

// Insert inserts a new audit log entry
func (s *AuditStore) Insert(ctx context.Context, log *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, *log)
	return nil
}

// GetByID retrieves an audit log by ID
func (s *AuditStore) GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.logs {
		if l.ID == id {
			return &l, nil
		}
	}
	return nil, fmt.Errorf("audit log %s: %w", id, repositories.ErrNotFound)
}

// GetByUserID retrieves audit logs for a user with pagination
func (s *AuditStore) GetByUserID(ctx context.Context, userID int64, limit, offset int) ([]*models.AuditLog, error) {
	return s.filter(func(l *models.AuditLog) bool {
		return l.UserID != nil && *l.UserID == userID
	}, limit, offset), nil
}

// GetByAction retrieves audit logs by action type
func (s *AuditStore) GetByAction(ctx context.Context, action models.AuditAction, limit, offset int) ([]*models.AuditLog, error) {
	return s.filter(func(l *models.AuditLog) bool { return l.Action == action }, limit, offset), nil
}

// GetByDateRange retrieves audit logs within a date range
func (s *AuditStore) GetByDateRange(ctx context.Context, start, end time.Time, limit, offset int) ([]*models.AuditLog, error) {
	return s.filter(func(l *models.AuditLog) bool {
		return !l.Timestamp.Before(start) && l.Timestamp.Before(end)
	}, limit, offset), nil
}

// GetByRequestID retrieves audit logs by request ID, oldest first
func (s *AuditStore) GetByRequestID(ctx context.Context, requestID string) ([]*models.AuditLog, error) {
	logs := s.filter(func(l *models.AuditLog) bool { return l.RequestID == requestID }, 0, 0)
	sort.SliceStable(logs, func(i, j int) bool { return logs[i].Timestamp.Before(logs[j].Timestamp) })
	return logs, nil
}

// WithTx returns the store itself
func (s *AuditStore) WithTx(tx repositories.Transaction) repositories.AuditRepository {
	return s
}

// filter returns matching logs newest first. limit <= 0 means no limit.
func (s *AuditStore) filter(match func(*models.AuditLog) bool, limit, offset int) []*models.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.AuditLog, 0)
	for i := len(s.logs) - 1; i >= 0; i-- {
		l := s.logs[i]
		if match(&l) {
			out = append(out, &l)
		}
	}

	if offset > 0 {
		if offset >= len(out) {
			return make([]*models.AuditLog, 0)
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}
