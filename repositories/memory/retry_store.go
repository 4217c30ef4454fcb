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

type retryEntry struct {
	mu     sync.Mutex
	record models.RetryRecord
}

// RetryStore keeps retry counters in memory.
// Each key has its own mutex; the map lock is held only to find or create an entry.
type RetryStore struct {
	mu      sync.Mutex
	entries map[models.RetryKey]*retryEntry
	now     func() time.Time
}

// NewRetryStore creates an empty retry store
func NewRetryStore() *RetryStore {
	return &RetryStore{
		entries: make(map[models.RetryKey]*retryEntry),
		now:     time.Now,
	}
}

var _ repositories.RetryRepository = (*RetryStore)(nil)

func (s *RetryStore) entry(key models.RetryKey) *retryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &retryEntry{record: models.RetryRecord{
			UserID:     key.UserID,
			ActionName: key.ActionName,
			ContextKey: key.ContextKey,
		}}
		s.entries[key] = e
	}
	return e
}

// IncrementAndGet increments the counter for the key and returns the new value
func (s *RetryStore) IncrementAndGet(ctx context.Context, userID int64, actionName, contextKey string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	e := s.entry(models.RetryKey{UserID: userID, ActionName: actionName, ContextKey: contextKey})

	e.mu.Lock()
	defer e.mu.Unlock()
	e.record.RetryCount++
	e.record.LastAttemptAt = s.now().UTC()
	return e.record.RetryCount, nil
}

// Get retrieves a counter record
func (s *RetryStore) Get(ctx context.Context, key models.RetryKey) (*models.RetryRecord, error) {
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("retry counter %s: %w", key, repositories.ErrNotFound)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.record
	return &rec, nil
}

// ListByUser retrieves all counters for a user, most recent attempt first
func (s *RetryStore) ListByUser(ctx context.Context, userID int64) ([]*models.RetryRecord, error) {
	s.mu.Lock()
	var matched []*retryEntry
	for key, e := range s.entries {
		if key.UserID == userID {
			matched = append(matched, e)
		}
	}
	s.mu.Unlock()

	records := make([]*models.RetryRecord, 0, len(matched))
	for _, e := range matched {
		e.mu.Lock()
		rec := e.record
		e.mu.Unlock()
		records = append(records, &rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].LastAttemptAt.After(records[j].LastAttemptAt)
	})
	return records, nil
}
