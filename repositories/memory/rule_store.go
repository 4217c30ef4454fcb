package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
)

// RuleStore keeps gating rules in memory
type RuleStore struct {
	mu    sync.RWMutex
	rules map[uuid.UUID]models.Rule
	seq   map[uuid.UUID]int64
	next  int64
}

// NewRuleStore creates an empty rule store
func NewRuleStore() *RuleStore {
	return &RuleStore{
		rules: make(map[uuid.UUID]models.Rule),
		seq:   make(map[uuid.UUID]int64),
	}
}

var _ repositories.RuleRepository = (*RuleStore)(nil)

// Create persists a new rule
func (s *RuleStore) Create(ctx context.Context, rule *models.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[rule.ID]; ok {
		return fmt.Errorf("rule %s: %w", rule.ID, repositories.ErrConflict)
	}
	s.next++
	s.rules[rule.ID] = *rule
	s.seq[rule.ID] = s.next
	return nil
}

// GetByID retrieves a rule by ID
func (s *RuleStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[id]
	if !ok {
		return nil, fmt.Errorf("rule %s: %w", id, repositories.ErrNotFound)
	}
	return &rule, nil
}

// RulesForAction retrieves all rules for an action, newest first
func (s *RuleStore) RulesForAction(ctx context.Context, actionName string) ([]*models.Rule, error) {
	return s.collect(func(r *models.Rule) bool { return r.ActionName == actionName }, 0, 0), nil
}

// List retrieves all rules, newest first, with pagination. limit <= 0 means no limit.
func (s *RuleStore) List(ctx context.Context, limit, offset int) ([]*models.Rule, error) {
	return s.collect(func(*models.Rule) bool { return true }, limit, offset), nil
}

// Delete deletes a rule
func (s *RuleStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return fmt.Errorf("rule %s: %w", id, repositories.ErrNotFound)
	}
	delete(s.rules, id)
	delete(s.seq, id)
	return nil
}

// WithTx returns the store itself; memory writes are immediately visible
func (s *RuleStore) WithTx(tx repositories.Transaction) repositories.RuleRepository {
	return s
}

// collect returns matching rules ordered by created_at desc, then insertion order desc
func (s *RuleStore) collect(match func(*models.Rule) bool, limit, offset int) []*models.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Rule, 0)
	for id := range s.rules {
		rule := s.rules[id]
		if match(&rule) {
			out = append(out, &rule)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return s.seq[out[i].ID] > s.seq[out[j].ID]
	})

	if offset > 0 {
		if offset >= len(out) {
			return make([]*models.Rule, 0)
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}
