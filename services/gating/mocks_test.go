package gating

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/upb/action-gate/models"
)

// MockRuleStore is a mock implementation of RuleStore
type MockRuleStore struct {
	mock.Mock
}

func (m *MockRuleStore) RulesForAction(ctx context.Context, actionName string) ([]*models.Rule, error) {
	args := m.Called(ctx, actionName)
	if rules := args.Get(0); rules != nil {
		return rules.([]*models.Rule), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockRetryStore is a mock implementation of RetryStore
type MockRetryStore struct {
	mock.Mock
}

func (m *MockRetryStore) IncrementAndGet(ctx context.Context, userID int64, actionName, contextKey string) (int, error) {
	args := m.Called(ctx, userID, actionName, contextKey)
	return args.Int(0), args.Error(1)
}

// MockOracle is a mock implementation of DecisionOracle
type MockOracle struct {
	mock.Mock
}

func (m *MockOracle) Judge(ctx context.Context, payload GatingContext, ruleText string, asOf time.Time) (bool, error) {
	args := m.Called(ctx, payload, ruleText, asOf)
	return args.Bool(0), args.Error(1)
}

// MockUserStore is a mock implementation of UserStore
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) SetEscalated(ctx context.Context, userID int64, escalated bool) (bool, error) {
	args := m.Called(ctx, userID, escalated)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserStore) IsEscalated(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserStore) ListEscalated(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	if users := args.Get(0); users != nil {
		return users.([]*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyEscalation(ctx context.Context, event EscalationEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// recordingRecorder captures evaluations
type recordingRecorder struct {
	mu    sync.Mutex
	evals []Evaluation
}

func (r *recordingRecorder) RecordDecision(ctx context.Context, eval Evaluation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evals = append(r.evals, eval)
}

func (r *recordingRecorder) all() []Evaluation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Evaluation(nil), r.evals...)
}
