package gating

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
	"github.com/upb/action-gate/repositories/memory"
	"github.com/upb/action-gate/services"
	"go.uber.org/zap/zaptest"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type engineFixture struct {
	rules    *memory.RuleStore
	retries  *memory.RetryStore
	users    *memory.UserStore
	oracle   *MockOracle
	recorder *recordingRecorder
	engine   *Engine
	user     *models.User
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	f := &engineFixture{
		rules:    memory.NewRuleStore(),
		retries:  memory.NewRetryStore(),
		users:    memory.NewUserStore(),
		oracle:   new(MockOracle),
		recorder: &recordingRecorder{},
	}
	f.user = models.NewUser("meera", "meera@example.com", models.RoleUser)
	require.NoError(t, f.users.Create(context.Background(), f.user))

	machine := NewEscalationStateMachine(f.users, nil, logger)
	f.engine = NewEngine(f.rules, f.retries, f.oracle, machine, logger,
		WithClock(func() time.Time { return fixedNow }),
		WithRecorder(f.recorder))
	return f
}

func (f *engineFixture) addRule(t *testing.T, action, condition string, threshold int, createdAt time.Time) *models.Rule {
	t.Helper()
	rule := models.NewRule(action, condition, threshold)
	rule.CreatedAt = createdAt
	require.NoError(t, f.rules.Create(context.Background(), rule))
	return rule
}

func (f *engineFixture) escalated(t *testing.T) bool {
	t.Helper()
	escalated, err := f.users.IsEscalated(context.Background(), f.user.ID)
	require.NoError(t, err)
	return escalated
}

func TestEngine_NoRulesAllowsWithoutCounting(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	for i := 0; i < 3; i++ {
		decision, err := f.engine.Evaluate(ctx, f.user.ID, "get_weather", "", GatingContext{"city": "Pune"})
		require.NoError(t, err)
		assert.True(t, decision.IsAllowed())
		assert.Equal(t, 0, decision.RetryCount)
	}

	_, err := f.retries.Get(ctx, models.RetryKey{UserID: f.user.ID, ActionName: "get_weather"})
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	f.oracle.AssertNotCalled(t, "Judge", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_NoRulesTouchesOnlyTheRuleStore(t *testing.T) {
	rules := new(MockRuleStore)
	retries := new(MockRetryStore)
	oracle := new(MockOracle)
	users := new(MockUserStore)
	logger := zaptest.NewLogger(t)

	rules.On("RulesForAction", mock.Anything, "get_weather").Return([]*models.Rule{}, nil)

	engine := NewEngine(rules, retries, oracle, NewEscalationStateMachine(users, nil, logger), logger)
	decision, err := engine.Evaluate(context.Background(), 1, "get_weather", "", nil)

	require.NoError(t, err)
	assert.Equal(t, OutcomeAllowed, decision.Outcome)
	rules.AssertExpectations(t)
	retries.AssertNotCalled(t, "IncrementAndGet", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	users.AssertNotCalled(t, "SetEscalated", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_OracleApproves(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.addRule(t, "cancel_order", "order is less than 24 hours old", 2, fixedNow)

	gctx := GatingContext{"order": map[string]interface{}{"id": 1}}
	f.oracle.On("Judge", mock.Anything, gctx, "> order is less than 24 hours old", fixedNow).Return(true, nil)

	decision, err := f.engine.Evaluate(ctx, f.user.ID, "cancel_order", "order_1", gctx)
	require.NoError(t, err)
	assert.True(t, decision.IsAllowed())
	assert.Equal(t, 1, decision.RetryCount)
	assert.False(t, f.escalated(t))
	f.oracle.AssertExpectations(t)
}

func TestEngine_ScenarioThresholdTwo(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.addRule(t, "cancel_order", "order is not dispatched", 2, fixedNow)
	f.oracle.On("Judge", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)

	first, err := f.engine.Evaluate(ctx, f.user.ID, "cancel_order", "order_1", nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeniedRetryable, first.Outcome)
	assert.Equal(t, 1, first.RetryCount)
	assert.Equal(t, DefaultDenyMessage, first.Message)
	assert.Equal(t, ReasonRuleDenied, first.Reason)
	assert.False(t, f.escalated(t))

	second, err := f.engine.Evaluate(ctx, f.user.ID, "cancel_order", "order_1", nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeniedEscalate, second.Outcome)
	assert.Equal(t, EscalationMessage, second.Message)
	assert.True(t, f.escalated(t))

	third, err := f.engine.Evaluate(ctx, f.user.ID, "cancel_order", "order_1", nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeniedEscalate, third.Outcome)
	assert.Equal(t, 3, third.RetryCount)
	assert.True(t, f.escalated(t))
}

func TestEngine_EscalatesExactlyOnKthDenial(t *testing.T) {
	for _, k := range []int{1, 2, 3, 5} {
		t.Run("", func(t *testing.T) {
			ctx := context.Background()
			f := newEngineFixture(t)
			f.addRule(t, "cancel_order", "never", k, fixedNow)
			f.oracle.On("Judge", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)

			for call := 1; call <= k+2; call++ {
				decision, err := f.engine.Evaluate(ctx, f.user.ID, "cancel_order", "order_1", nil)
				require.NoError(t, err)
				assert.False(t, decision.IsAllowed())

				if call < k {
					assert.Equal(t, OutcomeDeniedRetryable, decision.Outcome, "call %d of k=%d", call, k)
					assert.False(t, f.escalated(t), "call %d of k=%d", call, k)
				} else {
					assert.Equal(t, OutcomeDeniedEscalate, decision.Outcome, "call %d of k=%d", call, k)
					assert.True(t, f.escalated(t), "call %d of k=%d", call, k)
				}
			}
		})
	}
}

func TestEngine_ContextKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.addRule(t, "cancel_order", "never", 10, fixedNow)
	f.oracle.On("Judge", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)

	for i := 0; i < 3; i++ {
		_, err := f.engine.Evaluate(ctx, f.user.ID, "cancel_order", "order_1", nil)
		require.NoError(t, err)
	}
	decision, err := f.engine.Evaluate(ctx, f.user.ID, "cancel_order", "order_2", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, decision.RetryCount)

	rec, err := f.retries.Get(ctx, models.RetryKey{UserID: f.user.ID, ActionName: "cancel_order", ContextKey: "order_1"})
	require.NoError(t, err)
	assert.Equal(t, 3, rec.RetryCount)
}

func TestEngine_NewestRuleWinsThresholdAndMessage(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	older := f.addRule(t, "cancel_order", "order is less than 24 hours old", 1, fixedNow.Add(-time.Hour))
	older.WithDenyMessage("older message")
	newer := models.NewRule("cancel_order", "product is not limited edition", 3).WithDenyMessage("Limited edition items cannot be cancelled.")
	newer.CreatedAt = fixedNow
	require.NoError(t, f.rules.Create(ctx, newer))

	wantText := "> product is not limited edition\n> order is less than 24 hours old"
	f.oracle.On("Judge", mock.Anything, mock.Anything, wantText, fixedNow).Return(false, nil)

	decision, err := f.engine.Evaluate(ctx, f.user.ID, "cancel_order", "order_1", nil)
	require.NoError(t, err)

	// The older rule's threshold of 1 would have escalated; the newest rule's 3 does not.
	assert.Equal(t, OutcomeDeniedRetryable, decision.Outcome)
	assert.Equal(t, "Limited edition items cannot be cancelled.", decision.Message)
	assert.False(t, f.escalated(t))
	f.oracle.AssertExpectations(t)
}

func TestEngine_OracleFailureIsRetryableAndNeverEscalates(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.addRule(t, "cancel_order", "x", 1, fixedNow)
	f.oracle.On("Judge", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(false, services.WrapOracle("judge failed", errors.New("timeout")))

	for i := 1; i <= 3; i++ {
		decision, err := f.engine.Evaluate(ctx, f.user.ID, "cancel_order", "order_1", nil)
		require.NoError(t, err)
		assert.Equal(t, OutcomeDeniedRetryable, decision.Outcome)
		assert.Equal(t, OracleUnavailableMessage, decision.Message)
		assert.Equal(t, ReasonOracleUnavailable, decision.Reason)
		assert.Equal(t, i, decision.RetryCount)
	}
	assert.False(t, f.escalated(t))
}

func TestEngine_RuleStoreFailureFailsClosed(t *testing.T) {
	rules := new(MockRuleStore)
	retries := new(MockRetryStore)
	oracle := new(MockOracle)
	logger := zaptest.NewLogger(t)

	rules.On("RulesForAction", mock.Anything, "cancel_order").Return(nil, errors.New("connection refused"))

	engine := NewEngine(rules, retries, oracle, NewEscalationStateMachine(new(MockUserStore), nil, logger), logger)
	decision, err := engine.Evaluate(context.Background(), 1, "cancel_order", "order_1", nil)

	require.Error(t, err)
	assert.Nil(t, decision)
	assert.True(t, services.IsStorageUnavailable(err))
	retries.AssertNotCalled(t, "IncrementAndGet", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	oracle.AssertNotCalled(t, "Judge", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_RetryStoreFailureSkipsOracle(t *testing.T) {
	rules := new(MockRuleStore)
	retries := new(MockRetryStore)
	oracle := new(MockOracle)
	logger := zaptest.NewLogger(t)
	recorder := &recordingRecorder{}

	rules.On("RulesForAction", mock.Anything, "cancel_order").
		Return([]*models.Rule{models.NewRule("cancel_order", "x", 2)}, nil)
	retries.On("IncrementAndGet", mock.Anything, int64(1), "cancel_order", "order_1").
		Return(0, errors.New("disk full"))

	engine := NewEngine(rules, retries, oracle, NewEscalationStateMachine(new(MockUserStore), nil, logger), logger,
		WithRecorder(recorder))
	decision, err := engine.Evaluate(context.Background(), 1, "cancel_order", "order_1", nil)

	require.Error(t, err)
	assert.Nil(t, decision)
	assert.True(t, services.IsStorageUnavailable(err))
	oracle.AssertNotCalled(t, "Judge", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	evals := recorder.all()
	require.Len(t, evals, 1)
	assert.Error(t, evals[0].Err)
	assert.Nil(t, evals[0].Decision)
}

func TestEngine_EscalationWriteFailure(t *testing.T) {
	rules := new(MockRuleStore)
	retries := new(MockRetryStore)
	oracle := new(MockOracle)
	users := new(MockUserStore)
	logger := zaptest.NewLogger(t)

	rules.On("RulesForAction", mock.Anything, "cancel_order").
		Return([]*models.Rule{models.NewRule("cancel_order", "x", 1)}, nil)
	retries.On("IncrementAndGet", mock.Anything, int64(1), "cancel_order", "order_1").Return(1, nil)
	oracle.On("Judge", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	users.On("SetEscalated", mock.Anything, int64(1), true).Return(false, errors.New("deadlock"))

	engine := NewEngine(rules, retries, oracle, NewEscalationStateMachine(users, nil, logger), logger)
	decision, err := engine.Evaluate(context.Background(), 1, "cancel_order", "order_1", nil)

	require.Error(t, err)
	assert.Nil(t, decision)
	assert.True(t, services.IsStorageUnavailable(err))
}

func TestEngine_ConcurrentEvaluationsSerializeOnTheCounter(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.addRule(t, "cancel_order", "x", 1000, fixedNow)
	f.oracle.On("Judge", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(false, errors.New("oracle down"))

	const n = 50
	counts := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decision, err := f.engine.Evaluate(ctx, f.user.ID, "cancel_order", "order_1", nil)
			if assert.NoError(t, err) {
				counts[i] = decision.RetryCount
			}
		}(i)
	}
	wg.Wait()

	sort.Ints(counts)
	for i, c := range counts {
		assert.Equal(t, i+1, c)
	}
	assert.Len(t, f.recorder.all(), n)
}

func TestCombineRuleText(t *testing.T) {
	assert.Equal(t, "> a\n> b", CombineRuleText([]string{"a", " b "}))
	assert.Equal(t, "", CombineRuleText(nil))
}
