package actions

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories/memory"
	"github.com/upb/action-gate/services"
	"github.com/upb/action-gate/services/gating"
	"go.uber.org/zap"
)

type stubOracle struct {
	allow bool
	err   error
	calls atomic.Int32
	last  gating.GatingContext
}

func (o *stubOracle) Judge(ctx context.Context, payload gating.GatingContext, ruleText string, asOf time.Time) (bool, error) {
	o.calls.Add(1)
	o.last = payload
	return o.allow, o.err
}

type MockEvaluator struct {
	mock.Mock
}

func (m *MockEvaluator) Evaluate(ctx context.Context, userID int64, actionName, contextKey string, gctx gating.GatingContext) (*gating.Decision, error) {
	args := m.Called(ctx, userID, actionName, contextKey, gctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gating.Decision), args.Error(1)
}

type MockExecutionLogger struct {
	mock.Mock
}

func (m *MockExecutionLogger) LogActionExecuted(ctx context.Context, userID int64, actionName, contextKey, message string) error {
	args := m.Called(ctx, userID, actionName, contextKey, message)
	return args.Error(0)
}

type fixture struct {
	registry   *Registry
	rules      *memory.RuleStore
	users      *memory.UserStore
	orders     *memory.OrderStore
	oracle     *stubOracle
	escalation *gating.EscalationStateMachine
	user       *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()

	f := &fixture{
		rules:  memory.NewRuleStore(),
		users:  memory.NewUserStore(),
		orders: memory.NewOrderStore(),
		oracle: &stubOracle{},
	}

	f.user = models.NewUser("meera", "meera@example.com", models.RoleUser)
	require.NoError(t, f.users.Create(context.Background(), f.user))

	f.escalation = gating.NewEscalationStateMachine(f.users, nil, logger)
	engine := gating.NewEngine(f.rules, memory.NewRetryStore(), f.oracle, f.escalation, logger)

	f.registry = NewRegistry(engine, f.users, nil, logger)
	require.NoError(t, f.registry.Register(NewCancelOrder(f.orders, logger)))
	return f
}

func (f *fixture) addOrder(t *testing.T, userID int64) *models.Order {
	t.Helper()
	order := &models.Order{
		UserID:      userID,
		ProductName: "Headphones",
		Status:      models.OrderStatusActive,
		CreatedAt:   time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.orders.Create(context.Background(), order))
	return order
}

func TestRegistry_RegisterAndNames(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.registry.Register(NewGetWeather("", time.Second, zap.NewNop())))
	assert.Error(t, f.registry.Register(NewCancelOrder(f.orders, zap.NewNop())))
	assert.Equal(t, []string{"cancel_order", "get_weather"}, f.registry.Names())
}

func TestRegistry_UnknownAction(t *testing.T) {
	f := newFixture(t)

	_, err := f.registry.Invoke(context.Background(), f.user.ID, "refund_order", nil)
	assert.True(t, services.IsNotFoundError(err))
}

func TestRegistry_UnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.registry.Invoke(context.Background(), 999, CancelOrderName, map[string]interface{}{"order_id": 1})
	assert.True(t, services.IsNotFoundError(err))
}

func TestRegistry_UngatedActionRuns(t *testing.T) {
	f := newFixture(t)
	order := f.addOrder(t, f.user.ID)

	result, err := f.registry.Invoke(context.Background(), f.user.ID, CancelOrderName, map[string]interface{}{"order_id": float64(order.ID)})
	require.NoError(t, err)

	assert.True(t, result.Performed)
	assert.Equal(t, "Order 1 cancelled successfully.", result.Message)
	assert.Equal(t, int32(0), f.oracle.calls.Load())

	stored, err := f.orders.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsCancelled())
	assert.NotNil(t, stored.CancelledAt)
}

func TestRegistry_DenyThenEscalateThenHumanAgent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.addOrder(t, f.user.ID)

	rule := models.NewRule(CancelOrderName, "The order was placed less than 24 hours ago.", 2).
		WithDenyMessage("Orders can only be cancelled within a day.")
	require.NoError(t, f.rules.Create(ctx, rule))

	args := map[string]interface{}{"order_id": order.ID}

	first, err := f.registry.Invoke(ctx, f.user.ID, CancelOrderName, args)
	require.NoError(t, err)
	assert.False(t, first.Performed)
	assert.False(t, first.Escalated)
	assert.Equal(t, "Orders can only be cancelled within a day.", first.Message)
	assert.Equal(t, 1, first.RetryCount)
	assert.Equal(t, gating.OutcomeDeniedRetryable, first.Outcome)

	second, err := f.registry.Invoke(ctx, f.user.ID, CancelOrderName, args)
	require.NoError(t, err)
	assert.True(t, second.Escalated)
	assert.Equal(t, gating.EscalationMessage, second.Message)
	assert.Equal(t, 2, second.RetryCount)

	third, err := f.registry.Invoke(ctx, f.user.ID, CancelOrderName, args)
	require.NoError(t, err)
	assert.True(t, third.Escalated)
	assert.Equal(t, HumanAgentMessage, third.Message)
	assert.Equal(t, int32(2), f.oracle.calls.Load())

	stored, err := f.orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsCancelled())
}

func TestRegistry_ResetKeepsRetryCounters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.addOrder(t, f.user.ID)
	require.NoError(t, f.rules.Create(ctx, models.NewRule(CancelOrderName, "never", 2)))

	args := map[string]interface{}{"order_id": order.ID}
	for i := 0; i < 2; i++ {
		_, err := f.registry.Invoke(ctx, f.user.ID, CancelOrderName, args)
		require.NoError(t, err)
	}

	require.NoError(t, f.escalation.Reset(ctx, f.user.ID))

	result, err := f.registry.Invoke(ctx, f.user.ID, CancelOrderName, args)
	require.NoError(t, err)
	assert.Equal(t, 3, result.RetryCount)
	assert.Equal(t, gating.EscalationMessage, result.Message)
}

func TestRegistry_OracleSeesOrderAndUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.addOrder(t, f.user.ID)
	require.NoError(t, f.rules.Create(ctx, models.NewRule(CancelOrderName, "always", 2)))
	f.oracle.allow = true

	result, err := f.registry.Invoke(ctx, f.user.ID, CancelOrderName, map[string]interface{}{"order_id": "1"})
	require.NoError(t, err)
	assert.True(t, result.Performed)
	assert.Equal(t, 1, result.RetryCount)

	require.NotNil(t, f.oracle.last)
	orderView, ok := f.oracle.last["order"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, order.ID, orderView["id"])
	userView, ok := f.oracle.last["user"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "meera", userView["username"])
}

func TestRegistry_StorageErrorFromEngine(t *testing.T) {
	f := newFixture(t)
	order := f.addOrder(t, f.user.ID)

	evaluator := new(MockEvaluator)
	evaluator.On("Evaluate", mock.Anything, f.user.ID, CancelOrderName, "order_1", mock.Anything).
		Return(nil, services.WrapStorage("failed to load rules", errors.New("connection refused")))

	registry := NewRegistry(evaluator, f.users, nil, zap.NewNop())
	require.NoError(t, registry.Register(NewCancelOrder(f.orders, zap.NewNop())))

	_, err := registry.Invoke(context.Background(), f.user.ID, CancelOrderName, map[string]interface{}{"order_id": order.ID})
	assert.True(t, services.IsStorageUnavailable(err))

	stored, err := f.orders.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsCancelled())
	evaluator.AssertExpectations(t)
}

func TestRegistry_AuditsPerformedActions(t *testing.T) {
	f := newFixture(t)
	order := f.addOrder(t, f.user.ID)

	evaluator := new(MockEvaluator)
	evaluator.On("Evaluate", mock.Anything, f.user.ID, CancelOrderName, "order_1", mock.Anything).
		Return(gating.Allowed(0), nil)

	audit := new(MockExecutionLogger)
	audit.On("LogActionExecuted", mock.Anything, f.user.ID, CancelOrderName, "order_1", "Order 1 cancelled successfully.").
		Return(errors.New("audit buffer full"))

	registry := NewRegistry(evaluator, f.users, audit, zap.NewNop())
	require.NoError(t, registry.Register(NewCancelOrder(f.orders, zap.NewNop())))

	result, err := registry.Invoke(context.Background(), f.user.ID, CancelOrderName, map[string]interface{}{"order_id": order.ID})
	require.NoError(t, err)
	assert.True(t, result.Performed)
	audit.AssertExpectations(t)
}

func TestRegistry_ArgumentSchema(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.rules.Create(ctx, models.NewRule(CancelOrderName, "always", 2)))

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing order", nil},
		{"unexpected argument", map[string]interface{}{"order_id": 1, "force": true}},
		{"negative id", map[string]interface{}{"order_id": -4}},
		{"non-numeric string", map[string]interface{}{"order_id": "abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.registry.Invoke(ctx, f.user.ID, CancelOrderName, tt.args)
			require.Error(t, err)
			assert.True(t, services.IsValidationError(err))

			details := services.GetErrorDetails(err)
			assert.NotEmpty(t, details["errors"])
		})
	}

	assert.Equal(t, int32(0), f.oracle.calls.Load())
}

func TestRegistry_Definitions(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.Register(NewGetWeather("", time.Second, zap.NewNop())))

	defs := f.registry.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, CancelOrderName, defs[0].Name)
	assert.Contains(t, string(defs[0].Parameters), `"order_id"`)
	assert.Equal(t, GetWeatherName, defs[1].Name)
}

type brokenSchemaAction struct {
	CancelOrder
}

func (brokenSchemaAction) Name() string       { return "broken" }
func (brokenSchemaAction) Parameters() string { return `{"type": 12}` }

func TestRegistry_RejectsInvalidSchema(t *testing.T) {
	f := newFixture(t)
	assert.Error(t, f.registry.Register(&brokenSchemaAction{}))
	assert.NotContains(t, f.registry.Names(), "broken")
}
