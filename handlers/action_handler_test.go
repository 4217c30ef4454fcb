package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/action-gate/internal/auth"
	"github.com/upb/action-gate/services"
	"github.com/upb/action-gate/services/actions"
	"github.com/upb/action-gate/services/rules"
	"go.uber.org/zap"
)

type MockActionInvoker struct {
	mock.Mock
}

func (m *MockActionInvoker) Definitions() []actions.Definition {
	return m.Called().Get(0).([]actions.Definition)
}

func (m *MockActionInvoker) Invoke(ctx context.Context, userID int64, name string, args map[string]interface{}) (*actions.Result, error) {
	a := m.Called(ctx, userID, name, args)
	if a.Get(0) == nil {
		return nil, a.Error(1)
	}
	return a.Get(0).(*actions.Result), a.Error(1)
}

func TestActionHandler_ListActions(t *testing.T) {
	f := newGateFixture(t)
	h := NewActionHandler(f.registry, zap.NewNop())

	w := serve(t, http.MethodGet, "/actions", h.HandleListActions, jsonRequest(t, http.MethodGet, "/actions", nil), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var defs []map[string]interface{}
	decode(t, w, &defs)
	require.Len(t, defs, 1)
	assert.Equal(t, actions.CancelOrderName, defs[0]["name"])
	assert.NotNil(t, defs[0]["parameters"])
}

func TestActionHandler_InvokeDenyThenEscalate(t *testing.T) {
	f := newGateFixture(t)
	h := NewActionHandler(f.registry, zap.NewNop())
	principal := &auth.Principal{UserID: f.user.ID, Role: f.user.Role}
	order := f.addOrder(t, f.user.ID)

	_, err := f.rules.Create(context.Background(), 0, rules.CreateRuleInput{
		ActionName: actions.CancelOrderName,
		Condition:  "Orders can only be cancelled before dispatch.",
	})
	require.NoError(t, err)

	invoke := func() actions.Result {
		req := jsonRequest(t, http.MethodPost, "/actions/cancel_order", InvokeActionRequest{
			Arguments: map[string]interface{}{"order_id": order.ID},
		})
		w := serve(t, http.MethodPost, "/actions/{name}", h.HandleInvokeAction, req, principal)
		require.Equal(t, http.StatusOK, w.Code)
		var res actions.Result
		decode(t, w, &res)
		return res
	}

	first := invoke()
	assert.False(t, first.Performed)
	assert.False(t, first.Escalated)
	assert.Equal(t, "Action not allowed by policy.", first.Message)

	second := invoke()
	assert.True(t, second.Escalated)
	assert.Equal(t, "Escalating to human agent.", second.Message)

	third := invoke()
	assert.True(t, third.Escalated)
	assert.Equal(t, actions.HumanAgentMessage, third.Message)
	assert.Equal(t, int32(2), f.oracle.calls.Load())
}

func TestActionHandler_InvokeAllowed(t *testing.T) {
	f := newGateFixture(t)
	f.oracle.allow = true
	h := NewActionHandler(f.registry, zap.NewNop())
	order := f.addOrder(t, f.user.ID)

	req := jsonRequest(t, http.MethodPost, "/actions/cancel_order", map[string]interface{}{
		"arguments": map[string]interface{}{"order_id": order.ID},
	})
	w := serve(t, http.MethodPost, "/actions/{name}", h.HandleInvokeAction, req, &auth.Principal{UserID: f.user.ID, Role: f.user.Role})

	assert.Equal(t, http.StatusOK, w.Code)
	var res actions.Result
	decode(t, w, &res)
	assert.True(t, res.Performed)
	// Ungated actions never reach the oracle
	assert.Equal(t, int32(0), f.oracle.calls.Load())
}

func TestActionHandler_InvokeErrors(t *testing.T) {
	f := newGateFixture(t)
	h := NewActionHandler(f.registry, zap.NewNop())
	principal := &auth.Principal{UserID: f.user.ID, Role: f.user.Role}
	other := f.addOrder(t, f.manager.ID)

	tests := []struct {
		name       string
		action     string
		body       interface{}
		wantStatus int
		wantMsg    string
	}{
		{"unknown action", "launch_rocket", map[string]interface{}{"arguments": map[string]interface{}{}}, http.StatusNotFound, ""},
		{"missing argument", "cancel_order", map[string]interface{}{"arguments": map[string]interface{}{}}, http.StatusBadRequest, "invalid action arguments"},
		{"unknown body field", "cancel_order", map[string]interface{}{"args": 1}, http.StatusBadRequest, ""},
		{"another user's order", "cancel_order", map[string]interface{}{"arguments": map[string]interface{}{"order_id": other.ID}}, http.StatusNotFound, "Order not found."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := jsonRequest(t, http.MethodPost, "/actions/"+tt.action, tt.body)
			w := serve(t, http.MethodPost, "/actions/{name}", h.HandleInvokeAction, req, principal)

			assert.Equal(t, tt.wantStatus, w.Code)
			env := decode(t, w, nil)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, env.Message)
			}
		})
	}
}

func TestActionHandler_StorageFailure(t *testing.T) {
	invoker := new(MockActionInvoker)
	h := NewActionHandler(invoker, zap.NewNop())

	invoker.On("Invoke", mock.Anything, int64(4), "cancel_order", map[string]interface{}{"order_id": float64(1)}).
		Return(nil, services.WrapStorage("failed to increment retry counter", errors.New("redis: connection refused")))

	req := jsonRequest(t, http.MethodPost, "/actions/cancel_order", map[string]interface{}{
		"arguments": map[string]interface{}{"order_id": 1},
	})
	w := serve(t, http.MethodPost, "/actions/{name}", h.HandleInvokeAction, req, &auth.Principal{UserID: 4, Role: "user"})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	env := decode(t, w, nil)
	assert.Equal(t, "service_unavailable", env.Error)
	assert.NotContains(t, env.Message, "redis")
	invoker.AssertExpectations(t)
}
