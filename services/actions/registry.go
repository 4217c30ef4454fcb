package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
	"github.com/upb/action-gate/services"
	"github.com/upb/action-gate/services/gating"
	"go.uber.org/zap"
)

// Evaluator gates an action for a user
type Evaluator interface {
	Evaluate(ctx context.Context, userID int64, actionName, contextKey string, gctx gating.GatingContext) (*gating.Decision, error)
}

// UserLookup loads the user an action runs for
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// ExecutionLogger records performed side effects
type ExecutionLogger interface {
	LogActionExecuted(ctx context.Context, userID int64, actionName, contextKey, message string) error
}

// Registry maps action names to actions and runs them behind the gating engine
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
	schemas map[string]*argumentSchema
	engine  Evaluator
	users   UserLookup
	audit   ExecutionLogger
	logger  *zap.Logger
}

// NewRegistry creates an empty registry. audit may be nil.
func NewRegistry(engine Evaluator, users UserLookup, audit ExecutionLogger, logger *zap.Logger) *Registry {
	return &Registry{
		actions: make(map[string]Action),
		schemas: make(map[string]*argumentSchema),
		engine:  engine,
		users:   users,
		audit:   audit,
		logger:  logger,
	}
}

// Register adds an action. Names must be unique and parameters must compile.
func (r *Registry) Register(action Action) error {
	name := action.Name()
	schema, err := compileArgumentSchema(name, action.Parameters())
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[name]; exists {
		return fmt.Errorf("action %s already registered", name)
	}
	r.actions[name] = action
	r.schemas[name] = schema
	return nil
}

// Definition describes a registered action to agents
type Definition struct {
	Name       string          `json:"name"`
	Parameters json.RawMessage `json:"parameters"`
}

// Definitions returns every registered action with its parameter schema, sorted by name
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.actions))
	for name, action := range r.actions {
		defs = append(defs, Definition{Name: name, Parameters: json.RawMessage(action.Parameters())})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns the registered action names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the named action for userID.
// Escalated users are answered without consulting the engine.
func (r *Registry) Invoke(ctx context.Context, userID int64, name string, args map[string]interface{}) (*Result, error) {
	r.mu.RLock()
	action, ok := r.actions[name]
	schema := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return nil, services.NewDomainError(services.ErrorTypeNotFound, "action not found", nil).
			WithDetail("action", name)
	}

	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.NewDomainError(services.ErrorTypeNotFound, "user not found", err)
		}
		return nil, services.WrapStorage("failed to load user", err)
	}

	if user.HasEscalated {
		r.logger.Debug("user escalated, skipping gate",
			zap.Int64("user_id", userID),
			zap.String("action", name))
		return &Result{Action: name, Escalated: true, Message: HumanAgentMessage}, nil
	}

	if args == nil {
		args = map[string]interface{}{}
	}
	if err := schema.validate(args); err != nil {
		return nil, err
	}
	inv := Invocation{User: user, Arguments: args}

	target, err := action.Prepare(ctx, inv)
	if err != nil {
		return nil, err
	}

	decision, err := r.engine.Evaluate(ctx, userID, name, target.ContextKey, target.Context)
	if err != nil {
		return nil, err
	}

	if !decision.IsAllowed() {
		return &Result{
			Action:     name,
			Escalated:  decision.IsEscalated(),
			Message:    decision.Message,
			RetryCount: decision.RetryCount,
			Outcome:    decision.Outcome,
		}, nil
	}

	message, err := action.Perform(ctx, inv, target)
	if err != nil {
		return nil, err
	}

	if r.audit != nil {
		if err := r.audit.LogActionExecuted(ctx, userID, name, target.ContextKey, message); err != nil {
			r.logger.Warn("failed to audit action execution", zap.Error(err))
		}
	}

	return &Result{
		Action:     name,
		Performed:  true,
		Message:    message,
		RetryCount: decision.RetryCount,
		Outcome:    decision.Outcome,
	}, nil
}
