package actions

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/services"
	"github.com/upb/action-gate/services/gating"
)

// HumanAgentMessage is returned to users already handed to a human agent
const HumanAgentMessage = "You are connected to a human agent."

// Invocation is one request to run an action on behalf of a user
type Invocation struct {
	User      *models.User
	Arguments map[string]interface{}
}

// Target identifies what an invocation acts on and what the oracle gets to see
type Target struct {
	ContextKey string
	Context    gating.GatingContext

	// state carries action-private data from Prepare to Perform
	state interface{}
}

// Action is a side effect the agent can perform once the gate allows it
type Action interface {
	// Name is the action name rules are registered under
	Name() string

	// Parameters is the JSON Schema of the invocation arguments
	Parameters() string

	// Prepare validates the invocation and resolves its gating target.
	// It must not have side effects.
	Prepare(ctx context.Context, inv Invocation) (*Target, error)

	// Perform runs the side effect and returns the user-facing message
	Perform(ctx context.Context, inv Invocation, target *Target) (string, error)
}

// Result is what the user sees after invoking an action
type Result struct {
	Action     string         `json:"action"`
	Performed  bool           `json:"performed"`
	Escalated  bool           `json:"escalated"`
	Message    string         `json:"message"`
	RetryCount int            `json:"retry_count,omitempty"`
	Outcome    gating.Outcome `json:"outcome,omitempty"`
}

func int64Argument(args map[string]interface{}, key string) (int64, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return 0, invalidArgument(key, "is required")
	}

	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != float64(int64(v)) {
			return 0, invalidArgument(key, "must be an integer")
		}
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, invalidArgument(key, "must be an integer")
		}
		return n, nil
	default:
		return 0, invalidArgument(key, "must be an integer")
	}
}

func stringArgument(args map[string]interface{}, key string) (string, error) {
	raw, ok := args[key].(string)
	if !ok || strings.TrimSpace(raw) == "" {
		return "", invalidArgument(key, "is required")
	}
	return strings.TrimSpace(raw), nil
}

func invalidArgument(key, problem string) error {
	return services.NewDomainError(services.ErrorTypeValidation, fmt.Sprintf("%s %s", key, problem), nil).
		WithDetail("argument", key)
}
