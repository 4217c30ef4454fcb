package gating

import (
	"context"
	"time"

	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/services"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/upb/action-gate/services/gating"

// Engine decides whether a user may perform a gated action.
// It is safe for concurrent use.
type Engine struct {
	rules      RuleStore
	retries    RetryStore
	oracle     DecisionOracle
	escalation *EscalationStateMachine
	recorder   DecisionRecorder
	tracer     trace.Tracer
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the clock used for the oracle's asOf timestamp
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithRecorder attaches a sink for every evaluation outcome
func WithRecorder(r DecisionRecorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithTracer overrides the tracer; the global provider is used by default
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// NewEngine creates a gating engine
func NewEngine(
	rules RuleStore,
	retries RetryStore,
	oracle DecisionOracle,
	escalation *EscalationStateMachine,
	logger *zap.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		rules:      rules,
		retries:    retries,
		oracle:     oracle,
		escalation: escalation,
		tracer:     otel.Tracer(tracerName),
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate gates actionName for userID against contextKey.
//
// A returned error is either StorageUnavailable or NotFound; in both cases the
// action must not be performed. Oracle failures are not errors: they yield a
// retryable denial with ReasonOracleUnavailable.
//
// Callers must not invoke Evaluate for users who are already escalated.
func (e *Engine) Evaluate(ctx context.Context, userID int64, actionName, contextKey string, gctx GatingContext) (*Decision, error) {
	ctx, span := e.tracer.Start(ctx, "gating.Evaluate", trace.WithAttributes(
		attribute.Int64("gate.user_id", userID),
		attribute.String("gate.action", actionName),
		attribute.String("gate.context_key", contextKey),
	))
	defer span.End()

	start := e.now()
	decision, err := e.evaluate(ctx, userID, actionName, contextKey, gctx)
	latency := e.now().Sub(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gating evaluation failed")
	} else {
		span.SetAttributes(
			attribute.String("gate.outcome", string(decision.Outcome)),
			attribute.Int("gate.retry_count", decision.RetryCount))
	}

	if err != nil {
		e.logger.Error("gating evaluation failed",
			zap.Int64("user_id", userID),
			zap.String("action", actionName),
			zap.String("context_key", contextKey),
			zap.Error(err))
	} else {
		e.logger.Info("gating decision",
			zap.Int64("user_id", userID),
			zap.String("action", actionName),
			zap.String("context_key", contextKey),
			zap.Int("retry_count", decision.RetryCount),
			zap.String("outcome", string(decision.Outcome)),
			zap.String("reason", string(decision.Reason)),
			zap.Duration("latency", latency))
	}

	if e.recorder != nil {
		e.recorder.RecordDecision(ctx, Evaluation{
			UserID:     userID,
			ActionName: actionName,
			ContextKey: contextKey,
			Decision:   decision,
			Err:        err,
			Latency:    latency,
		})
	}

	return decision, err
}

func (e *Engine) evaluate(ctx context.Context, userID int64, actionName, contextKey string, gctx GatingContext) (*Decision, error) {
	rules, err := e.rules.RulesForAction(ctx, actionName)
	if err != nil {
		return nil, services.WrapStorage("failed to load rules", err)
	}

	// Ungated actions never consume retry budget.
	if len(rules) == 0 {
		return Allowed(0), nil
	}

	// The counter is durably advanced before the oracle is consulted and no
	// lock is held across the oracle call.
	retryCount, err := e.retries.IncrementAndGet(ctx, userID, actionName, contextKey)
	if err != nil {
		return nil, services.WrapStorage("failed to increment retry counter", err)
	}

	newest := rules[0]
	ruleText := CombineRuleText(conditions(rules))

	allowed, err := e.oracle.Judge(ctx, gctx, ruleText, e.now())
	if err != nil {
		e.logger.Warn("decision oracle unavailable, denying",
			zap.Int64("user_id", userID),
			zap.String("action", actionName),
			zap.Error(err))
		return DeniedRetryable(OracleUnavailableMessage, retryCount, ReasonOracleUnavailable), nil
	}

	if allowed {
		return Allowed(retryCount), nil
	}

	if retryCount >= newest.EscalateAfterRetries {
		event := EscalationEvent{
			UserID:     userID,
			ActionName: actionName,
			ContextKey: contextKey,
			RetryCount: retryCount,
			OccurredAt: e.now().UTC(),
		}
		if err := e.escalation.Escalate(ctx, event); err != nil {
			return nil, err
		}
		return DeniedEscalate(retryCount), nil
	}

	return DeniedRetryable(newest.DenyMessageOr(DefaultDenyMessage), retryCount, ReasonRuleDenied), nil
}

func conditions(rules []*models.Rule) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.Condition)
	}
	return out
}
