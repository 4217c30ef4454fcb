package rules

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
	"github.com/upb/action-gate/services"
	"github.com/upb/action-gate/utils"
	"go.uber.org/zap"
)

// CreateRuleInput is an operator-authored rule
type CreateRuleInput struct {
	ActionName           string `json:"action_name" yaml:"action" validate:"required,max=100"`
	Condition            string `json:"condition" yaml:"condition" validate:"required,max=4000"`
	DenyMessage          string `json:"deny_message,omitempty" yaml:"deny_message" validate:"max=500"`
	EscalateAfterRetries *int   `json:"escalate_after_retries,omitempty" yaml:"escalate_after_retries" validate:"omitempty,gte=1,lte=100"`
}

// AuditLogger records rule mutations
type AuditLogger interface {
	LogRuleCreated(ctx context.Context, rule *models.Rule, actorID int64) error
	LogRuleDeleted(ctx context.Context, ruleID uuid.UUID, actorID int64) error
}

// Service handles rule authoring. Rule changes never touch retry counters.
type Service struct {
	repo      repositories.RuleRepository
	txManager repositories.TransactionManager
	cache     *RuleCache
	audit     AuditLogger
	logger    *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithTransactions makes Import atomic
func WithTransactions(tm repositories.TransactionManager) Option {
	return func(s *Service) { s.txManager = tm }
}

// WithCache invalidates cache entries on every mutation
func WithCache(c *RuleCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithAudit records rule mutations in the audit trail
func WithAudit(a AuditLogger) Option {
	return func(s *Service) { s.audit = a }
}

// NewService creates a new rule service
func NewService(repo repositories.RuleRepository, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{repo: repo, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates and persists a rule
func (s *Service) Create(ctx context.Context, actorID int64, in CreateRuleInput) (*models.Rule, error) {
	rule, err := s.build(actorID, in)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, rule); err != nil {
		return nil, ruleStoreError("failed to create rule", err)
	}

	s.afterCreate(ctx, rule, actorID)
	return rule, nil
}

// Get retrieves a rule by ID
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Rule, error) {
	rule, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, ruleStoreError("failed to get rule", err)
	}
	return rule, nil
}

// List returns rules newest first, optionally restricted to one action
func (s *Service) List(ctx context.Context, actionName string, limit, offset int) ([]*models.Rule, error) {
	if actionName != "" {
		rules, err := s.repo.RulesForAction(ctx, actionName)
		if err != nil {
			return nil, services.WrapStorage("failed to list rules", err)
		}
		return paginate(rules, limit, offset), nil
	}

	rules, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, services.WrapStorage("failed to list rules", err)
	}
	return rules, nil
}

// Delete removes a rule
func (s *Service) Delete(ctx context.Context, actorID int64, id uuid.UUID) error {
	rule, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return ruleStoreError("failed to get rule", err)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return ruleStoreError("failed to delete rule", err)
	}

	if s.cache != nil {
		s.cache.Invalidate(rule.ActionName)
	}
	if s.audit != nil {
		if err := s.audit.LogRuleDeleted(ctx, id, actorID); err != nil {
			s.logger.Warn("failed to audit rule deletion", zap.Error(err))
		}
	}

	s.logger.Info("rule deleted",
		zap.String("rule_id", id.String()),
		zap.String("action", rule.ActionName),
		zap.Int64("actor_id", actorID))
	return nil
}

// Import creates every rule in the bundle. With a transaction manager the
// bundle is applied all-or-nothing.
func (s *Service) Import(ctx context.Context, actorID int64, bundle *Bundle) ([]*models.Rule, error) {
	built := make([]*models.Rule, 0, len(bundle.Rules))
	for i, in := range bundle.Rules {
		rule, err := s.build(actorID, in)
		if err != nil {
			var de *services.DomainError
			if errors.As(err, &de) {
				de.WithDetail("index", i)
			}
			return nil, err
		}
		built = append(built, rule)
	}

	persist := func(ctx context.Context, repo repositories.RuleRepository) error {
		for _, rule := range built {
			if err := repo.Create(ctx, rule); err != nil {
				return ruleStoreError("failed to import rule", err)
			}
		}
		return nil
	}

	var err error
	if s.txManager != nil {
		err = s.txManager.InTransaction(ctx, func(txCtx context.Context, tx repositories.Transaction) error {
			return persist(txCtx, s.repo.WithTx(tx))
		})
	} else {
		err = persist(ctx, s.repo)
	}
	if err != nil {
		return nil, err
	}

	for _, rule := range built {
		s.afterCreate(ctx, rule, actorID)
	}
	return built, nil
}

func (s *Service) build(actorID int64, in CreateRuleInput) (*models.Rule, error) {
	in.ActionName = strings.TrimSpace(in.ActionName)
	in.Condition = strings.TrimSpace(in.Condition)

	if err := utils.ValidateStruct(in); err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "invalid rule", err).
			WithDetail("fields", utils.GetValidationFields(err))
	}

	threshold := models.DefaultEscalateAfterRetries
	if in.EscalateAfterRetries != nil {
		threshold = *in.EscalateAfterRetries
	}

	rule := models.NewRule(in.ActionName, in.Condition, threshold).WithDenyMessage(strings.TrimSpace(in.DenyMessage))
	if actorID > 0 {
		rule.CreatedBy = &actorID
	}
	return rule, nil
}

func (s *Service) afterCreate(ctx context.Context, rule *models.Rule, actorID int64) {
	if s.cache != nil {
		s.cache.Invalidate(rule.ActionName)
	}
	if s.audit != nil {
		if err := s.audit.LogRuleCreated(ctx, rule, actorID); err != nil {
			s.logger.Warn("failed to audit rule creation", zap.Error(err))
		}
	}

	s.logger.Info("rule created",
		zap.String("rule_id", rule.ID.String()),
		zap.String("action", rule.ActionName),
		zap.Int("escalate_after_retries", rule.EscalateAfterRetries),
		zap.Int64("actor_id", actorID))
}

func ruleStoreError(message string, err error) error {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return services.NewDomainError(services.ErrorTypeNotFound, "rule not found", err)
	case errors.Is(err, repositories.ErrConflict):
		return services.NewDomainError(services.ErrorTypeConflict, "rule already exists", err)
	default:
		return services.WrapStorage(message, err)
	}
}

func paginate(rules []*models.Rule, limit, offset int) []*models.Rule {
	if offset > 0 {
		if offset >= len(rules) {
			return []*models.Rule{}
		}
		rules = rules[offset:]
	}
	if limit > 0 && limit < len(rules) {
		rules = rules[:limit]
	}
	return rules
}
