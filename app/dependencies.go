package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/upb/action-gate/config"
	"github.com/upb/action-gate/internal/auth"
	"github.com/upb/action-gate/middleware"
	"github.com/upb/action-gate/repositories"
	"github.com/upb/action-gate/repositories/memory"
	"github.com/upb/action-gate/repositories/postgres"
	"github.com/upb/action-gate/repositories/redis"
	"github.com/upb/action-gate/services/actions"
	"github.com/upb/action-gate/services/audit"
	"github.com/upb/action-gate/services/gating"
	"github.com/upb/action-gate/services/notify"
	"github.com/upb/action-gate/services/oracle"
	"github.com/upb/action-gate/services/rules"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB // nil with the memory backend
	Redis  *goredis.Client
	Logger *zap.Logger

	// Repositories
	Repos     *repositories.Repositories
	TxManager repositories.TransactionManager // nil with the memory backend

	// Services
	Audit      *audit.AuditService
	Oracle     *oracle.Client
	Notifier   gating.Notifier
	RuleCache  *rules.RuleCache
	Rules      *rules.Service
	Escalation *gating.EscalationStateMachine
	Engine     *gating.Engine
	Actions    *actions.Registry

	// Auth
	Tokens         *auth.TokenManager // nil when JWT_SECRET is unset
	AuthMiddleware *middleware.AuthMiddleware

	repoFactory *postgres.RepositoryFactory
	kafka       *notify.KafkaPublisher
	stopWorkers context.CancelFunc
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initStorage(ctx, cfg); err != nil {
		_ = deps.closeStorage()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := deps.initServices(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := deps.initAuth(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("storage_backend", cfg.StorageBackend),
		zap.String("retry_backend", cfg.Redis.RetryBackend))
	return deps, nil
}

// initStorage selects the repository backends
func (d *Dependencies) initStorage(ctx context.Context, cfg *config.Config) error {
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		factory, err := postgres.NewRepositoryFactory(ctx, cfg, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to create repository factory: %w", err)
		}
		d.repoFactory = factory
		d.DB = factory.GetDB()

		if err := factory.InitSchema(ctx); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}

		d.Repos = factory.NewRepositories()
		d.TxManager = factory.GetTransactionManager()

	case config.BackendMemory:
		d.Repos = &repositories.Repositories{
			Rules:     memory.NewRuleStore(),
			Retries:   memory.NewRetryStore(),
			Users:     memory.NewUserStore(),
			Orders:    memory.NewOrderStore(),
			AuditLogs: memory.NewAuditStore(),
		}
		d.Logger.Warn("using in-memory storage, state is lost on restart")

	default:
		return fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
	}

	switch cfg.Redis.RetryBackend {
	case config.BackendRedis:
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		d.Redis = client
		d.Repos.Retries = redis.NewRetryStore(client, cfg.Redis.KeyPrefix, d.Logger)
		d.Logger.Info("retry counters stored in redis", zap.String("addr", cfg.Redis.Addr))
	case config.BackendMemory:
		if cfg.StorageBackend != config.BackendMemory {
			d.Repos.Retries = memory.NewRetryStore()
		}
	case config.BackendPostgres:
		if d.repoFactory == nil {
			return fmt.Errorf("postgres retry backend requires the postgres storage backend")
		}
	default:
		return fmt.Errorf("unsupported retry backend %q", cfg.Redis.RetryBackend)
	}

	return nil
}

// initServices wires the gate and everything around it
func (d *Dependencies) initServices(ctx context.Context, cfg *config.Config) error {
	workerCtx, cancel := context.WithCancel(context.Background())
	d.stopWorkers = cancel

	d.Audit = audit.NewAuditService(d.Repos.AuditLogs, d.Logger, audit.Config{
		BufferSize:  cfg.Audit.BufferSize,
		WorkerCount: cfg.Audit.WorkerCount,
	})
	if err := d.Audit.Start(); err != nil {
		return err
	}

	d.Oracle = oracle.NewFromConfig(cfg.Oracle, d.Logger)

	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := notify.NewKafkaPublisher(notify.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.EscalationTopic,
		}, d.Logger)
		if err != nil {
			return err
		}
		d.kafka = publisher
		d.Notifier = publisher
		d.Logger.Info("escalations published to kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.EscalationTopic))
	} else {
		d.Notifier = notify.NewLogNotifier(d.Logger)
	}

	var ruleStore gating.RuleStore = d.Repos.Rules
	ruleOpts := []rules.Option{rules.WithAudit(d.Audit)}
	if d.TxManager != nil {
		ruleOpts = append(ruleOpts, rules.WithTransactions(d.TxManager))
	}
	if cfg.Rules.CacheTTL > 0 {
		d.RuleCache = rules.NewRuleCache(cfg.Rules.CacheSize, cfg.Rules.CacheTTL)
		ruleStore = rules.NewCachedRuleStore(d.Repos.Rules, d.RuleCache)
		ruleOpts = append(ruleOpts, rules.WithCache(d.RuleCache))
		go d.RuleCache.StartCleanupWorker(workerCtx, cfg.Rules.CacheTTL)
	}
	d.Rules = rules.NewService(d.Repos.Rules, d.Logger, ruleOpts...)

	d.Escalation = gating.NewEscalationStateMachine(d.Repos.Users, d.Notifier, d.Logger)
	d.Engine = gating.NewEngine(
		ruleStore,
		d.Repos.Retries,
		d.Oracle,
		d.Escalation,
		d.Logger,
		gating.WithRecorder(d.Audit),
	)

	d.Actions = actions.NewRegistry(d.Engine, d.Repos.Users, d.Audit, d.Logger)
	builtins := []actions.Action{
		actions.NewCancelOrder(d.Repos.Orders, d.Logger),
		actions.NewGetWeather(cfg.Actions.WeatherURL, cfg.Actions.WeatherTimeout, d.Logger),
	}
	for _, a := range builtins {
		if err := d.Actions.Register(a); err != nil {
			return err
		}
	}

	return nil
}

// initAuth builds the bearer token validator
func (d *Dependencies) initAuth(cfg *config.Config) error {
	if cfg.Auth.JWTSecret == "" {
		d.Logger.Warn("JWT secret not configured, protected endpoints disabled")
		// Reject-all validator so protected routes return 401
		d.AuthMiddleware = middleware.NewAuthMiddleware(&rejectAllValidator{}, d.Logger)
		return nil
	}

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.AccessTokenTTL)
	if err != nil {
		return err
	}
	d.Tokens = tokens
	d.AuthMiddleware = middleware.NewAuthMiddleware(tokens, d.Logger)
	return nil
}

// rejectAllValidator rejects all tokens (used when no secret is configured)
type rejectAllValidator struct{}

func (*rejectAllValidator) ValidateToken(context.Context, string) (*auth.Principal, error) {
	return nil, fmt.Errorf("authentication not configured")
}

// Ping checks every external store the gate depends on
func (d *Dependencies) Ping(ctx context.Context) map[string]error {
	checks := make(map[string]error)
	if d.DB != nil {
		checks["database"] = d.DB.HealthCheck(ctx)
	}
	if d.Redis != nil {
		checks["redis"] = d.Redis.Ping(ctx).Err()
	}
	return checks
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.stopWorkers != nil {
		d.stopWorkers()
	}

	// Drain audit events before the stores go away
	if d.Audit != nil && d.Audit.Running() {
		timeout := 5 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.Audit.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.kafka != nil {
		if err := d.kafka.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close kafka writer: %w", err))
		}
		d.kafka = nil
	}

	if err := d.closeStorage(); err != nil {
		errs = append(errs, err)
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return errors.Join(errs...)
}

func (d *Dependencies) closeStorage() error {
	var errs []error
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
		d.Redis = nil
	}
	if d.repoFactory != nil {
		if err := d.repoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.repoFactory = nil
	}
	return errors.Join(errs...)
}
