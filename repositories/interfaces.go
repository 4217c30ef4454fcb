package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/action-gate/models"
)

var (
	// ErrNotFound is wrapped by repositories when a record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrConflict is wrapped by repositories on unique constraint violations
	ErrConflict = errors.New("record already exists")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// RuleRepository handles gating rule data operations
type RuleRepository interface {
	// Create persists a new rule
	Create(ctx context.Context, rule *models.Rule) error

	// GetByID retrieves a rule by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Rule, error)

	// RulesForAction retrieves all rules for an action, newest first
	RulesForAction(ctx context.Context, actionName string) ([]*models.Rule, error)

	// List retrieves all rules, newest first, with pagination
	List(ctx context.Context, limit, offset int) ([]*models.Rule, error)

	// Delete deletes a rule
	Delete(ctx context.Context, id uuid.UUID) error

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) RuleRepository
}

// RetryRepository handles retry counter operations
type RetryRepository interface {
	// IncrementAndGet atomically increments the counter for the key and returns the new value
	IncrementAndGet(ctx context.Context, userID int64, actionName, contextKey string) (int, error)

	// Get retrieves a counter record
	Get(ctx context.Context, key models.RetryKey) (*models.RetryRecord, error)

	// ListByUser retrieves all counters for a user
	ListByUser(ctx context.Context, userID int64) ([]*models.RetryRecord, error)
}

// UserRepository handles user data operations
type UserRepository interface {
	// Create creates a new user and sets its ID
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id int64) (*models.User, error)

	// GetByUsername retrieves a user by username
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// SetEscalated writes the escalation flag and reports whether it changed
	SetEscalated(ctx context.Context, id int64, escalated bool) (bool, error)

	// IsEscalated reads the escalation flag
	IsEscalated(ctx context.Context, id int64) (bool, error)

	// ListEscalated retrieves all users with the escalation flag set
	ListEscalated(ctx context.Context) ([]*models.User, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) UserRepository
}

// OrderRepository handles order data operations
type OrderRepository interface {
	// Create creates a new order and sets its ID
	Create(ctx context.Context, order *models.Order) error

	// GetByID retrieves an order by ID
	GetByID(ctx context.Context, id int64) (*models.Order, error)

	// ListByUser retrieves a user's orders, newest first
	ListByUser(ctx context.Context, userID int64) ([]*models.Order, error)

	// Cancel marks an active order as cancelled
	Cancel(ctx context.Context, id int64, at time.Time) error

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) OrderRepository
}

// AuditRepository handles audit log data operations
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// GetByID retrieves an audit log by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error)

	// GetByUserID retrieves audit logs for a user with pagination
	GetByUserID(ctx context.Context, userID int64, limit, offset int) ([]*models.AuditLog, error)

	// GetByAction retrieves audit logs by action type
	GetByAction(ctx context.Context, action models.AuditAction, limit, offset int) ([]*models.AuditLog, error)

	// GetByDateRange retrieves audit logs within a date range
	GetByDateRange(ctx context.Context, start, end time.Time, limit, offset int) ([]*models.AuditLog, error)

	// GetByRequestID retrieves audit logs by request ID
	GetByRequestID(ctx context.Context, requestID string) ([]*models.AuditLog, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) AuditRepository
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Rules     RuleRepository
	Retries   RetryRepository
	Users     UserRepository
	Orders    OrderRepository
	AuditLogs AuditRepository
}
