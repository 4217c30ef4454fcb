// Package audit persists gating decisions and administrative events off the
// request path.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrBufferFull means the entry was dropped
	ErrBufferFull = errors.New("audit buffer full")
	// ErrNotRunning is returned by Enqueue before Start and after Stop
	ErrNotRunning = errors.New("audit service not running")
)

const insertTimeout = 5 * time.Second

type state int

const (
	stateIdle state = iota
	stateRunning
	stateStopped
)

// Config sizes the queue and the writer pool
type Config struct {
	BufferSize  int
	WorkerCount int
}

// DefaultConfig returns the default buffer and writer pool sizes
func DefaultConfig() Config {
	return Config{BufferSize: 10000, WorkerCount: 5}
}

// AuditService writes audit entries through a bounded queue drained by a
// fixed pool of writers. Enqueue never blocks.
type AuditService struct {
	repo    repositories.AuditRepository
	logger  *zap.Logger
	cfg     Config
	queue   chan *models.AuditLog
	writers errgroup.Group

	mu    sync.RWMutex
	state state
}

// NewAuditService creates an audit service. Call Start before enqueueing.
func NewAuditService(repo repositories.AuditRepository, logger *zap.Logger, cfg Config) *AuditService {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.BufferSize < 0 {
		cfg.BufferSize = 0
	}
	return &AuditService{
		repo:   repo,
		logger: logger,
		cfg:    cfg,
		queue:  make(chan *models.AuditLog, cfg.BufferSize),
	}
}

// Start launches the writers. It may be called once.
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateIdle {
		return fmt.Errorf("audit service cannot be restarted")
	}
	for i := 0; i < s.cfg.WorkerCount; i++ {
		id := i
		s.writers.Go(func() error {
			s.drain(id)
			return nil
		})
	}
	s.state = stateRunning

	s.logger.Info("audit service started",
		zap.Int("workers", s.cfg.WorkerCount),
		zap.Int("buffer", s.cfg.BufferSize))
	return nil
}

// Stop closes the queue and waits up to timeout for queued entries to be
// written. Entries still queued after the timeout are lost.
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.state = stateStopped
	pending := len(s.queue)
	close(s.queue)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending", pending))

	done := make(chan struct{})
	go func() {
		_ = s.writers.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return fmt.Errorf("audit service did not drain within %v timeout", timeout)
	}
}

// Enqueue hands entry to the writers without blocking
func (s *AuditService) Enqueue(entry *models.AuditLog) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != stateRunning {
		return ErrNotRunning
	}
	select {
	case s.queue <- entry:
		return nil
	default:
		s.logger.Warn("audit buffer full, dropping entry",
			zap.String("action", string(entry.Action)),
			zap.String("resource_type", entry.ResourceType))
		return ErrBufferFull
	}
}

// Running reports whether Enqueue currently accepts entries
func (s *AuditService) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == stateRunning
}

// Pending is the number of queued, unwritten entries
func (s *AuditService) Pending() int {
	return len(s.queue)
}

func (s *AuditService) drain(id int) {
	for entry := range s.queue {
		if err := s.write(entry); err != nil {
			s.logger.Error("audit write failed",
				zap.Int("writer", id),
				zap.String("action", string(entry.Action)),
				zap.String("resource_id", entry.ResourceID),
				zap.Error(err))
		}
	}
}

// write uses its own deadline; the request that produced entry is long gone.
func (s *AuditService) write(entry *models.AuditLog) error {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()
	return s.repo.Insert(ctx, entry)
}
