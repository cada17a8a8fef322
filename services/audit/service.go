// Package audit records routing events asynchronously so a slow database
// never delays a chat turn.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/omniagent/internal/router"
	"github.com/upb/omniagent/internal/shared"
	"github.com/upb/omniagent/models"
	"github.com/upb/omniagent/repositories"
)

var (
	ErrNotStarted = errors.New("audit service not started")
	ErrBufferFull = errors.New("audit event buffer full")
)

// Service writes routing events to the repository from a pool of workers
type Service struct {
	repo        repositories.RoutingEventRepository
	logger      *zap.Logger
	eventChan   chan *models.RoutingEvent
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup

	// quit is closed when Stop begins so blocked senders give up.
	quit chan struct{}

	mu      sync.Mutex
	started bool

	// sendMu guards eventChan against sends after close.
	sendMu sync.RWMutex
	closed bool

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// Config holds configuration for the Service
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		WorkerCount: 2,
	}
}

// NewService creates a new Service instance
func NewService(repo repositories.RoutingEventRepository, logger *zap.Logger, config Config) *Service {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}

	return &Service{
		repo:        repo,
		logger:      logger,
		eventChan:   make(chan *models.RoutingEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		quit:        make(chan struct{}),
	}
}

// Start starts the background workers
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}
	if s.closed {
		return fmt.Errorf("audit service already stopped")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop stops accepting events and waits for workers to drain the buffer
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.started = false
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.eventChan)))

	close(s.quit)
	s.sendMu.Lock()
	s.closed = true
	close(s.eventChan)
	s.sendMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully",
			zap.Uint64("written", s.written.Load()),
			zap.Uint64("dropped", s.dropped.Load()))
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogEvent queues an event without blocking. A full buffer drops the event.
func (s *Service) LogEvent(event *models.RoutingEvent) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()

	if s.closed || !s.isStarted() {
		return ErrNotStarted
	}

	select {
	case s.eventChan <- event:
		return nil
	default:
		s.dropped.Add(1)
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("request_id", event.RequestID),
			zap.String("target_backend", event.TargetBackend))
		return ErrBufferFull
	}
}

// LogEventBlocking waits until the event is queued or ctx is cancelled
func (s *Service) LogEventBlocking(ctx context.Context, event *models.RoutingEvent) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()

	if s.closed || !s.isStarted() {
		return ErrNotStarted
	}

	select {
	case s.eventChan <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.quit:
		return fmt.Errorf("audit service stopped")
	}
}

// RecordOutcome converts an invocation outcome into a routing event and
// queues it. Abandoned outcomes are not recorded.
func (s *Service) RecordOutcome(ctx context.Context, outcome router.InvocationOutcome) error {
	if outcome.Abandoned {
		return nil
	}
	return s.LogEvent(EventFromOutcome(ctx, outcome))
}

// Recent returns the newest stored events
func (s *Service) Recent(ctx context.Context, limit int) ([]*models.RoutingEvent, error) {
	return s.repo.ListRecent(ctx, limit)
}

// EventFromOutcome builds the routing event for outcome. Request and session
// IDs are taken from ctx.
func EventFromOutcome(ctx context.Context, outcome router.InvocationOutcome) *models.RoutingEvent {
	event := models.NewRoutingEvent(shared.RequestID(ctx))
	if id, err := uuid.Parse(shared.SessionID(ctx)); err == nil {
		event.WithSession(id)
	}

	event.TargetBackend = outcome.Decision.TargetBackend
	event.Provider = string(outcome.Decision.Provider)
	event.Rule = outcome.Decision.Rule
	event.ForcedLocal = outcome.Decision.IsForcedLocal
	event.OriginalBackend = outcome.Original.TargetBackend
	event.Succeeded = outcome.Succeeded
	event.UsedFallback = outcome.UsedFallback
	event.LatencyMs = outcome.Latency.Milliseconds()
	event.WithError(string(outcome.ErrorKind))
	return event
}

func (s *Service) isStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// worker processes events from the channel
func (s *Service) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		if err := s.processEvent(event); err != nil {
			s.failed.Add(1)
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("request_id", event.RequestID))
			continue
		}
		s.written.Add(1)
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

// processEvent processes a single routing event
func (s *Service) processEvent(event *models.RoutingEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.repo.Insert(ctx, event); err != nil {
		return fmt.Errorf("failed to insert routing event: %w", err)
	}

	return nil
}

// GetStats returns statistics about the audit service
func (s *Service) GetStats() Stats {
	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.isStarted(),
		Written:       s.written.Load(),
		Dropped:       s.dropped.Load(),
		Failed:        s.failed.Load(),
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int    `json:"buffer_size"`
	PendingEvents int    `json:"pending_events"`
	WorkerCount   int    `json:"worker_count"`
	Started       bool   `json:"started"`
	Written       uint64 `json:"written"`
	Dropped       uint64 `json:"dropped"`
	Failed        uint64 `json:"failed"`
}
