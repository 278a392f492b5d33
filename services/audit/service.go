package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/upb/llm-failover/models"
	"github.com/upb/llm-failover/repositories"
	"go.uber.org/zap"
)

// AuditEvent represents a switch event waiting to be persisted
type AuditEvent struct {
	Event *models.SwitchEvent
}

// AuditService persists switch events asynchronously
type AuditService struct {
	repo        repositories.SwitchEventRepository
	logger      *zap.Logger
	eventChan   chan *AuditEvent
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	stopped     bool
	mu          sync.Mutex
}

// Config holds configuration for the AuditService
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

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repositories.SwitchEventRepository, logger *zap.Logger, config Config) *AuditService {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &AuditService{
		repo:        repo,
		logger:      logger,
		eventChan:   make(chan *AuditEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
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

// Stop gracefully stops the audit service
// Waits for all pending events to be processed
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("audit service not started")
	}
	s.stopped = true
	// no more events will be accepted
	close(s.eventChan)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.eventChan)))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		s.cancel()
		return nil
	case <-time.After(timeout):
		s.cancel()
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogEvent queues an event (non-blocking)
func (s *AuditService) LogEvent(event *AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return fmt.Errorf("audit service not started")
	}

	select {
	case s.eventChan <- event:
		return nil
	default:
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("event_id", event.Event.ID.String()),
			zap.String("platform", event.Event.Platform.String()))
		return fmt.Errorf("audit event buffer full")
	}
}

// LogEventBlocking queues an event, waiting for buffer space until ctx is done
func (s *AuditService) LogEventBlocking(ctx context.Context, event *AuditEvent) error {
	for {
		err := s.LogEvent(event)
		if err == nil || err.Error() != "audit event buffer full" {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ctx.Done():
			return fmt.Errorf("audit service stopped")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// OnSwitch records a switch event; it never blocks routing
func (s *AuditService) OnSwitch(_ context.Context, event *models.SwitchEvent) {
	if err := s.LogEvent(&AuditEvent{Event: event}); err != nil {
		s.logger.Warn("switch event not recorded",
			zap.String("event_id", event.ID.String()),
			zap.Error(err))
	}
}

// Recent lists persisted switch events, newest first
func (s *AuditService) Recent(ctx context.Context, filter repositories.SwitchEventFilter) ([]*models.SwitchEvent, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, filter)
}

// worker processes events from the channel
func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		if err := s.processEvent(event); err != nil {
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("event_id", event.Event.ID.String()),
				zap.String("platform", event.Event.Platform.String()))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

// processEvent processes a single audit event
func (s *AuditService) processEvent(event *AuditEvent) error {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	if err := s.repo.Insert(ctx, event.Event); err != nil {
		return fmt.Errorf("failed to insert switch event: %w", err)
	}

	return nil
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started && !s.stopped,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int `json:"buffer_size"`
	PendingEvents int `json:"pending_events"`
	WorkerCount   int `json:"worker_count"`
	Started       bool `json:"started"`
}
