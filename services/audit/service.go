package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/repositories"
	"go.uber.org/zap"
)

// Recorder is the "record event" capability consumed by every service.
// Recording never fails the caller.
type Recorder interface {
	Record(ctx context.Context, action models.AuditAction, principalID string, details map[string]interface{})
}

// NopRecorder discards every event
type NopRecorder struct{}

// Record implements Recorder
func (NopRecorder) Record(context.Context, models.AuditAction, string, map[string]interface{}) {}

type requestInfoKey struct{}

type requestInfo struct {
	requestID string
	ip        string
	userAgent string
}

// WithRequestInfo stores the request id and client ip so recorded events can carry them
func WithRequestInfo(ctx context.Context, requestID, ip string) context.Context {
	info, _ := ctx.Value(requestInfoKey{}).(requestInfo)
	info.requestID, info.ip = requestID, ip
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// WithUserAgent stores the caller's user agent
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	info, _ := ctx.Value(requestInfoKey{}).(requestInfo)
	info.userAgent = userAgent
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// ClientIP returns the client ip stored by WithRequestInfo
func ClientIP(ctx context.Context) string {
	info, _ := ctx.Value(requestInfoKey{}).(requestInfo)
	return info.ip
}

// UserAgent returns the user agent stored by WithUserAgent
func UserAgent(ctx context.Context) string {
	info, _ := ctx.Value(requestInfoKey{}).(requestInfo)
	return info.userAgent
}

// NewEvent builds an audit event enriched with request info from ctx
func NewEvent(ctx context.Context, action models.AuditAction, principalID string, details map[string]interface{}) *models.AuditEvent {
	event := models.NewAuditEvent(action, principalID).WithDetails(details)
	if info, ok := ctx.Value(requestInfoKey{}).(requestInfo); ok {
		event.WithRequest(info.requestID, info.ip)
	}
	return event
}

// Service handles asynchronous audit logging
type Service struct {
	auditRepo   repositories.AuditRepository
	logger      *zap.Logger
	eventChan   chan *models.AuditEvent
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	mu          sync.RWMutex
	started     bool
	stopped     bool
	dropped     atomic.Uint64
}

var _ Recorder = (*Service)(nil)

// Config holds configuration for the Service
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  10000,
		WorkerCount: 2,
	}
}

// NewService creates a new audit Service
func NewService(auditRepo repositories.AuditRepository, logger *zap.Logger, config Config) *Service {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	return &Service{
		auditRepo:   auditRepo,
		logger:      logger,
		eventChan:   make(chan *models.AuditEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
	}
}

// Start starts the background workers
func (s *Service) Start() error {
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

// Stop gracefully stops the service, draining pending events
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("audit service not running")
	}
	s.stopped = true
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
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// Record enqueues an event without blocking. Events are dropped with a
// warning when the buffer is full or the service is not running.
func (s *Service) Record(ctx context.Context, action models.AuditAction, principalID string, details map[string]interface{}) {
	s.LogEvent(NewEvent(ctx, action, principalID, details))
}

// LogEvent enqueues a prepared event without blocking
func (s *Service) LogEvent(event *models.AuditEvent) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started || s.stopped {
		s.dropped.Add(1)
		s.logger.Warn("audit service not running, dropping event",
			zap.String("action", string(event.Action)))
		return false
	}

	select {
	case s.eventChan <- event:
		return true
	default:
		s.dropped.Add(1)
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(event.Action)),
			zap.String("user_id", event.UserID))
		return false
	}
}

// worker processes events from the channel
func (s *Service) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		if err := s.processEvent(event); err != nil {
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(event.Action)),
				zap.String("user_id", event.UserID))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

func (s *Service) processEvent(event *models.AuditEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.auditRepo.Insert(ctx, event); err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// GetStats returns statistics about the audit service
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started && !s.stopped,
		Dropped:       s.dropped.Load(),
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Started       bool
	Dropped       uint64
}
