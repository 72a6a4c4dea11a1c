package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// ErrClosed is returned by Record after Close
var ErrClosed = errors.New("audit sink closed")

// AsyncConfig configures an AsyncSink
type AsyncConfig struct {
	// Name labels the sink in metrics
	Name string
	// QueueSize bounds the number of pending decisions
	QueueSize int
	// Workers drain the queue concurrently
	Workers int
	// WriteTimeout bounds each downstream Record call
	WriteTimeout time.Duration
}

// DefaultAsyncConfig returns sensible defaults
func DefaultAsyncConfig(name string) AsyncConfig {
	return AsyncConfig{
		Name:         name,
		QueueSize:    1024,
		Workers:      2,
		WriteTimeout: 2 * time.Second,
	}
}

// AsyncSink decouples the request path from a slow sink. Record never blocks:
// when the queue is full the decision is dropped and counted.
type AsyncSink struct {
	next    Sink
	cfg     AsyncConfig
	queue   chan queued
	metrics *observability.Metrics
	logger  *observability.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type queued struct {
	ctx context.Context
	d   Decision
}

// NewAsyncSink starts the workers draining into next
func NewAsyncSink(next Sink, cfg AsyncConfig, metrics *observability.Metrics, logger *observability.Logger) *AsyncSink {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "async"
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	s := &AsyncSink{
		next:    next,
		cfg:     cfg,
		queue:   make(chan queued, cfg.QueueSize),
		metrics: metrics,
		logger:  logger.WithField("sink", cfg.Name),
	}
	for i := 0; i < cfg.Workers; i++ {
		s.wg.Add(1)
		go s.drain()
	}
	return s
}

// Record enqueues d
func (s *AsyncSink) Record(ctx context.Context, d Decision) error {
	stamp(&d, time.Now)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	select {
	case s.queue <- queued{ctx: context.WithoutCancel(ctx), d: d}:
	default:
		if s.metrics != nil {
			s.metrics.AuditDroppedTotal.Inc()
		}
		s.logger.WithFields(map[string]interface{}{
			"decision_id": d.ID,
			"stage":       string(d.Stage),
			"verdict":     string(d.Verdict),
		}).Warn("audit queue full, decision dropped")
	}
	return nil
}

func (s *AsyncSink) drain() {
	defer s.wg.Done()
	for item := range s.queue {
		s.write(item)
	}
}

func (s *AsyncSink) write(item queued) {
	defer observability.RecoverPanic(s.logger, "audit drain")

	ctx, cancel := context.WithTimeout(item.ctx, s.cfg.WriteTimeout)
	defer cancel()

	status := "success"
	if err := s.next.Record(ctx, item.d); err != nil {
		status = "error"
		s.logger.WithError(err).WithField("decision_id", item.d.ID).Error("failed to write audit decision")
	}
	if s.metrics != nil {
		s.metrics.AuditRecordsTotal.WithLabelValues(s.cfg.Name, status).Inc()
	}
}

// Pending returns the number of queued decisions
func (s *AsyncSink) Pending() int {
	return len(s.queue)
}

// Close stops accepting decisions and waits for the queue to drain or ctx to
// expire.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
