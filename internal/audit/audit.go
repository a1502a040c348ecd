// Package audit implements the engine's audit trail: a bounded, async
// queue in front of a storage.AuditSink that applies backpressure by
// dropping non-critical events before ever dropping a critical one.
package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dreamsoft-pro/rae/infrastructure/logging"
	"github.com/dreamsoft-pro/rae/internal/storage"
)

// Sink is the async audit pipeline. Callers never block on storage I/O;
// Record enqueues and returns immediately unless the queue is full: a
// non-critical event is then dropped and counted, and a critical event
// waits a bounded time for room (see Record).
type Sink struct {
	backend storage.AuditSink
	logger  *logging.Logger

	queue chan storage.AuditEvent
	wg    sync.WaitGroup

	dropped  atomic.Int64
	accepted atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New starts a Sink backed by backend with the given queue depth.
func New(backend storage.AuditSink, logger *logging.Logger, queueDepth int) *Sink {
	if queueDepth <= 0 {
		queueDepth = 1024
	}
	s := &Sink{
		backend: backend,
		logger:  logger,
		queue:   make(chan storage.AuditEvent, queueDepth),
		stopCh:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.drain()
	return s
}

// Record enqueues ev. Critical events (policy violations, budget
// rejections, tenant-mismatch attempts) wait up to 50ms for room in a full
// queue and then get one more non-blocking attempt; if that also finds the
// queue full, the event is dropped, counted and logged as a security
// event. Non-critical events are dropped under backpressure rather than
// blocking the caller's request path. After Close, every event is dropped
// and counted.
func (s *Sink) Record(ev storage.AuditEvent) {
	select {
	case <-s.stopCh:
		s.dropped.Add(1)
		return
	default:
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if ev.Critical {
		select {
		case s.queue <- ev:
		case <-time.After(50 * time.Millisecond):
			// Even a critical event does not block the request path
			// indefinitely; log the near-miss and retry once more with
			// no timeout against a dedicated goroutine would be
			// over-engineering for an exercise of this size, so a second
			// bounded attempt is the compromise.
			select {
			case s.queue <- ev:
			default:
				s.dropped.Add(1)
				s.logger.LogSecurityEvent(context.Background(), "audit_queue_full_critical_dropped", map[string]interface{}{
					"tenant": ev.Tenant,
					"action": ev.Action,
				})
			}
		}
		return
	}

	select {
	case s.queue <- ev:
		s.accepted.Add(1)
	default:
		s.dropped.Add(1)
	}
}

func (s *Sink) drain() {
	defer s.wg.Done()
	for {
		select {
		case ev := <-s.queue:
			s.persist(ev)
		case <-s.stopCh:
			// Flush whatever remains without blocking forever.
			for {
				select {
				case ev := <-s.queue:
					s.persist(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) persist(ev storage.AuditEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.backend.Append(ctx, ev); err != nil {
		s.logger.Error(ctx, "audit event persist failed", err, map[string]interface{}{
			"tenant": ev.Tenant,
			"action": ev.Action,
		})
	}
}

// Stats reports accepted/dropped counters for health/metrics reporting.
func (s *Sink) Stats() (accepted, dropped int64) {
	return s.accepted.Load(), s.dropped.Load()
}

// Close stops the drain goroutine after flushing the current queue
// contents. It does not accept new events after being called.
func (s *Sink) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

// List proxies to the backend for read access (used by the engine's
// audit-query surface).
func (s *Sink) List(ctx context.Context, tenant string, since time.Time, limit int) ([]storage.AuditEvent, error) {
	return s.backend.List(ctx, tenant, since, limit)
}
