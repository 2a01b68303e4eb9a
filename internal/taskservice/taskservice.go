// Package taskservice is the bounded worker pool for CPU/disk work: tile
// decode-from-disk (RequestTask, spec §4.3.1). Bulk-download probing does
// not run on this pool; internal/bulk probes on its own job goroutine.
// It is deliberately separate from internal/retrieval's
// network pool so a burst of disk decodes never starves outbound fetches,
// per spec §5's "two distinct bounded pools" requirement.
package taskservice

import (
	"context"
	"log/slog"

	"golang.org/x/sync/semaphore"
)

// Service runs fire-and-forget functions under a fixed concurrency bound.
// Submit is non-blocking: if the pool is saturated and the queue is full,
// the task is dropped (spec §4.3 "requestTile is a no-op when the
// TaskService queue is full").
type Service struct {
	sem      *semaphore.Weighted
	queue    chan func()
	log      *slog.Logger
	stopCh   chan struct{}
}

// New builds a Service with maxWorkers concurrent tasks and a bounded
// backlog of queueSize pending tasks.
func New(maxWorkers, queueSize int) *Service {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	s := &Service{
		sem:    semaphore.NewWeighted(int64(maxWorkers)),
		queue:  make(chan func(), queueSize),
		log:    slog.Default().With("component", "taskservice"),
		stopCh: make(chan struct{}),
	}
	go s.dispatch()
	return s
}

// Submit enqueues fn for execution and returns true, or returns false
// without running fn if the backlog is full.
func (s *Service) Submit(fn func()) bool {
	select {
	case s.queue <- fn:
		return true
	default:
		return false
	}
}

// Full reports whether the backlog is currently saturated.
func (s *Service) Full() bool {
	return len(s.queue) >= cap(s.queue)
}

func (s *Service) dispatch() {
	for {
		select {
		case <-s.stopCh:
			return
		case fn := <-s.queue:
			if err := s.sem.Acquire(context.Background(), 1); err != nil {
				continue
			}
			go func() {
				defer s.sem.Release(1)
				defer func() {
					if r := recover(); r != nil {
						s.log.Error("task panicked", "recover", r)
					}
				}()
				fn()
			}()
		}
	}
}

// Close stops accepting new dispatch cycles. In-flight tasks are not
// cancelled; they run to completion (there is no per-query timeout, per
// spec §5).
func (s *Service) Close() {
	close(s.stopCh)
}
