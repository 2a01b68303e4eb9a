package main

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/walkthru-earth/elevationd/internal/bulk"
)

// jobTracker holds the progress of in-flight bulk downloads, keyed by an
// opaque id handed back from POST /bulk so GET /bulk/{id} can poll it.
type jobTracker struct {
	mu   sync.Mutex
	jobs map[string]bulk.Progress
}

func newJobTracker() *jobTracker {
	return &jobTracker{jobs: make(map[string]bulk.Progress)}
}

// start launches a bulk download under a fresh job id and returns it
// immediately; progress updates land in the tracker as they arrive.
func (t *jobTracker) start(ctx context.Context, a *app, req bulkRequest, metrics *metrics) string {
	id := uuid.NewString()
	t.mu.Lock()
	t.jobs[id] = bulk.Progress{}
	t.mu.Unlock()
	metrics.bulkJobsActive.Inc()

	go func() {
		defer metrics.bulkJobsActive.Dec()
		_ = a.downloader.Run(ctx, req.sector(), req.Resolution, func(p bulk.Progress) {
			t.mu.Lock()
			prev := t.jobs[id]
			t.jobs[id] = p
			t.mu.Unlock()
			if p.CurrentCount > prev.CurrentCount {
				metrics.bulkTilesFetched.Add(float64(p.CurrentCount - prev.CurrentCount))
			}
		})
	}()
	return id
}

func (t *jobTracker) get(id string) (bulk.Progress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.jobs[id]
	return p, ok
}
