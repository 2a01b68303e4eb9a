// Package retrieval is the bounded worker pool that runs URL fetch tasks
// for the elevation pyramid, with priority ordering and URL dedup. It
// mirrors the teacher's per-downloader semaphore.Weighted pools
// (internal/downloads/esri, internal/downloads/googleearth) generalized
// into one pool shared across every tile request in the process, and its
// internal/ratelimit.Handler backoff logic.
package retrieval

import (
	"container/heap"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// PostProcessor receives the outcome of one fetch task.
type PostProcessor func(body []byte, contentType string, err error)

// Task is one fetch request, keyed by URL for dedup.
type Task struct {
	Key      string // dedup key, typically the request URL
	URL      string
	Priority int // higher runs first among queued tasks
	Post     PostProcessor
}

// taskItem is a Task plus its heap index, for the priority queue.
type taskItem struct {
	task  Task
	index int
}

type priorityQueue []*taskItem

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	return pq[i].task.Priority > pq[j].task.Priority
}
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index, pq[j].index = i, j
}
func (pq *priorityQueue) Push(x any) {
	item := x.(*taskItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

// Service is a bounded worker pool for network tile retrieval.
type Service struct {
	client      *http.Client
	maxQueue    int
	sem         *semaphore.Weighted
	group       singleflight.Group
	rateLimiter *rateLimiter
	log         *slog.Logger

	mu       sync.Mutex
	queue    priorityQueue
	inflight map[string]bool
	cond     *sync.Cond

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Config tunes the pool.
type Config struct {
	MaxWorkers int
	MaxQueue   int
	HTTPClient *http.Client
	Strategy   RetryStrategy
}

// New builds a Service and starts its worker goroutines.
func New(cfg Config) *Service {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = 256
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if len(cfg.Strategy.Intervals) == 0 {
		cfg.Strategy = DefaultRetryStrategy()
	}
	s := &Service{
		client:      cfg.HTTPClient,
		maxQueue:    cfg.MaxQueue,
		sem:         semaphore.NewWeighted(int64(cfg.MaxWorkers)),
		rateLimiter: newRateLimiter(cfg.Strategy),
		log:         slog.Default().With("component", "retrieval"),
		inflight:    make(map[string]bool),
		stopCh:      make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	heap.Init(&s.queue)

	go s.dispatch()
	return s
}

// Available reports whether the pool has room for another task (spec
// §4.1.3 "available?").
func (s *Service) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) < s.maxQueue
}

// QueueDepth returns the number of tasks currently queued (not counting
// ones already dispatched to a worker), for metrics exposition.
func (s *Service) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Contains reports whether key is currently queued or in flight (spec
// §4.1.3 "contains?").
func (s *Service) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight[key]
}

// Submit enqueues a fetch task. It is a no-op if the task's key is already
// queued or in flight (dedup by URL, spec §4.3.1) or the queue is full.
func (s *Service) Submit(t Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inflight[t.Key] {
		return false
	}
	if len(s.queue) >= s.maxQueue {
		return false
	}
	s.inflight[t.Key] = true
	heap.Push(&s.queue, &taskItem{task: t})
	s.cond.Signal()
	return true
}

// dispatch is the single queue-draining loop; actual fetch concurrency is
// bounded by sem, not by goroutine count, mirroring the teacher's
// per-downloader semaphore.Weighted pools.
func (s *Service) dispatch() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 {
			select {
			case <-s.stopCh:
				s.mu.Unlock()
				return
			default:
			}
			s.cond.Wait()
			select {
			case <-s.stopCh:
				s.mu.Unlock()
				return
			default:
			}
		}
		item := heap.Pop(&s.queue).(*taskItem)
		s.mu.Unlock()

		if err := s.sem.Acquire(context.Background(), 1); err != nil {
			s.mu.Lock()
			delete(s.inflight, item.task.Key)
			s.mu.Unlock()
			continue
		}

		go func(it *taskItem) {
			defer s.sem.Release(1)
			s.run(it.task)
			s.mu.Lock()
			delete(s.inflight, it.task.Key)
			s.mu.Unlock()
		}(item)
	}
}

// run performs one fetch, deduping concurrent identical URLs via
// singleflight and applying the host back-off policy.
func (s *Service) run(t Task) {
	host := hostOf(t.URL)
	if s.rateLimiter.Blocked(host) {
		t.Post(nil, "", errUnavailable(host))
		return
	}

	v, err, _ := s.group.Do(t.Key, func() (any, error) {
		return s.fetch(t.URL, host)
	})
	if err != nil {
		t.Post(nil, "", err)
		return
	}
	res := v.(fetchResult)
	t.Post(res.body, res.contentType, nil)
}

type fetchResult struct {
	body        []byte
	contentType string
}

func (s *Service) fetch(rawURL, host string) (fetchResult, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return fetchResult{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fetchResult{}, err
	}
	defer resp.Body.Close()

	s.rateLimiter.RecordStatus(host, resp.StatusCode)
	if resp.StatusCode != http.StatusOK {
		return fetchResult{}, errUnavailable(host)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fetchResult{}, err
	}
	return fetchResult{body: body, contentType: resp.Header.Get("Content-Type")}, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}

type unavailableError struct{ host string }

func (e unavailableError) Error() string { return "retrieval: " + e.host + " unavailable" }
func errUnavailable(host string) error   { return unavailableError{host: host} }

// Close stops the worker pool.
func (s *Service) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
}
