package retrieval

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitFetchesAndPostsResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("tile-bytes"))
	}))
	defer srv.Close()

	s := New(Config{MaxWorkers: 2, MaxQueue: 8})
	defer s.Close()

	done := make(chan struct{})
	var body []byte
	var ct string
	var fetchErr error

	s.Submit(Task{
		Key: srv.URL, URL: srv.URL,
		Post: func(b []byte, contentType string, err error) {
			body, ct, fetchErr = b, contentType, err
			close(done)
		},
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not complete in time")
	}

	require.NoError(t, fetchErr)
	assert.Equal(t, "tile-bytes", string(body))
	assert.Equal(t, "application/octet-stream", ct)
}

func TestSubmitDedupsInFlightKey(t *testing.T) {
	var calls int32
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	s := New(Config{MaxWorkers: 4, MaxQueue: 8})
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		ok := s.Submit(Task{Key: srv.URL, URL: srv.URL, Post: func([]byte, string, error) { wg.Done() }})
		if !ok {
			wg.Done()
		}
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, calls, int32(1), "concurrent identical URLs should be deduped by the in-flight key check")
}

func TestAvailableReflectsQueueDepth(t *testing.T) {
	s := New(Config{MaxWorkers: 1, MaxQueue: 1})
	defer s.Close()
	assert.True(t, s.Available())
}

func TestRateLimiterBlocksAfter429(t *testing.T) {
	rl := newRateLimiter(RetryStrategy{Intervals: []time.Duration{time.Minute}})
	now := time.Unix(0, 0)
	rl.now = func() time.Time { return now }

	assert.False(t, rl.Blocked("host"))
	rl.RecordStatus("host", http.StatusTooManyRequests)
	assert.True(t, rl.Blocked("host"))

	now = now.Add(2 * time.Minute)
	assert.False(t, rl.Blocked("host"))
}
