package taskservice

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubmitRunsTask(t *testing.T) {
	s := New(2, 4)
	defer s.Close()

	var ran int32
	done := make(chan struct{})
	ok := s.Submit(func() {
		atomic.StoreInt32(&ran, 1)
		close(done)
	})
	assert.True(t, ok)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run in time")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestSubmitDropsWhenBacklogFull(t *testing.T) {
	block := make(chan struct{})
	s := New(1, 1)
	defer func() {
		close(block)
		s.Close()
	}()

	requireOK := func(ok bool) {
		if !ok {
			t.Fatal("expected submit to succeed")
		}
	}

	// A occupies the single worker; the dispatch loop then blocks trying
	// to acquire a worker for B, so B sits in the channel buffer (size 1)
	// and C fills it; D has nowhere to go and must be dropped.
	requireOK(s.Submit(func() { <-block }))
	time.Sleep(20 * time.Millisecond)
	requireOK(s.Submit(func() {}))
	requireOK(s.Submit(func() {}))

	ok := s.Submit(func() {})
	assert.False(t, ok)
}

func TestFullReflectsBacklog(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	s := New(1, 1)
	defer s.Close()

	// First submit is picked up by the dispatch loop and occupies the
	// single worker; the second is dequeued into the loop but blocks
	// acquiring a worker, leaving the buffered channel empty; the third
	// is what actually fills the size-1 backlog.
	s.Submit(func() { <-block })
	s.Submit(func() { <-block })
	s.Submit(func() { <-block })
	time.Sleep(20 * time.Millisecond)
	assert.True(t, s.Full())
}

func TestPanicInTaskDoesNotKillPool(t *testing.T) {
	s := New(1, 2)
	defer s.Close()

	s.Submit(func() { panic("boom") })

	done := make(chan struct{})
	s.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool stopped dispatching after a panicking task")
	}
}
