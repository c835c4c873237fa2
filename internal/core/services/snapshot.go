package services

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-indexer/internal/logger"
)

// PersistTask is a handle on a scheduled snapshot write.
type PersistTask struct {
	done chan struct{}
	err  error
}

func newPersistTask() *PersistTask {
	return &PersistTask{done: make(chan struct{})}
}

// Done is closed when the write has finished.
func (t *PersistTask) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the write finishes or ctx is done.
func (t *PersistTask) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the write error. Only meaningful after Done is closed.
func (t *PersistTask) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

func (t *PersistTask) finish(err error) {
	t.err = err
	close(t.done)
}

// Snapshotter writes index snapshots off the request path.
// Writes run one at a time. Requests made while a write is queued share
// that queued write, so a burst of mutations costs at most two writes.
type Snapshotter struct {
	index driven.VectorIndex

	mu      sync.Mutex
	running bool
	next    *PersistTask
	last    *PersistTask
}

// NewSnapshotter creates a Snapshotter for index.
func NewSnapshotter(index driven.VectorIndex) *Snapshotter {
	return &Snapshotter{index: index}
}

// Schedule requests a snapshot write and returns its task.
func (s *Snapshotter) Schedule() *PersistTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next != nil {
		return s.next
	}

	t := newPersistTask()
	s.next = t
	s.last = t
	if !s.running {
		s.running = true
		go s.loop()
	}
	return t
}

// Persist schedules a write and waits for it.
func (s *Snapshotter) Persist(ctx context.Context) error {
	return s.Schedule().Wait(ctx)
}

func (s *Snapshotter) loop() {
	for {
		s.mu.Lock()
		t := s.next
		if t == nil {
			s.running = false
			s.mu.Unlock()
			return
		}
		s.next = nil
		s.mu.Unlock()

		started := time.Now()
		err := s.index.Persist(context.Background())
		if err != nil {
			logger.Error("index snapshot failed", "error", err)
		} else {
			logger.Debug("index snapshot written", "duration_ms", time.Since(started).Milliseconds())
		}
		t.finish(err)
	}
}

// Flush waits for every write scheduled so far. Writes run in order,
// so waiting on the most recent one covers all earlier ones.
func (s *Snapshotter) Flush(ctx context.Context) error {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()

	if last == nil {
		return nil
	}
	return last.Wait(ctx)
}
