package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driven"
)

// Ensure Queue implements the interface.
var _ driven.IndexQueue = (*Queue)(nil)

// Queue is an in-process IndexQueue. Events are lost on restart.
type Queue struct {
	mu       sync.Mutex
	ready    []*domain.Delivery
	inflight map[string]*domain.Delivery
	nextID   int64

	signal    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		inflight: make(map[string]*domain.Delivery),
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Publish enqueues an event.
func (q *Queue) Publish(_ context.Context, event domain.IndexEvent) error {
	if event.DocumentID == "" {
		return fmt.Errorf("%w: document_id is required", domain.ErrInvalidInput)
	}
	if q.closed() {
		return domain.ErrQueueClosed
	}

	q.mu.Lock()
	q.nextID++
	q.ready = append(q.ready, &domain.Delivery{ID: strconv.FormatInt(q.nextID, 10), Event: event})
	q.mu.Unlock()

	q.wake()
	return nil
}

// Receive blocks until an event is available.
func (q *Queue) Receive(ctx context.Context) (*domain.Delivery, error) {
	for {
		if q.closed() {
			return nil, domain.ErrQueueClosed
		}

		q.mu.Lock()
		if len(q.ready) > 0 {
			d := q.ready[0]
			q.ready = q.ready[1:]
			d.Attempt++
			q.inflight[d.ID] = d
			more := len(q.ready) > 0
			q.mu.Unlock()
			if more {
				q.wake()
			}
			out := *d
			return &out, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.done:
			return nil, domain.ErrQueueClosed
		case <-q.signal:
		}
	}
}

// Ack removes a delivery.
func (q *Queue) Ack(_ context.Context, deliveryID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inflight[deliveryID]; !ok {
		return fmt.Errorf("%w: delivery %s", domain.ErrNotFound, deliveryID)
	}
	delete(q.inflight, deliveryID)
	return nil
}

// Nack releases a delivery, putting it back at the tail when requeue is set.
func (q *Queue) Nack(_ context.Context, deliveryID string, requeue bool) error {
	q.mu.Lock()
	d, ok := q.inflight[deliveryID]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("%w: delivery %s", domain.ErrNotFound, deliveryID)
	}
	delete(q.inflight, deliveryID)
	if requeue {
		q.ready = append(q.ready, d)
	}
	q.mu.Unlock()

	if requeue {
		q.wake()
	}
	return nil
}

// Len returns the number of events not yet acknowledged.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) + len(q.inflight)
}

// Close stops the queue.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

func (q *Queue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *Queue) closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}
