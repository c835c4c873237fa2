package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driven"
)

// QueueOptions tunes the durable queue.
type QueueOptions struct {
	// LeaseTimeout is how long a received job stays invisible before it is
	// redelivered. Covers consumers that crash without Ack or Nack.
	LeaseTimeout time.Duration

	// RetryDelay postpones a job released with Nack(requeue=true).
	RetryDelay time.Duration

	// PollInterval bounds how long Receive sleeps between checks.
	PollInterval time.Duration
}

func (o QueueOptions) withDefaults() QueueOptions {
	if o.LeaseTimeout <= 0 {
		o.LeaseTimeout = 5 * time.Minute
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	return o
}

// Queue is a durable IndexQueue stored in the index_jobs table.
// Jobs survive restarts; a job leased by a crashed consumer becomes
// visible again once its lease expires.
type Queue struct {
	store *Store
	opts  QueueOptions

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// now is swapped in tests.
	now func() time.Time
}

var _ driven.IndexQueue = (*Queue)(nil)

// Queue returns the durable index queue backed by this store.
func (s *Store) Queue(opts QueueOptions) *Queue {
	return &Queue{
		store:  s,
		opts:   opts.withDefaults(),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		now:    time.Now,
	}
}

// Publish enqueues an event.
func (q *Queue) Publish(ctx context.Context, event domain.IndexEvent) error {
	if event.DocumentID == "" {
		return fmt.Errorf("%w: document_id is required", domain.ErrInvalidInput)
	}
	if q.closed() {
		return domain.ErrQueueClosed
	}

	now := q.now().UnixNano()
	_, err := q.store.db.ExecContext(ctx, `
		INSERT INTO index_jobs (document_id, attempts, available_at, created_at)
		VALUES (?, 0, ?, ?)
	`, event.DocumentID, now, now)
	if err != nil {
		return fmt.Errorf("publishing index event: %w", err)
	}

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Receive leases the oldest visible job, waiting until one is available.
func (q *Queue) Receive(ctx context.Context) (*domain.Delivery, error) {
	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		if q.closed() {
			return nil, domain.ErrQueueClosed
		}

		delivery, err := q.lease(ctx)
		if err != nil {
			return nil, err
		}
		if delivery != nil {
			return delivery, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.done:
			return nil, domain.ErrQueueClosed
		case <-q.notify:
		case <-ticker.C:
		}
	}
}

// lease claims one job atomically. Returns nil when none is visible.
func (q *Queue) lease(ctx context.Context) (*domain.Delivery, error) {
	now := q.now()
	row := q.store.db.QueryRowContext(ctx, `
		UPDATE index_jobs
		SET attempts = attempts + 1, leased_until = ?
		WHERE id = (
			SELECT id FROM index_jobs
			WHERE available_at <= ? AND (leased_until IS NULL OR leased_until <= ?)
			ORDER BY id
			LIMIT 1
		)
		RETURNING id, document_id, attempts
	`, now.Add(q.opts.LeaseTimeout).UnixNano(), now.UnixNano(), now.UnixNano())

	var id int64
	var d domain.Delivery
	if err := row.Scan(&id, &d.Event.DocumentID, &d.Attempt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("leasing index job: %w", err)
	}
	d.ID = strconv.FormatInt(id, 10)
	return &d, nil
}

// Ack removes a delivery permanently.
func (q *Queue) Ack(ctx context.Context, deliveryID string) error {
	id, err := parseDeliveryID(deliveryID)
	if err != nil {
		return err
	}
	if _, err := q.store.db.ExecContext(ctx, "DELETE FROM index_jobs WHERE id = ?", id); err != nil {
		return fmt.Errorf("acknowledging index job: %w", err)
	}
	return nil
}

// Nack releases a delivery. Requeued jobs become visible after RetryDelay.
func (q *Queue) Nack(ctx context.Context, deliveryID string, requeue bool) error {
	id, err := parseDeliveryID(deliveryID)
	if err != nil {
		return err
	}

	if !requeue {
		if _, err := q.store.db.ExecContext(ctx, "DELETE FROM index_jobs WHERE id = ?", id); err != nil {
			return fmt.Errorf("dropping index job: %w", err)
		}
		return nil
	}

	availableAt := q.now().Add(q.opts.RetryDelay).UnixNano()
	if _, err := q.store.db.ExecContext(ctx, `
		UPDATE index_jobs SET leased_until = NULL, available_at = ? WHERE id = ?
	`, availableAt, id); err != nil {
		return fmt.Errorf("requeueing index job: %w", err)
	}
	return nil
}

// Pending counts jobs not yet acknowledged.
func (q *Queue) Pending(ctx context.Context) (int, error) {
	var n int
	if err := q.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM index_jobs").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting index jobs: %w", err)
	}
	return n, nil
}

// Close stops the queue. The underlying store stays open.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

func (q *Queue) closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

func parseDeliveryID(deliveryID string) (int64, error) {
	id, err := strconv.ParseInt(deliveryID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: delivery id %q", domain.ErrInvalidInput, deliveryID)
	}
	return id, nil
}
