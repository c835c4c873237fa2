package driven

import (
	"context"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
)

// IndexQueue delivers index events to the ingestion consumer.
// Deliveries are at-least-once: an event is removed only by Ack.
type IndexQueue interface {
	// Publish enqueues an event.
	Publish(ctx context.Context, event domain.IndexEvent) error

	// Receive blocks until a delivery is available or ctx is done.
	// Only one unacknowledged delivery is handed out per call.
	Receive(ctx context.Context) (*domain.Delivery, error)

	// Ack removes a delivery permanently.
	Ack(ctx context.Context, deliveryID string) error

	// Nack releases a delivery. With requeue it is redelivered later,
	// otherwise it is dropped.
	Nack(ctx context.Context, deliveryID string, requeue bool) error

	// Close stops the queue. Pending Receive calls return domain.ErrQueueClosed.
	Close() error
}
