package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-indexer/internal/logger"
)

// Ensure Consumer implements the interface.
var _ driving.IngestionConsumer = (*Consumer)(nil)

// DefaultMaxAttempts is the delivery count after which a document is failed.
const DefaultMaxAttempts = 5

// Consumer ingests documents named by queued index events, one at a time.
type Consumer struct {
	queue       driven.IndexQueue
	docs        driven.DocumentStore
	indexer     *IndexService
	maxAttempts int
	// errorBackoff is the pause after a queue error.
	errorBackoff time.Duration
}

// NewConsumer creates a consumer. Non-positive maxAttempts uses the default.
func NewConsumer(queue driven.IndexQueue, docs driven.DocumentStore, indexer *IndexService, maxAttempts int) *Consumer {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Consumer{
		queue:        queue,
		docs:         docs,
		indexer:      indexer,
		maxAttempts:  maxAttempts,
		errorBackoff: time.Second,
	}
}

// Run consumes events until ctx is cancelled or the queue is closed.
// A document in flight when ctx is cancelled is finished first.
func (c *Consumer) Run(ctx context.Context) error {
	logger.Info("ingestion consumer started", "max_attempts", c.maxAttempts)
	defer logger.Info("ingestion consumer stopped")

	for {
		delivery, err := c.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, domain.ErrQueueClosed) {
				return nil
			}
			logger.Error("queue receive failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.errorBackoff):
			}
			continue
		}

		// Cancellation must not interrupt a document half way.
		c.handle(context.WithoutCancel(ctx), delivery)
	}
}

// handle processes one delivery and settles it with the queue.
func (c *Consumer) handle(ctx context.Context, d *domain.Delivery) {
	documentID := d.Event.DocumentID
	started := time.Now()

	requeue, err := c.process(ctx, d)
	switch {
	case err == nil:
		c.ack(ctx, d)
		logger.Info("document processed", "document_id", documentID, "attempt", d.Attempt,
			"duration_ms", time.Since(started).Milliseconds())
	case requeue:
		logger.Warn("document requeued", "document_id", documentID, "attempt", d.Attempt, "error", err)
		if nackErr := c.queue.Nack(ctx, d.ID, true); nackErr != nil {
			logger.Error("nack failed", "document_id", documentID, "error", nackErr)
		}
	default:
		logger.Error("document failed", "document_id", documentID, "attempt", d.Attempt, "error", err)
		c.ack(ctx, d)
	}
}

// process ingests the document. It reports whether a failure should be retried.
func (c *Consumer) process(ctx context.Context, d *domain.Delivery) (requeue bool, err error) {
	documentID := d.Event.DocumentID

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while processing document", "document_id", documentID,
				"panic", r, "stack", string(debug.Stack()))
			requeue, err = true, fmt.Errorf("panic: %v", r)
		}
	}()

	doc, err := c.docs.GetDocument(ctx, documentID)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Warn("queued document not found, dropping event", "document_id", documentID)
		return false, nil
	}
	if err != nil {
		return true, fmt.Errorf("load document: %w", err)
	}
	if doc.Status == domain.StatusDeleted {
		logger.Debug("queued document was deleted, dropping event", "document_id", documentID)
		return false, nil
	}

	if d.Attempt > c.maxAttempts {
		err := fmt.Errorf("gave up after %d attempts", c.maxAttempts)
		c.setStatus(ctx, documentID, domain.StatusFailed, err)
		return false, err
	}

	_, err = c.indexer.Ingest(ctx, doc)
	if err == nil {
		return false, nil
	}

	if domain.IsUnavailable(err) && d.Attempt < c.maxAttempts {
		c.setStatus(ctx, documentID, domain.StatusPending, err)
		return true, err
	}

	c.setStatus(ctx, documentID, domain.StatusFailed, err)
	return false, err
}

func (c *Consumer) setStatus(ctx context.Context, documentID string, status domain.DocumentStatus, cause error) {
	update := domain.StatusUpdate{Status: status}
	if cause != nil {
		update.Error = cause.Error()
	}
	if err := c.docs.UpdateStatus(ctx, documentID, update); err != nil {
		logger.Error("status update failed", "document_id", documentID, "status", status, "error", err)
	}
}

func (c *Consumer) ack(ctx context.Context, d *domain.Delivery) {
	if err := c.queue.Ack(ctx, d.ID); err != nil {
		logger.Error("ack failed", "document_id", d.Event.DocumentID, "error", err)
	}
}
