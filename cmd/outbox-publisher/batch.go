package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/models"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/outbox/payloads"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/outbox/registry"
)

type batchStats struct {
	fetched   int
	published int
	retrying  int
	held      int
	parked    int
}

// relayBatch publishes one locked batch. Once an ordering key hits a
// retryable failure, its later rows in the batch stay untouched so the
// next poll resends them behind the failed one.
func (r *Relay) relayBatch(ctx context.Context) (batchStats, error) {
	var stats batchStats
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		stats = batchStats{}
		rows, err := r.repo.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		stats.fetched = len(rows)
		blocked := map[string]bool{}
		for _, row := range rows {
			resolved, err := r.resolver.Resolve(row)
			if err != nil {
				if err := r.park(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, err); err != nil {
					return err
				}
				stats.parked++
				continue
			}
			key := orderingKey(row, resolved)
			logCtx := r.logg.WithFields(ctx, map[string]any{
				"outbox_id":    row.ID.String(),
				"event_type":   row.EventType,
				"ordering_key": key,
				"topic":        resolved.Descriptor.Topic,
				"attempt":      row.AttemptCount + 1,
			})
			if blocked[key] {
				stats.held++
				continue
			}

			pubErr := r.publish(ctx, row, resolved, key)
			if pubErr == nil {
				if err := r.repo.MarkPublishedTx(tx, row.ID); err != nil {
					return fmt.Errorf("mark published %s: %w", row.ID, err)
				}
				stats.published++
				r.logg.Info(logCtx, "outbox event published")
				continue
			}

			var nonRetryable registry.NonRetryableError
			switch {
			case errors.As(pubErr, &nonRetryable):
				if err := r.park(logCtx, tx, row, enums.OutboxDLQReasonNonRetryable, pubErr); err != nil {
					return err
				}
				stats.parked++
			case row.AttemptCount+1 >= r.maxAttempts:
				if err := r.park(logCtx, tx, row, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", pubErr)); err != nil {
					return err
				}
				stats.parked++
			default:
				r.logg.Warn(r.logg.WithField(logCtx, "error", pubErr.Error()), "outbox publish failed; will retry")
				if err := r.repo.MarkFailedTx(tx, row.ID, pubErr); err != nil {
					return fmt.Errorf("mark failure %s: %w", row.ID, err)
				}
				blocked[key] = true
				stats.retrying++
			}
		}
		return nil
	})
	return stats, err
}

// orderingKey groups events that consumers must see in commit order: one
// order's lifecycle including its anchor confirmation, or one dispute.
func orderingKey(row models.OutboxEvent, resolved *registry.ResolvedEvent) string {
	if anchored, ok := resolved.Payload.(*payloads.OrderLedgerAnchoredEvent); ok && anchored.OrderID != uuid.Nil {
		return anchored.OrderID.String()
	}
	return row.AggregateID.String()
}

func (r *Relay) publish(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent, key string) error {
	topic := resolved.Descriptor.Topic
	pub := r.topics.publisherFor(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
	}
	msg := &gcppubsub.Message{
		Data:        row.Payload,
		OrderingKey: key,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"schema_version": strconv.Itoa(resolved.Envelope.Version),
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"created_at":     row.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned no result for topic %s", topic))
	}
	if _, err := result.Get(publishCtx); err != nil {
		// an ordered publisher pauses the key after a failure
		pub.Resume(key)
		return err
	}
	return nil
}

// park moves a row to the dead-letter table and stops its retries.
func (r *Relay) park(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":    row.ID.String(),
		"event_type":   row.EventType,
		"aggregate_id": row.AggregateID.String(),
		"dlq_reason":   reason,
		"error":        cause.Error(),
	})
	r.logg.Warn(logCtx, "outbox event dead-lettered")
	message := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &message,
		AttemptCount:  row.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := r.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", row.ID, err)
	}
	if err := r.repo.MarkTerminalTx(tx, row.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	return nil
}
