package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/models"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/logger"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/outbox"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/outbox/payloads"
)

type orderFinder interface {
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

type enqueuer interface {
	Enqueue(ctx context.Context, orderID uuid.UUID) error
}

// SettlementConsumer watches order events and schedules anchoring once an
// order is both delivered and paid. Enqueue is idempotent so redelivery is harmless.
type SettlementConsumer struct {
	orders       orderFinder
	anchors      enqueuer
	subscription *pubsub.Subscriber
	logg         *logger.Logger
}

func NewSettlementConsumer(orders orderFinder, anchors enqueuer, subscription *pubsub.Subscriber, logg *logger.Logger) (*SettlementConsumer, error) {
	if orders == nil {
		return nil, errors.New("orders repository is required")
	}
	if anchors == nil {
		return nil, errors.New("anchor scheduler is required")
	}
	if subscription == nil {
		return nil, errors.New("orders subscription is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &SettlementConsumer{orders: orders, anchors: anchors, subscription: subscription, logg: logg}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (c *SettlementConsumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process reports whether the message should be acked.
func (c *SettlementConsumer) process(ctx context.Context, msg *pubsub.Message) bool {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	orderID, relevant, err := settlementCandidate(eventType, msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode order event", err)
		return true
	}
	if !relevant {
		return true
	}
	logCtx = c.logg.WithOrderID(logCtx, orderID.String())

	order, err := c.orders.FindOrder(logCtx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.logg.Warn(logCtx, "order for settlement event not found")
			return true
		}
		c.logg.Error(logCtx, "load order for settlement event", err)
		return false
	}
	if !order.IsSettled() {
		return true
	}
	if err := c.anchors.Enqueue(logCtx, orderID); err != nil {
		c.logg.Error(logCtx, "enqueue anchor from settlement event", err)
		return false
	}
	c.logg.Info(logCtx, "anchor scheduled from settlement event")
	return true
}

// settlementCandidate extracts the order id when the event can complete settlement.
func settlementCandidate(eventType enums.OutboxEventType, data []byte) (uuid.UUID, bool, error) {
	switch eventType {
	case enums.EventOrderStatusChanged, enums.EventOrderPaymentChanged:
	default:
		return uuid.Nil, false, nil
	}
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return uuid.Nil, false, fmt.Errorf("decode envelope: %w", err)
	}
	if eventType == enums.EventOrderStatusChanged {
		var payload payloads.OrderStatusChangedEvent
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return uuid.Nil, false, fmt.Errorf("decode status change: %w", err)
		}
		return payload.OrderID, payload.ToStatus == enums.DeliveryStatusDelivered, nil
	}
	var payload payloads.OrderPaymentChangedEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return uuid.Nil, false, fmt.Errorf("decode payment change: %w", err)
	}
	return payload.OrderID, payload.ToStatus == enums.PaymentStatusConfirmed, nil
}
