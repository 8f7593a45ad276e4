package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
)

// OrderCreatedEvent is emitted once the order and its line items are persisted.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID      `json:"order_id"`
	BuyerID       uuid.UUID      `json:"buyer_id"`
	Currency      enums.Currency `json:"currency"`
	TotalCents    int64          `json:"total_cents"`
	LineItemCount int            `json:"line_item_count"`
	ProducerIDs   []uuid.UUID    `json:"producer_ids"`
}

// OrderStatusChangedEvent describes one accepted delivery-axis transition.
type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID            `json:"order_id"`
	FromStatus enums.DeliveryStatus `json:"from_status"`
	ToStatus   enums.DeliveryStatus `json:"to_status"`
	ActorRole  enums.ActorRole      `json:"actor_role"`
	Reason     string               `json:"reason,omitempty"`
}

// OrderPaymentChangedEvent describes a payment-axis change driven by the gateway.
type OrderPaymentChangedEvent struct {
	OrderID          uuid.UUID           `json:"order_id"`
	FromStatus       enums.PaymentStatus `json:"from_status"`
	ToStatus         enums.PaymentStatus `json:"to_status"`
	PaymentReference string              `json:"payment_reference"`
	GatewayEventID   string              `json:"gateway_event_id"`
}

type OrderLedgerAnchoredEvent struct {
	OrderID           uuid.UUID `json:"order_id"`
	Fingerprint       string    `json:"fingerprint"`
	ExternalReference string    `json:"external_reference"`
	BlockNumber       int64     `json:"block_number"`
	ConfirmedAt       time.Time `json:"confirmed_at"`
}

type DisputeOpenedEvent struct {
	DisputeID    uuid.UUID       `json:"dispute_id"`
	OrderID      uuid.UUID       `json:"order_id"`
	RaisedBy     uuid.UUID       `json:"raised_by"`
	RaisedByRole enums.ActorRole `json:"raised_by_role"`
	Reason       string          `json:"reason"`
}

type DisputeStatusChangedEvent struct {
	DisputeID  uuid.UUID           `json:"dispute_id"`
	OrderID    uuid.UUID           `json:"order_id"`
	FromStatus enums.DisputeStatus `json:"from_status"`
	ToStatus   enums.DisputeStatus `json:"to_status"`
	ActorRole  enums.ActorRole     `json:"actor_role"`
	Resolution string              `json:"resolution,omitempty"`
}

// DisputeRefundedEvent carries the refund delta applied to the order's payment axis.
type DisputeRefundedEvent struct {
	DisputeID          uuid.UUID           `json:"dispute_id"`
	OrderID            uuid.UUID           `json:"order_id"`
	RefundAmountCents  int64               `json:"refund_amount_cents"`
	TotalRefundedCents int64               `json:"total_refunded_cents"`
	PaymentStatus      enums.PaymentStatus `json:"payment_status"`
}

type DisputeEvidenceAddedEvent struct {
	DisputeID    uuid.UUID          `json:"dispute_id"`
	EvidenceID   uuid.UUID          `json:"evidence_id"`
	EvidenceType enums.EvidenceType `json:"evidence_type"`
	UploadedBy   uuid.UUID          `json:"uploaded_by"`
}

type DisputeMessageAddedEvent struct {
	DisputeID  uuid.UUID       `json:"dispute_id"`
	MessageID  uuid.UUID       `json:"message_id"`
	SenderID   uuid.UUID       `json:"sender_id"`
	SenderRole enums.ActorRole `json:"sender_role"`
}
