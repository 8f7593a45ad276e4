package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder        OutboxAggregateType = "order"
	AggregateDispute      OutboxAggregateType = "dispute"
	AggregateLedgerRecord OutboxAggregateType = "ledger_record"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateDispute,
	AggregateLedgerRecord,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOrderCreated         OutboxEventType = "order_created"
	EventOrderStatusChanged   OutboxEventType = "order_status_changed"
	EventOrderPaymentChanged  OutboxEventType = "order_payment_changed"
	EventOrderLedgerAnchored  OutboxEventType = "order_ledger_anchored"
	EventDisputeOpened        OutboxEventType = "dispute_opened"
	EventDisputeStatusChanged OutboxEventType = "dispute_status_changed"
	EventDisputeRefunded      OutboxEventType = "dispute_refunded"
	EventDisputeEvidenceAdded OutboxEventType = "dispute_evidence_added"
	EventDisputeMessageAdded  OutboxEventType = "dispute_message_added"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderStatusChanged,
	EventOrderPaymentChanged,
	EventOrderLedgerAnchored,
	EventDisputeOpened,
	EventDisputeStatusChanged,
	EventDisputeRefunded,
	EventDisputeEvidenceAdded,
	EventDisputeMessageAdded,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
