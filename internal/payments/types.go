package payments

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
)

// GatewayEvent is a gateway callback normalized to the payment axis.
type GatewayEvent struct {
	EventID          string
	Type             string
	PaymentReference string
	OrderID          *uuid.UUID
	Status           enums.PaymentStatus
	OccurredAt       time.Time
	Raw              json.RawMessage
}

// Ack is returned to the gateway regardless of internal success.
type Ack struct {
	EventID string                    `json:"event_id"`
	Outcome enums.GatewayEventOutcome `json:"outcome"`
}

// allowedGatewayTransition reports whether a gateway callback may move the payment axis.
func allowedGatewayTransition(current, target enums.PaymentStatus) bool {
	switch current {
	case enums.PaymentStatusPending:
		return target == enums.PaymentStatusConfirmed || target == enums.PaymentStatusFailed
	case enums.PaymentStatusConfirmed, enums.PaymentStatusPartiallyRefunded:
		return target == enums.PaymentStatusRefunded
	}
	return false
}
