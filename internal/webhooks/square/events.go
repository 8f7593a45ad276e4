package squarewebhook

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
)

const (
	EventPaymentCreated = "payment.created"
	EventPaymentUpdated = "payment.updated"
	EventRefundUpdated  = "refund.updated"
)

// SquareWebhookEvent is the notification envelope Square posts.
type SquareWebhookEvent struct {
	MerchantID string            `json:"merchant_id"`
	EventID    string            `json:"event_id"`
	Type       string            `json:"type"`
	CreatedAt  time.Time         `json:"created_at"`
	Data       SquareWebhookData `json:"data"`
	Raw        json.RawMessage   `json:"-"`
}

type SquareWebhookData struct {
	Type   string              `json:"type"`
	ID     string              `json:"id"`
	Object SquareWebhookObject `json:"object"`
}

type SquareWebhookObject struct {
	Payment *SquarePayment `json:"payment,omitempty"`
	Refund  *SquareRefund  `json:"refund,omitempty"`
}

type SquareMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type SquarePayment struct {
	ID            string       `json:"id"`
	Status        string       `json:"status"`
	ReferenceID   string       `json:"reference_id"`
	AmountMoney   *SquareMoney `json:"amount_money,omitempty"`
	RefundedMoney *SquareMoney `json:"refunded_money,omitempty"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

type SquareRefund struct {
	ID          string       `json:"id"`
	Status      string       `json:"status"`
	PaymentID   string       `json:"payment_id"`
	AmountMoney *SquareMoney `json:"amount_money,omitempty"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// ParseEvent decodes a notification body and keeps the raw bytes for reconciliation.
func ParseEvent(body []byte) (*SquareWebhookEvent, error) {
	var event SquareWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, err
	}
	event.Raw = json.RawMessage(append([]byte(nil), body...))
	return &event, nil
}

// PaymentStatusFor maps a Square payment status onto the payment axis. ok is false for
// statuses that are still settling.
func PaymentStatusFor(squareStatus string) (status enums.PaymentStatus, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(squareStatus)) {
	case "COMPLETED":
		return enums.PaymentStatusConfirmed, true
	case "FAILED", "CANCELED":
		return enums.PaymentStatusFailed, true
	default:
		return "", false
	}
}
