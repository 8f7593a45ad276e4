package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/types"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
)

// Order carries two independent status axes: delivery and payment.
type Order struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	BuyerID           uuid.UUID               `gorm:"column:buyer_id;type:uuid;not null" json:"buyer_id"`
	Currency          enums.Currency          `gorm:"column:currency;not null;default:'USD'" json:"currency"`
	TotalCents        int64                   `gorm:"column:total_cents;not null" json:"total_cents"`
	DeliveryStatus    enums.DeliveryStatus    `gorm:"column:delivery_status;not null" json:"delivery_status"`
	PaymentStatus     enums.PaymentStatus     `gorm:"column:payment_status;not null" json:"payment_status"`
	RefundedCents     int64                   `gorm:"column:refunded_cents;not null;default:0" json:"refunded_cents"`
	PaymentReference  *string                 `gorm:"column:payment_reference" json:"payment_reference"`
	ShippingAddress   dbtypes.ShippingAddress `gorm:"column:shipping_address;type:jsonb;not null" json:"shipping_address"`
	DeliveryProofRef  *string                 `gorm:"column:delivery_proof_ref" json:"delivery_proof_ref"`
	DeliveredAt       *time.Time              `gorm:"column:delivered_at" json:"delivered_at"`
	LedgerRecorded    bool                    `gorm:"column:ledger_recorded;not null;default:false" json:"ledger_recorded"`
	LedgerError       *string                 `gorm:"column:ledger_error" json:"ledger_error"`
	LedgerReference   *string                 `gorm:"column:ledger_reference" json:"ledger_reference"`
	LedgerConfirmedAt *time.Time              `gorm:"column:ledger_confirmed_at" json:"ledger_confirmed_at"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// IsSettled reports whether the order is ready for ledger anchoring.
func (o Order) IsSettled() bool {
	return o.DeliveryStatus == enums.DeliveryStatusDelivered && o.PaymentStatus == enums.PaymentStatusConfirmed
}
