package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
)

// GatewayEvent is the durable dedup record of a payment gateway callback.
type GatewayEvent struct {
	EventID          string                    `gorm:"column:event_id;primaryKey"`
	EventType        string                    `gorm:"column:event_type;not null"`
	PaymentReference string                    `gorm:"column:payment_reference;not null"`
	OrderID          *uuid.UUID                `gorm:"column:order_id;type:uuid"`
	TargetStatus     enums.PaymentStatus       `gorm:"column:target_status;not null"`
	Outcome          enums.GatewayEventOutcome `gorm:"column:outcome;not null"`
	Detail           *string                   `gorm:"column:detail"`
	ReceivedAt       time.Time                 `gorm:"column:received_at;not null"`
}

func (GatewayEvent) TableName() string { return "gateway_events" }

// PaymentReconciliation queues callbacks that could not be applied for manual follow-up.
type PaymentReconciliation struct {
	ID               uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	EventID          string                     `gorm:"column:event_id;not null;uniqueIndex"`
	PaymentReference string                     `gorm:"column:payment_reference;not null"`
	OrderID          *uuid.UUID                 `gorm:"column:order_id;type:uuid"`
	Payload          json.RawMessage            `gorm:"column:payload;type:jsonb;not null"`
	Error            string                     `gorm:"column:error;not null"`
	Status           enums.ReconciliationStatus `gorm:"column:status;not null"`
	Attempts         int                        `gorm:"column:attempts;not null;default:0"`
	CreatedAt        time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
	ResolvedAt       *time.Time                 `gorm:"column:resolved_at"`
}

func (PaymentReconciliation) TableName() string { return "payment_reconciliation_queue" }
