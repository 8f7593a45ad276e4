package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
)

// LedgerRecord is the single confirmed anchoring receipt of an order.
type LedgerRecord struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID           uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex" json:"order_id"`
	Fingerprint       string    `gorm:"column:fingerprint;not null" json:"fingerprint"`
	ExternalReference string    `gorm:"column:external_reference;not null" json:"external_reference"`
	BlockNumber       int64     `gorm:"column:block_number;not null" json:"block_number"`
	Attempt           int       `gorm:"column:attempt;not null" json:"attempt"`
	ConfirmedAt       time.Time `gorm:"column:confirmed_at;not null" json:"confirmed_at"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (LedgerRecord) TableName() string { return "ledger_records" }

// LedgerAnchorJob is the durable retry queue entry for anchoring one order.
type LedgerAnchorJob struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID       uuid.UUID             `gorm:"column:order_id;type:uuid;not null;uniqueIndex" json:"order_id"`
	Status        enums.AnchorJobStatus `gorm:"column:status;not null" json:"status"`
	Attempt       int                   `gorm:"column:attempt;not null;default:0" json:"attempt"`
	NextAttemptAt time.Time             `gorm:"column:next_attempt_at;not null" json:"next_attempt_at"`
	LastError     *string               `gorm:"column:last_error" json:"last_error"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time             `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (LedgerAnchorJob) TableName() string { return "ledger_anchor_jobs" }
