package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
)

type Dispute struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID           uuid.UUID           `gorm:"column:order_id;type:uuid;not null" json:"order_id"`
	RaisedBy          uuid.UUID           `gorm:"column:raised_by;type:uuid;not null" json:"raised_by"`
	RaisedByRole      enums.ActorRole     `gorm:"column:raised_by_role;not null" json:"raised_by_role"`
	Status            enums.DisputeStatus `gorm:"column:status;not null" json:"status"`
	Reason            string              `gorm:"column:reason;not null" json:"reason"`
	Description       string              `gorm:"column:description;not null;default:''" json:"description"`
	Resolution        *string             `gorm:"column:resolution" json:"resolution"`
	RefundAmountCents *int64              `gorm:"column:refund_amount_cents" json:"refund_amount_cents"`
	ResolvedBy        *uuid.UUID          `gorm:"column:resolved_by;type:uuid" json:"resolved_by"`
	ResolvedAt        *time.Time          `gorm:"column:resolved_at" json:"resolved_at"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Dispute) TableName() string { return "disputes" }

type DisputeEvidence struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	DisputeID    uuid.UUID          `gorm:"column:dispute_id;type:uuid;not null" json:"dispute_id"`
	UploadedBy   uuid.UUID          `gorm:"column:uploaded_by;type:uuid;not null" json:"uploaded_by"`
	UploaderRole enums.ActorRole    `gorm:"column:uploader_role;not null" json:"uploader_role"`
	FileRef      string             `gorm:"column:file_ref;not null" json:"file_ref"`
	EvidenceType enums.EvidenceType `gorm:"column:evidence_type;not null" json:"evidence_type"`
	Description  string             `gorm:"column:description;not null;default:''" json:"description"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (DisputeEvidence) TableName() string { return "dispute_evidence" }

type DisputeMessage struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	DisputeID  uuid.UUID       `gorm:"column:dispute_id;type:uuid;not null" json:"dispute_id"`
	SenderID   uuid.UUID       `gorm:"column:sender_id;type:uuid;not null" json:"sender_id"`
	SenderRole enums.ActorRole `gorm:"column:sender_role;not null" json:"sender_role"`
	Content    string          `gorm:"column:content;not null" json:"content"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (DisputeMessage) TableName() string { return "dispute_messages" }
