package disputes

import (
	"github.com/google/uuid"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/orders"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/models"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
)

type CreateInput struct {
	OrderID     uuid.UUID
	Actor       orders.Actor
	Reason      string
	Description string
}

type UpdateStatusInput struct {
	DisputeID         uuid.UUID
	Actor             orders.Actor
	Status            enums.DisputeStatus
	Resolution        string
	RefundAmountCents int64
}

type EvidenceInput struct {
	DisputeID    uuid.UUID
	Actor        orders.Actor
	FileRef      string
	EvidenceType enums.EvidenceType
	Description  string
}

type MessageInput struct {
	DisputeID uuid.UUID
	Actor     orders.Actor
	Content   string
}

// DisputeDetail bundles a dispute with its evidence and conversation.
type DisputeDetail struct {
	Dispute  models.Dispute           `json:"dispute"`
	Evidence []models.DisputeEvidence `json:"evidence"`
	Messages []models.DisputeMessage  `json:"messages"`
}
