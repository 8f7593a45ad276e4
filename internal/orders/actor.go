package orders

import (
	"github.com/google/uuid"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/models"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
	pkgerrors "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/errors"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/outbox"
)

// Actor is the authenticated caller driving a workflow step.
type Actor struct {
	ID   uuid.UUID
	Role enums.ActorRole
}

// SystemActor is used by gateway callbacks and background workers.
var SystemActor = Actor{Role: enums.ActorRoleSystem}

func (a Actor) Validate() error {
	if !a.Role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown actor role")
	}
	if a.Role != enums.ActorRoleSystem && a.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	}
	return nil
}

// HistoryID returns the id recorded on history rows; nil for the system actor.
func (a Actor) HistoryID() *uuid.UUID {
	if a.ID == uuid.Nil {
		return nil
	}
	id := a.ID
	return &id
}

func (a Actor) OutboxRef() *outbox.ActorRef {
	return &outbox.ActorRef{UserID: a.HistoryID(), Role: string(a.Role)}
}

// IsProducerOf reports whether producerID owns or shares any line item.
func IsProducerOf(items []models.OrderLineItem, producerID uuid.UUID) bool {
	for _, item := range items {
		for _, id := range item.ProductSnapshot.Participants() {
			if id == producerID {
				return true
			}
		}
	}
	return false
}

// IsParticipant reports whether the actor is the buyer, a participating producer or an admin.
func IsParticipant(order *models.Order, items []models.OrderLineItem, actor Actor) bool {
	switch actor.Role {
	case enums.ActorRoleAdmin, enums.ActorRoleSystem:
		return true
	case enums.ActorRoleBuyer:
		return order.BuyerID == actor.ID
	case enums.ActorRoleProducer:
		return IsProducerOf(items, actor.ID)
	}
	return false
}

// Authorize applies the order visibility rule.
func Authorize(order *models.Order, items []models.OrderLineItem, actor Actor) error {
	if IsParticipant(order, items, actor) {
		return nil
	}
	if actor.Role == enums.ActorRoleBuyer {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another buyer")
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "actor does not participate in order")
}
