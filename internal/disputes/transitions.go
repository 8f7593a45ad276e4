package disputes

import (
	"github.com/google/uuid"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/orders"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/models"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
)

// relation is how the acting user relates to a dispute.
type relation int

const (
	relationOther relation = iota
	relationRaiser
	relationAdmin
)

func relationOf(dispute *models.Dispute, actor orders.Actor) relation {
	if actor.Role == enums.ActorRoleAdmin {
		return relationAdmin
	}
	if actor.ID != uuid.Nil && actor.ID == dispute.RaisedBy {
		return relationRaiser
	}
	return relationOther
}

// allowedTransitions is the dispute legality table.
func allowedTransitions(rel relation, current enums.DisputeStatus) []enums.DisputeStatus {
	switch rel {
	case relationAdmin:
		switch current {
		case enums.DisputeStatusOpen:
			return []enums.DisputeStatus{enums.DisputeStatusUnderReview}
		case enums.DisputeStatusUnderReview:
			return []enums.DisputeStatus{enums.DisputeStatusResolved, enums.DisputeStatusRefunded}
		case enums.DisputeStatusResolved, enums.DisputeStatusRefunded, enums.DisputeStatusCancelled:
			return nil
		}
	case relationRaiser:
		switch current {
		case enums.DisputeStatusOpen:
			// Self-withdrawal: resolve without refund, or cancel.
			return []enums.DisputeStatus{enums.DisputeStatusResolved, enums.DisputeStatusCancelled}
		case enums.DisputeStatusUnderReview, enums.DisputeStatusResolved, enums.DisputeStatusRefunded, enums.DisputeStatusCancelled:
			return nil
		}
	case relationOther:
		return nil
	}
	return nil
}

func isAllowed(rel relation, current, target enums.DisputeStatus) bool {
	for _, candidate := range allowedTransitions(rel, current) {
		if candidate == target {
			return true
		}
	}
	return false
}
