package orders

import "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"

// allowedTransitions is the delivery-axis legality table. Every (role, status)
// pair is spelled out so adding a role or status forces a decision here.
func allowedTransitions(role enums.ActorRole, current enums.DeliveryStatus) []enums.DeliveryStatus {
	switch role {
	case enums.ActorRoleBuyer:
		switch current {
		case enums.DeliveryStatusPending:
			return []enums.DeliveryStatus{enums.DeliveryStatusCancelled}
		case enums.DeliveryStatusConfirmed, enums.DeliveryStatusShipped, enums.DeliveryStatusDelivered, enums.DeliveryStatusCancelled:
			return nil
		}
	case enums.ActorRoleProducer, enums.ActorRoleAdmin:
		switch current {
		case enums.DeliveryStatusPending:
			return []enums.DeliveryStatus{enums.DeliveryStatusConfirmed, enums.DeliveryStatusShipped, enums.DeliveryStatusCancelled}
		case enums.DeliveryStatusConfirmed:
			return []enums.DeliveryStatus{enums.DeliveryStatusShipped, enums.DeliveryStatusCancelled}
		case enums.DeliveryStatusShipped:
			return []enums.DeliveryStatus{enums.DeliveryStatusDelivered}
		case enums.DeliveryStatusDelivered:
			// Delivered orders only change through the dispute refund path.
			return nil
		case enums.DeliveryStatusCancelled:
			if role == enums.ActorRoleAdmin {
				return []enums.DeliveryStatus{enums.DeliveryStatusPending}
			}
			return nil
		}
	case enums.ActorRoleSystem:
		return nil
	}
	return nil
}

func isAllowed(role enums.ActorRole, current, target enums.DeliveryStatus) bool {
	for _, candidate := range allowedTransitions(role, current) {
		if candidate == target {
			return true
		}
	}
	return false
}
