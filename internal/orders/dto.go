package orders

import (
	"github.com/google/uuid"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/models"
	dbtypes "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/types"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
)

// ItemInput is one requested product in a new order.
type ItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// CreateInput carries a buyer's checkout request.
type CreateInput struct {
	BuyerID         uuid.UUID
	Currency        enums.Currency
	ShippingAddress dbtypes.ShippingAddress
	Items           []ItemInput
}

// TransitionInput requests a delivery-axis change.
type TransitionInput struct {
	OrderID          uuid.UUID
	Status           enums.DeliveryStatus
	Actor            Actor
	Reason           string
	DeliveryProofRef string
}

// OrderDetail is the read model returned to participants.
type OrderDetail struct {
	Order     models.Order                `json:"order"`
	LineItems []models.OrderLineItem      `json:"line_items"`
	History   []models.OrderStatusHistory `json:"history"`
}
