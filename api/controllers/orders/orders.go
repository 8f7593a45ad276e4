package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/api/middleware"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/api/responses"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/api/validators"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/ledger"
	internalorders "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/orders"
	dbtypes "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/types"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
	pkgerrors "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/errors"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/logger"
)

// LedgerVerifier reports the anchoring state of a settled order.
type LedgerVerifier interface {
	Verify(ctx context.Context, orderID uuid.UUID) (ledger.VerifyResult, error)
}

type shippingAddressRequest struct {
	RecipientName string  `json:"recipient_name" validate:"required,max=200"`
	Line1         string  `json:"line1" validate:"required,max=200"`
	Line2         *string `json:"line2,omitempty" validate:"omitempty,max=200"`
	City          string  `json:"city" validate:"required,max=100"`
	Region        string  `json:"region,omitempty" validate:"max=100"`
	PostalCode    string  `json:"postal_code,omitempty" validate:"max=20"`
	Country       string  `json:"country" validate:"required,len=2"`
	Phone         *string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

type orderItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type createOrderRequest struct {
	Currency        string                 `json:"currency,omitempty"`
	ShippingAddress shippingAddressRequest `json:"shipping_address" validate:"required"`
	Items           []orderItemRequest     `json:"items" validate:"required,min=1,dive"`
}

type updateStatusRequest struct {
	Status           string `json:"status" validate:"required"`
	Reason           string `json:"reason,omitempty" validate:"max=500"`
	DeliveryProofRef string `json:"delivery_proof_ref,omitempty" validate:"max=1024"`
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// Create places a new order for the authenticated buyer.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := req.toInput(actor.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, detail)
	}
}

// Detail returns the order with its line items and status history.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.Get(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// Payouts returns the commission split for the order.
func Payouts(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Payouts(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// UpdateStatus drives the delivery axis of the order state machine.
func UpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseDeliveryStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
		}
		order, err := svc.Transition(ctx, internalorders.TransitionInput{
			OrderID:          orderID,
			Status:           status,
			Actor:            actor,
			Reason:           validators.SanitizeString(req.Reason, 500),
			DeliveryProofRef: strings.TrimSpace(req.DeliveryProofRef),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// Cancel withdraws a pending order on behalf of its buyer.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req cancelRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Cancel(r.Context(), orderID, actor, validators.SanitizeString(req.Reason, 500))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// Ledger reports whether the order's settlement record is anchored and intact.
func Ledger(svc internalorders.Service, verifier LedgerVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if verifier == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger verifier unavailable"))
			return
		}
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		// Visibility follows the order read rule.
		if _, err := svc.Get(r.Context(), orderID, actor); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := verifier.Verify(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func requireActor(w http.ResponseWriter, r *http.Request, svc internalorders.Service, logg *logger.Logger) (internalorders.Actor, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
		return internalorders.Actor{}, false
	}
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
		return internalorders.Actor{}, false
	}
	return actor, true
}

func (req createOrderRequest) toInput(buyerID uuid.UUID) (internalorders.CreateInput, error) {
	input := internalorders.CreateInput{
		BuyerID: buyerID,
		ShippingAddress: dbtypes.ShippingAddress{
			RecipientName: strings.TrimSpace(req.ShippingAddress.RecipientName),
			Line1:         strings.TrimSpace(req.ShippingAddress.Line1),
			Line2:         req.ShippingAddress.Line2,
			City:          strings.TrimSpace(req.ShippingAddress.City),
			Region:        strings.TrimSpace(req.ShippingAddress.Region),
			PostalCode:    strings.TrimSpace(req.ShippingAddress.PostalCode),
			Country:       strings.ToUpper(strings.TrimSpace(req.ShippingAddress.Country)),
			Phone:         req.ShippingAddress.Phone,
		},
		Items: make([]internalorders.ItemInput, 0, len(req.Items)),
	}
	if raw := strings.TrimSpace(req.Currency); raw != "" {
		currency, err := enums.ParseCurrency(strings.ToUpper(raw))
		if err != nil {
			return internalorders.CreateInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency")
		}
		input.Currency = currency
	}
	for _, item := range req.Items {
		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			return internalorders.CreateInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id")
		}
		input.Items = append(input.Items, internalorders.ItemInput{ProductID: productID, Quantity: item.Quantity})
	}
	return input, nil
}
