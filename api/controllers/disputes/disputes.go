package disputes

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/api/middleware"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/api/responses"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/api/validators"
	internaldisputes "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/disputes"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/orders"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
	pkgerrors "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/errors"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/logger"
)

type createRequest struct {
	OrderID     string `json:"order_id" validate:"required,uuid"`
	Reason      string `json:"reason" validate:"required,max=200"`
	Description string `json:"description,omitempty" validate:"max=4000"`
}

type evidenceRequest struct {
	FileRef      string `json:"file_ref" validate:"required,max=1024"`
	EvidenceType string `json:"evidence_type" validate:"required"`
	Description  string `json:"description,omitempty" validate:"max=2000"`
}

type messageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

type statusRequest struct {
	Status            string `json:"status" validate:"required"`
	Resolution        string `json:"resolution,omitempty" validate:"max=4000"`
	RefundAmountCents int64  `json:"refund_amount_cents,omitempty" validate:"gte=0"`
}

type resolveRequest struct {
	Resolution string `json:"resolution" validate:"required,max=4000"`
}

// Create opens a dispute against an order.
func Create(svc internaldisputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}
		var req createRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := uuid.Parse(req.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}

		dispute, err := svc.Create(r.Context(), internaldisputes.CreateInput{
			OrderID:     orderID,
			Actor:       actor,
			Reason:      validators.SanitizeString(req.Reason, 200),
			Description: validators.SanitizeString(req.Description, 4000),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dispute)
	}
}

// Detail returns a dispute with its evidence and messages.
func Detail(svc internaldisputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, disputeID, ok := actorAndDispute(w, r, svc, logg)
		if !ok {
			return
		}
		detail, err := svc.Get(r.Context(), disputeID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// ListByOrder returns every dispute raised against an order.
func ListByOrder(svc internaldisputes.Service, logg *logger.Logger) http.HandlerFunc {
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
		list, err := svc.ListByOrder(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// AddEvidence attaches a file reference to an open dispute.
func AddEvidence(svc internaldisputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, disputeID, ok := actorAndDispute(w, r, svc, logg)
		if !ok {
			return
		}
		var req evidenceRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		evidenceType, err := enums.ParseEvidenceType(strings.ToUpper(strings.TrimSpace(req.EvidenceType)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid evidence type"))
			return
		}

		evidence, err := svc.AddEvidence(r.Context(), internaldisputes.EvidenceInput{
			DisputeID:    disputeID,
			Actor:        actor,
			FileRef:      strings.TrimSpace(req.FileRef),
			EvidenceType: evidenceType,
			Description:  validators.SanitizeString(req.Description, 2000),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, evidence)
	}
}

// AddMessage appends to the dispute conversation.
func AddMessage(svc internaldisputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, disputeID, ok := actorAndDispute(w, r, svc, logg)
		if !ok {
			return
		}
		var req messageRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		message, err := svc.AddMessage(r.Context(), internaldisputes.MessageInput{
			DisputeID: disputeID,
			Actor:     actor,
			Content:   strings.TrimSpace(req.Content),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, message)
	}
}

// UpdateStatus moves a dispute through review, refund or resolution.
func UpdateStatus(svc internaldisputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, disputeID, ok := actorAndDispute(w, r, svc, logg)
		if !ok {
			return
		}
		var req statusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseDisputeStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithDisputeID(ctx, disputeID.String())
		}
		dispute, err := svc.UpdateStatus(ctx, internaldisputes.UpdateStatusInput{
			DisputeID:         disputeID,
			Actor:             actor,
			Status:            status,
			Resolution:        strings.TrimSpace(req.Resolution),
			RefundAmountCents: req.RefundAmountCents,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, dispute)
	}
}

// Resolve closes a dispute without a refund on behalf of its raiser.
func Resolve(svc internaldisputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, disputeID, ok := actorAndDispute(w, r, svc, logg)
		if !ok {
			return
		}
		var req resolveRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dispute, err := svc.Resolve(r.Context(), disputeID, actor, strings.TrimSpace(req.Resolution))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dispute)
	}
}

// Cancel withdraws a dispute on behalf of its raiser.
func Cancel(svc internaldisputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, disputeID, ok := actorAndDispute(w, r, svc, logg)
		if !ok {
			return
		}
		dispute, err := svc.Cancel(r.Context(), disputeID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dispute)
	}
}

func requireActor(w http.ResponseWriter, r *http.Request, svc internaldisputes.Service, logg *logger.Logger) (orders.Actor, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "disputes service unavailable"))
		return orders.Actor{}, false
	}
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
		return orders.Actor{}, false
	}
	return actor, true
}

func actorAndDispute(w http.ResponseWriter, r *http.Request, svc internaldisputes.Service, logg *logger.Logger) (orders.Actor, uuid.UUID, bool) {
	actor, ok := requireActor(w, r, svc, logg)
	if !ok {
		return orders.Actor{}, uuid.Nil, false
	}
	disputeID, err := validators.ParseUUIDParam(r, "disputeId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return orders.Actor{}, uuid.Nil, false
	}
	return actor, disputeID, true
}
