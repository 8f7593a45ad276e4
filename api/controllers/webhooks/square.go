package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/api/responses"
	squarewebhook "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/webhooks/square"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/payments"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
	pkgerrors "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/errors"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/logger"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/square"
)

const (
	squareSignatureHeader = "X-Square-Hmacsha256-Signature"
	maxWebhookBody        = 1 << 20
)

type SquareWebhookService interface {
	HandleEvent(ctx context.Context, event *squarewebhook.SquareWebhookEvent) (*payments.Ack, error)
}

type squareWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// SquareSigning carries the key and URL Square signs notifications with.
type SquareSigning struct {
	SignatureKey    string
	NotificationURL string
}

// SquareWebhook verifies and dedups Square payment notifications, then hands them
// to the payment reconciler. Once the signature checks out the delivery is acknowledged
// with 200 whatever the outcome; failures are left to the manual reconciliation queue.
func SquareWebhook(svc SquareWebhookService, signing SquareSigning, guard squareWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		if !square.VerifySignature(signing.SignatureKey, signing.NotificationURL, payload, r.Header.Get(squareSignatureHeader)) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid square signature"))
			return
		}

		event, err := squarewebhook.ParseEvent(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}

		eventID := strings.TrimSpace(event.EventID)
		if eventID == "" {
			eventID = strings.TrimSpace(event.Data.ID)
		}
		if eventID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "event id missing"))
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"gateway_event_id": eventID, "gateway_event_type": event.Type})
		}

		// gateway_events still dedups durably when redis is unreachable.
		alreadyProcessed, err := guard.CheckAndMark(ctx, eventID)
		if err != nil {
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "square.webhook.guard_unavailable")
			}
			alreadyProcessed = false
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, payments.Ack{EventID: eventID, Outcome: enums.GatewayOutcomeDuplicate})
			return
		}

		ack, err := svc.HandleEvent(ctx, event)
		if err != nil {
			if logg != nil {
				logg.Error(ctx, "square.webhook.failed", err)
			}
			ack = &payments.Ack{EventID: eventID, Outcome: enums.GatewayOutcomeFailed}
		}
		if ack != nil && ack.Outcome == enums.GatewayOutcomeFailed {
			if delErr := guard.Delete(ctx, eventID); delErr != nil && logg != nil {
				logg.Warn(logg.WithField(ctx, "error", delErr.Error()), "square.webhook.guard_release_failed")
			}
		}

		if ack == nil {
			if logg != nil {
				logg.Debug(ctx, "square.webhook.ignored")
			}
			responses.WriteSuccess(w, map[string]any{"event_id": eventID, "ignored": true})
			return
		}
		if logg != nil {
			logg.Info(logg.WithField(ctx, "outcome", string(ack.Outcome)), "square.webhook.processed")
		}
		responses.WriteSuccess(w, ack)
	}
}
