package squarewebhook

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/payments"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
	pkgerrors "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/errors"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/logger"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/square"
)

type reconciler interface {
	ApplyGatewayEvent(ctx context.Context, event payments.GatewayEvent) payments.Ack
	QueueUnresolved(ctx context.Context, event payments.GatewayEvent, cause error) payments.Ack
}

type paymentFetcher interface {
	GetPayment(ctx context.Context, paymentID string) (*square.Payment, error)
}

type ServiceParams struct {
	Reconciler reconciler
	Payments   paymentFetcher
	Logger     *logger.Logger
}

// Service turns Square notifications into gateway events for the payment reconciler.
type Service struct {
	reconciler reconciler
	payments   paymentFetcher
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment reconciler required")
	}
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "square payments client required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		reconciler: params.Reconciler,
		payments:   params.Payments,
		logg:       params.Logger,
	}, nil
}

// HandleEvent returns a nil ack for notifications that carry no final payment state.
// Failures reaching Square are queued for manual reconciliation, never returned.
func (s *Service) HandleEvent(ctx context.Context, event *SquareWebhookEvent) (*payments.Ack, error) {
	if event == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}

	var gatewayEvent *payments.GatewayEvent
	var err error
	switch strings.ToLower(event.Type) {
	case EventPaymentCreated, EventPaymentUpdated:
		gatewayEvent = s.fromPayment(event)
	case EventRefundUpdated:
		gatewayEvent, err = s.fromRefund(ctx, event)
		if err != nil {
			// The sweep re-reads the payment from Square once it is reachable again.
			ack := s.reconciler.QueueUnresolved(ctx, payments.GatewayEvent{
				EventID:          event.EventID,
				Type:             event.Type,
				PaymentReference: event.Data.Object.Refund.PaymentID,
				Raw:              event.Raw,
			}, err)
			return &ack, nil
		}
	default:
		s.logg.Debug(ctx, "ignoring square event type "+event.Type)
		return nil, nil
	}
	if gatewayEvent == nil {
		return nil, nil
	}
	ack := s.reconciler.ApplyGatewayEvent(ctx, *gatewayEvent)
	return &ack, nil
}

func (s *Service) fromPayment(event *SquareWebhookEvent) *payments.GatewayEvent {
	payment := event.Data.Object.Payment
	if payment == nil {
		// Hand malformed notifications to the reconciler so they reach the manual queue.
		return &payments.GatewayEvent{EventID: event.EventID, Type: event.Type, PaymentReference: event.Data.ID, Raw: event.Raw}
	}
	status, ok := PaymentStatusFor(payment.Status)
	if !ok {
		return nil
	}
	reference := payment.ID
	if reference == "" {
		reference = event.Data.ID
	}
	return &payments.GatewayEvent{
		EventID:          event.EventID,
		Type:             event.Type,
		PaymentReference: reference,
		OrderID:          parseOrderID(payment.ReferenceID),
		Status:           status,
		OccurredAt:       occurredAt(payment.UpdatedAt, event),
		Raw:              event.Raw,
	}
}

// fromRefund emits REFUNDED only once Square reports the payment fully refunded. Partial
// refunds move money through the dispute refund path instead.
func (s *Service) fromRefund(ctx context.Context, event *SquareWebhookEvent) (*payments.GatewayEvent, error) {
	refund := event.Data.Object.Refund
	if refund == nil || !strings.EqualFold(refund.Status, "COMPLETED") || refund.PaymentID == "" {
		return nil, nil
	}
	payment, err := s.payments.GetPayment(ctx, refund.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment.AmountCents <= 0 || payment.Refunded < payment.AmountCents {
		s.logg.Info(s.logg.WithField(ctx, "payment_reference", refund.PaymentID), "partial square refund ignored")
		return nil, nil
	}
	return &payments.GatewayEvent{
		EventID:          event.EventID,
		Type:             event.Type,
		PaymentReference: refund.PaymentID,
		OrderID:          parseOrderID(payment.ReferenceID),
		Status:           enums.PaymentStatusRefunded,
		OccurredAt:       occurredAt(refund.UpdatedAt, event),
		Raw:              event.Raw,
	}, nil
}

// LookupPayment reports Square's current view of a payment for the manual reconciliation sweep.
func (s *Service) LookupPayment(ctx context.Context, reference string) (enums.PaymentStatus, bool, error) {
	payment, err := s.payments.GetPayment(ctx, reference)
	if err != nil {
		return "", false, err
	}
	if payment.AmountCents > 0 && payment.Refunded >= payment.AmountCents {
		return enums.PaymentStatusRefunded, true, nil
	}
	status, ok := PaymentStatusFor(payment.Status)
	return status, ok, nil
}

func parseOrderID(raw string) *uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	return &id
}

func occurredAt(objectTime time.Time, event *SquareWebhookEvent) time.Time {
	if !objectTime.IsZero() {
		return objectTime.UTC()
	}
	return event.CreatedAt.UTC()
}
