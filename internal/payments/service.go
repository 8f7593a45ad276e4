package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/orders"
	dbpkg "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/models"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
	pkgerrors "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/errors"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/logger"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/outbox"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/outbox/payloads"
)

const defaultConflictAttempts = 3

var errAlreadyRecorded = errors.New("gateway event already recorded")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Observer receives gateway outcomes and payment-axis conflicts.
type Observer interface {
	ObserveGatewayEvent(outcome string)
	ObserveConflict(axis string)
}

type ServiceParams struct {
	Repository       Repository
	Orders           orders.Repository
	TxRunner         txRunner
	Outbox           outbox.Emitter
	Anchors          orders.AnchorScheduler
	Observer         Observer
	Logger           *logger.Logger
	ConflictAttempts int
	Now              func() time.Time
}

// Service applies gateway callbacks to the payment axis of orders.
type Service struct {
	repo             Repository
	orders           orders.Repository
	tx               txRunner
	outbox           outbox.Emitter
	anchors          orders.AnchorScheduler
	observer         Observer
	logg             *logger.Logger
	conflictAttempts int
	now              func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	attempts := params.ConflictAttempts
	if attempts <= 0 {
		attempts = defaultConflictAttempts
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:             params.Repository,
		orders:           params.Orders,
		tx:               params.TxRunner,
		outbox:           params.Outbox,
		anchors:          params.Anchors,
		observer:         params.Observer,
		logg:             params.Logger,
		conflictAttempts: attempts,
		now:              now,
	}, nil
}

type applyResult struct {
	outcome  enums.GatewayEventOutcome
	detail   string
	orderID  *uuid.UUID
	delivery enums.DeliveryStatus
	queue    bool
}

// ApplyGatewayEvent never fails toward the gateway: internal errors surface as outcome failed
// and land in the manual reconciliation queue.
func (s *Service) ApplyGatewayEvent(ctx context.Context, event GatewayEvent) Ack {
	return s.apply(ctx, event, true)
}

// QueueUnresolved records a callback the adapter could not normalize for manual
// reconciliation and acknowledges it as failed.
func (s *Service) QueueUnresolved(ctx context.Context, event GatewayEvent, cause error) Ack {
	event.EventID = strings.TrimSpace(event.EventID)
	event.PaymentReference = strings.TrimSpace(event.PaymentReference)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"gateway_event_id":  event.EventID,
		"payment_reference": event.PaymentReference,
	})
	return s.fail(ctx, event, event.OrderID, cause, true)
}

func (s *Service) apply(ctx context.Context, event GatewayEvent, queueProblems bool) Ack {
	event.EventID = strings.TrimSpace(event.EventID)
	event.PaymentReference = strings.TrimSpace(event.PaymentReference)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"gateway_event_id":  event.EventID,
		"payment_reference": event.PaymentReference,
		"target_status":     event.Status,
	})

	if reason := validateEvent(event); reason != "" {
		s.logg.Warn(ctx, "gateway event rejected: "+reason)
		if queueProblems {
			s.queueManual(ctx, event, event.OrderID, reason)
		}
		return s.ack(event.EventID, enums.GatewayOutcomeRejected)
	}

	existing, err := s.repo.FindEvent(ctx, event.EventID)
	if err != nil {
		return s.fail(ctx, event, event.OrderID, err, queueProblems)
	}
	if existing != nil {
		return s.ack(event.EventID, enums.GatewayOutcomeDuplicate)
	}

	var res applyResult
	for attempt := 1; attempt <= s.conflictAttempts; attempt++ {
		res, err = s.applyOnce(ctx, event)
		if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
			break
		}
		if s.observer != nil {
			s.observer.ObserveConflict(string(enums.StatusAxisPayment))
		}
		s.logg.Warn(ctx, fmt.Sprintf("payment status changed concurrently (attempt %d/%d)", attempt, s.conflictAttempts))
	}
	if errors.Is(err, errAlreadyRecorded) {
		return s.ack(event.EventID, enums.GatewayOutcomeDuplicate)
	}
	if err != nil {
		return s.fail(ctx, event, res.orderID, err, queueProblems)
	}

	if res.queue && queueProblems {
		s.queueManual(ctx, event, res.orderID, res.detail)
	}
	if res.outcome == enums.GatewayOutcomeRejected {
		s.logg.Warn(ctx, "gateway event recorded without effect: "+res.detail)
	}
	if res.outcome == enums.GatewayOutcomeApplied {
		s.logg.Info(s.logg.WithOrderID(ctx, res.orderID.String()), "payment status applied")
		if event.Status == enums.PaymentStatusConfirmed && res.delivery == enums.DeliveryStatusDelivered {
			s.scheduleAnchor(ctx, *res.orderID)
		}
	}
	return s.ack(event.EventID, res.outcome)
}

func (s *Service) applyOnce(ctx context.Context, event GatewayEvent) (applyResult, error) {
	var res applyResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res = applyResult{}
		repo := s.repo.WithTx(tx)
		orderRepo := s.orders.WithTx(tx)

		row := &models.GatewayEvent{
			EventID:          event.EventID,
			EventType:        event.Type,
			PaymentReference: event.PaymentReference,
			OrderID:          event.OrderID,
			TargetStatus:     event.Status,
			Outcome:          enums.GatewayOutcomeApplied,
			ReceivedAt:       s.now().UTC(),
		}
		if err := repo.InsertEvent(ctx, row); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return errAlreadyRecorded
			}
			return fmt.Errorf("record gateway event: %w", err)
		}

		order, detail, err := s.locateOrder(ctx, orderRepo, event)
		if err != nil {
			return err
		}
		if order == nil {
			res.outcome = enums.GatewayOutcomeRejected
			res.detail = detail
			res.queue = true
			return repo.FinishEvent(ctx, event.EventID, event.OrderID, res.outcome, detail)
		}
		orderID := order.ID
		res.orderID = &orderID
		res.delivery = order.DeliveryStatus

		current := order.PaymentStatus
		switch {
		case current == event.Status:
			res.outcome = enums.GatewayOutcomeDuplicateState
		case current.IsTerminal() || !allowedGatewayTransition(current, event.Status):
			res.outcome = enums.GatewayOutcomeRejected
			res.detail = fmt.Sprintf("payment is %s; gateway cannot move it to %s", current, event.Status)
		default:
			if err := s.applyTransition(ctx, tx, orderRepo, order, event); err != nil {
				return err
			}
			res.outcome = enums.GatewayOutcomeApplied
		}
		return repo.FinishEvent(ctx, event.EventID, res.orderID, res.outcome, res.detail)
	})
	return res, err
}

func (s *Service) applyTransition(ctx context.Context, tx *gorm.DB, orderRepo orders.Repository, order *models.Order, event GatewayEvent) error {
	current := order.PaymentStatus
	extra := map[string]any{}
	if event.Status == enums.PaymentStatusRefunded {
		extra["refunded_cents"] = order.TotalCents
	}
	ok, err := orderRepo.UpdatePaymentStatus(ctx, order.ID, current, event.Status, extra)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConflict, "payment status changed concurrently").
			WithDetails(map[string]any{"expected": current})
	}

	reason := fmt.Sprintf("gateway event %s", event.EventID)
	if err := orderRepo.AppendHistory(ctx, &models.OrderStatusHistory{
		OrderID:    order.ID,
		Axis:       enums.StatusAxisPayment,
		FromStatus: string(current),
		ToStatus:   string(event.Status),
		ActorID:    orders.SystemActor.HistoryID(),
		ActorRole:  orders.SystemActor.Role,
		Reason:     &reason,
	}); err != nil {
		return fmt.Errorf("append payment history: %w", err)
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaymentChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         orders.SystemActor.OutboxRef(),
		Data: payloads.OrderPaymentChangedEvent{
			OrderID:          order.ID,
			FromStatus:       current,
			ToStatus:         event.Status,
			PaymentReference: event.PaymentReference,
			GatewayEventID:   event.EventID,
		},
	})
}

// locateOrder finds the order by payment reference, falling back to the order id and binding
// the reference on first sight. A nil order comes with the reason it could not be matched.
func (s *Service) locateOrder(ctx context.Context, repo orders.Repository, event GatewayEvent) (*models.Order, string, error) {
	order, err := repo.FindOrderByPaymentReference(ctx, event.PaymentReference)
	if err == nil {
		return order, "", nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", fmt.Errorf("find order by reference: %w", err)
	}
	if event.OrderID == nil {
		return nil, "no order matches payment reference", nil
	}

	order, err = repo.FindOrder(ctx, *event.OrderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "order not found", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("find order: %w", err)
	}
	if order.PaymentReference != nil {
		return nil, fmt.Sprintf("order already bound to payment reference %s", *order.PaymentReference), nil
	}
	bound, err := repo.BindPaymentReference(ctx, order.ID, event.PaymentReference)
	if err != nil {
		return nil, "", fmt.Errorf("bind payment reference: %w", err)
	}
	if !bound {
		return nil, "", pkgerrors.New(pkgerrors.CodeConflict, "payment reference bound concurrently")
	}
	ref := event.PaymentReference
	order.PaymentReference = &ref
	return order, "", nil
}

func (s *Service) scheduleAnchor(ctx context.Context, orderID uuid.UUID) {
	if s.anchors == nil {
		return
	}
	if err := s.anchors.Enqueue(ctx, orderID); err != nil {
		s.logg.Error(s.logg.WithOrderID(ctx, orderID.String()), "enqueue ledger anchor after payment", err)
	}
}

func (s *Service) fail(ctx context.Context, event GatewayEvent, orderID *uuid.UUID, err error, queue bool) Ack {
	s.logg.Error(ctx, "apply gateway event", err)
	if queue {
		s.queueManual(ctx, event, orderID, err.Error())
	}
	return s.ack(event.EventID, enums.GatewayOutcomeFailed)
}

func (s *Service) queueManual(ctx context.Context, event GatewayEvent, orderID *uuid.UUID, reason string) {
	eventID := event.EventID
	if eventID == "" {
		eventID = "invalid:" + uuid.NewString()
	}
	payload := event.Raw
	if len(payload) == 0 {
		payload, _ = json.Marshal(map[string]any{
			"event_id":          event.EventID,
			"type":              event.Type,
			"payment_reference": event.PaymentReference,
			"order_id":          event.OrderID,
			"status":            event.Status,
			"occurred_at":       event.OccurredAt,
		})
	}
	entry := &models.PaymentReconciliation{
		EventID:          eventID,
		PaymentReference: event.PaymentReference,
		OrderID:          orderID,
		Payload:          payload,
		Error:            reason,
	}
	if err := s.repo.QueueManual(ctx, entry); err != nil {
		s.logg.Error(ctx, "queue manual payment reconciliation", err)
	}
}

func (s *Service) ack(eventID string, outcome enums.GatewayEventOutcome) Ack {
	if s.observer != nil {
		s.observer.ObserveGatewayEvent(string(outcome))
	}
	return Ack{EventID: eventID, Outcome: outcome}
}

func validateEvent(event GatewayEvent) string {
	switch {
	case event.EventID == "":
		return "event id missing"
	case event.PaymentReference == "":
		return "payment reference missing"
	case !event.Status.IsValid():
		return fmt.Sprintf("unknown payment status %q", event.Status)
	}
	return ""
}
