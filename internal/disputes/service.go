package disputes

import (
	"context"
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

const (
	maxReasonLength  = 200
	maxTextLength    = 4000
	maxFileRefLength = 1024
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service drives disputes raised against orders.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Dispute, error)
	AddEvidence(ctx context.Context, input EvidenceInput) (*models.DisputeEvidence, error)
	AddMessage(ctx context.Context, input MessageInput) (*models.DisputeMessage, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Dispute, error)
	Resolve(ctx context.Context, disputeID uuid.UUID, actor orders.Actor, resolution string) (*models.Dispute, error)
	Cancel(ctx context.Context, disputeID uuid.UUID, actor orders.Actor) (*models.Dispute, error)
	Get(ctx context.Context, disputeID uuid.UUID, actor orders.Actor) (*DisputeDetail, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID, actor orders.Actor) ([]models.Dispute, error)
}

type service struct {
	repo   Repository
	orders orders.Repository
	tx     txRunner
	outbox outbox.Emitter
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(repo Repository, orderRepo orders.Repository, tx txRunner, emitter outbox.Emitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("disputes repository required")
	}
	if orderRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, orders: orderRepo, tx: tx, outbox: emitter, logg: logg, now: time.Now}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Dispute, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if err := input.Actor.Validate(); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" || len(reason) > maxReasonLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("reason must be 1-%d characters", maxReasonLength))
	}
	description := strings.TrimSpace(input.Description)
	if len(description) > maxTextLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "description too long")
	}

	dispute := &models.Dispute{
		ID:           uuid.New(),
		OrderID:      input.OrderID,
		RaisedBy:     input.Actor.ID,
		RaisedByRole: input.Actor.Role,
		Status:       enums.DisputeStatusOpen,
		Reason:       reason,
		Description:  description,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, items, err := s.loadOrder(ctx, s.orders.WithTx(tx), input.OrderID)
		if err != nil {
			return err
		}
		if !canRaise(order, items, input.Actor) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer or a participating producer can raise a dispute")
		}
		if order.DeliveryStatus == enums.DeliveryStatusPending {
			return pkgerrors.New(pkgerrors.CodeInvalidState, "order has not been confirmed yet").
				WithDetails(map[string]any{"delivery_status": order.DeliveryStatus})
		}
		active, err := repo.HasActive(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check active disputes")
		}
		if active {
			return errActiveDispute()
		}
		if err := repo.Create(ctx, dispute); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return errActiveDispute()
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create dispute")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDisputeOpened,
			AggregateType: enums.AggregateDispute,
			AggregateID:   dispute.ID,
			Actor:         input.Actor.OutboxRef(),
			Data: payloads.DisputeOpenedEvent{
				DisputeID:    dispute.ID,
				OrderID:      dispute.OrderID,
				RaisedBy:     dispute.RaisedBy,
				RaisedByRole: dispute.RaisedByRole,
				Reason:       dispute.Reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithDisputeID(s.logg.WithOrderID(ctx, dispute.OrderID.String()), dispute.ID.String()), "dispute opened")
	return dispute, nil
}

func (s *service) AddEvidence(ctx context.Context, input EvidenceInput) (*models.DisputeEvidence, error) {
	if input.DisputeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute id required")
	}
	if err := input.Actor.Validate(); err != nil {
		return nil, err
	}
	fileRef := strings.TrimSpace(input.FileRef)
	if fileRef == "" || len(fileRef) > maxFileRefLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file reference required")
	}
	if input.EvidenceType == "" {
		input.EvidenceType = enums.EvidenceTypeOther
	}
	if !input.EvidenceType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown evidence type")
	}
	if len(input.Description) > maxTextLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "description too long")
	}

	evidence := &models.DisputeEvidence{
		ID:           uuid.New(),
		DisputeID:    input.DisputeID,
		UploadedBy:   input.Actor.ID,
		UploaderRole: input.Actor.Role,
		FileRef:      fileRef,
		EvidenceType: input.EvidenceType,
		Description:  strings.TrimSpace(input.Description),
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := s.openForContribution(ctx, repo, s.orders.WithTx(tx), input.DisputeID, input.Actor); err != nil {
			return err
		}
		if err := repo.AddEvidence(ctx, evidence); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store evidence")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDisputeEvidenceAdded,
			AggregateType: enums.AggregateDispute,
			AggregateID:   input.DisputeID,
			Actor:         input.Actor.OutboxRef(),
			Data: payloads.DisputeEvidenceAddedEvent{
				DisputeID:    input.DisputeID,
				EvidenceID:   evidence.ID,
				EvidenceType: evidence.EvidenceType,
				UploadedBy:   evidence.UploadedBy,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return evidence, nil
}

func (s *service) AddMessage(ctx context.Context, input MessageInput) (*models.DisputeMessage, error) {
	if input.DisputeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute id required")
	}
	if err := input.Actor.Validate(); err != nil {
		return nil, err
	}
	content := strings.TrimSpace(input.Content)
	if content == "" || len(content) > maxTextLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("message must be 1-%d characters", maxTextLength))
	}

	message := &models.DisputeMessage{
		ID:         uuid.New(),
		DisputeID:  input.DisputeID,
		SenderID:   input.Actor.ID,
		SenderRole: input.Actor.Role,
		Content:    content,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := s.openForContribution(ctx, repo, s.orders.WithTx(tx), input.DisputeID, input.Actor); err != nil {
			return err
		}
		if err := repo.AddMessage(ctx, message); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store message")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDisputeMessageAdded,
			AggregateType: enums.AggregateDispute,
			AggregateID:   input.DisputeID,
			Actor:         input.Actor.OutboxRef(),
			Data: payloads.DisputeMessageAddedEvent{
				DisputeID:  input.DisputeID,
				MessageID:  message.ID,
				SenderID:   message.SenderID,
				SenderRole: message.SenderRole,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return message, nil
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Dispute, error) {
	if input.DisputeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown dispute status")
	}
	if err := input.Actor.Validate(); err != nil {
		return nil, err
	}
	resolution := strings.TrimSpace(input.Resolution)
	if len(resolution) > maxTextLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "resolution too long")
	}

	var updated *models.Dispute
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		orderRepo := s.orders.WithTx(tx)
		dispute, err := s.loadDispute(ctx, repo, input.DisputeID)
		if err != nil {
			return err
		}
		current := dispute.Status
		if current.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeDisputeClosed, fmt.Sprintf("dispute is %s", current))
		}
		rel := relationOf(dispute, input.Actor)
		if input.Status == enums.DisputeStatusRefunded && rel != relationAdmin {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only an admin can refund a dispute")
		}
		if rel == relationOther {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the raiser or an admin can change dispute status")
		}
		if !isAllowed(rel, current, input.Status) {
			return pkgerrors.New(pkgerrors.CodeIllegalTransition, fmt.Sprintf("dispute cannot move from %s to %s", current, input.Status)).
				WithDetails(map[string]any{
					"from":    current,
					"to":      input.Status,
					"allowed": allowedTransitions(rel, current),
				})
		}

		extra := map[string]any{}
		if input.Status.IsTerminal() {
			now := s.now().UTC()
			resolvedBy := input.Actor.ID
			extra["resolved_by"] = resolvedBy
			extra["resolved_at"] = now
			dispute.ResolvedBy = &resolvedBy
			dispute.ResolvedAt = &now
			if resolution != "" {
				extra["resolution"] = resolution
				dispute.Resolution = &resolution
			}
		}

		var refund *payloads.DisputeRefundedEvent
		if input.Status == enums.DisputeStatusRefunded {
			refund, err = s.applyRefund(ctx, orderRepo, dispute, input)
			if err != nil {
				return err
			}
			amount := input.RefundAmountCents
			extra["refund_amount_cents"] = amount
			dispute.RefundAmountCents = &amount
		}

		ok, err := repo.UpdateStatus(ctx, dispute.ID, current, input.Status, extra)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update dispute status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "dispute status changed concurrently").
				WithDetails(map[string]any{"expected": current})
		}
		dispute.Status = input.Status

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDisputeStatusChanged,
			AggregateType: enums.AggregateDispute,
			AggregateID:   dispute.ID,
			Actor:         input.Actor.OutboxRef(),
			Data: payloads.DisputeStatusChangedEvent{
				DisputeID:  dispute.ID,
				OrderID:    dispute.OrderID,
				FromStatus: current,
				ToStatus:   input.Status,
				ActorRole:  input.Actor.Role,
				Resolution: resolution,
			},
		}); err != nil {
			return err
		}
		if refund != nil {
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventDisputeRefunded,
				AggregateType: enums.AggregateDispute,
				AggregateID:   dispute.ID,
				Actor:         input.Actor.OutboxRef(),
				Data:          *refund,
			}); err != nil {
				return err
			}
		}
		updated = dispute
		return nil
	})
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"dispute_id": updated.ID.String(),
		"order_id":   updated.OrderID.String(),
		"status":     updated.Status,
	})
	s.logg.Info(logCtx, "dispute status changed")
	return updated, nil
}

// applyRefund moves the order's payment axis by the refund delta. It re-reads the
// order inside the dispute transaction and writes with the re-read status as precondition.
func (s *service) applyRefund(ctx context.Context, orderRepo orders.Repository, dispute *models.Dispute, input UpdateStatusInput) (*payloads.DisputeRefundedEvent, error) {
	order, err := orderRepo.FindOrder(ctx, dispute.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	amount := input.RefundAmountCents
	if amount <= 0 || amount > order.TotalCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive and at most the order total").
			WithDetails(map[string]any{"total_cents": order.TotalCents})
	}
	prior := order.PaymentStatus
	if prior != enums.PaymentStatusConfirmed && prior != enums.PaymentStatusPartiallyRefunded {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "order payment is not refundable").
			WithDetails(map[string]any{"payment_status": prior})
	}
	cumulative := order.RefundedCents + amount
	if cumulative > order.TotalCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund exceeds remaining refundable amount").
			WithDetails(map[string]any{"refundable_cents": order.TotalCents - order.RefundedCents})
	}
	next := enums.PaymentStatusPartiallyRefunded
	if cumulative == order.TotalCents {
		next = enums.PaymentStatusRefunded
	}

	ok, err := orderRepo.UpdatePaymentStatus(ctx, order.ID, prior, next, map[string]any{"refunded_cents": cumulative})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order payment changed concurrently").
			WithDetails(map[string]any{"expected": prior})
	}

	reason := fmt.Sprintf("dispute %s refund of %d cents", dispute.ID, amount)
	if err := orderRepo.AppendHistory(ctx, &models.OrderStatusHistory{
		ID:         uuid.New(),
		OrderID:    order.ID,
		Axis:       enums.StatusAxisPayment,
		FromStatus: string(prior),
		ToStatus:   string(next),
		ActorID:    input.Actor.HistoryID(),
		ActorRole:  input.Actor.Role,
		Reason:     &reason,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append payment history")
	}

	return &payloads.DisputeRefundedEvent{
		DisputeID:          dispute.ID,
		OrderID:            order.ID,
		RefundAmountCents:  amount,
		TotalRefundedCents: cumulative,
		PaymentStatus:      next,
	}, nil
}

func (s *service) Resolve(ctx context.Context, disputeID uuid.UUID, actor orders.Actor, resolution string) (*models.Dispute, error) {
	return s.UpdateStatus(ctx, UpdateStatusInput{DisputeID: disputeID, Actor: actor, Status: enums.DisputeStatusResolved, Resolution: resolution})
}

func (s *service) Cancel(ctx context.Context, disputeID uuid.UUID, actor orders.Actor) (*models.Dispute, error) {
	return s.UpdateStatus(ctx, UpdateStatusInput{DisputeID: disputeID, Actor: actor, Status: enums.DisputeStatusCancelled})
}

func (s *service) Get(ctx context.Context, disputeID uuid.UUID, actor orders.Actor) (*DisputeDetail, error) {
	if disputeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute id required")
	}
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	dispute, err := s.loadDispute(ctx, s.repo, disputeID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, s.orders, dispute, actor); err != nil {
		return nil, err
	}
	evidence, err := s.repo.ListEvidence(ctx, disputeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list evidence")
	}
	messages, err := s.repo.ListMessages(ctx, disputeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list messages")
	}
	return &DisputeDetail{Dispute: *dispute, Evidence: evidence, Messages: messages}, nil
}

func (s *service) ListByOrder(ctx context.Context, orderID uuid.UUID, actor orders.Actor) ([]models.Dispute, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	order, items, err := s.loadOrder(ctx, s.orders, orderID)
	if err != nil {
		return nil, err
	}
	if err := orders.Authorize(order, items, actor); err != nil {
		return nil, err
	}
	disputes, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list disputes")
	}
	return disputes, nil
}

// openForContribution loads the dispute, checks the actor may contribute and that it is still active.
func (s *service) openForContribution(ctx context.Context, repo Repository, orderRepo orders.Repository, disputeID uuid.UUID, actor orders.Actor) (*models.Dispute, error) {
	dispute, err := s.loadDispute(ctx, repo, disputeID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, orderRepo, dispute, actor); err != nil {
		return nil, err
	}
	if !dispute.Status.IsActive() {
		return nil, pkgerrors.New(pkgerrors.CodeDisputeClosed, fmt.Sprintf("dispute is %s", dispute.Status))
	}
	return dispute, nil
}

// authorize admits the raiser, order participants and admins. System actors never contribute.
func (s *service) authorize(ctx context.Context, orderRepo orders.Repository, dispute *models.Dispute, actor orders.Actor) error {
	if !actor.Role.IsUserRole() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "user actor required")
	}
	if relationOf(dispute, actor) != relationOther {
		return nil
	}
	order, items, err := s.loadOrder(ctx, orderRepo, dispute.OrderID)
	if err != nil {
		return err
	}
	if !orders.IsParticipant(order, items, actor) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "actor is not a party to this dispute")
	}
	return nil
}

func (s *service) loadDispute(ctx context.Context, repo Repository, id uuid.UUID) (*models.Dispute, error) {
	dispute, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dispute")
	}
	return dispute, nil
}

func (s *service) loadOrder(ctx context.Context, repo orders.Repository, orderID uuid.UUID) (*models.Order, []models.OrderLineItem, error) {
	order, err := repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	items, err := repo.FindLineItems(ctx, orderID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load line items")
	}
	return order, items, nil
}

// canRaise admits the order's buyer and participating producers. Admins arbitrate instead.
func canRaise(order *models.Order, items []models.OrderLineItem, actor orders.Actor) bool {
	switch actor.Role {
	case enums.ActorRoleBuyer:
		return order.BuyerID == actor.ID
	case enums.ActorRoleProducer:
		return orders.IsProducerOf(items, actor.ID)
	}
	return false
}

func errActiveDispute() error {
	return pkgerrors.New(pkgerrors.CodeInvalidState, "order already has an active dispute")
}
