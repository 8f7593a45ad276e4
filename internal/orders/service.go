package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/catalog"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/splits"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/models"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
	pkgerrors "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/errors"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/logger"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/outbox"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/outbox/payloads"
)

var (
	hundred       = decimal.NewFromInt(100)
	shareEpsilon  = decimal.RequireFromString("0.0001")
	maxOrderItems = 100
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service drives the delivery axis of orders.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*OrderDetail, error)
	Transition(ctx context.Context, input TransitionInput) (*models.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*OrderDetail, error)
	Payouts(ctx context.Context, orderID uuid.UUID, actor Actor) (*splits.Result, error)
}

type service struct {
	repo       Repository
	tx         txRunner
	outbox     outbox.Emitter
	catalog    catalog.Reader
	calculator *splits.Calculator
	anchors    AnchorScheduler
	logg       *logger.Logger
}

// NewService builds the order state machine with the required dependencies.
func NewService(repo Repository, tx txRunner, emitter outbox.Emitter, reader catalog.Reader, calculator *splits.Calculator, anchors AnchorScheduler, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if reader == nil {
		return nil, fmt.Errorf("catalog reader required")
	}
	if calculator == nil {
		return nil, fmt.Errorf("split calculator required")
	}
	if anchors == nil {
		return nil, fmt.Errorf("anchor scheduler required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:       repo,
		tx:         tx,
		outbox:     emitter,
		catalog:    reader,
		calculator: calculator,
		anchors:    anchors,
		logg:       logg,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*OrderDetail, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if input.Currency == "" {
		input.Currency = enums.CurrencyUSD
	}
	if !input.Currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}
	if err := validateAddress(input); err != nil {
		return nil, err
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item required")
	}
	if len(input.Items) > maxOrderItems {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "too many items")
	}

	productIDs := make([]uuid.UUID, 0, len(input.Items))
	seen := map[uuid.UUID]struct{}{}
	for idx, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d].product_id required", idx))
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d].quantity must be positive", idx)).
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
		if _, ok := seen[item.ProductID]; !ok {
			seen[item.ProductID] = struct{}{}
			productIDs = append(productIDs, item.ProductID)
		}
	}

	products, err := s.catalog.Products(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	orderID := uuid.New()
	items := make([]models.OrderLineItem, 0, len(input.Items))
	var total int64
	for idx, item := range input.Items {
		product, ok := products[item.ProductID]
		if !ok || !product.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d] references an unavailable product", idx)).
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
		if product.Currency != string(input.Currency) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d] is priced in %s", idx, product.Currency))
		}
		if err := validateShares(product); err != nil {
			return nil, err
		}
		subtotal := product.Snapshot.UnitPriceCents * int64(item.Quantity)
		total += subtotal
		items = append(items, models.OrderLineItem{
			ID:              uuid.New(),
			OrderID:         orderID,
			ProductID:       item.ProductID,
			Quantity:        item.Quantity,
			UnitPriceCents:  product.Snapshot.UnitPriceCents,
			SubtotalCents:   subtotal,
			ProductSnapshot: product.Snapshot,
		})
	}

	order := &models.Order{
		ID:              orderID,
		BuyerID:         input.BuyerID,
		Currency:        input.Currency,
		TotalCents:      total,
		DeliveryStatus:  enums.DeliveryStatusPending,
		PaymentStatus:   enums.PaymentStatusPending,
		ShippingAddress: input.ShippingAddress,
	}
	buyer := Actor{ID: input.BuyerID, Role: enums.ActorRoleBuyer}

	var history []models.OrderStatusHistory
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := repo.CreateLineItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create line items")
		}
		entry := models.OrderStatusHistory{
			ID:         uuid.New(),
			OrderID:    order.ID,
			Axis:       enums.StatusAxisDelivery,
			FromStatus: "",
			ToStatus:   string(enums.DeliveryStatusPending),
			ActorID:    buyer.HistoryID(),
			ActorRole:  buyer.Role,
		}
		if err := repo.AppendHistory(ctx, &entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
		}
		history = append(history, entry)

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         buyer.OutboxRef(),
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				BuyerID:       order.BuyerID,
				Currency:      order.Currency,
				TotalCents:    order.TotalCents,
				LineItemCount: len(items),
				ProducerIDs:   participants(items),
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order created")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(logCtx, "order created")
	return &OrderDetail{Order: *order, LineItems: items, History: history}, nil
}

func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown delivery status")
	}
	if err := input.Actor.Validate(); err != nil {
		return nil, err
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, items, err := loadOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if err := Authorize(order, items, input.Actor); err != nil {
			return err
		}

		current := order.DeliveryStatus
		if !isAllowed(input.Actor.Role, current, input.Status) {
			return pkgerrors.New(pkgerrors.CodeIllegalTransition, fmt.Sprintf("%s cannot move order from %s to %s", input.Actor.Role, current, input.Status)).
				WithDetails(map[string]any{
					"from":    current,
					"to":      input.Status,
					"allowed": allowedTransitions(input.Actor.Role, current),
				})
		}

		extra := map[string]any{}
		proof := strings.TrimSpace(input.DeliveryProofRef)
		if input.Status == enums.DeliveryStatusDelivered {
			if proof == "" {
				return pkgerrors.New(pkgerrors.CodeProofRequired, "delivery proof reference required")
			}
			now := time.Now().UTC()
			extra["delivery_proof_ref"] = proof
			extra["delivered_at"] = now
			order.DeliveryProofRef = &proof
			order.DeliveredAt = &now
		}

		ok, err := repo.UpdateDeliveryStatus(ctx, order.ID, current, input.Status, extra)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update delivery status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "order status changed concurrently").
				WithDetails(map[string]any{"expected": current})
		}
		order.DeliveryStatus = input.Status

		entry := models.OrderStatusHistory{
			ID:         uuid.New(),
			OrderID:    order.ID,
			Axis:       enums.StatusAxisDelivery,
			FromStatus: string(current),
			ToStatus:   string(input.Status),
			ActorID:    input.Actor.HistoryID(),
			ActorRole:  input.Actor.Role,
			Reason:     optionalString(input.Reason),
		}
		if err := repo.AppendHistory(ctx, &entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         input.Actor.OutboxRef(),
			Data: payloads.OrderStatusChangedEvent{
				OrderID:    order.ID,
				FromStatus: current,
				ToStatus:   input.Status,
				ActorRole:  input.Actor.Role,
				Reason:     input.Reason,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit status change")
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":        updated.ID.String(),
		"delivery_status": updated.DeliveryStatus,
		"actor_role":      input.Actor.Role,
	})
	s.logg.Info(logCtx, "order transitioned")

	if updated.IsSettled() {
		if err := s.anchors.Enqueue(ctx, updated.ID); err != nil {
			// The cron sweep picks up settled orders that never got a job.
			s.logg.Error(logCtx, "enqueue ledger anchor failed", err)
		}
	}
	return updated, nil
}

func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error) {
	if actor.Role != enums.ActorRoleBuyer {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can cancel an order")
	}
	return s.Transition(ctx, TransitionInput{
		OrderID: orderID,
		Status:  enums.DeliveryStatusCancelled,
		Actor:   actor,
		Reason:  reason,
	})
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*OrderDetail, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	order, items, err := loadOrder(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(order, items, actor); err != nil {
		return nil, err
	}
	history, err := s.repo.ListHistory(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list status history")
	}
	return &OrderDetail{Order: *order, LineItems: items, History: history}, nil
}

func (s *service) Payouts(ctx context.Context, orderID uuid.UUID, actor Actor) (*splits.Result, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if actor.Role != enums.ActorRoleAdmin && actor.Role != enums.ActorRoleProducer {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payouts are visible to producers and admins")
	}
	order, items, err := loadOrder(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(order, items, actor); err != nil {
		return nil, err
	}
	result, err := s.calculator.ComputeShares(splits.FromModels(*order, items))
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func loadOrder(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, []models.OrderLineItem, error) {
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

func validateAddress(input CreateInput) error {
	addr := input.ShippingAddress
	missing := []string{}
	if strings.TrimSpace(addr.Line1) == "" {
		missing = append(missing, "line1")
	}
	if strings.TrimSpace(addr.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(addr.Country) == "" {
		missing = append(missing, "country")
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping address incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	return nil
}

// validateShares accepts an empty share list, meaning the owner takes the full line.
func validateShares(product catalog.Product) error {
	shares := product.Snapshot.Shares
	if len(shares) == 0 {
		return nil
	}
	sum := decimal.Zero
	for _, share := range shares {
		if share.ProducerID == uuid.Nil || !share.SharePercentage.IsPositive() || share.SharePercentage.GreaterThan(hundred) {
			return pkgerrors.New(pkgerrors.CodeValidation, "producer share must be within (0,100]").
				WithDetails(map[string]any{"product_id": product.Snapshot.ProductID, "producer_id": share.ProducerID})
		}
		sum = sum.Add(share.SharePercentage)
	}
	if sum.Sub(hundred).Abs().GreaterThan(shareEpsilon) {
		return pkgerrors.New(pkgerrors.CodeValidation, "producer shares must sum to 100").
			WithDetails(map[string]any{"product_id": product.Snapshot.ProductID, "sum": sum.String()})
	}
	return nil
}

func participants(items []models.OrderLineItem) []uuid.UUID {
	out := []uuid.UUID{}
	seen := map[uuid.UUID]struct{}{}
	for _, item := range items {
		for _, id := range item.ProductSnapshot.Participants() {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
