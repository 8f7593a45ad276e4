package orders

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/catalog"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/splits"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/dbtest"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/models"
	dbtypes "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/types"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
	pkgerrors "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/errors"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/logger"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/outbox"
)

type recordingScheduler struct {
	mu  sync.Mutex
	ids []uuid.UUID
	err error
}

func (r *recordingScheduler) Enqueue(ctx context.Context, orderID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, orderID)
	return r.err
}

type fixture struct {
	conn    *gorm.DB
	svc     Service
	anchors *recordingScheduler
	parties orderParties
}

func newFixture(t *testing.T, wrap func(Repository) Repository) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	var repo Repository = NewRepository(conn)
	if wrap != nil {
		repo = wrap(repo)
	}
	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
	reader, err := catalog.NewReader(conn)
	require.NoError(t, err)
	calc, err := splits.NewCalculator(decimal.NewFromInt(10), 2)
	require.NoError(t, err)
	anchors := &recordingScheduler{}
	svc, err := NewService(repo, db.NewFromConn(conn), outbox.NewService(outbox.NewRepository(conn), logg), reader, calc, anchors, logg)
	require.NoError(t, err)
	return &fixture{conn: conn, svc: svc, anchors: anchors, parties: newParties()}
}

func (f *fixture) actor(role enums.ActorRole) Actor {
	switch role {
	case enums.ActorRoleBuyer:
		return Actor{ID: f.parties.buyer, Role: role}
	case enums.ActorRoleProducer:
		return Actor{ID: f.parties.partner, Role: role}
	case enums.ActorRoleAdmin:
		return Actor{ID: uuid.New(), Role: role}
	}
	return SystemActor
}

func (f *fixture) storedOrder(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, f.conn.Where("id = ?", id).First(&order).Error)
	return order
}

func (f *fixture) outboxTypes(t *testing.T) []enums.OutboxEventType {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, f.conn.Order("created_at ASC").Find(&rows).Error)
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EventType)
	}
	return out
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code(), "unexpected error: %v", err)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(nil, nil, nil, nil, nil, nil, nil); err == nil {
		t.Fatalf("expected error for missing repository")
	}
}

func TestTransitionGridMatchesTable(t *testing.T) {
	roles := []enums.ActorRole{enums.ActorRoleBuyer, enums.ActorRoleProducer, enums.ActorRoleAdmin, enums.ActorRoleSystem}
	for _, role := range roles {
		for _, current := range enums.DeliveryStatuses() {
			for _, target := range enums.DeliveryStatuses() {
				role, current, target := role, current, target
				t.Run(string(role)+"/"+string(current)+"->"+string(target), func(t *testing.T) {
					f := newFixture(t, nil)
					order := seedOrder(t, f.conn, f.parties, current, enums.PaymentStatusPending)

					_, err := f.svc.Transition(context.Background(), TransitionInput{
						OrderID:          order.ID,
						Status:           target,
						Actor:            f.actor(role),
						DeliveryProofRef: "proof://pod-1",
					})

					stored := f.storedOrder(t, order.ID)
					if isAllowed(role, current, target) {
						require.NoError(t, err)
						require.Equal(t, target, stored.DeliveryStatus)
						return
					}
					requireCode(t, err, pkgerrors.CodeIllegalTransition)
					require.Equal(t, current, stored.DeliveryStatus)
				})
			}
		}
	}
}

func TestTransitionProducerShipsButBuyerCannot(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := seedOrder(t, f.conn, f.parties, enums.DeliveryStatusPending, enums.PaymentStatusPending)

	_, err := f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Status: enums.DeliveryStatusShipped, Actor: f.actor(enums.ActorRoleBuyer)})
	requireCode(t, err, pkgerrors.CodeIllegalTransition)

	updated, err := f.svc.Transition(ctx, TransitionInput{
		OrderID: order.ID,
		Status:  enums.DeliveryStatusShipped,
		Actor:   Actor{ID: f.parties.owner, Role: enums.ActorRoleProducer},
		Reason:  "courier picked up",
	})
	require.NoError(t, err)
	require.Equal(t, enums.DeliveryStatusShipped, updated.DeliveryStatus)

	var history []models.OrderStatusHistory
	require.NoError(t, f.conn.Where("order_id = ?", order.ID).Find(&history).Error)
	require.Len(t, history, 1)
	require.Equal(t, "PENDING", history[0].FromStatus)
	require.Equal(t, "SHIPPED", history[0].ToStatus)
	require.Equal(t, enums.StatusAxisDelivery, history[0].Axis)
	require.NotNil(t, history[0].Reason)
	require.Equal(t, []enums.OutboxEventType{enums.EventOrderStatusChanged}, f.outboxTypes(t))
}

func TestTransitionValidationComesFirst(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Transition(ctx, TransitionInput{Status: enums.DeliveryStatusShipped, Actor: f.actor(enums.ActorRoleAdmin)})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.Transition(ctx, TransitionInput{OrderID: uuid.New(), Status: "LOST", Actor: f.actor(enums.ActorRoleAdmin)})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.Transition(ctx, TransitionInput{OrderID: uuid.New(), Status: enums.DeliveryStatusShipped, Actor: Actor{Role: enums.ActorRoleProducer}})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.Transition(ctx, TransitionInput{OrderID: uuid.New(), Status: enums.DeliveryStatusShipped, Actor: Actor{ID: uuid.New(), Role: "GUEST"}})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.Transition(ctx, TransitionInput{OrderID: uuid.New(), Status: enums.DeliveryStatusShipped, Actor: f.actor(enums.ActorRoleAdmin)})
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestTransitionForbiddenForOutsiders(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := seedOrder(t, f.conn, f.parties, enums.DeliveryStatusPending, enums.PaymentStatusPending)

	_, err := f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Status: enums.DeliveryStatusCancelled, Actor: Actor{ID: f.parties.stranger, Role: enums.ActorRoleBuyer}})
	requireCode(t, err, pkgerrors.CodeForbidden)

	_, err = f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Status: enums.DeliveryStatusConfirmed, Actor: Actor{ID: f.parties.stranger, Role: enums.ActorRoleProducer}})
	requireCode(t, err, pkgerrors.CodeForbidden)
}

func TestTransitionDeliveredRequiresProof(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := seedOrder(t, f.conn, f.parties, enums.DeliveryStatusShipped, enums.PaymentStatusPending)

	_, err := f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Status: enums.DeliveryStatusDelivered, Actor: f.actor(enums.ActorRoleProducer), DeliveryProofRef: "   "})
	requireCode(t, err, pkgerrors.CodeProofRequired)
	require.Equal(t, enums.DeliveryStatusShipped, f.storedOrder(t, order.ID).DeliveryStatus)
}

func TestTransitionToDeliveredEnqueuesAnchorOnlyWhenPaid(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	unpaid := seedOrder(t, f.conn, f.parties, enums.DeliveryStatusShipped, enums.PaymentStatusPending)
	paid := seedOrder(t, f.conn, f.parties, enums.DeliveryStatusShipped, enums.PaymentStatusConfirmed)

	for _, id := range []uuid.UUID{unpaid.ID, paid.ID} {
		_, err := f.svc.Transition(ctx, TransitionInput{OrderID: id, Status: enums.DeliveryStatusDelivered, Actor: f.actor(enums.ActorRoleAdmin), DeliveryProofRef: "proof://signed"})
		require.NoError(t, err)
	}

	require.Equal(t, []uuid.UUID{paid.ID}, f.anchors.ids)
	stored := f.storedOrder(t, paid.ID)
	require.NotNil(t, stored.DeliveredAt)
	require.NotNil(t, stored.DeliveryProofRef)
	require.Equal(t, "proof://signed", *stored.DeliveryProofRef)
}

func TestTransitionSucceedsWhenAnchorEnqueueFails(t *testing.T) {
	f := newFixture(t, nil)
	f.anchors.err = errors.New("db unavailable")
	order := seedOrder(t, f.conn, f.parties, enums.DeliveryStatusShipped, enums.PaymentStatusConfirmed)

	updated, err := f.svc.Transition(context.Background(), TransitionInput{OrderID: order.ID, Status: enums.DeliveryStatusDelivered, Actor: f.actor(enums.ActorRoleProducer), DeliveryProofRef: "proof://x"})
	require.NoError(t, err)
	require.Equal(t, enums.DeliveryStatusDelivered, updated.DeliveryStatus)
}

type raceState struct {
	raced bool
}

// racingRepository changes the stored status right after the service reads it.
type racingRepository struct {
	Repository
	tx    *gorm.DB
	state *raceState
}

func (r *racingRepository) WithTx(tx *gorm.DB) Repository {
	return &racingRepository{Repository: r.Repository.WithTx(tx), tx: tx, state: r.state}
}

func (r *racingRepository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := r.Repository.FindOrder(ctx, orderID)
	if err == nil && r.tx != nil && !r.state.raced {
		r.state.raced = true
		if execErr := r.tx.Exec("UPDATE orders SET delivery_status = ? WHERE id = ?", enums.DeliveryStatusConfirmed, orderID).Error; execErr != nil {
			return nil, execErr
		}
	}
	return order, err
}

func TestTransitionConflictWhenStatusChangedConcurrently(t *testing.T) {
	state := &raceState{}
	f := newFixture(t, func(repo Repository) Repository {
		return &racingRepository{Repository: repo, state: state}
	})
	order := seedOrder(t, f.conn, f.parties, enums.DeliveryStatusPending, enums.PaymentStatusPending)

	_, err := f.svc.Transition(context.Background(), TransitionInput{OrderID: order.ID, Status: enums.DeliveryStatusShipped, Actor: f.actor(enums.ActorRoleProducer)})
	requireCode(t, err, pkgerrors.CodeConflict)
	require.True(t, pkgerrors.IsRetryable(err))

	// The whole transaction rolled back, including the racing write.
	require.Equal(t, enums.DeliveryStatusPending, f.storedOrder(t, order.ID).DeliveryStatus)
	require.Empty(t, f.outboxTypes(t))
}

func TestCancelOnlyByBuyerWhilePending(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	pending := seedOrder(t, f.conn, f.parties, enums.DeliveryStatusPending, enums.PaymentStatusPending)
	confirmed := seedOrder(t, f.conn, f.parties, enums.DeliveryStatusConfirmed, enums.PaymentStatusPending)

	_, err := f.svc.Cancel(ctx, pending.ID, f.actor(enums.ActorRoleProducer), "")
	requireCode(t, err, pkgerrors.CodeForbidden)

	_, err = f.svc.Cancel(ctx, confirmed.ID, f.actor(enums.ActorRoleBuyer), "changed my mind")
	requireCode(t, err, pkgerrors.CodeIllegalTransition)

	cancelled, err := f.svc.Cancel(ctx, pending.ID, f.actor(enums.ActorRoleBuyer), "changed my mind")
	require.NoError(t, err)
	require.Equal(t, enums.DeliveryStatusCancelled, cancelled.DeliveryStatus)
}

func seedProduct(t *testing.T, conn *gorm.DB, owner uuid.UUID, priceCents int64, active bool, shares map[uuid.UUID]string) uuid.UUID {
	t.Helper()
	product := models.Product{
		ID:              uuid.New(),
		OwnerProducerID: owner,
		Name:            "Teff flour",
		PriceCents:      priceCents,
		Currency:        "USD",
		IsActive:        active,
	}
	require.NoError(t, conn.Create(&product).Error)
	for producerID, pct := range shares {
		require.NoError(t, conn.Create(&models.ProductProducerShare{
			ProductID:       product.ID,
			ProducerID:      producerID,
			SharePercentage: decimal.RequireFromString(pct),
		}).Error)
	}
	return product.ID
}

func validCreateInput(buyer uuid.UUID, items ...ItemInput) CreateInput {
	return CreateInput{
		BuyerID:         buyer,
		Currency:        enums.CurrencyUSD,
		ShippingAddress: dbtypes.ShippingAddress{RecipientName: "Abebe", Line1: "1 Bole Rd", City: "Addis Ababa", Country: "ET"},
		Items:           items,
	}
}

func TestCreatePersistsOrderItemsHistoryAndEvent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	shared := seedProduct(t, f.conn, f.parties.owner, 10000, true, map[uuid.UUID]string{f.parties.owner: "70", f.parties.partner: "30"})
	solo := seedProduct(t, f.conn, f.parties.partner, 250, true, nil)

	detail, err := f.svc.Create(ctx, validCreateInput(f.parties.buyer,
		ItemInput{ProductID: shared, Quantity: 3},
		ItemInput{ProductID: solo, Quantity: 2},
	))
	require.NoError(t, err)
	require.Equal(t, int64(30500), detail.Order.TotalCents)
	require.Equal(t, enums.DeliveryStatusPending, detail.Order.DeliveryStatus)
	require.Equal(t, enums.PaymentStatusPending, detail.Order.PaymentStatus)
	require.Len(t, detail.LineItems, 2)

	stored := f.storedOrder(t, detail.Order.ID)
	require.Equal(t, int64(30500), stored.TotalCents)
	require.Equal(t, "Addis Ababa", stored.ShippingAddress.City)

	got, err := f.svc.Get(ctx, detail.Order.ID, Actor{ID: f.parties.partner, Role: enums.ActorRoleProducer})
	require.NoError(t, err)
	require.Len(t, got.LineItems, 2)
	require.Len(t, got.History, 1)
	require.Equal(t, "", got.History[0].FromStatus)
	require.Equal(t, "PENDING", got.History[0].ToStatus)
	require.Equal(t, []enums.OutboxEventType{enums.EventOrderCreated}, f.outboxTypes(t))
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	active := seedProduct(t, f.conn, f.parties.owner, 1000, true, nil)
	inactive := seedProduct(t, f.conn, f.parties.owner, 1000, false, nil)
	badShares := seedProduct(t, f.conn, f.parties.owner, 1000, true, map[uuid.UUID]string{f.parties.owner: "60", f.parties.partner: "30"})

	tests := []struct {
		name  string
		input CreateInput
	}{
		{name: "zero quantity", input: validCreateInput(f.parties.buyer, ItemInput{ProductID: active, Quantity: 0})},
		{name: "no items", input: validCreateInput(f.parties.buyer)},
		{name: "unknown product", input: validCreateInput(f.parties.buyer, ItemInput{ProductID: uuid.New(), Quantity: 1})},
		{name: "inactive product", input: validCreateInput(f.parties.buyer, ItemInput{ProductID: inactive, Quantity: 1})},
		{name: "shares not summing to 100", input: validCreateInput(f.parties.buyer, ItemInput{ProductID: badShares, Quantity: 1})},
		{name: "missing address", input: CreateInput{BuyerID: f.parties.buyer, Items: []ItemInput{{ProductID: active, Quantity: 1}}}},
		{name: "currency mismatch", input: func() CreateInput {
			in := validCreateInput(f.parties.buyer, ItemInput{ProductID: active, Quantity: 1})
			in.Currency = enums.CurrencyETB
			return in
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.input)
			requireCode(t, err, pkgerrors.CodeValidation)
		})
	}

	var count int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestGetVisibility(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := seedOrder(t, f.conn, f.parties, enums.DeliveryStatusPending, enums.PaymentStatusPending)

	for _, actor := range []Actor{
		{ID: f.parties.buyer, Role: enums.ActorRoleBuyer},
		{ID: f.parties.owner, Role: enums.ActorRoleProducer},
		{ID: f.parties.partner, Role: enums.ActorRoleProducer},
		{ID: uuid.New(), Role: enums.ActorRoleAdmin},
	} {
		_, err := f.svc.Get(ctx, order.ID, actor)
		require.NoError(t, err, "role %s", actor.Role)
	}

	_, err := f.svc.Get(ctx, order.ID, Actor{ID: f.parties.stranger, Role: enums.ActorRoleBuyer})
	requireCode(t, err, pkgerrors.CodeForbidden)
	_, err = f.svc.Get(ctx, order.ID, Actor{ID: f.parties.stranger, Role: enums.ActorRoleProducer})
	requireCode(t, err, pkgerrors.CodeForbidden)
}

func TestPayoutsSplitSeventyThirty(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := seedOrder(t, f.conn, f.parties, enums.DeliveryStatusDelivered, enums.PaymentStatusConfirmed)

	_, err := f.svc.Payouts(ctx, order.ID, f.actor(enums.ActorRoleBuyer))
	requireCode(t, err, pkgerrors.CodeForbidden)

	result, err := f.svc.Payouts(ctx, order.ID, Actor{ID: f.parties.owner, Role: enums.ActorRoleProducer})
	require.NoError(t, err)
	require.Equal(t, int64(3000), result.CommissionCents)

	nets := map[uuid.UUID]int64{}
	for _, payout := range result.Payouts {
		nets[payout.ProducerID] = payout.NetCents
	}
	require.Equal(t, int64(18900), nets[f.parties.owner])
	require.Equal(t, int64(8100), nets[f.parties.partner])
}
