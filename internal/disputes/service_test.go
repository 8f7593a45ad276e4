package disputes

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/orders"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/dbtest"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/models"
	dbtypes "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/types"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
	pkgerrors "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/errors"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/logger"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/outbox"
)

type disputeFixture struct {
	conn     *gorm.DB
	svc      Service
	buyer    orders.Actor
	producer orders.Actor
	stranger orders.Actor
	admin    orders.Actor
}

func newDisputeFixture(t *testing.T) *disputeFixture {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "disputes-test", Output: io.Discard})
	svc, err := NewService(NewRepository(conn), orders.NewRepository(conn), db.NewFromConn(conn), outbox.NewService(outbox.NewRepository(conn), logg), logg)
	require.NoError(t, err)
	return &disputeFixture{
		conn:     conn,
		svc:      svc,
		buyer:    orders.Actor{ID: uuid.New(), Role: enums.ActorRoleBuyer},
		producer: orders.Actor{ID: uuid.New(), Role: enums.ActorRoleProducer},
		stranger: orders.Actor{ID: uuid.New(), Role: enums.ActorRoleBuyer},
		admin:    orders.Actor{ID: uuid.New(), Role: enums.ActorRoleAdmin},
	}
}

// seedOrder stores a 300.00 order bought by the fixture buyer and fully owned by the fixture producer.
func (f *disputeFixture) seedOrder(t *testing.T, delivery enums.DeliveryStatus, payment enums.PaymentStatus) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:              uuid.New(),
		BuyerID:         f.buyer.ID,
		Currency:        enums.CurrencyUSD,
		TotalCents:      30000,
		DeliveryStatus:  delivery,
		PaymentStatus:   payment,
		ShippingAddress: dbtypes.ShippingAddress{Line1: "4 Piassa", City: "Gondar", Country: "ET"},
	}
	require.NoError(t, f.conn.Create(order).Error)
	require.NoError(t, f.conn.Create(&models.OrderLineItem{
		ID:             uuid.New(),
		OrderID:        order.ID,
		ProductID:      uuid.New(),
		Quantity:       2,
		UnitPriceCents: 15000,
		SubtotalCents:  30000,
		ProductSnapshot: dbtypes.ProductSnapshot{
			Name:            "Teff flour",
			UnitPriceCents:  15000,
			OwnerProducerID: f.producer.ID,
			Shares: []dbtypes.ProducerShare{
				{ProducerID: f.producer.ID, SharePercentage: decimal.NewFromInt(100)},
			},
		},
	}).Error)
	return order
}

func (f *disputeFixture) open(t *testing.T, orderID uuid.UUID, raiser orders.Actor) *models.Dispute {
	t.Helper()
	dispute, err := f.svc.Create(context.Background(), CreateInput{OrderID: orderID, Actor: raiser, Reason: "damaged on arrival"})
	require.NoError(t, err)
	return dispute
}

func (f *disputeFixture) order(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, f.conn.Where("id = ?", id).First(&order).Error)
	return order
}

func (f *disputeFixture) eventCount(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	require.True(t, pkgerrors.HasCode(err, code), "expected %s, got %v", code, err)
}

func TestCreateOpensDisputeAndEmitsEvent(t *testing.T) {
	f := newDisputeFixture(t)
	order := f.seedOrder(t, enums.DeliveryStatusShipped, enums.PaymentStatusConfirmed)

	dispute := f.open(t, order.ID, f.buyer)

	require.Equal(t, enums.DisputeStatusOpen, dispute.Status)
	require.Equal(t, f.buyer.ID, dispute.RaisedBy)
	require.Equal(t, int64(1), f.eventCount(t, enums.EventDisputeOpened))
}

func TestCreateRejectsPendingOrder(t *testing.T) {
	f := newDisputeFixture(t)
	order := f.seedOrder(t, enums.DeliveryStatusPending, enums.PaymentStatusPending)

	_, err := f.svc.Create(context.Background(), CreateInput{OrderID: order.ID, Actor: f.buyer, Reason: "late"})
	requireCode(t, err, pkgerrors.CodeInvalidState)
}

func TestCreateRejectsSecondActiveDispute(t *testing.T) {
	f := newDisputeFixture(t)
	order := f.seedOrder(t, enums.DeliveryStatusDelivered, enums.PaymentStatusConfirmed)
	f.open(t, order.ID, f.buyer)

	_, err := f.svc.Create(context.Background(), CreateInput{OrderID: order.ID, Actor: f.producer, Reason: "buyer unreachable"})
	requireCode(t, err, pkgerrors.CodeInvalidState)
}

func TestCreateAllowedAgainAfterCancel(t *testing.T) {
	f := newDisputeFixture(t)
	order := f.seedOrder(t, enums.DeliveryStatusDelivered, enums.PaymentStatusConfirmed)
	first := f.open(t, order.ID, f.buyer)
	_, err := f.svc.Cancel(context.Background(), first.ID, f.buyer)
	require.NoError(t, err)

	second := f.open(t, order.ID, f.buyer)
	require.NotEqual(t, first.ID, second.ID)
}

func TestCreateAuthorization(t *testing.T) {
	f := newDisputeFixture(t)
	order := f.seedOrder(t, enums.DeliveryStatusConfirmed, enums.PaymentStatusConfirmed)

	tests := []struct {
		name  string
		actor orders.Actor
		code  pkgerrors.Code
	}{
		{name: "stranger", actor: f.stranger, code: pkgerrors.CodeForbidden},
		{name: "admin", actor: f.admin, code: pkgerrors.CodeForbidden},
		{name: "system", actor: orders.SystemActor, code: pkgerrors.CodeForbidden},
		{name: "unrelated producer", actor: orders.Actor{ID: uuid.New(), Role: enums.ActorRoleProducer}, code: pkgerrors.CodeForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), CreateInput{OrderID: order.ID, Actor: tt.actor, Reason: "x"})
			requireCode(t, err, tt.code)
		})
	}

	_, err := f.svc.Create(context.Background(), CreateInput{OrderID: uuid.New(), Actor: f.buyer, Reason: "x"})
	requireCode(t, err, pkgerrors.CodeNotFound)
	_, err = f.svc.Create(context.Background(), CreateInput{OrderID: order.ID, Actor: f.buyer, Reason: "  "})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestProducerMayRaiseDispute(t *testing.T) {
	f := newDisputeFixture(t)
	order := f.seedOrder(t, enums.DeliveryStatusDelivered, enums.PaymentStatusConfirmed)

	dispute := f.open(t, order.ID, f.producer)
	require.Equal(t, enums.ActorRoleProducer, dispute.RaisedByRole)
}

func TestAdminRefundMovesPaymentAxisOnly(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, enums.DeliveryStatusDelivered, enums.PaymentStatusConfirmed)
	dispute := f.open(t, order.ID, f.buyer)

	_, err := f.svc.UpdateStatus(ctx, UpdateStatusInput{DisputeID: dispute.ID, Actor: f.admin, Status: enums.DisputeStatusUnderReview})
	require.NoError(t, err)
	refunded, err := f.svc.UpdateStatus(ctx, UpdateStatusInput{
		DisputeID:         dispute.ID,
		Actor:             f.admin,
		Status:            enums.DisputeStatusRefunded,
		Resolution:        "half refund agreed",
		RefundAmountCents: 15000,
	})
	require.NoError(t, err)
	require.Equal(t, enums.DisputeStatusRefunded, refunded.Status)
	require.NotNil(t, refunded.ResolvedAt)
	require.Equal(t, f.admin.ID, *refunded.ResolvedBy)

	stored := f.order(t, order.ID)
	require.Equal(t, enums.PaymentStatusPartiallyRefunded, stored.PaymentStatus)
	require.Equal(t, enums.DeliveryStatusDelivered, stored.DeliveryStatus)
	require.Equal(t, int64(15000), stored.RefundedCents)

	var history []models.OrderStatusHistory
	require.NoError(t, f.conn.Where("order_id = ? AND axis = ?", order.ID, enums.StatusAxisPayment).Find(&history).Error)
	require.Len(t, history, 1)
	require.Equal(t, string(enums.PaymentStatusConfirmed), history[0].FromStatus)
	require.Equal(t, string(enums.PaymentStatusPartiallyRefunded), history[0].ToStatus)
	require.Contains(t, *history[0].Reason, dispute.ID.String())

	require.Equal(t, int64(1), f.eventCount(t, enums.EventDisputeRefunded))
	require.Equal(t, int64(2), f.eventCount(t, enums.EventDisputeStatusChanged))

	_, err = f.svc.AddEvidence(ctx, EvidenceInput{DisputeID: dispute.ID, Actor: f.buyer, FileRef: "s3://photos/1.jpg"})
	requireCode(t, err, pkgerrors.CodeDisputeClosed)
	_, err = f.svc.AddMessage(ctx, MessageInput{DisputeID: dispute.ID, Actor: f.buyer, Content: "thanks"})
	requireCode(t, err, pkgerrors.CodeDisputeClosed)
	_, err = f.svc.Resolve(ctx, dispute.ID, f.admin, "again")
	requireCode(t, err, pkgerrors.CodeDisputeClosed)
}

func TestSecondRefundCompletesTotal(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, enums.DeliveryStatusDelivered, enums.PaymentStatusConfirmed)

	for _, amount := range []int64{10000, 20000} {
		dispute := f.open(t, order.ID, f.buyer)
		_, err := f.svc.UpdateStatus(ctx, UpdateStatusInput{DisputeID: dispute.ID, Actor: f.admin, Status: enums.DisputeStatusUnderReview})
		require.NoError(t, err)
		_, err = f.svc.UpdateStatus(ctx, UpdateStatusInput{DisputeID: dispute.ID, Actor: f.admin, Status: enums.DisputeStatusRefunded, RefundAmountCents: amount})
		require.NoError(t, err)
	}

	stored := f.order(t, order.ID)
	require.Equal(t, enums.PaymentStatusRefunded, stored.PaymentStatus)
	require.Equal(t, int64(30000), stored.RefundedCents)
}

func TestRefundAmountValidation(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, enums.DeliveryStatusDelivered, enums.PaymentStatusPartiallyRefunded)
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", order.ID).Update("refunded_cents", 25000).Error)
	dispute := f.open(t, order.ID, f.buyer)
	_, err := f.svc.UpdateStatus(ctx, UpdateStatusInput{DisputeID: dispute.ID, Actor: f.admin, Status: enums.DisputeStatusUnderReview})
	require.NoError(t, err)

	for _, amount := range []int64{0, -5, 30001, 6000} {
		_, err := f.svc.UpdateStatus(ctx, UpdateStatusInput{DisputeID: dispute.ID, Actor: f.admin, Status: enums.DisputeStatusRefunded, RefundAmountCents: amount})
		requireCode(t, err, pkgerrors.CodeValidation)
	}

	var stored models.Dispute
	require.NoError(t, f.conn.Where("id = ?", dispute.ID).First(&stored).Error)
	require.Equal(t, enums.DisputeStatusUnderReview, stored.Status)
	require.Equal(t, int64(25000), f.order(t, order.ID).RefundedCents)
}

func TestRefundRequiresCapturedPayment(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, enums.DeliveryStatusShipped, enums.PaymentStatusPending)
	dispute := f.open(t, order.ID, f.buyer)
	_, err := f.svc.UpdateStatus(ctx, UpdateStatusInput{DisputeID: dispute.ID, Actor: f.admin, Status: enums.DisputeStatusUnderReview})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, UpdateStatusInput{DisputeID: dispute.ID, Actor: f.admin, Status: enums.DisputeStatusRefunded, RefundAmountCents: 100})
	requireCode(t, err, pkgerrors.CodeInvalidState)
}

func TestRefundByNonAdminForbidden(t *testing.T) {
	f := newDisputeFixture(t)
	order := f.seedOrder(t, enums.DeliveryStatusDelivered, enums.PaymentStatusConfirmed)
	dispute := f.open(t, order.ID, f.buyer)

	_, err := f.svc.UpdateStatus(context.Background(), UpdateStatusInput{DisputeID: dispute.ID, Actor: f.buyer, Status: enums.DisputeStatusRefunded, RefundAmountCents: 100})
	requireCode(t, err, pkgerrors.CodeForbidden)
	require.Equal(t, enums.PaymentStatusConfirmed, f.order(t, order.ID).PaymentStatus)
}

func TestRaiserCanResolveOrCancelOpenDispute(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, enums.DeliveryStatusDelivered, enums.PaymentStatusConfirmed)

	first := f.open(t, order.ID, f.buyer)
	resolved, err := f.svc.Resolve(ctx, first.ID, f.buyer, "producer resent the item")
	require.NoError(t, err)
	require.Equal(t, enums.DisputeStatusResolved, resolved.Status)
	require.Equal(t, "producer resent the item", *resolved.Resolution)

	second := f.open(t, order.ID, f.buyer)
	cancelled, err := f.svc.Cancel(ctx, second.ID, f.buyer)
	require.NoError(t, err)
	require.Equal(t, enums.DisputeStatusCancelled, cancelled.Status)
}

func TestStatusChangeRules(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, enums.DeliveryStatusDelivered, enums.PaymentStatusConfirmed)
	dispute := f.open(t, order.ID, f.buyer)

	// counterparty producer cannot change status
	_, err := f.svc.Cancel(ctx, dispute.ID, f.producer)
	requireCode(t, err, pkgerrors.CodeForbidden)
	// raiser cannot move to review
	_, err = f.svc.UpdateStatus(ctx, UpdateStatusInput{DisputeID: dispute.ID, Actor: f.buyer, Status: enums.DisputeStatusUnderReview})
	requireCode(t, err, pkgerrors.CodeIllegalTransition)
	// admin cannot cancel
	_, err = f.svc.Cancel(ctx, dispute.ID, f.admin)
	requireCode(t, err, pkgerrors.CodeIllegalTransition)
	// admin must review before refunding
	_, err = f.svc.UpdateStatus(ctx, UpdateStatusInput{DisputeID: dispute.ID, Actor: f.admin, Status: enums.DisputeStatusRefunded, RefundAmountCents: 100})
	requireCode(t, err, pkgerrors.CodeIllegalTransition)

	_, err = f.svc.UpdateStatus(ctx, UpdateStatusInput{DisputeID: dispute.ID, Actor: f.admin, Status: enums.DisputeStatusUnderReview})
	require.NoError(t, err)
	// raiser loses control once under review
	_, err = f.svc.Cancel(ctx, dispute.ID, f.buyer)
	requireCode(t, err, pkgerrors.CodeIllegalTransition)

	_, err = f.svc.UpdateStatus(ctx, UpdateStatusInput{DisputeID: uuid.New(), Actor: f.admin, Status: enums.DisputeStatusResolved})
	requireCode(t, err, pkgerrors.CodeNotFound)
	_, err = f.svc.UpdateStatus(ctx, UpdateStatusInput{DisputeID: dispute.ID, Actor: f.admin, Status: "ESCALATED"})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestTransitionTable(t *testing.T) {
	require.ElementsMatch(t, []enums.DisputeStatus{enums.DisputeStatusUnderReview}, allowedTransitions(relationAdmin, enums.DisputeStatusOpen))
	require.ElementsMatch(t, []enums.DisputeStatus{enums.DisputeStatusResolved, enums.DisputeStatusRefunded}, allowedTransitions(relationAdmin, enums.DisputeStatusUnderReview))
	require.ElementsMatch(t, []enums.DisputeStatus{enums.DisputeStatusResolved, enums.DisputeStatusCancelled}, allowedTransitions(relationRaiser, enums.DisputeStatusOpen))
	require.Empty(t, allowedTransitions(relationRaiser, enums.DisputeStatusUnderReview))
	require.Empty(t, allowedTransitions(relationOther, enums.DisputeStatusOpen))
	for _, terminal := range []enums.DisputeStatus{enums.DisputeStatusResolved, enums.DisputeStatusRefunded, enums.DisputeStatusCancelled} {
		require.Empty(t, allowedTransitions(relationAdmin, terminal))
		require.Empty(t, allowedTransitions(relationRaiser, terminal))
	}
}

func TestEvidenceAndMessagesFromParticipants(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, enums.DeliveryStatusDelivered, enums.PaymentStatusConfirmed)
	dispute := f.open(t, order.ID, f.buyer)

	_, err := f.svc.AddEvidence(ctx, EvidenceInput{DisputeID: dispute.ID, Actor: f.buyer, FileRef: "s3://photos/box.jpg", EvidenceType: enums.EvidenceTypeImage})
	require.NoError(t, err)
	_, err = f.svc.AddMessage(ctx, MessageInput{DisputeID: dispute.ID, Actor: f.producer, Content: "We packed it carefully."})
	require.NoError(t, err)
	_, err = f.svc.AddMessage(ctx, MessageInput{DisputeID: dispute.ID, Actor: f.admin, Content: "Reviewing."})
	require.NoError(t, err)

	_, err = f.svc.AddMessage(ctx, MessageInput{DisputeID: dispute.ID, Actor: f.stranger, Content: "hi"})
	requireCode(t, err, pkgerrors.CodeForbidden)
	_, err = f.svc.AddEvidence(ctx, EvidenceInput{DisputeID: dispute.ID, Actor: f.buyer, FileRef: ""})
	requireCode(t, err, pkgerrors.CodeValidation)
	_, err = f.svc.AddEvidence(ctx, EvidenceInput{DisputeID: dispute.ID, Actor: f.buyer, FileRef: "x", EvidenceType: "HOLOGRAM"})
	requireCode(t, err, pkgerrors.CodeValidation)

	detail, err := f.svc.Get(ctx, dispute.ID, f.producer)
	require.NoError(t, err)
	require.Len(t, detail.Evidence, 1)
	require.Len(t, detail.Messages, 2)

	_, err = f.svc.Get(ctx, dispute.ID, f.stranger)
	requireCode(t, err, pkgerrors.CodeForbidden)
	require.Equal(t, int64(1), f.eventCount(t, enums.EventDisputeEvidenceAdded))
	require.Equal(t, int64(2), f.eventCount(t, enums.EventDisputeMessageAdded))
}

func TestListByOrder(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, enums.DeliveryStatusDelivered, enums.PaymentStatusConfirmed)
	first := f.open(t, order.ID, f.buyer)
	_, err := f.svc.Cancel(ctx, first.ID, f.buyer)
	require.NoError(t, err)
	f.open(t, order.ID, f.producer)

	list, err := f.svc.ListByOrder(ctx, order.ID, f.admin)
	require.NoError(t, err)
	require.Len(t, list, 2)

	_, err = f.svc.ListByOrder(ctx, order.ID, f.stranger)
	requireCode(t, err, pkgerrors.CodeForbidden)
}
