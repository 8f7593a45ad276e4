package payments

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/models"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
)

type lookupResult struct {
	status enums.PaymentStatus
	final  bool
	err    error
}

type fakeLookup map[string]lookupResult

func (f fakeLookup) LookupPayment(ctx context.Context, reference string) (enums.PaymentStatus, bool, error) {
	res, ok := f[reference]
	if !ok {
		return "", false, errors.New("unknown payment")
	}
	return res.status, res.final, res.err
}

func (f *paymentsFixture) queue(t *testing.T, eventID, reference string) *models.PaymentReconciliation {
	t.Helper()
	entry := &models.PaymentReconciliation{
		EventID:          eventID,
		PaymentReference: reference,
		Payload:          json.RawMessage(`{}`),
		Error:            "database unavailable",
	}
	require.NoError(t, NewRepository(f.conn).QueueManual(context.Background(), entry))
	return entry
}

func (f *paymentsFixture) entry(t *testing.T, eventID string) models.PaymentReconciliation {
	t.Helper()
	var row models.PaymentReconciliation
	require.NoError(t, f.conn.Where("event_id = ?", eventID).First(&row).Error)
	return row
}

func TestReconcileManualAppliesGatewayStatus(t *testing.T) {
	f := newPaymentsFixture(t, nil)
	order := f.seedOrder(t, enums.DeliveryStatusConfirmed, enums.PaymentStatusPending, "pay_r1")
	entry := f.queue(t, "evt-r1", "pay_r1")

	summary, err := f.svc.ReconcileManual(context.Background(), fakeLookup{
		"pay_r1": {status: enums.PaymentStatusConfirmed, final: true},
	}, 10)

	require.NoError(t, err)
	require.Equal(t, ReconcileSummary{Resolved: 1}, summary)
	require.Equal(t, enums.PaymentStatusConfirmed, f.order(t, order.ID).PaymentStatus)
	stored := f.entry(t, "evt-r1")
	require.Equal(t, enums.ReconciliationStatusResolved, stored.Status)
	require.NotNil(t, stored.ResolvedAt)
	require.NotNil(t, f.gatewayEvent(t, "reconcile:"+entry.ID.String()+":CONFIRMED"))
}

func TestReconcileManualKeepsEntryOpenUntilFinal(t *testing.T) {
	f := newPaymentsFixture(t, nil)
	f.seedOrder(t, enums.DeliveryStatusConfirmed, enums.PaymentStatusPending, "pay_r2")
	f.queue(t, "evt-r2", "pay_r2")
	f.queue(t, "evt-r3", "")

	summary, err := f.svc.ReconcileManual(context.Background(), fakeLookup{
		"pay_r2": {status: enums.PaymentStatusPending, final: false},
	}, 10)

	require.NoError(t, err)
	require.Equal(t, ReconcileSummary{Retried: 2}, summary)
	for _, id := range []string{"evt-r2", "evt-r3"} {
		stored := f.entry(t, id)
		require.Equal(t, enums.ReconciliationStatusOpen, stored.Status)
		require.Equal(t, 1, stored.Attempts)
	}
}

func TestReconcileManualCollectsLookupErrors(t *testing.T) {
	f := newPaymentsFixture(t, nil)
	f.queue(t, "evt-r4", "pay_r4")
	f.queue(t, "evt-r5", "pay_r5")

	summary, err := f.svc.ReconcileManual(context.Background(), fakeLookup{
		"pay_r4": {err: errors.New("square unavailable")},
	}, 10)

	require.Error(t, err)
	require.Contains(t, err.Error(), "square unavailable")
	require.Contains(t, err.Error(), "unknown payment")
	require.Equal(t, 2, summary.Retried)
	require.Equal(t, "square unavailable", f.entry(t, "evt-r4").Error)
}

func TestReconcileManualResolvesRejectedOutcome(t *testing.T) {
	f := newPaymentsFixture(t, nil)
	order := f.seedOrder(t, enums.DeliveryStatusConfirmed, enums.PaymentStatusFailed, "pay_r6")
	f.queue(t, "evt-r6", "pay_r6")

	summary, err := f.svc.ReconcileManual(context.Background(), fakeLookup{
		"pay_r6": {status: enums.PaymentStatusConfirmed, final: true},
	}, 10)

	require.NoError(t, err)
	require.Equal(t, 1, summary.Resolved)
	require.Equal(t, enums.PaymentStatusFailed, f.order(t, order.ID).PaymentStatus)
	require.Len(t, f.manualEntries(t), 1, "sweep never queues new entries")
}
