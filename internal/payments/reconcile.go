package payments

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/models"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
)

// StatusLookup reports the gateway's current view of a payment. final is false while the
// payment is still settling and should be looked up again later.
type StatusLookup interface {
	LookupPayment(ctx context.Context, reference string) (status enums.PaymentStatus, final bool, err error)
}

type ReconcileSummary struct {
	Resolved int
	Retried  int
}

// ReconcileManual re-applies the gateway's current status for each open queue entry as a
// synthetic event. Entries are resolved once the reconciler settles them.
func (s *Service) ReconcileManual(ctx context.Context, lookup StatusLookup, limit int) (ReconcileSummary, error) {
	var summary ReconcileSummary
	if lookup == nil {
		return summary, fmt.Errorf("status lookup required")
	}
	entries, err := s.repo.ListOpenManual(ctx, limit)
	if err != nil {
		return summary, fmt.Errorf("list open reconciliations: %w", err)
	}

	var errs []error
	for i := range entries {
		resolved, err := s.reconcileEntry(ctx, lookup, &entries[i])
		if err != nil {
			errs = append(errs, err)
		}
		if resolved {
			summary.Resolved++
		} else {
			summary.Retried++
		}
	}
	return summary, multierr.Combine(errs...)
}

func (s *Service) reconcileEntry(ctx context.Context, lookup StatusLookup, entry *models.PaymentReconciliation) (bool, error) {
	if entry.PaymentReference == "" {
		return false, s.repo.RecordManualAttempt(ctx, entry.ID, "payment reference unknown")
	}
	status, final, err := lookup.LookupPayment(ctx, entry.PaymentReference)
	if err != nil {
		if recordErr := s.repo.RecordManualAttempt(ctx, entry.ID, err.Error()); recordErr != nil {
			return false, recordErr
		}
		return false, fmt.Errorf("lookup payment %s: %w", entry.PaymentReference, err)
	}
	if !final {
		return false, s.repo.RecordManualAttempt(ctx, entry.ID, "payment not final at gateway")
	}

	ack := s.apply(ctx, GatewayEvent{
		EventID:          fmt.Sprintf("reconcile:%s:%s", entry.ID, status),
		Type:             "reconcile",
		PaymentReference: entry.PaymentReference,
		OrderID:          entry.OrderID,
		Status:           status,
		OccurredAt:       s.now().UTC(),
		Raw:              entry.Payload,
	}, false)
	if !ack.Outcome.IsSettled() {
		return false, s.repo.RecordManualAttempt(ctx, entry.ID, "reconciliation outcome "+string(ack.Outcome))
	}
	return true, s.repo.ResolveManual(ctx, entry.ID, s.now().UTC())
}
