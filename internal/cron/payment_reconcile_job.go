package cron

import (
	"context"
	"fmt"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/payments"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/logger"
)

const defaultReconcileBatch = 50

type manualReconciler interface {
	ReconcileManual(ctx context.Context, lookup payments.StatusLookup, limit int) (payments.ReconcileSummary, error)
}

type PaymentReconcileJobParams struct {
	Logger     *logger.Logger
	Reconciler manualReconciler
	Lookup     payments.StatusLookup
	BatchSize  int
}

// NewPaymentReconcileJob re-checks queued gateway events against the gateway's current view.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("payment reconciler required")
	}
	if params.Lookup == nil {
		return nil, fmt.Errorf("payment status lookup required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &paymentReconcileJob{
		logg:       params.Logger,
		reconciler: params.Reconciler,
		lookup:     params.Lookup,
		batch:      batch,
	}, nil
}

type paymentReconcileJob struct {
	logg       *logger.Logger
	reconciler manualReconciler
	lookup     payments.StatusLookup
	batch      int
}

func (j *paymentReconcileJob) Name() string { return "payment-reconcile" }

func (j *paymentReconcileJob) Run(ctx context.Context) error {
	summary, err := j.reconciler.ReconcileManual(ctx, j.lookup, j.batch)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"resolved": summary.Resolved,
		"retried":  summary.Retried,
	})
	if err != nil {
		j.logg.Warn(logCtx, "payment reconcile finished with errors")
		return fmt.Errorf("payment reconcile: %w", err)
	}
	j.logg.Info(logCtx, "payment reconcile complete")
	return nil
}
