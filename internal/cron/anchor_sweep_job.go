package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/logger"
)

const defaultSweepBatch = 100

type settledOrderLister interface {
	ListSettledWithoutLedger(ctx context.Context, limit int) ([]uuid.UUID, error)
}

type anchorEnqueuer interface {
	Enqueue(ctx context.Context, orderID uuid.UUID) error
}

type AnchorSweepJobParams struct {
	Logger    *logger.Logger
	Orders    settledOrderLister
	Anchors   anchorEnqueuer
	BatchSize int
}

// NewAnchorSweepJob schedules anchoring for settled orders that never got a job,
// e.g. when the enqueue after the delivering transition failed.
func NewAnchorSweepJob(params AnchorSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Anchors == nil {
		return nil, fmt.Errorf("anchor scheduler required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &anchorSweepJob{
		logg:    params.Logger,
		orders:  params.Orders,
		anchors: params.Anchors,
		batch:   batch,
	}, nil
}

type anchorSweepJob struct {
	logg    *logger.Logger
	orders  settledOrderLister
	anchors anchorEnqueuer
	batch   int
}

func (j *anchorSweepJob) Name() string { return "ledger-anchor-sweep" }

func (j *anchorSweepJob) Run(ctx context.Context) error {
	ids, err := j.orders.ListSettledWithoutLedger(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("list settled orders: %w", err)
	}
	var errs error
	scheduled := 0
	for _, id := range ids {
		if err := j.anchors.Enqueue(ctx, id); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("enqueue anchor %s: %w", id, err))
			continue
		}
		scheduled++
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(ids),
		"scheduled":  scheduled,
	})
	j.logg.Info(logCtx, "anchor sweep complete")
	return errs
}
