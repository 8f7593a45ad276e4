package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/orders"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/splits"
	dbpkg "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/models"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
	pkgerrors "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/errors"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/ledgerclient"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/logger"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/outbox"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/outbox/payloads"
)

const (
	defaultMaxAttempts = 12
	defaultLease       = 2 * time.Minute
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Client is the subset of the external ledger API the reconciler needs.
type Client interface {
	Submit(ctx context.Context, req ledgerclient.SubmitRequest) (*ledgerclient.Receipt, error)
	Get(ctx context.Context, reference string) (*ledgerclient.Receipt, error)
	FindByOrder(ctx context.Context, orderID string) (*ledgerclient.Receipt, error)
}

// Observer receives one call per anchor attempt outcome.
type Observer interface {
	ObserveAnchor(outcome string)
}

type AnchorResult struct {
	Outcome enums.AnchorOutcome  `json:"outcome"`
	Reason  string               `json:"reason,omitempty"`
	Record  *models.LedgerRecord `json:"record,omitempty"`
}

type VerifyResult struct {
	Status    enums.LedgerVerifyStatus `json:"status"`
	Reference string                   `json:"reference,omitempty"`
	CheckedAt time.Time                `json:"checked_at"`
	Reason    string                   `json:"reason,omitempty"`
}

type ServiceParams struct {
	Repository  Repository
	Orders      orders.Repository
	TxRunner    txRunner
	Outbox      outbox.Emitter
	Client      Client
	Calculator  *splits.Calculator
	Backoff     *Backoff
	MaxAttempts int
	// Lease is how long a claimed job stays hidden from other workers.
	Lease       time.Duration
	Network     string
	Observer    Observer
	Logger      *logger.Logger
	Now         func() time.Time
}

// Service anchors settled orders on the external ledger. It satisfies orders.AnchorScheduler.
type Service struct {
	repo        Repository
	orders      orders.Repository
	tx          txRunner
	outbox      outbox.Emitter
	client      Client
	calculator  *splits.Calculator
	backoff     *Backoff
	maxAttempts int
	lease       time.Duration
	network     string
	observer    Observer
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("ledger repository required")
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
	if params.Client == nil {
		return nil, fmt.Errorf("ledger client required")
	}
	if params.Calculator == nil {
		return nil, fmt.Errorf("split calculator required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	backoff := params.Backoff
	if backoff == nil {
		backoff = NewBackoff(0, 0)
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	lease := params.Lease
	if lease <= 0 {
		lease = defaultLease
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:        params.Repository,
		orders:      params.Orders,
		tx:          params.TxRunner,
		outbox:      params.Outbox,
		client:      params.Client,
		calculator:  params.Calculator,
		backoff:     backoff,
		maxAttempts: maxAttempts,
		lease:       lease,
		network:     params.Network,
		observer:    params.Observer,
		logg:        params.Logger,
		now:         now,
	}, nil
}

// Enqueue schedules an anchor job for the order; repeated calls are no-ops.
func (s *Service) Enqueue(ctx context.Context, orderID uuid.UUID) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if err := s.repo.EnsureJob(ctx, orderID, s.now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue anchor job")
	}
	return nil
}

// Anchor runs one attempt for the order right away, claiming its job first.
func (s *Service) Anchor(ctx context.Context, orderID uuid.UUID) (AnchorResult, error) {
	if err := s.Enqueue(ctx, orderID); err != nil {
		return AnchorResult{}, err
	}
	job, err := s.repo.FindJob(ctx, orderID)
	if err != nil {
		return AnchorResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load anchor job")
	}
	return s.runClaimed(ctx, *job)
}

// ProcessDue claims and runs up to limit due jobs. It returns how many were attempted.
func (s *Service) ProcessDue(ctx context.Context, limit int) (int, error) {
	jobs, err := s.repo.ListDueJobs(ctx, s.now().UTC(), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list due anchor jobs")
	}
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		logCtx := s.logg.WithOrderID(ctx, job.OrderID.String())
		if _, err := s.runClaimed(logCtx, job); err != nil {
			// Invariant violations fail the job; the batch keeps going.
			s.logg.Error(logCtx, "anchor attempt failed", err)
		}
	}
	return len(jobs), nil
}

func (s *Service) runClaimed(ctx context.Context, job models.LedgerAnchorJob) (AnchorResult, error) {
	if job.Status == enums.AnchorJobStatusDone {
		record, err := s.repo.FindRecord(ctx, job.OrderID)
		if err == nil {
			return s.finish(AnchorResult{Outcome: enums.AnchorOutcomeAlreadyAnchored, Record: record}), nil
		}
	}
	if job.Status == enums.AnchorJobStatusFailed {
		return s.finish(AnchorResult{Outcome: enums.AnchorOutcomeDeferred, Reason: "anchor job failed permanently"}), nil
	}
	now := s.now().UTC()
	claimed, err := s.repo.ClaimJob(ctx, job.ID, job.Attempt, now, now.Add(s.lease))
	if err != nil {
		return AnchorResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim anchor job")
	}
	if !claimed {
		return s.finish(AnchorResult{Outcome: enums.AnchorOutcomeDeferred, Reason: "job claimed by another worker"}), nil
	}
	job.Attempt++

	result, err := s.attempt(ctx, job)
	if err != nil {
		// Terminal failures were already marked; release anything still running.
		if retryErr := s.retryLater(ctx, job, err.Error()); retryErr != nil {
			s.logg.Error(ctx, "reschedule anchor job failed", retryErr)
		}
		return result, err
	}
	if result.Outcome == enums.AnchorOutcomeDeferred {
		if retryErr := s.retryLater(ctx, job, result.Reason); retryErr != nil {
			return result, retryErr
		}
	}
	return s.finish(result), nil
}

// retryLater reschedules a claimed job with backoff, or fails it once attempts run out.
func (s *Service) retryLater(ctx context.Context, job models.LedgerAnchorJob, reason string) error {
	if job.Attempt >= s.maxAttempts {
		if err := s.repo.MarkJobFailed(ctx, job.ID, "max attempts reached: "+reason); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail anchor job")
		}
		return nil
	}
	next := s.now().UTC().Add(s.backoff.Delay(job.Attempt))
	if err := s.repo.RescheduleJob(ctx, job.ID, next, reason); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reschedule anchor job")
	}
	return nil
}

func (s *Service) attempt(ctx context.Context, job models.LedgerAnchorJob) (AnchorResult, error) {
	record, err := s.repo.FindRecord(ctx, job.OrderID)
	switch {
	case err == nil:
		if markErr := s.repo.MarkJobDone(ctx, job.ID); markErr != nil {
			return AnchorResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, markErr, "complete anchor job")
		}
		return AnchorResult{Outcome: enums.AnchorOutcomeAlreadyAnchored, Record: record}, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return AnchorResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger record")
	}

	order, err := s.orders.FindOrder(ctx, job.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if markErr := s.repo.MarkJobFailed(ctx, job.ID, "order not found"); markErr != nil {
				s.logg.Error(ctx, "fail anchor job failed", markErr)
			}
			return AnchorResult{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return AnchorResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !order.IsSettled() {
		return AnchorResult{Outcome: enums.AnchorOutcomeDeferred, Reason: "order not settled"}, nil
	}

	items, err := s.orders.FindLineItems(ctx, order.ID)
	if err != nil {
		return AnchorResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load line items")
	}
	split, err := s.calculator.ComputeShares(splits.FromModels(*order, items))
	if err != nil {
		msg := err.Error()
		if stateErr := s.orders.UpdateLedgerState(ctx, order.ID, orders.LedgerState{Error: &msg}); stateErr != nil {
			s.logg.Error(ctx, "record ledger error failed", stateErr)
		}
		if markErr := s.repo.MarkJobFailed(ctx, job.ID, msg); markErr != nil {
			s.logg.Error(ctx, "fail anchor job failed", markErr)
		}
		s.observe("invariant_violation")
		return AnchorResult{}, err
	}

	settlement := NewSettlement(*order, split)
	fingerprint, err := settlement.Fingerprint()
	if err != nil {
		return AnchorResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "compute fingerprint")
	}

	receipt, err := s.client.FindByOrder(ctx, order.ID.String())
	if err != nil {
		return s.deferAttempt(ctx, order.ID, err), nil
	}
	if receipt == nil {
		canonical, err := settlement.Canonical()
		if err != nil {
			return AnchorResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode settlement")
		}
		receipt, err = s.client.Submit(ctx, ledgerclient.SubmitRequest{
			OrderID:        order.ID.String(),
			Fingerprint:    fingerprint,
			Network:        s.network,
			Settlement:     canonical,
			IdempotencyKey: fmt.Sprintf("%s:%d", order.ID, job.Attempt),
		})
		if err != nil {
			return s.deferAttempt(ctx, order.ID, err), nil
		}
	} else if receipt.Fingerprint != fingerprint {
		s.logg.Warn(s.logg.WithField(ctx, "ledger_reference", receipt.Reference), "adopted ledger receipt carries a different fingerprint")
	}

	return s.commit(ctx, job, order, receipt)
}

func (s *Service) commit(ctx context.Context, job models.LedgerAnchorJob, order *models.Order, receipt *ledgerclient.Receipt) (AnchorResult, error) {
	confirmedAt := receipt.ConfirmedAt.UTC()
	if receipt.ConfirmedAt.IsZero() {
		confirmedAt = s.now().UTC()
	}
	record := &models.LedgerRecord{
		ID:                uuid.New(),
		OrderID:           order.ID,
		Fingerprint:       receipt.Fingerprint,
		ExternalReference: receipt.Reference,
		BlockNumber:       receipt.BlockNumber,
		Attempt:           job.Attempt,
		ConfirmedAt:       confirmedAt,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.InsertRecord(ctx, record); err != nil {
			return err
		}
		reference := receipt.Reference
		if err := s.orders.WithTx(tx).UpdateLedgerState(ctx, order.ID, orders.LedgerState{
			Recorded:    true,
			Reference:   &reference,
			ConfirmedAt: &confirmedAt,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order ledger state")
		}
		if err := repo.MarkJobDone(ctx, job.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete anchor job")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderLedgerAnchored,
			AggregateType: enums.AggregateLedgerRecord,
			AggregateID:   record.ID,
			Actor:         orders.SystemActor.OutboxRef(),
			Data: payloads.OrderLedgerAnchoredEvent{
				OrderID:           order.ID,
				Fingerprint:       record.Fingerprint,
				ExternalReference: record.ExternalReference,
				BlockNumber:       record.BlockNumber,
				ConfirmedAt:       confirmedAt,
			},
		})
	})
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			existing, findErr := s.repo.FindRecord(ctx, order.ID)
			if findErr != nil {
				return AnchorResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "load ledger record")
			}
			if markErr := s.repo.MarkJobDone(ctx, job.ID); markErr != nil {
				s.logg.Error(ctx, "complete anchor job failed", markErr)
			}
			return AnchorResult{Outcome: enums.AnchorOutcomeAlreadyAnchored, Record: existing}, nil
		}
		if pkgerrors.As(err) != nil {
			return AnchorResult{}, err
		}
		return AnchorResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store ledger record")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":         order.ID.String(),
		"ledger_reference": record.ExternalReference,
		"attempt":          job.Attempt,
	}), "order anchored on ledger")
	return AnchorResult{Outcome: enums.AnchorOutcomeSubmitted, Record: record}, nil
}

// deferAttempt records the outage on the order; the caller reschedules the job.
func (s *Service) deferAttempt(ctx context.Context, orderID uuid.UUID, cause error) AnchorResult {
	msg := cause.Error()
	if err := s.orders.UpdateLedgerState(ctx, orderID, orders.LedgerState{Error: &msg}); err != nil {
		s.logg.Error(ctx, "record ledger error failed", err)
	}
	s.logg.Warn(s.logg.WithField(ctx, "error", msg), "ledger unavailable, anchor deferred")
	return AnchorResult{Outcome: enums.AnchorOutcomeDeferred, Reason: msg}
}

func (s *Service) finish(result AnchorResult) AnchorResult {
	s.observe(string(result.Outcome))
	return result
}

func (s *Service) observe(outcome string) {
	if s.observer != nil {
		s.observer.ObserveAnchor(outcome)
	}
}

// Verify compares the stored receipt against the ledger and the order's current settlement.
func (s *Service) Verify(ctx context.Context, orderID uuid.UUID) (VerifyResult, error) {
	result := VerifyResult{CheckedAt: s.now().UTC()}
	if orderID == uuid.Nil {
		return result, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	record, err := s.repo.FindRecord(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result.Status = enums.LedgerVerifyPending
			result.Reason = "order has not been anchored yet"
			return result, nil
		}
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger record")
	}
	result.Reference = record.ExternalReference

	unverifiable := func(reason string) (VerifyResult, error) {
		result.Status = enums.LedgerVerifyUnverifiable
		result.Reason = reason
		return result, nil
	}

	receipt, err := s.client.Get(ctx, record.ExternalReference)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return unverifiable("ledger has no entry for the stored reference")
		}
		return unverifiable("ledger unavailable: " + err.Error())
	}
	if receipt.Fingerprint != record.Fingerprint {
		return unverifiable("ledger fingerprint does not match stored record")
	}

	order, err := s.orders.FindOrder(ctx, orderID)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	items, err := s.orders.FindLineItems(ctx, orderID)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load line items")
	}
	split, err := s.calculator.ComputeShares(splits.FromModels(*order, items))
	if err != nil {
		return unverifiable("settlement cannot be recomputed")
	}
	fingerprint, err := NewSettlement(*order, split).Fingerprint()
	if err != nil || fingerprint != record.Fingerprint {
		return unverifiable("order data no longer matches the anchored fingerprint")
	}

	result.Status = enums.LedgerVerifyVerified
	return result, nil
}
