package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/models"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
)

// Repository persists gateway dedup records and the manual reconciliation queue.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindEvent(ctx context.Context, eventID string) (*models.GatewayEvent, error)
	InsertEvent(ctx context.Context, event *models.GatewayEvent) error
	FinishEvent(ctx context.Context, eventID string, orderID *uuid.UUID, outcome enums.GatewayEventOutcome, detail string) error
	QueueManual(ctx context.Context, entry *models.PaymentReconciliation) error
	ListOpenManual(ctx context.Context, limit int) ([]models.PaymentReconciliation, error)
	ResolveManual(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordManualAttempt(ctx context.Context, id uuid.UUID, reason string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindEvent returns nil when the event was never recorded.
func (r *repository) FindEvent(ctx context.Context, eventID string) (*models.GatewayEvent, error) {
	var event models.GatewayEvent
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) InsertEvent(ctx context.Context, event *models.GatewayEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) FinishEvent(ctx context.Context, eventID string, orderID *uuid.UUID, outcome enums.GatewayEventOutcome, detail string) error {
	updates := map[string]any{"outcome": outcome, "order_id": orderID}
	if detail != "" {
		updates["detail"] = detail
	}
	return r.db.WithContext(ctx).
		Model(&models.GatewayEvent{}).
		Where("event_id = ?", eventID).
		Updates(updates).Error
}

// QueueManual is idempotent per event id.
func (r *repository) QueueManual(ctx context.Context, entry *models.PaymentReconciliation) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Status == "" {
		entry.Status = enums.ReconciliationStatusOpen
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(entry).Error
}

func (r *repository) ListOpenManual(ctx context.Context, limit int) ([]models.PaymentReconciliation, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []models.PaymentReconciliation
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.ReconciliationStatusOpen).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ResolveManual(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentReconciliation{}).
		Where("id = ? AND status = ?", id, enums.ReconciliationStatusOpen).
		Updates(map[string]any{
			"status":      enums.ReconciliationStatusResolved,
			"resolved_at": at,
			"attempts":    gorm.Expr("attempts + 1"),
		}).Error
}

func (r *repository) RecordManualAttempt(ctx context.Context, id uuid.UUID, reason string) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentReconciliation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts": gorm.Expr("attempts + 1"),
			"error":    reason,
		}).Error
}
