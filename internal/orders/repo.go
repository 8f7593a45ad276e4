package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/models"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) CreateLineItems(ctx context.Context, items []models.OrderLineItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrderByPaymentReference(ctx context.Context, reference string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("payment_reference = ?", reference).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindLineItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderLineItem, error) {
	var items []models.OrderLineItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateDeliveryStatus writes the new status only while the row still holds from.
func (r *repository) UpdateDeliveryStatus(ctx context.Context, orderID uuid.UUID, from, to enums.DeliveryStatus, extra map[string]any) (bool, error) {
	updates := map[string]any{"delivery_status": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND delivery_status = ?", orderID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdatePaymentStatus writes the new status only while the row still holds from.
func (r *repository) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, from, to enums.PaymentStatus, extra map[string]any) (bool, error) {
	updates := map[string]any{"payment_status": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", orderID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// BindPaymentReference sets the gateway reference once; a bound order is left untouched.
func (r *repository) BindPaymentReference(ctx context.Context, orderID uuid.UUID, reference string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_reference IS NULL", orderID).
		Update("payment_reference", reference)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdateLedgerState(ctx context.Context, orderID uuid.UUID, state LedgerState) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{
			"ledger_recorded":     state.Recorded,
			"ledger_error":        state.Error,
			"ledger_reference":    state.Reference,
			"ledger_confirmed_at": state.ConfirmedAt,
		}).Error
}

func (r *repository) AppendHistory(ctx context.Context, entry *models.OrderStatusHistory) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	var entries []models.OrderStatusHistory
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ListSettledWithoutLedger returns settled orders that have neither a ledger record nor an anchor job.
func (r *repository) ListSettledWithoutLedger(ctx context.Context, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("delivery_status = ? AND payment_status = ?", enums.DeliveryStatusDelivered, enums.PaymentStatusConfirmed).
		Where("ledger_recorded = ?", false).
		Where("NOT EXISTS (SELECT 1 FROM ledger_records lr WHERE lr.order_id = orders.id)").
		Where("NOT EXISTS (SELECT 1 FROM ledger_anchor_jobs j WHERE j.order_id = orders.id)").
		Order("updated_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
