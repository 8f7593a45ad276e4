package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/models"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
)

// Repository defines persistence for orders, their line items and status history.
// Status updates carry the expected prior status and report whether a row matched.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateLineItems(ctx context.Context, items []models.OrderLineItem) error
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrderByPaymentReference(ctx context.Context, reference string) (*models.Order, error)
	FindLineItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderLineItem, error)
	UpdateDeliveryStatus(ctx context.Context, orderID uuid.UUID, from, to enums.DeliveryStatus, extra map[string]any) (bool, error)
	UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, from, to enums.PaymentStatus, extra map[string]any) (bool, error)
	BindPaymentReference(ctx context.Context, orderID uuid.UUID, reference string) (bool, error)
	UpdateLedgerState(ctx context.Context, orderID uuid.UUID, state LedgerState) error
	AppendHistory(ctx context.Context, entry *models.OrderStatusHistory) error
	ListHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error)
	ListSettledWithoutLedger(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// LedgerState is the anchoring status surfaced on the order for UI polling.
type LedgerState struct {
	Recorded    bool
	Error       *string
	Reference   *string
	ConfirmedAt *time.Time
}

// AnchorScheduler hands settled orders to the ledger anchoring reconciler.
type AnchorScheduler interface {
	Enqueue(ctx context.Context, orderID uuid.UUID) error
}
