package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/types"
)

// OrderLineItem is immutable once the order is placed.
type OrderLineItem struct {
	ID              uuid.UUID               `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID         uuid.UUID               `gorm:"column:order_id;type:uuid;not null" json:"order_id"`
	ProductID       uuid.UUID               `gorm:"column:product_id;type:uuid;not null" json:"product_id"`
	Quantity        int                     `gorm:"column:quantity;not null" json:"quantity"`
	UnitPriceCents  int64                   `gorm:"column:unit_price_cents;not null" json:"unit_price_cents"`
	SubtotalCents   int64                   `gorm:"column:subtotal_cents;not null" json:"subtotal_cents"`
	ProductSnapshot dbtypes.ProductSnapshot `gorm:"column:product_snapshot;type:jsonb;not null" json:"product_snapshot"`
	CreatedAt       time.Time               `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (OrderLineItem) TableName() string { return "order_line_items" }
