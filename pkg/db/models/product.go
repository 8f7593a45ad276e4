package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the catalog row read when an order is placed. Catalog CRUD lives elsewhere.
type Product struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OwnerProducerID uuid.UUID `gorm:"column:owner_producer_id;type:uuid;not null"`
	Name            string    `gorm:"column:name;not null"`
	PriceCents      int64     `gorm:"column:price_cents;not null"`
	Currency        string    `gorm:"column:currency;not null"`
	IsActive        bool      `gorm:"column:is_active;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }

type ProductProducerShare struct {
	ProductID       uuid.UUID       `gorm:"column:product_id;type:uuid;primaryKey"`
	ProducerID      uuid.UUID       `gorm:"column:producer_id;type:uuid;primaryKey"`
	SharePercentage decimal.Decimal `gorm:"column:share_percentage;type:numeric(7,4);not null"`
}

func (ProductProducerShare) TableName() string { return "product_producer_shares" }
