package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
)

// OrderStatusHistory is append-only evidence of how an order reached its state.
type OrderStatusHistory struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID    uuid.UUID        `gorm:"column:order_id;type:uuid;not null" json:"order_id"`
	Axis       enums.StatusAxis `gorm:"column:axis;not null" json:"axis"`
	FromStatus string           `gorm:"column:from_status;not null" json:"from_status"`
	ToStatus   string           `gorm:"column:to_status;not null" json:"to_status"`
	ActorID    *uuid.UUID       `gorm:"column:actor_id;type:uuid" json:"actor_id"`
	ActorRole  enums.ActorRole  `gorm:"column:actor_role;not null" json:"actor_role"`
	Reason     *string          `gorm:"column:reason" json:"reason"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (OrderStatusHistory) TableName() string { return "order_status_history" }
