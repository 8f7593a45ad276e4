package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/types"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/models"
	pkgerrors "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/errors"
)

// Product is a purchasable catalog entry frozen into a snapshot.
type Product struct {
	Snapshot dbtypes.ProductSnapshot
	Currency string
	IsActive bool
}

// Reader loads catalog products for order placement. Catalog writes are owned by another service.
type Reader interface {
	Products(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]Product, error)
}

type gormReader struct {
	db *gorm.DB
}

func NewReader(db *gorm.DB) (Reader, error) {
	if db == nil {
		return nil, fmt.Errorf("catalog db required")
	}
	return &gormReader{db: db}, nil
}

// Products returns only the products that exist; callers decide how to treat missing ids.
func (r *gormReader) Products(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]Product, error) {
	out := make(map[uuid.UUID]Product, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", productIDs).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load catalog products")
	}
	var shares []models.ProductProducerShare
	if err := r.db.WithContext(ctx).
		Where("product_id IN ?", productIDs).
		Order("product_id ASC").
		Order("producer_id ASC").
		Find(&shares).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load producer shares")
	}

	sharesByProduct := make(map[uuid.UUID][]dbtypes.ProducerShare, len(rows))
	for _, share := range shares {
		sharesByProduct[share.ProductID] = append(sharesByProduct[share.ProductID], dbtypes.ProducerShare{
			ProducerID:      share.ProducerID,
			SharePercentage: share.SharePercentage,
		})
	}

	for _, row := range rows {
		out[row.ID] = Product{
			Snapshot: dbtypes.ProductSnapshot{
				ProductID:       row.ID,
				Name:            row.Name,
				UnitPriceCents:  row.PriceCents,
				OwnerProducerID: row.OwnerProducerID,
				Shares:          sharesByProduct[row.ID],
			},
			Currency: row.Currency,
			IsActive: row.IsActive,
		}
	}
	return out, nil
}
