package splits

import (
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/models"
)

// FromModels builds calculator input from persisted rows. Shares come from the
// purchase-time snapshot, never from the live catalog.
func FromModels(order models.Order, items []models.OrderLineItem) Order {
	out := Order{ID: order.ID, TotalCents: order.TotalCents, LineItems: make([]LineItem, 0, len(items))}
	for _, item := range items {
		li := LineItem{
			SubtotalCents:   item.SubtotalCents,
			OwnerProducerID: item.ProductSnapshot.OwnerProducerID,
		}
		for _, share := range item.ProductSnapshot.Shares {
			li.Shares = append(li.Shares, Share{ProducerID: share.ProducerID, Percentage: share.SharePercentage})
		}
		out.LineItems = append(out.LineItems, li)
	}
	return out
}
