package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProducerShare is one producer's cut of a product, frozen at purchase time.
type ProducerShare struct {
	ProducerID      uuid.UUID       `json:"producer_id"`
	SharePercentage decimal.Decimal `json:"share_percentage"`
}

// ProductSnapshot is the immutable catalog copy stored on each line item.
type ProductSnapshot struct {
	ProductID       uuid.UUID       `json:"product_id"`
	Name            string          `json:"name"`
	UnitPriceCents  int64           `json:"unit_price_cents"`
	OwnerProducerID uuid.UUID       `json:"owner_producer_id"`
	Shares          []ProducerShare `json:"producer_shares"`
}

// Participants returns the owner followed by every share holder, deduplicated.
func (p ProductSnapshot) Participants() []uuid.UUID {
	out := []uuid.UUID{p.OwnerProducerID}
	seen := map[uuid.UUID]struct{}{p.OwnerProducerID: {}}
	for _, share := range p.Shares {
		if _, ok := seen[share.ProducerID]; ok {
			continue
		}
		seen[share.ProducerID] = struct{}{}
		out = append(out, share.ProducerID)
	}
	return out
}

func (p *ProductSnapshot) Scan(src any) error {
	return scanJSON("ProductSnapshot", src, p)
}

func (p ProductSnapshot) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// ShippingAddress is copied onto the order at creation and never edited.
type ShippingAddress struct {
	RecipientName string  `json:"recipient_name"`
	Line1         string  `json:"line1"`
	Line2         *string `json:"line2,omitempty"`
	City          string  `json:"city"`
	Region        string  `json:"region,omitempty"`
	PostalCode    string  `json:"postal_code,omitempty"`
	Country       string  `json:"country"`
	Phone         *string `json:"phone,omitempty"`
}

func (a *ShippingAddress) Scan(src any) error {
	return scanJSON("ShippingAddress", src, a)
}

func (a ShippingAddress) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func scanJSON(name string, src any, dest any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("%s: unsupported Scan type %T", name, src)
	}
}
