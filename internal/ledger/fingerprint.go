package ledger

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/splits"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/models"
)

type settlementPayout struct {
	ProducerID      string `json:"producerId"`
	GrossCents      int64  `json:"grossCents"`
	CommissionCents int64  `json:"commissionCents"`
	NetCents        int64  `json:"netCents"`
}

// Settlement is the canonical document whose hash is anchored. Field order is fixed
// by declaration and payouts arrive sorted by producer id, so encoding is stable.
type Settlement struct {
	OrderID         string             `json:"orderId"`
	Currency        string             `json:"currency"`
	TotalCents      int64              `json:"total"`
	Payouts         []settlementPayout `json:"payouts"`
	CommissionCents int64              `json:"commission"`
	DeliveredAt     string             `json:"deliveredAt"`
}

func NewSettlement(order models.Order, split splits.Result) Settlement {
	doc := Settlement{
		OrderID:         order.ID.String(),
		Currency:        string(order.Currency),
		TotalCents:      split.TotalCents,
		Payouts:         make([]settlementPayout, 0, len(split.Payouts)),
		CommissionCents: split.CommissionCents,
	}
	if order.DeliveredAt != nil {
		doc.DeliveredAt = order.DeliveredAt.UTC().Format(time.RFC3339Nano)
	}
	for _, payout := range split.Payouts {
		doc.Payouts = append(doc.Payouts, settlementPayout{
			ProducerID:      payout.ProducerID.String(),
			GrossCents:      payout.GrossCents,
			CommissionCents: payout.CommissionCents,
			NetCents:        payout.NetCents,
		})
	}
	return doc
}

func (s Settlement) Canonical() ([]byte, error) {
	return json.Marshal(s)
}

// Fingerprint returns the 0x-prefixed Keccak-256 of the canonical document.
func (s Settlement) Fingerprint() (string, error) {
	raw, err := s.Canonical()
	if err != nil {
		return "", err
	}
	hash := sha3.NewLegacyKeccak256()
	_, _ = hash.Write(raw)
	return "0x" + hex.EncodeToString(hash.Sum(nil)), nil
}
