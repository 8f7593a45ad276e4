package splits

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/errors"
)

// ErrInvariantViolated marks a split whose figures do not reconcile with the order total.
var ErrInvariantViolated = errors.New("split invariant violated")

var hundred = decimal.NewFromInt(100)

type Share struct {
	ProducerID uuid.UUID
	Percentage decimal.Decimal
}

// LineItem amounts are in currency minor units.
type LineItem struct {
	SubtotalCents   int64
	OwnerProducerID uuid.UUID
	Shares          []Share
}

type Order struct {
	ID         uuid.UUID
	TotalCents int64
	LineItems  []LineItem
}

type Payout struct {
	ProducerID      uuid.UUID `json:"producer_id"`
	GrossCents      int64     `json:"gross_cents"`
	CommissionCents int64     `json:"commission_cents"`
	NetCents        int64     `json:"net_cents"`
}

type Result struct {
	OrderID         uuid.UUID `json:"order_id"`
	TotalCents      int64     `json:"total_cents"`
	CommissionCents int64     `json:"commission_cents"`
	Payouts         []Payout  `json:"payouts"`
}

// Calculator splits order proceeds across producers. It holds no state beyond its rate.
type Calculator struct {
	CommissionPercent decimal.Decimal
	MinorUnits        int32
}

func NewCalculator(commissionPercent decimal.Decimal, minorUnits int32) (*Calculator, error) {
	if commissionPercent.IsNegative() || commissionPercent.GreaterThan(hundred) {
		return nil, fmt.Errorf("commission percent must be within [0,100], got %s", commissionPercent)
	}
	if minorUnits < 0 {
		return nil, fmt.Errorf("minor units must be non-negative")
	}
	return &Calculator{CommissionPercent: commissionPercent, MinorUnits: minorUnits}, nil
}

// ToMajor renders a minor-unit amount in major units (cents to dollars for USD).
func (c Calculator) ToMajor(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Shift(-c.MinorUnits)
}

type accumulator struct {
	producerID uuid.UUID
	exactGross decimal.Decimal
}

func (c Calculator) ComputeShares(order Order) (Result, error) {
	var subtotalSum int64
	totals := map[uuid.UUID]*accumulator{}
	add := func(producerID uuid.UUID, amount decimal.Decimal) {
		acc, ok := totals[producerID]
		if !ok {
			acc = &accumulator{producerID: producerID, exactGross: decimal.Zero}
			totals[producerID] = acc
		}
		acc.exactGross = acc.exactGross.Add(amount)
	}

	for idx, item := range order.LineItems {
		if item.SubtotalCents < 0 {
			return Result{}, violation("line item %d has negative subtotal", idx)
		}
		subtotalSum += item.SubtotalCents
		subtotal := decimal.NewFromInt(item.SubtotalCents)

		if len(item.Shares) == 0 {
			if item.OwnerProducerID == uuid.Nil {
				return Result{}, violation("line item %d has no owning producer", idx)
			}
			add(item.OwnerProducerID, subtotal)
			continue
		}

		shareSum := decimal.Zero
		for _, share := range item.Shares {
			if share.ProducerID == uuid.Nil || !share.Percentage.IsPositive() || share.Percentage.GreaterThan(hundred) {
				return Result{}, violation("line item %d has an invalid producer share", idx)
			}
			shareSum = shareSum.Add(share.Percentage)
		}
		// Distribute proportionally so shares summing to 100 within epsilon still cover the subtotal.
		for _, share := range item.Shares {
			add(share.ProducerID, subtotal.Mul(share.Percentage).Div(shareSum))
		}
	}

	if subtotalSum != order.TotalCents {
		return Result{}, violation("order total %d does not match line subtotals %d", order.TotalCents, subtotalSum)
	}

	accs := make([]*accumulator, 0, len(totals))
	for _, acc := range totals {
		accs = append(accs, acc)
	}
	sort.Slice(accs, func(i, j int) bool { return lessID(accs[i].producerID, accs[j].producerID) })

	result := Result{OrderID: order.ID, TotalCents: order.TotalCents, Payouts: make([]Payout, 0, len(accs))}
	var grossSum int64
	largest := -1
	for i, acc := range accs {
		gross := acc.exactGross.Round(0).IntPart()
		commission := acc.exactGross.Mul(c.CommissionPercent).Div(hundred).Round(0).IntPart()
		result.Payouts = append(result.Payouts, Payout{
			ProducerID:      acc.producerID,
			GrossCents:      gross,
			CommissionCents: commission,
			NetCents:        gross - commission,
		})
		grossSum += gross
		// accs is sorted by id, so a strict comparison keeps the smallest id on ties.
		if largest < 0 || acc.exactGross.GreaterThan(accs[largest].exactGross) {
			largest = i
		}
	}

	if residual := order.TotalCents - grossSum; residual != 0 && largest >= 0 {
		result.Payouts[largest].GrossCents += residual
	}

	var netSum int64
	for i := range result.Payouts {
		payout := &result.Payouts[i]
		// Commission never exceeds the gross left after the residual moved.
		if payout.CommissionCents > payout.GrossCents {
			payout.CommissionCents = payout.GrossCents
		}
		payout.NetCents = payout.GrossCents - payout.CommissionCents
		if payout.NetCents < 0 {
			return Result{}, violation("producer %s has negative net payout", payout.ProducerID)
		}
		netSum += payout.NetCents
		result.CommissionCents += payout.CommissionCents
	}
	if netSum+result.CommissionCents != order.TotalCents {
		return Result{}, violation("net %d plus commission %d does not equal total %d", netSum, result.CommissionCents, order.TotalCents)
	}
	return result, nil
}

func lessID(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

func violation(format string, args ...any) error {
	return pkgerrors.Wrap(pkgerrors.CodeInternal, fmt.Errorf("%w: "+format, append([]any{ErrInvariantViolated}, args...)...), "split calculation failed")
}
