package splits

import (
	"errors"
	"math/rand"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/types"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/models"
	pkgerrors "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/errors"
)

func newCalc(t *testing.T, rate string) *Calculator {
	t.Helper()
	calc, err := NewCalculator(decimal.RequireFromString(rate), 2)
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	return calc
}

func orderedIDs(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	sort.Slice(ids, func(i, j int) bool { return lessID(ids[i], ids[j]) })
	return ids
}

func TestComputeSharesSeventyThirty(t *testing.T) {
	ids := orderedIDs(2)
	a, b := ids[0], ids[1]
	calc := newCalc(t, "10")

	result, err := calc.ComputeShares(Order{
		TotalCents: 30000,
		LineItems: []LineItem{{
			SubtotalCents:   30000,
			OwnerProducerID: a,
			Shares: []Share{
				{ProducerID: b, Percentage: decimal.NewFromInt(30)},
				{ProducerID: a, Percentage: decimal.NewFromInt(70)},
			},
		}},
	})
	if err != nil {
		t.Fatalf("ComputeShares: %v", err)
	}
	if len(result.Payouts) != 2 {
		t.Fatalf("expected 2 payouts, got %d", len(result.Payouts))
	}
	if result.Payouts[0].ProducerID != a || result.Payouts[0].NetCents != 18900 || result.Payouts[0].GrossCents != 21000 {
		t.Fatalf("unexpected payout for A: %+v", result.Payouts[0])
	}
	if result.Payouts[1].ProducerID != b || result.Payouts[1].NetCents != 8100 {
		t.Fatalf("unexpected payout for B: %+v", result.Payouts[1])
	}
	if result.CommissionCents != 3000 {
		t.Fatalf("expected commission 3000, got %d", result.CommissionCents)
	}
	if !calc.ToMajor(result.Payouts[0].NetCents).Equal(decimal.RequireFromString("189")) {
		t.Fatalf("expected 189.00 major units, got %s", calc.ToMajor(result.Payouts[0].NetCents))
	}
}

func TestComputeSharesZeroSharesGoToOwner(t *testing.T) {
	owner := uuid.New()
	result, err := newCalc(t, "12.5").ComputeShares(Order{
		TotalCents: 999,
		LineItems:  []LineItem{{SubtotalCents: 999, OwnerProducerID: owner}},
	})
	if err != nil {
		t.Fatalf("ComputeShares: %v", err)
	}
	if len(result.Payouts) != 1 || result.Payouts[0].ProducerID != owner {
		t.Fatalf("unexpected payouts %+v", result.Payouts)
	}
	// 999 * 12.5% = 124.875 rounds half-up to 125.
	if result.CommissionCents != 125 || result.Payouts[0].NetCents != 874 {
		t.Fatalf("unexpected figures %+v", result)
	}
}

func TestComputeSharesResidualGoesToLargestThenSmallestID(t *testing.T) {
	ids := orderedIDs(3)
	third := decimal.RequireFromString("33.3333")
	result, err := newCalc(t, "0").ComputeShares(Order{
		TotalCents: 100,
		LineItems: []LineItem{{
			SubtotalCents:   100,
			OwnerProducerID: ids[2],
			Shares: []Share{
				{ProducerID: ids[2], Percentage: third},
				{ProducerID: ids[1], Percentage: third},
				{ProducerID: ids[0], Percentage: third},
			},
		}},
	})
	if err != nil {
		t.Fatalf("ComputeShares: %v", err)
	}
	want := []int64{34, 33, 33}
	for i, payout := range result.Payouts {
		if payout.ProducerID != ids[i] || payout.GrossCents != want[i] || payout.NetCents != want[i] {
			t.Fatalf("payout %d: got %+v want gross %d", i, payout, want[i])
		}
	}
}

func TestComputeSharesFullCommissionAbsorbsNegativeResidual(t *testing.T) {
	ids := orderedIDs(2)
	a, b := ids[0], ids[1]

	result, err := newCalc(t, "100").ComputeShares(Order{
		TotalCents: 101,
		LineItems: []LineItem{{
			SubtotalCents:   101,
			OwnerProducerID: a,
			Shares: []Share{
				{ProducerID: a, Percentage: decimal.NewFromInt(50)},
				{ProducerID: b, Percentage: decimal.NewFromInt(50)},
			},
		}},
	})
	if err != nil {
		t.Fatalf("ComputeShares: %v", err)
	}
	if result.Payouts[0].GrossCents != 50 || result.Payouts[0].CommissionCents != 50 || result.Payouts[0].NetCents != 0 {
		t.Fatalf("unexpected payout for A: %+v", result.Payouts[0])
	}
	if result.Payouts[1].GrossCents != 51 || result.Payouts[1].NetCents != 0 {
		t.Fatalf("unexpected payout for B: %+v", result.Payouts[1])
	}
	if result.CommissionCents != 101 {
		t.Fatalf("expected commission 101, got %d", result.CommissionCents)
	}
}

func TestComputeSharesAcrossMultipleItems(t *testing.T) {
	ids := orderedIDs(3)
	result, err := newCalc(t, "10").ComputeShares(Order{
		TotalCents: 1000 + 333,
		LineItems: []LineItem{
			{SubtotalCents: 1000, OwnerProducerID: ids[0], Shares: []Share{
				{ProducerID: ids[0], Percentage: decimal.NewFromInt(50)},
				{ProducerID: ids[1], Percentage: decimal.NewFromInt(50)},
			}},
			{SubtotalCents: 333, OwnerProducerID: ids[2]},
		},
	})
	if err != nil {
		t.Fatalf("ComputeShares: %v", err)
	}
	var net int64
	for _, p := range result.Payouts {
		net += p.NetCents
	}
	if net+result.CommissionCents != 1333 {
		t.Fatalf("figures do not reconcile: %+v", result)
	}
	if result.Payouts[2].GrossCents != 333 || result.Payouts[2].CommissionCents != 33 {
		t.Fatalf("unexpected owner-only payout %+v", result.Payouts[2])
	}
}

func TestComputeSharesTotalMismatchIsInternal(t *testing.T) {
	_, err := newCalc(t, "10").ComputeShares(Order{
		TotalCents: 500,
		LineItems:  []LineItem{{SubtotalCents: 400, OwnerProducerID: uuid.New()}},
	})
	if !errors.Is(err, ErrInvariantViolated) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	if !pkgerrors.HasCode(err, pkgerrors.CodeInternal) {
		t.Fatalf("expected internal code, got %v", err)
	}
}

func TestComputeSharesRejectsBadShares(t *testing.T) {
	_, err := newCalc(t, "10").ComputeShares(Order{
		TotalCents: 100,
		LineItems: []LineItem{{SubtotalCents: 100, OwnerProducerID: uuid.New(), Shares: []Share{
			{ProducerID: uuid.New(), Percentage: decimal.Zero},
		}}},
	})
	if !errors.Is(err, ErrInvariantViolated) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
}

func TestComputeSharesReconcilesForRandomOrders(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	producers := orderedIDs(6)
	rates := []string{"0", "2.5", "7", "10", "15.75", "33.3333"}

	for iter := 0; iter < 500; iter++ {
		calc := newCalc(t, rates[rng.Intn(len(rates))])
		order := Order{ID: uuid.New()}
		for n := rng.Intn(5) + 1; n > 0; n-- {
			item := LineItem{
				SubtotalCents:   int64(rng.Intn(200000)),
				OwnerProducerID: producers[rng.Intn(len(producers))],
			}
			if shareCount := rng.Intn(4); shareCount > 0 {
				remaining := 1000000 // basis of 100.0000 percent
				perm := rng.Perm(len(producers))[:shareCount]
				for i, idx := range perm {
					part := remaining
					if i < shareCount-1 {
						part = rng.Intn(remaining-(shareCount-1-i)) + 1
					}
					remaining -= part
					item.Shares = append(item.Shares, Share{
						ProducerID: producers[idx],
						Percentage: decimal.New(int64(part), -4),
					})
				}
			}
			order.TotalCents += item.SubtotalCents
			order.LineItems = append(order.LineItems, item)
		}

		result, err := calc.ComputeShares(order)
		if err != nil {
			t.Fatalf("iteration %d: %v", iter, err)
		}
		var net int64
		for i, p := range result.Payouts {
			net += p.NetCents
			if i > 0 && !lessID(result.Payouts[i-1].ProducerID, p.ProducerID) {
				t.Fatalf("iteration %d: payouts not ordered by producer id", iter)
			}
		}
		if net+result.CommissionCents != order.TotalCents {
			t.Fatalf("iteration %d: net %d + commission %d != total %d", iter, net, result.CommissionCents, order.TotalCents)
		}
	}
}

func TestFromModelsUsesSnapshotShares(t *testing.T) {
	owner, partner := uuid.New(), uuid.New()
	order := models.Order{ID: uuid.New(), TotalCents: 200}
	items := []models.OrderLineItem{{
		SubtotalCents: 200,
		ProductSnapshot: dbtypes.ProductSnapshot{
			OwnerProducerID: owner,
			Shares: []dbtypes.ProducerShare{
				{ProducerID: owner, SharePercentage: decimal.NewFromInt(60)},
				{ProducerID: partner, SharePercentage: decimal.NewFromInt(40)},
			},
		},
	}}
	in := FromModels(order, items)
	if in.TotalCents != 200 || len(in.LineItems) != 1 || len(in.LineItems[0].Shares) != 2 {
		t.Fatalf("unexpected calculator input %+v", in)
	}
	if in.LineItems[0].OwnerProducerID != owner {
		t.Fatalf("owner not carried over")
	}
}
