package dbtypes

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestProductSnapshotScanAcceptsTextAndBytes(t *testing.T) {
	owner := uuid.New()
	snap := ProductSnapshot{
		Name:            "coffee",
		UnitPriceCents:  1500,
		OwnerProducerID: owner,
		Shares:          []ProducerShare{{ProducerID: owner, SharePercentage: decimal.RequireFromString("62.5")}},
	}
	raw, err := snap.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}

	var fromBytes ProductSnapshot
	if err := fromBytes.Scan(raw); err != nil {
		t.Fatalf("scan bytes: %v", err)
	}
	var fromText ProductSnapshot
	if err := fromText.Scan(string(raw.([]byte))); err != nil {
		t.Fatalf("scan text: %v", err)
	}
	if !fromText.Shares[0].SharePercentage.Equal(decimal.RequireFromString("62.5")) || fromBytes.Name != "coffee" {
		t.Fatalf("snapshot not restored: %+v", fromText)
	}
	if err := fromText.Scan(42); err == nil {
		t.Fatalf("expected unsupported type error")
	}
}

func TestParticipantsDeduplicatesOwner(t *testing.T) {
	owner, partner := uuid.New(), uuid.New()
	snap := ProductSnapshot{
		OwnerProducerID: owner,
		Shares: []ProducerShare{
			{ProducerID: owner, SharePercentage: decimal.NewFromInt(50)},
			{ProducerID: partner, SharePercentage: decimal.NewFromInt(50)},
		},
	}
	got := snap.Participants()
	if len(got) != 2 || got[0] != owner || got[1] != partner {
		t.Fatalf("unexpected participants %v", got)
	}
}
