package enums

import "fmt"

// GatewayEventOutcome records what the payment reconciler did with a callback.
type GatewayEventOutcome string

const (
	GatewayOutcomeApplied        GatewayEventOutcome = "applied"
	GatewayOutcomeDuplicate      GatewayEventOutcome = "duplicate"
	GatewayOutcomeDuplicateState GatewayEventOutcome = "duplicate_state"
	GatewayOutcomeRejected       GatewayEventOutcome = "rejected"
	GatewayOutcomeFailed         GatewayEventOutcome = "failed"
)

var validGatewayOutcomes = []GatewayEventOutcome{
	GatewayOutcomeApplied,
	GatewayOutcomeDuplicate,
	GatewayOutcomeDuplicateState,
	GatewayOutcomeRejected,
	GatewayOutcomeFailed,
}

func (o GatewayEventOutcome) String() string {
	return string(o)
}

func (o GatewayEventOutcome) IsValid() bool {
	for _, candidate := range validGatewayOutcomes {
		if candidate == o {
			return true
		}
	}
	return false
}

// IsSettled reports whether a manual reconciliation entry can be closed after this outcome.
func (o GatewayEventOutcome) IsSettled() bool {
	return o.IsValid() && o != GatewayOutcomeFailed
}

func ParseGatewayEventOutcome(value string) (GatewayEventOutcome, error) {
	for _, candidate := range validGatewayOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid gateway event outcome %q", value)
}

// ReconciliationStatus tracks manual payment reconciliation entries.
type ReconciliationStatus string

const (
	ReconciliationStatusOpen     ReconciliationStatus = "open"
	ReconciliationStatusResolved ReconciliationStatus = "resolved"
)
