package enums

// AnchorJobStatus tracks a durable ledger anchoring job.
type AnchorJobStatus string

const (
	AnchorJobStatusPending AnchorJobStatus = "pending"
	AnchorJobStatusRunning AnchorJobStatus = "running"
	AnchorJobStatusDone    AnchorJobStatus = "done"
	AnchorJobStatusFailed  AnchorJobStatus = "failed"
)

func (s AnchorJobStatus) IsValid() bool {
	switch s {
	case AnchorJobStatusPending, AnchorJobStatusRunning, AnchorJobStatusDone, AnchorJobStatusFailed:
		return true
	}
	return false
}

// AnchorOutcome is the result of a single anchor attempt.
type AnchorOutcome string

const (
	AnchorOutcomeSubmitted       AnchorOutcome = "submitted"
	AnchorOutcomeAlreadyAnchored AnchorOutcome = "alreadyAnchored"
	AnchorOutcomeDeferred        AnchorOutcome = "deferred"
)

// LedgerVerifyStatus is reported by the ledger verification read.
type LedgerVerifyStatus string

const (
	LedgerVerifyVerified     LedgerVerifyStatus = "verified"
	LedgerVerifyUnverifiable LedgerVerifyStatus = "unverifiable"
	LedgerVerifyPending      LedgerVerifyStatus = "pending"
)
