package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Contest statuses. Only COMPLETED matters to settlement; the others are owned by
// the lifecycle state machine.
const (
	ContestStatusScheduled = "SCHEDULED"
	ContestStatusLocked    = "LOCKED"
	ContestStatusLive      = "LIVE"
	ContestStatusCompleted = "COMPLETED"
	ContestStatusCancelled = "CANCELLED"
)

// Contest is the subset of a contest instance the settlement pipeline reads.
type Contest struct {
	ID                    string
	Status                string
	TemplateID            string
	SettlementStrategyKey string // from the contest template
	PrizePoolCents        int64
	PayoutStructure       []PayoutTier
}

// PayoutTier is the share of the prize pool awarded to a finishing place.
type PayoutTier struct {
	Rank  int             `json:"rank"`  // 1-based finishing place
	Share decimal.Decimal `json:"share"` // fraction of the prize pool, e.g. 0.5
}

// DataSnapshot is an immutable capture of provider data for a contest.
// Settlement is only allowed against a snapshot flagged provider-final.
type DataSnapshot struct {
	ID            string
	ContestID     string
	Hash          string
	ProviderFinal bool
	CapturedAt    time.Time
}

// ParticipantScore is one scoring row captured in a snapshot.
type ParticipantScore struct {
	UserID string
	Week   int
	Points float64
}
