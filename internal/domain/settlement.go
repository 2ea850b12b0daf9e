package domain

import "time"

// Standing is one participant's final position.
type Standing struct {
	UserID     string  `json:"user_id"`
	TotalScore float64 `json:"total_score"`
	Rank       int     `json:"rank"`
}

// SettlementRecord binds computed standings to one immutable data snapshot.
type SettlementRecord struct {
	ID           string
	ContestID    string
	SnapshotID   string
	SnapshotHash string
	ComputedAt   time.Time
	Standings    []Standing
	ResultsHash  string // SHA256 over contest, snapshot and standings
}

// Winner is a participant owed money by a settlement.
type Winner struct {
	UserID      string `json:"user_id"`
	AmountCents int64  `json:"amount_cents"`
}
