package domain

import (
	"encoding/json"
	"time"
)

// Outbox event types produced by the contest lifecycle state machine.
const (
	EventContestCompleted = "contest_completed"
)

// OutboxEvent is an immutable lifecycle event written when a contest changes state.
type OutboxEvent struct {
	ID        string
	ContestID string
	EventType string
	Payload   json.RawMessage // optional; may carry snapshot_id / snapshot_hash
	CreatedAt time.Time
}

// SettlementConsumptionMarker records that settlement was triggered for a contest.
// Unique per contest_id.
type SettlementConsumptionMarker struct {
	ContestID  string
	EventID    string
	ConsumedAt time.Time
}

// CompletedEventPayload is the optional payload of a contest_completed event.
type CompletedEventPayload struct {
	SnapshotID   string `json:"snapshot_id,omitempty"`
	SnapshotHash string `json:"snapshot_hash,omitempty"`
}
