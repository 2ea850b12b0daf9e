package memory

import (
	"contest-settlement/internal/domain"
)

// state holds every relation of the pipeline.
type state struct {
	contests    map[string]*domain.Contest
	events      []*domain.OutboxEvent
	markers     map[string]*domain.SettlementConsumptionMarker // keyed by contest_id
	snapshots   map[string]*domain.DataSnapshot
	scores      map[string][]domain.ParticipantScore // keyed by snapshot_id
	settlements map[string]*domain.SettlementRecord  // keyed by contest_id|snapshot_id
	jobs        map[string]*domain.PayoutJob         // keyed by settlement_id
	transfers   map[string]*domain.PayoutTransfer
	ledger      []*domain.LedgerEntry
	ledgerKeys  map[string]struct{}
	ledgerSeq   int64
}

func newState() *state {
	return &state{
		contests:    make(map[string]*domain.Contest),
		markers:     make(map[string]*domain.SettlementConsumptionMarker),
		snapshots:   make(map[string]*domain.DataSnapshot),
		scores:      make(map[string][]domain.ParticipantScore),
		settlements: make(map[string]*domain.SettlementRecord),
		jobs:        make(map[string]*domain.PayoutJob),
		transfers:   make(map[string]*domain.PayoutTransfer),
		ledgerKeys:  make(map[string]struct{}),
	}
}

// clone returns a deep copy used to restore the state on rollback.
func (st *state) clone() *state {
	c := newState()
	for k, v := range st.contests {
		c.contests[k] = copyContest(v)
	}
	for _, e := range st.events {
		eventCopy := *e
		c.events = append(c.events, &eventCopy)
	}
	for k, v := range st.markers {
		markerCopy := *v
		c.markers[k] = &markerCopy
	}
	for k, v := range st.snapshots {
		snapCopy := *v
		c.snapshots[k] = &snapCopy
	}
	for k, v := range st.scores {
		c.scores[k] = append([]domain.ParticipantScore(nil), v...)
	}
	for k, v := range st.settlements {
		c.settlements[k] = copyRecord(v)
	}
	for k, v := range st.jobs {
		jobCopy := *v
		c.jobs[k] = &jobCopy
	}
	for k, v := range st.transfers {
		c.transfers[k] = copyTransfer(v)
	}
	for _, e := range st.ledger {
		entryCopy := *e
		c.ledger = append(c.ledger, &entryCopy)
	}
	for k := range st.ledgerKeys {
		c.ledgerKeys[k] = struct{}{}
	}
	c.ledgerSeq = st.ledgerSeq
	return c
}

func copyContest(c *domain.Contest) *domain.Contest {
	contestCopy := *c
	contestCopy.PayoutStructure = append([]domain.PayoutTier(nil), c.PayoutStructure...)
	return &contestCopy
}

func copyRecord(r *domain.SettlementRecord) *domain.SettlementRecord {
	recordCopy := *r
	recordCopy.Standings = append([]domain.Standing(nil), r.Standings...)
	return &recordCopy
}

func copyTransfer(t *domain.PayoutTransfer) *domain.PayoutTransfer {
	transferCopy := *t
	if t.ProviderTransferID != nil {
		v := *t.ProviderTransferID
		transferCopy.ProviderTransferID = &v
	}
	if t.FailureReason != nil {
		v := *t.FailureReason
		transferCopy.FailureReason = &v
	}
	return &transferCopy
}

func settlementKey(contestID, snapshotID string) string {
	return contestID + "|" + snapshotID
}
