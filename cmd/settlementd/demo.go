package main

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/payout"
	"contest-settlement/internal/storage/memory"
)

func demoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Settle and pay out a sample contest against the in-memory store",
		RunE: func(cmd *cobra.Command, args []string) error {
			useMemory = true
			return runOnce(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.demo(ctx)
			})
		},
	}
}

type demoReport struct {
	Settled   int                       `json:"settled"`
	Transfers []*payout.ExecutionResult `json:"transfers"`
	Ledger    int                       `json:"ledger_entries"`
}

func (a *app) demo(ctx context.Context) (*demoReport, error) {
	if err := seedDemo(a.mem); err != nil {
		return nil, fmt.Errorf("seed demo data: %w", err)
	}

	res, err := a.consumer.ConsumeOutbox(ctx)
	if err != nil {
		return nil, err
	}
	report := &demoReport{Settled: res.Settled}

	// Repeated passes drain retryable transfers.
	for i := 0; i < a.cfg.Payout.MaxAttempts; i++ {
		ids, err := a.db.ListClaimableTransferIDs(ctx, a.cfg.Payout.BatchSize)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			out, err := a.executor.ExecuteTransfer(ctx, a.db, id, a.resolver)
			if err != nil {
				return nil, err
			}
			report.Transfers = append(report.Transfers, out)
		}
	}

	report.Ledger = a.mem.Counts().LedgerEntries
	return report, nil
}

func seedDemo(db *memory.Store) error {
	const contestID = "demo-contest"

	if err := db.AddContest(&domain.Contest{
		ID:                    contestID,
		Status:                domain.ContestStatusCompleted,
		TemplateID:            "demo-template",
		SettlementStrategyKey: "total_points",
		PrizePoolCents:        10000,
		PayoutStructure: []domain.PayoutTier{
			{Rank: 1, Share: decimal.RequireFromString("0.6")},
			{Rank: 2, Share: decimal.RequireFromString("0.3")},
			{Rank: 3, Share: decimal.RequireFromString("0.1")},
		},
	}); err != nil {
		return err
	}

	scores := []domain.ParticipantScore{
		{UserID: "alice", Week: 1, Points: 42.5},
		{UserID: "alice", Week: 2, Points: 31},
		{UserID: "bob", Week: 1, Points: 38},
		{UserID: "bob", Week: 2, Points: 30},
		{UserID: "carol", Week: 1, Points: 20},
		{UserID: "carol", Week: 2, Points: 25.5},
		{UserID: "dave", Week: 1, Points: 10},
	}
	if err := db.AddSnapshot(&domain.DataSnapshot{
		ID:            "demo-snapshot",
		ContestID:     contestID,
		Hash:          "sha256:demo",
		ProviderFinal: true,
	}, scores); err != nil {
		return err
	}

	db.AddUser("alice", "acct_alice")
	db.AddUser("bob", "acct_bob")
	db.AddUser("carol", "")
	db.AddUser("dave", "acct_dave")

	return db.AddOutboxEvent(&domain.OutboxEvent{
		ID:        "demo-event",
		ContestID: contestID,
		EventType: domain.EventContestCompleted,
	})
}
