package settlement

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/storage"
)

func tiers(shares ...string) []domain.PayoutTier {
	out := make([]domain.PayoutTier, len(shares))
	for i, s := range shares {
		out[i] = domain.PayoutTier{Rank: i + 1, Share: decimal.RequireFromString(s)}
	}
	return out
}

func TestAllocate(t *testing.T) {
	tests := []struct {
		name      string
		pool      int64
		tiers     []domain.PayoutTier
		standings []domain.Standing
		want      []domain.Winner
	}{
		{
			name:  "distinct ranks",
			pool:  10000,
			tiers: tiers("0.5", "0.3", "0.2"),
			standings: []domain.Standing{
				{UserID: "a", TotalScore: 30, Rank: 1},
				{UserID: "b", TotalScore: 20, Rank: 2},
				{UserID: "c", TotalScore: 10, Rank: 3},
				{UserID: "d", TotalScore: 5, Rank: 4},
			},
			want: []domain.Winner{
				{UserID: "a", AmountCents: 5000},
				{UserID: "b", AmountCents: 3000},
				{UserID: "c", AmountCents: 2000},
			},
		},
		{
			name:  "tie for first splits two tiers",
			pool:  10000,
			tiers: tiers("0.5", "0.3", "0.2"),
			standings: []domain.Standing{
				{UserID: "b", TotalScore: 30, Rank: 1},
				{UserID: "a", TotalScore: 30, Rank: 1},
				{UserID: "c", TotalScore: 10, Rank: 3},
			},
			want: []domain.Winner{
				{UserID: "a", AmountCents: 4000},
				{UserID: "b", AmountCents: 4000},
				{UserID: "c", AmountCents: 2000},
			},
		},
		{
			name:  "odd cent goes to lowest user id",
			pool:  1001,
			tiers: tiers("1"),
			standings: []domain.Standing{
				{UserID: "z", TotalScore: 7, Rank: 1},
				{UserID: "m", TotalScore: 7, Rank: 1},
			},
			want: []domain.Winner{
				{UserID: "m", AmountCents: 501},
				{UserID: "z", AmountCents: 500},
			},
		},
		{
			name:  "shares floor to whole cents",
			pool:  100,
			tiers: tiers("0.333", "0.333", "0.333"),
			standings: []domain.Standing{
				{UserID: "a", TotalScore: 3, Rank: 1},
				{UserID: "b", TotalScore: 2, Rank: 2},
				{UserID: "c", TotalScore: 1, Rank: 3},
			},
			want: []domain.Winner{
				{UserID: "a", AmountCents: 33},
				{UserID: "b", AmountCents: 33},
				{UserID: "c", AmountCents: 33},
			},
		},
		{
			name:  "tie straddling the last paid place",
			pool:  1000,
			tiers: tiers("0.7", "0.3"),
			standings: []domain.Standing{
				{UserID: "a", TotalScore: 9, Rank: 1},
				{UserID: "b", TotalScore: 4, Rank: 2},
				{UserID: "c", TotalScore: 4, Rank: 2},
				{UserID: "d", TotalScore: 4, Rank: 2},
			},
			want: []domain.Winner{
				{UserID: "a", AmountCents: 700},
				{UserID: "b", AmountCents: 100},
				{UserID: "c", AmountCents: 100},
				{UserID: "d", AmountCents: 100},
			},
		},
		{
			name:  "zero pool pays nobody",
			pool:  0,
			tiers: tiers("1"),
			standings: []domain.Standing{
				{UserID: "a", TotalScore: 1, Rank: 1},
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Allocate(tt.pool, tt.tiers, tt.standings)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("winners length mismatch: got %d, want %d (%v)", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("winner[%d] mismatch: got %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestAllocate_InvalidStructure(t *testing.T) {
	standings := []domain.Standing{{UserID: "a", TotalScore: 1, Rank: 1}}

	cases := map[string][]domain.PayoutTier{
		"shares above one": tiers("0.6", "0.5"),
		"negative share":   tiers("-0.1"),
		"zero rank":        {{Rank: 0, Share: decimal.RequireFromString("0.5")}},
		"duplicate rank": {
			{Rank: 1, Share: decimal.RequireFromString("0.5")},
			{Rank: 1, Share: decimal.RequireFromString("0.2")},
		},
	}

	for name, structure := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Allocate(1000, structure, standings)
			if !errors.Is(err, storage.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}
