package settlement

import (
	"context"
	"testing"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/storage"
)

// staticScores serves fixed score rows for any snapshot.
type staticScores []domain.ParticipantScore

func (s staticScores) GetSnapshot(context.Context, string) (*domain.DataSnapshot, error) {
	return nil, storage.ErrNotFound
}

func (s staticScores) GetLatestFinalSnapshot(context.Context, string) (*domain.DataSnapshot, error) {
	return nil, storage.ErrNotFound
}

func (s staticScores) ListParticipantScores(context.Context, string) ([]domain.ParticipantScore, error) {
	return s, nil
}

var weeklyScores = staticScores{
	{UserID: "alice", Week: 1, Points: 10},
	{UserID: "alice", Week: 2, Points: 15},
	{UserID: "bob", Week: 1, Points: 20},
	{UserID: "bob", Week: 2, Points: 5},
	{UserID: "carol", Week: 1, Points: 12},
	{UserID: "carol", Week: 2, Points: 1.5},
}

func TestTotalPoints(t *testing.T) {
	got, err := TotalPoints().ComputeStandings(context.Background(), weeklyScores, "c1", "s1")
	if err != nil {
		t.Fatalf("ComputeStandings failed: %v", err)
	}

	want := []domain.Standing{
		{UserID: "alice", TotalScore: 25, Rank: 1},
		{UserID: "bob", TotalScore: 25, Rank: 1},
		{UserID: "carol", TotalScore: 13.5, Rank: 3},
	}
	assertStandings(t, got, want)
}

func TestBestSingleScore(t *testing.T) {
	got, err := BestSingleScore().ComputeStandings(context.Background(), weeklyScores, "c1", "s1")
	if err != nil {
		t.Fatalf("ComputeStandings failed: %v", err)
	}

	want := []domain.Standing{
		{UserID: "bob", TotalScore: 20, Rank: 1},
		{UserID: "alice", TotalScore: 15, Rank: 2},
		{UserID: "carol", TotalScore: 12, Rank: 3},
	}
	assertStandings(t, got, want)
}

func TestBestSingleScore_NegativeWeeks(t *testing.T) {
	scores := staticScores{
		{UserID: "dave", Week: 1, Points: -4},
		{UserID: "dave", Week: 2, Points: -2},
	}
	got, err := BestSingleScore().ComputeStandings(context.Background(), scores, "c1", "s1")
	if err != nil {
		t.Fatalf("ComputeStandings failed: %v", err)
	}
	assertStandings(t, got, []domain.Standing{{UserID: "dave", TotalScore: -2, Rank: 1}})
}

func TestTotalPoints_Empty(t *testing.T) {
	got, err := TotalPoints().ComputeStandings(context.Background(), staticScores{}, "c1", "s1")
	if err != nil {
		t.Fatalf("ComputeStandings failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no standings, got %v", got)
	}
}

func assertStandings(t *testing.T, got, want []domain.Standing) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("standings length mismatch: got %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("standing[%d] mismatch: got %+v, want %+v", i, got[i], want[i])
		}
	}
}
