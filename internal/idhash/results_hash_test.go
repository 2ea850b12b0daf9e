package idhash

import (
	"testing"

	"contest-settlement/internal/domain"
)

func testStandings() []domain.Standing {
	return []domain.Standing{
		{UserID: "u1", TotalScore: 142.5, Rank: 1},
		{UserID: "u2", TotalScore: 120.25, Rank: 2},
		{UserID: "u3", TotalScore: 120.25, Rank: 2},
	}
}

func TestComputeResultsHash_Length(t *testing.T) {
	got := ComputeResultsHash("contest-1", "snap-1", "abc", testStandings())
	if len(got) != 64 {
		t.Errorf("ComputeResultsHash() length = %d, want 64", len(got))
	}
}

func TestComputeResultsHash_Determinism(t *testing.T) {
	results := make([]string, 10)
	for i := 0; i < 10; i++ {
		results[i] = ComputeResultsHash("contest-1", "snap-1", "abc", testStandings())
	}

	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Errorf("Determinism failed: results[%d]=%s != results[0]=%s", i, results[i], results[0])
		}
	}
}

func TestComputeResultsHash_DifferentInputs(t *testing.T) {
	base := ComputeResultsHash("contest-1", "snap-1", "abc", testStandings())

	if base == ComputeResultsHash("contest-2", "snap-1", "abc", testStandings()) {
		t.Error("Different contest should produce different hash")
	}
	if base == ComputeResultsHash("contest-1", "snap-2", "abc", testStandings()) {
		t.Error("Different snapshot should produce different hash")
	}
	if base == ComputeResultsHash("contest-1", "snap-1", "abd", testStandings()) {
		t.Error("Different snapshot hash should produce different hash")
	}

	changed := testStandings()
	changed[0].TotalScore = 142.75
	if base == ComputeResultsHash("contest-1", "snap-1", "abc", changed) {
		t.Error("Different score should produce different hash")
	}
}
