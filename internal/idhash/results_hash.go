package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"contest-settlement/internal/domain"
)

// ComputeResultsHash computes a deterministic hash of a settlement result using SHA256.
// Formula: SHA256(contest_id|snapshot_id|snapshot_hash|user:score:rank|...)
// Standings are hashed in the order given; callers pass them already ranked.
// Returns hex-encoded hash (64 characters).
func ComputeResultsHash(
	contestID string,
	snapshotID string,
	snapshotHash string,
	standings []domain.Standing,
) string {
	var b strings.Builder
	b.WriteString(contestID)
	b.WriteByte('|')
	b.WriteString(snapshotID)
	b.WriteByte('|')
	b.WriteString(snapshotHash)

	for _, s := range standings {
		b.WriteByte('|')
		b.WriteString(s.UserID)
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(s.TotalScore, 'g', -1, 64))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(s.Rank))
	}

	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:])
}
