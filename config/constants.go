package config

import "math"

// Protocol constants, as laid out in SPEC_FULL.md §3-4.
const (
	// DefaultReputation is the score a peer starts with the first time it is
	// observed on a topic.
	DefaultReputation = 90.0

	// MinReputationThreshold is the minimum reputation a peer needs to be
	// drawn into a jury.
	MinReputationThreshold = 80.0

	// ReputationIncrement is the magnitude of every reputation adjustment;
	// it is always applied as +ReputationIncrement or -ReputationIncrement,
	// never scaled.
	ReputationIncrement = 5.0

	// ApprovalRatio is the minimum yes/total fraction a votation needs to
	// close as approved.
	ApprovalRatio = 0.6
)

// HasApproval reports whether yes votes out of total clear ApprovalRatio.
func HasApproval(yes, total int) bool {
	if total == 0 {
		return false
	}
	return float64(yes)/float64(total) >= ApprovalRatio
}

// MinYesVotes returns the smallest yes count that clears ApprovalRatio out
// of total votes.
func MinYesVotes(total int) int {
	return int(math.Ceil(ApprovalRatio * float64(total)))
}
