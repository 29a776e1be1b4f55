// Package votation defines the Votation record: the per-peer view of one
// content-validation round, its lifecycle, and the deterministic id derived
// from (topic, content) described in SPEC_FULL.md §4.3.
package votation

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/luxfi/validation/config"
	"github.com/luxfi/validation/identity"
	"github.com/luxfi/validation/protocol"
	"github.com/luxfi/validation/utils/bag"
)

// Status is the lifecycle state of a Votation.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Role is this peer's part in a Votation.
type Role string

const (
	RoleLeader    Role = "leader"
	RoleVoter     Role = "voter"
	RoleObserver  Role = "observer"
	RolePublisher Role = "publisher"
)

// VoterEntry is one member of the expected voter set, together with its
// recorded vote, if any.
type VoterEntry struct {
	PeerID identity.PeerID      `json:"peer_id"`
	Vote   *protocol.VoteResult `json:"vote,omitempty"`
}

// Votation is the unit of consensus: one content-validation round as seen
// from a single peer's store.
type Votation struct {
	IDVotation string             `json:"id_votation"`
	Timestamp  time.Time          `json:"timestamp"`
	Content    string             `json:"content"`
	Status     Status             `json:"status"`
	LeaderID   identity.PeerID    `json:"leader_id"`
	MyRole     Role               `json:"my_role"`
	VotesID    []VoterEntry       `json:"votes_id"`
}

// DeriveID computes the stable id_votation for (topic, content). Identical
// inputs always yield identical ids; this is the only place a Votation's
// identifier is computed.
func DeriveID(topic, content string) string {
	h := xxhash.Sum64String(content)
	return fmt.Sprintf("vote_status/%s:%x:pending:1", topic, h)
}

// DuplicateScanPrefix is the common prefix of every id DeriveID yields for
// (topic, content). The client scans the store's pending_content/ and
// content/ namespaces with it to detect a resubmission of the same pair.
func DuplicateScanPrefix(topic, content string) string {
	h := xxhash.Sum64String(content)
	return fmt.Sprintf("vote_status/%s:%x", topic, h)
}

// NewFromVoteLeaderRequest builds the local Votation record a peer creates
// upon first receipt (or local emission) of a VoteLeaderRequest, assigning
// my_role per SPEC_FULL.md §4.2.
func NewFromVoteLeaderRequest(self identity.PeerID, req protocol.VoteLeaderRequest, created time.Time) Votation {
	role := RoleObserver
	switch {
	case req.LeaderPeerID == self:
		role = RoleLeader
	case containsPeer(req.VotersPeerID, self):
		role = RoleVoter
	case req.PublisherPeerID == self:
		role = RolePublisher
	}

	votes := make([]VoterEntry, len(req.VotersPeerID))
	for i, peer := range req.VotersPeerID {
		votes[i] = VoterEntry{PeerID: peer}
	}

	return Votation{
		IDVotation: req.IDVotation,
		Timestamp:  created,
		Content:    req.Content,
		Status:     StatusPending,
		LeaderID:   req.LeaderPeerID,
		MyRole:     role,
		VotesID:    votes,
	}
}

func containsPeer(peers []identity.PeerID, target identity.PeerID) bool {
	for _, p := range peers {
		if p == target {
			return true
		}
	}
	return false
}

// RecordVote sets the recorded vote for voter within v's expected set.
// It reports false if voter is not a member of the expected set.
func (v *Votation) RecordVote(voter identity.PeerID, result protocol.VoteResult) bool {
	for i := range v.VotesID {
		if v.VotesID[i].PeerID == voter {
			if v.VotesID[i].Vote == nil {
				r := result
				v.VotesID[i].Vote = &r
			}
			return true
		}
	}
	return false
}

// Recorded reports whether voter already has a vote recorded.
func (v *Votation) Recorded(voter identity.PeerID) bool {
	for _, entry := range v.VotesID {
		if entry.PeerID == voter && entry.Vote != nil {
			return true
		}
	}
	return false
}

// Complete reports whether every expected voter has a recorded vote.
func (v *Votation) Complete() bool {
	for _, entry := range v.VotesID {
		if entry.Vote == nil {
			return false
		}
	}
	return true
}

// Tally counts Yes/No among recorded votes and reports the approval outcome
// using ratio as the minimum yes/total fraction.
func (v *Votation) Tally(ratio float64) (yes, total int, approved bool) {
	counted := bag.New[protocol.VoteResult]()
	for _, entry := range v.VotesID {
		if entry.Vote == nil {
			continue
		}
		counted.Add(*entry.Vote)
	}
	total = counted.Len()
	if total == 0 {
		return 0, 0, false
	}
	yes = counted.Count(protocol.Yes)
	return yes, total, float64(yes)/float64(total) >= ratio
}

// Expired reports whether v's deadline (creation time plus d) has passed as
// of now.
func (v *Votation) Expired(now time.Time, d time.Duration) bool {
	return now.After(v.Timestamp.Add(d))
}

// DefaultApprovalRatio is config.ApprovalRatio, exposed here so callers that
// only import votation don't need a second import for the common case.
const DefaultApprovalRatio = config.ApprovalRatio
