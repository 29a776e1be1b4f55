package votation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/validation/identity"
	"github.com/luxfi/validation/protocol"
)

func TestDeriveIDIsPureFunction(t *testing.T) {
	id1 := DeriveID("chat-room", "hello")
	id2 := DeriveID("chat-room", "hello")
	require.Equal(t, id1, id2)
}

func TestDeriveIDDiffersByTopicOrContent(t *testing.T) {
	require.NotEqual(t, DeriveID("a", "x"), DeriveID("b", "x"))
	require.NotEqual(t, DeriveID("a", "x"), DeriveID("a", "y"))
}

func TestNewFromVoteLeaderRequestAssignsRoles(t *testing.T) {
	req := protocol.VoteLeaderRequest{
		IDVotation:   "v1",
		LeaderPeerID: "leader",
		VotersPeerID: []identity.PeerID{"leader", "voter1", "voter2"},
	}

	leaderView := NewFromVoteLeaderRequest("leader", req, time.Now())
	require.Equal(t, RoleLeader, leaderView.MyRole)

	voterView := NewFromVoteLeaderRequest("voter1", req, time.Now())
	require.Equal(t, RoleVoter, voterView.MyRole)

	observerView := NewFromVoteLeaderRequest("stranger", req, time.Now())
	require.Equal(t, RoleObserver, observerView.MyRole)

	req.PublisherPeerID = "publisher"
	publisherView := NewFromVoteLeaderRequest("publisher", req, time.Now())
	require.Equal(t, RolePublisher, publisherView.MyRole)
}

func TestRecordVoteOnlyAcceptsExpectedVoters(t *testing.T) {
	v := Votation{VotesID: []VoterEntry{{PeerID: "p1"}, {PeerID: "p2"}}}

	require.True(t, v.RecordVote("p1", protocol.Yes))
	require.False(t, v.RecordVote("stranger", protocol.Yes))
}

func TestRecordVoteIsRecordOnce(t *testing.T) {
	v := Votation{VotesID: []VoterEntry{{PeerID: "p1"}}}
	v.RecordVote("p1", protocol.Yes)
	v.RecordVote("p1", protocol.No)

	yes, total, _ := v.Tally(0.6)
	require.Equal(t, 1, yes)
	require.Equal(t, 1, total)
}

func TestCompleteRequiresEveryVoterRecorded(t *testing.T) {
	v := Votation{VotesID: []VoterEntry{{PeerID: "p1"}, {PeerID: "p2"}}}
	require.False(t, v.Complete())
	v.RecordVote("p1", protocol.Yes)
	require.False(t, v.Complete())
	v.RecordVote("p2", protocol.No)
	require.True(t, v.Complete())
}

func TestTallyUnanimousYes(t *testing.T) {
	v := makeVotationWithVotes(protocol.Yes, protocol.Yes, protocol.Yes, protocol.Yes, protocol.Yes)
	yes, total, approved := v.Tally(0.6)
	require.Equal(t, 5, yes)
	require.Equal(t, 5, total)
	require.True(t, approved)
}

func TestTallyThresholdMet(t *testing.T) {
	v := makeVotationWithVotes(protocol.Yes, protocol.Yes, protocol.Yes, protocol.Yes, protocol.No)
	yes, total, approved := v.Tally(0.6)
	require.Equal(t, 4, yes)
	require.Equal(t, 5, total)
	require.True(t, approved)
}

func TestTallyThresholdMissed(t *testing.T) {
	v := makeVotationWithVotes(protocol.Yes, protocol.Yes, protocol.No, protocol.No, protocol.No)
	yes, total, approved := v.Tally(0.6)
	require.Equal(t, 2, yes)
	require.Equal(t, 5, total)
	require.False(t, approved)
}

func TestExpired(t *testing.T) {
	v := Votation{Timestamp: time.Now().Add(-2 * time.Hour)}
	require.True(t, v.Expired(time.Now(), time.Hour))
	require.False(t, v.Expired(time.Now(), 3*time.Hour))
}

func makeVotationWithVotes(results ...protocol.VoteResult) Votation {
	entries := make([]VoterEntry, len(results))
	for i, r := range results {
		r := r
		entries[i] = VoterEntry{PeerID: identity.PeerID(string(rune('A' + i))), Vote: &r}
	}
	return Votation{VotesID: entries}
}
