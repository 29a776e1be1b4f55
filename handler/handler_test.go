package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/luxfi/validation/config"
	"github.com/luxfi/validation/identity"
	"github.com/luxfi/validation/protocol"
	"github.com/luxfi/validation/reputation"
	"github.com/luxfi/validation/store"
	"github.com/luxfi/validation/votation"
)

const topic = "chat-room"

type testPeer struct {
	id  *identity.Identity
	db  store.Store
	h   *Handler
	rep *reputation.Ledger
}

func newTestPeer(t *testing.T) *testPeer {
	t.Helper()
	id, err := identity.Generate()
	require.NoError(t, err)

	db, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	params := config.Default()
	rep := reputation.New(db, params.DefaultReputation, params.ReputationIncrement)
	h, err := New(id.PeerID, db, rep, params, zaptest.NewLogger(t).Sugar(), nil)
	require.NoError(t, err)

	return &testPeer{id: id, db: db, h: h, rep: rep}
}

func signedVoteLeaderRequest(t *testing.T, publisher *testPeer, idVotation, content string, voters []identity.PeerID) protocol.VoteLeaderRequest {
	t.Helper()
	req := protocol.VoteLeaderRequest{
		IDVotation:      idVotation,
		Content:         content,
		PublisherPeerID: publisher.id.PeerID,
		VotersPeerID:    voters,
		LeaderPeerID:    voters[0],
		TTLSecs:         3600,
	}
	payload, err := protocol.CanonicalVoteLeaderRequestPayload(req)
	require.NoError(t, err)
	req.Signature = base64.StdEncoding.EncodeToString(publisher.id.Sign(payload))
	return req
}

func TestHandleInterestedRepliesWithResponse(t *testing.T) {
	p := newTestPeer(t)
	reply, err := p.h.Handle(context.Background(), "someone", topic, protocol.Interested{IDVotation: "v1", Content: "hi"})
	require.NoError(t, err)
	require.Equal(t, protocol.InterestedResponse{IDVotation: "v1"}, reply)
}

func TestHandleInterestedResponseAddsToJury(t *testing.T) {
	p := newTestPeer(t)
	reply, err := p.h.Handle(context.Background(), identity.PeerID("voter1"), topic, protocol.InterestedResponse{IDVotation: "v1"})
	require.NoError(t, err)
	require.Nil(t, reply)

	data, err := p.db.Get(store.JuryKey(topic, "v1"))
	require.NoError(t, err)
	var members []identity.PeerID
	require.NoError(t, json.Unmarshal(data, &members))
	require.Equal(t, []identity.PeerID{"voter1"}, members)
}

func TestHandleInterestedResponseIsIdempotent(t *testing.T) {
	p := newTestPeer(t)
	ctx := context.Background()
	_, err := p.h.Handle(ctx, identity.PeerID("voter1"), topic, protocol.InterestedResponse{IDVotation: "v1"})
	require.NoError(t, err)
	_, err = p.h.Handle(ctx, identity.PeerID("voter1"), topic, protocol.InterestedResponse{IDVotation: "v1"})
	require.NoError(t, err)

	data, err := p.db.Get(store.JuryKey(topic, "v1"))
	require.NoError(t, err)
	var members []identity.PeerID
	require.NoError(t, json.Unmarshal(data, &members))
	require.Len(t, members, 1)
}

func TestHandleVoteLeaderRequestCreatesVotationWithRoles(t *testing.T) {
	ctx := context.Background()
	publisher := newTestPeer(t)
	leader := newTestPeer(t)
	voter := newTestPeer(t)
	observer := newTestPeer(t)

	voters := []identity.PeerID{leader.id.PeerID, voter.id.PeerID}
	req := signedVoteLeaderRequest(t, publisher, "v1", "content", voters)

	_, err := leader.h.Handle(ctx, publisher.id.PeerID, topic, req)
	require.NoError(t, err)
	_, err = voter.h.Handle(ctx, publisher.id.PeerID, topic, req)
	require.NoError(t, err)
	_, err = observer.h.Handle(ctx, publisher.id.PeerID, topic, req)
	require.NoError(t, err)

	assertRole := func(p *testPeer, want votation.Role) {
		data, err := p.db.Get(store.PendingContentKey("v1"))
		require.NoError(t, err)
		var v votation.Votation
		require.NoError(t, json.Unmarshal(data, &v))
		require.Equal(t, want, v.MyRole)
	}
	assertRole(leader, votation.RoleLeader)
	assertRole(voter, votation.RoleVoter)
	assertRole(observer, votation.RoleObserver)
}

func TestHandleVoteLeaderRequestDropsBadSignature(t *testing.T) {
	ctx := context.Background()
	publisher := newTestPeer(t)
	leader := newTestPeer(t)

	req := signedVoteLeaderRequest(t, publisher, "v1", "content", []identity.PeerID{leader.id.PeerID})
	req.Content = "tampered"

	reply, err := leader.h.Handle(ctx, publisher.id.PeerID, topic, req)
	require.NoError(t, err)
	require.Nil(t, reply)

	_, err = leader.db.Get(store.PendingContentKey("v1"))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestHandleVoteLeaderRequestIgnoresDuplicate(t *testing.T) {
	ctx := context.Background()
	publisher := newTestPeer(t)
	leader := newTestPeer(t)

	req := signedVoteLeaderRequest(t, publisher, "v1", "content", []identity.PeerID{leader.id.PeerID})
	_, err := leader.h.Handle(ctx, publisher.id.PeerID, topic, req)
	require.NoError(t, err)
	reply, err := leader.h.Handle(ctx, publisher.id.PeerID, topic, req)
	require.NoError(t, err)
	require.Nil(t, reply)
}

// scenario 1: happy path, 5 voters unanimous Yes.
func TestScenarioHappyPathUnanimousYes(t *testing.T) {
	ctx := context.Background()
	publisher := newTestPeer(t)
	leader := newTestPeer(t)
	voters := make([]*testPeer, 4)
	for i := range voters {
		voters[i] = newTestPeer(t)
	}

	expected := []identity.PeerID{leader.id.PeerID, voters[0].id.PeerID, voters[1].id.PeerID, voters[2].id.PeerID, voters[3].id.PeerID}
	req := signedVoteLeaderRequest(t, publisher, "v1", "C", expected)

	_, err := leader.h.Handle(ctx, publisher.id.PeerID, topic, req)
	require.NoError(t, err)

	var final protocol.Message
	for _, peer := range expected {
		reply, err := leader.h.Handle(ctx, peer, topic, protocol.ResultVote{IDVotation: "v1", Result: protocol.Yes})
		require.NoError(t, err)
		if reply != nil {
			final = reply
		}
	}

	require.NotNil(t, final)
	include := final.(protocol.IncludeNewValidatedContent)
	require.Equal(t, protocol.ApprovedYes, include.Approved)

	for _, peer := range expected {
		score, err := leader.rep.Get(topic, peer)
		require.NoError(t, err)
		require.Equal(t, 95.0, score)
	}
}

// scenario 2: mixed vote, threshold met (4/5 yes).
func TestScenarioThresholdMet(t *testing.T) {
	ctx := context.Background()
	publisher := newTestPeer(t)
	leader := newTestPeer(t)
	voters := make([]*testPeer, 4)
	for i := range voters {
		voters[i] = newTestPeer(t)
	}
	expected := []identity.PeerID{leader.id.PeerID, voters[0].id.PeerID, voters[1].id.PeerID, voters[2].id.PeerID, voters[3].id.PeerID}
	req := signedVoteLeaderRequest(t, publisher, "v1", "C", expected)
	_, err := leader.h.Handle(ctx, publisher.id.PeerID, topic, req)
	require.NoError(t, err)

	results := []protocol.VoteResult{protocol.Yes, protocol.Yes, protocol.Yes, protocol.Yes, protocol.No}
	var final protocol.Message
	for i, peer := range expected {
		reply, err := leader.h.Handle(ctx, peer, topic, protocol.ResultVote{IDVotation: "v1", Result: results[i]})
		require.NoError(t, err)
		if reply != nil {
			final = reply
		}
	}
	require.Equal(t, protocol.ApprovedYes, final.(protocol.IncludeNewValidatedContent).Approved)
}

// scenario 3: mixed vote, threshold missed (2/5 yes).
func TestScenarioThresholdMissed(t *testing.T) {
	ctx := context.Background()
	publisher := newTestPeer(t)
	leader := newTestPeer(t)
	voters := make([]*testPeer, 4)
	for i := range voters {
		voters[i] = newTestPeer(t)
	}
	expected := []identity.PeerID{leader.id.PeerID, voters[0].id.PeerID, voters[1].id.PeerID, voters[2].id.PeerID, voters[3].id.PeerID}
	req := signedVoteLeaderRequest(t, publisher, "v1", "C", expected)
	_, err := leader.h.Handle(ctx, publisher.id.PeerID, topic, req)
	require.NoError(t, err)

	results := []protocol.VoteResult{protocol.Yes, protocol.Yes, protocol.No, protocol.No, protocol.No}
	var final protocol.Message
	for i, peer := range expected {
		reply, err := leader.h.Handle(ctx, peer, topic, protocol.ResultVote{IDVotation: "v1", Result: results[i]})
		require.NoError(t, err)
		if reply != nil {
			final = reply
		}
	}
	require.Equal(t, protocol.ApprovedNo, final.(protocol.IncludeNewValidatedContent).Approved)
}

// scenario 5: replay attack, second ResultVote from same sender is discarded.
func TestScenarioReplayAttackIsDiscarded(t *testing.T) {
	ctx := context.Background()
	publisher := newTestPeer(t)
	leader := newTestPeer(t)
	voter := newTestPeer(t)

	expected := []identity.PeerID{leader.id.PeerID, voter.id.PeerID}
	req := signedVoteLeaderRequest(t, publisher, "v1", "C", expected)
	_, err := leader.h.Handle(ctx, publisher.id.PeerID, topic, req)
	require.NoError(t, err)

	reply, err := leader.h.Handle(ctx, voter.id.PeerID, topic, protocol.ResultVote{IDVotation: "v1", Result: protocol.Yes})
	require.NoError(t, err)
	require.Nil(t, reply) // leader's own vote still pending

	scoreBefore, err := leader.rep.Get(topic, voter.id.PeerID)
	require.NoError(t, err)

	reply, err = leader.h.Handle(ctx, voter.id.PeerID, topic, protocol.ResultVote{IDVotation: "v1", Result: protocol.No})
	require.NoError(t, err)
	require.Nil(t, reply)

	scoreAfter, err := leader.rep.Get(topic, voter.id.PeerID)
	require.NoError(t, err)
	require.Equal(t, scoreBefore, scoreAfter)
}

func TestHandleIncludeNewValidatedContentIsIdempotent(t *testing.T) {
	p := newTestPeer(t)
	ctx := context.Background()
	msg := protocol.IncludeNewValidatedContent{IDVotation: "v1", Content: "C", Approved: protocol.ApprovedYes}

	_, err := p.h.Handle(ctx, "leader", topic, msg)
	require.NoError(t, err)
	_, err = p.h.Handle(ctx, "leader", topic, msg)
	require.NoError(t, err)

	content, err := store.GetValidatedContent(p.db, "v1")
	require.NoError(t, err)
	require.Equal(t, string(protocol.ApprovedYes), content.Approved)
}

func TestHandleRegisterTopicPersistsTopic(t *testing.T) {
	p := newTestPeer(t)
	_, err := p.h.Handle(context.Background(), "someone", topic, protocol.RegisterTopic{Topic: "news"})
	require.NoError(t, err)

	got, err := store.GetTopic(p.db, "news")
	require.NoError(t, err)
	require.Equal(t, "news", got.Name)
}

func TestSpuriousVoterPenalizedAfterExpiry(t *testing.T) {
	ctx := context.Background()
	publisher := newTestPeer(t)
	leader := newTestPeer(t)
	voter := newTestPeer(t)
	stranger := newTestPeer(t)

	leader.h.params.ExpiryDuration = time.Millisecond

	expected := []identity.PeerID{leader.id.PeerID, voter.id.PeerID}
	req := signedVoteLeaderRequest(t, publisher, "v1", "C", expected)
	_, err := leader.h.Handle(ctx, publisher.id.PeerID, topic, req)
	require.NoError(t, err)

	leader.h.now = func() time.Time { return time.Now().Add(time.Hour) }

	scoreBefore, err := leader.rep.Get(topic, stranger.id.PeerID)
	require.NoError(t, err)

	reply, err := leader.h.Handle(ctx, stranger.id.PeerID, topic, protocol.ResultVote{IDVotation: "v1", Result: protocol.Yes})
	require.NoError(t, err)
	require.Nil(t, reply)

	scoreAfter, err := leader.rep.Get(topic, stranger.id.PeerID)
	require.NoError(t, err)
	require.Equal(t, scoreBefore-leader.h.params.ReputationIncrement, scoreAfter)
}
