package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/luxfi/validation/config"
	"github.com/luxfi/validation/identity"
	"github.com/luxfi/validation/protocol"
	"github.com/luxfi/validation/store"
	"github.com/luxfi/validation/transport"
)

const testTopic = "chat-room"

func newTestNode(t *testing.T, bus *transport.Bus, params config.Parameters) *Node {
	t.Helper()
	id, err := identity.Generate()
	require.NoError(t, err)

	db, err := store.Open(t.TempDir())
	require.NoError(t, err)

	tr := transport.NewInMem(bus, id.PeerID)

	n, err := New(id, db, tr, params, zaptest.NewLogger(t).Sugar(), nil)
	require.NoError(t, err)
	return n
}

// waitFor polls cond every 5ms until it returns true or timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// TestIntegrationHappyPathApproval builds a six-peer network (one publisher,
// five voters), submits one piece of content, drives it through Interested,
// jury formation, VoteLeaderRequest, and a unanimous-yes ballot, and checks
// that every peer's store converges on the same approved outcome, per
// spec.md §8 scenario 1.
func TestIntegrationHappyPathApproval(t *testing.T) {
	require := require.New(t)
	bus := transport.NewBus()
	params := config.Default()
	params.PromotionInterval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publisher := newTestNode(t, bus, params)
	voters := make([]*Node, 5)
	byPeer := map[identity.PeerID]*Node{}
	for i := range voters {
		voters[i] = newTestNode(t, bus, params)
		byPeer[voters[i].Self.PeerID] = voters[i]
	}

	all := append([]*Node{publisher}, voters...)
	for _, n := range all {
		require.NoError(n.Start(ctx))
		defer n.Stop()
	}

	idVotation, err := publisher.NewKeyAvailable(ctx, testTopic, "hello world")
	require.NoError(err)

	waitFor(t, 2*time.Second, func() bool {
		members, err := publisher.GetVoters(idVotation, testTopic)
		return err == nil && len(members) == len(voters)
	})

	waitFor(t, 2*time.Second, func() bool {
		_, err := publisher.GetStatusVote(idVotation)
		return err == nil
	})

	seated, err := publisher.GetVoters(idVotation, testTopic)
	require.NoError(err)
	require.Len(seated, 5)

	for _, peer := range seated {
		voter, ok := byPeer[peer]
		require.True(ok, "seated peer %s must be one of the voter nodes", peer)
		require.NoError(voter.AddVote(ctx, idVotation, testTopic, protocol.Yes))
	}

	waitFor(t, 2*time.Second, func() bool {
		content, err := store.GetValidatedContent(publisher.db, idVotation)
		return err == nil && content.Approved == string(protocol.ApprovedYes)
	})

	for _, n := range all {
		content, err := store.GetValidatedContent(n.db, idVotation)
		require.NoError(err)
		require.Equal(string(protocol.ApprovedYes), content.Approved)
		require.Equal("hello world", content.Content)
	}

	for _, peer := range seated {
		score, err := publisher.GetReputation(peer, testTopic)
		require.NoError(err)
		require.Equal(params.DefaultReputation+params.ReputationIncrement, score)
	}
}

// TestIntegrationThresholdMissedRejection mirrors the happy path but with a
// majority-no ballot, and checks every peer converges on Rejected, per
// spec.md §8 scenario 3.
func TestIntegrationThresholdMissedRejection(t *testing.T) {
	require := require.New(t)
	bus := transport.NewBus()
	params := config.Default()
	params.PromotionInterval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publisher := newTestNode(t, bus, params)
	voters := make([]*Node, 5)
	byPeer := map[identity.PeerID]*Node{}
	for i := range voters {
		voters[i] = newTestNode(t, bus, params)
		byPeer[voters[i].Self.PeerID] = voters[i]
	}

	all := append([]*Node{publisher}, voters...)
	for _, n := range all {
		require.NoError(n.Start(ctx))
		defer n.Stop()
	}

	idVotation, err := publisher.NewKeyAvailable(ctx, testTopic, "disputed claim")
	require.NoError(err)

	waitFor(t, 2*time.Second, func() bool {
		members, err := publisher.GetVoters(idVotation, testTopic)
		return err == nil && len(members) == len(voters)
	})

	waitFor(t, 2*time.Second, func() bool {
		_, err := publisher.GetStatusVote(idVotation)
		return err == nil
	})

	seated, err := publisher.GetVoters(idVotation, testTopic)
	require.NoError(err)
	require.Len(seated, 5)

	for i, peer := range seated {
		voter := byPeer[peer]
		vote := protocol.No
		if i == 0 {
			vote = protocol.Yes
		}
		require.NoError(voter.AddVote(ctx, idVotation, testTopic, vote))
	}

	waitFor(t, 2*time.Second, func() bool {
		content, err := store.GetValidatedContent(publisher.db, idVotation)
		return err == nil && content.Approved == string(protocol.ApprovedNo)
	})

	for _, n := range all {
		content, err := store.GetValidatedContent(n.db, idVotation)
		require.NoError(err)
		require.Equal(string(protocol.ApprovedNo), content.Approved)
	}
}

// TestIntegrationRemoteNewTopicPropagates checks that announcing a topic on
// the default topic causes every listening peer to record it (each listener
// also subscribes its transport to the announced topic).
func TestIntegrationRemoteNewTopicPropagates(t *testing.T) {
	require := require.New(t)
	bus := transport.NewBus()
	params := config.Default()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	announcer := newTestNode(t, bus, params)
	listener := newTestNode(t, bus, params)

	require.NoError(announcer.Start(ctx))
	defer announcer.Stop()
	require.NoError(listener.Start(ctx))
	defer listener.Stop()

	require.NoError(announcer.RemoteNewTopic(ctx, "sports"))

	waitFor(t, time.Second, func() bool {
		topics, err := listener.GetMyTopics()
		if err != nil {
			return false
		}
		for _, topic := range topics {
			if topic.Name == "sports" {
				return true
			}
		}
		return false
	})
}
