package reputation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/validation/identity"
	"github.com/luxfi/validation/store"
)

func newTestLedger(t *testing.T) (*Ledger, store.Store) {
	t.Helper()
	db, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, 90.0, 5.0), db
}

func TestGetSeedsDefault(t *testing.T) {
	l, _ := newTestLedger(t)
	score, err := l.Get("chat-room", identity.PeerID("p1"))
	require.NoError(t, err)
	require.Equal(t, 90.0, score)
}

func TestRewardAndPenalize(t *testing.T) {
	l, _ := newTestLedger(t)
	peer := identity.PeerID("p1")

	require.NoError(t, l.Reward("chat-room", peer))
	score, err := l.Get("chat-room", peer)
	require.NoError(t, err)
	require.Equal(t, 95.0, score)

	require.NoError(t, l.Penalize("chat-room", peer))
	require.NoError(t, l.Penalize("chat-room", peer))
	score, err = l.Get("chat-room", peer)
	require.NoError(t, err)
	require.Equal(t, 85.0, score)
}

func TestReputationUnboundedBelowDefault(t *testing.T) {
	l, _ := newTestLedger(t)
	peer := identity.PeerID("p1")
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Penalize("chat-room", peer))
	}
	score, err := l.Get("chat-room", peer)
	require.NoError(t, err)
	require.Equal(t, 65.0, score)
}

func TestEligible(t *testing.T) {
	l, _ := newTestLedger(t)
	peer := identity.PeerID("p1")

	ok, err := l.Eligible("chat-room", peer, 80.0)
	require.NoError(t, err)
	require.True(t, ok)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Penalize("chat-room", peer))
	}
	ok, err = l.Eligible("chat-room", peer, 80.0)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReputationIsPerTopic(t *testing.T) {
	l, _ := newTestLedger(t)
	peer := identity.PeerID("p1")

	require.NoError(t, l.Reward("topic-a", peer))
	scoreA, err := l.Get("topic-a", peer)
	require.NoError(t, err)
	scoreB, err := l.Get("topic-b", peer)
	require.NoError(t, err)

	require.Equal(t, 95.0, scoreA)
	require.Equal(t, 90.0, scoreB)
}

func TestAllEnumeratesOnlyObservedPeers(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.Reward("chat-room", identity.PeerID("p1")))
	require.NoError(t, l.Reward("chat-room", identity.PeerID("p2")))
	require.NoError(t, l.Reward("other-topic", identity.PeerID("p3")))

	all, err := l.All("chat-room")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, 95.0, all[identity.PeerID("p1")])
	require.Equal(t, 95.0, all[identity.PeerID("p2")])
}
