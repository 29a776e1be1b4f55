// Package reputation is the per-(topic, peer) trust ledger described in
// SPEC_FULL.md §4.1: every peer starts at a default score the first time it
// is seen on a topic, and that score moves by a fixed increment whenever a
// votation it participated in closes.
package reputation

import (
	"fmt"
	"strconv"

	"github.com/luxfi/validation/errs"
	"github.com/luxfi/validation/identity"
	"github.com/luxfi/validation/store"
)

// Ledger tracks reputation scores for every peer seen on every topic.
type Ledger struct {
	db                store.Store
	defaultReputation float64
	increment         float64
}

// New returns a Ledger backed by db, using defaultReputation for
// newly-observed peers and increment as the magnitude of every adjustment.
func New(db store.Store, defaultReputation, increment float64) *Ledger {
	return &Ledger{db: db, defaultReputation: defaultReputation, increment: increment}
}

// Get returns peer's reputation on topic, seeding it at the default if this
// is the first time the peer has been observed there.
func (l *Ledger) Get(topic string, peer identity.PeerID) (float64, error) {
	key := store.ReputationKey(topic, string(peer))
	raw, err := l.db.Get(key)
	if err == store.ErrNotFound {
		if err := l.db.CreateOnce(key, formatScore(l.defaultReputation)); err != nil && err != store.ErrAlreadyExists {
			return 0, fmt.Errorf("reputation: seed %s: %w", key, err)
		}
		return l.defaultReputation, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reputation: get %s/%s: %w", topic, peer, err)
	}
	return parseScore(raw)
}

// Eligible reports whether peer's reputation on topic meets threshold.
func (l *Ledger) Eligible(topic string, peer identity.PeerID, threshold float64) (bool, error) {
	score, err := l.Get(topic, peer)
	if err != nil {
		return false, err
	}
	return score >= threshold, nil
}

// Reward increases peer's reputation on topic by the configured increment.
func (l *Ledger) Reward(topic string, peer identity.PeerID) error {
	return l.adjust(topic, peer, l.increment)
}

// Penalize decreases peer's reputation on topic by the configured increment.
func (l *Ledger) Penalize(topic string, peer identity.PeerID) error {
	return l.adjust(topic, peer, -l.increment)
}

func (l *Ledger) adjust(topic string, peer identity.PeerID, delta float64) error {
	current, err := l.Get(topic, peer)
	if err != nil {
		return err
	}
	updated := current + delta
	key := store.ReputationKey(topic, string(peer))
	if err := l.db.Put(key, formatScore(updated)); err != nil {
		return fmt.Errorf("reputation: put %s: %w", key, err)
	}
	return nil
}

// All returns every peer/score pair recorded for topic. Peers never seen on
// topic (still at the implicit default) are not included.
func (l *Ledger) All(topic string) (map[identity.PeerID]float64, error) {
	out := map[identity.PeerID]float64{}
	prefix := store.ReputationPrefix(topic)
	err := l.db.ScanPrefix(prefix, func(key string, value []byte) (bool, error) {
		peer := identity.PeerID(key[len(prefix):])
		score, err := parseScore(value)
		if err != nil {
			return false, err
		}
		out[peer] = score
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("reputation: scan %s: %w", topic, err)
	}
	return out, nil
}

func formatScore(score float64) []byte {
	return []byte(strconv.FormatFloat(score, 'f', -1, 64))
}

func parseScore(raw []byte) (float64, error) {
	score, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0, errs.Deserialization(err, fmt.Sprintf("reputation: corrupt score %q", raw))
	}
	return score, nil
}
