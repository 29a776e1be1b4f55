// Package jury is the durable, insertion-ordered set of peers that have
// volunteered to validate a given votation, described in SPEC_FULL.md §4.5
// as `election/{topic}/jury/{id_votation}`.
package jury

import (
	"encoding/json"

	"github.com/luxfi/validation/errs"
	"github.com/luxfi/validation/identity"
	"github.com/luxfi/validation/store"
)

// Load reads back the jury recorded for (topic, idVotation), in the order
// its members volunteered. A votation with no recorded jury yet returns a
// nil slice, not an error.
func Load(db store.Reader, topic, idVotation string) ([]identity.PeerID, error) {
	key := store.JuryKey(topic, idVotation)
	data, err := db.Get(key)
	if err == store.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Store(err, "jury: get "+key)
	}
	var members []identity.PeerID
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, errs.Deserialization(err, "jury: unmarshal "+key)
	}
	return members, nil
}

func persist(db store.Writer, topic, idVotation string, members []identity.PeerID) error {
	data, err := json.Marshal(members)
	if err != nil {
		return errs.Runtime("jury: marshal %s/%s: %s", topic, idVotation, err)
	}
	key := store.JuryKey(topic, idVotation)
	if err := db.Put(key, data); err != nil {
		return errs.Store(err, "jury: put "+key)
	}
	return nil
}

// AppendIfAbsent records peer as a juror for (topic, idVotation) if it is
// not already present, preserving arrival order. It reports whether peer
// was newly added.
func AppendIfAbsent(db store.Store, topic, idVotation string, peer identity.PeerID) (bool, error) {
	members, err := Load(db, topic, idVotation)
	if err != nil {
		return false, err
	}
	for _, existing := range members {
		if existing == peer {
			return false, nil
		}
	}
	members = append(members, peer)
	if err := persist(db, topic, idVotation, members); err != nil {
		return false, err
	}
	return true, nil
}

// Select walks candidates in arrival order and returns the first n that
// pass eligible, preserving that order. It reports false if fewer than n
// candidates qualify.
func Select(candidates []identity.PeerID, n int, eligible func(identity.PeerID) (bool, error)) ([]identity.PeerID, bool, error) {
	seated := make([]identity.PeerID, 0, n)
	for _, peer := range candidates {
		if len(seated) == n {
			break
		}
		ok, err := eligible(peer)
		if err != nil {
			return nil, false, err
		}
		if ok {
			seated = append(seated, peer)
		}
	}
	return seated, len(seated) == n, nil
}
