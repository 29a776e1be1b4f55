// Package node wires together Handler, Client, Store, and Transport into one
// running peer, and exposes the UI-facing query/command surface described in
// SPEC_FULL.md §6 and supplemented from original_source's bindings-p2p crate.
package node

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/luxfi/validation/client"
	"github.com/luxfi/validation/config"
	"github.com/luxfi/validation/errs"
	"github.com/luxfi/validation/handler"
	"github.com/luxfi/validation/identity"
	"github.com/luxfi/validation/jury"
	"github.com/luxfi/validation/protocol"
	"github.com/luxfi/validation/reputation"
	"github.com/luxfi/validation/store"
	"github.com/luxfi/validation/transport"
	"github.com/luxfi/validation/utils/wrappers"
	"github.com/luxfi/validation/votation"
)

// Node is one running peer: the Handler/Client/Store trio bound to a
// Transport, plus the inbound event loop that feeds delivered messages
// through the Handler and republishes any reply.
type Node struct {
	Self identity.Identity

	db         store.Store
	reputation *reputation.Ledger
	handler    *handler.Handler
	client     *client.Client
	transport  transport.Transport
	params     config.Parameters
	log        *zap.SugaredLogger

	wg   sync.WaitGroup
	stop chan struct{}
}

// New builds a Node for self, backed by db and t, using params. reg may be
// nil where metrics are not wired (e.g. tests).
func New(self *identity.Identity, db store.Store, t transport.Transport, params config.Parameters, log *zap.SugaredLogger, reg prometheus.Registerer) (*Node, error) {
	ledger := reputation.New(db, params.DefaultReputation, params.ReputationIncrement)
	h, err := handler.New(self.PeerID, db, ledger, params, log, reg)
	if err != nil {
		return nil, err
	}
	c := client.New(self, db, ledger, t, h, params, log)

	return &Node{
		Self:       *self,
		db:         db,
		reputation: ledger,
		handler:    h,
		client:     c,
		transport:  t,
		params:     params,
		log:        log,
		stop:       make(chan struct{}),
	}, nil
}

// Start joins the default topic and launches the two long-lived tasks
// described in SPEC_FULL.md §5: the inbound event loop and the Client's
// background promotion loop.
func (n *Node) Start(ctx context.Context) error {
	if err := n.transport.Subscribe(n.params.DefaultTopic); err != nil {
		return errs.Connection(err, "node: subscribe default topic")
	}

	n.wg.Add(2)
	go func() {
		defer n.wg.Done()
		n.client.Run(ctx)
	}()
	go func() {
		defer n.wg.Done()
		n.eventLoop(ctx)
	}()
	return nil
}

// Stop halts both long-lived tasks, waits for them to return, and closes
// the transport and store, aggregating any shutdown failures.
func (n *Node) Stop() error {
	close(n.stop)
	n.client.Stop()
	n.wg.Wait()

	var errs wrappers.Errs
	errs.Add(n.transport.Close())
	errs.Add(n.db.Close())
	return errs.Err()
}

// eventLoop drains the transport's inbound channel, decodes each envelope,
// and routes it through the Handler, republishing any reply on the same
// topic. A failing decode or Handle call is logged and dropped, per
// SPEC_FULL.md §7's failure-isolation policy.
func (n *Node) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stop:
			return
		case env, ok := <-n.transport.Inbound():
			if !ok {
				return
			}
			n.dispatch(ctx, env)
		}
	}
}

func (n *Node) dispatch(ctx context.Context, env transport.Envelope) {
	msg, err := protocol.Decode(env.Payload)
	if err != nil {
		n.log.Debugw("dropping inbound message", "reason", "decode failed", "topic", env.Topic, "err", err)
		return
	}

	reply, err := n.handler.Handle(ctx, env.Sender, env.Topic, msg)
	if err != nil {
		n.log.Warnw("handler failed", "topic", env.Topic, "sender", env.Sender, "err", err)
		return
	}
	if rt, ok := msg.(protocol.RegisterTopic); ok {
		if err := n.transport.Subscribe(rt.Topic); err != nil {
			n.log.Warnw("failed to subscribe to registered topic", "topic", rt.Topic, "err", err)
		}
	}
	if reply == nil {
		return
	}
	// A leader closes a votation here when the last expected vote arrives
	// over the network. Its own publish never loops back to it, so it
	// applies the closing IncludeNewValidatedContent locally as well.
	if _, ok := reply.(protocol.IncludeNewValidatedContent); ok {
		if _, err := n.handler.Handle(ctx, n.Self.PeerID, env.Topic, reply); err != nil {
			n.log.Warnw("failed to apply own reply", "topic", env.Topic, "err", err)
		}
	}

	data, err := protocol.Encode(reply)
	if err != nil {
		n.log.Warnw("failed to encode reply", "topic", env.Topic, "err", err)
		return
	}
	if err := n.transport.Publish(ctx, env.Topic, data); err != nil {
		n.log.Warnw("failed to publish reply", "topic", env.Topic, "err", err)
	}
}

// --- UI-facing command surface, per SPEC_FULL.md §6 + §11 ---

// RegisterTopic persists topic and subscribes the local transport to it.
func (n *Node) RegisterTopic(name, description string) error {
	return n.client.RegisterTopic(name, description)
}

// RemoteNewTopic announces topic to the network's default topic.
func (n *Node) RemoteNewTopic(ctx context.Context, topic string) error {
	return n.client.RemoteNewTopic(ctx, topic)
}

// NewKeyAvailable is new_key_available: submits content for validation on
// topic and returns its derived id_votation.
func (n *Node) NewKeyAvailable(ctx context.Context, topic, content string) (string, error) {
	return n.client.AskValidation(ctx, topic, content)
}

// ValidateContent is an alias for NewKeyAvailable, matching the UI surface
// name in SPEC_FULL.md §6.
func (n *Node) ValidateContent(ctx context.Context, topic, content string) (string, error) {
	return n.client.AskValidation(ctx, topic, content)
}

// AddVote casts vote for idVotation on topic.
func (n *Node) AddVote(ctx context.Context, idVotation, topic string, vote protocol.VoteResult) error {
	return n.client.AddVote(ctx, idVotation, topic, vote)
}

// --- UI-facing query surface ---

// GetMyTopics returns every topic this peer has registered.
func (n *Node) GetMyTopics() ([]store.Topic, error) {
	return store.ListTopics(n.db)
}

// AllContent returns the entire validated-content log.
func (n *Node) AllContent() ([]store.ValidatedContent, error) {
	return store.ListValidatedContent(n.db)
}

// GetStatusVote returns the local Votation record for idVotation.
func (n *Node) GetStatusVote(idVotation string) (votation.Votation, error) {
	data, err := n.db.Get(store.PendingContentKey(idVotation))
	if err != nil {
		return votation.Votation{}, err
	}
	var v votation.Votation
	if err := json.Unmarshal(data, &v); err != nil {
		return votation.Votation{}, errs.Deserialization(err, "node: unmarshal votation "+idVotation)
	}
	return v, nil
}

// GetStatusVoteses returns every locally known Votation.
func (n *Node) GetStatusVoteses() ([]votation.Votation, error) {
	var all []votation.Votation
	err := n.db.ScanPrefix(store.PendingContentPrefix(), func(_ string, value []byte) (bool, error) {
		var v votation.Votation
		if err := json.Unmarshal(value, &v); err != nil {
			return false, errs.Deserialization(err, "node: unmarshal votation entry")
		}
		all = append(all, v)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

// GetReputations returns every reputation recorded on topic.
func (n *Node) GetReputations(topic string) (map[identity.PeerID]float64, error) {
	return n.reputation.All(topic)
}

// GetReputation returns peer's reputation on topic.
func (n *Node) GetReputation(peer identity.PeerID, topic string) (float64, error) {
	return n.reputation.Get(topic, peer)
}

// GetVoters returns the jury recorded for (idVotation, topic).
func (n *Node) GetVoters(idVotation, topic string) ([]identity.PeerID, error) {
	return jury.Load(n.db, topic, idVotation)
}

// GetRuntimeContentToValidate returns votations in which this peer is an
// expected voter but has not yet cast its vote. SPEC_FULL.md §9 notes the
// my_pending_content_to_validate store namespace has no writer; this
// derives the same view on demand instead of relying on that namespace.
// Votes are recorded only in the leader's local Votation, so on a voter's
// peer a votation stays in this list after the peer has voted, until it
// reaches a terminal status.
func (n *Node) GetRuntimeContentToValidate() ([]votation.Votation, error) {
	all, err := n.GetStatusVoteses()
	if err != nil {
		return nil, err
	}
	var pending []votation.Votation
	for _, v := range all {
		if v.Status != votation.StatusPending {
			continue
		}
		if v.MyRole != votation.RoleVoter && v.MyRole != votation.RoleLeader {
			continue
		}
		if !v.Recorded(n.Self.PeerID) {
			pending = append(pending, v)
		}
	}
	return pending, nil
}
