// Package client implements the long-lived actor described in SPEC_FULL.md
// §4.3: it owns outbound intents (ask-validation, vote, topic registration),
// the pending-validation queue, and the background loop that promotes
// pending content into a signed VoteLeaderRequest once a quorum is feasible.
package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luxfi/validation/config"
	"github.com/luxfi/validation/errs"
	"github.com/luxfi/validation/handler"
	"github.com/luxfi/validation/identity"
	"github.com/luxfi/validation/jury"
	"github.com/luxfi/validation/protocol"
	"github.com/luxfi/validation/reputation"
	"github.com/luxfi/validation/store"
	"github.com/luxfi/validation/transport"
	"github.com/luxfi/validation/votation"
)

// Publisher is the subset of transport.Transport the Client drives. Package
// node supplies the real transport; tests supply an in-memory one.
type Publisher interface {
	Subscribe(topic string) error
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Client is one peer's outbound-intent actor.
type Client struct {
	self       *identity.Identity
	db         store.Store
	reputation *reputation.Ledger
	transport  Publisher
	handler    *handler.Handler
	params     config.Parameters
	log        *zap.SugaredLogger
	now        func() time.Time

	pending *pendingQueue

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New returns a Client for self, wired to db, ledger, t, and h.
func New(self *identity.Identity, db store.Store, ledger *reputation.Ledger, t Publisher, h *handler.Handler, params config.Parameters, log *zap.SugaredLogger) *Client {
	return &Client{
		self:       self,
		db:         db,
		reputation: ledger,
		transport:  t,
		handler:    h,
		params:     params,
		log:        log,
		now:        time.Now,
		pending:    newPendingQueue(),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run drives the background promotion loop until ctx is canceled or Stop is
// called. Per SPEC_FULL.md §5, a crashed promotion loop is fatal to the
// peer; callers should not attempt to resume it silently.
func (c *Client) Run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.params.PromotionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.promote(ctx)
		}
	}
}

// Stop signals Run to return and waits for it to do so.
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

// AskValidation enqueues content for validation on topic and broadcasts
// Interested, per SPEC_FULL.md §4.3. It rejects a resubmission of content
// already known on topic (scenario 4 of spec.md §8).
func (c *Client) AskValidation(ctx context.Context, topic, content string) (string, error) {
	idVotation := votation.DeriveID(topic, content)

	duplicate := c.pending.has(idVotation)
	idPrefix := votation.DuplicateScanPrefix(topic, content)
	for _, prefix := range []string{store.PendingContentKey(idPrefix), store.ContentKey(idPrefix)} {
		if duplicate {
			break
		}
		err := c.db.ScanPrefix(prefix, func(string, []byte) (bool, error) {
			duplicate = true
			return false, nil
		})
		if err != nil {
			return "", err
		}
	}
	if duplicate {
		return "", errs.Runtime("client: content already submitted on topic %s", topic)
	}

	c.pending.add(pendingEntry{
		idVotation: idVotation,
		topic:      topic,
		content:    content,
		deadline:   c.now().Add(c.params.VotationTimeout),
	})

	return idVotation, c.publish(ctx, topic, protocol.Interested{IDVotation: idVotation, Content: content})
}

// AddVote casts vote for idVotation on topic. If this peer holds no local
// record of the votation, it is a no-op. If this peer is the leader, the vote is
// dispatched directly to the local Handler instead of round-tripping
// through the transport.
func (c *Client) AddVote(ctx context.Context, idVotation, topic string, vote protocol.VoteResult) error {
	data, err := c.db.Get(store.PendingContentKey(idVotation))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var v votation.Votation
	if err := json.Unmarshal(data, &v); err != nil {
		return errs.Deserialization(err, "client: unmarshal votation "+idVotation)
	}

	if v.MyRole == votation.RoleLeader {
		reply, err := c.handler.Handle(ctx, c.self.PeerID, topic, protocol.ResultVote{IDVotation: idVotation, Result: vote})
		if err != nil {
			return err
		}
		if reply != nil {
			// The leader is also a peer: pub/sub never loops its own
			// publish back to it, so the leader must apply its own
			// IncludeNewValidatedContent locally in addition to
			// broadcasting it for every other peer.
			if _, err := c.handler.Handle(ctx, c.self.PeerID, topic, reply); err != nil {
				return err
			}
			return c.publish(ctx, topic, reply)
		}
		return nil
	}

	return c.publish(ctx, topic, protocol.ResultVote{IDVotation: idVotation, Result: vote})
}

// RegisterTopic persists topic's metadata and subscribes the local
// transport to it.
func (c *Client) RegisterTopic(name, description string) error {
	if err := store.PutTopic(c.db, store.Topic{Name: name, Description: description}); err != nil {
		return err
	}
	return c.transport.Subscribe(name)
}

// RemoteNewTopic announces topic to the network by publishing RegisterTopic
// on the configured default topic.
func (c *Client) RemoteNewTopic(ctx context.Context, topic string) error {
	return c.publish(ctx, c.params.DefaultTopic, protocol.RegisterTopic{Topic: topic})
}

func (c *Client) publish(ctx context.Context, topic string, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return errs.Runtime("client: encode %s: %s", msg.Type(), err)
	}
	if err := c.transport.Publish(ctx, topic, data); err != nil {
		return errs.Connection(err, "client: publish "+msg.Type())
	}
	return nil
}

// promote runs one tick of the background promotion loop.
func (c *Client) promote(ctx context.Context) {
	now := c.now()
	for _, entry := range c.pending.snapshot() {
		if now.After(entry.deadline) || now.Equal(entry.deadline) {
			c.pending.remove(entry.idVotation)
			c.log.Debugw("dropping pending content", "reason", "deadline elapsed", "idVotation", entry.idVotation)
			continue
		}

		candidates, err := jury.Load(c.db, entry.topic, entry.idVotation)
		if err != nil {
			c.log.Warnw("promotion loop: load jury failed", "idVotation", entry.idVotation, "err", err)
			continue
		}

		seated, ok, err := jury.Select(candidates, c.params.MembersForConsensus, func(peer identity.PeerID) (bool, error) {
			return c.reputation.Eligible(entry.topic, peer, c.params.MinReputationThreshold)
		})
		if err != nil {
			c.log.Warnw("promotion loop: eligibility check failed", "idVotation", entry.idVotation, "err", err)
			continue
		}
		if !ok {
			continue
		}

		if err := c.emitVoteLeaderRequest(ctx, entry, seated); err != nil {
			c.log.Warnw("promotion loop: emit vote leader request failed", "idVotation", entry.idVotation, "err", err)
			continue
		}
		c.pending.remove(entry.idVotation)
	}
}

func (c *Client) emitVoteLeaderRequest(ctx context.Context, entry pendingEntry, seated []identity.PeerID) error {
	req := protocol.VoteLeaderRequest{
		IDVotation:      entry.idVotation,
		Content:         entry.content,
		PublisherPeerID: c.self.PeerID,
		VotersPeerID:    seated,
		LeaderPeerID:    seated[0],
		TTLSecs:         int64(c.params.VotationTimeout.Seconds()),
	}
	payload, err := protocol.CanonicalVoteLeaderRequestPayload(req)
	if err != nil {
		return errs.Runtime("client: canonical payload for %s: %s", entry.idVotation, err)
	}
	req.Signature = base64.StdEncoding.EncodeToString(c.self.Sign(payload))

	// The publisher itself will never see this broadcast echoed back by
	// the transport, but it is still a peer in this votation (my_role =
	// publisher), so it applies the message locally too.
	if _, err := c.handler.Handle(ctx, c.self.PeerID, entry.topic, req); err != nil {
		return err
	}
	return c.publish(ctx, entry.topic, req)
}
