// Package handler implements the stateless per-message reducer described in
// SPEC_FULL.md §4.2: it receives one inbound protocol message plus its
// sender and topic, updates local persistent state, and optionally returns
// one reply message. It has no network side effects of its own; the caller
// is responsible for dispatching the reply.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/luxfi/validation/config"
	"github.com/luxfi/validation/errs"
	"github.com/luxfi/validation/identity"
	"github.com/luxfi/validation/jury"
	"github.com/luxfi/validation/protocol"
	"github.com/luxfi/validation/reputation"
	"github.com/luxfi/validation/store"
	"github.com/luxfi/validation/utils/set"
	"github.com/luxfi/validation/votation"
)

// Handler is the single-peer message reducer. Handle invocations are
// serialized by mu, so the store mutation for one message completes before
// the next message is processed; the caller dispatches any reply after
// Handle returns, outside mu.
type Handler struct {
	mu sync.Mutex

	self       identity.PeerID
	db         store.Store
	reputation *reputation.Ledger
	params     config.Parameters
	log        *zap.SugaredLogger
	now        func() time.Time

	messagesHandled prometheus.Counter
	votationsClosed prometheus.Counter
}

// New returns a Handler for self, backed by db and ledger, configured by
// params. reg may be nil in tests that don't care about metrics.
func New(self identity.PeerID, db store.Store, ledger *reputation.Ledger, params config.Parameters, log *zap.SugaredLogger, reg prometheus.Registerer) (*Handler, error) {
	h := &Handler{
		self:       self,
		db:         db,
		reputation: ledger,
		params:     params,
		log:        log,
		now:        time.Now,
		messagesHandled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "validation_messages_handled_total",
			Help: "Number of protocol messages processed by the handler",
		}),
		votationsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "validation_votations_closed_total",
			Help: "Number of votations this peer has closed as leader",
		}),
	}
	if reg != nil {
		if err := reg.Register(h.messagesHandled); err != nil {
			return nil, fmt.Errorf("handler: register messages metric: %w", err)
		}
		if err := reg.Register(h.votationsClosed); err != nil {
			return nil, fmt.Errorf("handler: register votations metric: %w", err)
		}
	}
	return h, nil
}

// Handle reduces one inbound message. The returned message, if non-nil,
// must be published by the caller on the same topic.
func (h *Handler) Handle(ctx context.Context, sender identity.PeerID, topic string, msg protocol.Message) (protocol.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.messagesHandled != nil {
		h.messagesHandled.Inc()
	}

	switch m := msg.(type) {
	case protocol.Interested:
		return h.handleInterested(m)
	case protocol.InterestedResponse:
		return h.handleInterestedResponse(sender, topic, m)
	case protocol.VoteLeaderRequest:
		return h.handleVoteLeaderRequest(topic, m)
	case protocol.ResultVote:
		return h.handleResultVote(sender, topic, m)
	case protocol.IncludeNewValidatedContent:
		return h.handleIncludeNewValidatedContent(topic, m)
	case protocol.RegisterTopic:
		return h.handleRegisterTopic(m)
	default:
		return nil, errs.Deserialization(fmt.Errorf("%T", msg), "handler: unsupported message type")
	}
}

func (h *Handler) handleInterested(m protocol.Interested) (protocol.Message, error) {
	return protocol.InterestedResponse{IDVotation: m.IDVotation}, nil
}

func (h *Handler) handleInterestedResponse(sender identity.PeerID, topic string, m protocol.InterestedResponse) (protocol.Message, error) {
	added, err := jury.AppendIfAbsent(h.db, topic, m.IDVotation, sender)
	if err != nil {
		return nil, err
	}
	if !added {
		h.log.Debugw("dropping interested response", "reason", "already in jury", "idVotation", m.IDVotation, "sender", sender)
	}
	return nil, nil
}

func (h *Handler) handleVoteLeaderRequest(topic string, m protocol.VoteLeaderRequest) (protocol.Message, error) {
	if err := h.verifySignature(m); err != nil {
		h.log.Warnw("dropping vote leader request", "reason", "bad signature", "idVotation", m.IDVotation, "err", err)
		return nil, nil
	}

	key := store.PendingContentKey(m.IDVotation)
	v := votation.NewFromVoteLeaderRequest(h.self, m, h.now())
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errs.Runtime("handler: marshal votation %s: %s", m.IDVotation, err)
	}

	if err := h.db.CreateOnce(key, data); err != nil {
		if errors.Is(err, errs.ErrConcurrency) {
			h.log.Warnw("dropping vote leader request", "reason", "votation already exists", "idVotation", m.IDVotation)
			return nil, nil
		}
		return nil, err
	}
	return nil, nil
}

func (h *Handler) handleResultVote(sender identity.PeerID, topic string, m protocol.ResultVote) (protocol.Message, error) {
	key := store.PendingContentKey(m.IDVotation)
	data, err := h.db.Get(key)
	if errors.Is(err, store.ErrNotFound) {
		h.log.Debugw("dropping result vote", "reason", "no local votation", "idVotation", m.IDVotation, "sender", sender)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var v votation.Votation
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, errs.Deserialization(err, "handler: unmarshal votation "+m.IDVotation)
	}

	if v.MyRole != votation.RoleLeader {
		h.log.Debugw("dropping result vote", "reason", "not leader", "idVotation", m.IDVotation)
		return nil, nil
	}
	if v.Status != votation.StatusPending {
		return nil, nil
	}

	voteKey := store.VoteKey(m.IDVotation, string(sender))
	if err := h.db.CreateOnce(voteKey, []byte(m.Result)); err != nil {
		if errors.Is(err, errs.ErrConcurrency) {
			h.log.Debugw("dropping result vote", "reason", "replay", "idVotation", m.IDVotation, "sender", sender)
			return nil, nil
		}
		return nil, err
	}

	if v.RecordVote(sender, m.Result) {
		updated, err := json.Marshal(v)
		if err != nil {
			return nil, errs.Runtime("handler: marshal votation %s: %s", m.IDVotation, err)
		}
		if err := h.db.Put(key, updated); err != nil {
			return nil, err
		}
	}
	return h.tryClose(topic, key, &v)
}

// tryClose implements SPEC_FULL.md §4.4's leader-side closing algorithm.
func (h *Handler) tryClose(topic, key string, v *votation.Votation) (protocol.Message, error) {
	recollected, err := h.scanVotes(v.IDVotation)
	if err != nil {
		return nil, err
	}

	expected := set.NewSet[identity.PeerID](len(v.VotesID))
	for _, entry := range v.VotesID {
		expected.Add(entry.PeerID)
	}

	complete := true
	for peer := range expected {
		if _, voted := recollected[peer]; !voted {
			complete = false
			break
		}
	}

	if !complete {
		if h.now().After(v.Timestamp.Add(h.params.ExpiryDuration)) {
			for peer := range recollected {
				if !expected.Contains(peer) {
					if err := h.reputation.Penalize(topic, peer); err != nil {
						return nil, err
					}
				}
			}
		}
		return nil, nil
	}

	yes := 0
	for peer := range expected {
		if err := h.reputation.Reward(topic, peer); err != nil {
			return nil, err
		}
		if recollected[peer] == protocol.Yes {
			yes++
		}
	}
	total := expected.Len()
	approvedRatio := total > 0 && float64(yes)/float64(total) >= h.params.ApprovalRatio

	approved := protocol.ApprovedNo
	status := votation.StatusRejected
	if approvedRatio {
		approved = protocol.ApprovedYes
		status = votation.StatusApproved
	}

	v.Status = status
	updated, err := json.Marshal(v)
	if err != nil {
		return nil, errs.Runtime("handler: marshal closed votation %s: %s", v.IDVotation, err)
	}
	if err := h.db.Put(key, updated); err != nil {
		return nil, err
	}
	if h.votationsClosed != nil {
		h.votationsClosed.Inc()
	}

	return protocol.IncludeNewValidatedContent{
		IDVotation: v.IDVotation,
		Content:    v.Content,
		Approved:   approved,
	}, nil
}

func (h *Handler) scanVotes(idVotation string) (map[identity.PeerID]protocol.VoteResult, error) {
	votes := make(map[identity.PeerID]protocol.VoteResult)
	prefix := store.VotePrefix(idVotation)
	err := h.db.ScanPrefix(prefix, func(key string, value []byte) (bool, error) {
		peer := identity.PeerID(key[len(prefix):])
		votes[peer] = protocol.VoteResult(value)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return votes, nil
}

func (h *Handler) handleIncludeNewValidatedContent(topic string, m protocol.IncludeNewValidatedContent) (protocol.Message, error) {
	content := store.ValidatedContent{IDVotation: m.IDVotation, Content: m.Content, Approved: string(m.Approved)}
	data, err := json.Marshal(content)
	if err != nil {
		return nil, errs.Runtime("handler: marshal content %s: %s", m.IDVotation, err)
	}

	if err := h.db.CreateOnce(store.ContentKey(m.IDVotation), data); err != nil {
		if errors.Is(err, errs.ErrConcurrency) {
			h.log.Debugw("dropping include new validated content", "reason", "already recorded", "idVotation", m.IDVotation)
			return nil, nil
		}
		return nil, err
	}

	key := store.PendingContentKey(m.IDVotation)
	raw, err := h.db.Get(key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var v votation.Votation
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, errs.Deserialization(err, "handler: unmarshal votation "+m.IDVotation)
	}
	if v.Status != votation.StatusPending {
		return nil, nil
	}
	if m.Approved == protocol.ApprovedYes {
		v.Status = votation.StatusApproved
	} else {
		v.Status = votation.StatusRejected
	}

	updated, err := json.Marshal(v)
	if err != nil {
		return nil, errs.Runtime("handler: marshal terminal votation %s: %s", m.IDVotation, err)
	}
	if err := h.db.Put(key, updated); err != nil {
		return nil, err
	}
	for _, entry := range v.VotesID {
		if err := h.reputation.Reward(topic, entry.PeerID); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (h *Handler) handleRegisterTopic(m protocol.RegisterTopic) (protocol.Message, error) {
	if err := store.PutTopic(h.db, store.Topic{Name: m.Topic}); err != nil {
		return nil, err
	}
	return nil, nil
}

// verifySignature checks m's publisher signature over its canonical
// payload. SPEC_FULL.md §12's open question is resolved here: on a bad
// signature the message is dropped silently, leaving reputation untouched.
func (h *Handler) verifySignature(m protocol.VoteLeaderRequest) error {
	payload, err := protocol.CanonicalVoteLeaderRequestPayload(m)
	if err != nil {
		return errs.Deserialization(err, "handler: canonical payload")
	}
	sig, err := base64.StdEncoding.DecodeString(m.Signature)
	if err != nil {
		return errs.Deserialization(err, "handler: decode signature")
	}
	return identity.Verify(m.PublisherPeerID, payload, sig)
}
