package config

import (
	"errors"
	"time"
)

// Error variables for parameter validation.
var (
	ErrParametersInvalid      = errors.New("invalid validation parameters")
	ErrInvalidQuorumSize      = errors.New("members for consensus must be >= 1")
	ErrInvalidThreshold       = errors.New("reputation threshold must be in (0, default]")
	ErrInvalidIncrement       = errors.New("reputation increment must be > 0")
	ErrInvalidApprovalRatio   = errors.New("approval ratio must be in (0, 1]")
	ErrInvalidTimeout         = errors.New("votation timeout must be >= 1s")
	ErrInvalidPromotionPeriod = errors.New("promotion interval must be > 0")
	ErrInvalidQueueCapacity   = errors.New("command queue capacity must be >= 1")
	ErrEmptyDefaultTopic      = errors.New("default topic must not be empty")
)

// Parameters defines the tunables for one peer's votation and reputation
// behavior. Every field has a spec-mandated default; Builder only needs to
// override the ones a deployment wants to change.
type Parameters struct {
	// MembersForConsensus is the jury size a leader assembles before it will
	// issue a VoteLeaderRequest.
	MembersForConsensus int

	// MinReputationThreshold is the minimum reputation a peer needs to be
	// eligible for jury membership.
	MinReputationThreshold float64

	// DefaultReputation is assigned the first time a peer is seen on a topic.
	DefaultReputation float64

	// ReputationIncrement is the magnitude of every post-votation
	// reputation adjustment.
	ReputationIncrement float64

	// ApprovalRatio is the yes/total fraction a votation needs to close
	// approved.
	ApprovalRatio float64

	// VotationTimeout bounds how long a piece of content waits in the
	// pending queue for a quorum before it is dropped unpromoted.
	VotationTimeout time.Duration

	// ExpiryDuration bounds how long, after a VoteLeaderRequest is issued,
	// the leader waits for the full expected voter set before it starts
	// penalizing senders whose votes arrived but who aren't in that set.
	ExpiryDuration time.Duration

	// PromotionInterval is the tick period of the client's background loop
	// that promotes pending content into an active votation once a jury is
	// available.
	PromotionInterval time.Duration

	// CommandQueueCapacity is the capacity set aside for a client command
	// channel. Valid checks it; no other code reads it.
	CommandQueueCapacity int

	// RemoteCallTimeout bounds outbound request/response calls; the
	// tracker lookup in cmd/validationd uses it. RemoteCallRetries and
	// RemoteCallBackoff are validated and stored but not read by any call
	// path: the tracker lookup makes a single attempt.
	RemoteCallTimeout  time.Duration
	RemoteCallRetries  int
	RemoteCallBackoff  time.Duration

	// DefaultTopic is the topic a freshly started peer joins if it is not
	// told otherwise.
	DefaultTopic string
}

// Default returns the spec-mandated defaults.
func Default() Parameters {
	return Parameters{
		MembersForConsensus:    5,
		MinReputationThreshold: MinReputationThreshold,
		DefaultReputation:      DefaultReputation,
		ReputationIncrement:    ReputationIncrement,
		ApprovalRatio:          ApprovalRatio,
		VotationTimeout:        time.Hour,
		ExpiryDuration:         time.Hour,
		PromotionInterval:      500 * time.Millisecond,
		CommandQueueCapacity:   32,
		RemoteCallTimeout:      3 * time.Second,
		RemoteCallRetries:      2,
		RemoteCallBackoff:      200 * time.Millisecond,
		DefaultTopic:           "chat-room",
	}
}

// Valid reports whether p is internally consistent.
func (p Parameters) Valid() error {
	if p.MembersForConsensus < 1 {
		return ErrInvalidQuorumSize
	}
	if p.MinReputationThreshold <= 0 || p.MinReputationThreshold > p.DefaultReputation {
		return ErrInvalidThreshold
	}
	if p.ReputationIncrement <= 0 {
		return ErrInvalidIncrement
	}
	if p.ApprovalRatio <= 0 || p.ApprovalRatio > 1 {
		return ErrInvalidApprovalRatio
	}
	if p.VotationTimeout < time.Second {
		return ErrInvalidTimeout
	}
	if p.ExpiryDuration < time.Second {
		return ErrInvalidTimeout
	}
	if p.PromotionInterval <= 0 {
		return ErrInvalidPromotionPeriod
	}
	if p.CommandQueueCapacity < 1 {
		return ErrInvalidQueueCapacity
	}
	if p.DefaultTopic == "" {
		return ErrEmptyDefaultTopic
	}
	return nil
}
