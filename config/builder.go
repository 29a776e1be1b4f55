package config

import (
	"fmt"
	"time"
)

// Builder provides a fluent interface for constructing Parameters, matching
// the error-accumulating style used throughout this codebase: once b.err is
// set, every subsequent With... call is a no-op until Build surfaces it.
type Builder struct {
	params Parameters
	err    error
}

// NewBuilder starts from Default.
func NewBuilder() *Builder {
	return &Builder{params: Default()}
}

// WithMembersForConsensus sets the jury size.
func (b *Builder) WithMembersForConsensus(n int) *Builder {
	if b.err != nil {
		return b
	}
	if n < 1 {
		b.err = fmt.Errorf("members for consensus must be >= 1, got %d", n)
		return b
	}
	b.params.MembersForConsensus = n
	return b
}

// WithReputation sets the default reputation and admission threshold
// together, since the threshold is only meaningful relative to the default.
func (b *Builder) WithReputation(defaultRep, threshold float64) *Builder {
	if b.err != nil {
		return b
	}
	if threshold <= 0 || threshold > defaultRep {
		b.err = fmt.Errorf("reputation threshold %v must be in (0, %v]", threshold, defaultRep)
		return b
	}
	b.params.DefaultReputation = defaultRep
	b.params.MinReputationThreshold = threshold
	return b
}

// WithReputationIncrement sets the magnitude applied on every vote outcome.
func (b *Builder) WithReputationIncrement(delta float64) *Builder {
	if b.err != nil {
		return b
	}
	if delta <= 0 {
		b.err = fmt.Errorf("reputation increment must be > 0, got %v", delta)
		return b
	}
	b.params.ReputationIncrement = delta
	return b
}

// WithApprovalRatio sets the yes/total fraction needed to close approved.
func (b *Builder) WithApprovalRatio(ratio float64) *Builder {
	if b.err != nil {
		return b
	}
	if ratio <= 0 || ratio > 1 {
		b.err = fmt.Errorf("approval ratio must be in (0, 1], got %v", ratio)
		return b
	}
	b.params.ApprovalRatio = ratio
	return b
}

// WithVotationTimeout sets how long submitted content waits in the pending
// queue for a quorum before it is dropped unpromoted.
func (b *Builder) WithVotationTimeout(d time.Duration) *Builder {
	if b.err != nil {
		return b
	}
	if d < time.Second {
		b.err = fmt.Errorf("votation timeout must be >= 1s, got %s", d)
		return b
	}
	b.params.VotationTimeout = d
	return b
}

// WithExpiryDuration sets how long the leader waits for the full expected
// voter set before penalizing spurious voters.
func (b *Builder) WithExpiryDuration(d time.Duration) *Builder {
	if b.err != nil {
		return b
	}
	if d < time.Second {
		b.err = fmt.Errorf("expiry duration must be >= 1s, got %s", d)
		return b
	}
	b.params.ExpiryDuration = d
	return b
}

// WithPromotionInterval sets the client's background promotion tick.
func (b *Builder) WithPromotionInterval(d time.Duration) *Builder {
	if b.err != nil {
		return b
	}
	if d <= 0 {
		b.err = fmt.Errorf("promotion interval must be > 0, got %s", d)
		return b
	}
	b.params.PromotionInterval = d
	return b
}

// WithCommandQueueCapacity sets Parameters.CommandQueueCapacity.
func (b *Builder) WithCommandQueueCapacity(n int) *Builder {
	if b.err != nil {
		return b
	}
	if n < 1 {
		b.err = fmt.Errorf("command queue capacity must be >= 1, got %d", n)
		return b
	}
	b.params.CommandQueueCapacity = n
	return b
}

// WithRemoteCall sets the outbound request/response timeout, retry count,
// and backoff. Only the timeout is read by a call path (the tracker lookup).
func (b *Builder) WithRemoteCall(timeout time.Duration, retries int, backoff time.Duration) *Builder {
	if b.err != nil {
		return b
	}
	if timeout <= 0 {
		b.err = fmt.Errorf("remote call timeout must be > 0, got %s", timeout)
		return b
	}
	if retries < 0 {
		b.err = fmt.Errorf("remote call retries must be >= 0, got %d", retries)
		return b
	}
	b.params.RemoteCallTimeout = timeout
	b.params.RemoteCallRetries = retries
	b.params.RemoteCallBackoff = backoff
	return b
}

// WithDefaultTopic sets the topic a peer joins when none is specified.
func (b *Builder) WithDefaultTopic(topic string) *Builder {
	if b.err != nil {
		return b
	}
	if topic == "" {
		b.err = fmt.Errorf("default topic must not be empty")
		return b
	}
	b.params.DefaultTopic = topic
	return b
}

// Build validates the accumulated parameters and returns them.
func (b *Builder) Build() (Parameters, error) {
	if b.err != nil {
		return Parameters{}, b.err
	}
	if err := b.params.Valid(); err != nil {
		return Parameters{}, err
	}
	return b.params, nil
}
