// Package protocol defines the six wire messages of the validation state
// machine and their JSON tagged-union encoding.
package protocol

import (
	"time"

	"github.com/luxfi/validation/identity"
)

// Type names travel on the wire exactly as written here.
const (
	TypeInterested                  = "Interested"
	TypeInterestedResponse          = "InterestedResponse"
	TypeVoteLeaderRequest           = "VoteLeaderRequest"
	TypeResultVote                  = "ResultVote"
	TypeIncludeNewValidatedContent  = "IncludeNewValidatedContent"
	TypeRegisterTopic               = "RegisterTopic"
)

// VoteResult is the binary outcome a voter casts.
type VoteResult string

const (
	Yes VoteResult = "Yes"
	No  VoteResult = "No"
)

// Approved is the terminal outcome recorded for a votation.
type Approved string

const (
	ApprovedYes Approved = "Approved"
	ApprovedNo  Approved = "Rejected"
)

// Message is implemented by every wire message variant; Type returns the
// tag used in the JSON envelope.
type Message interface {
	Type() string
}

// Interested is broadcast by a publisher seeking validators.
type Interested struct {
	IDVotation string `json:"id_votation"`
	Content    string `json:"content"`
}

func (Interested) Type() string { return TypeInterested }

// InterestedResponse is broadcast by a subscriber willing to serve as juror.
type InterestedResponse struct {
	IDVotation string `json:"id_votation"`
}

func (InterestedResponse) Type() string { return TypeInterestedResponse }

// VoteLeaderRequest is broadcast by the publisher once the jury is chosen.
// Signature is computed over the canonical JSON of every other field.
type VoteLeaderRequest struct {
	IDVotation     string           `json:"id_votation"`
	Content        string           `json:"content"`
	PublisherPeerID identity.PeerID `json:"publisher_peer_id"`
	VotersPeerID   []identity.PeerID `json:"voters_peer_id"`
	LeaderPeerID   identity.PeerID  `json:"leader_peer_id"`
	TTLSecs        int64            `json:"ttl_secs"`
	Signature      string           `json:"signature"`
}

func (VoteLeaderRequest) Type() string { return TypeVoteLeaderRequest }

// Deadline returns the instant at which this request expires, measured from
// the given creation time.
func (m VoteLeaderRequest) Deadline(created time.Time) time.Time {
	return created.Add(time.Duration(m.TTLSecs) * time.Second)
}

// ResultVote is broadcast by a designated voter, or dispatched locally by
// the leader to itself.
type ResultVote struct {
	IDVotation string     `json:"id_votation"`
	Result     VoteResult `json:"result"`
}

func (ResultVote) Type() string { return TypeResultVote }

// IncludeNewValidatedContent is broadcast by the leader once the votation
// closes.
type IncludeNewValidatedContent struct {
	IDVotation string   `json:"id_votation"`
	Content    string   `json:"content"`
	Approved   Approved `json:"approved"`
}

func (IncludeNewValidatedContent) Type() string { return TypeIncludeNewValidatedContent }

// RegisterTopic is a newcomer's request that default-topic listeners
// subscribe to a new topic.
type RegisterTopic struct {
	Topic string `json:"topic"`
}

func (RegisterTopic) Type() string { return TypeRegisterTopic }
