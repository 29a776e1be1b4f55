package protocol

import (
	"encoding/json"
	"fmt"
)

// ErrUnknownType is returned when an envelope carries an unrecognized "type".
var ErrUnknownType = fmt.Errorf("protocol: unknown message type")

// envelope is the wire shape: a "type" discriminator plus the JSON body of
// whichever Message the type names.
type envelope struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"-"`
}

// Encode tags msg with its type and marshals it to the wire format used by
// every topic in the network.
func Encode(msg Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", msg.Type(), err)
	}
	// Merge the "type" tag into the marshaled object rather than nesting it,
	// so field names stay exactly lowercase_with_underscores at the top
	// level of the JSON object, per the wire format.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", msg.Type(), err)
	}
	typeTag, err := json.Marshal(msg.Type())
	if err != nil {
		return nil, err
	}
	fields["type"] = typeTag
	return json.Marshal(fields)
}

// Decode reads the "type" tag and unmarshals the remaining fields into the
// matching Message implementation.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: decode envelope: %w", err)
	}

	switch env.Type {
	case TypeInterested:
		var m Interested
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("protocol: decode %s: %w", env.Type, err)
		}
		return m, nil
	case TypeInterestedResponse:
		var m InterestedResponse
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("protocol: decode %s: %w", env.Type, err)
		}
		return m, nil
	case TypeVoteLeaderRequest:
		var m VoteLeaderRequest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("protocol: decode %s: %w", env.Type, err)
		}
		return m, nil
	case TypeResultVote:
		var m ResultVote
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("protocol: decode %s: %w", env.Type, err)
		}
		return m, nil
	case TypeIncludeNewValidatedContent:
		var m IncludeNewValidatedContent
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("protocol: decode %s: %w", env.Type, err)
		}
		return m, nil
	case TypeRegisterTopic:
		var m RegisterTopic
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("protocol: decode %s: %w", env.Type, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// CanonicalVoteLeaderRequestPayload returns the bytes a publisher signs (and
// a verifier re-derives): the canonical JSON of every VoteLeaderRequest
// field except Signature.
func CanonicalVoteLeaderRequestPayload(m VoteLeaderRequest) ([]byte, error) {
	unsigned := m
	unsigned.Signature = ""
	b, err := json.Marshal(unsigned)
	if err != nil {
		return nil, fmt.Errorf("protocol: canonicalize vote leader request: %w", err)
	}
	return b, nil
}
