// Package transport defines the network boundary a Node drives: broadcast
// publish/subscribe per topic, plus a direct one-to-one send, modeled after
// the teacher's core/appsender.AppSender shape (SendAppGossip/SendAppRequest)
// but collapsed to the two primitives this protocol actually needs.
package transport

import (
	"context"

	"github.com/luxfi/validation/identity"
)

// Envelope is one inbound message as delivered by a Transport, prior to
// protocol decoding.
type Envelope struct {
	Topic   string
	Sender  identity.PeerID
	Payload []byte
}

// Transport is the network boundary. Implementations deliver received
// Envelopes on the channel returned by Inbound, which has a bounded buffer.
// When a receiver's buffer is full, InMem blocks the sending Publish/SendOne
// until there is room, and ZMQ drops the envelope.
type Transport interface {
	// Subscribe joins topic; after it returns, Inbound may carry Envelopes
	// whose Topic equals topic.
	Subscribe(topic string) error

	// Publish broadcasts payload to every subscriber of topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// SendOne delivers payload directly to peer, bypassing topic broadcast.
	// Both implementations here ignore addr: InMem finds peer on its Bus,
	// and ZMQ uses the connection opened for peer by ConnectPeer.
	SendOne(ctx context.Context, peer identity.PeerID, addr string, payload []byte) error

	// Inbound returns the channel of delivered messages. Closed when the
	// transport shuts down.
	Inbound() <-chan Envelope

	// Close releases all transport resources.
	Close() error
}
