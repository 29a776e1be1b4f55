package transport

import (
	"context"
	"sync"

	"github.com/luxfi/validation/errs"
	"github.com/luxfi/validation/identity"
)

// Bus is a shared in-process switchboard connecting every InMem transport
// registered on it, used by package node's integration tests to simulate a
// small network without sockets.
type Bus struct {
	mu      sync.Mutex
	members map[identity.PeerID]*InMem
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{members: make(map[identity.PeerID]*InMem)}
}

func (b *Bus) register(self identity.PeerID, t *InMem) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.members[self] = t
}

func (b *Bus) unregister(self identity.PeerID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.members, self)
}

func (b *Bus) broadcast(from identity.PeerID, topic string, payload []byte) {
	b.mu.Lock()
	targets := make([]*InMem, 0, len(b.members))
	for peer, t := range b.members {
		if peer == from {
			continue
		}
		targets = append(targets, t)
	}
	b.mu.Unlock()

	for _, t := range targets {
		t.deliver(from, topic, payload)
	}
}

func (b *Bus) sendOne(from, to identity.PeerID, topic string, payload []byte) error {
	b.mu.Lock()
	target, ok := b.members[to]
	b.mu.Unlock()
	if !ok {
		return errs.Runtime("transport: no such peer %s", to)
	}
	target.deliver(from, topic, payload)
	return nil
}

// InMem is a Transport backed by a shared Bus, used for tests and
// single-process simulation of the network described in SPEC_FULL.md §6.
type InMem struct {
	self   identity.PeerID
	bus    *Bus
	inbox  chan Envelope
	topics map[string]bool
	mu     sync.Mutex
	closed bool
}

// NewInMem registers self on bus and returns its Transport.
func NewInMem(bus *Bus, self identity.PeerID) *InMem {
	t := &InMem{
		self:   self,
		bus:    bus,
		inbox:  make(chan Envelope, 256),
		topics: make(map[string]bool),
	}
	bus.register(self, t)
	return t
}

func (t *InMem) Subscribe(topic string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.topics[topic] = true
	return nil
}

func (t *InMem) Publish(_ context.Context, topic string, payload []byte) error {
	t.bus.broadcast(t.self, topic, payload)
	return nil
}

func (t *InMem) SendOne(_ context.Context, peer identity.PeerID, _ string, payload []byte) error {
	return t.bus.sendOne(t.self, peer, "", payload)
}

func (t *InMem) Inbound() <-chan Envelope { return t.inbox }

func (t *InMem) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.bus.unregister(t.self)
	close(t.inbox)
	return nil
}

func (t *InMem) deliver(from identity.PeerID, topic string, payload []byte) {
	t.mu.Lock()
	subscribed := topic == "" || t.topics[topic]
	closed := t.closed
	t.mu.Unlock()
	if closed || !subscribed {
		return
	}
	t.inbox <- Envelope{Topic: topic, Sender: from, Payload: payload}
}
