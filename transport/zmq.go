package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	zmq "github.com/pebbe/zmq4"

	"github.com/luxfi/validation/errs"
	"github.com/luxfi/validation/identity"
)

// ZMQ is a Transport backed by ZeroMQ sockets: a PUB/SUB pair carries topic
// broadcasts, and a ROUTER/DEALER pair carries direct sends, mirroring the
// socket roles in the teacher's cmd/consensus ZMQ coordinator/worker pair.
type ZMQ struct {
	self identity.PeerID

	pub    *zmq.Socket
	sub    *zmq.Socket
	router *zmq.Socket

	mu      sync.Mutex
	dealers map[identity.PeerID]*zmq.Socket

	inbox  chan Envelope
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type wireMessage struct {
	Topic   string `json:"topic"`
	Sender  string `json:"sender"`
	Payload []byte `json:"payload"`
}

// NewZMQ binds a PUB socket at pubAddr and a ROUTER socket at routerAddr,
// both addresses of the form "tcp://*:PORT".
func NewZMQ(self identity.PeerID, pubAddr, routerAddr string) (*ZMQ, error) {
	pub, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return nil, errs.Connection(err, "transport: create pub socket")
	}
	if err := pub.Bind(pubAddr); err != nil {
		pub.Close()
		return nil, errs.Connection(err, "transport: bind pub socket "+pubAddr)
	}

	sub, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		pub.Close()
		return nil, errs.Connection(err, "transport: create sub socket")
	}

	router, err := zmq.NewSocket(zmq.ROUTER)
	if err != nil {
		pub.Close()
		sub.Close()
		return nil, errs.Connection(err, "transport: create router socket")
	}
	if err := router.SetIdentity(string(self)); err != nil {
		pub.Close()
		sub.Close()
		router.Close()
		return nil, errs.Connection(err, "transport: set router identity")
	}
	if err := router.Bind(routerAddr); err != nil {
		pub.Close()
		sub.Close()
		router.Close()
		return nil, errs.Connection(err, "transport: bind router socket "+routerAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &ZMQ{
		self:    self,
		pub:     pub,
		sub:     sub,
		router:  router,
		dealers: make(map[identity.PeerID]*zmq.Socket),
		inbox:   make(chan Envelope, 256),
		cancel:  cancel,
	}

	t.wg.Add(2)
	go t.receiveBroadcasts(ctx)
	go t.receiveDirect(ctx)

	return t, nil
}

// ConnectPeer dials this peer's SUB socket to a remote PUB endpoint and
// opens a DEALER socket to its ROUTER endpoint, so both Publish and SendOne
// can reach it.
func (t *ZMQ) ConnectPeer(peer identity.PeerID, pubAddr, routerAddr string) error {
	if err := t.sub.Connect(pubAddr); err != nil {
		return errs.Connection(err, "transport: connect sub to "+pubAddr)
	}

	dealer, err := zmq.NewSocket(zmq.DEALER)
	if err != nil {
		return errs.Connection(err, "transport: create dealer socket")
	}
	if err := dealer.SetIdentity(string(t.self)); err != nil {
		dealer.Close()
		return errs.Connection(err, "transport: set dealer identity")
	}
	if err := dealer.Connect(routerAddr); err != nil {
		dealer.Close()
		return errs.Connection(err, "transport: connect dealer to "+routerAddr)
	}

	t.mu.Lock()
	t.dealers[peer] = dealer
	t.mu.Unlock()
	return nil
}

func (t *ZMQ) Subscribe(topic string) error {
	if err := t.sub.SetSubscribe(topic); err != nil {
		return errs.Connection(err, "transport: subscribe "+topic)
	}
	return nil
}

func (t *ZMQ) Publish(_ context.Context, topic string, payload []byte) error {
	msg := wireMessage{Topic: topic, Sender: string(t.self), Payload: payload}
	data, err := marshalWireMessage(msg)
	if err != nil {
		return err
	}
	if _, err := t.pub.SendMessage(topic, data); err != nil {
		return errs.Connection(err, "transport: publish "+topic)
	}
	return nil
}

func (t *ZMQ) SendOne(_ context.Context, peer identity.PeerID, _ string, payload []byte) error {
	t.mu.Lock()
	dealer, ok := t.dealers[peer]
	t.mu.Unlock()
	if !ok {
		return errs.Runtime("transport: no dealer connection to %s", peer)
	}
	msg := wireMessage{Sender: string(t.self), Payload: payload}
	data, err := marshalWireMessage(msg)
	if err != nil {
		return err
	}
	if _, err := dealer.SendMessage(data); err != nil {
		return errs.Connection(err, "transport: send to "+string(peer))
	}
	return nil
}

func (t *ZMQ) Inbound() <-chan Envelope { return t.inbox }

func (t *ZMQ) Close() error {
	t.cancel()
	t.wg.Wait()

	t.mu.Lock()
	for _, dealer := range t.dealers {
		dealer.Close()
	}
	t.mu.Unlock()

	t.pub.Close()
	t.sub.Close()
	t.router.Close()
	close(t.inbox)
	return nil
}

func (t *ZMQ) receiveBroadcasts(ctx context.Context) {
	defer t.wg.Done()
	t.sub.SetRcvtimeo(100 * time.Millisecond)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		parts, err := t.sub.RecvMessage(0)
		if err != nil || len(parts) < 2 {
			continue
		}
		t.handleFrame(parts[0], parts[1])
	}
}

func (t *ZMQ) receiveDirect(ctx context.Context) {
	defer t.wg.Done()
	t.router.SetRcvtimeo(100 * time.Millisecond)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		parts, err := t.router.RecvMessage(0)
		if err != nil || len(parts) < 2 {
			continue
		}
		t.handleFrame("", parts[1])
	}
}

func marshalWireMessage(msg wireMessage) (string, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return "", errs.Runtime("transport: marshal message: %s", err)
	}
	return string(data), nil
}

func unmarshalWireMessage(data []byte) (wireMessage, error) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return wireMessage{}, errs.Deserialization(err, "transport: unmarshal message")
	}
	return msg, nil
}

func (t *ZMQ) handleFrame(topic, data string) {
	msg, err := unmarshalWireMessage([]byte(data))
	if err != nil {
		return
	}
	sender := identity.PeerID(msg.Sender)
	if sender == t.self {
		return
	}
	if topic == "" {
		topic = msg.Topic
	}
	select {
	case t.inbox <- Envelope{Topic: topic, Sender: sender, Payload: msg.Payload}:
	default:
	}
}
