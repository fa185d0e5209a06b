// Package peer implements the per-connection signaling actor: it
// multiplexes inbound client frames, asynchronous media-engine
// completions, and cross-peer bus notifications into outbound frames, all
// serialized through one inbox per session.
package peer

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"dreamh.dev/sfu/engine"
	"dreamh.dev/sfu/vc"
	"dreamh.dev/sfu/wsconn"
)

type state int32

const (
	stateUpgrading state = iota
	stateServing
	stateClosing
	stateClosed
)

// Session is one connected client's signaling state: its VC membership,
// its two WebRTC transports, the producers and consumers it owns, and the
// bus subscriptions it holds against its VC.
type Session struct {
	id  vc.PeerID
	vc  *vc.VC
	vcID vc.ID

	producerTransport *engine.Transport
	consumerTransport *engine.Transport

	capabilitiesMu sync.Mutex
	capabilities   *engine.RTPCapabilities

	mu       sync.Mutex
	produced []*engine.Producer
	consumed map[string]*engine.Consumer

	subs []func()

	inboxMu     sync.Mutex
	inboxClosed bool
	inbox       chan func()

	sendMu     sync.Mutex
	sendClosed bool
	send       chan []byte

	state     atomic.Int32
	closeOnce sync.Once
}

// post enqueues fn on the session's serialized inbox. Dropped if the inbox
// is saturated (logged) or the session has already closed (silently) — matching the
// "in-flight spawned tasks deliver their result to a dead inbox and are
// discarded" contract.
func (s *Session) post(fn func()) {
	s.inboxMu.Lock()
	defer s.inboxMu.Unlock()
	if s.inboxClosed {
		return
	}
	select {
	case s.inbox <- fn:
	default:
		log.Printf("[peer] %s: inbox saturated, dropping follow-up", s.id)
	}
}

// New constructs both of a peer's WebRTC transports against v's router. v
// is consumed with one strong reference that Session releases on teardown.
func New(id vc.PeerID, v *vc.VC, bindIP, announcedIP net.IP) (*Session, error) {
	producerTransport, err := engine.NewTransport(string(id)+"-produce", v.Router(), bindIP, announcedIP)
	if err != nil {
		return nil, fmt.Errorf("peer: failed to create producer transport: %w", err)
	}
	consumerTransport, err := engine.NewTransport(string(id)+"-consume", v.Router(), bindIP, announcedIP)
	if err != nil {
		return nil, fmt.Errorf("peer: failed to create consumer transport: %w", err)
	}

	return &Session{
		id:                id,
		vc:                v,
		vcID:              v.ID(),
		producerTransport: producerTransport,
		consumerTransport: consumerTransport,
		consumed:          make(map[string]*engine.Consumer),
		inbox:             make(chan func(), 64),
		send:              make(chan []byte, 64),
	}, nil
}

// Serve runs the session against conn until the connection closes or a
// fatal error tears it down. Blocks until the read pump ends; after a client
// disconnect the teardown it posts may still be running when Serve returns.
func (s *Session) Serve(conn *websocket.Conn) {
	go s.run()
	go func() {
		// Teardown closes send; closing conn then ends the read pump.
		wsconn.WritePump(conn, s.send)
		conn.Close()
	}()

	s.post(s.bootstrap)
	s.state.Store(int32(stateServing))

	wsconn.ReadPump(conn, func(msg []byte) {
		s.post(func() { s.handleInbound(msg) })
	}, func(err error) {
		s.post(s.teardown)
	})

	conn.Close()
}

// run is the session's single serialized consumer: inbound frames,
// media-engine completions, and bootstrap/teardown all execute here, one
// closure at a time.
func (s *Session) run() {
	for fn := range s.inbox {
		fn()
	}
}

// bootstrap performs the Start sequence from a fresh transport pair: send
// Init, backfill existing peers, announce self, subscribe to the VC bus,
// backfill existing producers.
func (s *Session) bootstrap() {
	producerOpts, err := s.producerTransport.Options()
	if err != nil {
		s.fail(fmt.Errorf("peer: failed to read producer transport options: %w", err))
		return
	}
	consumerOpts, err := s.consumerTransport.Options()
	if err != nil {
		s.fail(fmt.Errorf("peer: failed to read consumer transport options: %w", err))
		return
	}
	s.outbound(newInit(string(s.vcID), producerOpts, consumerOpts, s.vc.Router().Capabilities()))

	for _, existing := range s.vc.AllPeers() {
		s.outbound(newNotification(existing, vc.NotificationPeerJoin))
	}

	s.vc.AddPeer(s.id)

	s.subscribeBus()

	for _, ref := range s.vc.AllProducers() {
		s.outbound(newProducerAdd(ref.PeerID, ref.Producer.ProducerID()))
	}
}

func (s *Session) subscribeBus() {
	self := s.id

	notifyHandle := s.vc.OnNotification(func(peerID vc.PeerID, kind vc.Notification) {
		if peerID == self {
			return
		}
		s.post(func() { s.outbound(newNotification(peerID, kind)) })
	})
	producerAddHandle := s.vc.OnProducerAdd(func(peerID vc.PeerID, producer vc.Producer) {
		if peerID == self {
			return
		}
		s.post(func() { s.outbound(newProducerAdd(peerID, producer.ProducerID())) })
	})
	producerRemoveHandle := s.vc.OnProducerRemove(func(peerID vc.PeerID, producerID string) {
		if peerID == self {
			return
		}
		s.post(func() { s.outbound(newProducerRemove(peerID, producerID)) })
	})
	echoHandle := s.vc.OnEcho(func(peerID vc.PeerID, text string) {
		if peerID == self {
			return
		}
		s.post(func() { s.outbound(newEcho(peerID, text)) })
	})

	s.subs = append(s.subs,
		notifyHandle.Release,
		producerAddHandle.Release,
		producerRemoveHandle.Release,
		echoHandle.Release,
	)
}

// handleInbound decodes and dispatches one client frame. Runs on the
// session's serialized inbox.
func (s *Session) handleInbound(raw []byte) {
	if state(s.state.Load()) != stateServing {
		return
	}

	var msg Inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("[peer] %s: malformed frame: %v", s.id, err)
		return
	}

	switch msg.Action {
	case "init":
		s.capabilitiesMu.Lock()
		s.capabilities = msg.RTPCapabilities
		s.capabilitiesMu.Unlock()

	case "connectProducerTransport":
		s.connectTransport(s.producerTransport, msg.DTLSParameters, newConnectedProducerTransport)

	case "produce":
		s.produce(msg.Kind, msg.RTPParameters)

	case "producerRemove":
		s.vc.RemoveProducer(s.id, msg.ProducerID)

	case "connectConsumerTransport":
		s.connectTransport(s.consumerTransport, msg.DTLSParameters, newConnectedConsumerTransport)

	case "consume":
		s.consume(msg.ProducerID)

	case "consumerResume":
		s.resumeConsumer(msg.ConsumerID)

	case "echo":
		s.vc.Echo(s.id, msg.Text)

	case "notification":
		s.vc.Notify(s.id, msg.NotificationKind)

	default:
		log.Printf("[peer] %s: unknown action %q", s.id, msg.Action)
	}
}

func (s *Session) connectTransport(t *engine.Transport, params *webrtc.DTLSParameters, onSuccess func() Outbound) {
	if params == nil {
		log.Printf("[peer] %s: connect without dtlsParameters", s.id)
		return
	}
	go func() {
		err := t.Connect(*params)
		s.post(func() {
			if err != nil {
				s.fail(fmt.Errorf("peer: transport connect failed: %w", err))
				return
			}
			s.outbound(onSuccess())
		})
	}()
}

func (s *Session) produce(kind engine.Kind, params *engine.RTPParameters) {
	if params == nil {
		log.Printf("[peer] %s: produce without rtpParameters", s.id)
		return
	}
	id := uuid.NewString()
	go func() {
		producer, err := engine.Produce(id, s.producerTransport, kind, *params)
		s.post(func() {
			if err != nil {
				s.fail(fmt.Errorf("peer: produce failed: %w", err))
				return
			}
			s.mu.Lock()
			s.produced = append(s.produced, producer)
			s.mu.Unlock()
			s.outbound(newProducerCreated(producer.ID))
			s.vc.AddProducer(s.id, producer)
		})
	}()
}

func (s *Session) consume(producerID string) {
	s.capabilitiesMu.Lock()
	initialized := s.capabilities != nil
	s.capabilitiesMu.Unlock()
	if !initialized {
		log.Printf("[peer] %s: consume before init", s.id)
		return
	}

	var target *engine.Producer
	for _, ref := range s.vc.AllProducers() {
		if ref.Producer.ProducerID() == producerID {
			if p, ok := ref.Producer.(*engine.Producer); ok {
				target = p
			}
		}
	}
	if target == nil {
		log.Printf("[peer] %s: consume for unknown producer %s", s.id, producerID)
		return
	}

	id := uuid.NewString()
	go func() {
		consumer, err := engine.Consume(id, s.consumerTransport, target, engine.RTPParameters{})
		s.post(func() {
			if err != nil {
				s.fail(fmt.Errorf("peer: consume failed: %w", err))
				return
			}
			s.mu.Lock()
			s.consumed[consumer.ID] = consumer
			s.mu.Unlock()
			s.outbound(newConsumerCreated(consumer.ID, consumer.ProducerID, consumer.Kind, engine.RTPParameters{}))
		})
	}()
}

func (s *Session) resumeConsumer(id string) {
	s.mu.Lock()
	consumer, ok := s.consumed[id]
	s.mu.Unlock()
	if !ok {
		log.Printf("[peer] %s: resume of unknown consumer %s", s.id, id)
		return
	}
	go func() {
		if err := consumer.Resume(); err != nil {
			log.Printf("[peer] %s: consumer resume failed: %v", s.id, err)
		}
	}()
}

// fail transitions the session into teardown in response to a session-fatal
// error. Runs on the inbox goroutine.
func (s *Session) fail(err error) {
	log.Printf("[peer] %s: fatal: %v", s.id, err)
	s.teardown()
}

// teardown releases bus subscriptions, removes the peer from its VC roster,
// and closes the outbound channel. Idempotent.
func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(stateClosing))
		for _, release := range s.subs {
			release()
		}
		s.vc.RemovePeer(s.id)
		s.vc.Release()

		s.mu.Lock()
		for _, p := range s.produced {
			p.Close()
		}
		for _, c := range s.consumed {
			c.Close()
		}
		s.mu.Unlock()

		s.sendMu.Lock()
		s.sendClosed = true
		close(s.send)
		s.sendMu.Unlock()

		s.state.Store(int32(stateClosed))
		log.Printf("[peer] %s closed", s.id)

		// Closing the inbox lets run() exit once any already-buffered
		// closures drain, instead of leaking that goroutine forever.
		s.inboxMu.Lock()
		s.inboxClosed = true
		close(s.inbox)
		s.inboxMu.Unlock()
	})
}

func (s *Session) outbound(msg Outbound) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[peer] %s: failed to marshal outbound frame: %v", s.id, err)
		return
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.sendClosed {
		return
	}
	select {
	case s.send <- data:
	default:
		log.Printf("[peer] %s: outbound channel full, dropping frame action=%s", s.id, msg.Action)
	}
}
