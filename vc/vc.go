// Package vc implements the voice-channel room: one media router, a
// peer-to-producers roster, and the per-room event bus that fans roster
// changes out to every connected peer session.
package vc

import (
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"weak"

	"dreamh.dev/sfu/bus"
	"dreamh.dev/sfu/engine"
)

// Producer is the subset of *engine.Producer the roster needs: an opaque,
// engine-minted id. Expressed as an interface so roster logic can be
// exercised without a live media engine behind it.
type Producer interface {
	ProducerID() string
}

// ID is an opaque, case-sensitive voice-channel identifier.
type ID string

// PeerID is an opaque, client-supplied participant identifier, unique
// within one VC's roster.
type PeerID string

// VC owns one media-engine router, the roster of connected peers and the
// producers each of them owns, and the event bus that broadcasts roster
// changes. It is kept alive by the Peer Sessions that hold strong
// references to it; the Registry only ever holds a weak one.
type VC struct {
	id     ID
	worker *engine.Worker
	router *engine.Router

	refCount atomic.Int64

	mu     sync.Mutex
	roster map[PeerID][]Producer

	notification   *bus.Bag[func(PeerID, Notification)]
	producerAdd    *bus.Bag[func(PeerID, Producer)]
	producerRemove *bus.Bag[func(PeerID, string)]
	echoBus        *bus.Bag[func(PeerID, string)]
	closeBag       *bus.Once
}

// New creates a media worker with the fixed log configuration and a router
// over the fixed codec capability list, and returns an unreferenced VC
// (callers must Acquire before relying on it staying alive). Host ICE
// candidates advertise announcedIP when it is set, bindIP otherwise.
func New(id ID, bindIP, announcedIP net.IP) (*VC, error) {
	advertised := bindIP
	if announcedIP != nil {
		advertised = announcedIP
	}
	worker, err := engine.NewWorker(engine.DefaultWorkerSettings, advertised)
	if err != nil {
		return nil, fmt.Errorf("vc: failed to create worker: %w", err)
	}
	router, err := engine.NewRouter(worker)
	if err != nil {
		return nil, fmt.Errorf("vc: failed to create router: %w", err)
	}

	v := &VC{
		id:             id,
		worker:         worker,
		router:         router,
		roster:         make(map[PeerID][]Producer),
		notification:   bus.NewBag[func(PeerID, Notification)](),
		producerAdd:    bus.NewBag[func(PeerID, Producer)](),
		producerRemove: bus.NewBag[func(PeerID, string)](),
		echoBus:        bus.NewBag[func(PeerID, string)](),
		closeBag:       bus.NewOnce(),
	}
	log.Printf("[vc] %s created", id)
	return v, nil
}

// ID returns the voice channel's id.
func (v *VC) ID() ID { return v.id }

// Router returns the media router peer transports are created against.
func (v *VC) Router() *engine.Router { return v.router }

// Acquire takes a strong reference. Used by the Registry right after
// construction and never again by it; Peer Sessions don't need to call it
// themselves since the Registry hands them an already-acquired VC.
func (v *VC) Acquire() { v.refCount.Add(1) }

// TryAcquire takes a strong reference only if one already exists,
// preventing resurrection of a VC whose last strong reference has already
// started the close sequence. Used when upgrading a weak reference.
func (v *VC) TryAcquire() bool {
	for {
		c := v.refCount.Load()
		if c <= 0 {
			return false
		}
		if v.refCount.CompareAndSwap(c, c+1) {
			return true
		}
	}
}

// Release drops a strong reference. When the last one is dropped, the close
// bag fires on a separate goroutine — the registry's close handler
// re-acquires the registry mutex, and firing synchronously here could
// deadlock a caller that is itself holding that mutex (see Registry.remove).
func (v *VC) Release() {
	if v.refCount.Add(-1) == 0 {
		go v.closeBag.Fire()
	}
}

// Weak is a non-owning reference to a VC, upgradable back to a strong one
// as long as some other holder keeps it alive.
type Weak struct {
	ptr weak.Pointer[VC]
}

// Downgrade returns a Weak reference to v.
func (v *VC) Downgrade() Weak {
	return Weak{ptr: weak.Make(v)}
}

// Upgrade returns a strong reference, or nil if no strong reference exists
// anymore.
func (w Weak) Upgrade() *VC {
	v := w.ptr.Value()
	if v == nil || !v.TryAcquire() {
		return nil
	}
	return v
}

// AddPeer inserts peerID into the roster with an empty producer list if
// absent, and broadcasts its arrival.
func (v *VC) AddPeer(peerID PeerID) {
	v.mu.Lock()
	if _, ok := v.roster[peerID]; !ok {
		v.roster[peerID] = nil
	}
	v.mu.Unlock()
	v.emitNotification(peerID, NotificationPeerJoin)
}

// RemovePeer removes peerID's roster entry, if present, emitting a
// producer_remove for each producer it owned before the departure
// notification. A no-op (no emits at all) for an unknown peer.
func (v *VC) RemovePeer(peerID PeerID) {
	v.mu.Lock()
	producers, ok := v.roster[peerID]
	if !ok {
		v.mu.Unlock()
		return
	}
	delete(v.roster, peerID)
	v.mu.Unlock()

	for _, p := range producers {
		v.emitProducerRemove(peerID, p.ProducerID())
	}
	v.emitNotification(peerID, NotificationPeerLeave)
}

// AddProducer appends producer to peerID's list (creating the peer's roster
// entry if it doesn't exist yet) and broadcasts the addition.
func (v *VC) AddProducer(peerID PeerID, producer Producer) {
	v.mu.Lock()
	v.roster[peerID] = append(v.roster[peerID], producer)
	v.mu.Unlock()
	for _, h := range v.producerAdd.Snapshot() {
		h(peerID, producer)
	}
}

// RemoveProducer drops any producer handles matching producerID from
// peerID's list, if present, and unconditionally broadcasts the removal so
// late or duplicate unsubscribes still notify.
func (v *VC) RemoveProducer(peerID PeerID, producerID string) {
	v.mu.Lock()
	if list, ok := v.roster[peerID]; ok {
		kept := list[:0]
		for _, p := range list {
			if p.ProducerID() != producerID {
				kept = append(kept, p)
			}
		}
		v.roster[peerID] = kept
	}
	v.mu.Unlock()
	v.emitProducerRemove(peerID, producerID)
}

// Echo broadcasts text as having been said by peerID.
func (v *VC) Echo(peerID PeerID, text string) {
	for _, h := range v.echoBus.Snapshot() {
		h(peerID, text)
	}
}

// clientNotifiable is the set of kinds a peer may self-report via the
// client-facing "notification" action. PeerJoin/PeerLeave are emitted only
// by AddPeer/RemovePeer — letting a client send them would let it spoof
// another peer's arrival or departure.
var clientNotifiable = map[Notification]bool{
	NotificationLoading: true,
	NotificationPlaying: true,
	NotificationIdle:    true,
}

// Notify broadcasts a client-reported status kind on behalf of peerID.
// Kinds outside clientNotifiable are dropped.
func (v *VC) Notify(peerID PeerID, kind Notification) {
	if !clientNotifiable[kind] {
		log.Printf("[vc] %s: rejected client notify of kind %q from %s", v.id, kind, peerID)
		return
	}
	v.emitNotification(peerID, kind)
}

func (v *VC) emitNotification(peerID PeerID, kind Notification) {
	for _, h := range v.notification.Snapshot() {
		h(peerID, kind)
	}
}

func (v *VC) emitProducerRemove(peerID PeerID, producerID string) {
	for _, h := range v.producerRemove.Snapshot() {
		h(peerID, producerID)
	}
}

// AllPeers returns a snapshot of every peer currently in the roster.
func (v *VC) AllPeers() []PeerID {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]PeerID, 0, len(v.roster))
	for p := range v.roster {
		out = append(out, p)
	}
	return out
}

// ProducerRef pairs an owning peer with one of its producers, returned by
// AllProducers for backfill.
type ProducerRef struct {
	PeerID   PeerID
	Producer Producer
}

// AllProducers returns a snapshot of every (peer, producer) pair currently
// in the roster.
func (v *VC) AllProducers() []ProducerRef {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []ProducerRef
	for peerID, producers := range v.roster {
		for _, p := range producers {
			out = append(out, ProducerRef{PeerID: peerID, Producer: p})
		}
	}
	return out
}

// OnNotification subscribes to notification broadcasts.
func (v *VC) OnNotification(cb func(PeerID, Notification)) *bus.Handle[func(PeerID, Notification)] {
	return v.notification.Subscribe(cb)
}

// OnProducerAdd subscribes to producer-add broadcasts.
func (v *VC) OnProducerAdd(cb func(PeerID, Producer)) *bus.Handle[func(PeerID, Producer)] {
	return v.producerAdd.Subscribe(cb)
}

// OnProducerRemove subscribes to producer-remove broadcasts.
func (v *VC) OnProducerRemove(cb func(PeerID, string)) *bus.Handle[func(PeerID, string)] {
	return v.producerRemove.Subscribe(cb)
}

// OnEcho subscribes to echo broadcasts.
func (v *VC) OnEcho(cb func(PeerID, string)) *bus.Handle[func(PeerID, string)] {
	return v.echoBus.Subscribe(cb)
}

// OnClose subscribes to the one-shot close event. Fires immediately, on the
// calling goroutine, if the VC has already closed.
func (v *VC) OnClose(cb func()) {
	v.closeBag.Subscribe(cb)
}
