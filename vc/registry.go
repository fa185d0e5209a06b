package vc

import (
	"net"
	"sync"
)

// Registry is the process-wide mapping from VC id to a weak VC reference.
// It never holds the only strong reference to a VC — VC lifetime tracks the
// set of live Peer Sessions, not the Registry.
type Registry struct {
	mu      sync.Mutex
	entries map[ID]Weak
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[ID]Weak)}
}

// GetOrCreate returns the live VC for id, creating one if none exists or if
// the existing one's last strong reference has already gone away. The
// returned VC carries one strong reference that the caller owns and must
// eventually Release.
func (r *Registry) GetOrCreate(id ID, bindIP, announcedIP net.IP) (*VC, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.entries[id]; ok {
		if existing := w.Upgrade(); existing != nil {
			return existing, nil
		}
	}

	v, err := New(id, bindIP, announcedIP)
	if err != nil {
		return nil, err
	}
	v.Acquire()
	r.entries[id] = v.Downgrade()
	v.OnClose(func() { r.remove(id, v) })
	return v, nil
}

// remove deletes id's entry only if it still refers to v, so a close
// callback from a VC instance that has already been superseded by a newer
// one for the same id can't delete the newer entry.
func (r *Registry) remove(id ID, v *VC) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.entries[id]; ok && w.ptr.Value() == v {
		delete(r.entries, id)
	}
}
