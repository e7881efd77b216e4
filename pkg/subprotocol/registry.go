package subprotocol

import (
	"fmt"
	"sort"
	"sync"

	"github.com/strataorch/orchestration/pkg/xtypes"
)

// Registry holds the fixed set of subprotocols that participate in every ASM
// block, grounded on the teacher's pkg/strategy.Registry (RWMutex-guarded map
// with a global singleton), adapted here to a closed four-member enum rather
// than an open plugin set, since spec §4.3 fixes the subprotocol order.
type Registry struct {
	mu   sync.RWMutex
	subs map[xtypes.SubprotocolId]Subprotocol
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[xtypes.SubprotocolId]Subprotocol)}
}

// Register adds a subprotocol, keyed by its own reported id. Registering the
// same id twice is a programmer error.
func (r *Registry) Register(s Subprotocol) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := s.Id()
	if _, exists := r.subs[id]; exists {
		return fmt.Errorf("subprotocol: id %s already registered", id)
	}
	r.subs[id] = s
	return nil
}

// Get returns the subprotocol registered for id, if any.
func (r *Registry) Get(id xtypes.SubprotocolId) (Subprotocol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.subs[id]
	return s, ok
}

// Ordered returns every registered subprotocol sorted by id. Spec §4.3 requires
// a fixed dispatch order every block; ascending numeric id (core, bridge,
// checkpoint, upgrade) is that order.
func (r *Registry) Ordered() []Subprotocol {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Subprotocol, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id() < out[j].Id() })
	return out
}

var (
	globalRegistry     *Registry
	globalRegistryOnce sync.Once
)

// GlobalRegistry returns the process-wide subprotocol registry singleton.
func GlobalRegistry() *Registry {
	globalRegistryOnce.Do(func() {
		globalRegistry = NewRegistry()
	})
	return globalRegistry
}

// SetGlobalRegistry replaces the global registry; used by tests to install a
// hermetic set of subprotocols.
func SetGlobalRegistry(r *Registry) {
	globalRegistry = r
}
