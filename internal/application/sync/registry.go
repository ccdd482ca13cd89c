package sync

import (
	stdsync "sync"

	"github.com/partpulse/gateway/internal/domain/canonical"
	"github.com/partpulse/gateway/internal/domain/gateway"
)

// Registry is an in-memory adapter registry assembled at startup
type Registry struct {
	mu       stdsync.RWMutex
	adapters map[gateway.SystemCode]gateway.Adapter
	order    []gateway.SystemCode
}

var _ gateway.AdapterRegistry = (*Registry)(nil)

// NewRegistry creates a registry with the given adapters
func NewRegistry(adapters ...gateway.Adapter) *Registry {
	r := &Registry{adapters: make(map[gateway.SystemCode]gateway.Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds an adapter, replacing any previous registration for the same
// system code
func (r *Registry) Register(adapter gateway.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code := adapter.SystemCode()
	if _, exists := r.adapters[code]; !exists {
		r.order = append(r.order, code)
	}
	r.adapters[code] = adapter
}

// Get returns the adapter for the given system code
func (r *Registry) Get(code gateway.SystemCode) (gateway.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[code]
	return a, ok
}

// All returns every registered adapter in registration order
func (r *Registry) All() []gateway.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]gateway.Adapter, 0, len(r.order))
	for _, code := range r.order {
		out = append(out, r.adapters[code])
	}
	return out
}

// For returns every adapter that maps the given record kind, in registration
// order
func (r *Registry) For(kind canonical.RecordKind) []gateway.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []gateway.Adapter
	for _, code := range r.order {
		if a := r.adapters[code]; a.Handles(kind) {
			out = append(out, a)
		}
	}
	return out
}
