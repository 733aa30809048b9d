package transport

import (
	"log/slog"
	"sync"
)

// Factory builds the transport for a device address.
type Factory func(addr string) Transport

// Registry keeps one shared Transport per device address. Handles are created
// lazily and reused by every flow instead of reconnecting per command.
type Registry struct {
	mu      sync.Mutex
	factory Factory
	handles map[string]Transport
}

func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory: factory,
		handles: make(map[string]Transport),
	}
}

// Get returns the handle for addr, creating it on first use.
func (r *Registry) Get(addr string) Transport {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.handles[addr]; ok {
		return t
	}
	t := r.factory(addr)
	r.handles[addr] = t
	slog.Debug("transport_created", "addr", addr)
	return t
}

// Close force-cleans every handle and forgets them.
func (r *Registry) Close() {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[string]Transport)
	r.mu.Unlock()

	for _, t := range handles {
		t.Cleanup(true)
	}
}
