package connectors

import (
	"fmt"
	"sync"

	"github.com/shadowtrace/discovery-platform/internal/domain/connection"
)

// Registry resolves a Platform to its configured Adapter instance.
type Registry struct {
	mu       sync.RWMutex
	adapters map[connection.Platform]Adapter
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[connection.Platform]Adapter)}
}

// Register wires an adapter under its own Platform() identity.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Platform()] = a
}

// Get resolves the adapter for platform, or an error if none is registered.
func (r *Registry) Get(platform connection.Platform) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[platform]
	if !ok {
		return nil, fmt.Errorf("no connector adapter registered for platform %q", platform)
	}
	return a, nil
}

// Platforms lists every registered platform.
func (r *Registry) Platforms() []connection.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]connection.Platform, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	return out
}
