package models

import "sync"

// Registry resolves a model id to its capability descriptor.
type Registry interface {
	// Lookup returns the capabilities for the given model id. The second
	// return value is false when the model is unknown.
	Lookup(modelID string) (Capabilities, bool)
}

// StaticRegistry is a Registry backed by a fixed map, safe for concurrent
// reads after construction.
type StaticRegistry struct {
	mu     sync.RWMutex
	models map[string]Capabilities
}

var _ Registry = (*StaticRegistry)(nil)

// NewStaticRegistry creates a registry from the given descriptor map.
// The map is copied; later mutation of the argument has no effect.
func NewStaticRegistry(models map[string]Capabilities) *StaticRegistry {
	copied := make(map[string]Capabilities, len(models))
	for id, caps := range models {
		copied[id] = caps
	}
	return &StaticRegistry{models: copied}
}

// Lookup implements Registry.
func (r *StaticRegistry) Lookup(modelID string) (Capabilities, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	caps, ok := r.models[modelID]
	return caps, ok
}

// Register adds or replaces a descriptor. Intended for embedder setup and
// tests, not for concurrent use with in-flight lookups of the same id.
func (r *StaticRegistry) Register(modelID string, caps Capabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[modelID] = caps
}
