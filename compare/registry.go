package compare

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

const (
	// EngineExact names the byte/structural equality engine.
	EngineExact = "exact"

	// EnginePixelmatch names the tolerance-based pixel difference engine.
	EnginePixelmatch = "pixelmatch"

	// DefaultEngineName is the engine used when a run doesn't pick one.
	DefaultEngineName = EngineExact
)

var (
	// ErrEngineNotFound is returned when looking up an unregistered engine.
	ErrEngineNotFound = errors.New("comparison engine not found")

	// ErrEngineRegistered is returned when registering a duplicate name.
	ErrEngineRegistered = errors.New("comparison engine already registered")
)

// Registry maps engine names to comparison engines. It is a run-scoped
// value passed through the call chain; there is no package-level registry,
// so multiple runs in one process cannot contaminate each other.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		engines: make(map[string]Engine),
	}
}

// DefaultRegistry creates a registry with the built-in engines registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	// Built-in names are distinct, so registration cannot fail.
	_ = r.Register(NewExactEngine())
	_ = r.Register(NewPixelEngine())
	return r
}

// Register adds an engine under its name, rejecting duplicates.
func (r *Registry) Register(engine Engine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := engine.Name()
	if _, exists := r.engines[name]; exists {
		return fmt.Errorf("%w: %s", ErrEngineRegistered, name)
	}
	r.engines[name] = engine
	return nil
}

// Get returns the engine registered under the given name.
func (r *Registry) Get(name string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engine, exists := r.engines[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s (available: %v)", ErrEngineNotFound, name, r.namesLocked())
	}
	return engine, nil
}

// Names returns the registered engine names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
