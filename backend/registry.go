package backend

import (
	"sort"
	"sync"

	"github.com/amirreiter/wisc/gpudev"
)

// registry holds registered backend factories.
var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	// Priority order for backend selection (first usable wins).
	priority = []string{BackendNative, BackendNoop}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it is replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Available returns a sorted list of registered backend names.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[name]
	return ok
}

// New returns a fresh enumerator from the named backend.
func New(name string) (gpudev.Enumerator, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()

	if !ok {
		return nil, ErrUnknownBackend
	}
	return factory()
}

// Default returns an enumerator from the best available backend.
// Candidates are tried in priority order; a factory error moves on to
// the next one. Falls back to any registered backend before giving up.
func Default() (gpudev.Enumerator, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	for _, name := range priority {
		if factory, ok := factories[name]; ok {
			if e, err := factory(); err == nil {
				return e, nil
			}
		}
	}

	for _, factory := range factories {
		if e, err := factory(); err == nil {
			return e, nil
		}
	}

	return nil, ErrBackendNotAvailable
}
