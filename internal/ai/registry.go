package ai

import (
	"errors"
	"sync"
)

// ModelRegistry lazily loads detectors once per key and shares them across
// jobs. A failed load is remembered and returned to every later caller.
type ModelRegistry struct {
	mu     sync.Mutex
	models map[string]*registryEntry
}

type registryEntry struct {
	once     sync.Once
	detector ObjectDetector
	err      error
}

// NewModelRegistry creates an empty registry
func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{models: make(map[string]*registryEntry)}
}

var defaultRegistry = NewModelRegistry()

// DefaultRegistry is the process-wide registry.
func DefaultRegistry() *ModelRegistry {
	return defaultRegistry
}

// GetOrLoad returns the detector registered under key, calling load at most
// once for that key even under concurrent access.
func (r *ModelRegistry) GetOrLoad(key string, load func() (ObjectDetector, error)) (ObjectDetector, error) {
	r.mu.Lock()
	e, ok := r.models[key]
	if !ok {
		e = &registryEntry{}
		r.models[key] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		e.detector, e.err = load()
	})
	return e.detector, e.err
}

// Close releases every loaded detector.
func (r *ModelRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for key, e := range r.models {
		if e.detector != nil {
			if err := e.detector.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		delete(r.models, key)
	}
	return errors.Join(errs...)
}
