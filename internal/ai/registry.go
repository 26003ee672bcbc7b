package ai

import (
	"sync"

	"go.uber.org/zap"
)

// Registry holds the routable model catalog plus runtime availability.
// All methods are safe for concurrent use.
type Registry struct {
	logger *zap.Logger

	mu     sync.RWMutex
	order  []string
	models map[string]*Model
}

// RegistryOption configures the Registry
type RegistryOption func(*Registry)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry builds a registry from catalog descriptors. Every model
// starts available. Descriptor order is preserved and used as the stable
// tie-break everywhere the registry is iterated.
func NewRegistry(models []Model, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		order:  make([]string, 0, len(models)),
		models: make(map[string]*Model, len(models)),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.logger == nil {
		r.logger = zap.NewNop()
	}

	for i := range models {
		m := models[i]
		if err := m.Validate(); err != nil {
			return nil, err
		}
		if _, exists := r.models[m.Key]; exists {
			return nil, &DuplicateModelError{Key: m.Key}
		}
		m.Available = true
		r.order = append(r.order, m.Key)
		r.models[m.Key] = &m
	}

	return r, nil
}

// resolveLocked maps a key or provider model name to the registry key.
// Callers must hold at least a read lock.
func (r *Registry) resolveLocked(idOrName string) (string, bool) {
	if _, ok := r.models[idOrName]; ok {
		return idOrName, true
	}
	for _, key := range r.order {
		if r.models[key].ProviderModelName == idOrName {
			return key, true
		}
	}
	return "", false
}

// Get looks up a model by key or provider model name and returns a copy.
func (r *Registry) Get(idOrName string) (Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.resolveLocked(idOrName)
	if !ok {
		return Model{}, false
	}
	return r.models[key].clone(), true
}

// Snapshot returns copies of every model in catalog order.
func (r *Registry) Snapshot() []Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Model, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.models[key].clone())
	}
	return out
}

// MarkUnavailable flips a model to unavailable. The model stays excluded
// from routing until ResetAll.
func (r *Registry) MarkUnavailable(idOrName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.resolveLocked(idOrName)
	if !ok {
		return &UnknownModelError{Key: idOrName}
	}
	if r.models[key].Available {
		r.models[key].Available = false
		r.logger.Warn("Model marked unavailable", zap.String("model", key))
	}
	return nil
}

// ResetAll restores availability on every model and returns how many were
// unavailable before the reset.
func (r *Registry) ResetAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	restored := 0
	for _, key := range r.order {
		if !r.models[key].Available {
			restored++
			r.models[key].Available = true
		}
	}
	if restored > 0 {
		r.logger.Info("Model availability reset", zap.Int("restored", restored))
	}
	return restored
}

// Len returns the number of models in the catalog.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// AvailableCount returns how many models are currently routable.
func (r *Registry) AvailableCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, key := range r.order {
		if r.models[key].Available {
			n++
		}
	}
	return n
}
