package backend

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownModel is returned by Registry.New for unregistered names.
var ErrUnknownModel = errors.New("unknown model")

// Factory builds a fresh Model from opts.
type Factory func(opts Options) (Model, error)

// ModelInfo describes a registered model.
type ModelInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type registration struct {
	description string
	factory     Factory
}

// Registry holds named model factories.
type Registry struct {
	mu     sync.RWMutex
	models map[string]registration
}

// NewRegistry creates an empty model registry.
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]registration),
	}
}

// Register adds a factory under name, replacing any earlier registration.
func (r *Registry) Register(name, description string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[name] = registration{description: description, factory: f}
}

// New builds the model registered under name.
func (r *Registry) New(name string, opts Options) (Model, error) {
	r.mu.RLock()
	reg, ok := r.models[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}

	m, err := reg.factory(opts)
	if err != nil {
		return nil, fmt.Errorf("build model %q: %w", name, err)
	}
	return m, nil
}

// List returns all registered models sorted by name for a stable API
// response.
func (r *Registry) List() []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ModelInfo, 0, len(r.models))
	for name, reg := range r.models {
		infos = append(infos, ModelInfo{Name: name, Description: reg.description})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}
