package plugin

import (
	"fmt"
	"sync"
)

// Registry keeps plugins by name in registration order. The order is the
// order the kernel runs the chain in.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Plugin)}
}

// Register adds a plugin under a unique name.
func (r *Registry) Register(name string, p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.plugins[name]; exists {
		return fmt.Errorf("plugin already registered: %s", name)
	}
	r.plugins[name] = p
	r.order = append(r.order, name)
	return nil
}

// Get returns the plugin registered under name.
func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// Names returns the plugin names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Chain returns the plugins in registration order.
func (r *Registry) Chain() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chain := make([]Plugin, 0, len(r.order))
	for _, name := range r.order {
		chain = append(chain, r.plugins[name])
	}
	return chain
}
