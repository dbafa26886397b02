package model

import (
	"sort"
	"sync"

	"github.com/promptobjects/core/internal/poerr"
)

// Registry holds configured Providers by name, letting an environment
// switch its active LLM at runtime (the switch_llm command). Adapters
// are built explicitly from environment variables at boot.
type Registry struct {
	mu      sync.RWMutex
	items   map[string]Provider
	active  string
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Provider)}
}

// Register adds or replaces a named provider. The first provider
// registered becomes active by default.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[name] = p
	if r.active == "" {
		r.active = name
	}
}

// SetActive switches the active provider; fails if name is unknown.
func (r *Registry) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[name]; !ok {
		return poerr.New(poerr.KindNotFound, "llm provider not registered: "+name)
	}
	r.active = name
	return nil
}

// Active returns the currently active provider, or (nil, false) if
// none is registered.
func (r *Registry) Active() (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == "" {
		return nil, false
	}
	p, ok := r.items[r.active]
	return p, ok
}

// Get returns a specific named provider.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.items[name]
	return p, ok
}

// Names lists registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.items))
	for n := range r.items {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
