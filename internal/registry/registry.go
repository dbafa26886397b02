// Package registry implements the capability registry: a name-keyed
// map of every Capability the runtime knows about, with concurrent-safe
// reads and serialized mutation.
package registry

import (
	"sort"
	"sync"

	"github.com/promptobjects/core/internal/capability"
	"github.com/promptobjects/core/internal/poerr"
)

// Registry holds every capability by name.
type Registry struct {
	mu    sync.RWMutex
	items map[string]capability.Capability
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{items: make(map[string]capability.Capability)}
}

// Register adds a capability. It fails if the name is already taken by
// a capability of a *different* kind (disjoint namespaces), and also
// fails on an exact duplicate; PO hot-reload goes through ReplacePO
// instead.
func (r *Registry) Register(c capability.Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(c)
}

func (r *Registry) registerLocked(c capability.Capability) error {
	if c.Name() == "" {
		return poerr.New(poerr.KindInvalidInput, "capability name cannot be empty")
	}
	if existing, ok := r.items[c.Name()]; ok {
		if existing.Kind() != c.Kind() {
			return poerr.New(poerr.KindConfig,
				"capability name '"+c.Name()+"' already registered as "+string(existing.Kind()))
		}
		return poerr.New(poerr.KindConfig, "capability '"+c.Name()+"' already registered")
	}
	r.items[c.Name()] = c
	return nil
}

// Get returns the capability for name, or (nil, false).
func (r *Registry) Get(name string) (capability.Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.items[name]
	return c, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List enumerates registered capabilities, optionally filtered by kind.
// An empty kind returns everything. Results are sorted by name for
// deterministic listings (universal capabilities' list_capabilities).
func (r *Registry) List(kind capability.Kind) []capability.Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]capability.Capability, 0, len(r.items))
	for _, c := range r.items {
		if kind == "" || c.Kind() == kind {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Remove deletes a capability by name. Used by delete_primitive and
// remove_capability-adjacent cleanup; returns an error if absent.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[name]; !ok {
		return poerr.New(poerr.KindNotFound, "capability '"+name+"' not found")
	}
	delete(r.items, name)
	return nil
}

// ReplacePO atomically swaps the capability registered under name with
// a newly-loaded PO, used by reload_po and modify_prompt. Readers never
// observe a half-updated entry because the map write itself happens
// under the lock, and a PO's sessions live in the store, not in this
// struct.
func (r *Registry) ReplacePO(name string, po capability.Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.items[name]; ok && existing.Kind() != capability.KindPromptObj {
		return poerr.New(poerr.KindConfig, "'"+name+"' is not a prompt object")
	}
	if po.Kind() != capability.KindPromptObj {
		return poerr.New(poerr.KindInvalidInput, "ReplacePO requires a prompt-object capability")
	}
	r.items[name] = po
	return nil
}

// Descriptors builds the LLM-facing tool descriptor list for a set of
// names, resolving through the registry so runtime additions are
// visible immediately. Unknown names are silently skipped; resolution
// failures surface later, at dispatch time, as a structured
// tool-result.
func (r *Registry) Descriptors(names []string) []capability.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]capability.Descriptor, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		if c, ok := r.items[n]; ok {
			out = append(out, capability.ToDescriptor(c))
		}
	}
	return out
}

// Snapshot returns a cheap, point-in-time view of all capability names
// by kind, used by list_capabilities/list_primitives filters.
func (r *Registry) Snapshot() map[capability.Kind][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := map[capability.Kind][]string{}
	for _, c := range r.items {
		out[c.Kind()] = append(out[c.Kind()], c.Name())
	}
	for k := range out {
		sort.Strings(out[k])
	}
	return out
}
