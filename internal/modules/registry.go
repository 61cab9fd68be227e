package modules

import (
	"fmt"
	"os/exec"
	"sort"
	"sync"
)

// Descriptor is the externally visible summary of one registered module.
type Descriptor struct {
	Name      string `json:"name"`
	Tool      string `json:"tool,omitempty"`
	Available bool   `json:"available"`
}

// Registry is the closed table of modules, built once at process start.
// It is read-only afterward except for tool availability re-probing.
type Registry struct {
	modules map[string]Module
	order   []string

	mu        sync.RWMutex
	available map[string]bool
}

// NewRegistry builds a registry from an explicit module set and runs
// an initial availability probe.
func NewRegistry(mods ...Module) (*Registry, error) {
	r := &Registry{
		modules:   make(map[string]Module, len(mods)),
		available: make(map[string]bool, len(mods)),
	}
	for _, m := range mods {
		name := m.Name()
		if name == "" {
			return nil, fmt.Errorf("module with empty name")
		}
		if _, exists := r.modules[name]; exists {
			return nil, fmt.Errorf("duplicate module name: %s", name)
		}
		r.modules[name] = m
		r.order = append(r.order, name)
	}
	sort.Strings(r.order)
	r.Probe()
	return r, nil
}

// Get returns a module by name.
func (r *Registry) Get(name string) (Module, bool) {
	m, ok := r.modules[name]
	return m, ok
}

// List returns descriptors for every registered module, sorted by name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		m := r.modules[name]
		out = append(out, Descriptor{
			Name:      name,
			Tool:      m.Tool(),
			Available: r.available[name],
		})
	}
	return out
}

// Available reports whether a module's external tool requirement is
// currently met. Modules without a tool are always available.
func (r *Registry) Available(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.available[name]
}

// Probe re-checks tool availability for every module.
func (r *Registry) Probe() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, m := range r.modules {
		tool := m.Tool()
		if tool == "" {
			r.available[name] = true
			continue
		}
		_, err := exec.LookPath(tool)
		r.available[name] = err == nil
	}
}

// Builtin returns the module set compiled into this binary.
func Builtin() []Module {
	return []Module{
		&Inventory{},
		&Strings{},
		&Verify{},
		&Exif{},
	}
}
