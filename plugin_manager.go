package razy

import (
	"fmt"
	"sync"
)

// Plugin is a loaded plugin entry: the callable entity plus the
// arguments its source wants passed on invocation.
type Plugin struct {
	Entity any
	Args   []any
}

// PluginSource yields plugins by name. Sources replace on-disk plugin
// folders: each owner keeps an ordered source list, and lookup walks it
// in registration order. A source returns (nil, false, nil) for names it
// does not provide; an error means the plugin exists but failed to load.
type PluginSource interface {
	Lookup(name string) (*Plugin, bool, error)
}

// MapSource is the simplest PluginSource: a fixed name -> plugin map.
type MapSource map[string]*Plugin

// Lookup implements PluginSource.
func (s MapSource) Lookup(name string) (*Plugin, bool, error) {
	p, ok := s[name]
	return p, ok, nil
}

// SourceFunc adapts a function to the PluginSource interface.
type SourceFunc func(name string) (*Plugin, bool, error)

// Lookup implements PluginSource.
func (f SourceFunc) Lookup(name string) (*Plugin, bool, error) { return f(name) }

type ownerRegistry struct {
	sources []PluginSource
	cache   map[string]*Plugin
}

// PluginManager is the centralized lazy plugin registry. Each owner (a
// logical namespace such as "Template" or "Pipeline") keeps its own
// source list and cache. The manager is process-wide mutable state:
// long-lived workers must call ResetAll at request boundaries to avoid
// cross-request leakage.
type PluginManager struct {
	mu     sync.Mutex
	owners map[string]*ownerRegistry
}

// NewPluginManager creates an empty manager.
func NewPluginManager() *PluginManager {
	return &PluginManager{owners: make(map[string]*ownerRegistry)}
}

// AddSource appends a source to the owner's search list. Insertion order
// is search priority.
func (pm *PluginManager) AddSource(owner string, source PluginSource) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	reg := pm.owner(owner)
	reg.sources = append(reg.sources, source)
}

// GetPlugin returns the named plugin for the owner. A cache hit returns
// immediately; otherwise sources are searched in order and the first hit
// is cached. A source error wraps as ErrPluginLoad; a name no source
// provides returns (nil, nil) — not found is a valid result, distinct
// from a load failure.
func (pm *PluginManager) GetPlugin(owner, name string) (*Plugin, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	reg := pm.owner(owner)
	if p, ok := reg.cache[name]; ok {
		return p, nil
	}

	for _, source := range reg.sources {
		p, ok, err := source.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s/%s: %s", ErrPluginLoad, owner, name, err)
		}
		if !ok {
			continue
		}
		reg.cache[name] = p
		return p, nil
	}
	return nil, nil
}

// Reset clears one owner's cache and sources.
func (pm *PluginManager) Reset(owner string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.owners, owner)
}

// ResetAll clears every owner's registry atomically. Required at request
// boundaries of long-lived worker processes.
func (pm *PluginManager) ResetAll() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.owners = make(map[string]*ownerRegistry)
}

// owner returns the registry for owner, creating it on first use.
// Callers must hold pm.mu.
func (pm *PluginManager) owner(owner string) *ownerRegistry {
	reg, ok := pm.owners[owner]
	if !ok {
		reg = &ownerRegistry{cache: make(map[string]*Plugin)}
		pm.owners[owner] = reg
	}
	return reg
}
