// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

package llm

import (
	"fmt"
	"sort"
	"sync"
)

// ProviderInfo is the registry's metadata view of a backend.
type ProviderInfo struct {
	Name                 string       `json:"name"`
	Tier                 ProviderTier `json:"tier"`
	Model                string       `json:"model"`
	CostPerMillionTokens float64      `json:"cost_per_million_tokens"`

	// Available is derived once at startup from credential presence.
	// A provider named in the routing policy but missing credentials is
	// registered unavailable so policy validation can still see it.
	Available bool `json:"available"`
}

type registryEntry struct {
	info     ProviderInfo
	provider Provider // nil when unavailable
}

// Registry holds the process-wide provider set. It is populated during
// bootstrap and read-only afterwards; reads are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*registryEntry),
	}
}

// Register adds an available provider. The entry's metadata is taken from
// the provider itself.
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return fmt.Errorf("cannot register nil provider")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}

	r.entries[name] = &registryEntry{
		info: ProviderInfo{
			Name:                 name,
			Tier:                 p.Tier(),
			Model:                p.Model(),
			CostPerMillionTokens: p.CostPerMillionTokens(),
			Available:            true,
		},
		provider: p,
	}
	return nil
}

// RegisterUnavailable records a configured provider whose credentials were
// absent at startup. It participates in policy validation but is filtered
// out of every candidate list.
func (r *Registry) RegisterUnavailable(info ProviderInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[info.Name]; exists {
		return fmt.Errorf("provider %q already registered", info.Name)
	}

	info.Available = false
	r.entries[info.Name] = &registryEntry{info: info}
	return nil
}

// Get returns an available provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not registered", name)
	}
	if !entry.info.Available {
		return nil, fmt.Errorf("provider %q is unavailable (no credentials)", name)
	}
	return entry.provider, nil
}

// Exists reports whether a provider name is registered, available or not.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[name]
	return ok
}

// IsAvailable reports whether a provider is registered and available.
func (r *Registry) IsAvailable(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	return ok && entry.info.Available
}

// Info returns the metadata for a provider.
func (r *Registry) Info(name string) (ProviderInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	if !ok {
		return ProviderInfo{}, fmt.Errorf("provider %q not registered", name)
	}
	return entry.info, nil
}

// Rate returns the USD cost per million tokens for a provider, or 0 when
// the provider is unknown. The cost governor must never fail, so unknown
// providers are simply free from its point of view.
func (r *Registry) Rate(name string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, ok := r.entries[name]; ok {
		return entry.info.CostPerMillionTokens
	}
	return 0
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListAvailable returns the names of all available providers, sorted.
func (r *Registry) ListAvailable() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name, entry := range r.entries {
		if entry.info.Available {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Infos returns metadata for every registered provider, sorted by name.
func (r *Registry) Infos() []ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ProviderInfo, 0, len(r.entries))
	for _, entry := range r.entries {
		infos = append(infos, entry.info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
