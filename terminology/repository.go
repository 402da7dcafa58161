package terminology

import (
	"fmt"
	"sort"
	"sync"

	fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"
)

// Repository holds code system providers and value sets by canonical URL.
// Lookups ignore a trailing "|version".
type Repository struct {
	mu          sync.RWMutex
	providers   map[string]Provider
	codeSystems map[string]*CodeSystem
	valueSets   map[string]*ValueSet
}

// NewRepository creates an empty repository.
func NewRepository() *Repository {
	return &Repository{
		providers:   make(map[string]Provider),
		codeSystems: make(map[string]*CodeSystem),
		valueSets:   make(map[string]*ValueSet),
	}
}

// AddCodeSystem registers cs and a provider over its concept tree.
func (r *Repository) AddCodeSystem(cs *CodeSystem) error {
	if cs == nil || cs.URL == "" {
		return fmt.Errorf("code system has no url: %w", fhirtx.ErrMalformedURL)
	}
	p := NewCodeSystemProvider(cs)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.codeSystems[cs.URL] = cs
	r.providers[cs.URL] = p
	return nil
}

// AddProvider registers p, replacing any provider for the same system.
func (r *Repository) AddProvider(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.System()] = p
}

// AddValueSet registers vs.
func (r *Repository) AddValueSet(vs *ValueSet) error {
	if vs == nil || vs.URL == "" {
		return fmt.Errorf("value set has no url: %w", fhirtx.ErrMalformedURL)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.valueSets[vs.URL] = vs
	return nil
}

// Provider returns the provider for system.
func (r *Repository) Provider(system string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[fhirtx.StripVersion(system)]
	return p, ok
}

// CodeSystem returns the CodeSystem resource registered for url, if any.
// Providers registered without a resource are not returned.
func (r *Repository) CodeSystem(url string) (*CodeSystem, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cs, ok := r.codeSystems[fhirtx.StripVersion(url)]
	return cs, ok
}

// ValueSet returns the value set registered for url.
func (r *Repository) ValueSet(url string) (*ValueSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vs, ok := r.valueSets[fhirtx.StripVersion(url)]
	return vs, ok
}

// ValueSetURLs returns all value set URLs in sorted order.
func (r *Repository) ValueSetURLs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	urls := make([]string, 0, len(r.valueSets))
	for url := range r.valueSets {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls
}

// Systems returns all code system URLs with a provider, in sorted order.
func (r *Repository) Systems() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	urls := make([]string, 0, len(r.providers))
	for url := range r.providers {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls
}

// CountValueSets returns the number of loaded value sets.
func (r *Repository) CountValueSets() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.valueSets)
}

// CountProviders returns the number of registered code system providers.
func (r *Repository) CountProviders() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
