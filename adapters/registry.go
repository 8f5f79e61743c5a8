package adapters

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/brettbedarf/isofs"
)

// Registry ties source "type" keys to the providers that build them.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]isofs.SourceProvider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]isofs.SourceProvider)}
}

// Register adds provider under sourceType. The first registration for a
// type wins.
func (r *Registry) Register(sourceType string, provider isofs.SourceProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[sourceType]; ok {
		return
	}
	r.providers[sourceType] = provider
}

// GetProvider returns the provider registered for sourceType.
func (r *Registry) GetProvider(sourceType string) (isofs.SourceProvider, error) {
	r.mu.RLock()
	p, ok := r.providers[sourceType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no provider for source type %q", sourceType)
	}
	return p, nil
}

// NewSource picks the right provider based on the "type" field of raw.
// All expected source types should be registered before calling this function.
func (r *Registry) NewSource(raw []byte) (isofs.ContentSource, error) {
	var meta struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	if meta.Type == "" {
		return nil, fmt.Errorf("source is missing its type field")
	}
	p, err := r.GetProvider(meta.Type)
	if err != nil {
		return nil, err
	}
	return p.NewSource(raw)
}
