package connector

import (
	"sort"
	"sync"

	"github.com/kubev2v/esxi-migration-agent/internal/models"
	srvErrors "github.com/kubev2v/esxi-migration-agent/pkg/errors"
)

// Registry maps platforms to their connectors. The workflow resolves its
// connectors once, when platforms are selected.
type Registry struct {
	sources      map[models.Platform]SourceConnector
	destinations map[models.Platform]DestinationConnector
	mu           sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		sources:      make(map[models.Platform]SourceConnector),
		destinations: make(map[models.Platform]DestinationConnector),
	}
}

func (r *Registry) RegisterSource(c SourceConnector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[c.Platform()] = c
}

func (r *Registry) RegisterDestination(c DestinationConnector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destinations[c.Platform()] = c
}

func (r *Registry) Source(p models.Platform) (SourceConnector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.sources[p]
	if !ok {
		return nil, srvErrors.NewUnsupportedPlatformError(string(p), "source")
	}
	return c, nil
}

func (r *Registry) Destination(p models.Platform) (DestinationConnector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.destinations[p]
	if !ok {
		return nil, srvErrors.NewUnsupportedPlatformError(string(p), "destination")
	}
	return c, nil
}

// Platforms lists registered source and destination platforms, sorted.
func (r *Registry) Platforms() (sources []models.Platform, destinations []models.Platform) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for p := range r.sources {
		sources = append(sources, p)
	}
	for p := range r.destinations {
		destinations = append(destinations, p)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
	sort.Slice(destinations, func(i, j int) bool { return destinations[i] < destinations[j] })
	return sources, destinations
}
