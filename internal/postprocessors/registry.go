package postprocessors

import (
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driven"
)

// BuilderFunc creates a PostProcessor from the chunker settings.
type BuilderFunc func(settings domain.ChunkerSettings) (driven.PostProcessor, error)

// Registry maps processor names to their builders so a pipeline can be
// assembled by name.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]BuilderFunc
}

// NewRegistry creates an empty processor registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]BuilderFunc)}
}

// Register adds a builder. Names must be unique and match the processor's
// Name().
func (r *Registry) Register(name string, builder BuilderFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.builders[name]; exists {
		return fmt.Errorf("processor %q already registered", name)
	}
	r.builders[name] = builder
	return nil
}

// Build creates the named processor.
func (r *Registry) Build(name string, settings domain.ChunkerSettings) (driven.PostProcessor, error) {
	r.mu.RLock()
	builder, ok := r.builders[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: processor %q", domain.ErrUnsupportedType, name)
	}
	return builder(settings)
}

// Pipeline builds the named processors, in order, into a pipeline.
func (r *Registry) Pipeline(settings domain.ChunkerSettings, names ...string) (*Pipeline, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: pipeline needs at least one processor", domain.ErrInvalidInput)
	}
	p := NewPipeline()
	for _, name := range names {
		processor, err := r.Build(name, settings)
		if err != nil {
			return nil, err
		}
		p.Add(processor)
	}
	return p, nil
}

// Names returns the registered processor names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
