package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/medsift/pkg/provider/literature"
	"github.com/MrWong99/medsift/pkg/provider/llm"
	"github.com/MrWong99/medsift/pkg/provider/phi"
	"github.com/MrWong99/medsift/pkg/provider/stt"
	"github.com/MrWong99/medsift/pkg/provider/trials"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	stt        map[string]func(ProviderEntry) (stt.Transcriber, error)
	redactor   map[string]func(ProviderEntry) (phi.Redactor, error)
	llm        map[string]func(ProviderEntry) (llm.Provider, error)
	literature map[string]func(ProviderEntry) (literature.Backend, error)
	trials     map[string]func(ProviderEntry) (trials.Finder, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:        make(map[string]func(ProviderEntry) (stt.Transcriber, error)),
		redactor:   make(map[string]func(ProviderEntry) (phi.Redactor, error)),
		llm:        make(map[string]func(ProviderEntry) (llm.Provider, error)),
		literature: make(map[string]func(ProviderEntry) (literature.Backend, error)),
		trials:     make(map[string]func(ProviderEntry) (trials.Finder, error)),
	}
}

// RegisterSTT registers a transcriber factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Transcriber, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterRedactor registers a PHI redactor factory under name.
func (r *Registry) RegisterRedactor(name string, factory func(ProviderEntry) (phi.Redactor, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redactor[name] = factory
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterLiterature registers a literature backend factory under name.
func (r *Registry) RegisterLiterature(name string, factory func(ProviderEntry) (literature.Backend, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literature[name] = factory
}

// RegisterTrials registers a clinical-trial finder factory under name.
func (r *Registry) RegisterTrials(name string, factory func(ProviderEntry) (trials.Finder, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trials[name] = factory
}

// CreateSTT instantiates a transcriber using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if there is none.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Transcriber, error) {
	return create(r, r.stt, "stt", entry)
}

// CreateRedactor instantiates a PHI redactor.
func (r *Registry) CreateRedactor(entry ProviderEntry) (phi.Redactor, error) {
	return create(r, r.redactor, "redactor", entry)
}

// CreateLLM instantiates an LLM provider.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(r, r.llm, "llm", entry)
}

// CreateLiterature instantiates a literature backend.
func (r *Registry) CreateLiterature(entry ProviderEntry) (literature.Backend, error) {
	return create(r, r.literature, "literature", entry)
}

// CreateTrials instantiates a clinical-trial finder.
func (r *Registry) CreateTrials(entry ProviderEntry) (trials.Finder, error) {
	return create(r, r.trials, "trials", entry)
}

func create[T any](r *Registry, factories map[string]func(ProviderEntry) (T, error), kind string, entry ProviderEntry) (T, error) {
	r.mu.RLock()
	factory, ok := factories[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return factory(entry)
}
