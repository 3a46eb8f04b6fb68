package resilience

import (
	"context"

	litprovider "github.com/MrWong99/medsift/pkg/provider/literature"
	"github.com/MrWong99/medsift/pkg/types"
)

// Backend puts a [CircuitBreaker] in front of a literature backend. The
// ranker merges whatever backends answer, so an open breaker simply makes
// that source drop out quickly instead of waiting for its timeout.
type Backend struct {
	inner   litprovider.Backend
	breaker *CircuitBreaker
}

var _ litprovider.Backend = (*Backend)(nil)

// NewBackend wraps b. The breaker is named after b unless cfg.Name is set.
func NewBackend(b litprovider.Backend, cfg CircuitBreakerConfig) *Backend {
	if cfg.Name == "" {
		cfg.Name = b.Name()
	}
	return &Backend{inner: b, breaker: NewCircuitBreaker(cfg)}
}

// Name returns the wrapped backend's name so source priority is unchanged.
func (b *Backend) Name() string { return b.inner.Name() }

// State returns the breaker state.
func (b *Backend) State() State { return b.breaker.State() }

// Search forwards to the wrapped backend unless the breaker is open.
func (b *Backend) Search(ctx context.Context, query []string) ([]types.Paper, error) {
	var papers []types.Paper
	err := b.breaker.Execute(func() error {
		var err error
		papers, err = b.inner.Search(ctx, query)
		return err
	})
	return papers, err
}
