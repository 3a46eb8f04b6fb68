package resilience

import (
	"context"

	"github.com/MrWong99/medsift/pkg/provider/trials"
	"github.com/MrWong99/medsift/pkg/types"
)

// TrialFinder puts a [CircuitBreaker] in front of a trial registry so an
// outage fails fast with [ErrCircuitOpen].
type TrialFinder struct {
	inner   trials.Finder
	breaker *CircuitBreaker
}

var _ trials.Finder = (*TrialFinder)(nil)

// NewTrialFinder wraps f. The breaker is named after f unless cfg.Name is
// set.
func NewTrialFinder(f trials.Finder, cfg CircuitBreakerConfig) *TrialFinder {
	if cfg.Name == "" {
		cfg.Name = f.Name()
	}
	return &TrialFinder{inner: f, breaker: NewCircuitBreaker(cfg)}
}

// Name returns the wrapped finder's name.
func (t *TrialFinder) Name() string { return t.inner.Name() }

// State returns the breaker state.
func (t *TrialFinder) State() State { return t.breaker.State() }

// Find forwards to the wrapped finder unless the breaker is open.
func (t *TrialFinder) Find(ctx context.Context, conditions, drugs []string) ([]types.Trial, error) {
	var out []types.Trial
	err := t.breaker.Execute(func() error {
		var err error
		out, err = t.inner.Find(ctx, conditions, drugs)
		return err
	})
	return out, err
}
