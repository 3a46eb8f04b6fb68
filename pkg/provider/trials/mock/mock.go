// Package mock provides a test double for [trials.Finder].
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/medsift/pkg/provider/trials"
	"github.com/MrWong99/medsift/pkg/types"
)

var _ trials.Finder = (*Finder)(nil)

// Call records the arguments of one Find.
type Call struct {
	Conditions []string
	Drugs      []string
}

// Finder is a mock implementation of [trials.Finder].
type Finder struct {
	mu sync.Mutex

	// ID is returned by Name.
	ID string

	// Trials is returned from every successful Find.
	Trials []types.Trial

	// Err, when non-nil, is returned from every Find.
	Err error

	calls []Call
}

// Name implements [trials.Finder].
func (m *Finder) Name() string { return m.ID }

// Find records the call and returns the configured trials.
func (m *Finder) Find(_ context.Context, conditions, drugs []string) ([]types.Trial, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Conditions: slices.Clone(conditions), Drugs: slices.Clone(drugs)})
	if m.Err != nil {
		return nil, m.Err
	}
	return slices.Clone(m.Trials), nil
}

// SetErr replaces Err for subsequent calls.
func (m *Finder) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

// Calls returns a copy of every call received.
func (m *Finder) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}
