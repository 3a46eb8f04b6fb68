// Package mock provides a configurable test double for [store.BoostStore].
//
// The mock records every call and returns whatever its exported fields are
// set to. It is safe for concurrent use.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/medsift/pkg/store"
	"github.com/MrWong99/medsift/pkg/types"
)

var _ store.BoostStore = (*BoostStore)(nil)

// UpdateCall records the arguments of a single UpdateBoosts invocation.
type UpdateCall struct {
	Keywords []string
	Positive bool
}

// BoostStore is a test double for [store.BoostStore].
type BoostStore struct {
	mu sync.Mutex

	// BoostedResult is returned by Boosted, filtered by minScore.
	BoostedResult []types.BoostedKeyword

	// BoostedErr is returned by Boosted when non-nil.
	BoostedErr error

	// UpdateErr is returned by UpdateBoosts when non-nil.
	UpdateErr error

	boostedCalls []float64
	updateCalls  []UpdateCall
}

// Boosted implements [store.BoostStore].
func (m *BoostStore) Boosted(_ context.Context, minScore float64) ([]types.BoostedKeyword, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boostedCalls = append(m.boostedCalls, minScore)
	if m.BoostedErr != nil {
		return nil, m.BoostedErr
	}
	var out []types.BoostedKeyword
	for _, k := range m.BoostedResult {
		if k.BoostScore >= minScore {
			out = append(out, k)
		}
	}
	return out, nil
}

// UpdateBoosts implements [store.BoostStore].
func (m *BoostStore) UpdateBoosts(_ context.Context, keywords []string, positive bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls = append(m.updateCalls, UpdateCall{Keywords: slices.Clone(keywords), Positive: positive})
	return m.UpdateErr
}

// BoostedCalls returns the minScore argument of every Boosted call.
func (m *BoostStore) BoostedCalls() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.boostedCalls)
}

// UpdateCalls returns every UpdateBoosts invocation in order.
func (m *BoostStore) UpdateCalls() []UpdateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.updateCalls)
}
