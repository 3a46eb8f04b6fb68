// Package mock provides a test double for [literature.Backend].
package mock

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/medsift/pkg/provider/literature"
	"github.com/MrWong99/medsift/pkg/types"
)

var _ literature.Backend = (*Backend)(nil)

// Backend is a mock implementation of [literature.Backend].
type Backend struct {
	mu sync.Mutex

	// ID is returned by Name.
	ID string

	// Papers is returned from every successful Search.
	Papers []types.Paper

	// Err, when non-nil, is returned from every Search.
	Err error

	// Delay is slept (or cut short by ctx) before answering.
	Delay time.Duration

	calls [][]string
}

// Name implements [literature.Backend].
func (m *Backend) Name() string { return m.ID }

// Search records the query and returns the configured papers.
func (m *Backend) Search(ctx context.Context, query []string) ([]types.Paper, error) {
	m.mu.Lock()
	m.calls = append(m.calls, slices.Clone(query))
	papers, err, delay := slices.Clone(m.Papers), m.Err, m.Delay
	m.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return papers, nil
}

// Calls returns a copy of every query received.
func (m *Backend) Calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}
