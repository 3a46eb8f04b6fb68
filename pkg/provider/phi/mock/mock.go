// Package mock provides a test double for [phi.Redactor].
//
// By default the mock returns text unchanged. Terms maps literal substrings to
// entity types; every occurrence is replaced through [phi.Apply] so tags and
// counts look like a real redactor's.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/MrWong99/medsift/pkg/provider/phi"
	"github.com/MrWong99/medsift/pkg/types"
)

var _ phi.Redactor = (*Redactor)(nil)

// Redactor is a mock implementation of [phi.Redactor].
type Redactor struct {
	mu sync.Mutex

	// Terms maps a literal substring to the entity type it is redacted as.
	Terms map[string]string

	// Err, when non-nil, is returned from every call.
	Err error

	// FailAfter, when > 0, makes every call after the first FailAfter calls
	// return Err.
	FailAfter int

	calls []string
}

// Redact records the call and redacts the configured terms.
func (m *Redactor) Redact(_ context.Context, text string) (types.Redaction, error) {
	m.mu.Lock()
	m.calls = append(m.calls, text)
	n := len(m.calls)
	err, failAfter := m.Err, m.FailAfter
	m.mu.Unlock()

	if err != nil && (failAfter == 0 || n > failAfter) {
		return types.Redaction{}, err
	}
	if phi.Blank(text) {
		return phi.Empty(text), nil
	}

	var entities []phi.Entity
	for term, typ := range m.Terms {
		for off := 0; ; {
			i := strings.Index(text[off:], term)
			if i < 0 {
				break
			}
			entities = append(entities, phi.Entity{Type: typ, Start: off + i, End: off + i + len(term), Score: 1})
			off += i + len(term)
		}
	}
	return phi.Apply(text, entities), nil
}

// Calls returns a copy of the texts passed to Redact.
func (m *Redactor) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}
