package resilience

import (
	"context"

	"github.com/MrWong99/medsift/pkg/provider/phi"
	"github.com/MrWong99/medsift/pkg/types"
)

// RedactorFallback is a [phi.Redactor] that fails over across several
// redaction backends, typically a Presidio analyzer backed by the built-in
// regex recognizers.
type RedactorFallback struct {
	group *FallbackGroup[phi.Redactor]
}

var _ phi.Redactor = (*RedactorFallback)(nil)

// NewRedactorFallback creates a RedactorFallback preferring primary.
func NewRedactorFallback(primary phi.Redactor, primaryName string, cfg FallbackConfig) *RedactorFallback {
	return &RedactorFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another redactor.
func (f *RedactorFallback) AddFallback(name string, r phi.Redactor) {
	f.group.AddFallback(name, r)
}

// Redact runs on the first healthy redactor. Blank text never reaches a
// backend.
func (f *RedactorFallback) Redact(ctx context.Context, text string) (types.Redaction, error) {
	if phi.Blank(text) {
		return phi.Empty(text), nil
	}
	return ExecuteWithResult(ctx, f.group, func(r phi.Redactor) (types.Redaction, error) {
		return r.Redact(ctx, text)
	})
}
