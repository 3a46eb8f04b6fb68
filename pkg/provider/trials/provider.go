// Package trials defines the Finder interface for clinical-trial registries.
//
// A finder searches for recruiting studies that match a visit's conditions
// and drugs. Implementations must be safe for concurrent use and honour
// context cancellation.
package trials

import (
	"context"
	"strings"

	"github.com/MrWong99/medsift/pkg/types"
)

// Finder is the abstraction over a clinical-trial registry.
type Finder interface {
	// Name returns the stable registry identifier.
	Name() string

	// Find returns recruiting trials for the given conditions and drugs. With
	// neither it returns nil, nil.
	Find(ctx context.Context, conditions, drugs []string) ([]types.Trial, error)
}

// Explain describes why t matches. Conditions and drugs that occur,
// case-insensitively, inside one of the trial's conditions or interventions
// are named; otherwise every search term is listed.
func Explain(t types.Trial, conditions, drugs []string) string {
	matchedConds := matching(conditions, t.Conditions)
	matchedDrugs := matching(drugs, t.Interventions)

	var parts []string
	if len(matchedConds) > 0 {
		parts = append(parts, "Matches condition(s): "+strings.Join(matchedConds, ", "))
	}
	if len(matchedDrugs) > 0 {
		parts = append(parts, "Matches drug(s): "+strings.Join(matchedDrugs, ", "))
	}
	if len(parts) == 0 {
		terms := append(append([]string(nil), conditions...), drugs...)
		parts = append(parts, "Related to search terms: "+strings.Join(terms, ", "))
	}
	return strings.Join(parts, "; ")
}

func matching(terms, in []string) []string {
	var out []string
	for _, term := range terms {
		lt := strings.ToLower(term)
		for _, s := range in {
			if strings.Contains(strings.ToLower(s), lt) {
				out = append(out, term)
				break
			}
		}
	}
	return out
}
