// Package phi defines the Redactor interface for protected-health-information
// scrubbing and the tag-substitution logic shared by every implementation.
//
// A redactor replaces each detected entity with an indexed tag such as
// "[PERSON_1]" or "[PHONE_NUMBER_2]". Indices count per entity type in order
// of appearance. Redaction must be idempotent: running an already redacted
// text through the same redactor returns it unchanged, so the session pipeline
// can redact per segment and again over the joined transcript.
//
// Implementations must be safe for concurrent use.
package phi

import (
	"context"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/MrWong99/medsift/pkg/types"
)

// Redactor is the abstraction over any PHI detection backend.
type Redactor interface {
	// Redact returns text with every detected entity replaced by an indexed
	// tag, together with per-type counts. Blank text is returned unchanged with
	// an empty count map.
	Redact(ctx context.Context, text string) (types.Redaction, error)
}

// Entity is one detected PHI span. Start and End are byte offsets into the
// analysed text, End exclusive.
type Entity struct {
	Type  string
	Start int
	End   int
	Score float64
}

// tagPattern matches tags produced by [Apply]. Entities overlapping an existing
// tag are ignored, which is what makes repeated redaction a no-op.
var tagPattern = regexp.MustCompile(`\[[A-Z][A-Z_]*_\d+\]`)

// IsTag reports whether s is exactly one redaction tag.
func IsTag(s string) bool {
	loc := tagPattern.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

// Blank reports whether text needs no analysis at all.
func Blank(text string) bool {
	return strings.TrimSpace(text) == ""
}

// Empty returns the result for text that contains nothing to redact.
func Empty(text string) types.Redaction {
	return types.Redaction{Text: text, EntityCounts: map[string]int{}}
}

// Apply replaces entities in text with indexed tags.
//
// Out-of-range spans are dropped. Overlapping spans are resolved in favour of
// the higher score, then the longer span, then the earlier one. Spans that
// touch an existing tag are skipped. Tag indices continue after the highest
// index already present in text for that type so re-redacting a partially
// redacted transcript never reuses a tag.
func Apply(text string, entities []Entity) types.Redaction {
	if len(entities) == 0 {
		return Empty(text)
	}

	existing := tagPattern.FindAllStringIndex(text, -1)
	next := make(map[string]int)
	for _, loc := range existing {
		typ, idx := splitTag(text[loc[0]:loc[1]])
		if idx > next[typ] {
			next[typ] = idx
		}
	}

	candidates := make([]Entity, 0, len(entities))
	for _, e := range entities {
		if e.Start < 0 || e.End > len(text) || e.Start >= e.End || e.Type == "" {
			continue
		}
		if overlapsAny(e, existing) {
			continue
		}
		candidates = append(candidates, e)
	}
	slices.SortStableFunc(candidates, func(a, b Entity) int {
		switch {
		case a.Score != b.Score:
			if a.Score > b.Score {
				return -1
			}
			return 1
		case a.End-a.Start != b.End-b.Start:
			return (b.End - b.Start) - (a.End - a.Start)
		default:
			return a.Start - b.Start
		}
	})

	var kept []Entity
	for _, c := range candidates {
		if !slices.ContainsFunc(kept, func(k Entity) bool { return c.Start < k.End && k.Start < c.End }) {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return Empty(text)
	}
	slices.SortFunc(kept, func(a, b Entity) int { return a.Start - b.Start })

	counts := make(map[string]int)
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, e := range kept {
		next[e.Type]++
		counts[e.Type]++
		b.WriteString(text[last:e.Start])
		b.WriteString("[" + e.Type + "_" + strconv.Itoa(next[e.Type]) + "]")
		last = e.End
	}
	b.WriteString(text[last:])
	return types.Redaction{Text: b.String(), EntityCounts: counts}
}

func overlapsAny(e Entity, spans [][]int) bool {
	for _, s := range spans {
		if e.Start < s[1] && s[0] < e.End {
			return true
		}
	}
	return false
}

func splitTag(tag string) (string, int) {
	inner := tag[1 : len(tag)-1]
	i := strings.LastIndexByte(inner, '_')
	n, _ := strconv.Atoi(inner[i+1:])
	return inner[:i], n
}
