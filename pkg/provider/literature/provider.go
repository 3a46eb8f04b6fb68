// Package literature defines the Backend interface for published-research
// search services.
//
// A backend turns an ordered list of search terms into candidate papers. It
// does not rank, deduplicate or explain results; that is the relevance
// ranker's job, which also stamps each paper with its source.
//
// Implementations must be safe for concurrent use and honour context
// cancellation.
package literature

import (
	"context"
	"unicode/utf8"

	"github.com/MrWong99/medsift/pkg/types"
)

// MaxAuthors is the number of authors a backend keeps per paper.
const MaxAuthors = 5

// SnippetLen is the maximum abstract snippet length in characters, excluding
// the ellipsis.
const SnippetLen = 200

// Backend is the abstraction over a literature search service.
type Backend interface {
	// Name returns the stable source identifier (e.g. "pubmed"). It becomes
	// the [types.Source] of every paper the backend returns.
	Name() string

	// Search returns papers matching query, most relevant first by the
	// backend's own measure. An empty query returns nil, nil.
	Search(ctx context.Context, query []string) ([]types.Paper, error)
}

// Snippet truncates an abstract to [SnippetLen] characters, appending "..."
// when anything was cut.
func Snippet(abstract string) string {
	if utf8.RuneCountInString(abstract) <= SnippetLen {
		return abstract
	}
	n := 0
	for i := range abstract {
		if n == SnippetLen {
			return abstract[:i] + "..."
		}
		n++
	}
	return abstract
}

// CapAuthors drops empty names and keeps at most [MaxAuthors].
func CapAuthors(names []string) []string {
	out := make([]string, 0, min(len(names), MaxAuthors))
	for _, n := range names {
		if n == "" {
			continue
		}
		out = append(out, n)
		if len(out) == MaxAuthors {
			break
		}
	}
	return out
}
