package literature

import (
	"strings"

	"github.com/MrWong99/medsift/pkg/types"
)

// BuildQuery assembles the ordered search terms for a ranking request.
//
// Boosted keywords whose score is at least minBoost come first, then
// conditions, drugs and keywords. Terms are trimmed and deduplicated
// case-insensitively keeping the first spelling, then truncated to maxTerms.
// When conditions were given without drugs and no term mentions the
// qualifier, the qualifier is appended after truncation.
func BuildQuery(boosted []types.BoostedKeyword, conditions, drugs, keywords []string, minBoost float64, maxTerms int, qualifier string) []string {
	var candidates []string
	for _, bk := range boosted {
		if bk.BoostScore >= minBoost {
			candidates = append(candidates, bk.Keyword)
		}
	}
	candidates = append(candidates, conditions...)
	candidates = append(candidates, drugs...)
	candidates = append(candidates, keywords...)

	seen := make(map[string]struct{}, len(candidates))
	terms := make([]string, 0, min(len(candidates), maxTerms))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		key := strings.ToLower(c)
		if c == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		terms = append(terms, c)
		if maxTerms > 0 && len(terms) == maxTerms {
			break
		}
	}
	if len(terms) == 0 {
		return nil
	}

	if qualifier != "" && hasNonBlank(conditions) && !hasNonBlank(drugs) {
		q := strings.ToLower(qualifier)
		mentioned := false
		for _, t := range terms {
			if strings.Contains(strings.ToLower(t), q) {
				mentioned = true
				break
			}
		}
		if !mentioned {
			terms = append(terms, qualifier)
		}
	}
	return terms
}

func hasNonBlank(ss []string) bool {
	for _, s := range ss {
		if strings.TrimSpace(s) != "" {
			return true
		}
	}
	return false
}

// Explain says why paper matched. Conditions and drugs are matched as
// case-insensitive substrings of the title and abstract snippet.
func Explain(p types.Paper, conditions, drugs []string) string {
	text := strings.ToLower(p.Title + " " + p.AbstractSnippet)
	var matched []string
	for _, c := range conditions {
		if c = strings.TrimSpace(c); c != "" && strings.Contains(text, strings.ToLower(c)) {
			matched = append(matched, "condition '"+c+"'")
		}
	}
	for _, d := range drugs {
		if d = strings.TrimSpace(d); d != "" && strings.Contains(text, strings.ToLower(d)) {
			matched = append(matched, "medication '"+d+"'")
		}
	}
	reason := "Related to visit topics based on search query"
	if len(matched) > 0 {
		reason = "Matches extracted " + strings.Join(matched, ", ")
	}
	return "[" + p.Source.DisplayName() + "] " + reason
}

// TitleKey normalises a title for deduplication.
func TitleKey(title string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(title)), ".")
}
