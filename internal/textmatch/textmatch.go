// Package textmatch provides the lexical matching primitives used to decide
// whether an extracted claim is supported by a transcript.
//
// Three operations are exported:
//
//   - [Stem] strips a single common English suffix so that inflected forms
//     ("immobilized", "immobilizing") collapse onto a shared root.
//   - [WordOverlap] measures the fraction of a text's words that appear in a
//     corpus, optionally after expanding both sides with a small table of
//     clinical abbreviations and synonyms.
//   - [FuzzySubstring] finds the best approximate occurrence of a needle in a
//     haystack using a sampled sliding window scored by normalised
//     Levenshtein similarity.
//
// All functions are pure, safe for concurrent use, and never panic. Empty
// inputs score 0.
package textmatch

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// suffixes is checked in order; the first match that leaves at least four
// characters behind wins.
var suffixes = []string{
	"ation", "ment", "ized", "izing", "tion", "sion", "ing", "ness", "ity",
	"ous", "ive", "able", "ible", "ally", "ful", "less", "er", "ed", "ly",
	"es", "s",
}

const minStemLen = 4

// earlyExitRatio stops the window scan once a window is this similar.
const earlyExitRatio = 0.9

// wordRE matches maximal runs of Unicode letters, digits and underscores.
var wordRE = regexp.MustCompile(`[\p{L}\p{N}_]{3,}`)

// synonyms maps a lower-cased term to its preferred alternative. Pairs that
// should match in both directions are listed twice.
var synonyms = map[string]string{
	"rehab":          "rehabilitation",
	"rehabilitation": "rehab",
	"exam":           "examination",
	"examination":    "exam",
	"xray":           "x-ray",
	"x-ray":          "xray",
	"bp":             "blood pressure",
	"hr":             "heart rate",
	"immobilizer":    "immobilized",
	"immobilized":    "immobilizer",
	"immobilization": "immobilized",
	"meds":           "medications",
	"medications":    "meds",
	"htn":            "hypertension",
	"dm":             "diabetes",
	"sob":            "shortness of breath",
}

// Stem lower-cases word and removes at most one suffix from the fixed
// precedence list. Words too short to leave a four-character root are
// returned lower-cased but otherwise unchanged.
func Stem(word string) string {
	w := strings.ToLower(word)
	for _, suf := range suffixes {
		if utf8.RuneCountInString(w) >= len(suf)+minStemLen && strings.HasSuffix(w, suf) {
			return w[:len(w)-len(suf)]
		}
	}
	return w
}

// Synonym returns the table entry for term and whether one exists.
func Synonym(term string) (string, bool) {
	s, ok := synonyms[strings.ToLower(term)]
	return s, ok
}

// Words tokenises text into the set of distinct lower-cased words of at least
// three letters, digits or underscores. Accented letters are part of a word.
func Words(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range wordRE.FindAllString(text, -1) {
		out[strings.ToLower(w)] = struct{}{}
	}
	return out
}

// expand returns a copy of words with every known synonym and that synonym's
// stem added.
func expand(words map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for w := range words {
		out[w] = struct{}{}
	}
	for w := range words {
		if syn, ok := synonyms[w]; ok {
			out[syn] = struct{}{}
			out[Stem(syn)] = struct{}{}
		}
	}
	return out
}

func intersect(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}

// WordOverlap returns the fraction of the distinct words of text that also
// occur in corpus. The better of the direct and the synonym-expanded
// intersection is used. The result is in [0,1].
func WordOverlap(text, corpus string) float64 {
	if text == "" || corpus == "" {
		return 0
	}
	textWords := Words(text)
	if len(textWords) == 0 {
		return 0
	}
	corpusWords := Words(corpus)

	direct := intersect(textWords, corpusWords)
	expanded := intersect(expand(textWords), expand(corpusWords))

	best := max(direct, expanded)
	return min(1, float64(best)/float64(len(textWords)))
}

// FuzzySubstring returns how well needle occurs somewhere inside haystack,
// case-insensitively. Exact containment scores 1. Otherwise a window the
// length of needle slides over haystack with a stride of a quarter of that
// length and the best normalised edit similarity is returned. When needle is
// longer than haystack the score falls back to [WordOverlap].
func FuzzySubstring(needle, haystack string) float64 {
	if needle == "" || haystack == "" {
		return 0
	}
	n := strings.TrimSpace(strings.ToLower(needle))
	h := strings.ToLower(haystack)
	if n == "" {
		return 0
	}
	if strings.Contains(h, n) {
		return 1
	}

	nr := []rune(n)
	hr := []rune(h)
	window := len(nr)
	if window > len(hr) {
		return WordOverlap(needle, haystack)
	}

	step := max(1, window/4)
	best := 0.0
	for i := 0; i+window <= len(hr); i += step {
		r := Similarity(n, string(hr[i:i+window]))
		if r > best {
			best = r
			if r > earlyExitRatio {
				break
			}
		}
	}
	return best
}

// Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)), measured in
// runes. Two empty strings are identical.
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	d := matchr.Levenshtein(a, b)
	return 1 - float64(d)/float64(longest)
}
