package risk

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const snippetContext = 40

// match is one keyword hit with its surrounding context.
type match struct {
	keyword string
	snippet string
}

// lowerASCII lower-cases ASCII letters only so byte offsets into the result
// stay valid for the input.
func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// scanner finds the first case-insensitive occurrence of keywords in a fixed
// corpus.
type scanner struct {
	text  string
	lower string
}

func newScanner(text string) scanner {
	return scanner{text: text, lower: lowerASCII(text)}
}

// find returns the first occurrence of keyword and a snippet of up to 40
// bytes of context on either side, with "..." marking truncation.
func (s scanner) find(keyword string) (match, bool) {
	kw := lowerASCII(keyword)
	if kw == "" {
		return match{}, false
	}
	idx := strings.Index(s.lower, kw)
	if idx < 0 {
		return match{}, false
	}
	return match{keyword: keyword, snippet: snippet(s.text, idx, idx+len(kw))}, true
}

// findAll returns a match for every keyword present, in keyword order.
func (s scanner) findAll(keywords []string) []match {
	var out []match
	for _, kw := range keywords {
		if m, ok := s.find(kw); ok {
			out = append(out, m)
		}
	}
	return out
}

func snippet(text string, from, to int) string {
	start := max(0, from-snippetContext)
	end := min(len(text), to+snippetContext)
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	out := strings.TrimSpace(text[start:end])
	if start > 0 {
		out = "..." + out
	}
	if end < len(text) {
		out += "..."
	}
	return out
}

// wordMatcher matches any of a list of terms as whole words.
type wordMatcher struct {
	re *regexp.Regexp
}

func newWordMatcher(terms []string) wordMatcher {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = regexp.QuoteMeta(strings.ToLower(t))
	}
	return wordMatcher{re: regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)}
}

// first returns the first term found in text, or "" when none matches.
func (w wordMatcher) first(text string) string {
	return w.re.FindString(strings.ToLower(text))
}
