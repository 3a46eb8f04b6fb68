// Package regex provides an in-process [phi.Redactor] built from pattern
// recognizers. It needs no external service and is the default redactor.
//
// It does not detect person names or locations; deployments that need those
// should configure the presidio redactor instead.
package regex

import (
	"context"
	"regexp"
	"slices"

	"github.com/MrWong99/medsift/pkg/provider/phi"
	"github.com/MrWong99/medsift/pkg/types"
)

var _ phi.Redactor = (*Redactor)(nil)

// Recognizer detects one entity type.
type Recognizer struct {
	Type    string
	Pattern *regexp.Regexp
	Score   float64

	// Validate, when non-nil, must accept the matched text for it to count.
	Validate func(match string) bool
}

// DefaultRecognizers returns the built-in recognizer set.
func DefaultRecognizers() []Recognizer {
	return []Recognizer{
		{Type: "EMAIL_ADDRESS", Score: 0.9, Pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
		{Type: "US_SSN", Score: 0.85, Pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
		{Type: "PHONE_NUMBER", Score: 0.7, Pattern: regexp.MustCompile(`(?:\+1[\s.-]?)?(?:\(\d{3}\)\s?|\b\d{3}[\s.-])\d{3}[\s.-]\d{4}\b`)},
		{Type: "MEDICAL_RECORD_NUMBER", Score: 0.9, Pattern: regexp.MustCompile(`\bMRN(?:-|:\s*|\s+)?\d{6,10}\b`)},
		{Type: "INSURANCE_ID", Score: 0.9, Pattern: regexp.MustCompile(`\bINS(?:-|:\s*)?\d{6,12}\b`)},
		{Type: "INSURANCE_ID", Score: 0.7, Pattern: regexp.MustCompile(`(?i)\bpolicy\s*#?\s*\d{6,12}\b`)},
		{Type: "INSURANCE_ID", Score: 0.6, Pattern: regexp.MustCompile(`\b[A-Z]{3}\d{9,12}\b`)},
		{Type: "CREDIT_CARD", Score: 0.8, Pattern: regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{1,4}\b`), Validate: luhn},
		{Type: "DATE_TIME", Score: 0.6, Pattern: regexp.MustCompile(`\b(?:0?[1-9]|1[0-2])/(?:0?[1-9]|[12]\d|3[01])/(?:19|20)?\d{2}\b`)},
		{Type: "DATE_TIME", Score: 0.6, Pattern: regexp.MustCompile(`\b(?:19|20)\d{2}-(?:0[1-9]|1[0-2])-(?:0[1-9]|[12]\d|3[01])\b`)},
	}
}

// Option is a functional option for [New].
type Option func(*Redactor)

// WithRecognizers replaces the recognizer set.
func WithRecognizers(r ...Recognizer) Option {
	return func(red *Redactor) {
		red.recognizers = r
	}
}

// WithEntities restricts detection to the listed entity types.
func WithEntities(entityTypes ...string) Option {
	return func(red *Redactor) {
		red.entities = entityTypes
	}
}

// Redactor implements [phi.Redactor] with regular expressions.
type Redactor struct {
	recognizers []Recognizer
	entities    []string
}

// New creates a regex Redactor using [DefaultRecognizers] unless overridden.
func New(opts ...Option) *Redactor {
	r := &Redactor{recognizers: DefaultRecognizers()}
	for _, o := range opts {
		o(r)
	}
	if len(r.entities) > 0 {
		r.recognizers = slices.DeleteFunc(slices.Clone(r.recognizers), func(rec Recognizer) bool {
			return !slices.Contains(r.entities, rec.Type)
		})
	}
	return r
}

// Redact implements [phi.Redactor]. It never fails.
func (r *Redactor) Redact(_ context.Context, text string) (types.Redaction, error) {
	if phi.Blank(text) {
		return phi.Empty(text), nil
	}
	return phi.Apply(text, r.Detect(text)), nil
}

// Detect returns every recognizer match in text, possibly overlapping.
func (r *Redactor) Detect(text string) []phi.Entity {
	var out []phi.Entity
	for _, rec := range r.recognizers {
		for _, loc := range rec.Pattern.FindAllStringIndex(text, -1) {
			if rec.Validate != nil && !rec.Validate(text[loc[0]:loc[1]]) {
				continue
			}
			out = append(out, phi.Entity{Type: rec.Type, Start: loc[0], End: loc[1], Score: rec.Score})
		}
	}
	return out
}

func luhn(s string) bool {
	var digits []int
	for _, c := range s {
		if c >= '0' && c <= '9' {
			digits = append(digits, int(c-'0'))
		}
	}
	if len(digits) < 13 {
		return false
	}
	sum := 0
	for i := range digits {
		d := digits[len(digits)-1-i]
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}
