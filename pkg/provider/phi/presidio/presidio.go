// Package presidio provides a [phi.Redactor] backed by a Microsoft Presidio
// analyzer service (POST /analyze).
//
// Only the analyzer is used. Tag substitution happens locally through
// [phi.Apply] so tags are indexed per entity type, which the anonymizer
// service cannot do. Medical record numbers and insurance ids are detected
// with ad-hoc recognizers sent along with every request.
package presidio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/medsift/pkg/provider/phi"
	"github.com/MrWong99/medsift/pkg/types"
)

// DefaultEntities is the entity set requested when none is configured. Dates
// are left out on purpose: symptom onset times are clinical data.
var DefaultEntities = []string{
	"PERSON",
	"PHONE_NUMBER",
	"EMAIL_ADDRESS",
	"LOCATION",
	"US_SSN",
	"MEDICAL_RECORD_NUMBER",
	"INSURANCE_ID",
	"US_DRIVER_LICENSE",
	"CREDIT_CARD",
}

const defaultScoreThreshold = 0.5

var _ phi.Redactor = (*Redactor)(nil)

// Option is a functional option for [New].
type Option func(*Redactor)

// WithLanguage sets the analysis language. Default "en".
func WithLanguage(lang string) Option {
	return func(r *Redactor) {
		r.language = lang
	}
}

// WithEntities overrides [DefaultEntities].
func WithEntities(entities ...string) Option {
	return func(r *Redactor) {
		r.entities = entities
	}
}

// WithScoreThreshold sets the minimum analyzer confidence.
func WithScoreThreshold(th float64) Option {
	return func(r *Redactor) {
		r.threshold = th
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Redactor) {
		r.client = c
	}
}

// Redactor implements [phi.Redactor] against a Presidio analyzer.
type Redactor struct {
	baseURL   string
	language  string
	entities  []string
	threshold float64
	client    *http.Client
}

// New creates a Presidio Redactor for the analyzer at baseURL
// (e.g. "http://localhost:5002").
func New(baseURL string, opts ...Option) (*Redactor, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("presidio: baseURL must not be empty")
	}
	r := &Redactor{
		baseURL:   strings.TrimRight(baseURL, "/"),
		language:  "en",
		entities:  DefaultEntities,
		threshold: defaultScoreThreshold,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

type pattern struct {
	Name  string  `json:"name"`
	Regex string  `json:"regex"`
	Score float64 `json:"score"`
}

type recognizer struct {
	Name              string    `json:"name"`
	SupportedLanguage string    `json:"supported_language"`
	SupportedEntity   string    `json:"supported_entity"`
	Patterns          []pattern `json:"patterns"`
	Context           []string  `json:"context,omitempty"`
}

type analyzeRequest struct {
	Text             string       `json:"text"`
	Language         string       `json:"language"`
	Entities         []string     `json:"entities,omitempty"`
	ScoreThreshold   float64      `json:"score_threshold"`
	AdHocRecognizers []recognizer `json:"ad_hoc_recognizers,omitempty"`
}

type analyzeResult struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
}

func (r *Redactor) adHoc() []recognizer {
	return []recognizer{
		{
			Name:              "MRN Recognizer",
			SupportedLanguage: r.language,
			SupportedEntity:   "MEDICAL_RECORD_NUMBER",
			Patterns: []pattern{
				{Name: "MRN with dash", Regex: `\bMRN[-]?\d{6,10}\b`, Score: 0.9},
				{Name: "MRN with colon", Regex: `\bMRN:\s*\d{6,10}\b`, Score: 0.9},
				{Name: "MRN with space", Regex: `\bMRN\s+\d{6,10}\b`, Score: 0.85},
			},
			Context: []string{"medical record", "MRN", "record number", "patient id"},
		},
		{
			Name:              "Insurance ID Recognizer",
			SupportedLanguage: r.language,
			SupportedEntity:   "INSURANCE_ID",
			Patterns: []pattern{
				{Name: "INS with dash", Regex: `\bINS[-]?\d{6,12}\b`, Score: 0.9},
				{Name: "INS with colon", Regex: `\bINS:\s*\d{6,12}\b`, Score: 0.9},
				{Name: "Insurance ID format", Regex: `\b[A-Z]{3}\d{9,12}\b`, Score: 0.6},
				{Name: "Policy number", Regex: `\bpolicy\s*#?\s*\d{6,12}\b`, Score: 0.7},
			},
			Context: []string{"insurance", "policy", "coverage", "member id", "subscriber"},
		},
	}
}

// Redact implements [phi.Redactor].
func (r *Redactor) Redact(ctx context.Context, text string) (types.Redaction, error) {
	if phi.Blank(text) {
		return phi.Empty(text), nil
	}

	payload, err := json.Marshal(analyzeRequest{
		Text:             text,
		Language:         r.language,
		Entities:         r.entities,
		ScoreThreshold:   r.threshold,
		AdHocRecognizers: r.adHoc(),
	})
	if err != nil {
		return types.Redaction{}, fmt.Errorf("presidio: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/analyze", bytes.NewReader(payload))
	if err != nil {
		return types.Redaction{}, fmt.Errorf("presidio: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return types.Redaction{}, fmt.Errorf("presidio: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.Redaction{}, fmt.Errorf("presidio: analyzer returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var results []analyzeResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return types.Redaction{}, fmt.Errorf("presidio: parse response: %w", err)
	}

	offsets := runeOffsets(text)
	entities := make([]phi.Entity, 0, len(results))
	for _, res := range results {
		if res.Start < 0 || res.End >= len(offsets) || res.Start >= res.End {
			continue
		}
		entities = append(entities, phi.Entity{
			Type:  res.EntityType,
			Start: offsets[res.Start],
			End:   offsets[res.End],
			Score: res.Score,
		})
	}
	return phi.Apply(text, entities), nil
}

// runeOffsets maps code point index to byte offset. The analyzer reports
// positions in code points. The extra final entry maps len(runes) to len(text).
func runeOffsets(text string) []int {
	out := make([]int, 0, len(text)+1)
	for i := range text {
		out = append(out, i)
	}
	return append(out, len(text))
}
