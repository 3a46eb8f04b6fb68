// Package types defines the data structures shared across medsift packages.
//
// These types form the lingua franca between providers, engines, stores and
// the HTTP layer. They are intentionally minimal: each package defines its own
// domain types, but cross-cutting structures live here to avoid circular
// imports.
package types

import (
	"encoding/json"
	"time"
)

// Segment is a single timestamped stretch of transcribed speech.
//
// Inside a live session Start and End are absolute seconds from the start of
// the session; straight out of a transcriber they are relative to the chunk.
type Segment struct {
	// Start of the segment in seconds.
	Start float64 `json:"start"`

	// End of the segment in seconds. Always >= Start.
	End float64 `json:"end"`

	// Text is the segment content. Inside a session it has already been
	// passed through PHI redaction.
	Text string `json:"text"`

	// Speaker is the diarization label (e.g. "Speaker 1"). Empty until the
	// session pipeline assigns one.
	Speaker string `json:"speaker,omitempty"`
}

// Shift returns a copy of s moved forward by offset seconds.
func (s Segment) Shift(offset float64) Segment {
	s.Start += offset
	s.End += offset
	return s
}

// Transcription is the result of transcribing one audio buffer.
type Transcription struct {
	// Segments in chronological order, timestamps relative to the buffer.
	Segments []Segment `json:"segments"`

	// DurationSeconds is the length of the audio. Transcribers that cannot
	// measure it report the end of the last segment.
	DurationSeconds float64 `json:"duration_seconds"`

	// Language is the detected or configured language code.
	Language string `json:"language"`
}

// Text joins all segment texts with single spaces.
func (t Transcription) Text() string {
	n := 0
	for _, s := range t.Segments {
		n += len(s.Text) + 1
	}
	b := make([]byte, 0, n)
	for _, s := range t.Segments {
		if s.Text == "" {
			continue
		}
		if len(b) > 0 {
			b = append(b, ' ')
		}
		b = append(b, s.Text...)
	}
	return string(b)
}

// Redaction is the output of a PHI redactor.
type Redaction struct {
	// Text with every detected entity replaced by an indexed tag such as
	// "[PERSON_1]".
	Text string `json:"redacted_text"`

	// EntityCounts maps entity type to number of replacements.
	EntityCounts map[string]int `json:"entity_count"`
}

// MergeCounts adds every count in src to dst, allocating dst when nil.
func MergeCounts(dst, src map[string]int) map[string]int {
	if dst == nil {
		dst = make(map[string]int, len(src))
	}
	for k, v := range src {
		dst[k] += v
	}
	return dst
}

// Source identifies the literature backend a paper came from.
type Source string

const (
	SourcePubMed          Source = "pubmed"
	SourceSemanticScholar Source = "semantic_scholar"
)

// DisplayName returns the human-readable backend name.
func (s Source) DisplayName() string {
	switch s {
	case SourcePubMed:
		return "PubMed"
	case SourceSemanticScholar:
		return "Semantic Scholar"
	default:
		return string(s)
	}
}

// Paper is a literature search result.
type Paper struct {
	// PaperID is backend specific, e.g. "pmid:12345" or a Semantic Scholar id.
	PaperID string `json:"paper_id"`

	Title   string   `json:"title"`
	Authors []string `json:"authors"`

	// Year is zero when unknown.
	Year    int    `json:"year,omitempty"`
	Journal string `json:"journal,omitempty"`

	// AbstractSnippet is a truncated abstract, at most a couple of hundred
	// characters.
	AbstractSnippet string `json:"abstract_snippet"`

	CitationCount            int `json:"citation_count"`
	InfluentialCitationCount int `json:"influential_citation_count"`

	URL string `json:"url"`

	// RelevanceExplanation says why the ranker returned this paper.
	RelevanceExplanation string `json:"relevance_explanation"`

	// Source is set by the ranker, not by backends.
	Source Source `json:"source"`
}

// BoostedKeyword is a search term whose ranking weight is learned from
// clinician feedback on paper relevance.
type BoostedKeyword struct {
	Keyword       string  `json:"keyword"`
	PositiveCount int     `json:"positive_count"`
	NegativeCount int     `json:"negative_count"`
	BoostScore    float64 `json:"boost_score"`
}

// Score recomputes positive/(positive+negative), or 0 with no votes.
func (k BoostedKeyword) Score() float64 {
	total := k.PositiveCount + k.NegativeCount
	if total == 0 {
		return 0
	}
	return float64(k.PositiveCount) / float64(total)
}

// FeedbackType distinguishes what a feedback record rates.
type FeedbackType string

const (
	FeedbackExtractionAccuracy  FeedbackType = "extraction_accuracy"
	FeedbackLiteratureRelevance FeedbackType = "literature_relevance"
)

// Rating values for feedback records.
const (
	RatingCorrect     = "correct"
	RatingIncorrect   = "incorrect"
	RatingMissing     = "missing"
	RatingRelevant    = "relevant"
	RatingNotRelevant = "not_relevant"
)

// FeedbackRecord is one clinician judgement on an extracted item or a paper.
type FeedbackRecord struct {
	ID            string       `json:"id"`
	VisitID       string       `json:"visit_id"`
	Type          FeedbackType `json:"feedback_type"`
	ItemType      string       `json:"item_type"`
	ItemValue     string       `json:"item_value"`
	Rating        string       `json:"rating"`
	PaperURL      string       `json:"paper_url,omitempty"`
	ClinicianNote string       `json:"clinician_note,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}

// Visit is a stored, redacted transcript together with its segments.
//
// PatientSummary and ClinicianNote hold the extracted records as JSON so
// that this package stays free of the clinical schema; they are empty until
// a visit has been analyzed or edited. Literature caches the last ranking.
type Visit struct {
	ID              string          `json:"id"`
	CreatedAt       time.Time       `json:"created_at"`
	VisitType       string          `json:"visit_type,omitempty"`
	Tags            []string        `json:"tags,omitempty"`
	DurationSeconds float64         `json:"duration_seconds"`
	Transcript      string          `json:"transcript"`
	Segments        []Segment       `json:"segments"`
	Chunks          int             `json:"chunks"`
	PatientSummary  json.RawMessage `json:"patient_summary,omitempty"`
	ClinicianNote   json.RawMessage `json:"clinician_note,omitempty"`
	Literature      []Paper         `json:"literature,omitempty"`
}

// Trial is a recruiting clinical study matched to a visit.
type Trial struct {
	NCTID         string   `json:"nct_id"`
	BriefTitle    string   `json:"brief_title"`
	Status        string   `json:"status"`
	Conditions    []string `json:"conditions"`
	Interventions []string `json:"interventions"`
	Location      string   `json:"location"`
	URL           string   `json:"url"`
	WhyItMatches  string   `json:"why_it_matches"`
}
