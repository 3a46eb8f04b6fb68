// Package feedback implements the clinician feedback loop.
//
// Clinicians rate extracted items (correct, incorrect, missing) and returned
// papers (relevant, not_relevant). Paper ratings feed back into literature
// ranking: keywords taken from the rated title get their positive or
// negative counter bumped in the shared [store.BoostStore].
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/MrWong99/medsift/internal/observe"
	"github.com/MrWong99/medsift/pkg/store"
	"github.com/MrWong99/medsift/pkg/types"
)

// ErrInvalid is returned by [Service.Submit] for records that fail
// validation.
var ErrInvalid = errors.New("feedback: invalid record")

const topN = 10

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {}, "at": {}, "to": {},
	"for": {}, "of": {}, "with": {}, "by": {}, "from": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "this": {}, "that": {}, "it": {}, "its": {}, "as": {}, "if": {}, "not": {},
	"no": {}, "so": {}, "than": {}, "we": {}, "our": {}, "their": {}, "study": {}, "review": {},
	"analysis": {}, "using": {}, "based": {}, "new": {}, "novel": {}, "case": {}, "report": {},
	"systematic": {}, "meta": {},
}

var letters = regexp.MustCompile(`[a-zA-Z]+`)

// ExtractKeywords returns the distinct lower-cased alphabetic words of title
// that are at least three letters long and not stop words, in order of first
// appearance.
func ExtractKeywords(title string) []string {
	var out []string
	for _, w := range letters.FindAllString(strings.ToLower(title), -1) {
		if len(w) < 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if !slices.Contains(out, w) {
			out = append(out, w)
		}
	}
	return out
}

// PaperVotes aggregates relevance ratings for one paper title.
type PaperVotes struct {
	Title         string `json:"title"`
	PositiveVotes int    `json:"positive_votes"`
	TotalVotes    int    `json:"total_votes"`
}

// Analytics summarises all stored feedback.
type Analytics struct {
	TotalFeedbackCount      int                `json:"total_feedback_count"`
	ExtractionAccuracyRate  float64            `json:"extraction_accuracy_rate"`
	LiteratureRelevanceRate float64            `json:"literature_relevance_rate"`
	AccuracyByItemType      map[string]float64 `json:"accuracy_by_item_type"`
	MostRelevantPapers      []PaperVotes       `json:"most_relevant_papers"`
	MostUsefulKeywords      []string           `json:"most_useful_keywords"`
}

// Option configures a [Service].
type Option func(*Service)

// WithMetrics counts submitted feedback.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// Service records feedback and maintains keyword boosts.
type Service struct {
	records store.FeedbackStore
	boosts  store.BoostStore
	metrics *observe.Metrics
}

// NewService creates a Service.
func NewService(records store.FeedbackStore, boosts store.BoostStore, opts ...Option) *Service {
	s := &Service{records: records, boosts: boosts}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Validate checks that rec has a known type, a rating valid for that type and
// a non-empty item value.
func Validate(rec types.FeedbackRecord) error {
	var valid []string
	switch rec.Type {
	case types.FeedbackExtractionAccuracy:
		valid = []string{types.RatingCorrect, types.RatingIncorrect, types.RatingMissing}
	case types.FeedbackLiteratureRelevance:
		valid = []string{types.RatingRelevant, types.RatingNotRelevant}
	default:
		return fmt.Errorf("%w: unknown feedback_type %q", ErrInvalid, rec.Type)
	}
	if !slices.Contains(valid, rec.Rating) {
		return fmt.Errorf("%w: rating %q not valid for %s", ErrInvalid, rec.Rating, rec.Type)
	}
	if strings.TrimSpace(rec.ItemValue) == "" {
		return fmt.Errorf("%w: item_value must not be empty", ErrInvalid)
	}
	return nil
}

// Submit validates and stores rec. For literature relevance feedback the
// keywords of the rated title are boosted, positively iff the rating is
// relevant. A failed boost update is logged; the stored record stands.
func (s *Service) Submit(ctx context.Context, rec types.FeedbackRecord) (types.FeedbackRecord, error) {
	rec.ItemValue = strings.TrimSpace(rec.ItemValue)
	if err := Validate(rec); err != nil {
		return types.FeedbackRecord{}, err
	}

	saved, err := s.records.SaveFeedback(ctx, rec)
	if err != nil {
		return types.FeedbackRecord{}, fmt.Errorf("feedback: submit: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordFeedback(ctx, string(saved.Type), saved.Rating)
	}

	if saved.Type == types.FeedbackLiteratureRelevance {
		keywords := ExtractKeywords(saved.ItemValue)
		if len(keywords) > 0 {
			positive := saved.Rating == types.RatingRelevant
			if err := s.boosts.UpdateBoosts(ctx, keywords, positive); err != nil {
				slog.Warn("feedback: keyword boost update failed", "feedback_id", saved.ID, "err", err)
			} else {
				slog.Info("feedback: keyword boosts updated",
					"feedback_id", saved.ID,
					"keywords", len(keywords),
					"positive", positive)
			}
		}
	}
	return saved, nil
}

// ForVisit returns the feedback recorded for one visit.
func (s *Service) ForVisit(ctx context.Context, visitID string) ([]types.FeedbackRecord, error) {
	all, err := s.records.ListFeedback(ctx)
	if err != nil {
		return nil, fmt.Errorf("feedback: list: %w", err)
	}
	return slices.DeleteFunc(all, func(r types.FeedbackRecord) bool { return r.VisitID != visitID }), nil
}

// Keywords returns boosted keywords with score at least minScore.
func (s *Service) Keywords(ctx context.Context, minScore float64) ([]types.BoostedKeyword, error) {
	ks, err := s.boosts.Boosted(ctx, minScore)
	if err != nil {
		return nil, fmt.Errorf("feedback: keywords: %w", err)
	}
	if ks == nil {
		ks = []types.BoostedKeyword{}
	}
	return ks, nil
}

// Analytics aggregates every stored record.
func (s *Service) Analytics(ctx context.Context) (Analytics, error) {
	records, err := s.records.ListFeedback(ctx)
	if err != nil {
		return Analytics{}, fmt.Errorf("feedback: analytics: %w", err)
	}
	a := Summarize(records)

	top, err := s.boosts.Boosted(ctx, 0)
	if err != nil {
		return Analytics{}, fmt.Errorf("feedback: analytics: %w", err)
	}
	for _, k := range top {
		if len(a.MostUsefulKeywords) == topN {
			break
		}
		a.MostUsefulKeywords = append(a.MostUsefulKeywords, k.Keyword)
	}
	return a, nil
}

// Summarize computes everything in [Analytics] except the keyword list.
// Rates are 0 when there is nothing to divide by.
func Summarize(records []types.FeedbackRecord) Analytics {
	a := Analytics{
		TotalFeedbackCount: len(records),
		AccuracyByItemType: map[string]float64{},
		MostRelevantPapers: []PaperVotes{},
		MostUsefulKeywords: []string{},
	}

	type tally struct{ hit, total int }
	var extraction, lit tally
	byType := map[string]*tally{}
	papers := map[string]*PaperVotes{}
	var order []string

	for _, r := range records {
		switch r.Type {
		case types.FeedbackExtractionAccuracy:
			t := byType[r.ItemType]
			if t == nil {
				t = &tally{}
				byType[r.ItemType] = t
			}
			t.total++
			extraction.total++
			if r.Rating == types.RatingCorrect {
				t.hit++
				extraction.hit++
			}
		case types.FeedbackLiteratureRelevance:
			lit.total++
			p := papers[r.ItemValue]
			if p == nil {
				p = &PaperVotes{Title: r.ItemValue}
				papers[r.ItemValue] = p
				order = append(order, r.ItemValue)
			}
			p.TotalVotes++
			if r.Rating == types.RatingRelevant {
				lit.hit++
				p.PositiveVotes++
			}
		}
	}

	rate := func(t tally) float64 {
		if t.total == 0 {
			return 0
		}
		return float64(t.hit) / float64(t.total)
	}
	a.ExtractionAccuracyRate = rate(extraction)
	a.LiteratureRelevanceRate = rate(lit)
	for it, t := range byType {
		a.AccuracyByItemType[it] = rate(*t)
	}

	for _, title := range order {
		a.MostRelevantPapers = append(a.MostRelevantPapers, *papers[title])
	}
	slices.SortStableFunc(a.MostRelevantPapers, func(x, y PaperVotes) int {
		return y.PositiveVotes - x.PositiveVotes
	})
	if len(a.MostRelevantPapers) > topN {
		a.MostRelevantPapers = a.MostRelevantPapers[:topN]
	}
	return a
}
