// Package literature ranks published research for a visit.
//
// The [Ranker] builds a search query from extracted conditions, drugs and
// feedback-boosted keywords, fans it out to every configured backend
// concurrently and merges the answers deterministically: results are
// combined in backend priority order, deduplicated by normalised title and
// sorted by citation count, backend priority and year.
//
// Ranking never fails. A backend error or timeout is logged and that backend
// simply contributes nothing.
package literature

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/medsift/internal/observe"
	litprovider "github.com/MrWong99/medsift/pkg/provider/literature"
	"github.com/MrWong99/medsift/pkg/store"
	"github.com/MrWong99/medsift/pkg/types"
)

// Backend is a literature search service.
type Backend = litprovider.Backend

// Tuning holds the hot-reloadable ranking parameters.
type Tuning struct {
	// MaxTerms caps the number of search terms before the qualifier.
	MaxTerms int

	// TopN caps the number of returned papers.
	TopN int

	// FetchMinBoost is the score threshold used when loading boosted
	// keywords from the store.
	FetchMinBoost float64

	// MinBoost is the score a loaded keyword needs to enter the query.
	MinBoost float64

	// Qualifier is appended for condition-only queries.
	Qualifier string

	// Timeout bounds the whole backend fan-out. Zero means no extra bound.
	Timeout time.Duration
}

// DefaultTuning returns the standard ranking parameters.
func DefaultTuning() Tuning {
	return Tuning{
		MaxTerms:      8,
		TopN:          15,
		FetchMinBoost: 0.5,
		MinBoost:      0.6,
		Qualifier:     "treatment",
		Timeout:       20 * time.Second,
	}
}

// Option configures a [Ranker].
type Option func(*Ranker)

// WithTuning overrides [DefaultTuning].
func WithTuning(t Tuning) Option {
	return func(r *Ranker) {
		r.tuning = t
	}
}

// WithBoostStore sets where boosted keywords are read from. Without one no
// keywords are boosted.
func WithBoostStore(s store.BoostStore) Option {
	return func(r *Ranker) {
		r.boosts = s
	}
}

// WithMetrics records per-backend latency and outcome.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Ranker) {
		r.metrics = m
	}
}

// Ranker queries literature backends and merges their results. Safe for
// concurrent use.
type Ranker struct {
	backends []Backend
	sources  []types.Source
	boosts   store.BoostStore
	metrics  *observe.Metrics

	mu     sync.RWMutex
	tuning Tuning
}

// New creates a Ranker. The order of backends is the source priority used
// for merging and tie-breaking; lower index wins.
func New(backends []Backend, opts ...Option) *Ranker {
	r := &Ranker{
		backends: slices.Clone(backends),
		tuning:   DefaultTuning(),
	}
	for _, b := range backends {
		r.sources = append(r.sources, types.Source(b.Name()))
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Tuning returns the current parameters.
func (r *Ranker) Tuning() Tuning {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tuning
}

// SetTuning replaces the parameters for subsequent calls.
func (r *Ranker) SetTuning(t Tuning) {
	r.mu.Lock()
	r.tuning = t
	r.mu.Unlock()
}

// Query returns the search terms Rank would send for the given inputs.
func (r *Ranker) Query(ctx context.Context, conditions, drugs, keywords []string) []string {
	t := r.Tuning()
	var boosted []types.BoostedKeyword
	if r.boosts != nil {
		var err error
		boosted, err = r.boosts.Boosted(ctx, t.FetchMinBoost)
		if err != nil {
			slog.Warn("literature: loading boosted keywords failed", "err", err)
			boosted = nil
		}
	}
	return BuildQuery(boosted, conditions, drugs, keywords, t.MinBoost, t.MaxTerms, t.Qualifier)
}

// Rank returns at most TopN papers relevant to the visit. The result is never
// nil.
func (r *Ranker) Rank(ctx context.Context, conditions, drugs, keywords []string) []types.Paper {
	t := r.Tuning()
	query := r.Query(ctx, conditions, drugs, keywords)
	if len(query) == 0 || len(r.backends) == 0 {
		return []types.Paper{}
	}

	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	// Goroutines never return an error so one failing backend does not cancel
	// the others.
	perBackend := make([][]types.Paper, len(r.backends))
	var g errgroup.Group
	for i, b := range r.backends {
		g.Go(func() error {
			perBackend[i] = r.search(ctx, b, query)
			return nil
		})
	}
	_ = g.Wait()

	papers := Merge(perBackend, r.sources, t.TopN)
	for i := range papers {
		papers[i].RelevanceExplanation = Explain(papers[i], conditions, drugs)
	}
	return papers
}

func (r *Ranker) search(ctx context.Context, b Backend, query []string) []types.Paper {
	name := b.Name()
	start := time.Now()
	papers, err := b.Search(ctx, query)
	if r.metrics != nil {
		r.metrics.LiteratureDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("backend", name), observe.Attr("status", observe.Status(err))))
		r.metrics.RecordProviderCall(ctx, name, "literature", err)
	}
	if err != nil {
		slog.Warn("literature: backend search failed", "backend", name, "err", err)
		return nil
	}
	src := types.Source(name)
	for i := range papers {
		papers[i].Source = src
	}
	slog.Debug("literature: backend returned", "backend", name, "papers", len(papers))
	return papers
}

// Merge combines per-backend results. The first occurrence of each
// normalised title wins; papers without a title are dropped. The result is
// stably sorted by citation count descending, then source priority, then
// year descending, and cut to topN when topN > 0.
//
// A paper's priority is the index of its Source in priority; sources not
// listed rank after every listed one. Because priority follows the paper and
// not its position in perBackend, merging an already merged list returns it
// unchanged.
func Merge(perBackend [][]types.Paper, priority []types.Source, topN int) []types.Paper {
	type ranked struct {
		paper    types.Paper
		priority int
	}
	rank := make(map[types.Source]int, len(priority))
	for i, src := range priority {
		if _, ok := rank[src]; !ok {
			rank[src] = i
		}
	}
	prioOf := func(src types.Source) int {
		if i, ok := rank[src]; ok {
			return i
		}
		return len(priority)
	}

	seen := make(map[string]struct{})
	var all []ranked
	for _, papers := range perBackend {
		for _, p := range papers {
			key := TitleKey(p.Title)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			all = append(all, ranked{paper: p, priority: prioOf(p.Source)})
		}
	}

	slices.SortStableFunc(all, func(a, b ranked) int {
		switch {
		case a.paper.CitationCount != b.paper.CitationCount:
			return b.paper.CitationCount - a.paper.CitationCount
		case a.priority != b.priority:
			return a.priority - b.priority
		default:
			return b.paper.Year - a.paper.Year
		}
	})

	if topN > 0 && len(all) > topN {
		all = all[:topN]
	}
	out := make([]types.Paper, len(all))
	for i, r := range all {
		out[i] = r.paper
	}
	return out
}
