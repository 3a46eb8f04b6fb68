// Package pubmed implements a [literature.Backend] over the NCBI E-utilities:
// esearch for ids, esummary for metadata and elink (pubmed_pubmed_citedin)
// for citation counts.
//
// Without an API key NCBI allows three requests per second, so calls are
// spaced by a small delay that can be lowered once a key is configured.
package pubmed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/medsift/pkg/provider/literature"
	"github.com/MrWong99/medsift/pkg/types"
)

// Name is the source identifier of this backend.
const Name = string(types.SourcePubMed)

const (
	defaultBaseURL    = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	defaultArticleURL = "https://pubmed.ncbi.nlm.nih.gov"
	defaultMaxResults = 15
	defaultDelay      = 350 * time.Millisecond
	queryTerms        = 4
	typeFilter        = " AND (clinical trial[pt] OR review[pt] OR meta-analysis[pt])"
	citedInLink       = "pubmed_pubmed_citedin"
)

var _ literature.Backend = (*Backend)(nil)

// Option is a functional option for [New].
type Option func(*Backend)

// WithBaseURL overrides the E-utilities base URL.
func WithBaseURL(u string) Option {
	return func(b *Backend) {
		b.baseURL = strings.TrimRight(u, "/")
	}
}

// WithAPIKey sets the NCBI API key.
func WithAPIKey(key string) Option {
	return func(b *Backend) {
		b.apiKey = key
	}
}

// WithMaxResults caps the number of ids requested from esearch.
func WithMaxResults(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.maxResults = n
		}
	}
}

// WithRequestDelay sets the pause between consecutive E-utilities calls.
func WithRequestDelay(d time.Duration) Option {
	return func(b *Backend) {
		b.delay = d
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Backend) {
		b.client = c
	}
}

// Backend searches PubMed.
type Backend struct {
	baseURL    string
	apiKey     string
	maxResults int
	delay      time.Duration
	client     *http.Client
}

// New creates a PubMed backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		baseURL:    defaultBaseURL,
		maxResults: defaultMaxResults,
		delay:      defaultDelay,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Name implements [literature.Backend].
func (b *Backend) Name() string { return Name }

// BuildQuery quotes the first four terms, joins them with AND and restricts
// publication types to trials, reviews and meta-analyses.
func BuildQuery(terms []string) string {
	parts := make([]string, 0, queryTerms)
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		parts = append(parts, strconv.Quote(t))
		if len(parts) == queryTerms {
			break
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " AND ") + typeFilter
}

// Search implements [literature.Backend].
func (b *Backend) Search(ctx context.Context, query []string) ([]types.Paper, error) {
	term := BuildQuery(query)
	if term == "" {
		return nil, nil
	}

	ids, err := b.search(ctx, term)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if err := b.pause(ctx); err != nil {
		return nil, err
	}
	summaries, err := b.summaries(ctx, ids)
	if err != nil {
		return nil, err
	}

	// Citation counts are an enrichment; a failure falls back to pmcrefcount.
	var cited map[string]int
	if err := b.pause(ctx); err != nil {
		return nil, err
	}
	cited, err = b.citations(ctx, ids)
	if err != nil {
		slog.Warn("pubmed: citation count lookup failed", "err", err)
	}

	papers := make([]types.Paper, 0, len(ids))
	for _, id := range ids {
		s, ok := summaries[id]
		if !ok || s.Title == "" {
			continue
		}
		count := cited[id]
		if count == 0 {
			count = int(s.PMCRefCount)
		}
		authors := make([]string, 0, len(s.Authors))
		for _, a := range s.Authors {
			authors = append(authors, a.Name)
		}
		papers = append(papers, types.Paper{
			PaperID:                  "pmid:" + id,
			Title:                    s.Title,
			Authors:                  literature.CapAuthors(authors),
			Year:                     parseYear(s.PubDate),
			Journal:                  s.Source,
			CitationCount:            count,
			InfluentialCitationCount: count,
			URL:                      defaultArticleURL + "/" + id + "/",
		})
	}
	return papers, nil
}

func (b *Backend) pause(ctx context.Context) error {
	if b.delay <= 0 {
		return nil
	}
	t := time.NewTimer(b.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Backend) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	if b.apiKey != "" {
		params.Set("api_key", b.apiKey)
	}
	params.Set("retmode", "json")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/"+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("pubmed: %s: create request: %w", endpoint, err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("pubmed: %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pubmed: %s: HTTP %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("pubmed: %s: decode: %w", endpoint, err)
	}
	return nil
}

func (b *Backend) search(ctx context.Context, term string) ([]string, error) {
	var out struct {
		Result struct {
			IDList []string `json:"idlist"`
		} `json:"esearchresult"`
	}
	params := url.Values{
		"db":     {"pubmed"},
		"term":   {term},
		"retmax": {strconv.Itoa(b.maxResults)},
		"sort":   {"relevance"},
	}
	if err := b.get(ctx, "esearch.fcgi", params, &out); err != nil {
		return nil, err
	}
	return out.Result.IDList, nil
}

type summary struct {
	Title   string `json:"title"`
	Source  string `json:"source"`
	PubDate string `json:"pubdate"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	PMCRefCount flexInt `json:"pmcrefcount"`
}

func (b *Backend) summaries(ctx context.Context, ids []string) (map[string]summary, error) {
	var out struct {
		Result map[string]json.RawMessage `json:"result"`
	}
	params := url.Values{"db": {"pubmed"}, "id": {strings.Join(ids, ",")}}
	if err := b.get(ctx, "esummary.fcgi", params, &out); err != nil {
		return nil, err
	}
	res := make(map[string]summary, len(ids))
	for _, id := range ids {
		raw, ok := out.Result[id]
		if !ok {
			continue
		}
		var s summary
		if err := json.Unmarshal(raw, &s); err != nil {
			slog.Debug("pubmed: skipping malformed summary", "pmid", id, "err", err)
			continue
		}
		res[id] = s
	}
	return res, nil
}

// citations sends one id parameter per PMID so elink returns a linkset per
// article instead of merging them.
func (b *Backend) citations(ctx context.Context, ids []string) (map[string]int, error) {
	var out struct {
		LinkSets []struct {
			IDs        []flexString `json:"ids"`
			LinkSetDBs []struct {
				LinkName string       `json:"linkname"`
				Links    []flexString `json:"links"`
			} `json:"linksetdbs"`
		} `json:"linksets"`
	}
	params := url.Values{
		"dbfrom":   {"pubmed"},
		"db":       {"pubmed"},
		"linkname": {citedInLink},
		"id":       ids,
	}
	if err := b.get(ctx, "elink.fcgi", params, &out); err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(out.LinkSets))
	for _, ls := range out.LinkSets {
		if len(ls.IDs) == 0 {
			continue
		}
		for _, db := range ls.LinkSetDBs {
			if db.LinkName == citedInLink {
				counts[string(ls.IDs[0])] = len(db.Links)
			}
		}
	}
	return counts, nil
}

// parseYear reads the leading year of an esummary pubdate ("2021 Mar 4").
func parseYear(pubdate string) int {
	f := strings.Fields(pubdate)
	if len(f) == 0 {
		return 0
	}
	y, err := strconv.Atoi(f[0])
	if err != nil {
		return 0
	}
	return y
}

// flexInt accepts a JSON number or a numeric string; anything else is 0.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	n, err := strconv.Atoi(s)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	*f = flexString(strings.Trim(string(b), `"`))
	return nil
}
