// Package semanticscholar implements a [literature.Backend] over the Semantic
// Scholar Graph API paper search.
package semanticscholar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/medsift/pkg/provider/literature"
	"github.com/MrWong99/medsift/pkg/types"
)

// Name is the source identifier of this backend.
const Name = string(types.SourceSemanticScholar)

const (
	defaultBaseURL    = "https://api.semanticscholar.org"
	searchPath        = "/graph/v1/paper/search"
	paperURLPrefix    = "https://www.semanticscholar.org/paper/"
	fields            = "title,abstract,url,year,citationCount,influentialCitationCount,authors,journal"
	defaultLimit      = 10
	defaultRetryDelay = time.Second
)

// ErrRateLimited is returned when the API still answers 429 after the retry.
var ErrRateLimited = errors.New("semanticscholar: rate limited")

var _ literature.Backend = (*Backend)(nil)

// Option is a functional option for [New].
type Option func(*Backend)

// WithBaseURL overrides the API host.
func WithBaseURL(u string) Option {
	return func(b *Backend) {
		b.baseURL = strings.TrimRight(u, "/")
	}
}

// WithAPIKey sets the x-api-key header.
func WithAPIKey(key string) Option {
	return func(b *Backend) {
		b.apiKey = key
	}
}

// WithLimit sets the number of papers requested.
func WithLimit(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.limit = n
		}
	}
}

// WithRetryDelay sets the backoff before the single retry on HTTP 429.
func WithRetryDelay(d time.Duration) Option {
	return func(b *Backend) {
		b.retryDelay = d
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Backend) {
		b.client = c
	}
}

// Backend searches Semantic Scholar.
type Backend struct {
	baseURL    string
	apiKey     string
	limit      int
	retryDelay time.Duration
	client     *http.Client
}

// New creates a Semantic Scholar backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		baseURL:    defaultBaseURL,
		limit:      defaultLimit,
		retryDelay: defaultRetryDelay,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Name implements [literature.Backend].
func (b *Backend) Name() string { return Name }

type searchResponse struct {
	Data []struct {
		PaperID                  string `json:"paperId"`
		Title                    string `json:"title"`
		Abstract                 string `json:"abstract"`
		URL                      string `json:"url"`
		Year                     int    `json:"year"`
		CitationCount            int    `json:"citationCount"`
		InfluentialCitationCount int    `json:"influentialCitationCount"`
		Authors                  []struct {
			Name string `json:"name"`
		} `json:"authors"`
		Journal *struct {
			Name string `json:"name"`
		} `json:"journal"`
	} `json:"data"`
}

// Search implements [literature.Backend]. Terms are joined with spaces.
func (b *Backend) Search(ctx context.Context, query []string) ([]types.Paper, error) {
	q := strings.TrimSpace(strings.Join(query, " "))
	if q == "" {
		return nil, nil
	}

	params := url.Values{
		"query":  {q},
		"limit":  {strconv.Itoa(b.limit)},
		"fields": {fields},
	}
	endpoint := b.baseURL + searchPath + "?" + params.Encode()

	var sr searchResponse
	for attempt := 0; ; attempt++ {
		retry, err := b.do(ctx, endpoint, &sr)
		if err != nil {
			return nil, err
		}
		if !retry {
			break
		}
		if attempt > 0 {
			return nil, ErrRateLimited
		}
		t := time.NewTimer(b.retryDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		}
	}

	papers := make([]types.Paper, 0, len(sr.Data))
	for _, d := range sr.Data {
		if d.Title == "" {
			continue
		}
		authors := make([]string, 0, len(d.Authors))
		for _, a := range d.Authors {
			authors = append(authors, a.Name)
		}
		p := types.Paper{
			PaperID:                  d.PaperID,
			Title:                    d.Title,
			Authors:                  literature.CapAuthors(authors),
			Year:                     d.Year,
			AbstractSnippet:          literature.Snippet(d.Abstract),
			CitationCount:            d.CitationCount,
			InfluentialCitationCount: d.InfluentialCitationCount,
			URL:                      d.URL,
		}
		if d.Journal != nil {
			p.Journal = d.Journal.Name
		}
		if p.URL == "" && d.PaperID != "" {
			p.URL = paperURLPrefix + d.PaperID
		}
		papers = append(papers, p)
	}
	return papers, nil
}

// do performs one request. It reports retry=true on HTTP 429.
func (b *Backend) do(ctx context.Context, endpoint string, out *searchResponse) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("semanticscholar: create request: %w", err)
	}
	if b.apiKey != "" {
		req.Header.Set("x-api-key", b.apiKey)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("semanticscholar: http request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return true, nil
	case resp.StatusCode != http.StatusOK:
		return false, fmt.Errorf("semanticscholar: HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("semanticscholar: decode: %w", err)
	}
	return false, nil
}
