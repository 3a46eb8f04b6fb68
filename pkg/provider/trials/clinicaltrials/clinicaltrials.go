// Package clinicaltrials implements a [trials.Finder] over the
// ClinicalTrials.gov v2 study search.
//
// Only recruiting studies are requested. Conditions are sent as query.cond
// and drugs as query.intr, each OR-joined.
package clinicaltrials

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/medsift/pkg/provider/trials"
	"github.com/MrWong99/medsift/pkg/types"
)

// Name is the registry identifier of this finder.
const Name = "clinicaltrials"

const (
	defaultBaseURL  = "https://clinicaltrials.gov"
	searchPath      = "/api/v2/studies"
	studyURLPrefix  = "https://clinicaltrials.gov/study/"
	fields          = "NCTId,BriefTitle,OverallStatus,Condition,InterventionName,LocationCity,LocationState"
	defaultPageSize = 5
)

var _ trials.Finder = (*Finder)(nil)

// Option is a functional option for [New].
type Option func(*Finder)

// WithBaseURL overrides the API host.
func WithBaseURL(u string) Option {
	return func(f *Finder) {
		f.baseURL = strings.TrimRight(u, "/")
	}
}

// WithPageSize sets the number of studies requested.
func WithPageSize(n int) Option {
	return func(f *Finder) {
		if n > 0 {
			f.pageSize = n
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Finder) {
		f.client = c
	}
}

// Finder searches ClinicalTrials.gov.
type Finder struct {
	baseURL  string
	pageSize int
	client   *http.Client
}

// New creates a ClinicalTrials.gov finder.
func New(opts ...Option) *Finder {
	f := &Finder{
		baseURL:  defaultBaseURL,
		pageSize: defaultPageSize,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Name implements [trials.Finder].
func (f *Finder) Name() string { return Name }

type studiesResponse struct {
	Studies []struct {
		ProtocolSection struct {
			IdentificationModule struct {
				NCTID      string `json:"nctId"`
				BriefTitle string `json:"briefTitle"`
			} `json:"identificationModule"`
			StatusModule struct {
				OverallStatus string `json:"overallStatus"`
			} `json:"statusModule"`
			ConditionsModule struct {
				Conditions []string `json:"conditions"`
			} `json:"conditionsModule"`
			ArmsInterventionsModule struct {
				Interventions []struct {
					Name string `json:"name"`
				} `json:"interventions"`
			} `json:"armsInterventionsModule"`
			ContactsLocationsModule struct {
				Locations []struct {
					City  string `json:"city"`
					State string `json:"state"`
				} `json:"locations"`
			} `json:"contactsLocationsModule"`
		} `json:"protocolSection"`
	} `json:"studies"`
}

// Find implements [trials.Finder].
func (f *Finder) Find(ctx context.Context, conditions, drugs []string) ([]types.Trial, error) {
	if len(conditions) == 0 && len(drugs) == 0 {
		return nil, nil
	}

	params := url.Values{
		"filter.overallStatus": {"RECRUITING"},
		"pageSize":             {strconv.Itoa(f.pageSize)},
		"fields":               {fields},
	}
	if len(conditions) > 0 {
		params.Set("query.cond", strings.Join(conditions, " OR "))
	}
	if len(drugs) > 0 {
		params.Set("query.intr", strings.Join(drugs, " OR "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+searchPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("clinicaltrials: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clinicaltrials: http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("clinicaltrials: HTTP %d", resp.StatusCode)
	}

	var sr studiesResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("clinicaltrials: decode: %w", err)
	}

	out := make([]types.Trial, 0, len(sr.Studies))
	for _, s := range sr.Studies {
		p := s.ProtocolSection
		t := types.Trial{
			NCTID:         p.IdentificationModule.NCTID,
			BriefTitle:    p.IdentificationModule.BriefTitle,
			Status:        p.StatusModule.OverallStatus,
			Conditions:    p.ConditionsModule.Conditions,
			Interventions: []string{},
			URL:           studyURLPrefix + p.IdentificationModule.NCTID,
		}
		if t.Conditions == nil {
			t.Conditions = []string{}
		}
		for _, iv := range p.ArmsInterventionsModule.Interventions {
			if iv.Name != "" {
				t.Interventions = append(t.Interventions, iv.Name)
			}
		}
		if locs := p.ContactsLocationsModule.Locations; len(locs) > 0 {
			t.Location = strings.Trim(locs[0].City+", "+locs[0].State, ", ")
		}
		t.WhyItMatches = trials.Explain(t, conditions, drugs)
		out = append(out, t)
	}
	return out, nil
}
