package pubmed_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/medsift/pkg/provider/literature/pubmed"
)

func TestBuildQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		terms []string
		want  string
	}{
		{name: "empty", terms: nil, want: ""},
		{name: "blank terms", terms: []string{" ", ""}, want: ""},
		{
			name:  "caps at four",
			terms: []string{"hypertension", "diabetes", "metformin", "lisinopril", "treatment"},
			want:  `"hypertension" AND "diabetes" AND "metformin" AND "lisinopril" AND (clinical trial[pt] OR review[pt] OR meta-analysis[pt])`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := pubmed.BuildQuery(tt.terms); got != tt.want {
				t.Errorf("BuildQuery(%v) = %q, want %q", tt.terms, got, tt.want)
			}
		})
	}
}

func newEutils(t *testing.T, elinkStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/esearch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Query().Get("term"), `"hypertension"`) {
			t.Errorf("term = %q", r.URL.Query().Get("term"))
		}
		_, _ = io.WriteString(w, `{"esearchresult": {"idlist": ["111", "222", "333"]}}`)
	})
	mux.HandleFunc("/esummary.fcgi", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"result": {
			"uids": ["111", "222", "333"],
			"111": {"title": "ACE inhibitors in hypertension.", "source": "Lancet", "pubdate": "2019 Jan",
			        "authors": [{"name": "A"}, {"name": "B"}, {"name": "C"}, {"name": "D"}, {"name": "E"}, {"name": "F"}],
			        "pmcrefcount": "4"},
			"222": {"title": "Salt and blood pressure", "source": "BMJ", "pubdate": "n/a", "authors": [], "pmcrefcount": 9},
			"333": {"title": "", "source": "x"}
		}}`)
	})
	mux.HandleFunc("/elink.fcgi", func(w http.ResponseWriter, r *http.Request) {
		if elinkStatus != http.StatusOK {
			w.WriteHeader(elinkStatus)
			return
		}
		if got := r.URL.Query()["id"]; len(got) != 3 {
			t.Errorf("elink id params = %v, want 3", got)
		}
		_, _ = io.WriteString(w, `{"linksets": [
			{"ids": [111], "linksetdbs": [{"linkname": "pubmed_pubmed_citedin", "links": ["1", "2", "3", "4", "5", "6", "7"]}]},
			{"ids": ["222"], "linksetdbs": []}
		]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSearch(t *testing.T) {
	t.Parallel()

	srv := newEutils(t, http.StatusOK)
	b := pubmed.New(pubmed.WithBaseURL(srv.URL), pubmed.WithRequestDelay(0))

	papers, err := b.Search(context.Background(), []string{"hypertension", "lisinopril"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(papers) != 2 {
		t.Fatalf("len(papers) = %d, want 2 (untitled summary dropped)", len(papers))
	}

	p := papers[0]
	if p.PaperID != "pmid:111" {
		t.Errorf("PaperID = %q, want pmid:111", p.PaperID)
	}
	if p.URL != "https://pubmed.ncbi.nlm.nih.gov/111/" {
		t.Errorf("URL = %q", p.URL)
	}
	if p.Year != 2019 {
		t.Errorf("Year = %d, want 2019", p.Year)
	}
	if p.CitationCount != 7 {
		t.Errorf("CitationCount = %d, want 7 (from elink)", p.CitationCount)
	}
	if len(p.Authors) != 5 {
		t.Errorf("len(Authors) = %d, want 5", len(p.Authors))
	}

	if papers[1].CitationCount != 9 {
		t.Errorf("papers[1].CitationCount = %d, want 9 (pmcrefcount fallback)", papers[1].CitationCount)
	}
	if papers[1].Year != 0 {
		t.Errorf("papers[1].Year = %d, want 0", papers[1].Year)
	}
}

func TestSearch_CitationLookupFailure(t *testing.T) {
	t.Parallel()

	srv := newEutils(t, http.StatusInternalServerError)
	b := pubmed.New(pubmed.WithBaseURL(srv.URL), pubmed.WithRequestDelay(0))

	papers, err := b.Search(context.Background(), []string{"hypertension"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(papers) != 2 || papers[0].CitationCount != 4 {
		t.Errorf("papers = %+v, want pmcrefcount fallback", papers)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	t.Parallel()

	b := pubmed.New(pubmed.WithBaseURL("http://127.0.0.1:1"))
	papers, err := b.Search(context.Background(), nil)
	if err != nil || papers != nil {
		t.Errorf("Search(nil) = %v, %v; want nil, nil", papers, err)
	}
}

func TestSearch_SearchError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b := pubmed.New(pubmed.WithBaseURL(srv.URL), pubmed.WithRequestDelay(0))
	if _, err := b.Search(context.Background(), []string{"asthma"}); err == nil {
		t.Fatal("Search: want error, got nil")
	}
}
