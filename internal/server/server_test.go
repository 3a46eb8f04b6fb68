package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/medsift/internal/clinical"
	"github.com/MrWong99/medsift/internal/extract"
	"github.com/MrWong99/medsift/internal/feedback"
	"github.com/MrWong99/medsift/internal/health"
	"github.com/MrWong99/medsift/internal/literature"
	"github.com/MrWong99/medsift/internal/risk"
	"github.com/MrWong99/medsift/internal/server"
	"github.com/MrWong99/medsift/internal/session"
	litmock "github.com/MrWong99/medsift/pkg/provider/literature/mock"
	phimock "github.com/MrWong99/medsift/pkg/provider/phi/mock"
	sttmock "github.com/MrWong99/medsift/pkg/provider/stt/mock"
	trialmock "github.com/MrWong99/medsift/pkg/provider/trials/mock"
	"github.com/MrWong99/medsift/pkg/store"
	"github.com/MrWong99/medsift/pkg/types"
)

// fakeExtractor returns fixed records or a fixed error.
type fakeExtractor struct {
	summary clinical.PatientSummary
	note    clinical.ClinicianNote
	err     error
}

func (f *fakeExtractor) PatientSummary(context.Context, string) (clinical.PatientSummary, error) {
	return f.summary, f.err
}

func (f *fakeExtractor) ClinicianNote(context.Context, string) (clinical.ClinicianNote, error) {
	return f.note, f.err
}

type fixture struct {
	srv      *httptest.Server
	stt      *sttmock.Transcriber
	backend  *litmock.Backend
	trials   *trialmock.Finder
	store    *store.MemStore
	sessions *session.Manager
}

func newFixture(t *testing.T, ex server.Extractor) *fixture {
	t.Helper()
	f := &fixture{
		stt: &sttmock.Transcriber{Result: types.Transcription{
			DurationSeconds: 2,
			Segments:        []types.Segment{{Start: 0, End: 1.5, Text: "John Smith has chest pain"}},
		}},
		backend: &litmock.Backend{ID: "pubmed", Papers: []types.Paper{
			{PaperID: "pmid:1", Title: "Metformin in type 2 diabetes", URL: "https://pubmed.ncbi.nlm.nih.gov/1/"},
		}},
		trials: &trialmock.Finder{ID: "clinicaltrials", Trials: []types.Trial{
			{NCTID: "NCT01", BriefTitle: "Metformin and weight", Status: "RECRUITING"},
		}},
		store: store.NewMemStore(),
	}
	redactor := &phimock.Redactor{Terms: map[string]string{"John Smith": "PERSON"}}
	f.sessions = session.NewManager(session.Config{
		Transcriber:   f.stt,
		Redactor:      redactor,
		MaxChunkBytes: 1024,
	})

	d := server.Deps{
		Sessions: f.sessions,
		Visits:   f.store,
		Redactor: redactor,
		Risk:     risk.New(),
		Ranker:   literature.New([]literature.Backend{f.backend}, literature.WithBoostStore(f.store)),
		Feedback: feedback.NewService(f.store, f.store),
		Trials:   f.trials,
		Health:   health.New(),
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			io.WriteString(w, "# metrics\n")
		}),
	}
	if ex != nil {
		d.Extractor = ex
	}
	f.srv = httptest.NewServer(server.New(d).Handler())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body io.Reader) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func (f *fixture) postJSON(t *testing.T, path string, v any) (*http.Response, []byte) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return f.do(t, http.MethodPost, path, bytes.NewReader(b))
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func wantStatus(t *testing.T, resp *http.Response, body []byte, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, want, body)
	}
}

func (f *fixture) createSession(t *testing.T) string {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/api/live/sessions", nil)
	wantStatus(t, resp, body, http.StatusCreated)
	id := decode[map[string]string](t, body)["session_id"]
	if id == "" {
		t.Fatalf("empty session_id in %s", body)
	}
	return id
}

func TestLiveSession_RESTFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	id := f.createSession(t)

	resp, body := f.do(t, http.MethodPost, "/api/live/sessions/"+id+"/chunks", strings.NewReader("pcm-bytes"))
	wantStatus(t, resp, body, http.StatusOK)
	chunk := decode[session.ChunkResult](t, body)
	if chunk.Text != "[PERSON_1] has chest pain" {
		t.Errorf("chunk text = %q, want redacted", chunk.Text)
	}
	if chunk.EntityCounts["PERSON"] != 1 {
		t.Errorf("entity_count = %v, want PERSON=1", chunk.EntityCounts)
	}

	resp, body = f.do(t, http.MethodGet, "/api/live/sessions/"+id, nil)
	wantStatus(t, resp, body, http.StatusOK)
	if info := decode[map[string]any](t, body); info["chunks"] != 1.0 {
		t.Errorf("info chunks = %v, want 1", info["chunks"])
	}

	resp, body = f.do(t, http.MethodPost, "/api/live/sessions/"+id+"/finalize?visit_type=follow_up&tag=diabetes", nil)
	wantStatus(t, resp, body, http.StatusOK)
	final := decode[struct {
		FullTranscript  string  `json:"full_transcript"`
		DurationSeconds float64 `json:"duration_seconds"`
		TotalChunks     int     `json:"total_chunks"`
		VisitID         string  `json:"visit_id"`
	}](t, body)
	if final.FullTranscript != "Doctor: [PERSON_1] has chest pain" {
		t.Errorf("full_transcript = %q", final.FullTranscript)
	}
	if final.TotalChunks != 1 || final.DurationSeconds != 2 {
		t.Errorf("total_chunks, duration = %d, %v; want 1, 2", final.TotalChunks, final.DurationSeconds)
	}
	if final.VisitID != id {
		t.Errorf("visit_id = %q, want %q", final.VisitID, id)
	}

	resp, body = f.do(t, http.MethodGet, "/api/visits/"+id, nil)
	wantStatus(t, resp, body, http.StatusOK)
	visit := decode[types.Visit](t, body)
	if visit.VisitType != "follow_up" || len(visit.Tags) != 1 || visit.Tags[0] != "diabetes" {
		t.Errorf("visit = %+v, want follow_up tagged diabetes", visit)
	}

	resp, body = f.do(t, http.MethodPost, "/api/live/sessions/"+id+"/finalize", nil)
	wantStatus(t, resp, body, http.StatusNotFound)
}

func TestLiveSession_Errors(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	id := f.createSession(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown session chunk", http.MethodPost, "/api/live/sessions/nope/chunks", "pcm", http.StatusNotFound},
		{"unknown session info", http.MethodGet, "/api/live/sessions/nope", "", http.StatusNotFound},
		{"empty chunk", http.MethodPost, "/api/live/sessions/" + id + "/chunks", "", http.StatusBadRequest},
		{"chunk too large", http.MethodPost, "/api/live/sessions/" + id + "/chunks", strings.Repeat("x", 2048), http.StatusRequestEntityTooLarge},
		{"cleanup unknown", http.MethodDelete, "/api/live/sessions/nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		resp, body := f.do(t, tt.method, tt.path, strings.NewReader(tt.body))
		if resp.StatusCode != tt.want {
			t.Errorf("%s: status = %d, want %d (body %s)", tt.name, resp.StatusCode, tt.want, body)
		}
		if tt.want != http.StatusNoContent && !strings.Contains(string(body), `"error"`) {
			t.Errorf("%s: body %s has no error field", tt.name, body)
		}
	}

	resp, body := f.do(t, http.MethodDelete, "/api/live/sessions/"+id, nil)
	wantStatus(t, resp, body, http.StatusNoContent)
}

func TestLiveSession_TranscriptionFailureIsBadGateway(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.stt.Queue = []sttmock.Response{{Err: errors.New("whisper: connection refused")}}
	id := f.createSession(t)

	resp, body := f.do(t, http.MethodPost, "/api/live/sessions/"+id+"/chunks", strings.NewReader("pcm"))
	wantStatus(t, resp, body, http.StatusBadGateway)

	// The session survives a failed chunk.
	resp, body = f.do(t, http.MethodPost, "/api/live/sessions/"+id+"/chunks", strings.NewReader("pcm"))
	wantStatus(t, resp, body, http.StatusOK)
	if got := decode[session.ChunkResult](t, body).ChunkIndex; got != 0 {
		t.Errorf("chunk_index = %d, want 0", got)
	}
}

func TestGrounding(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	resp, body := f.postJSON(t, "/api/grounding", map[string]any{
		"transcript": "Doctor: take metformin 500mg twice daily with meals.",
		"patient_summary": map[string]any{
			"medications": []map[string]any{
				{"name": "Metformin", "dose": "500mg", "frequency": "twice daily", "evidence": "take metformin 500mg twice daily"},
				{"name": "  ", "evidence": "dropped by normalization"},
			},
		},
		"clinician_note": nil,
	})
	wantStatus(t, resp, body, http.StatusOK)
	rep := decode[struct {
		TotalItems    int `json:"total_items"`
		GroundedCount int `json:"grounded_count"`
	}](t, body)
	if rep.TotalItems != 1 || rep.GroundedCount != 1 {
		t.Errorf("total, grounded = %d, %d; want 1, 1", rep.TotalItems, rep.GroundedCount)
	}

	for _, bad := range []string{`{"transcript": ""}`, `{not json`, `{"transcript":"x","patient_summary":"oops"}`} {
		resp, body := f.do(t, http.MethodPost, "/api/grounding", strings.NewReader(bad))
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400 (%s)", bad, resp.StatusCode, body)
		}
	}
}

func TestRisk(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	resp, body := f.postJSON(t, "/api/risk", map[string]any{
		"patient_summary": map[string]any{"visit_summary": "Patient has chest pain and difficulty breathing"},
	})
	wantStatus(t, resp, body, http.StatusOK)
	a := decode[risk.Assessment](t, body)
	if a.Score != 30 || a.Level != risk.LevelLow {
		t.Errorf("score, level = %d, %q; want 30, low", a.Score, a.Level)
	}
	if len(a.RedFlags) == 0 {
		t.Error("red_flags is empty, want an emergency symptom flag")
	}
	if a.Disclaimer != risk.Disclaimer {
		t.Errorf("disclaimer = %q", a.Disclaimer)
	}
}

func TestLiterature(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	resp, body := f.postJSON(t, "/api/literature", map[string]any{
		"conditions": []string{"type 2 diabetes"},
		"drugs":      []string{"metformin"},
	})
	wantStatus(t, resp, body, http.StatusOK)
	got := decode[struct {
		Query  []string      `json:"query"`
		Papers []types.Paper `json:"papers"`
	}](t, body)
	if len(got.Query) == 0 {
		t.Error("query is empty")
	}
	if len(got.Papers) != 1 || got.Papers[0].Source != types.SourcePubMed {
		t.Fatalf("papers = %+v, want one pubmed paper", got.Papers)
	}
	if got.Papers[0].RelevanceExplanation == "" {
		t.Error("relevance_explanation is empty")
	}
}

func TestAnalyze(t *testing.T) {
	t.Parallel()
	ex := &fakeExtractor{
		summary: clinical.PatientSummary{
			VisitSummary: "Diabetes follow up",
			Medications: []clinical.Medication{
				{Name: "Metformin", Dose: "500mg", Frequency: "twice daily", Evidence: "take metformin 500mg twice daily"},
			},
		},
		note: clinical.ClinicianNote{SOAPNote: clinical.SOAPNote{
			Assessment: clinical.Assessment{Diagnoses: []string{"type 2 diabetes"}},
		}},
	}
	f := newFixture(t, ex)

	resp, body := f.postJSON(t, "/api/analyze", map[string]any{
		"transcript": "Doctor: John Smith, take metformin 500mg twice daily with meals.",
		"visit_type": "follow_up",
	})
	wantStatus(t, resp, body, http.StatusOK)
	got := decode[struct {
		VisitID            string         `json:"visit_id"`
		RedactedTranscript string         `json:"redacted_transcript"`
		EntityCount        map[string]int `json:"entity_count"`
		SummaryEvidence    struct {
			Verified int `json:"verified"`
			Total    int `json:"total"`
		} `json:"summary_evidence"`
		Grounding struct {
			TotalItems int `json:"total_items"`
		} `json:"grounding"`
		Risk       risk.Assessment `json:"risk"`
		Literature []types.Paper   `json:"literature"`
	}](t, body)

	if !strings.HasPrefix(got.RedactedTranscript, "Doctor: [PERSON_1]") {
		t.Errorf("redacted_transcript = %q", got.RedactedTranscript)
	}
	if got.EntityCount["PERSON"] != 1 {
		t.Errorf("entity_count = %v", got.EntityCount)
	}
	if got.SummaryEvidence.Verified != 1 || got.SummaryEvidence.Total != 1 {
		t.Errorf("summary_evidence = %+v, want 1/1", got.SummaryEvidence)
	}
	if got.Grounding.TotalItems != 1 {
		t.Errorf("grounding.total_items = %d, want 1", got.Grounding.TotalItems)
	}
	if got.Risk.Disclaimer == "" {
		t.Error("risk disclaimer missing")
	}
	if len(got.Literature) != 1 {
		t.Errorf("literature = %d papers, want 1", len(got.Literature))
	}
	if got.VisitID == "" {
		t.Fatal("visit_id is empty")
	}
	v, err := f.store.GetVisit(context.Background(), got.VisitID)
	if err != nil {
		t.Fatalf("GetVisit: %v", err)
	}
	if v.Transcript != got.RedactedTranscript || v.VisitType != "follow_up" {
		t.Errorf("stored visit = %+v", v)
	}

	calls := f.backend.Calls()
	if len(calls) != 1 || !strings.Contains(strings.ToLower(strings.Join(calls[0], " ")), "metformin") {
		t.Errorf("literature query = %v, want it to include the medication", calls)
	}
}

func TestAnalyze_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ex   server.Extractor
		body string
		want int
	}{
		{"no extractor", nil, `{"transcript":"hello"}`, http.StatusServiceUnavailable},
		{"empty transcript", &fakeExtractor{}, `{"transcript":"  "}`, http.StatusBadRequest},
		{"model down", &fakeExtractor{err: fmt.Errorf("%w: timeout", extract.ErrUnavailable)}, `{"transcript":"hello"}`, http.StatusServiceUnavailable},
		{"malformed output", &fakeExtractor{err: extract.ErrMalformed}, `{"transcript":"hello"}`, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, tt.ex)
			resp, body := f.do(t, http.MethodPost, "/api/analyze", strings.NewReader(tt.body))
			wantStatus(t, resp, body, tt.want)
		})
	}
}

func TestFeedback(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	resp, body := f.postJSON(t, "/api/feedback", types.FeedbackRecord{
		VisitID:   "v1",
		Type:      types.FeedbackLiteratureRelevance,
		ItemType:  "paper",
		ItemValue: "Metformin and cardiovascular outcomes",
		Rating:    types.RatingRelevant,
	})
	wantStatus(t, resp, body, http.StatusCreated)
	if rec := decode[types.FeedbackRecord](t, body); rec.ID == "" {
		t.Error("saved feedback has no id")
	}

	resp, body = f.postJSON(t, "/api/feedback", types.FeedbackRecord{
		VisitID:   "v1",
		Type:      types.FeedbackExtractionAccuracy,
		ItemType:  "medication",
		ItemValue: "Metformin",
		Rating:    types.RatingRelevant,
	})
	wantStatus(t, resp, body, http.StatusBadRequest)

	resp, body = f.do(t, http.MethodGet, "/api/feedback/keywords?min_score=0.5", nil)
	wantStatus(t, resp, body, http.StatusOK)
	ks := decode[[]types.BoostedKeyword](t, body)
	if len(ks) == 0 {
		t.Fatal("no boosted keywords after relevant feedback")
	}

	resp, body = f.do(t, http.MethodGet, "/api/feedback/keywords?min_score=high", nil)
	wantStatus(t, resp, body, http.StatusBadRequest)

	resp, body = f.do(t, http.MethodGet, "/api/feedback/analytics", nil)
	wantStatus(t, resp, body, http.StatusOK)
	a := decode[feedback.Analytics](t, body)
	if a.TotalFeedbackCount != 1 || a.LiteratureRelevanceRate != 1 {
		t.Errorf("analytics = %+v, want 1 record at rate 1", a)
	}

	resp, body = f.do(t, http.MethodGet, "/api/visits/v1/feedback", nil)
	wantStatus(t, resp, body, http.StatusOK)
	if recs := decode[[]types.FeedbackRecord](t, body); len(recs) != 1 {
		t.Errorf("visit feedback = %d records, want 1", len(recs))
	}
}

func TestVisits_NotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	resp, body := f.do(t, http.MethodGet, "/api/visits/missing", nil)
	wantStatus(t, resp, body, http.StatusNotFound)
}

func TestOpsRoutes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, body := f.do(t, http.MethodGet, path, nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200 (%s)", path, resp.StatusCode, body)
		}
	}
}
