package presidio_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/medsift/pkg/provider/phi/presidio"
)

func newAnalyzer(t *testing.T, results func(text string) any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Text             string            `json:"text"`
			Language         string            `json:"language"`
			AdHocRecognizers []json.RawMessage `json:"ad_hoc_recognizers"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(req.AdHocRecognizers) != 2 {
			t.Errorf("ad_hoc_recognizers = %d, want 2", len(req.AdHocRecognizers))
		}
		_ = json.NewEncoder(w).Encode(results(req.Text))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRedact_IndexedTags(t *testing.T) {
	t.Parallel()

	srv := newAnalyzer(t, func(text string) any {
		type res struct {
			EntityType string  `json:"entity_type"`
			Start      int     `json:"start"`
			End        int     `json:"end"`
			Score      float64 `json:"score"`
		}
		var out []res
		for _, name := range []string{"John Smith", "Jane Doe"} {
			if i := strings.Index(text, name); i >= 0 {
				out = append(out, res{"PERSON", i, i + len(name), 0.85})
			}
		}
		return out
	})

	r, err := presidio.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := r.Redact(context.Background(), "Dr. John Smith discussed results with patient Jane Doe.")
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	want := "Dr. [PERSON_1] discussed results with patient [PERSON_2]."
	if got.Text != want {
		t.Errorf("Text = %q, want %q", got.Text, want)
	}
	if got.EntityCounts["PERSON"] != 2 {
		t.Errorf("EntityCounts[PERSON] = %d, want 2", got.EntityCounts["PERSON"])
	}
}

func TestRedact_RuneOffsets(t *testing.T) {
	t.Parallel()

	// "José" is 4 code points but 5 bytes.
	srv := newAnalyzer(t, func(string) any {
		return []map[string]any{{"entity_type": "PERSON", "start": 4, "end": 8, "score": 0.9}}
	})
	r, _ := presidio.New(srv.URL)
	got, err := r.Redact(context.Background(), "Sr. José has pain")
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	if got.Text != "Sr. [PERSON_1] has pain" {
		t.Errorf("Text = %q", got.Text)
	}
}

func TestRedact_Blank(t *testing.T) {
	t.Parallel()

	r, _ := presidio.New("http://127.0.0.1:1")
	got, err := r.Redact(context.Background(), "  ")
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	if got.Text != "  " || len(got.EntityCounts) != 0 {
		t.Errorf("Redact(blank) = %+v", got)
	}
}

func TestRedact_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r, _ := presidio.New(srv.URL)
	if _, err := r.Redact(context.Background(), "John"); err == nil {
		t.Fatal("Redact: want error, got nil")
	}
}

func TestNew_EmptyURL(t *testing.T) {
	t.Parallel()

	if _, err := presidio.New(""); err == nil {
		t.Fatal("New(\"\"): want error")
	}
}
