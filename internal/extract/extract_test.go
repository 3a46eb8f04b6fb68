package extract_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/medsift/internal/clinical"
	"github.com/MrWong99/medsift/internal/extract"
	"github.com/MrWong99/medsift/pkg/provider/llm"
	llmmock "github.com/MrWong99/medsift/pkg/provider/llm/mock"
)

const transcript = "Doctor: I'm starting you on metformin 500 mg twice daily. Patient: Okay."

const summaryJSON = `{
  "visit_summary": "  Started metformin.  ",
  "medications": [
    {"name": "Metformin", "dose": "500 mg", "frequency": "twice daily", "evidence": "metformin 500 mg twice daily"},
    {"name": "", "dose": "10 mg"}
  ],
  "tests_ordered": null
}`

func TestRecoverJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
		err  bool
	}{
		{"direct", `{"a": 1}`, `{"a": 1}`, false},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`, false},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`, false},
		{"prose around", "Sure! Here it is:\n{\"a\": {\"b\": 2}}\nLet me know.", `{"a": {"b": 2}}`, false},
		{"array", `[1, 2]`, "", true},
		{"no json", "I cannot help with that.", "", true},
		{"broken", `{"a": `, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := extract.RecoverJSON(tt.raw)
			if tt.err {
				if !errors.Is(err, extract.ErrNoJSON) {
					t.Errorf("RecoverJSON() error = %v, want ErrNoJSON", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("RecoverJSON() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("RecoverJSON() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPatientSummary_FirstAttempt(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{Replies: []llmmock.Reply{{Content: "```json\n" + summaryJSON + "\n```"}}}
	e := extract.New(p)

	s, err := e.PatientSummary(context.Background(), transcript)
	if err != nil {
		t.Fatalf("PatientSummary: %v", err)
	}
	if s.VisitSummary != "Started metformin." {
		t.Errorf("VisitSummary = %q, want trimmed", s.VisitSummary)
	}
	if len(s.Medications) != 1 || s.Medications[0].Name != "Metformin" {
		t.Errorf("Medications = %+v, want only Metformin", s.Medications)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("Complete calls = %d, want 1", len(calls))
	}
	if !strings.Contains(calls[0].SystemPrompt, `"medications"`) {
		t.Error("system prompt does not describe the summary shape")
	}
	if calls[0].Messages[0].Role != llm.RoleUser || !strings.Contains(calls[0].Messages[0].Content, transcript) {
		t.Errorf("user message = %+v", calls[0].Messages[0])
	}
	if calls[0].Temperature != extract.DefaultTemperature {
		t.Errorf("Temperature = %v, want %v", calls[0].Temperature, extract.DefaultTemperature)
	}
}

func TestPatientSummary_RetriesWithCorrectivePrompt(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{Replies: []llmmock.Reply{
		{Content: "The patient was prescribed metformin."},
		{Content: summaryJSON},
	}}
	e := extract.New(p)

	if _, err := e.PatientSummary(context.Background(), transcript); err != nil {
		t.Fatalf("PatientSummary: %v", err)
	}
	calls := p.Calls()
	if len(calls) != 2 {
		t.Fatalf("Complete calls = %d, want 2", len(calls))
	}
	retry := calls[1].Messages[0].Content
	if !strings.HasPrefix(retry, "Your previous response was not valid JSON.") {
		t.Errorf("retry prompt = %q", retry)
	}
	if !strings.Contains(retry, transcript) {
		t.Error("retry prompt lost the transcript")
	}
}

func TestClinicianNote_ShapeErrorRetries(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{Replies: []llmmock.Reply{
		{Content: `{"problem_list": "hypertension"}`},
		{Content: `{"soap_note": {"assessment": {"diagnoses": ["Hypertension"]}}, "action_items": [{"action": "Recheck BP", "priority": "urgent"}]}`},
	}}
	e := extract.New(p)

	n, err := e.ClinicianNote(context.Background(), transcript)
	if err != nil {
		t.Fatalf("ClinicianNote: %v", err)
	}
	if got := n.Conditions(); len(got) != 1 || got[0] != "Hypertension" {
		t.Errorf("Conditions() = %v", got)
	}
	if n.ActionItems[0].Priority != clinical.PriorityMedium {
		t.Errorf("unknown priority normalised to %q, want medium", n.ActionItems[0].Priority)
	}

	retry := p.Calls()[1].Messages[0].Content
	if !strings.Contains(retry, `"problem_list"`) {
		t.Errorf("retry prompt does not name the bad field: %q", retry)
	}
}

func TestExtract_GivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{Replies: []llmmock.Reply{{Content: "nope"}}}
	e := extract.New(p, extract.WithMaxRetries(1))

	_, err := e.PatientSummary(context.Background(), transcript)
	if !errors.Is(err, extract.ErrMalformed) {
		t.Fatalf("PatientSummary() = %v, want ErrMalformed", err)
	}
	if !errors.Is(err, extract.ErrNoJSON) {
		t.Errorf("error %v does not carry the last cause", err)
	}
	if n := len(p.Calls()); n != 2 {
		t.Errorf("Complete calls = %d, want 2", n)
	}
}

func TestExtract_ProviderFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	p := &llmmock.Provider{Replies: []llmmock.Reply{{Err: boom}}}
	e := extract.New(p)

	_, err := e.ClinicianNote(context.Background(), transcript)
	if !errors.Is(err, extract.ErrUnavailable) || !errors.Is(err, boom) {
		t.Fatalf("ClinicianNote() = %v, want ErrUnavailable wrapping %v", err, boom)
	}
	if n := len(p.Calls()); n != 1 {
		t.Errorf("Complete calls = %d, want 1", n)
	}
}

func TestExtract_EmptyTranscript(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{}
	e := extract.New(p)
	if _, err := e.PatientSummary(context.Background(), "  \n"); !errors.Is(err, extract.ErrEmptyTranscript) {
		t.Errorf("PatientSummary() = %v, want ErrEmptyTranscript", err)
	}
	if n := len(p.Calls()); n != 0 {
		t.Errorf("Complete calls = %d, want 0", n)
	}
}
