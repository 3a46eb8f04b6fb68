package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/medsift/internal/clinical"
	"github.com/MrWong99/medsift/internal/grounding"
	"github.com/MrWong99/medsift/internal/observe"
	"github.com/MrWong99/medsift/internal/risk"
	"github.com/MrWong99/medsift/pkg/types"
)

// records carries optional extraction results in request bodies. Absent or
// null members decode to nil.
type records struct {
	PatientSummary json.RawMessage `json:"patient_summary"`
	ClinicianNote  json.RawMessage `json:"clinician_note"`
}

func (rc records) decode() (*clinical.PatientSummary, *clinical.ClinicianNote, error) {
	var (
		summary *clinical.PatientSummary
		note    *clinical.ClinicianNote
	)
	if present(rc.PatientSummary) {
		s, err := clinical.DecodePatientSummary(rc.PatientSummary)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", errBadRequest, err)
		}
		summary = &s
	}
	if present(rc.ClinicianNote) {
		n, err := clinical.DecodeClinicianNote(rc.ClinicianNote)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", errBadRequest, err)
		}
		note = &n
	}
	return summary, note, nil
}

func present(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

type groundingRequest struct {
	records
	Transcript string `json:"transcript"`
}

type riskRequest struct {
	records
}

type literatureRequest struct {
	Conditions []string `json:"conditions"`
	Drugs      []string `json:"drugs"`
	Keywords   []string `json:"keywords"`
}

type literatureResponse struct {
	Query  []string      `json:"query"`
	Papers []types.Paper `json:"papers"`
}

type analyzeRequest struct {
	Transcript string   `json:"transcript"`
	VisitType  string   `json:"visit_type"`
	Tags       []string `json:"tags"`
}

// verification counts how many extracted items carry evidence that can be
// found in the transcript.
type verification struct {
	Verified int `json:"verified"`
	Total    int `json:"total"`
}

type analyzeResponse struct {
	VisitID            string                  `json:"visit_id,omitempty"`
	RedactedTranscript string                  `json:"redacted_transcript"`
	EntityCount        map[string]int          `json:"entity_count"`
	PatientSummary     clinical.PatientSummary `json:"patient_summary"`
	ClinicianNote      clinical.ClinicianNote  `json:"clinician_note"`
	SummaryEvidence    verification            `json:"summary_evidence"`
	NoteEvidence       verification            `json:"note_evidence"`
	Grounding          grounding.Report        `json:"grounding"`
	Risk               risk.Assessment         `json:"risk"`
	Literature         []types.Paper           `json:"literature"`
}

func (s *Server) handleGrounding(w http.ResponseWriter, r *http.Request) {
	var req groundingRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, "grounding", err)
		return
	}
	if strings.TrimSpace(req.Transcript) == "" {
		fail(w, r, "grounding", fmt.Errorf("%w: transcript is required", errBadRequest))
		return
	}
	summary, note, err := req.decode()
	if err != nil {
		fail(w, r, "grounding", err)
		return
	}
	respondJSON(w, http.StatusOK, s.ground(r.Context(), summary, note, req.Transcript))
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	var req riskRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, "risk", err)
		return
	}
	summary, note, err := req.decode()
	if err != nil {
		fail(w, r, "risk", err)
		return
	}
	respondJSON(w, http.StatusOK, s.deps.Risk.Assess(summary, note))
}

func (s *Server) handleLiterature(w http.ResponseWriter, r *http.Request) {
	var req literatureRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, "literature", err)
		return
	}
	ctx := r.Context()
	respondJSON(w, http.StatusOK, literatureResponse{
		Query:  nonNilStrings(s.deps.Ranker.Query(ctx, req.Conditions, req.Drugs, req.Keywords)),
		Papers: s.deps.Ranker.Rank(ctx, req.Conditions, req.Drugs, req.Keywords),
	})
}

// handleAnalyze runs a complete transcript through redaction, extraction,
// evidence verification, grounding, risk and literature, then stores it as a
// visit.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.deps.Extractor == nil {
		fail(w, r, "analyze", fmt.Errorf("%w: no language model configured", errUnavailable))
		return
	}
	var req analyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, "analyze", err)
		return
	}
	if strings.TrimSpace(req.Transcript) == "" {
		fail(w, r, "analyze", fmt.Errorf("%w: transcript is required", errBadRequest))
		return
	}

	ctx, span := observe.StartSpan(r.Context(), "server.analyze")
	defer span.End()

	red, err := s.deps.Redactor.Redact(ctx, req.Transcript)
	if err != nil {
		fail(w, r, "analyze", fmt.Errorf("redact: %w", err))
		return
	}
	transcript := red.Text

	var (
		summary clinical.PatientSummary
		note    clinical.ClinicianNote
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		summary, err = s.deps.Extractor.PatientSummary(gctx, transcript)
		return err
	})
	g.Go(func() (err error) {
		note, err = s.deps.Extractor.ClinicianNote(gctx, transcript)
		return err
	})
	if err := g.Wait(); err != nil {
		fail(w, r, "analyze", err)
		return
	}

	var sumEv, noteEv verification
	sumEv.Verified, sumEv.Total = clinical.VerifySummary(&summary, transcript)
	noteEv.Verified, noteEv.Total = clinical.VerifyNote(&note, transcript)

	resp := analyzeResponse{
		SummaryEvidence:    sumEv,
		NoteEvidence:       noteEv,
		RedactedTranscript: transcript,
		EntityCount:        red.EntityCounts,
		PatientSummary:     summary,
		ClinicianNote:      note,
		Grounding:          s.ground(ctx, &summary, &note, transcript),
		Risk:               s.deps.Risk.Assess(&summary, &note),
		Literature:         s.deps.Ranker.Rank(ctx, note.Conditions(), summary.MedicationNames(), nil),
	}
	if resp.EntityCount == nil {
		resp.EntityCount = map[string]int{}
	}

	if v, ok := s.archive.Save(ctx, types.Visit{
		VisitType:      req.VisitType,
		Tags:           req.Tags,
		Transcript:     transcript,
		Segments:       []types.Segment{},
		PatientSummary: mustJSON(summary),
		ClinicianNote:  mustJSON(note),
		Literature:     resp.Literature,
	}); ok {
		resp.VisitID = v.ID
	}
	respondJSON(w, http.StatusOK, resp)
}

// ground builds a grounding report and records how long it took.
func (s *Server) ground(ctx context.Context, summary *clinical.PatientSummary, note *clinical.ClinicianNote, transcript string) grounding.Report {
	start := time.Now()
	rep := grounding.BuildReport(summary, note, transcript)
	if s.deps.Metrics != nil {
		s.deps.Metrics.GroundingDuration.Record(ctx, time.Since(start).Seconds())
	}
	return rep
}

func nonNilStrings(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
