package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/medsift/internal/clinical"
	"github.com/MrWong99/medsift/internal/observe"
	"github.com/MrWong99/medsift/pkg/store"
	"github.com/MrWong99/medsift/pkg/types"
)

type visitList struct {
	Visits []types.Visit `json:"visits"`
	Count  int           `json:"count"`
	Offset int           `json:"offset"`
	Limit  int           `json:"limit"`
}

func (s *Server) handleListVisits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.VisitFilter{Search: q.Get("search"), Tag: q.Get("tag")}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fail(w, r, "list visits", fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, name))
			return
		}
		*dst = n
	}
	if f.Limit > store.MaxVisitLimit {
		fail(w, r, "list visits", fmt.Errorf("%w: limit must be at most %d", errBadRequest, store.MaxVisitLimit))
		return
	}
	f = store.NormalizeFilter(f)

	visits, err := s.deps.Visits.ListVisits(r.Context(), f)
	if err != nil {
		fail(w, r, "list visits", unavailableUnless(err))
		return
	}
	if visits == nil {
		visits = []types.Visit{}
	}
	respondJSON(w, http.StatusOK, visitList{Visits: visits, Count: len(visits), Offset: f.Offset, Limit: f.Limit})
}

func (s *Server) handleGetVisit(w http.ResponseWriter, r *http.Request) {
	v, err := s.deps.Visits.GetVisit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, "get visit", unavailableUnless(err))
		return
	}
	respondJSON(w, http.StatusOK, v)
}

func (s *Server) handleDeleteVisit(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Visits.DeleteVisit(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, "delete visit", unavailableUnless(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePutClinicianNote replaces a visit's clinician note with a clinician
// edit. The body is normalised before it is stored.
func (s *Server) handlePutClinicianNote(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := decodeJSON(r, &raw); err != nil {
		fail(w, r, "update clinician note", err)
		return
	}
	note, err := clinical.DecodeClinicianNote(raw)
	if err != nil {
		fail(w, r, "update clinician note", fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	s.patchVisit(w, r, "update clinician note", store.VisitPatch{ClinicianNote: mustJSON(note)})
}

// handlePutPatientSummary replaces a visit's patient summary.
func (s *Server) handlePutPatientSummary(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := decodeJSON(r, &raw); err != nil {
		fail(w, r, "update patient summary", err)
		return
	}
	summary, err := clinical.DecodePatientSummary(raw)
	if err != nil {
		fail(w, r, "update patient summary", fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	s.patchVisit(w, r, "update patient summary", store.VisitPatch{PatientSummary: mustJSON(summary)})
}

func (s *Server) patchVisit(w http.ResponseWriter, r *http.Request, op string, p store.VisitPatch) {
	v, err := s.deps.Visits.UpdateVisit(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		fail(w, r, op, unavailableUnless(err))
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// handleVisitGrounding recomputes the grounding report of a stored visit.
// Missing records score as empty documents.
func (s *Server) handleVisitGrounding(w http.ResponseWriter, r *http.Request) {
	v, summary, note, ok := s.loadVisit(w, r, "visit grounding")
	if !ok {
		return
	}
	if summary == nil {
		summary = &clinical.PatientSummary{}
	}
	if note == nil {
		note = &clinical.ClinicianNote{}
	}
	respondJSON(w, http.StatusOK, s.ground(r.Context(), summary, note, v.Transcript))
}

// handleVisitLiterature returns the visit's cached papers, ranking and
// caching them first when there are none or ?refresh=true is given.
func (s *Server) handleVisitLiterature(w http.ResponseWriter, r *http.Request) {
	v, summary, note, ok := s.loadVisit(w, r, "visit literature")
	if !ok {
		return
	}
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	if !refresh && len(v.Literature) > 0 {
		respondJSON(w, http.StatusOK, v.Literature)
		return
	}

	conditions, drugs := note.Conditions(), summary.MedicationNames()
	if len(conditions) == 0 && len(drugs) == 0 {
		respondJSON(w, http.StatusOK, []types.Paper{})
		return
	}
	ctx := r.Context()
	papers := s.deps.Ranker.Rank(ctx, conditions, drugs, nil)
	if len(papers) > 0 {
		if _, err := s.deps.Visits.UpdateVisit(ctx, v.ID, store.VisitPatch{Literature: papers}); err != nil {
			observe.Logger(ctx).Warn("server: caching visit literature failed", "visit_id", v.ID, "err", err)
		}
	}
	respondJSON(w, http.StatusOK, papers)
}

// handleVisitTrials searches the trial registry with the visit's conditions
// and drugs. A registry failure yields an empty list.
func (s *Server) handleVisitTrials(w http.ResponseWriter, r *http.Request) {
	if s.deps.Trials == nil {
		fail(w, r, "visit trials", fmt.Errorf("%w: no trial registry configured", errUnavailable))
		return
	}
	_, summary, note, ok := s.loadVisit(w, r, "visit trials")
	if !ok {
		return
	}
	conditions, drugs := note.Conditions(), summary.MedicationNames()
	if len(conditions) == 0 && len(drugs) == 0 {
		respondJSON(w, http.StatusOK, []types.Trial{})
		return
	}
	ctx := r.Context()
	found, err := s.deps.Trials.Find(ctx, conditions, drugs)
	if err != nil {
		observe.Logger(ctx).Warn("server: trial search failed", "registry", s.deps.Trials.Name(), "err", err)
		found = nil
	}
	if found == nil {
		found = []types.Trial{}
	}
	respondJSON(w, http.StatusOK, found)
}

// loadVisit fetches the visit named by the {id} URL parameter and decodes its
// stored records. Absent records are nil. On failure the response has been
// written and ok is false.
func (s *Server) loadVisit(w http.ResponseWriter, r *http.Request, op string) (v types.Visit, summary *clinical.PatientSummary, note *clinical.ClinicianNote, ok bool) {
	v, err := s.deps.Visits.GetVisit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, op, unavailableUnless(err))
		return types.Visit{}, nil, nil, false
	}
	summary, note, err = decodeRecords(v)
	if err != nil {
		fail(w, r, op, err)
		return types.Visit{}, nil, nil, false
	}
	return v, summary, note, true
}

func decodeRecords(v types.Visit) (*clinical.PatientSummary, *clinical.ClinicianNote, error) {
	var (
		summary *clinical.PatientSummary
		note    *clinical.ClinicianNote
	)
	if present(v.PatientSummary) {
		ps, err := clinical.DecodePatientSummary(v.PatientSummary)
		if err != nil {
			return nil, nil, fmt.Errorf("visit %s: %w", v.ID, err)
		}
		summary = &ps
	}
	if present(v.ClinicianNote) {
		cn, err := clinical.DecodeClinicianNote(v.ClinicianNote)
		if err != nil {
			return nil, nil, fmt.Errorf("visit %s: %w", v.ID, err)
		}
		note = &cn
	}
	return summary, note, nil
}

// mustJSON encodes a clinical record. These types always marshal.
func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("server: marshal %T: %v", v, err))
	}
	return b
}
