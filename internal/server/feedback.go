package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/medsift/pkg/types"
)

func (s *Server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var rec types.FeedbackRecord
	if err := decodeJSON(r, &rec); err != nil {
		fail(w, r, "submit feedback", err)
		return
	}
	saved, err := s.deps.Feedback.Submit(r.Context(), rec)
	if err != nil {
		fail(w, r, "submit feedback", unavailableUnless(err))
		return
	}
	respondJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Feedback.Analytics(r.Context())
	if err != nil {
		fail(w, r, "analytics", unavailableUnless(err))
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleKeywords(w http.ResponseWriter, r *http.Request) {
	minScore := 0.0
	if v := r.URL.Query().Get("min_score"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			fail(w, r, "keywords", fmt.Errorf("%w: min_score must be a number in [0, 1]", errBadRequest))
			return
		}
		minScore = f
	}
	ks, err := s.deps.Feedback.Keywords(r.Context(), minScore)
	if err != nil {
		fail(w, r, "keywords", unavailableUnless(err))
		return
	}
	respondJSON(w, http.StatusOK, ks)
}

func (s *Server) handleVisitFeedback(w http.ResponseWriter, r *http.Request) {
	recs, err := s.deps.Feedback.ForVisit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, "visit feedback", unavailableUnless(err))
		return
	}
	if recs == nil {
		recs = []types.FeedbackRecord{}
	}
	respondJSON(w, http.StatusOK, recs)
}

// unavailableUnless marks storage failures as 503 while keeping errors that
// already map to a client status.
func unavailableUnless(err error) error {
	if statusFor(err) < http.StatusInternalServerError {
		return err
	}
	return fmt.Errorf("%w: %w", errUnavailable, err)
}
