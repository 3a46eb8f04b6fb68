package server

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/medsift/internal/session"
	"github.com/MrWong99/medsift/pkg/types"
)

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type sessionInfoResponse struct {
	SessionID       string    `json:"session_id"`
	State           string    `json:"state"`
	Chunks          int       `json:"chunks"`
	DurationSeconds float64   `json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"`
	LastActive      time.Time `json:"last_active"`
}

// finalizeResponse is the finalized transcript plus the id of the archived
// visit. VisitID is empty when archiving failed or the transcript was blank.
type finalizeResponse struct {
	session.FinalResult
	VisitID string `json:"visit_id,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.deps.Sessions.Create()
	if err != nil {
		fail(w, r, "create session", err)
		return
	}
	respondJSON(w, http.StatusCreated, createSessionResponse{SessionID: id})
}

func (s *Server) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, ok := s.deps.Sessions.Info(id)
	if !ok {
		fail(w, r, "session info", fmt.Errorf("%w: %s", errSessionNotFound, id))
		return
	}
	respondJSON(w, http.StatusOK, sessionInfoResponse{
		SessionID:       info.ID,
		State:           info.State.String(),
		Chunks:          info.Chunks,
		DurationSeconds: info.DurationSeconds,
		CreatedAt:       info.CreatedAt,
		LastActive:      info.LastActive,
	})
}

func (s *Server) handleSubmitChunk(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.deps.Sessions.Info(id); !ok {
		fail(w, r, "submit chunk", fmt.Errorf("%w: %s", errSessionNotFound, id))
		return
	}

	audio, err := io.ReadAll(r.Body)
	if err != nil {
		fail(w, r, "submit chunk", fmt.Errorf("%w: read body: %w", errBadRequest, err))
		return
	}
	if len(audio) == 0 {
		fail(w, r, "submit chunk", fmt.Errorf("%w: empty audio", errBadRequest))
		return
	}

	res, err := s.deps.Sessions.SubmitChunk(r.Context(), id, audio)
	if err != nil {
		fail(w, r, "submit chunk", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, ok := s.finalize(r, id)
	if !ok {
		fail(w, r, "finalize", fmt.Errorf("%w: %s", errSessionNotFound, id))
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// finalize closes the session and archives it as a visit.
func (s *Server) finalize(r *http.Request, id string) (finalizeResponse, bool) {
	res, ok := s.deps.Sessions.Finalize(r.Context(), id)
	if !ok {
		return finalizeResponse{}, false
	}
	out := finalizeResponse{FinalResult: res}
	visitType := r.URL.Query().Get("visit_type")
	if v, saved := s.archive.Archive(r.Context(), res, visitType, tagsFrom(r)...); saved {
		out.VisitID = v.ID
	}
	return out, true
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.deps.Sessions.Cleanup(id) {
		fail(w, r, "cleanup", fmt.Errorf("%w: %s", errSessionNotFound, id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// tagsFrom reads repeated ?tag= query parameters.
func tagsFrom(r *http.Request) []string {
	return r.URL.Query()["tag"]
}

// partialFrom converts a chunk result into the WebSocket partial message.
func partialFrom(res session.ChunkResult) partialMessage {
	counts := res.EntityCounts
	if counts == nil {
		counts = map[string]int{}
	}
	return partialMessage{
		Type:        msgPartial,
		ChunkIndex:  res.ChunkIndex,
		Text:        res.Text,
		Speaker:     res.Speaker,
		EntityCount: counts,
		Segments:    nonNilSegments(res.Segments),
	}
}

func nonNilSegments(segs []types.Segment) []types.Segment {
	if segs == nil {
		return []types.Segment{}
	}
	return segs
}
