package session

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/MrWong99/medsift/pkg/store"
	"github.com/MrWong99/medsift/pkg/types"
)

// VisitGuard archives finalized sessions as visits without letting a storage
// outage fail the request. A failed write is logged and the guard reports
// itself degraded until the next successful write.
type VisitGuard struct {
	store    store.VisitStore
	degraded atomic.Bool
}

// NewVisitGuard wraps vs.
func NewVisitGuard(vs store.VisitStore) *VisitGuard {
	return &VisitGuard{store: vs}
}

// Archive stores r as a visit and returns it. ok is false when the store
// failed; the returned visit is then not persisted and has no id.
func (g *VisitGuard) Archive(ctx context.Context, r FinalResult, visitType string, tags ...string) (types.Visit, bool) {
	return g.Save(ctx, types.Visit{
		ID:              r.SessionID,
		VisitType:       visitType,
		Tags:            tags,
		DurationSeconds: r.DurationSeconds,
		Transcript:      r.FullTranscript,
		Segments:        r.Segments,
		Chunks:          r.TotalChunks,
	})
}

// Save stores v, swallowing and logging any error.
func (g *VisitGuard) Save(ctx context.Context, v types.Visit) (types.Visit, bool) {
	if strings.TrimSpace(v.Transcript) == "" {
		return v, false
	}
	saved, err := g.store.SaveVisit(ctx, v)
	if err != nil {
		g.degraded.Store(true)
		slog.Warn("visit guard: save failed, visit not archived", "visit_id", v.ID, "err", err)
		v.ID = ""
		return v, false
	}
	g.degraded.Store(false)
	return saved, true
}

// IsDegraded reports whether the most recent write failed.
func (g *VisitGuard) IsDegraded() bool {
	return g.degraded.Load()
}
