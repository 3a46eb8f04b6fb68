// Package store defines the persistence interfaces used by medsift.
//
// Three stores exist:
//
//   - [BoostStore]: the keyword-boost table learned from literature feedback.
//     Shared process-wide; read by every ranking request and updated by
//     feedback events. Updates must be atomic per keyword.
//   - [FeedbackStore]: append-only log of clinician feedback records.
//   - [VisitStore]: finalised, redacted visit transcripts.
//
// [MemStore] implements all three in memory. The postgres subpackage provides
// a durable implementation. Every implementation must be safe for concurrent
// use.
package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/MrWong99/medsift/pkg/types"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// BoostStore persists keyword boost counters.
type BoostStore interface {
	// Boosted returns keywords whose boost score is at least minScore, highest
	// score first.
	Boosted(ctx context.Context, minScore float64) ([]types.BoostedKeyword, error)

	// UpdateBoosts increments the positive (or negative) counter of every
	// keyword and recomputes its score. Keywords are lower-cased.
	UpdateBoosts(ctx context.Context, keywords []string, positive bool) error
}

// FeedbackStore persists clinician feedback.
type FeedbackStore interface {
	// SaveFeedback appends rec. Implementations assign an ID and a timestamp
	// when they are empty.
	SaveFeedback(ctx context.Context, rec types.FeedbackRecord) (types.FeedbackRecord, error)

	// ListFeedback returns every stored record, oldest first.
	ListFeedback(ctx context.Context) ([]types.FeedbackRecord, error)
}

// VisitStore persists finalised visits.
type VisitStore interface {
	// SaveVisit stores v, assigning an ID and creation time when empty.
	SaveVisit(ctx context.Context, v types.Visit) (types.Visit, error)

	// GetVisit returns the visit with id or [ErrNotFound].
	GetVisit(ctx context.Context, id string) (types.Visit, error)

	// ListVisits returns the visits matching f, newest first.
	ListVisits(ctx context.Context, f VisitFilter) ([]types.Visit, error)

	// UpdateVisit applies p to the visit with id atomically and returns the
	// result, or [ErrNotFound].
	UpdateVisit(ctx context.Context, id string, p VisitPatch) (types.Visit, error)

	// DeleteVisit removes the visit with id or returns [ErrNotFound].
	DeleteVisit(ctx context.Context, id string) error
}

// Listing bounds applied by [NormalizeFilter].
const (
	DefaultVisitLimit = 50
	MaxVisitLimit     = 200
)

// VisitFilter narrows [VisitStore.ListVisits].
type VisitFilter struct {
	// Search matches visits whose transcript, visit type or tags contain it,
	// case-insensitively. Empty matches everything.
	Search string

	// Tag keeps visits carrying exactly this tag.
	Tag string

	Limit  int
	Offset int
}

// NormalizeFilter clamps Limit to [1, MaxVisitLimit], defaulting to
// DefaultVisitLimit, and Offset to >= 0.
func NormalizeFilter(f VisitFilter) VisitFilter {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultVisitLimit
	case f.Limit > MaxVisitLimit:
		f.Limit = MaxVisitLimit
	}
	f.Offset = max(f.Offset, 0)
	return f
}

// VisitPatch replaces the extracted records of a visit. Nil members are left
// unchanged.
type VisitPatch struct {
	PatientSummary json.RawMessage
	ClinicianNote  json.RawMessage
	Literature     []types.Paper
}

// Store bundles all three stores.
type Store interface {
	BoostStore
	FeedbackStore
	VisitStore
}
