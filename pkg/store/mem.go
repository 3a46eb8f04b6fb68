package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/medsift/pkg/types"
)

var _ Store = (*MemStore)(nil)

// MemStore is an in-memory [Store]. The zero value is not usable; call
// [NewMemStore].
type MemStore struct {
	mu       sync.Mutex
	boosts   map[string]*types.BoostedKeyword
	feedback []types.FeedbackRecord
	visits   map[string]types.Visit
	now      func() time.Time
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		boosts: make(map[string]*types.BoostedKeyword),
		visits: make(map[string]types.Visit),
		now:    time.Now,
	}
}

// Boosted implements [BoostStore].
func (m *MemStore) Boosted(_ context.Context, minScore float64) ([]types.BoostedKeyword, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.BoostedKeyword, 0, len(m.boosts))
	for _, k := range m.boosts {
		if k.BoostScore >= minScore {
			out = append(out, *k)
		}
	}
	SortBoosted(out)
	return out, nil
}

// UpdateBoosts implements [BoostStore].
func (m *MemStore) UpdateBoosts(_ context.Context, keywords []string, positive bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		k, ok := m.boosts[kw]
		if !ok {
			k = &types.BoostedKeyword{Keyword: kw}
			m.boosts[kw] = k
		}
		if positive {
			k.PositiveCount++
		} else {
			k.NegativeCount++
		}
		k.BoostScore = k.Score()
	}
	return nil
}

// SaveFeedback implements [FeedbackStore].
func (m *MemStore) SaveFeedback(_ context.Context, rec types.FeedbackRecord) (types.FeedbackRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = m.now().UTC()
	}
	m.feedback = append(m.feedback, rec)
	return rec, nil
}

// ListFeedback implements [FeedbackStore].
func (m *MemStore) ListFeedback(_ context.Context) ([]types.FeedbackRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.feedback), nil
}

// SaveVisit implements [VisitStore].
func (m *MemStore) SaveVisit(_ context.Context, v types.Visit) (types.Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = m.now().UTC()
	}
	v = cloneVisit(v)
	m.visits[v.ID] = v
	return cloneVisit(v), nil
}

// GetVisit implements [VisitStore].
func (m *MemStore) GetVisit(_ context.Context, id string) (types.Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.visits[id]
	if !ok {
		return types.Visit{}, fmt.Errorf("visit %q: %w", id, ErrNotFound)
	}
	return cloneVisit(v), nil
}

// ListVisits implements [VisitStore].
func (m *MemStore) ListVisits(_ context.Context, f VisitFilter) ([]types.Visit, error) {
	f = NormalizeFilter(f)
	search := strings.ToLower(strings.TrimSpace(f.Search))

	m.mu.Lock()
	var all []types.Visit
	for _, v := range m.visits {
		if f.Tag != "" && !slices.Contains(v.Tags, f.Tag) {
			continue
		}
		if search != "" && !visitContains(v, search) {
			continue
		}
		all = append(all, v)
	}
	m.mu.Unlock()

	slices.SortFunc(all, func(a, b types.Visit) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if f.Offset >= len(all) {
		return []types.Visit{}, nil
	}
	all = all[f.Offset:]
	if len(all) > f.Limit {
		all = all[:f.Limit]
	}
	out := make([]types.Visit, len(all))
	for i, v := range all {
		out[i] = cloneVisit(v)
	}
	return out, nil
}

// UpdateVisit implements [VisitStore].
func (m *MemStore) UpdateVisit(_ context.Context, id string, p VisitPatch) (types.Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.visits[id]
	if !ok {
		return types.Visit{}, fmt.Errorf("visit %q: %w", id, ErrNotFound)
	}
	if p.PatientSummary != nil {
		v.PatientSummary = slices.Clone(p.PatientSummary)
	}
	if p.ClinicianNote != nil {
		v.ClinicianNote = slices.Clone(p.ClinicianNote)
	}
	if p.Literature != nil {
		v.Literature = slices.Clone(p.Literature)
	}
	m.visits[id] = v
	return cloneVisit(v), nil
}

// DeleteVisit implements [VisitStore].
func (m *MemStore) DeleteVisit(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.visits[id]; !ok {
		return fmt.Errorf("visit %q: %w", id, ErrNotFound)
	}
	delete(m.visits, id)
	return nil
}

func visitContains(v types.Visit, search string) bool {
	if strings.Contains(strings.ToLower(v.Transcript), search) ||
		strings.Contains(strings.ToLower(v.VisitType), search) {
		return true
	}
	return slices.ContainsFunc(v.Tags, func(t string) bool {
		return strings.Contains(strings.ToLower(t), search)
	})
}

func cloneVisit(v types.Visit) types.Visit {
	v.Tags = slices.Clone(v.Tags)
	v.Segments = slices.Clone(v.Segments)
	v.PatientSummary = slices.Clone(v.PatientSummary)
	v.ClinicianNote = slices.Clone(v.ClinicianNote)
	v.Literature = slices.Clone(v.Literature)
	return v
}

// SortBoosted orders keywords by score, then total votes, both descending,
// then alphabetically.
func SortBoosted(ks []types.BoostedKeyword) {
	slices.SortStableFunc(ks, func(a, b types.BoostedKeyword) int {
		if c := cmp.Compare(b.BoostScore, a.BoostScore); c != 0 {
			return c
		}
		if c := cmp.Compare(b.PositiveCount+b.NegativeCount, a.PositiveCount+a.NegativeCount); c != 0 {
			return c
		}
		return strings.Compare(a.Keyword, b.Keyword)
	})
}
