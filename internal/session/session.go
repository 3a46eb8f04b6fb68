// Package session implements the live transcription pipeline.
//
// A [Manager] owns a registry of in-memory sessions. Each session turns a
// stream of short audio chunks into one consistent, PHI-redacted transcript:
// chunk-local segment timestamps are shifted onto a session timeline, speaker
// turns are tracked across chunk boundaries and every segment is redacted
// before it is stored. [Manager.Finalize] re-derives speaker labels over the
// whole transcript and merges them into readable blocks.
//
// Sessions move through Created, Active, Finalizing and Closed. They are never
// persisted by this package; callers archive a [FinalResult] themselves, see
// [VisitGuard].
//
// All exported methods are safe for concurrent use. Chunks for one session are
// processed one at a time under that session's lock; different sessions run
// fully in parallel. The registry lock is held only for lookup, insert and
// eviction.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/medsift/internal/observe"
	"github.com/MrWong99/medsift/pkg/provider/phi"
	"github.com/MrWong99/medsift/pkg/provider/stt"
	"github.com/MrWong99/medsift/pkg/types"
)

// Defaults applied by [NewManager] for zero config values.
const (
	DefaultTimeout        = 30 * time.Minute
	DefaultPauseThreshold = 1.5
)

var (
	// ErrNotActive is returned when a chunk is submitted to a session that is
	// unknown, evicted, finalizing or closed.
	ErrNotActive = errors.New("session: not active")

	// ErrDuplicate is returned by [Manager.CreateWithID] for an id that is
	// already registered.
	ErrDuplicate = errors.New("session: duplicate id")

	// ErrChunkTooLarge is returned for chunks above Config.MaxChunkBytes.
	ErrChunkTooLarge = errors.New("session: chunk too large")
)

// State is the lifecycle state of a session.
type State int32

const (
	StateCreated State = iota
	StateActive
	StateFinalizing
	StateClosed
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ChunkResult is the outcome of one successfully processed chunk.
type ChunkResult struct {
	ChunkIndex   int             `json:"chunk_index"`
	Text         string          `json:"text"`
	Speaker      string          `json:"speaker"`
	Segments     []types.Segment `json:"segments"`
	EntityCounts map[string]int  `json:"entity_count"`
}

// FinalResult is the consolidated transcript of a finalized session.
type FinalResult struct {
	SessionID       string          `json:"session_id"`
	FullTranscript  string          `json:"full_transcript"`
	Blocks          []Block         `json:"blocks"`
	Segments        []types.Segment `json:"segments"`
	DurationSeconds float64         `json:"duration_seconds"`
	TotalChunks     int             `json:"total_chunks"`
}

// Info is a read-only snapshot of a registered session.
type Info struct {
	ID              string
	State           State
	Chunks          int
	DurationSeconds float64
	CreatedAt       time.Time
	LastActive      time.Time
}

// Config holds the dependencies and tuning of a [Manager].
type Config struct {
	// Transcriber converts each chunk into segments. Required.
	Transcriber stt.Transcriber

	// Redactor scrubs PHI from every segment and from the final transcript.
	// Required.
	Redactor phi.Redactor

	// Timeout is the inactivity after which a session is evicted. Defaults to
	// 30 minutes.
	Timeout time.Duration

	// PauseThreshold is the gap in seconds between segments that hands the
	// turn to the next speaker. Defaults to 1.5.
	PauseThreshold float64

	// Speakers are the labels alternated by diarization. Defaults to
	// [DefaultSpeakers].
	Speakers []string

	// MaxChunkBytes rejects larger chunks when > 0.
	MaxChunkBytes int

	// Metrics records chunk latency and the active session gauge. May be nil.
	Metrics *observe.Metrics

	// Now overrides the clock in tests.
	Now func() time.Time
}

type session struct {
	id        string
	createdAt time.Time

	state      atomic.Int32
	lastActive atomic.Int64 // unix nanoseconds

	mu         sync.Mutex
	segments   []types.Segment
	chunkIndex int
	offset     float64
	duration   float64
	lastStart  float64
	diar       diarizer
}

func (s *session) touch(t time.Time) { s.lastActive.Store(t.UnixNano()) }

func (s *session) loadState() State { return State(s.state.Load()) }

// Manager is the registry of live sessions.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*session
}

// NewManager creates a Manager. It panics when Transcriber or Redactor is nil.
func NewManager(cfg Config) *Manager {
	if cfg.Transcriber == nil || cfg.Redactor == nil {
		panic("session: NewManager requires a Transcriber and a Redactor")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PauseThreshold <= 0 {
		cfg.PauseThreshold = DefaultPauseThreshold
	}
	if len(cfg.Speakers) == 0 {
		cfg.Speakers = DefaultSpeakers
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{cfg: cfg, sessions: make(map[string]*session)}
}

// Create sweeps expired sessions and registers a new one under a random
// UUID.
func (m *Manager) Create() (string, error) {
	id := uuid.NewString()
	if err := m.CreateWithID(id); err != nil {
		return "", err
	}
	return id, nil
}

// CreateWithID sweeps expired sessions and registers a new one under id.
func (m *Manager) CreateWithID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("session: create: empty id")
	}
	m.Sweep()

	now := m.cfg.Now()
	s := &session{
		id:        id,
		createdAt: now,
		diar:      newDiarizer(m.cfg.PauseThreshold, m.cfg.Speakers),
	}
	s.touch(now)

	m.mu.Lock()
	if _, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	m.sessions[id] = s
	m.mu.Unlock()

	m.addActive(1)
	slog.Info("session: created", "session_id", id)
	return nil
}

// SubmitChunk transcribes audio, places the segments on the session timeline,
// labels speakers, redacts every segment and appends the result.
//
// A failed transcription or redaction leaves the session exactly as it was
// before the call. Chunks for one session must be submitted in order.
func (m *Manager) SubmitChunk(ctx context.Context, id string, audio []byte) (ChunkResult, error) {
	start := time.Now()
	res, err := m.submitChunk(ctx, id, audio)
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.RecordChunk(ctx, time.Since(start).Seconds(), err)
	}
	return res, err
}

func (m *Manager) submitChunk(ctx context.Context, id string, audio []byte) (ChunkResult, error) {
	if m.cfg.MaxChunkBytes > 0 && len(audio) > m.cfg.MaxChunkBytes {
		return ChunkResult{}, fmt.Errorf("%w: %d bytes, limit %d", ErrChunkTooLarge, len(audio), m.cfg.MaxChunkBytes)
	}

	s := m.lookup(id)
	if s == nil {
		return ChunkResult{}, fmt.Errorf("%w: %s", ErrNotActive, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.loadState(); st != StateCreated && st != StateActive {
		return ChunkResult{}, fmt.Errorf("%w: %s is %s", ErrNotActive, id, st)
	}
	s.touch(m.cfg.Now())

	ctx, span := observe.StartSpan(ctx, "session.chunk")
	defer span.End()

	t0 := time.Now()
	tr, err := m.cfg.Transcriber.Transcribe(ctx, audio)
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.TranscriptionDuration.Record(ctx, time.Since(t0).Seconds())
	}
	if err != nil {
		return ChunkResult{}, fmt.Errorf("session: transcribe chunk %d: %w", s.chunkIndex, err)
	}

	// Work on copies so a failure part way through commits nothing.
	diar := s.diar
	lastStart := s.lastStart
	segs := make([]types.Segment, 0, len(tr.Segments))
	var counts map[string]int

	for _, seg := range tr.Segments {
		seg = seg.Shift(s.offset)
		if seg.Start < lastStart {
			seg.Start = lastStart
		}
		if seg.End < seg.Start {
			seg.End = seg.Start
		}
		lastStart = seg.Start
		seg.Speaker = diar.label(seg)

		t1 := time.Now()
		red, err := m.cfg.Redactor.Redact(ctx, seg.Text)
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.RedactionDuration.Record(ctx, time.Since(t1).Seconds())
		}
		if err != nil {
			return ChunkResult{}, fmt.Errorf("session: redact chunk %d: %w", s.chunkIndex, err)
		}
		seg.Text = red.Text
		counts = types.MergeCounts(counts, red.EntityCounts)
		segs = append(segs, seg)
	}
	if counts == nil {
		counts = map[string]int{}
	}

	s.diar = diar
	s.lastStart = lastStart
	s.segments = append(s.segments, segs...)
	if tr.DurationSeconds > 0 {
		s.offset += tr.DurationSeconds
		s.duration += tr.DurationSeconds
	}
	idx := s.chunkIndex
	s.chunkIndex++
	s.state.Store(int32(StateActive))
	s.touch(m.cfg.Now())

	texts := make([]string, 0, len(segs))
	for _, seg := range segs {
		if seg.Text != "" {
			texts = append(texts, seg.Text)
		}
	}

	observe.Logger(ctx).Debug("session: chunk processed",
		"session_id", id,
		"chunk_index", idx,
		"segments", len(segs),
		"duration", tr.DurationSeconds)

	return ChunkResult{
		ChunkIndex:   idx,
		Text:         strings.Join(texts, " "),
		Speaker:      diar.speaker(),
		Segments:     segs,
		EntityCounts: counts,
	}, nil
}

// Finalize removes the session and returns its consolidated transcript. The
// boolean is false when id is unknown, evicted or already finalized.
//
// Speakers are relabelled over the whole transcript, then the joined text is
// redacted once more. A failure of that last redaction is logged and the
// per-segment redacted text is kept.
func (m *Manager) Finalize(ctx context.Context, id string) (FinalResult, bool) {
	s := m.remove(id)
	if s == nil {
		return FinalResult{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Store(int32(StateFinalizing))

	segs := slices.Clone(s.segments)
	if segs == nil {
		segs = []types.Segment{}
	}
	Rediarize(segs, m.cfg.PauseThreshold, m.cfg.Speakers)
	blocks := MergeBlocks(segs)
	if blocks == nil {
		blocks = []Block{}
	}

	lines := make([]string, len(blocks))
	for i, b := range blocks {
		lines[i] = b.String()
	}
	full := strings.Join(lines, "\n\n")

	if full != "" {
		red, err := m.cfg.Redactor.Redact(ctx, full)
		if err != nil {
			observe.Logger(ctx).Warn("session: final redaction failed, keeping segment redaction",
				"session_id", id, "err", err)
		} else {
			full = red.Text
		}
	}

	s.state.Store(int32(StateClosed))
	slog.Info("session: finalized",
		"session_id", id,
		"chunks", s.chunkIndex,
		"duration", s.duration)

	return FinalResult{
		SessionID:       id,
		FullTranscript:  full,
		Blocks:          blocks,
		Segments:        segs,
		DurationSeconds: math.Round(s.duration*100) / 100,
		TotalChunks:     s.chunkIndex,
	}, true
}

// Cleanup removes the session without producing a result. It reports whether
// the session existed.
func (m *Manager) Cleanup(id string) bool {
	s := m.remove(id)
	if s == nil {
		return false
	}
	s.state.Store(int32(StateClosed))
	slog.Info("session: cleaned up", "session_id", id)
	return true
}

// Sweep evicts every session idle for longer than the timeout and returns
// their ids. Chunks already in flight for an evicted session complete, but
// their results are unreachable.
func (m *Manager) Sweep() []string {
	cutoff := m.cfg.Now().Add(-m.cfg.Timeout).UnixNano()

	var evicted []string
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.lastActive.Load() < cutoff {
			delete(m.sessions, id)
			s.state.Store(int32(StateClosed))
			evicted = append(evicted, id)
		}
	}
	m.mu.Unlock()

	if len(evicted) > 0 {
		m.addActive(-int64(len(evicted)))
		slog.Info("session: evicted idle sessions", "count", len(evicted), "timeout", m.cfg.Timeout)
	}
	return evicted
}

// Info returns a snapshot of a registered session. It does not wait for a
// chunk in flight.
func (m *Manager) Info(id string) (Info, bool) {
	s := m.lookup(id)
	if s == nil {
		return Info{}, false
	}
	if !s.mu.TryLock() {
		return Info{
			ID:         id,
			State:      s.loadState(),
			CreatedAt:  s.createdAt,
			LastActive: time.Unix(0, s.lastActive.Load()),
		}, true
	}
	defer s.mu.Unlock()
	return Info{
		ID:              id,
		State:           s.loadState(),
		Chunks:          s.chunkIndex,
		DurationSeconds: s.duration,
		CreatedAt:       s.createdAt,
		LastActive:      time.Unix(0, s.lastActive.Load()),
	}, true
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) lookup(id string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

func (m *Manager) remove(id string) *session {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if ok {
		m.addActive(-1)
	}
	return s
}

func (m *Manager) addActive(n int64) {
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.ActiveSessions.Add(context.Background(), n)
	}
}
