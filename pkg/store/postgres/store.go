package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/medsift/pkg/store"
	"github.com/MrWong99/medsift/pkg/types"
)

var _ store.Store = (*Store)(nil)

// Store is the PostgreSQL-backed [store.Store]. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, verifies the connection and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Ping checks that the database is reachable. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases every pooled connection.
func (s *Store) Close() {
	s.pool.Close()
}

// Boosted implements [store.BoostStore].
func (s *Store) Boosted(ctx context.Context, minScore float64) ([]types.BoostedKeyword, error) {
	const q = `
		SELECT keyword, positive_count, negative_count, boost_score
		FROM   keyword_boosts
		WHERE  boost_score >= $1
		ORDER  BY boost_score DESC, positive_count + negative_count DESC, keyword`

	rows, err := s.pool.Query(ctx, q, minScore)
	if err != nil {
		return nil, fmt.Errorf("postgres store: boosted: %w", err)
	}
	kws, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.BoostedKeyword, error) {
		var k types.BoostedKeyword
		err := row.Scan(&k.Keyword, &k.PositiveCount, &k.NegativeCount, &k.BoostScore)
		return k, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: boosted: %w", err)
	}
	return kws, nil
}

// UpdateBoosts implements [store.BoostStore]. Each keyword is one upsert
// whose score is recomputed from the updated counters inside the statement.
// All keywords of a call are applied in a single transaction.
func (s *Store) UpdateBoosts(ctx context.Context, keywords []string, positive bool) error {
	const q = `
		INSERT INTO keyword_boosts AS k (keyword, positive_count, negative_count, boost_score)
		VALUES ($1, $2, $3, $2::double precision / ($2 + $3))
		ON CONFLICT (keyword) DO UPDATE SET
		    positive_count = k.positive_count + EXCLUDED.positive_count,
		    negative_count = k.negative_count + EXCLUDED.negative_count,
		    boost_score    = (k.positive_count + EXCLUDED.positive_count)::double precision
		                   / (k.positive_count + EXCLUDED.positive_count + k.negative_count + EXCLUDED.negative_count),
		    updated_at     = now()`

	pos, neg := 0, 1
	if positive {
		pos, neg = 1, 0
	}

	batch := &pgx.Batch{}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		batch.Queue(q, kw, pos, neg)
	}
	if batch.Len() == 0 {
		return nil
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("postgres store: update boosts: %w", err)
	}
	return nil
}

// SaveFeedback implements [store.FeedbackStore].
func (s *Store) SaveFeedback(ctx context.Context, rec types.FeedbackRecord) (types.FeedbackRecord, error) {
	const q = `
		INSERT INTO feedback
		    (id, visit_id, feedback_type, item_type, item_value, rating, paper_url, clinician_note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, q,
		rec.ID,
		rec.VisitID,
		string(rec.Type),
		rec.ItemType,
		rec.ItemValue,
		rec.Rating,
		rec.PaperURL,
		rec.ClinicianNote,
		rec.Timestamp,
	)
	if err != nil {
		return types.FeedbackRecord{}, fmt.Errorf("postgres store: save feedback: %w", err)
	}
	return rec, nil
}

// ListFeedback implements [store.FeedbackStore].
func (s *Store) ListFeedback(ctx context.Context) ([]types.FeedbackRecord, error) {
	const q = `
		SELECT id, visit_id, feedback_type, item_type, item_value, rating, paper_url, clinician_note, created_at
		FROM   feedback
		ORDER  BY created_at, id`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list feedback: %w", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.FeedbackRecord, error) {
		var (
			r   types.FeedbackRecord
			typ string
		)
		err := row.Scan(&r.ID, &r.VisitID, &typ, &r.ItemType, &r.ItemValue, &r.Rating, &r.PaperURL, &r.ClinicianNote, &r.Timestamp)
		r.Type = types.FeedbackType(typ)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: list feedback: %w", err)
	}
	return recs, nil
}

// visitColumns is the column list shared by every visit query, in
// [scanVisit] order.
const visitColumns = `id, created_at, visit_type, tags, duration_seconds, transcript,
		segments, chunks, patient_summary, clinician_note, literature`

// SaveVisit implements [store.VisitStore].
func (s *Store) SaveVisit(ctx context.Context, v types.Visit) (types.Visit, error) {
	const q = `
		INSERT INTO visits (` + visitColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	if v.Tags == nil {
		v.Tags = []string{}
	}
	if v.Segments == nil {
		v.Segments = []types.Segment{}
	}
	lit, err := papersJSON(v.Literature)
	if err != nil {
		return types.Visit{}, fmt.Errorf("postgres store: save visit: %w", err)
	}
	_, err = s.pool.Exec(ctx, q,
		v.ID,
		v.CreatedAt,
		v.VisitType,
		v.Tags,
		v.DurationSeconds,
		v.Transcript,
		v.Segments,
		v.Chunks,
		[]byte(v.PatientSummary),
		[]byte(v.ClinicianNote),
		lit,
	)
	if err != nil {
		return types.Visit{}, fmt.Errorf("postgres store: save visit: %w", err)
	}
	return v, nil
}

// GetVisit implements [store.VisitStore].
func (s *Store) GetVisit(ctx context.Context, id string) (types.Visit, error) {
	const q = `SELECT ` + visitColumns + ` FROM visits WHERE id = $1`

	v, err := scanVisit(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Visit{}, fmt.Errorf("postgres store: visit %q: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return types.Visit{}, fmt.Errorf("postgres store: get visit: %w", err)
	}
	return v, nil
}

// ListVisits implements [store.VisitStore]. Search uses ILIKE over the
// transcript, visit type and tags.
func (s *Store) ListVisits(ctx context.Context, f store.VisitFilter) ([]types.Visit, error) {
	const q = `
		SELECT ` + visitColumns + `
		FROM   visits
		WHERE  ($1::text = '' OR transcript ILIKE $2 OR visit_type ILIKE $2
		        OR EXISTS (SELECT 1 FROM unnest(tags) AS t(tag) WHERE t.tag ILIKE $2))
		  AND  ($3::text = '' OR $3 = ANY(tags))
		ORDER  BY created_at DESC, id DESC
		LIMIT  $4 OFFSET $5`

	f = store.NormalizeFilter(f)
	search := strings.TrimSpace(f.Search)
	rows, err := s.pool.Query(ctx, q, search, likePattern(search), f.Tag, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list visits: %w", err)
	}
	defer rows.Close()

	visits := []types.Visit{}
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres store: list visits: %w", err)
		}
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: list visits: %w", err)
	}
	return visits, nil
}

// UpdateVisit implements [store.VisitStore]. NULL parameters keep the stored
// column.
func (s *Store) UpdateVisit(ctx context.Context, id string, p store.VisitPatch) (types.Visit, error) {
	const q = `
		UPDATE visits
		SET    patient_summary = COALESCE($2::jsonb, patient_summary),
		       clinician_note  = COALESCE($3::jsonb, clinician_note),
		       literature      = COALESCE($4::jsonb, literature)
		WHERE  id = $1
		RETURNING ` + visitColumns

	lit, err := papersJSON(p.Literature)
	if err != nil {
		return types.Visit{}, fmt.Errorf("postgres store: update visit: %w", err)
	}
	v, err := scanVisit(s.pool.QueryRow(ctx, q, id, []byte(p.PatientSummary), []byte(p.ClinicianNote), lit))
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Visit{}, fmt.Errorf("postgres store: visit %q: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return types.Visit{}, fmt.Errorf("postgres store: update visit: %w", err)
	}
	return v, nil
}

// DeleteVisit implements [store.VisitStore].
func (s *Store) DeleteVisit(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM visits WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres store: delete visit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres store: visit %q: %w", id, store.ErrNotFound)
	}
	return nil
}

func scanVisit(row pgx.Row) (types.Visit, error) {
	var (
		v                   types.Visit
		summary, note, lits []byte
	)
	err := row.Scan(
		&v.ID,
		&v.CreatedAt,
		&v.VisitType,
		&v.Tags,
		&v.DurationSeconds,
		&v.Transcript,
		&v.Segments,
		&v.Chunks,
		&summary,
		&note,
		&lits,
	)
	if err != nil {
		return types.Visit{}, err
	}
	v.PatientSummary = summary
	v.ClinicianNote = note
	if lits != nil {
		if err := json.Unmarshal(lits, &v.Literature); err != nil {
			return types.Visit{}, fmt.Errorf("decode literature: %w", err)
		}
	}
	return v, nil
}

// papersJSON encodes papers for a JSONB parameter. Nil encodes as NULL.
func papersJSON(papers []types.Paper) ([]byte, error) {
	if papers == nil {
		return nil, nil
	}
	return json.Marshal(papers)
}

// likePattern wraps s for a substring ILIKE match, escaping wildcards.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
