// Package postgres provides a PostgreSQL-backed implementation of
// [store.Store]: keyword boosts, clinician feedback and finalised visits.
//
// All three tables share a single [pgxpool.Pool]. Keyword boost updates are
// single-statement upserts, so concurrent feedback on the same keyword never
// loses an increment.
//
// Usage:
//
//	s, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer s.Close()
//
//	_ = s.UpdateBoosts(ctx, []string{"metformin"}, true)
//	kws, _ := s.Boosted(ctx, 0.6)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlKeywordBoosts = `
CREATE TABLE IF NOT EXISTS keyword_boosts (
    keyword         TEXT              PRIMARY KEY,
    positive_count  INTEGER           NOT NULL DEFAULT 0,
    negative_count  INTEGER           NOT NULL DEFAULT 0,
    boost_score     DOUBLE PRECISION  NOT NULL DEFAULT 0,
    updated_at      TIMESTAMPTZ       NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_keyword_boosts_score
    ON keyword_boosts (boost_score DESC);
`

const ddlFeedback = `
CREATE TABLE IF NOT EXISTS feedback (
    id              TEXT         PRIMARY KEY,
    visit_id        TEXT         NOT NULL DEFAULT '',
    feedback_type   TEXT         NOT NULL,
    item_type       TEXT         NOT NULL DEFAULT '',
    item_value      TEXT         NOT NULL DEFAULT '',
    rating          TEXT         NOT NULL,
    paper_url       TEXT         NOT NULL DEFAULT '',
    clinician_note  TEXT         NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_feedback_visit_id
    ON feedback (visit_id);

CREATE INDEX IF NOT EXISTS idx_feedback_created_at
    ON feedback (created_at);
`

const ddlVisits = `
CREATE TABLE IF NOT EXISTS visits (
    id                TEXT              PRIMARY KEY,
    created_at        TIMESTAMPTZ       NOT NULL DEFAULT now(),
    visit_type        TEXT              NOT NULL DEFAULT '',
    tags              TEXT[]            NOT NULL DEFAULT '{}',
    duration_seconds  DOUBLE PRECISION  NOT NULL DEFAULT 0,
    transcript        TEXT              NOT NULL DEFAULT '',
    segments          JSONB             NOT NULL DEFAULT '[]',
    chunks            INTEGER           NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_visits_created_at
    ON visits (created_at);

ALTER TABLE visits ADD COLUMN IF NOT EXISTS patient_summary JSONB;
ALTER TABLE visits ADD COLUMN IF NOT EXISTS clinician_note  JSONB;
ALTER TABLE visits ADD COLUMN IF NOT EXISTS literature      JSONB;

CREATE INDEX IF NOT EXISTS idx_visits_tags
    ON visits USING GIN (tags);
`

// Migrate creates every table and index medsift needs. It is idempotent and
// safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlKeywordBoosts, ddlFeedback, ddlVisits} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
