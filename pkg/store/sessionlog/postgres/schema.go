// Package postgres provides a PostgreSQL-backed implementation of the study
// session log and unit progress aggregates.
//
// Both tables share a single [pgxpool.Pool]. [Migrate] is idempotent and safe
// to call on every application start.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//
//	_ = store.Append(ctx, session)
//	_ = store.SetModelAudio(ctx, session.ID, ref)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlStudySessions = `
CREATE TABLE IF NOT EXISTS study_sessions (
    id               TEXT         PRIMARY KEY,
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now(),
    unit_id          TEXT         NOT NULL,
    question         TEXT         NOT NULL DEFAULT '',
    keywords         TEXT[]       NOT NULL DEFAULT '{}',
    transcript       TEXT         NOT NULL DEFAULT '',
    raw_audio_ref    TEXT         NOT NULL DEFAULT '',
    level            TEXT         NOT NULL DEFAULT '',
    correction       TEXT         NOT NULL DEFAULT '',
    translation      TEXT         NOT NULL DEFAULT '',
    feedback         TEXT         NOT NULL DEFAULT '',
    matched_keywords TEXT[]       NOT NULL DEFAULT '{}',
    model_audio_ref  TEXT         NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_study_sessions_unit_id
    ON study_sessions (unit_id);

CREATE INDEX IF NOT EXISTS idx_study_sessions_created_at
    ON study_sessions (created_at);
`

const ddlUnitProgress = `
CREATE TABLE IF NOT EXISTS unit_progress (
    unit_id        TEXT         PRIMARY KEY,
    completed      BOOLEAN      NOT NULL DEFAULT FALSE,
    grade          TEXT         NOT NULL DEFAULT '-',
    last_practiced TIMESTAMPTZ
);
`

// Migrate creates or ensures all required tables and indexes exist. It is
// idempotent and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlStudySessions, ddlUnitProgress} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("sessionlog migrate: %w", err)
		}
	}
	return nil
}
