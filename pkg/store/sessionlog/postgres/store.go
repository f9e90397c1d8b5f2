package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opicoach/opicoach/pkg/store/sessionlog"
	"github.com/opicoach/opicoach/pkg/study"
)

// Store is the PostgreSQL-backed session log. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

var _ sessionlog.Store = (*Store)(nil)

// NewStore establishes a connection pool to the database at dsn and runs
// [Migrate] to ensure the required tables exist.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("sessionlog: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sessionlog: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("sessionlog: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("sessionlog: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks database connectivity. Used by readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const sessionColumns = `id, created_at, unit_id, question, keywords, transcript,
	raw_audio_ref, level, correction, translation, feedback, matched_keywords,
	model_audio_ref`

// Append implements [sessionlog.Store].
func (s *Store) Append(ctx context.Context, sess study.StudySession) error {
	const q = `
		INSERT INTO study_sessions
		    (id, created_at, unit_id, question, keywords, transcript,
		     raw_audio_ref, level, correction, translation, feedback,
		     matched_keywords, model_audio_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.pool.Exec(ctx, q,
		sess.ID,
		sess.CreatedAt,
		sess.UnitID,
		sess.Question,
		nonNil(sess.Keywords),
		sess.Transcript,
		sess.RawAudioRef,
		string(sess.Level),
		sess.Correction.Join(),
		sess.Translation.Join(),
		sess.Feedback,
		nonNil(sess.MatchedKeywords),
		sess.ModelAudioRef,
	)
	if err != nil {
		return fmt.Errorf("sessionlog: append: %w", err)
	}
	return nil
}

// Find implements [sessionlog.Store].
func (s *Store) Find(ctx context.Context, id string) (study.StudySession, bool, error) {
	q := "SELECT " + sessionColumns + " FROM study_sessions WHERE id = $1"

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return study.StudySession{}, false, fmt.Errorf("sessionlog: find: %w", err)
	}
	sessions, err := collectSessions(rows)
	if err != nil {
		return study.StudySession{}, false, err
	}
	if len(sessions) == 0 {
		return study.StudySession{}, false, nil
	}
	return sessions[0], true, nil
}

// SetModelAudio implements [sessionlog.Store].
func (s *Store) SetModelAudio(ctx context.Context, id string, ref string) error {
	const q = `UPDATE study_sessions SET model_audio_ref = $2 WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, id, ref)
	if err != nil {
		return fmt.Errorf("sessionlog: set model audio: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sessionlog: set model audio: no session %q", id)
	}
	return nil
}

// Delete implements [sessionlog.Store].
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	const q = `DELETE FROM study_sessions WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return false, fmt.Errorf("sessionlog: delete: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListByUnit implements [sessionlog.Store].
func (s *Store) ListByUnit(ctx context.Context, unitID string) ([]study.StudySession, error) {
	q := "SELECT " + sessionColumns + " FROM study_sessions WHERE unit_id = $1 ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, q, unitID)
	if err != nil {
		return nil, fmt.Errorf("sessionlog: list by unit: %w", err)
	}
	return collectSessions(rows)
}

// ListAll implements [sessionlog.Store].
func (s *Store) ListAll(ctx context.Context) ([]study.StudySession, error) {
	q := "SELECT " + sessionColumns + " FROM study_sessions ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sessionlog: list all: %w", err)
	}
	return collectSessions(rows)
}

// UnitProgress implements [sessionlog.Store].
func (s *Store) UnitProgress(ctx context.Context, unitID string) (study.UnitProgress, bool, error) {
	const q = `SELECT unit_id, completed, grade, last_practiced FROM unit_progress WHERE unit_id = $1`

	var (
		p  study.UnitProgress
		lp *time.Time
	)
	err := s.pool.QueryRow(ctx, q, unitID).Scan(&p.UnitID, &p.Completed, &p.Grade, &lp)
	if errors.Is(err, pgx.ErrNoRows) {
		return study.UnitProgress{}, false, nil
	}
	if err != nil {
		return study.UnitProgress{}, false, fmt.Errorf("sessionlog: unit progress: %w", err)
	}
	if lp != nil {
		p.LastPracticed = *lp
	}
	return p, true, nil
}

// PutUnitProgress implements [sessionlog.Store].
func (s *Store) PutUnitProgress(ctx context.Context, p study.UnitProgress) error {
	const q = `
		INSERT INTO unit_progress (unit_id, completed, grade, last_practiced)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (unit_id) DO UPDATE
		SET completed = EXCLUDED.completed,
		    grade = EXCLUDED.grade,
		    last_practiced = EXCLUDED.last_practiced`

	var lp *time.Time
	if !p.LastPracticed.IsZero() {
		lp = &p.LastPracticed
	}
	if _, err := s.pool.Exec(ctx, q, p.UnitID, p.Completed, p.Grade, lp); err != nil {
		return fmt.Errorf("sessionlog: put unit progress: %w", err)
	}
	return nil
}

// ResetUnitProgress implements [sessionlog.Store].
func (s *Store) ResetUnitProgress(ctx context.Context, unitID string) error {
	return s.PutUnitProgress(ctx, study.UnitProgress{
		UnitID: unitID,
		Grade:  study.ResetUnitGrade,
	})
}

// collectSessions scans pgx rows into StudySession values, splitting the
// delimiter-joined answer fields back into their three parts.
func collectSessions(rows pgx.Rows) ([]study.StudySession, error) {
	sessions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (study.StudySession, error) {
		var (
			sess                    study.StudySession
			level                   string
			correction, translation string
		)
		if err := row.Scan(
			&sess.ID,
			&sess.CreatedAt,
			&sess.UnitID,
			&sess.Question,
			&sess.Keywords,
			&sess.Transcript,
			&sess.RawAudioRef,
			&level,
			&correction,
			&translation,
			&sess.Feedback,
			&sess.MatchedKeywords,
			&sess.ModelAudioRef,
		); err != nil {
			return study.StudySession{}, err
		}
		sess.Level = study.Level(level)
		var err error
		if sess.Correction, err = study.ParseThreePart(correction); err != nil {
			return study.StudySession{}, fmt.Errorf("session %s correction: %w", sess.ID, err)
		}
		if sess.Translation, err = study.ParseThreePart(translation); err != nil {
			return study.StudySession{}, fmt.Errorf("session %s translation: %w", sess.ID, err)
		}
		return sess, nil
	})
	if err != nil {
		return nil, fmt.Errorf("sessionlog: scan rows: %w", err)
	}
	if sessions == nil {
		sessions = []study.StudySession{}
	}
	return sessions, nil
}

// nonNil replaces a nil slice with an empty one so pgx encodes an empty
// array instead of NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
