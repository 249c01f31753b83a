package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the learner_progress table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS learner_progress (
    learner_id         TEXT NOT NULL,
    course_id          TEXT NOT NULL,
    completed_sections JSONB NOT NULL DEFAULT '[]',
    responses          JSONB NOT NULL DEFAULT '{}',
    current_section    INTEGER NOT NULL DEFAULT 0,
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (learner_id, course_id)
);
CREATE INDEX IF NOT EXISTS idx_learner_progress_course ON learner_progress(course_id);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database. Section lists
// and responses are serialised as JSONB.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] over the given connection or
// pool. The caller is responsible for calling [PostgresStore.Migrate] before
// issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL, creating the learner_progress table and
// index if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("progress: migrate: %w", err)
	}
	return nil
}

// Get retrieves the record for a learner and course. Returns (nil, nil) when
// no record exists.
func (s *PostgresStore) Get(ctx context.Context, learnerID, courseID string) (*Record, error) {
	const query = `
		SELECT learner_id, course_id, completed_sections, responses, current_section, updated_at
		FROM learner_progress
		WHERE learner_id = $1 AND course_id = $2`

	var rec Record
	var sectionsJSON, responsesJSON []byte
	err := s.db.QueryRow(ctx, query, learnerID, courseID).Scan(
		&rec.LearnerID, &rec.CourseID, &sectionsJSON, &responsesJSON, &rec.CurrentSection, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("progress: get %s/%s: %w", learnerID, courseID, err)
	}

	if err := json.Unmarshal(sectionsJSON, &rec.CompletedSections); err != nil {
		return nil, fmt.Errorf("progress: unmarshal completed_sections: %w", err)
	}
	if err := json.Unmarshal(responsesJSON, &rec.Responses); err != nil {
		return nil, fmt.Errorf("progress: unmarshal responses: %w", err)
	}
	return &rec, nil
}

// Put creates or replaces the record for rec's learner and course.
func (s *PostgresStore) Put(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	sectionsJSON, err := json.Marshal(emptySlice(rec.CompletedSections))
	if err != nil {
		return fmt.Errorf("progress: marshal completed_sections: %w", err)
	}
	responsesJSON, err := json.Marshal(emptyMap(rec.Responses))
	if err != nil {
		return fmt.Errorf("progress: marshal responses: %w", err)
	}

	const query = `
		INSERT INTO learner_progress (learner_id, course_id, completed_sections, responses, current_section, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (learner_id, course_id) DO UPDATE SET
			completed_sections = EXCLUDED.completed_sections,
			responses = EXCLUDED.responses,
			current_section = EXCLUDED.current_section,
			updated_at = now()
		RETURNING updated_at`

	err = s.db.QueryRow(ctx, query,
		rec.LearnerID, rec.CourseID, sectionsJSON, responsesJSON, rec.CurrentSection,
	).Scan(&rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("progress: put %s/%s: %w", rec.LearnerID, rec.CourseID, err)
	}
	return nil
}

// SetCurrentSection records the learner's last-visited section index,
// creating the record if needed.
func (s *PostgresStore) SetCurrentSection(ctx context.Context, learnerID, courseID string, index int) error {
	if index < 0 {
		return fmt.Errorf("progress: negative section index %d", index)
	}

	const query = `
		INSERT INTO learner_progress (learner_id, course_id, current_section)
		VALUES ($1, $2, $3)
		ON CONFLICT (learner_id, course_id) DO UPDATE SET
			current_section = EXCLUDED.current_section,
			updated_at = now()`

	if _, err := s.db.Exec(ctx, query, learnerID, courseID, index); err != nil {
		return fmt.Errorf("progress: set current section %s/%s: %w", learnerID, courseID, err)
	}
	return nil
}

// CompleteSection appends sectionID to the completed list if absent, creating
// the record if needed. The append happens database-side so concurrent
// completions of different sections both land.
func (s *PostgresStore) CompleteSection(ctx context.Context, learnerID, courseID, sectionID string) error {
	const query = `
		INSERT INTO learner_progress (learner_id, course_id, completed_sections)
		VALUES ($1, $2, jsonb_build_array($3::text))
		ON CONFLICT (learner_id, course_id) DO UPDATE SET
			completed_sections = CASE
				WHEN learner_progress.completed_sections ? $3
				THEN learner_progress.completed_sections
				ELSE learner_progress.completed_sections || to_jsonb($3::text)
			END,
			updated_at = now()`

	if _, err := s.db.Exec(ctx, query, learnerID, courseID, sectionID); err != nil {
		return fmt.Errorf("progress: complete section %s/%s/%s: %w", learnerID, courseID, sectionID, err)
	}
	return nil
}

// SaveResponse stores the latest response for its widget, creating the record
// if needed.
func (s *PostgresStore) SaveResponse(ctx context.Context, learnerID, courseID string, resp Response) error {
	respJSON, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("progress: marshal response: %w", err)
	}

	const query = `
		INSERT INTO learner_progress (learner_id, course_id, responses)
		VALUES ($1, $2, jsonb_build_object($3::text, $4::jsonb))
		ON CONFLICT (learner_id, course_id) DO UPDATE SET
			responses = learner_progress.responses || jsonb_build_object($3::text, $4::jsonb),
			updated_at = now()`

	if _, err := s.db.Exec(ctx, query, learnerID, courseID, resp.WidgetID, respJSON); err != nil {
		return fmt.Errorf("progress: save response %s/%s/%s: %w", learnerID, courseID, resp.WidgetID, err)
	}
	return nil
}

func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptyMap(m map[string]Response) map[string]Response {
	if m == nil {
		return map[string]Response{}
	}
	return m
}
