package progress

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// execCall records one Exec invocation.
type execCall struct {
	sql  string
	args []any
}

// mockDB implements DB, recording calls and answering QueryRow from rowFunc.
type mockDB struct {
	rowFunc   func(sql string, args ...any) pgx.Row
	execCalls []execCall
	execErr   error
}

func (db *mockDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	if db.rowFunc != nil {
		return db.rowFunc(sql, args...)
	}
	return &mockRow{scanFunc: func(...any) error { return pgx.ErrNoRows }}
}

func (db *mockDB) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}

func (db *mockDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execCalls = append(db.execCalls, execCall{sql: sql, args: args})
	return pgconn.CommandTag{}, db.execErr
}

func TestPostgresStore_Migrate(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	s := NewPostgresStore(db)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(db.execCalls) != 1 || !strings.Contains(db.execCalls[0].sql, "CREATE TABLE IF NOT EXISTS learner_progress") {
		t.Fatalf("Migrate executed %v, want the schema DDL", db.execCalls)
	}
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	t.Parallel()

	s := NewPostgresStore(&mockDB{})
	rec, err := s.Get(context.Background(), "learner-1", "course-fr")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec != nil {
		t.Fatalf("Get(missing)=%+v, want nil", rec)
	}
}

func TestPostgresStore_GetUnmarshalsRecord(t *testing.T) {
	t.Parallel()

	now := time.Now()
	db := &mockDB{
		rowFunc: func(_ string, args ...any) pgx.Row {
			if len(args) != 2 || args[0] != "learner-1" || args[1] != "course-fr" {
				t.Fatalf("QueryRow args=%v, want learner and course ids", args)
			}
			return &mockRow{scanFunc: func(dest ...any) error {
				*dest[0].(*string) = "learner-1"
				*dest[1].(*string) = "course-fr"
				*dest[2].(*[]byte) = []byte(`["intro","lesson-1"]`)
				*dest[3].(*[]byte) = []byte(`{"w1":{"widget_id":"w1","text":"bonjour","word_count":1,"score":0.8,"passed":true,"recorded_at":"2026-03-14T09:26:53Z"}}`)
				*dest[4].(*int) = 2
				*dest[5].(*time.Time) = now
				return nil
			}}
		},
	}
	s := NewPostgresStore(db)

	rec, err := s.Get(context.Background(), "learner-1", "course-fr")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec == nil {
		t.Fatal("Get returned nil")
	}
	if len(rec.CompletedSections) != 2 || rec.CompletedSections[1] != "lesson-1" {
		t.Errorf("completed sections=%v, want [intro lesson-1]", rec.CompletedSections)
	}
	resp := rec.Responses["w1"]
	if resp.Text != "bonjour" || !resp.Passed {
		t.Errorf("response=%+v, want unmarshalled w1 response", resp)
	}
	if rec.CurrentSection != 2 {
		t.Errorf("current section=%d, want 2", rec.CurrentSection)
	}
	if !rec.UpdatedAt.Equal(now) {
		t.Errorf("updated at=%v, want %v", rec.UpdatedAt, now)
	}
}

func TestPostgresStore_SetCurrentSection(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	s := NewPostgresStore(db)
	if err := s.SetCurrentSection(context.Background(), "learner-1", "course-fr", -1); err == nil {
		t.Error("SetCurrentSection(-1): err=nil, want error")
	}
	if err := s.SetCurrentSection(context.Background(), "learner-1", "course-fr", 3); err != nil {
		t.Fatalf("SetCurrentSection: %v", err)
	}
	if len(db.execCalls) != 1 {
		t.Fatalf("exec calls=%d, want 1", len(db.execCalls))
	}
	call := db.execCalls[0]
	if !strings.Contains(call.sql, "current_section = EXCLUDED.current_section") {
		t.Errorf("sql=%q, want a current_section upsert", call.sql)
	}
	if len(call.args) != 3 || call.args[2] != 3 {
		t.Errorf("args=%v, want [learner-1 course-fr 3]", call.args)
	}
}

func TestPostgresStore_PutValidates(t *testing.T) {
	t.Parallel()

	s := NewPostgresStore(&mockDB{})
	if err := s.Put(context.Background(), &Record{CourseID: "c"}); err == nil {
		t.Error("Put(no learner id): err=nil, want error")
	}
}

func TestPostgresStore_CompleteSectionUpserts(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	s := NewPostgresStore(db)
	if err := s.CompleteSection(context.Background(), "learner-1", "course-fr", "intro"); err != nil {
		t.Fatalf("CompleteSection: %v", err)
	}
	if len(db.execCalls) != 1 {
		t.Fatalf("exec calls=%d, want 1", len(db.execCalls))
	}
	call := db.execCalls[0]
	if !strings.Contains(call.sql, "ON CONFLICT (learner_id, course_id)") {
		t.Errorf("sql=%q, want an upsert", call.sql)
	}
	if len(call.args) != 3 || call.args[2] != "intro" {
		t.Errorf("args=%v, want [learner-1 course-fr intro]", call.args)
	}
}

func TestPostgresStore_SaveResponseMergesWidgetKey(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	s := NewPostgresStore(db)
	resp := Response{WidgetID: "w1", Text: "bonjour", WordCount: 1}
	if err := s.SaveResponse(context.Background(), "learner-1", "course-fr", resp); err != nil {
		t.Fatalf("SaveResponse: %v", err)
	}
	if len(db.execCalls) != 1 {
		t.Fatalf("exec calls=%d, want 1", len(db.execCalls))
	}
	call := db.execCalls[0]
	if len(call.args) != 4 || call.args[2] != "w1" {
		t.Fatalf("args=%v, want widget id as key", call.args)
	}
	if !strings.Contains(string(call.args[3].([]byte)), `"text":"bonjour"`) {
		t.Errorf("response json=%s, want marshalled response", call.args[3])
	}
}
