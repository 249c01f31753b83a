package progress

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// MemStore is an in-memory [Store], the default when no database is
// configured. Records are lost on shutdown.
type MemStore struct {
	mu      sync.Mutex
	records map[memKey]*Record
}

type memKey struct {
	learnerID string
	courseID  string
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[memKey]*Record)}
}

// Get returns a copy of the stored record, or (nil, nil) when absent.
func (s *MemStore) Get(_ context.Context, learnerID, courseID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[memKey{learnerID, courseID}]
	if !ok {
		return nil, nil
	}
	return copyRecord(rec), nil
}

// Put stores a copy of rec.
func (s *MemStore) Put(_ context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	stored := copyRecord(rec)
	stored.UpdatedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[memKey{rec.LearnerID, rec.CourseID}] = stored
	return nil
}

// SetCurrentSection records the learner's last-visited section index.
func (s *MemStore) SetCurrentSection(_ context.Context, learnerID, courseID string, index int) error {
	if index < 0 {
		return fmt.Errorf("progress: negative section index %d", index)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.getOrCreate(learnerID, courseID)
	rec.CurrentSection = index
	rec.UpdatedAt = time.Now()
	return nil
}

// CompleteSection marks sectionID complete, creating the record if needed.
func (s *MemStore) CompleteSection(_ context.Context, learnerID, courseID, sectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.getOrCreate(learnerID, courseID)
	if rec.completeSection(sectionID) {
		rec.UpdatedAt = time.Now()
	}
	return nil
}

// SaveResponse stores the latest response for its widget.
func (s *MemStore) SaveResponse(_ context.Context, learnerID, courseID string, resp Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.getOrCreate(learnerID, courseID)
	if rec.Responses == nil {
		rec.Responses = make(map[string]Response)
	}
	rec.Responses[resp.WidgetID] = resp
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) getOrCreate(learnerID, courseID string) *Record {
	key := memKey{learnerID, courseID}
	rec, ok := s.records[key]
	if !ok {
		rec = &Record{LearnerID: learnerID, CourseID: courseID}
		s.records[key] = rec
	}
	return rec
}

func copyRecord(rec *Record) *Record {
	out := *rec
	out.CompletedSections = slices.Clone(rec.CompletedSections)
	if rec.Responses != nil {
		out.Responses = maps.Clone(rec.Responses)
	}
	return &out
}
