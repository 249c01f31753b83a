// Package progress persists a learner's journey through a course: which
// sections are complete and the voice responses saved for each exercise
// widget.
package progress

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// Response is one saved voice-exercise outcome.
type Response struct {
	// WidgetID identifies the exercise widget the response belongs to.
	WidgetID string `json:"widget_id"`

	// Text is the learner's response text (transcript plus edits).
	Text string `json:"text"`

	// WordCount is the derived word count of Text.
	WordCount int `json:"word_count"`

	// Score is the pronunciation assessment score in [0, 1].
	Score float64 `json:"score"`

	// Passed reports whether the assessment cleared its pass threshold.
	Passed bool `json:"passed"`

	// RecordedAt is when the recording was finalized.
	RecordedAt time.Time `json:"recorded_at"`
}

// Record is one learner's progress through one course.
type Record struct {
	LearnerID string `json:"learner_id"`
	CourseID  string `json:"course_id"`

	// CompletedSections holds section ids in completion order, without
	// duplicates.
	CompletedSections []string `json:"completed_sections"`

	// Responses maps widget id to the latest saved response.
	Responses map[string]Response `json:"responses"`

	// CurrentSection is the zero-based index of the section the learner
	// last navigated to.
	CurrentSection int `json:"current_section"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that the record carries its identifying keys.
func (r *Record) Validate() error {
	if r.LearnerID == "" {
		return fmt.Errorf("progress: record missing learner id")
	}
	if r.CourseID == "" {
		return fmt.Errorf("progress: record missing course id")
	}
	return nil
}

// completeSection appends sectionID if not already present and reports
// whether the record changed.
func (r *Record) completeSection(sectionID string) bool {
	if slices.Contains(r.CompletedSections, sectionID) {
		return false
	}
	r.CompletedSections = append(r.CompletedSections, sectionID)
	return true
}

// Store persists learner progress. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get retrieves the record for a learner and course.
	// Returns (nil, nil) if none exists.
	Get(ctx context.Context, learnerID, courseID string) (*Record, error)

	// Put creates or replaces a record. The record is validated first.
	Put(ctx context.Context, rec *Record) error

	// SetCurrentSection records the section index the learner last
	// navigated to, creating the record if needed. Negative indexes are
	// rejected.
	SetCurrentSection(ctx context.Context, learnerID, courseID string, index int) error

	// CompleteSection marks sectionID complete for the learner and course,
	// creating the record if needed. Completing an already-complete section
	// is not an error.
	CompleteSection(ctx context.Context, learnerID, courseID, sectionID string) error

	// SaveResponse stores the latest response for its widget, creating the
	// record if needed. Earlier responses for the same widget are replaced.
	SaveResponse(ctx context.Context, learnerID, courseID string, resp Response) error
}
