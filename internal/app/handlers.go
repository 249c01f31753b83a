package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Johnwalk12/fluentspeak/internal/notify"
	"github.com/Johnwalk12/fluentspeak/internal/progress"
	"github.com/Johnwalk12/fluentspeak/internal/quiz"
	"github.com/Johnwalk12/fluentspeak/internal/recorder"
)

// sessionState is the JSON shape of one widget session.
type sessionState struct {
	ID           string `json:"id"`
	State        string `json:"state"`
	Recording    bool   `json:"recording"`
	ResponseText string `json:"response_text"`
	Interim      string `json:"interim"`
	WordCount    int    `json:"word_count"`
	HasRecording bool   `json:"has_recording"`
}

func stateOf(s *recorder.Session) sessionState {
	art := s.Artifact()
	return sessionState{
		ID:           s.ID(),
		State:        s.State().String(),
		Recording:    s.Recording(),
		ResponseText: s.ResponseText(),
		Interim:      s.Interim(),
		WordCount:    s.WordCount(),
		HasRecording: art != nil && !art.Handle.Revoked(),
	}
}

func (a *App) session(w http.ResponseWriter, r *http.Request) (*recorder.Session, bool) {
	s, err := a.registry.Get(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return nil, false
	}
	return s, true
}

// handleToggle flips the record button: it starts an idle session and stops
// an active one. The recording outlives the request, so the session runs on
// a context detached from the request's cancellation.
func (a *App) handleToggle(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	if err := s.Toggle(context.WithoutCancel(r.Context())); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, stateOf(s))
}

// handleSessionState reports the session's current state and response text.
func (a *App) handleSessionState(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, stateOf(s))
}

// handleSetResponse replaces the learner-edited response text.
func (a *App) handleSetResponse(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.SetResponseText(body.Text)
	writeJSON(w, http.StatusOK, stateOf(s))
}

// handleDownload streams the session's finalized recording with a
// timestamped download name.
func (a *App) handleDownload(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	art := s.Artifact()
	if art == nil || art.Handle.Revoked() {
		http.Error(w, "no recording available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", art.MIMEType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", art.DownloadName(time.Now().UTC())))
	if _, err := art.WriteTo(w); err != nil {
		slog.Warn("stream recording", "widget", s.ID(), "err", err)
	}
}

// handleProgress reports the learner's progress record for the configured
// course. A learner with no history yet gets an empty record.
func (a *App) handleProgress(w http.ResponseWriter, r *http.Request) {
	rec, err := a.progress.Get(r.Context(), defaultLearnerID, a.courseID())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rec == nil {
		rec = &progress.Record{LearnerID: defaultLearnerID, CourseID: a.courseID()}
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleSetSection persists the section index the embedding page navigated
// to, so a returning learner resumes where they left off.
func (a *App) handleSetSection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Index int `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := a.progress.SetCurrentSection(r.Context(), defaultLearnerID, a.courseID(), body.Index); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// quizState is the JSON shape of one quiz's progress.
type quizState struct {
	ID        string `json:"id"`
	Total     int    `json:"total"`
	Current   int    `json:"current"`
	Answered  int    `json:"answered"`
	Submitted bool   `json:"submitted"`
}

func (a *App) quizEntry(w http.ResponseWriter, r *http.Request) (*quizEntry, string, bool) {
	id := r.PathValue("id")
	e, ok := a.quizzes[id]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown quiz %q", id), http.StatusNotFound)
		return nil, "", false
	}
	return e, id, true
}

func quizStateOf(id string, q *quiz.Quiz) quizState {
	return quizState{
		ID:        id,
		Total:     q.Len(),
		Current:   q.Current(),
		Answered:  q.AnsweredCount(),
		Submitted: q.Submitted(),
	}
}

// handleQuizState reports the quiz's answered and submitted state.
func (a *App) handleQuizState(w http.ResponseWriter, r *http.Request) {
	e, id, ok := a.quizEntry(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, quizStateOf(id, e.quiz))
}

// handleQuizSelect records an answer choice and reports its correctness so
// the page can show immediate feedback.
func (a *App) handleQuizSelect(w http.ResponseWriter, r *http.Request) {
	e, _, ok := a.quizEntry(w, r)
	if !ok {
		return
	}
	var body struct {
		Question int `json:"question"`
		Choice   int `json:"choice"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	answer, err := e.quiz.Select(body.Question, body.Choice)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"choice":  answer.ChoiceIndex,
		"correct": answer.Correct,
	})
}

// handleQuizSubmit grades the quiz. A passing grade completes the quiz's
// course section.
func (a *App) handleQuizSubmit(w http.ResponseWriter, r *http.Request) {
	e, id, ok := a.quizEntry(w, r)
	if !ok {
		return
	}
	summary, err := e.quiz.Submit()
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	level := notify.LevelWarning
	if summary.Passed {
		level = notify.LevelSuccess
	}
	a.notifier.Message(notify.NewMessage(level, summary.Message))

	if summary.Passed && e.section != "" {
		if err := a.progress.CompleteSection(r.Context(), defaultLearnerID, a.courseID(), e.section); err != nil {
			slog.Warn("complete quiz section", "quiz", id, "section", e.section, "err", err)
		}
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleQuizReset clears all answers so the learner can retake the quiz.
func (a *App) handleQuizReset(w http.ResponseWriter, r *http.Request) {
	e, id, ok := a.quizEntry(w, r)
	if !ok {
		return
	}
	e.quiz.Reset()
	writeJSON(w, http.StatusOK, quizStateOf(id, e.quiz))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "err", err)
	}
}
