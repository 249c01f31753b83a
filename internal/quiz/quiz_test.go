package quiz_test

import (
	"testing"

	"github.com/Johnwalk12/fluentspeak/internal/quiz"
)

func threeQuestions() []quiz.Question {
	return []quiz.Question{
		{
			Text: "How do you say 'hello' in French?",
			Choices: []quiz.Choice{
				{Text: "Bonjour", Correct: true},
				{Text: "Merci"},
				{Text: "Au revoir"},
			},
		},
		{
			Text: "How do you say 'thank you' in French?",
			Choices: []quiz.Choice{
				{Text: "Bonjour"},
				{Text: "Merci", Correct: true},
			},
		},
		{
			Text: "How do you say 'goodbye' in French?",
			Choices: []quiz.Choice{
				{Text: "Salut"},
				{Text: "Au revoir", Correct: true},
			},
		},
	}
}

func TestNew_RejectsInvalidQuestions(t *testing.T) {
	t.Parallel()

	if _, err := quiz.New(nil); err == nil {
		t.Error("New(nil): err=nil, want error")
	}

	bad := []quiz.Question{{
		Text:    "Unanswerable",
		Choices: []quiz.Choice{{Text: "a"}, {Text: "b"}},
	}}
	if _, err := quiz.New(bad); err == nil {
		t.Error("New(no correct choice): err=nil, want error")
	}
}

func TestQuiz_SelectAndGrade(t *testing.T) {
	t.Parallel()

	q, err := quiz.New(threeQuestions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	a, err := q.Select(0, 0)
	if err != nil {
		t.Fatalf("Select(0, 0): %v", err)
	}
	if !a.Correct {
		t.Error("Select(0, 0): correct=false, want true")
	}
	if _, err := q.Select(1, 0); err != nil {
		t.Fatalf("Select(1, 0): %v", err)
	}
	if _, err := q.Select(2, 1); err != nil {
		t.Fatalf("Select(2, 1): %v", err)
	}
	if got := q.AnsweredCount(); got != 3 {
		t.Fatalf("AnsweredCount=%d, want 3", got)
	}

	s, err := q.Submit()
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if s.Correct != 2 || s.Total != 3 {
		t.Errorf("Submit: correct=%d/%d, want 2/3", s.Correct, s.Total)
	}
	if s.ScorePercent != 67 {
		t.Errorf("Submit: score=%d%%, want 67%%", s.ScorePercent)
	}
	if s.Passed {
		t.Error("Submit: passed=true at 2/3, want false at 0.7 threshold")
	}
}

func TestQuiz_ReselectReplacesAnswer(t *testing.T) {
	t.Parallel()

	q, err := quiz.New(threeQuestions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := q.Select(0, 1); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if _, err := q.Select(0, 0); err != nil {
		t.Fatalf("re-Select: %v", err)
	}
	if _, err := q.Select(1, 1); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if _, err := q.Select(2, 1); err != nil {
		t.Fatalf("Select: %v", err)
	}

	s, err := q.Submit()
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if s.Correct != 3 || !s.Passed {
		t.Errorf("Submit: %+v, want 3 correct and passed", s)
	}
}

func TestQuiz_SubmitLocksAnswers(t *testing.T) {
	t.Parallel()

	q, err := quiz.New(threeQuestions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := q.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, err := q.Select(0, 0); err == nil {
		t.Error("Select after submit: err=nil, want error")
	}
	if _, err := q.Submit(); err == nil {
		t.Error("second Submit: err=nil, want error")
	}
}

func TestQuiz_UnansweredCountIncorrect(t *testing.T) {
	t.Parallel()

	q, err := quiz.New(threeQuestions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := q.Select(0, 0); err != nil {
		t.Fatalf("Select: %v", err)
	}

	s, err := q.Submit()
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if s.Correct != 1 || s.ScorePercent != 33 || s.Passed {
		t.Errorf("Submit: %+v, want 1 correct, 33%%, failed", s)
	}
}

func TestQuiz_ResetAllowsRetake(t *testing.T) {
	t.Parallel()

	q, err := quiz.New(threeQuestions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	q.Navigate(2)
	if _, err := q.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	q.Reset()
	if q.Submitted() {
		t.Error("Submitted after Reset: true, want false")
	}
	if got := q.Current(); got != 0 {
		t.Errorf("Current after Reset=%d, want 0", got)
	}
	if got := q.AnsweredCount(); got != 0 {
		t.Errorf("AnsweredCount after Reset=%d, want 0", got)
	}
	if _, err := q.Select(0, 0); err != nil {
		t.Errorf("Select after Reset: %v", err)
	}
}

func TestQuiz_NavigateClamps(t *testing.T) {
	t.Parallel()

	q, err := quiz.New(threeQuestions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := q.Navigate(-1); got != 0 {
		t.Errorf("Navigate(-1) from 0=%d, want 0", got)
	}
	if got := q.Navigate(5); got != 2 {
		t.Errorf("Navigate(5)=%d, want clamp to 2", got)
	}
	if got := q.Navigate(1); got != 2 {
		t.Errorf("Navigate(1) from last=%d, want 2", got)
	}
}
