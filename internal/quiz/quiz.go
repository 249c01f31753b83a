// Package quiz implements the course quiz: ordered multiple-choice questions
// answered one at a time, graded on submit against a minimum passing score.
package quiz

import (
	"fmt"
	"math"
	"sync"
)

// DefaultMinPassScore is the fraction of correct answers needed to pass.
const DefaultMinPassScore = 0.7

// Option configures a [Quiz].
type Option func(*Quiz)

// WithMinPassScore sets the passing threshold as a fraction in (0, 1].
// Default: 0.7.
func WithMinPassScore(score float64) Option {
	return func(q *Quiz) {
		q.minPassScore = score
	}
}

// Choice is one selectable answer of a question.
type Choice struct {
	Text        string
	Correct     bool
	Explanation string
}

// Question is one quiz question with its choices.
type Question struct {
	Text        string
	Choices     []Choice
	Explanation string
}

// Answer records the learner's selection for one question.
type Answer struct {
	ChoiceIndex int
	Correct     bool
}

// Summary is the graded outcome of a submitted quiz.
type Summary struct {
	Correct      int
	Total        int
	ScorePercent int
	Passed       bool
	Message      string
}

// Quiz holds the question sequence and the learner's progress through it.
// All methods are safe for concurrent use.
type Quiz struct {
	minPassScore float64
	questions    []Question

	mu        sync.Mutex
	current   int
	answers   []*Answer
	submitted bool
}

// New creates a quiz over questions. Every question must have at least one
// choice marked correct.
func New(questions []Question, opts ...Option) (*Quiz, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("quiz: no questions")
	}
	for i, question := range questions {
		correct := false
		for _, c := range question.Choices {
			if c.Correct {
				correct = true
				break
			}
		}
		if !correct {
			return nil, fmt.Errorf("quiz: question %d has no correct choice", i)
		}
	}
	q := &Quiz{
		minPassScore: DefaultMinPassScore,
		questions:    questions,
		answers:      make([]*Answer, len(questions)),
	}
	for _, o := range opts {
		o(q)
	}
	return q, nil
}

// Len returns the number of questions.
func (q *Quiz) Len() int { return len(q.questions) }

// Question returns the question at index i.
func (q *Quiz) Question(i int) (Question, error) {
	if i < 0 || i >= len(q.questions) {
		return Question{}, fmt.Errorf("quiz: question index %d out of range", i)
	}
	return q.questions[i], nil
}

// Current returns the index of the question currently shown.
func (q *Quiz) Current() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// Navigate moves the current question by delta, clamped to the question
// range.
func (q *Quiz) Navigate(delta int) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.current = min(max(q.current+delta, 0), len(q.questions)-1)
	return q.current
}

// Select records the learner's choice for question i. Re-selecting before
// submission replaces the previous answer; selections after submission are
// rejected. The returned Answer reports correctness immediately so the UI
// can show feedback.
func (q *Quiz) Select(i, choice int) (Answer, error) {
	if i < 0 || i >= len(q.questions) {
		return Answer{}, fmt.Errorf("quiz: question index %d out of range", i)
	}
	if choice < 0 || choice >= len(q.questions[i].Choices) {
		return Answer{}, fmt.Errorf("quiz: choice index %d out of range for question %d", choice, i)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.submitted {
		return Answer{}, fmt.Errorf("quiz: already submitted")
	}
	a := Answer{ChoiceIndex: choice, Correct: q.questions[i].Choices[choice].Correct}
	q.answers[i] = &a
	return a, nil
}

// AnsweredCount returns the number of answered questions.
func (q *Quiz) AnsweredCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, a := range q.answers {
		if a != nil {
			n++
		}
	}
	return n
}

// Submit grades the quiz. Unanswered questions count as incorrect. A second
// submit is rejected.
func (q *Quiz) Submit() (Summary, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.submitted {
		return Summary{}, fmt.Errorf("quiz: already submitted")
	}
	q.submitted = true

	correct := 0
	for _, a := range q.answers {
		if a != nil && a.Correct {
			correct++
		}
	}
	total := len(q.questions)
	ratio := float64(correct) / float64(total)

	s := Summary{
		Correct:      correct,
		Total:        total,
		ScorePercent: int(math.Round(ratio * 100)),
		Passed:       ratio >= q.minPassScore,
	}
	if s.Passed {
		s.Message = "Congratulations! You passed the quiz."
	} else {
		s.Message = "You didn't pass the quiz this time. Try again!"
	}
	return s, nil
}

// Submitted reports whether the quiz has been graded.
func (q *Quiz) Submitted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.submitted
}

// Reset clears all answers and returns the quiz to its initial, unsubmitted
// state on the first question.
func (q *Quiz) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.current = 0
	q.submitted = false
	q.answers = make([]*Answer, len(q.questions))
}
