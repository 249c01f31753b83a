// Package assess scores a learner's transcribed spoken response against the
// expected phrase of a course exercise.
//
// Scoring proceeds in two stages:
//
//  1. Word alignment: Double Metaphone codes are computed for each expected
//     word and each response word. An expected word counts as spoken when a
//     response word shares a phonetic code with it, or when the best
//     Jaro-Winkler similarity against any response word clears the word
//     threshold (default 0.80). This forgives recognizer misspellings of
//     correctly pronounced words.
//
//  2. Phrase similarity: the full strings are compared with Jaro-Winkler
//     (case-insensitive) to reward correct word order.
//
// The final score is the mean of word accuracy and phrase similarity, and
// the response passes when the score clears the pass threshold (default
// 0.70).
package assess

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultWordThreshold = 0.80
	defaultPassThreshold = 0.70
)

// Option is a functional option for configuring a [Scorer].
type Option func(*Scorer)

// WithWordThreshold sets the minimum Jaro-Winkler score for a response word
// to count as a spoken expected word when the phonetic codes do not overlap.
// Default: 0.80.
func WithWordThreshold(threshold float64) Option {
	return func(s *Scorer) {
		s.wordThreshold = threshold
	}
}

// WithPassThreshold sets the minimum overall score for a passing response.
// Default: 0.70.
func WithPassThreshold(threshold float64) Option {
	return func(s *Scorer) {
		s.passThreshold = threshold
	}
}

// Scorer assesses spoken responses. All methods are safe for concurrent
// use — the Scorer is read-only after construction.
type Scorer struct {
	wordThreshold float64
	passThreshold float64
}

// New returns a [Scorer] configured with the supplied options.
func New(opts ...Option) *Scorer {
	s := &Scorer{
		wordThreshold: defaultWordThreshold,
		passThreshold: defaultPassThreshold,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Assessment is the outcome of scoring one response against one expected
// phrase.
type Assessment struct {
	// Score is the overall similarity in [0, 1].
	Score float64

	// WordAccuracy is the fraction of expected words found in the response.
	WordAccuracy float64

	// PhraseSimilarity is the Jaro-Winkler similarity of the full strings.
	PhraseSimilarity float64

	// MissedWords lists the expected words not matched by any response
	// word, in expected-phrase order.
	MissedWords []string

	// Passed reports whether Score cleared the pass threshold.
	Passed bool
}

// Assess scores response against expected. An empty expected phrase yields
// a zero assessment; an empty response scores 0 against any non-empty
// expected phrase.
func (s *Scorer) Assess(response, expected string) Assessment {
	expectedLower := strings.ToLower(strings.TrimSpace(expected))
	responseLower := strings.ToLower(strings.TrimSpace(response))
	expectedTokens := strings.Fields(expectedLower)
	if len(expectedTokens) == 0 {
		return Assessment{}
	}
	responseTokens := strings.Fields(responseLower)
	if len(responseTokens) == 0 {
		return Assessment{MissedWords: expectedTokens}
	}

	responseCodes := make([]map[string]struct{}, len(responseTokens))
	for i, t := range responseTokens {
		responseCodes[i] = phoneticCodes(t)
	}

	var missed []string
	matched := 0
	for _, et := range expectedTokens {
		if s.wordSpoken(et, responseTokens, responseCodes) {
			matched++
		} else {
			missed = append(missed, et)
		}
	}

	a := Assessment{
		WordAccuracy:     float64(matched) / float64(len(expectedTokens)),
		PhraseSimilarity: matchr.JaroWinkler(responseLower, expectedLower, false),
		MissedWords:      missed,
	}
	a.Score = (a.WordAccuracy + a.PhraseSimilarity) / 2
	a.Passed = a.Score >= s.passThreshold
	return a
}

// wordSpoken reports whether any response token phonetically or textually
// matches the expected token.
func (s *Scorer) wordSpoken(expected string, responseTokens []string, responseCodes []map[string]struct{}) bool {
	expectedCodes := phoneticCodes(expected)
	for i, rt := range responseTokens {
		if codesOverlap(expectedCodes, responseCodes[i]) {
			return true
		}
		if matchr.JaroWinkler(rt, expected, false) >= s.wordThreshold {
			return true
		}
	}
	return false
}

// phoneticCodes returns the Double Metaphone codes for token, excluding the
// empty codes produced for very short or vowel-only tokens.
func phoneticCodes(token string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, sec := matchr.DoubleMetaphone(token)
	if p != "" {
		codes[p] = struct{}{}
	}
	if sec != "" {
		codes[sec] = struct{}{}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
