package recorder

import "strings"

// WordCount counts the whitespace-delimited non-empty tokens of text.
// Empty and whitespace-only text count zero words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
