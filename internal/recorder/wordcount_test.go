package recorder

import "testing"

func TestWordCount(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "whitespace only", text: "   \t\n ", want: 0},
		{name: "single word", text: "hello", want: 1},
		{name: "two words", text: "hello world", want: 2},
		{name: "collapsed runs", text: "hello   world", want: 2},
		{name: "leading and trailing space", text: "  bonjour le monde  ", want: 3},
		{name: "newlines and tabs", text: "uno\ndos\ttres", want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := WordCount(tt.text); got != tt.want {
				t.Fatalf("WordCount(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}
