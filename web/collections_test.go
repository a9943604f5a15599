package web

import (
	"testing"
)

func TestParsePageParam(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"1", 1},
		{"20", 20},
		{"0", 0},
		{"-1", 0},
		{"abc", 0},
		// ActivityPub clients request the first page as ?page=true
		{"true", 1},
		{"false", 0},
	}

	for _, tt := range tests {
		if got := ParsePageParam(tt.input); got != tt.want {
			t.Errorf("ParsePageParam(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}
