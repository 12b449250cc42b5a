package sanitizer

import (
	"strings"
	"testing"
)

func TestTrimAndNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"trim spaces", "  admin  ", "admin"},
		{"collapse inner whitespace", "a \t\n b", "a b"},
		{"empty", "", ""},
		{"only whitespace", " \t\n ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrimAndNormalize(tt.input); got != tt.want {
				t.Errorf("TrimAndNormalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSubjectID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "alice", "alice"},
		{"trimmed", "  user-42 ", "user-42"},
		{"email style", "alice@example.com", "alice@example.com"},
		{"oauth style", "auth0|5f1c", "auth0|5f1c"},
		{"inner space rejected", "alice smith", ""},
		{"newline injection rejected", "alice\nadmin", ""},
		{"too long", strings.Repeat("a", MaxSubjectIDLength+1), ""},
		{"max length kept", strings.Repeat("a", MaxSubjectIDLength), strings.Repeat("a", MaxSubjectIDLength)},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SubjectID(tt.input); got != tt.want {
				t.Errorf("SubjectID(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIdempotent(t *testing.T) {
	inputs := []string{" alice ", "ADMIN ", "x\ty"}
	for _, in := range inputs {
		if once, twice := SubjectID(in), SubjectID(SubjectID(in)); once != twice {
			t.Errorf("SubjectID not idempotent for %q: %q vs %q", in, once, twice)
		}
		if once, twice := Role(in), Role(Role(in)); once != twice {
			t.Errorf("Role not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}
