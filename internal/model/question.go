package model

import (
	"strings"
	"unicode"
)

// Question is a natural-language question as received plus its cache key form.
type Question struct {
	Raw        string `json:"raw"`
	Normalized string `json:"normalized"`
}

// NewQuestion trims the input and derives the normalized form.
func NewQuestion(raw string) Question {
	raw = strings.TrimSpace(raw)
	return Question{Raw: raw, Normalized: NormalizeQuestion(raw)}
}

// IsEmpty reports whether the question carries no text.
func (q Question) IsEmpty() bool {
	return q.Normalized == ""
}

// NormalizeQuestion lowercases, drops punctuation and folds whitespace runs.
// Two questions that differ only in spacing, case or punctuation share a key.
func NormalizeQuestion(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(unicode.ToLower(r))
		default:
			space = true
		}
	}
	return b.String()
}
