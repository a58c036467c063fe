// Package lexicon matches fixed word lists against free text in one pass.
package lexicon

import (
	"strings"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"
)

// Hit is one whole-word occurrence of a listed term.
type Hit struct {
	Term  string // as listed
	Start int
	End   int
}

// Matcher finds case-insensitive whole-word occurrences of a term list.
// It is immutable after construction and safe for concurrent use.
type Matcher struct {
	ac    ahocorasick.AhoCorasick
	terms []string
}

// NewMatcher builds the automaton for terms. Multi-word terms match with the
// exact spacing given.
func NewMatcher(terms []string) *Matcher {
	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: true,
		MatchOnlyWholeWords:  false,
		MatchKind:            ahocorasick.LeftMostLongestMatch,
	})
	return &Matcher{
		ac:    builder.Build(terms),
		terms: terms,
	}
}

// FindAll returns whole-word hits in text, left to right, non-overlapping.
// Identifier characters (letters, digits, '_' and '$') count as word bytes,
// so "is_deleted" does not contain the word "deleted".
func (m *Matcher) FindAll(text string) []Hit {
	var hits []Hit
	for _, match := range m.ac.FindAll(text) {
		start, end := match.Start(), match.End()
		if start > 0 && isIdentByte(text[start-1]) {
			continue
		}
		if end < len(text) && isIdentByte(text[end]) {
			continue
		}
		hits = append(hits, Hit{Term: m.terms[match.Pattern()], Start: start, End: end})
	}
	return hits
}

// First returns the first hit, if any.
func (m *Matcher) First(text string) (Hit, bool) {
	hits := m.FindAll(text)
	if len(hits) == 0 {
		return Hit{}, false
	}
	return hits[0], true
}

// Distinct returns the distinct terms hit in text, lower-cased, in first-seen order.
func (m *Matcher) Distinct(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, h := range m.FindAll(text) {
		key := strings.ToLower(h.Term)
		if !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	return out
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
