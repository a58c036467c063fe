package sqlexec

import "strings"

type tokenKind int

const (
	tokWord tokenKind = iota
	tokQuoted
	tokString
	tokComment
	tokSpace
	tokOther
)

type token struct {
	kind tokenKind
	text string
}

// lex splits SQL into words, quoted identifiers, string literals, comments
// and everything else. Concatenating the token texts gives back the input.
func lex(sql string) []token {
	var toks []token
	i := 0
	for i < len(sql) {
		c := sql[i]
		start := i
		switch {
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			toks = append(toks, token{tokComment, sql[start:i]})
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				i = len(sql)
			} else {
				i += 2 + end + 2
			}
			toks = append(toks, token{tokComment, sql[start:i]})
		case c == '\'':
			i = scanQuoted(sql, i, '\'')
			toks = append(toks, token{tokString, sql[start:i]})
		case c == '"':
			i = scanQuoted(sql, i, '"')
			toks = append(toks, token{tokQuoted, sql[start:i]})
		case isWordStart(c):
			for i < len(sql) && isWordByte(sql[i]) {
				i++
			}
			toks = append(toks, token{tokWord, sql[start:i]})
		case isSpace(c):
			for i < len(sql) && isSpace(sql[i]) {
				i++
			}
			toks = append(toks, token{tokSpace, sql[start:i]})
		case c >= '0' && c <= '9':
			for i < len(sql) && (isWordByte(sql[i]) || sql[i] == '.') {
				i++
			}
			toks = append(toks, token{tokOther, sql[start:i]})
		default:
			i++
			toks = append(toks, token{tokOther, sql[start:i]})
		}
	}
	return toks
}

// scanQuoted returns the index just past the literal opened at i. A doubled
// quote is an escaped quote. An unterminated literal runs to the end.
func scanQuoted(sql string, i int, q byte) int {
	i++
	for i < len(sql) {
		if sql[i] == q {
			if i+1 < len(sql) && sql[i+1] == q {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return i
}

func isWordStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isWordByte(c byte) bool {
	return isWordStart(c) || (c >= '0' && c <= '9') || c == '$'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

// significant drops whitespace and comment tokens.
func significant(toks []token) []token {
	out := make([]token, 0, len(toks))
	for _, t := range toks {
		if t.kind != tokSpace && t.kind != tokComment {
			out = append(out, t)
		}
	}
	return out
}

func join(toks []token) string {
	var b strings.Builder
	for _, t := range toks {
		b.WriteString(t.text)
	}
	return b.String()
}

// unquote strips the surrounding double quotes of an identifier token.
func unquote(ident string) string {
	if len(ident) >= 2 && ident[0] == '"' && ident[len(ident)-1] == '"' {
		return strings.ReplaceAll(ident[1:len(ident)-1], `""`, `"`)
	}
	return ident
}
