package sqlexec

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sso312/QueryLens-sub002/internal/model"
)

// Dialect selects the row-limiting idiom the target database understands.
type Dialect string

const (
	// DialectANSI rewrites LIMIT to FETCH FIRST, accepted by Postgres and Oracle 12c+.
	DialectANSI Dialect = "ansi"
	// DialectPostgres keeps LIMIT as written.
	DialectPostgres Dialect = "postgres"
	// DialectOracle wraps the query in a ROWNUM filter.
	DialectOracle Dialect = "oracle"
)

// ParseDialect validates a configured dialect name.
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(s))); d {
	case DialectANSI, DialectPostgres, DialectOracle:
		return d, nil
	case "":
		return DialectANSI, nil
	default:
		return "", fmt.Errorf("unknown SQL dialect %q", s)
	}
}

// Rewrite names recorded on CompiledSQL.
const (
	RewriteFences     = "strip_fences"
	RewriteTerminator = "strip_terminator"
	RewriteLimit      = "limit_rewrite"
	RewriteCasing     = "identifier_casing"
)

var reFence = regexp.MustCompile("(?s)```[A-Za-z]*[ \t]*\r?\n?(.*?)```")

// sqlKeywords are never touched by casing normalization even when a column
// of the same name exists.
var sqlKeywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "AND": true, "OR": true, "NOT": true,
	"JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true, "FULL": true, "OUTER": true,
	"CROSS": true, "ON": true, "AS": true, "GROUP": true, "BY": true, "ORDER": true,
	"HAVING": true, "LIMIT": true, "OFFSET": true, "FETCH": true, "FIRST": true, "NEXT": true,
	"ROWS": true, "ONLY": true, "WITH": true, "UNION": true, "ALL": true, "DISTINCT": true,
	"CASE": true, "WHEN": true, "THEN": true, "ELSE": true, "END": true, "IN": true,
	"IS": true, "NULL": true, "LIKE": true, "BETWEEN": true, "EXISTS": true, "ASC": true,
	"DESC": true, "COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true,
	"CAST": true, "INTERVAL": true, "DATE": true, "EXTRACT": true, "OVER": true, "PARTITION": true,
}

// Postprocessor turns generated SQL into dialect-ready SQL. It performs no I/O
// and is safe for concurrent use.
type Postprocessor struct {
	dialect Dialect
	catalog *Catalog
}

// NewPostprocessor creates a postprocessor. catalog may be nil, which disables
// casing normalization.
func NewPostprocessor(dialect Dialect, catalog *Catalog) *Postprocessor {
	return &Postprocessor{dialect: dialect, catalog: catalog}
}

// Dialect returns the target dialect.
func (p *Postprocessor) Dialect() Dialect { return p.dialect }

// Catalog returns the schema catalog, possibly nil.
func (p *Postprocessor) Catalog() *Catalog { return p.catalog }

// Postprocess rewrites raw into CompiledSQL. Identical input always yields
// identical output.
func (p *Postprocessor) Postprocess(raw string) model.CompiledSQL {
	out := model.CompiledSQL{Source: raw}
	sql := strings.TrimSpace(raw)

	if s := stripFences(sql); s != sql {
		sql = s
		out.Rewrites = append(out.Rewrites, RewriteFences)
	}
	if s := stripTerminators(sql); s != sql {
		sql = s
		out.Rewrites = append(out.Rewrites, RewriteTerminator)
	}
	body := sql
	if s, ok := rewriteLimit(sql, p.dialect); ok {
		sql = s
		out.Rewrites = append(out.Rewrites, RewriteLimit)
	}
	if s, n := normalizeCasing(sql, p.catalog); n > 0 {
		sql = s
		body, _ = normalizeCasing(body, p.catalog)
		out.Rewrites = append(out.Rewrites, RewriteCasing)
	}

	out.SQL = sql
	if body != sql {
		out.Body = body
	}
	return out
}

// stripFences extracts the body of a markdown code fence.
func stripFences(s string) string {
	if m := reFence.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			return strings.TrimSpace(s[nl+1:])
		}
		return strings.TrimSpace(strings.TrimLeft(s, "`"))
	}
	return s
}

func stripTerminators(s string) string {
	return strings.TrimRight(s, "; \t\r\n")
}

// rewriteLimit translates a trailing top-level "LIMIT n [OFFSET m]" into the
// dialect's idiom. LIMIT inside subqueries is left alone.
func rewriteLimit(sql string, dialect Dialect) (string, bool) {
	if dialect == DialectPostgres {
		return sql, false
	}
	toks := lex(sql)

	limitAt, depth := -1, 0
	for i, t := range toks {
		switch {
		case t.kind == tokOther && t.text == "(":
			depth++
		case t.kind == tokOther && t.text == ")":
			depth--
		case t.kind == tokWord && depth == 0 && strings.EqualFold(t.text, "LIMIT"):
			limitAt = i
		}
	}
	if limitAt < 0 {
		return sql, false
	}

	tail := significant(toks[limitAt+1:])
	var limit, offset int
	var err error
	switch {
	case len(tail) == 1:
		limit, err = strconv.Atoi(tail[0].text)
	case len(tail) == 3 && tail[1].kind == tokWord && strings.EqualFold(tail[1].text, "OFFSET"):
		limit, err = strconv.Atoi(tail[0].text)
		if err == nil {
			offset, err = strconv.Atoi(tail[2].text)
		}
	default:
		return sql, false
	}
	if err != nil {
		return sql, false
	}

	body := strings.TrimRight(join(toks[:limitAt]), " \t\r\n")
	switch dialect {
	case DialectOracle:
		if offset == 0 {
			return fmt.Sprintf("SELECT * FROM (%s) WHERE ROWNUM <= %d", body, limit), true
		}
		return fmt.Sprintf(
			"SELECT * FROM (SELECT q__.*, ROWNUM AS rn__ FROM (%s) q__ WHERE ROWNUM <= %d) WHERE rn__ > %d",
			body, offset+limit, offset), true
	default:
		if offset == 0 {
			return fmt.Sprintf("%s FETCH FIRST %d ROWS ONLY", body, limit), true
		}
		return fmt.Sprintf("%s OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", body, offset, limit), true
	}
}

// normalizeCasing rewrites identifiers to their catalog spelling and returns
// the number of identifiers changed.
func normalizeCasing(sql string, catalog *Catalog) (string, int) {
	if catalog.Len() == 0 {
		return sql, 0
	}
	toks := lex(sql)
	changed := 0
	for i, t := range toks {
		switch t.kind {
		case tokWord:
			if sqlKeywords[strings.ToUpper(t.text)] {
				continue
			}
			if canon, ok := catalog.Canonical(t.text); ok && canon != t.text {
				toks[i].text = canon
				changed++
			}
		case tokQuoted:
			inner := unquote(t.text)
			if canon, ok := catalog.Canonical(inner); ok && canon != inner {
				toks[i].text = `"` + strings.ReplaceAll(canon, `"`, `""`) + `"`
				changed++
			}
		}
	}
	if changed == 0 {
		return sql, 0
	}
	return join(toks), changed
}
