package sqlexec

import (
	"fmt"
	"strings"

	qerrors "github.com/sso312/QueryLens-sub002/internal/errors"
	"github.com/sso312/QueryLens-sub002/internal/lexicon"
	"github.com/sso312/QueryLens-sub002/internal/model"
)

// writeKeywords block a statement wherever they appear, comments and string
// literals included. REPLACE and SET are left out because both are common in
// read-only queries.
var writeKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "MERGE", "UPSERT", "INTO",
	"CREATE", "ALTER", "DROP", "TRUNCATE", "RENAME",
	"GRANT", "REVOKE", "COMMIT", "ROLLBACK", "SAVEPOINT",
	"CALL", "EXEC", "EXECUTE", "COPY", "VACUUM", "LOCK",
}

// PolicyGate runs the static read-only checks. The zero value is not usable;
// construct with NewPolicyGate.
type PolicyGate struct {
	maxJoins int
	writes   *lexicon.Matcher
}

// NewPolicyGate creates a gate allowing at most maxJoins JOIN clauses.
func NewPolicyGate(maxJoins int) *PolicyGate {
	return &PolicyGate{
		maxJoins: maxJoins,
		writes:   lexicon.NewMatcher(writeKeywords),
	}
}

// Check returns the verdict for sql. It is a pure function of its input:
// checks run in a fixed order and the first failure wins.
//
//  1. NOT_SELECT     - a single statement starting with SELECT or WITH
//  2. MISSING_WHERE  - a WHERE keyword outside comments and literals
//  3. TOO_MANY_JOINS - JOIN count within the ceiling
//  4. WRITE_BLOCKED  - no DML/DDL keyword anywhere in the raw text
func (g *PolicyGate) Check(sql string) model.PolicyVerdict {
	toks := significant(lex(sql))

	if len(toks) == 0 {
		return model.PolicyVerdict{
			Reason:  model.ReasonNotSelect,
			Message: "empty statement",
		}
	}
	first := strings.ToUpper(toks[0].text)
	if toks[0].kind != tokWord || (first != "SELECT" && first != "WITH") {
		return model.PolicyVerdict{
			Reason:  model.ReasonNotSelect,
			Clause:  toks[0].text,
			Message: "only SELECT or WITH ... SELECT statements may run",
		}
	}
	if first == "WITH" && !containsWord(toks, "SELECT") {
		return model.PolicyVerdict{
			Reason:  model.ReasonNotSelect,
			Clause:  "WITH",
			Message: "WITH clause must end in a SELECT",
		}
	}
	if i := statementBreak(toks); i >= 0 {
		return model.PolicyVerdict{
			Reason:  model.ReasonNotSelect,
			Clause:  join(toks[i:]),
			Message: "only a single statement may run",
		}
	}

	if !containsWord(toks, "WHERE") {
		return model.PolicyVerdict{
			Reason:  model.ReasonMissingWhere,
			Message: "WHERE clause required",
		}
	}

	if joins := countWord(toks, "JOIN"); joins > g.maxJoins {
		return model.PolicyVerdict{
			Reason:  model.ReasonTooManyJoins,
			Clause:  fmt.Sprintf("%d JOIN clauses", joins),
			Message: fmt.Sprintf("query uses %d joins, the limit is %d", joins, g.maxJoins),
		}
	}

	if hit, ok := g.writes.First(sql); ok {
		return model.PolicyVerdict{
			Reason:  model.ReasonWriteBlocked,
			Clause:  strings.ToUpper(sql[hit.Start:hit.End]),
			Message: fmt.Sprintf("write or DDL keyword %s is not allowed", strings.ToUpper(hit.Term)),
		}
	}

	return model.Pass()
}

// CheckCompiled judges c by its PolicyText, so a WHERE or FETCH clause added
// by row-limit rewriting never satisfies a check.
func (g *PolicyGate) CheckCompiled(c model.CompiledSQL) model.PolicyVerdict {
	return g.Check(c.PolicyText())
}

// Err converts a failing verdict into a policy violation error, or nil.
func (g *PolicyGate) Err(v model.PolicyVerdict) error {
	if v.Passed {
		return nil
	}
	return qerrors.Policy(string(v.Reason), v.Clause, v.Message)
}

// statementBreak returns the index of the first ';' that is followed by more
// SQL, or -1.
func statementBreak(toks []token) int {
	for i, t := range toks {
		if t.kind == tokOther && t.text == ";" {
			for _, rest := range toks[i+1:] {
				if !(rest.kind == tokOther && rest.text == ";") {
					return i
				}
			}
		}
	}
	return -1
}

func containsWord(toks []token, word string) bool {
	return countWord(toks, word) > 0
}

func countWord(toks []token, word string) int {
	n := 0
	for _, t := range toks {
		if t.kind == tokWord && strings.EqualFold(t.text, word) {
			n++
		}
	}
	return n
}
