package sqlexec

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	qerrors "github.com/sso312/QueryLens-sub002/internal/errors"
	"github.com/sso312/QueryLens-sub002/internal/model"
)

// RepairRule rewrites SQL for one class of database error. Apply returns
// false when the rule has nothing to change.
type RepairRule struct {
	Name  string
	Match func(dbErr *DBError) bool
	Apply func(sql string, p *Postprocessor) (string, bool)
	// RowLimit marks rules that only rewrite the row-limiting clause. The
	// statement the policy gate judges stays as it was.
	RowLimit bool
}

var (
	reSimpleIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)
	reLimitSyntax = regexp.MustCompile(`(?i)(near "?limit"?|ORA-00933|ORA-00923)`)
	reBadChar     = regexp.MustCompile(`(?i)(ORA-00911|invalid character|near "?;"?|near "?` + "`" + `)`)
)

// DefaultRepairRules is the ordered rule table. The first rule that matches
// and changes the SQL wins.
func DefaultRepairRules() []RepairRule {
	return []RepairRule{
		{
			Name: "schema_prefix",
			Match: func(e *DBError) bool {
				msg := strings.ToLower(e.Message)
				return e.Code == "42P01" || e.Code == "3F000" || strings.Contains(e.Message, "ORA-00942") ||
					(strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist"))
			},
			Apply: qualifyTables,
		},
		{
			Name: "limit_rewrite",
			Match: func(e *DBError) bool {
				return reLimitSyntax.MatchString(e.Error())
			},
			Apply: func(sql string, p *Postprocessor) (string, bool) {
				target := p.Dialect()
				if target == DialectPostgres {
					target = DialectANSI
				}
				return rewriteLimit(sql, target)
			},
			RowLimit: true,
		},
		{
			Name: "strip_terminator",
			Match: func(e *DBError) bool {
				return reBadChar.MatchString(e.Error())
			},
			Apply: func(sql string, _ *Postprocessor) (string, bool) {
				out := stripTerminators(stripFences(strings.TrimSpace(strings.ReplaceAll(sql, "`", ""))))
				return out, out != sql
			},
		},
		{
			Name: "unquote_identifiers",
			Match: func(e *DBError) bool {
				return e.Code == "42703" || strings.Contains(e.Message, "ORA-00904")
			},
			Apply: unquoteIdentifiers,
		},
	}
}

// qualifyTables prefixes bare table names after FROM and JOIN with their
// schema. Names bound by a WITH clause are left alone.
func qualifyTables(sql string, p *Postprocessor) (string, bool) {
	catalog := p.Catalog()
	if catalog.DefaultSchema() == "" {
		return sql, false
	}
	toks := lex(sql)
	ctes := cteNames(toks)

	changed := false
	expectTable := false
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.kind == tokSpace || t.kind == tokComment {
			continue
		}
		if t.kind == tokWord && (strings.EqualFold(t.text, "FROM") || strings.EqualFold(t.text, "JOIN")) {
			expectTable = true
			continue
		}
		if !expectTable {
			continue
		}
		expectTable = false
		if t.kind != tokWord && t.kind != tokQuoted {
			continue
		}
		name := unquote(t.text)
		if ctes[strings.ToLower(name)] || nextIs(toks, i, ".") || nextIs(toks, i, ")") {
			continue
		}
		if catalog.HasTables() && !catalog.IsTable(name) {
			continue
		}
		schema := catalog.SchemaFor(name)
		toks[i].text = schema + "." + t.text
		changed = true
	}
	if !changed {
		return sql, false
	}
	return join(toks), true
}

// cteNames collects the names bound by WITH ... AS.
func cteNames(toks []token) map[string]bool {
	names := make(map[string]bool)
	sig := significant(toks)
	for i := 0; i+1 < len(sig); i++ {
		if sig[i+1].kind == tokWord && strings.EqualFold(sig[i+1].text, "AS") && i > 0 {
			prev := sig[i-1]
			if prev.kind == tokWord && strings.EqualFold(prev.text, "WITH") ||
				prev.kind == tokWord && strings.EqualFold(prev.text, "RECURSIVE") ||
				prev.kind == tokOther && prev.text == "," {
				if i+2 < len(sig) && sig[i+2].text == "(" {
					names[strings.ToLower(unquote(sig[i].text))] = true
				}
			}
		}
	}
	return names
}

// nextIs reports whether the first significant token after i is punct.
func nextIs(toks []token, i int, punct string) bool {
	for j := i + 1; j < len(toks); j++ {
		if toks[j].kind == tokSpace || toks[j].kind == tokComment {
			continue
		}
		return toks[j].kind == tokOther && toks[j].text == punct
	}
	return false
}

// unquoteIdentifiers drops double quotes around simple identifiers so they
// fold to the database's default case.
func unquoteIdentifiers(sql string, _ *Postprocessor) (string, bool) {
	toks := lex(sql)
	changed := false
	for i, t := range toks {
		if t.kind != tokQuoted {
			continue
		}
		inner := unquote(t.text)
		if reSimpleIdent.MatchString(inner) && !sqlKeywords[strings.ToUpper(inner)] {
			toks[i].text = inner
			changed = true
		}
	}
	if !changed {
		return sql, false
	}
	return join(toks), true
}

// Fixer asks a model to correct SQL the database rejected.
type Fixer interface {
	Fix(ctx context.Context, requestID, sql string, dbErr *DBError) (string, error)
}

// RepairLoop executes SQL and repairs it after database errors. It never makes
// more than MaxAttempts calls to the executor for one request.
type RepairLoop struct {
	executor      *BoundedExecutor
	gate          *PolicyGate
	post          *Postprocessor
	rules         []RepairRule
	fixer         Fixer
	maxAttempts   int
	logger        *zap.Logger
}

// RepairOptions configures a RepairLoop.
type RepairOptions struct {
	// MaxAttempts counts the first execution plus every repaired retry.
	MaxAttempts int
	// Rules is the rule table; nil disables rule-based repair.
	Rules []RepairRule
	// Fixer performs LLM repair; nil disables it.
	Fixer Fixer
}

// NewRepairLoop creates a repair loop.
func NewRepairLoop(executor *BoundedExecutor, gate *PolicyGate, post *Postprocessor, opts RepairOptions, logger *zap.Logger) *RepairLoop {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &RepairLoop{
		executor:      executor,
		gate:          gate,
		post:          post,
		rules:         opts.Rules,
		fixer:         opts.Fixer,
		maxAttempts:   opts.MaxAttempts,
		logger:        logger.Named("repair"),
	}
}

// RunInput is one execute-and-repair request.
type RunInput struct {
	RequestID string
	SQL       model.CompiledSQL
	RowCap    int
	Timeout   time.Duration
	Trail     *model.AttemptTrail
}

// RunOutput is the result of a successful run.
type RunOutput struct {
	Result     *model.ExecutionResult
	SQL        model.CompiledSQL
	Executions int
}

// Run executes in.SQL, repairing after database errors until it succeeds,
// runs out of candidates, or reaches the execution bound. The returned SQL is
// the last statement executed or attempted, also on failure.
func (l *RepairLoop) Run(ctx context.Context, in RunInput) (*RunOutput, error) {
	current := in.SQL
	tried := map[string]bool{current.SQL: true}
	out := &RunOutput{SQL: current}

	for exec := 1; ; exec++ {
		if err := ctx.Err(); err != nil {
			in.Trail.Record(model.TrailExecute, model.OutcomeSkipped, "request cancelled")
			return out, qerrors.Wrap(qerrors.Cancelled, "request cancelled before execution", err)
		}

		out.SQL = current
		out.Executions = exec
		res, err := l.executor.Execute(ctx, ExecRequest{
			RequestID: in.RequestID,
			Attempt:   exec,
			SQL:       current.SQL,
			RowCap:    in.RowCap,
			Timeout:   in.Timeout,
		})
		if err == nil {
			in.Trail.Attempt(model.TrailExecute, model.OutcomeOK, fmt.Sprintf("%d rows", len(res.Rows)))
			out.Result = res
			return out, nil
		}
		dbErr, isDB := AsDBError(err)
		detail := err.Error()
		if isDB {
			detail = dbErr.Error()
		}
		in.Trail.Attempt(model.TrailExecute, model.OutcomeFailed, detail)

		if !isDB || qerrors.Is(err, qerrors.Timeout) || qerrors.Is(err, qerrors.Cancelled) {
			return out, err
		}

		if exec >= l.maxAttempts {
			return out, l.exhausted(exec, err)
		}

		next, ok := l.nextCandidate(ctx, in, current, dbErr, tried)
		if !ok {
			return out, l.exhausted(exec, err)
		}

		verdict := l.gate.CheckCompiled(next)
		if !verdict.Passed {
			in.Trail.Record(model.TrailPolicy, model.OutcomeFailed, string(verdict.Reason)+" on repaired SQL")
			out.SQL = next
			return out, l.gate.Err(verdict)
		}
		tried[next.SQL] = true
		current = next
	}
}

func (l *RepairLoop) exhausted(executions int, last error) error {
	return &qerrors.E{
		Kind:    qerrors.RepairExhausted,
		Message: fmt.Sprintf("repair exhausted after %d executions", executions),
		Err:     last,
	}
}

// nextCandidate tries the rule table first, then the fixer.
func (l *RepairLoop) nextCandidate(ctx context.Context, in RunInput, current model.CompiledSQL, dbErr *DBError, tried map[string]bool) (model.CompiledSQL, bool) {
	for _, rule := range l.rules {
		if !rule.Match(dbErr) {
			continue
		}
		sql, changed := rule.Apply(current.SQL, l.post)
		if !changed || tried[sql] {
			continue
		}
		in.Trail.Fallback(model.TrailRuleRepair, model.FallbackRuleRepair, rule.Name)
		l.logger.Info("Applied repair rule",
			zap.String("request_id", in.RequestID),
			zap.String("rule", rule.Name),
			zap.String("code", dbErr.Code))
		next := model.CompiledSQL{
			SQL:      sql,
			Source:   current.Source,
			Rewrites: append(append([]string(nil), current.Rewrites...), "repair:"+rule.Name),
		}
		switch {
		case rule.RowLimit:
			next.Body = current.PolicyText()
		case current.Body != "":
			next.Body = current.Body
			if b, ok := rule.Apply(current.Body, l.post); ok {
				next.Body = b
			}
		}
		if next.Body == next.SQL {
			next.Body = ""
		}
		return next, true
	}

	if l.fixer == nil || ctx.Err() != nil {
		return model.CompiledSQL{}, false
	}

	fixed, err := l.fixer.Fix(ctx, in.RequestID, current.SQL, dbErr)
	if err != nil {
		in.Trail.Attempt(model.TrailLLMRepair, model.OutcomeFailed, err.Error())
		l.logger.Warn("LLM repair failed", zap.String("request_id", in.RequestID), zap.Error(err))
		return model.CompiledSQL{}, false
	}
	in.Trail.Attempt(model.TrailLLMRepair, model.OutcomeOK, "")

	compiled := l.post.Postprocess(fixed)
	if compiled.SQL == "" || tried[compiled.SQL] {
		in.Trail.Record(model.TrailLLMRepair, model.OutcomeFailed, "repair produced no new SQL")
		return model.CompiledSQL{}, false
	}
	in.Trail.Fallback(model.TrailLLMRepair, model.FallbackLLMRepair, "")
	compiled.Source = current.Source
	compiled.Rewrites = append(compiled.Rewrites, "repair:llm")
	return compiled, true
}
