package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sso312/QueryLens-sub002/internal/model"
)

const draftSystemPrompt = `You are a clinical data engineer writing read-only SQL.
Use only tables and columns from the schema context. Every query must be a
single SELECT (optionally WITH ... SELECT) and must contain a WHERE clause.
Never write INSERT, UPDATE, DELETE, DDL or multiple statements.

Respond with one JSON object and nothing else:
{"final_sql": "...", "warnings": ["..."], "needs_clarification": false, "clarification_question": ""}
Always fill final_sql with your best attempt, even when you ask for clarification.`

const reviewSystemPrompt = `You are a senior clinical data expert reviewing a draft SQL query.
Check joins, date filters, aggregation and the question's intent against the
schema context. Return the corrected query, or the draft unchanged when it is
already right. The same read-only rules apply: one SELECT, WHERE required.

Respond with one JSON object and nothing else:
{"final_sql": "...", "warnings": ["..."], "needs_clarification": false, "clarification_question": ""}`

const repairSystemPrompt = `You fix SQL that a database rejected. Keep the query's intent,
change as little as possible, keep it a single read-only SELECT with a WHERE clause.

Respond with one JSON object and nothing else:
{"final_sql": "..."}`

// buildDraftPayload renders the user turn for the draft call.
func buildDraftPayload(q model.Question, payload model.ContextPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", q.Raw)
	writeContext(&b, payload)
	return b.String()
}

func buildReviewPayload(q model.Question, payload model.ContextPayload, draft model.SQLDraft) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", q.Raw)
	writeContext(&b, payload)
	b.WriteString("\nDraft SQL:\n")
	b.WriteString(draft.FinalSQL)
	b.WriteString("\n")
	if len(draft.Warnings) > 0 {
		b.WriteString("Draft warnings:\n")
		for _, w := range draft.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	return b.String()
}

func buildRepairPayload(sql, code, message string) string {
	errJSON, _ := json.Marshal(map[string]string{"code": code, "message": message})
	return fmt.Sprintf("SQL:\n%s\n\nDatabase error:\n%s\n", sql, errJSON)
}

func writeContext(b *strings.Builder, payload model.ContextPayload) {
	headers := map[model.SnippetKind]string{
		model.KindSchema:   "Schema",
		model.KindExample:  "Examples",
		model.KindTemplate: "Templates",
		model.KindGlossary: "Glossary",
	}
	for _, kind := range model.SnippetKinds {
		snippets := payload.OfKind(kind)
		if len(snippets) == 0 {
			continue
		}
		fmt.Fprintf(b, "\n## %s\n", headers[kind])
		for _, s := range snippets {
			b.WriteString(s.Text)
			b.WriteString("\n")
		}
	}
}
