package cli

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	"github.com/sso312/QueryLens-sub002/internal/model"
)

// Rows beyond this are summarized rather than printed.
const maxDisplayRows = 20

func renderCompiled(c model.CompiledSQL) {
	pterm.DefaultSection.Println("SQL")
	pterm.Println(c.SQL)
	if len(c.Rewrites) > 0 {
		pterm.Println()
		renderBullets("Rewrites", c.Rewrites)
	}
}

func renderVerdict(v model.PolicyVerdict) {
	pterm.Println()
	if v.Passed {
		pterm.Success.Println("Policy check passed")
		return
	}
	pterm.Error.Printfln("%s: %s", v.Reason, v.Message)
	if v.Clause != "" {
		pterm.Printfln("  clause: %s", v.Clause)
	}
}

func renderRisk(r model.RiskScore, escalate bool, threshold float64) {
	pterm.DefaultSection.Println("Risk")
	pterm.Printfln("score %.1f / 10 (expert review at %.1f)", r.Value, threshold)
	if len(r.Factors) > 0 {
		renderBullets("Factors", r.Factors)
	}
	if escalate {
		pterm.Warning.Println("High risk: the draft gets an expert review and execution needs --ack")
	} else {
		pterm.Info.Println("Low risk: the draft executes without review")
	}
}

func renderBullets(title string, items []string) {
	pterm.Println(title + ":")
	bullets := make([]pterm.BulletListItem, 0, len(items))
	for _, s := range items {
		bullets = append(bullets, pterm.BulletListItem{Level: 0, Text: s})
	}
	_ = pterm.DefaultBulletList.WithItems(bullets).Render()
}

func renderResponse(resp *model.QueryResponse) {
	pterm.DefaultSection.Println("Request " + resp.RequestID)
	pterm.Printfln("status: %s   risk: %.1f   attempts: %d", resp.Status, resp.Risk.Value, resp.AttemptCount)
	if resp.Cached {
		pterm.Info.Println("Served from the demo answer cache")
	}

	if resp.SQL != "" {
		pterm.DefaultSection.WithLevel(2).Println("SQL")
		pterm.Println(resp.SQL)
	}
	if resp.DraftSQL != "" && resp.DraftSQL != resp.SQL {
		pterm.DefaultSection.WithLevel(2).Println("Draft SQL")
		pterm.Println(resp.DraftSQL)
	}

	for _, w := range resp.Warnings {
		pterm.Warning.Println(w)
	}
	if resp.ClarificationQuestion != "" {
		pterm.Info.Println(resp.ClarificationQuestion)
	}
	if resp.Policy != nil && !resp.Policy.Passed {
		renderVerdict(*resp.Policy)
	}
	if resp.FallbackUsed {
		stage := ""
		if resp.FallbackStage != nil {
			stage = *resp.FallbackStage
		}
		pterm.Warning.Printfln("Fallback used at %s: %s", stage, strings.Join(resp.FailureReasons, "; "))
	}

	if resp.Result != nil {
		renderResult(resp.Result)
	}
}

func renderResult(r *model.ResultView) {
	pterm.DefaultSection.WithLevel(2).Println("Result")
	if len(r.Columns) == 0 {
		pterm.Println("(no columns)")
		return
	}

	data := pterm.TableData{r.Columns}
	for i, row := range r.Rows {
		if i == maxDisplayRows {
			break
		}
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = formatCell(v)
		}
		data = append(data, cells)
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()

	summary := fmt.Sprintf("%d rows in %d ms", len(r.Rows), r.ElapsedMS)
	if len(r.Rows) > maxDisplayRows {
		summary += fmt.Sprintf(", first %d shown", maxDisplayRows)
	}
	if r.Truncated {
		summary += fmt.Sprintf(", truncated at the %d row cap", r.RowCap)
	}
	pterm.Println(summary)
}

func formatCell(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprint(v)
}
