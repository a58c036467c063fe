package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	qerrors "github.com/sso312/QueryLens-sub002/internal/errors"
	"github.com/sso312/QueryLens-sub002/internal/model"
	"github.com/sso312/QueryLens-sub002/internal/repository"
	"github.com/sso312/QueryLens-sub002/internal/sqlexec"
)

var missingRelation = &sqlexec.DBError{Code: "42P01", Message: `relation "patients" does not exist`}

func TestDecodeDraft(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		d, err := decodeDraft(`{"final_sql": " SELECT 1 FROM patients WHERE 1=1 ", "warnings": ["approximate"], "needs_clarification": false}`)
		require.NoError(t, err)
		assert.Equal(t, "SELECT 1 FROM patients WHERE 1=1", d.FinalSQL)
		assert.Equal(t, []string{"approximate"}, d.Warnings)
	})

	t.Run("warnings default to empty", func(t *testing.T) {
		d, err := decodeDraft(`{"final_sql": "SELECT 1"}`)
		require.NoError(t, err)
		assert.NotNil(t, d.Warnings)
	})

	tests := []struct {
		name string
		text string
	}{
		{"not json", "SELECT * FROM patients"},
		{"unknown field", `{"final_sql": "SELECT 1", "confidence": 0.9}`},
		{"trailing data", `{"final_sql": "SELECT 1"} {"final_sql": "SELECT 2"}`},
		{"wrong type", `{"final_sql": 42}`},
		{"missing final_sql", `{"warnings": []}`},
		{"blank final_sql", `{"final_sql": "   "}`},
		{"blank with clarification", `{"final_sql": "", "needs_clarification": true, "clarification_question": "which year?"}`},
		{"array", `[{"final_sql": "SELECT 1"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeDraft(tt.text)
			assert.Error(t, err)
		})
	}
}

func newTestGenerator(llm LLMClient, ledger repository.CostLedger) *SQLGenerator {
	return NewSQLGenerator(llm, ledger, testAIConfig(), 4.0, zap.NewNop())
}

func TestSQLGenerator_EscalationBoundary(t *testing.T) {
	ctx := context.Background()
	q := model.NewQuestion("anything")

	tests := []struct {
		name      string
		risk      float64
		wantCalls int
		reviewed  bool
	}{
		{"at threshold", 4.0, 2, true},
		{"just below threshold", 4.0 - 1e-9, 1, false},
		{"above threshold", 9.5, 2, true},
		{"zero", 0, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := newScriptedLLM(draftJSON("SELECT 1 FROM patients WHERE a = 1"), draftJSON("SELECT 2 FROM patients WHERE a = 1"))
			g := newTestGenerator(llm, nil)
			trail := model.NewAttemptTrail(nil)

			gen, err := g.Generate(ctx, "req", q, model.RiskScore{Value: tt.risk}, model.ContextPayload{}, trail)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, llm.callCount())
			assert.Equal(t, tt.reviewed, gen.Reviewed)
			assert.Equal(t, tt.wantCalls, trail.AttemptCount())
			if tt.reviewed {
				assert.Equal(t, "SELECT 2 FROM patients WHERE a = 1", gen.Final.FinalSQL)
				assert.Equal(t, "SELECT 1 FROM patients WHERE a = 1", gen.Draft.FinalSQL)
				assert.Equal(t, model.StageReview, gen.Final.Stage)
				assert.Equal(t, "expert", llm.calls[1].Model)
			} else {
				assert.Equal(t, gen.Draft, gen.Final)
			}
			assert.Equal(t, "engineer", llm.calls[0].Model)
		})
	}
}

func TestSQLGenerator_DraftFailureFailsFast(t *testing.T) {
	llm := newScriptedLLM(llmReply{text: `{"final_sql": ""}`})
	ledger := repository.NewMemoryCostLedger()
	g := newTestGenerator(llm, ledger)
	trail := model.NewAttemptTrail(nil)

	_, err := g.Generate(context.Background(), "req", model.NewQuestion("q"), model.RiskScore{Value: 9}, model.ContextPayload{}, trail)
	require.Error(t, err)
	assert.True(t, qerrors.Is(err, qerrors.GenerationFailed))
	assert.Equal(t, 1, llm.callCount(), "no review after a failed draft")

	entries := ledger.Entries()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Succeeded)
	assert.Equal(t, model.StageDraft, entries[0].Stage)
}

func TestSQLGenerator_ReviewFailureKeepsDraft(t *testing.T) {
	llm := newScriptedLLM(draftJSON("SELECT 1 FROM patients WHERE a = 1"), llmReply{err: errors.New("upstream 503")})
	ledger := repository.NewMemoryCostLedger()
	g := newTestGenerator(llm, ledger)
	trail := model.NewAttemptTrail(nil)

	gen, err := g.Generate(context.Background(), "req", model.NewQuestion("q"), model.RiskScore{Value: 5}, model.ContextPayload{}, trail)
	require.NoError(t, err)
	assert.False(t, gen.Reviewed)
	assert.Equal(t, "SELECT 1 FROM patients WHERE a = 1", gen.Final.FinalSQL)
	assert.Equal(t, model.FallbackReviewFailed, trail.FallbackStage())
	assert.Equal(t, 2, trail.AttemptCount())
	assert.Len(t, trail.FailureReasons(), 1)

	entries := ledger.Entries()
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Succeeded)
	assert.False(t, entries[1].Succeeded)
	assert.Equal(t, "expert", entries[1].Model)
}

func TestSQLGenerator_ClarificationSkipsReview(t *testing.T) {
	llm := newScriptedLLM(llmReply{text: `{"final_sql": "SELECT 1 FROM patients WHERE a = 1", "needs_clarification": true, "clarification_question": "Which year?"}`})
	g := newTestGenerator(llm, nil)

	gen, err := g.Generate(context.Background(), "req", model.NewQuestion("q"), model.RiskScore{Value: 8}, model.ContextPayload{}, model.NewAttemptTrail(nil))
	require.NoError(t, err)
	assert.True(t, gen.Final.NeedsClarification)
	assert.Equal(t, "Which year?", gen.Final.ClarificationQuestion)
	assert.Equal(t, 1, llm.callCount())
}

func TestSQLGenerator_RecordsCost(t *testing.T) {
	llm := newScriptedLLM(draftJSON("SELECT 1 FROM patients WHERE a = 1"))
	ledger := repository.NewMemoryCostLedger()
	g := newTestGenerator(llm, ledger)

	_, err := g.GenerateDraft(context.Background(), "req-7", model.NewQuestion("q"), model.ContextPayload{})
	require.NoError(t, err)

	entries := ledger.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-7", entries[0].RequestID)
	assert.Equal(t, 100, entries[0].PromptTokens)
	assert.InDelta(t, 100.0/1000*0.001+20.0/1000*0.002, entries[0].CostUSD, 1e-12)
}

func TestLLMRepairer_Fix(t *testing.T) {
	ctx := context.Background()

	llm := newScriptedLLM(llmReply{text: `{"final_sql": "SELECT 1 FROM hosp.patients WHERE a = 1"}`})
	ledger := repository.NewMemoryCostLedger()
	r := NewLLMRepairer(llm, ledger, testAIConfig(), zap.NewNop())

	fixed, err := r.Fix(ctx, "req", "SELECT 1 FROM patients WHERE a = 1", missingRelation)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1 FROM hosp.patients WHERE a = 1", fixed)
	assert.Equal(t, "repair", llm.calls[0].Model)
	assert.Equal(t, stageRepair, ledger.Entries()[0].Stage)

	bad := NewLLMRepairer(newScriptedLLM(llmReply{text: `{"sql": "x"}`}), ledger, testAIConfig(), zap.NewNop())
	_, err = bad.Fix(ctx, "req", "SELECT 1", missingRelation)
	assert.Error(t, err)
}
