package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sso312/QueryLens-sub002/internal/model"
)

func TestMemorySnippetStore_Search(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySnippetStore([]model.Snippet{
		{ID: "s1", Kind: model.KindSchema, Text: "patients(subject_id, gender, anchor_age, dod)", Priority: 1},
		{ID: "s2", Kind: model.KindSchema, Text: "admissions(hadm_id, subject_id, admittime, dischtime)", Priority: 5},
		{ID: "s3", Kind: model.KindSchema, Text: "icustays(stay_id, subject_id, los)", Priority: 0},
		{ID: "e1", Kind: model.KindExample, Text: "count patients by gender", Priority: 0},
	})

	t.Run("ranks by matched terms", func(t *testing.T) {
		got, err := store.Search(ctx, model.KindSchema, "admissions of patients by gender", 5)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "s1", got[0].ID)
		assert.Equal(t, "s2", got[1].ID)
	})

	t.Run("filters by kind", func(t *testing.T) {
		got, err := store.Search(ctx, model.KindExample, "patients", 5)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "e1", got[0].ID)
	})

	t.Run("respects k", func(t *testing.T) {
		got, err := store.Search(ctx, model.KindSchema, "subject_id", 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "s2", got[0].ID, "equal scores fall back to priority")
	})

	t.Run("empty query returns by priority", func(t *testing.T) {
		got, err := store.Search(ctx, model.KindSchema, "", 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "s2", got[0].ID)
		assert.Equal(t, "s1", got[1].ID)
	})

	t.Run("no match", func(t *testing.T) {
		got, err := store.Search(ctx, model.KindGlossary, "patients", 3)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := store.Search(cctx, model.KindSchema, "patients", 3)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestMemorySnippetStore_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySnippetStore([]model.Snippet{{ID: "g1", Kind: model.KindGlossary, Text: "los means length of stay"}})
	require.NoError(t, store.Upsert(ctx, []model.Snippet{{ID: "g1", Kind: model.KindGlossary, Text: "dod means date of death"}}))

	got, err := store.Search(ctx, model.KindGlossary, "date of death", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "dod means date of death", got[0].Text)

	got, err = store.Search(ctx, model.KindGlossary, "length of stay", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryAuditLog_Recent(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryAuditLog(3)

	events, err := log.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)

	for i := 1; i <= 5; i++ {
		require.NoError(t, log.Append(ctx, model.AuditEvent{ID: fmt.Sprint(i)}))
	}

	events, err = log.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "5", events[0].ID)
	assert.Equal(t, "3", events[2].ID)

	events, err = log.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "4", events[1].ID)
}

func TestMemoryCostLedger_Summary(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryCostLedger()
	require.NoError(t, ledger.Record(ctx, model.CostEntry{Model: "pro", PromptTokens: 100, CompletionTokens: 10, CostUSD: 0.5}))
	require.NoError(t, ledger.Record(ctx, model.CostEntry{Model: "flash", PromptTokens: 50, CompletionTokens: 5, CostUSD: 0.1}))
	require.NoError(t, ledger.Record(ctx, model.CostEntry{Model: "flash", PromptTokens: 20, Succeeded: false}))

	summary, err := ledger.Summary(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, model.CostSummary{Model: "flash", Calls: 2, PromptTokens: 70, CompletionTokens: 5, CostUSD: 0.1}, summary[0])
	assert.Equal(t, "pro", summary[1].Model)
	assert.Len(t, ledger.Entries(), 3)
}
