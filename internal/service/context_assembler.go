package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sso312/QueryLens-sub002/internal/config"
	"github.com/sso312/QueryLens-sub002/internal/model"
	"github.com/sso312/QueryLens-sub002/internal/repository"
)

// ContextAssembler gathers per-kind snippets and trims them to a token budget.
// Retrieval problems never fail the request; the kind is reported missing.
type ContextAssembler struct {
	store   repository.RetrievalStore
	topK    map[model.SnippetKind]int
	budget  int
	timeout time.Duration
	logger  *zap.Logger
}

func NewContextAssembler(store repository.RetrievalStore, cfg config.PipelineConfig, logger *zap.Logger) *ContextAssembler {
	return &ContextAssembler{
		store: store,
		topK: map[model.SnippetKind]int{
			model.KindSchema:   cfg.TopK.Schema,
			model.KindExample:  cfg.TopK.Example,
			model.KindTemplate: cfg.TopK.Template,
			model.KindGlossary: cfg.TopK.Glossary,
		},
		budget:  cfg.TokenBudget,
		timeout: cfg.RetrievalTimeout,
		logger:  logger.Named("context"),
	}
}

// Build retrieves context for q and trims it to the budget.
func (a *ContextAssembler) Build(ctx context.Context, q model.Question) model.ContextPayload {
	payload := model.ContextPayload{
		Snippets:    []model.Snippet{},
		TokenBudget: a.budget,
	}

	for _, kind := range model.SnippetKinds {
		snippets := a.search(ctx, kind, q.Raw)
		if len(snippets) == 0 {
			payload.Missing = append(payload.Missing, kind)
			continue
		}
		payload.Snippets = append(payload.Snippets, snippets...)
	}

	payload.Snippets, payload.Dropped = TrimToBudget(payload.Snippets, a.budget)
	payload.TokensUsed = countTokens(payload.Snippets)
	return payload
}

func (a *ContextAssembler) search(ctx context.Context, kind model.SnippetKind, query string) []model.Snippet {
	k := a.topK[kind]
	if k <= 0 || a.store == nil {
		return nil
	}

	searchCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	snippets, err := a.store.Search(searchCtx, kind, query, k)
	if err != nil {
		a.logger.Warn("Retrieval failed",
			zap.String("kind", string(kind)),
			zap.Duration("timeout", a.timeout),
			zap.Error(err))
		return nil
	}
	if len(snippets) > k {
		snippets = snippets[:k]
	}

	out := make([]model.Snippet, 0, len(snippets))
	for _, s := range snippets {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		s.Kind = kind
		out = append(out, s)
	}
	return out
}

// TrimToBudget drops snippets until the estimated total fits budget. Kinds
// go in model.TrimOrder; within a kind the last-ranked snippet goes first.
func TrimToBudget(snippets []model.Snippet, budget int) ([]model.Snippet, map[model.SnippetKind]int) {
	kept := append([]model.Snippet(nil), snippets...)
	var dropped map[model.SnippetKind]int

	total := countTokens(kept)
	for _, kind := range model.TrimOrder {
		for total > budget {
			idx := lastOfKind(kept, kind)
			if idx < 0 {
				break
			}
			total -= model.EstimateTokens(kept[idx].Text)
			kept = append(kept[:idx], kept[idx+1:]...)
			if dropped == nil {
				dropped = make(map[model.SnippetKind]int)
			}
			dropped[kind]++
		}
	}
	if kept == nil {
		kept = []model.Snippet{}
	}
	return kept, dropped
}

func lastOfKind(snippets []model.Snippet, kind model.SnippetKind) int {
	for i := len(snippets) - 1; i >= 0; i-- {
		if snippets[i].Kind == kind {
			return i
		}
	}
	return -1
}

func countTokens(snippets []model.Snippet) int {
	n := 0
	for _, s := range snippets {
		n += model.EstimateTokens(s.Text)
	}
	return n
}
