package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sso312/QueryLens-sub002/internal/config"
	qerrors "github.com/sso312/QueryLens-sub002/internal/errors"
	"github.com/sso312/QueryLens-sub002/internal/model"
	"github.com/sso312/QueryLens-sub002/internal/repository"
)

// draftWire is the only JSON shape accepted from the model.
type draftWire struct {
	FinalSQL              *string  `json:"final_sql"`
	Warnings              []string `json:"warnings"`
	NeedsClarification    bool     `json:"needs_clarification"`
	ClarificationQuestion string   `json:"clarification_question"`
}

// decodeDraft parses model output strictly: one object, known fields only,
// non-blank final_sql.
func decodeDraft(text string) (model.SQLDraft, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()

	var wire draftWire
	if err := dec.Decode(&wire); err != nil {
		return model.SQLDraft{}, fmt.Errorf("decode model output: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return model.SQLDraft{}, fmt.Errorf("decode model output: trailing data after object")
	}
	if wire.FinalSQL == nil || strings.TrimSpace(*wire.FinalSQL) == "" {
		return model.SQLDraft{}, fmt.Errorf("model output has no final_sql")
	}

	warnings := wire.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return model.SQLDraft{
		FinalSQL:              strings.TrimSpace(*wire.FinalSQL),
		Warnings:              warnings,
		NeedsClarification:    wire.NeedsClarification,
		ClarificationQuestion: wire.ClarificationQuestion,
	}, nil
}

// Generation is the outcome of the draft/review stage.
type Generation struct {
	Final    model.SQLDraft
	Draft    model.SQLDraft
	Reviewed bool
}

// SQLGenerator drafts SQL with the engineer model and escalates risky
// questions to the expert model for review.
type SQLGenerator struct {
	llm       LLMClient
	ledger    repository.CostLedger
	ai        config.AIConfig
	threshold float64
	logger    *zap.Logger
}

func NewSQLGenerator(llm LLMClient, ledger repository.CostLedger, ai config.AIConfig, threshold float64, logger *zap.Logger) *SQLGenerator {
	return &SQLGenerator{
		llm:       llm,
		ledger:    ledger,
		ai:        ai,
		threshold: threshold,
		logger:    logger.Named("generator"),
	}
}

// ShouldEscalate reports whether risk reaches the review threshold. The
// boundary is inclusive.
func (g *SQLGenerator) ShouldEscalate(risk model.RiskScore) bool {
	return risk.Value >= g.threshold
}

// Generate runs DRAFTING and, when escalated, REVIEWING. A failed draft fails
// the request; a failed review keeps the draft.
func (g *SQLGenerator) Generate(ctx context.Context, requestID string, q model.Question, risk model.RiskScore, payload model.ContextPayload, trail *model.AttemptTrail) (*Generation, error) {
	draft, err := g.GenerateDraft(ctx, requestID, q, payload)
	if err != nil {
		trail.Attempt(model.TrailDraft, model.OutcomeFailed, err.Error())
		return nil, qerrors.Wrap(qerrors.GenerationFailed, "draft generation failed", err)
	}
	trail.Attempt(model.TrailDraft, model.OutcomeOK, draft.Model)

	gen := &Generation{Final: draft, Draft: draft}
	if draft.NeedsClarification || !g.ShouldEscalate(risk) {
		return gen, nil
	}

	reviewed, err := g.ReviewDraft(ctx, requestID, q, payload, draft)
	if err != nil {
		trail.Attempt(model.TrailReview, model.OutcomeFailed, err.Error())
		trail.Fallback(model.TrailReview, model.FallbackReviewFailed, "kept draft")
		g.logger.Warn("Review failed, keeping draft",
			zap.String("request_id", requestID),
			zap.Error(err))
		return gen, nil
	}
	trail.Attempt(model.TrailReview, model.OutcomeOK, reviewed.Model)

	gen.Final = reviewed
	gen.Reviewed = true
	return gen, nil
}

// GenerateDraft makes the single draft call.
func (g *SQLGenerator) GenerateDraft(ctx context.Context, requestID string, q model.Question, payload model.ContextPayload) (model.SQLDraft, error) {
	draft, err := g.call(ctx, requestID, model.StageDraft, g.ai.Models.Engineer, draftSystemPrompt, buildDraftPayload(q, payload))
	if err != nil {
		return model.SQLDraft{}, err
	}
	return draft, nil
}

// ReviewDraft makes the single review call. Its output replaces the draft.
func (g *SQLGenerator) ReviewDraft(ctx context.Context, requestID string, q model.Question, payload model.ContextPayload, draft model.SQLDraft) (model.SQLDraft, error) {
	return g.call(ctx, requestID, model.StageReview, g.ai.Models.Expert, reviewSystemPrompt, buildReviewPayload(q, payload, draft))
}

func (g *SQLGenerator) call(ctx context.Context, requestID, stage, modelName, system, user string) (model.SQLDraft, error) {
	resp, err := g.llm.Complete(ctx, LLMRequest{Model: modelName, SystemPrompt: system, UserPayload: user})
	if err != nil {
		recordCost(ctx, g.ledger, g.ai, g.logger, requestID, stage, modelName, resp, false)
		return model.SQLDraft{}, err
	}

	draft, err := decodeDraft(resp.Text)
	recordCost(ctx, g.ledger, g.ai, g.logger, requestID, stage, modelName, resp, err == nil)
	if err != nil {
		g.logger.Warn("Rejected model output",
			zap.String("request_id", requestID),
			zap.String("stage", stage),
			zap.Error(err))
		return model.SQLDraft{}, err
	}

	draft.Stage = stage
	draft.Model = modelName
	return draft, nil
}

// recordCost appends one ledger entry. Ledger failures are logged only.
func recordCost(ctx context.Context, ledger repository.CostLedger, ai config.AIConfig, logger *zap.Logger, requestID, stage, modelName string, resp LLMResponse, ok bool) {
	if ledger == nil {
		return
	}
	entry := model.CostEntry{
		ID:               uuid.NewString(),
		RequestID:        requestID,
		Stage:            stage,
		Model:            modelName,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		CostUSD:          ai.Cost(resp.PromptTokens, resp.CompletionTokens),
		Succeeded:        ok,
		CreatedAt:        time.Now().UTC(),
	}
	ledgerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := ledger.Record(ledgerCtx, entry); err != nil {
		logger.Error("Failed to record LLM cost",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// repairWire is the JSON shape accepted from the repair model.
type repairWire struct {
	FinalSQL string `json:"final_sql"`
}

func decodeRepair(text string) (string, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()
	var wire repairWire
	if err := dec.Decode(&wire); err != nil {
		return "", fmt.Errorf("decode repair output: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("decode repair output: trailing data after object")
	}
	if strings.TrimSpace(wire.FinalSQL) == "" {
		return "", fmt.Errorf("repair output has no final_sql")
	}
	return wire.FinalSQL, nil
}
