package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/sso312/QueryLens-sub002/internal/config"
	"github.com/sso312/QueryLens-sub002/internal/repository"
	"github.com/sso312/QueryLens-sub002/internal/sqlexec"
)

const stageRepair = "repair"

// LLMRepairer asks the repair model to fix SQL after a database error. It
// satisfies sqlexec.Fixer.
type LLMRepairer struct {
	llm    LLMClient
	ledger repository.CostLedger
	ai     config.AIConfig
	logger *zap.Logger
}

func NewLLMRepairer(llm LLMClient, ledger repository.CostLedger, ai config.AIConfig, logger *zap.Logger) *LLMRepairer {
	return &LLMRepairer{
		llm:    llm,
		ledger: ledger,
		ai:     ai,
		logger: logger.Named("llm_repair"),
	}
}

func (r *LLMRepairer) Fix(ctx context.Context, requestID, sql string, dbErr *sqlexec.DBError) (string, error) {
	resp, err := r.llm.Complete(ctx, LLMRequest{
		Model:        r.ai.Models.Repair,
		SystemPrompt: repairSystemPrompt,
		UserPayload:  buildRepairPayload(sql, dbErr.Code, dbErr.Message),
	})
	if err != nil {
		recordCost(ctx, r.ledger, r.ai, r.logger, requestID, stageRepair, r.ai.Models.Repair, resp, false)
		return "", err
	}

	fixed, err := decodeRepair(resp.Text)
	recordCost(ctx, r.ledger, r.ai, r.logger, requestID, stageRepair, r.ai.Models.Repair, resp, err == nil)
	return fixed, err
}
