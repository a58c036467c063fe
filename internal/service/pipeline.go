package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sso312/QueryLens-sub002/internal/cache"
	"github.com/sso312/QueryLens-sub002/internal/config"
	qerrors "github.com/sso312/QueryLens-sub002/internal/errors"
	"github.com/sso312/QueryLens-sub002/internal/model"
	"github.com/sso312/QueryLens-sub002/internal/sqlexec"
)

// QueryService runs the safety pipeline for one question at a time. It holds
// no per-request state; every call owns its own trail.
type QueryService struct {
	answers    cache.AnswerCache
	classifier *RiskClassifier
	assembler  *ContextAssembler
	generator  *SQLGenerator
	post       *sqlexec.Postprocessor
	gate       *sqlexec.PolicyGate
	repair     *sqlexec.RepairLoop
	publisher  TrailPublisher
	cfg        config.PipelineConfig
	logger     *zap.Logger
}

// QueryDeps bundles the pipeline collaborators. Answers and Publisher may be nil.
type QueryDeps struct {
	Answers    cache.AnswerCache
	Classifier *RiskClassifier
	Assembler  *ContextAssembler
	Generator  *SQLGenerator
	Post       *sqlexec.Postprocessor
	Gate       *sqlexec.PolicyGate
	Repair     *sqlexec.RepairLoop
	Publisher  TrailPublisher
}

func NewQueryService(deps QueryDeps, cfg config.PipelineConfig, logger *zap.Logger) *QueryService {
	return &QueryService{
		answers:    deps.Answers,
		classifier: deps.Classifier,
		assembler:  deps.Assembler,
		generator:  deps.Generator,
		post:       deps.Post,
		gate:       deps.Gate,
		repair:     deps.Repair,
		publisher:  deps.Publisher,
		cfg:        cfg,
		logger:     logger.Named("pipeline"),
	}
}

// GenerateAndExecute answers req. The response is always non-nil and carries
// the trail, also when an error is returned.
func (s *QueryService) GenerateAndExecute(ctx context.Context, req model.QueryRequest) (*model.QueryResponse, error) {
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	var observer func(model.AttemptEntry)
	if s.publisher != nil {
		observer = func(e model.AttemptEntry) { s.publisher.PublishTrail(requestID, e) }
		defer s.publisher.CloseRequest(requestID)
	}
	trail := model.NewAttemptTrail(observer)

	resp := &model.QueryResponse{
		RequestID: requestID,
		Status:    model.StatusFailed,
		Warnings:  []string{},
	}
	err := s.run(ctx, req, requestID, trail, resp)
	resp.ApplyTrail(trail)

	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("status", resp.Status),
		zap.Int("attempt_count", resp.AttemptCount),
		zap.Bool("fallback_used", resp.FallbackUsed),
	}
	if err != nil {
		s.logger.Warn("Request failed", append(fields, zap.Error(err))...)
	} else {
		s.logger.Info("Request finished", fields...)
	}
	return resp, err
}

func (s *QueryService) run(ctx context.Context, req model.QueryRequest, requestID string, trail *model.AttemptTrail, resp *model.QueryResponse) error {
	q := model.NewQuestion(req.Question)
	if q.IsEmpty() {
		return qerrors.New(qerrors.InvalidInput, "question is empty")
	}

	if s.answers != nil {
		answer, err := s.answers.Get(ctx, q)
		switch {
		case err != nil:
			trail.Record(model.TrailCache, model.OutcomeFailed, err.Error())
		case answer != nil:
			trail.Record(model.TrailCache, model.OutcomeOK, "hit")
			resp.Status = model.StatusCached
			resp.Cached = true
			resp.SQL = answer.SQL
			if answer.Warnings != nil {
				resp.Warnings = answer.Warnings
			}
			resp.Result = model.NewResultView(&model.ExecutionResult{
				Columns:   answer.Columns,
				Rows:      answer.Rows,
				RowCap:    answer.RowCap,
				Truncated: answer.Truncated,
			})
			return nil
		default:
			trail.Record(model.TrailCache, model.OutcomeSkipped, "miss")
		}
	}

	risk := s.classifier.Classify(q)
	resp.Risk = risk
	trail.Record(model.TrailClassify, model.OutcomeOK, fmt.Sprintf("risk %.1f", risk.Value))

	payload := s.assembler.Build(ctx, q)
	ctxOutcome := model.OutcomeOK
	if len(payload.Missing) > 0 {
		ctxOutcome = model.OutcomeFallback
	}
	trail.Record(model.TrailContext, ctxOutcome,
		fmt.Sprintf("%d snippets, %d/%d tokens", len(payload.Snippets), payload.TokensUsed, payload.TokenBudget))

	gen, err := s.generator.Generate(ctx, requestID, q, risk, payload, trail)
	if err != nil {
		return err
	}
	resp.DraftSQL = gen.Draft.FinalSQL
	resp.Warnings = gen.Final.Warnings

	compiled := s.post.Postprocess(gen.Final.FinalSQL)
	resp.SQL = compiled.SQL
	trail.Record(model.TrailPostprocess, model.OutcomeOK, strings.Join(compiled.Rewrites, ","))

	if gen.Final.NeedsClarification {
		resp.Status = model.StatusNeedsClarification
		resp.ClarificationQuestion = gen.Final.ClarificationQuestion
		return nil
	}

	verdict := s.gate.CheckCompiled(compiled)
	resp.Policy = &verdict
	if !verdict.Passed {
		trail.Record(model.TrailPolicy, model.OutcomeFailed, string(verdict.Reason))
		return s.gate.Err(verdict)
	}
	trail.Record(model.TrailPolicy, model.OutcomeOK, "")

	if !req.UserAck {
		trail.Record(model.TrailAck, model.OutcomeSkipped, "awaiting user acknowledgement")
		resp.Status = model.StatusAwaitingAck
		return nil
	}

	out, err := s.repair.Run(ctx, sqlexec.RunInput{
		RequestID: requestID,
		SQL:       compiled,
		RowCap:    s.cfg.RowCap,
		Timeout:   s.cfg.DBTimeout,
		Trail:     trail,
	})
	if out != nil {
		resp.SQL = out.SQL.SQL
	}
	if err != nil {
		if qerrors.Is(err, qerrors.PolicyViolation) && out != nil {
			v := s.gate.CheckCompiled(out.SQL)
			resp.Policy = &v
		}
		return err
	}

	resp.Result = model.NewResultView(out.Result)
	resp.Status = model.StatusExecuted
	return nil
}

// CheckSQL postprocesses sql and runs the policy gate without executing.
func (s *QueryService) CheckSQL(sql string) (model.CompiledSQL, model.PolicyVerdict) {
	compiled := s.post.Postprocess(sql)
	return compiled, s.gate.CheckCompiled(compiled)
}

// Classify exposes the risk classifier.
func (s *QueryService) Classify(question string) model.RiskScore {
	return s.classifier.Classify(model.NewQuestion(question))
}
