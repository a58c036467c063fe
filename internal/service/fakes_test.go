package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sso312/QueryLens-sub002/internal/cache"
	"github.com/sso312/QueryLens-sub002/internal/config"
	"github.com/sso312/QueryLens-sub002/internal/model"
	"github.com/sso312/QueryLens-sub002/internal/repository"
	"github.com/sso312/QueryLens-sub002/internal/sqlexec"
)

// scriptedLLM answers calls in order; the last reply repeats.
type scriptedLLM struct {
	mu      sync.Mutex
	replies []llmReply
	calls   []LLMRequest
}

type llmReply struct {
	text string
	err  error
}

func newScriptedLLM(replies ...llmReply) *scriptedLLM {
	return &scriptedLLM{replies: replies}
}

func (s *scriptedLLM) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if len(s.replies) == 0 {
		return LLMResponse{}, errors.New("no scripted reply")
	}
	r := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	if r.err != nil {
		return LLMResponse{PromptTokens: 10}, r.err
	}
	return LLMResponse{Text: r.text, PromptTokens: 100, CompletionTokens: 20}, nil
}

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func draftJSON(sql string) llmReply {
	return llmReply{text: `{"final_sql": ` + quote(sql) + `, "warnings": []}`}
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// stubDriver returns rows for every call after the scripted failures.
type stubDriver struct {
	mu       sync.Mutex
	rows     *sqlexec.Rows
	failures []error
	calls    []string
}

func (d *stubDriver) Fetch(_ context.Context, sql string, maxRows int, _ time.Duration) (*sqlexec.Rows, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, sql)
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		if err != nil {
			return nil, err
		}
	}
	if d.rows == nil {
		return &sqlexec.Rows{}, nil
	}
	values := d.rows.Values
	if len(values) > maxRows {
		values = values[:maxRows]
	}
	return &sqlexec.Rows{Columns: d.rows.Columns, Values: values}, nil
}

func (d *stubDriver) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

// failingStore fails every search.
type failingStore struct{}

func (failingStore) Search(context.Context, model.SnippetKind, string, int) ([]model.Snippet, error) {
	return nil, errors.New("store down")
}

// slowStore blocks until the context ends.
type slowStore struct{}

func (slowStore) Search(ctx context.Context, _ model.SnippetKind, _ string, _ int) ([]model.Snippet, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		ExpertThreshold:  4.0,
		TokenBudget:      3000,
		TopK:             config.TopKConfig{Schema: 6, Example: 4, Template: 3, Glossary: 5},
		RetrievalTimeout: time.Second,
		RowCap:           5000,
		DBTimeout:        5 * time.Second,
		MaxJoins:         6,
		MaxAttempts:      2,
		RuleRepair:       true,
		LLMRepair:        true,
		Dialect:          "postgres",
	}
}

func testAIConfig() config.AIConfig {
	return config.AIConfig{
		Models:          config.LLMModels{Engineer: "engineer", Expert: "expert", Repair: "repair"},
		InputCostPer1K:  0.001,
		OutputCostPer1K: 0.002,
	}
}

func testSnippets() []model.Snippet {
	return []model.Snippet{
		{ID: "s1", Kind: model.KindSchema, Text: "patients(subject_id, gender, anchor_age, dod)"},
		{ID: "s2", Kind: model.KindSchema, Text: "admissions(hadm_id, subject_id, admittime)"},
		{ID: "e1", Kind: model.KindExample, Text: "-- female patients\nSELECT COUNT(*) FROM patients WHERE gender = 'F'"},
		{ID: "g1", Kind: model.KindGlossary, Text: "dod: date of death of the patient"},
	}
}

type testPipeline struct {
	svc    *QueryService
	llm    *scriptedLLM
	driver *stubDriver
	ledger *repository.MemoryCostLedger
	audit  *repository.MemoryAuditLog
}

func newTestPipeline(llm *scriptedLLM, driver *stubDriver, answers []model.DemoAnswer) *testPipeline {
	return newDialectPipeline(sqlexec.DialectPostgres, llm, driver, answers)
}

func newDialectPipeline(dialect sqlexec.Dialect, llm *scriptedLLM, driver *stubDriver, answers []model.DemoAnswer) *testPipeline {
	cfg := testPipelineConfig()
	ai := testAIConfig()
	logger := zap.NewNop()
	ledger := repository.NewMemoryCostLedger()
	audit := repository.NewMemoryAuditLog(100)

	post := sqlexec.NewPostprocessor(dialect, sqlexec.NewCatalog("public", nil))
	gate := sqlexec.NewPolicyGate(cfg.MaxJoins)
	executor := sqlexec.NewBoundedExecutor(driver, audit, logger)
	repair := sqlexec.NewRepairLoop(executor, gate, post, sqlexec.RepairOptions{
		MaxAttempts: cfg.MaxAttempts,
		Rules:       sqlexec.DefaultRepairRules(),
		Fixer:       NewLLMRepairer(llm, ledger, ai, logger),
	}, logger)

	deps := QueryDeps{
		Classifier: NewRiskClassifier(),
		Assembler:  NewContextAssembler(repository.NewMemorySnippetStore(testSnippets()), cfg, logger),
		Generator:  NewSQLGenerator(llm, ledger, ai, cfg.ExpertThreshold, logger),
		Post:       post,
		Gate:       gate,
		Repair:     repair,
	}
	if answers != nil {
		deps.Answers = cacheFor(answers)
	}

	return &testPipeline{
		svc:    NewQueryService(deps, cfg, logger),
		llm:    llm,
		driver: driver,
		ledger: ledger,
		audit:  audit,
	}
}

func cacheFor(answers []model.DemoAnswer) *cache.MemoryAnswerCache {
	return cache.NewMemoryAnswerCache(answers)
}
