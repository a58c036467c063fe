package model

// Response statuses.
const (
	StatusExecuted           = "executed"
	StatusAwaitingAck        = "awaiting_ack"
	StatusNeedsClarification = "needs_clarification"
	StatusCached             = "cached"
	StatusFailed             = "failed"
)

// QueryRequest is the inbound generate-and-execute call.
type QueryRequest struct {
	Question  string `json:"question"`
	UserAck   bool   `json:"user_ack"`
	RequestID string `json:"request_id,omitempty"`
}

// ResultView is the result block of a response.
type ResultView struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	RowCap    int      `json:"row_cap"`
	Truncated bool     `json:"truncated"`
	ElapsedMS int64    `json:"elapsed_ms"`
}

// QueryResponse is what the pipeline returns to the API layer.
type QueryResponse struct {
	RequestID             string         `json:"request_id"`
	Status                string         `json:"status"`
	SQL                   string         `json:"sql"`
	DraftSQL              string         `json:"draft_sql,omitempty"`
	Warnings              []string       `json:"warnings"`
	ClarificationQuestion string         `json:"clarification_question,omitempty"`
	Risk                  RiskScore      `json:"risk"`
	Result                *ResultView    `json:"result,omitempty"`
	Policy                *PolicyVerdict `json:"policy,omitempty"`
	FallbackUsed          bool           `json:"fallback_used"`
	FallbackStage         *string        `json:"fallback_stage"`
	FailureReasons        []string       `json:"failure_reasons"`
	AttemptCount          int            `json:"attempt_count"`
	Cached                bool           `json:"cached"`
	Trail                 []AttemptEntry `json:"trail"`
}

// ApplyTrail fills the trail-derived fields.
func (r *QueryResponse) ApplyTrail(t *AttemptTrail) {
	r.FallbackUsed = t.FallbackUsed()
	if stage := t.FallbackStage(); stage != "" {
		r.FallbackStage = &stage
	} else {
		r.FallbackStage = nil
	}
	r.FailureReasons = t.FailureReasons()
	r.AttemptCount = t.AttemptCount()
	r.Trail = t.Entries()
}

// NewResultView copies an execution result into its response form.
func NewResultView(res *ExecutionResult) *ResultView {
	if res == nil {
		return nil
	}
	rows := res.Rows
	if rows == nil {
		rows = [][]any{}
	}
	return &ResultView{
		Columns:   res.Columns,
		Rows:      rows,
		RowCap:    res.RowCap,
		Truncated: res.Truncated,
		ElapsedMS: res.ElapsedMS,
	}
}
