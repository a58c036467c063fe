package model

// Generation stages recorded on a draft.
const (
	StageDraft  = "draft"
	StageReview = "review"
)

// SQLDraft is the structured output of one generation call. A review result
// replaces the draft as a whole.
type SQLDraft struct {
	FinalSQL              string   `json:"final_sql"`
	Warnings              []string `json:"warnings"`
	NeedsClarification    bool     `json:"needs_clarification"`
	ClarificationQuestion string   `json:"clarification_question,omitempty"`
	Stage                 string   `json:"stage"`
	Model                 string   `json:"model"`
}

// CompiledSQL is dialect-ready SQL with the text it was derived from.
type CompiledSQL struct {
	SQL      string   `json:"sql"`
	Source   string   `json:"source"`
	Rewrites []string `json:"rewrites,omitempty"`
	// Body is the statement before row-limit rewriting. Empty when no
	// row-limit rewrite was applied.
	Body string `json:"body,omitempty"`
}

// PolicyText is the text the policy gate judges: the statement as written,
// without the row-limit wrapper the postprocessor may have added.
func (c CompiledSQL) PolicyText() string {
	if c.Body != "" {
		return c.Body
	}
	return c.SQL
}

// PolicyReason is the machine-readable cause of a policy rejection.
type PolicyReason string

const (
	ReasonNotSelect    PolicyReason = "NOT_SELECT"
	ReasonMissingWhere PolicyReason = "MISSING_WHERE"
	ReasonTooManyJoins PolicyReason = "TOO_MANY_JOINS"
	ReasonWriteBlocked PolicyReason = "WRITE_BLOCKED"
)

// PolicyVerdict is the outcome of the static policy check.
type PolicyVerdict struct {
	Passed  bool         `json:"passed"`
	Reason  PolicyReason `json:"reason,omitempty"`
	Clause  string       `json:"clause,omitempty"`
	Message string       `json:"message,omitempty"`
}

// Pass is the verdict for SQL that cleared every check.
func Pass() PolicyVerdict {
	return PolicyVerdict{Passed: true}
}
