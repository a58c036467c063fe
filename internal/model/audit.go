package model

import "time"

// AuditEvent is one database execution as written to the audit log.
type AuditEvent struct {
	ID         string    `json:"id" bson:"_id"`
	RequestID  string    `json:"requestId" bson:"requestId"`
	SQL        string    `json:"sql" bson:"sql"`
	Attempt    int       `json:"attempt" bson:"attempt"`
	Outcome    string    `json:"outcome" bson:"outcome"`
	ErrorCode  string    `json:"errorCode,omitempty" bson:"errorCode,omitempty"`
	Error      string    `json:"error,omitempty" bson:"error,omitempty"`
	RowCount   int       `json:"rowCount" bson:"rowCount"`
	Truncated  bool      `json:"truncated" bson:"truncated"`
	ElapsedMS  int64     `json:"elapsedMs" bson:"elapsedMs"`
	ExecutedAt time.Time `json:"executedAt" bson:"executedAt"`
}

// Audit outcomes.
const (
	AuditSuccess = "success"
	AuditError   = "error"
	AuditTimeout = "timeout"
)

// CostEntry is one billed LLM call.
type CostEntry struct {
	ID               string    `json:"id" bson:"_id"`
	RequestID        string    `json:"requestId" bson:"requestId"`
	Stage            string    `json:"stage" bson:"stage"`
	Model            string    `json:"model" bson:"model"`
	PromptTokens     int       `json:"promptTokens" bson:"promptTokens"`
	CompletionTokens int       `json:"completionTokens" bson:"completionTokens"`
	CostUSD          float64   `json:"costUsd" bson:"costUsd"`
	Succeeded        bool      `json:"succeeded" bson:"succeeded"`
	CreatedAt        time.Time `json:"createdAt" bson:"createdAt"`
}

// CostSummary aggregates ledger entries per model.
type CostSummary struct {
	Model            string  `json:"model" bson:"_id"`
	Calls            int     `json:"calls" bson:"calls"`
	PromptTokens     int     `json:"promptTokens" bson:"promptTokens"`
	CompletionTokens int     `json:"completionTokens" bson:"completionTokens"`
	CostUSD          float64 `json:"costUsd" bson:"costUsd"`
}
