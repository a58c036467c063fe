// Package errors defines the typed failures of the query pipeline.
// Each failure carries a machine-readable Kind so the transport layer can map
// it to a status without parsing messages.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// GenerationFailed indicates the LLM call failed or returned an unusable shape.
	GenerationFailed Kind = "generation_failed"
	// PolicyViolation indicates the SQL failed a static safety check.
	PolicyViolation Kind = "policy_violation"
	// DBExecution indicates the driver rejected or failed the statement.
	DBExecution Kind = "db_execution_failed"
	// RepairExhausted indicates the repair loop ran out of attempts.
	RepairExhausted Kind = "repair_exhausted"
	// Timeout indicates a stage exceeded its deadline.
	Timeout Kind = "timeout"
	// Cancelled indicates the caller went away.
	Cancelled Kind = "cancelled"
	// InvalidInput indicates a malformed request.
	InvalidInput Kind = "invalid_input"
)

// E wraps an error with kind and human-friendly message.
// Code and Clause are set for policy violations and database errors.
type E struct {
	Kind    Kind
	Code    string
	Clause  string
	Message string
	Err     error
}

func (e *E) Error() string {
	prefix := string(e.Kind)
	if e.Code != "" {
		prefix += "[" + e.Code + "]"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// Policy builds a policy violation carrying its reason code and offending clause.
func Policy(code, clause, msg string) *E {
	return &E{Kind: PolicyViolation, Code: code, Clause: clause, Message: msg}
}

// As returns the first *E in err's chain.
func As(err error) (*E, bool) {
	var e *E
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of the first *E in err's chain, or "".
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
