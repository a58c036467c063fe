package sqlexec

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	qerrors "github.com/sso312/QueryLens-sub002/internal/errors"
	"github.com/sso312/QueryLens-sub002/internal/model"
)

// SQLSTATE and Oracle codes for a statement cancelled by its timeout.
const (
	codeQueryCanceled = "57014"
	codeOracleCancel  = "ORA-01013"
)

const auditWriteTimeout = 5 * time.Second

// DBError is a failure reported by the database. Code is a SQLSTATE or an
// ORA-nnnnn code when the driver provides one.
type DBError struct {
	Code    string
	Message string
	Err     error
}

func (e *DBError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

func (e *DBError) Unwrap() error { return e.Err }

// IsTimeout reports whether the database cancelled the statement on timeout.
func (e *DBError) IsTimeout() bool {
	return e.Code == codeQueryCanceled || e.Code == codeOracleCancel ||
		strings.Contains(strings.ToLower(e.Message), "statement timeout")
}

// AsDBError returns the first *DBError in err's chain.
func AsDBError(err error) (*DBError, bool) {
	var dbErr *DBError
	if errors.As(err, &dbErr) {
		return dbErr, true
	}
	return nil, false
}

// Rows is what a driver hands back for one statement.
type Rows struct {
	Columns []string
	Values  [][]any
}

// Driver runs one read-only statement. It must return at most maxRows rows,
// apply timeout as a session-level statement limit, and report database
// failures as *DBError.
type Driver interface {
	Fetch(ctx context.Context, sql string, maxRows int, timeout time.Duration) (*Rows, error)
}

// AuditSink receives one event per execution.
type AuditSink interface {
	Append(ctx context.Context, event model.AuditEvent) error
}

// ExecRequest describes one execution.
type ExecRequest struct {
	RequestID string
	Attempt   int
	SQL       string
	RowCap    int
	Timeout   time.Duration
}

// BoundedExecutor enforces the row cap and timeout around a Driver and
// audits every call.
type BoundedExecutor struct {
	driver Driver
	audit  AuditSink
	logger *zap.Logger
}

// NewBoundedExecutor creates an executor.
func NewBoundedExecutor(driver Driver, audit AuditSink, logger *zap.Logger) *BoundedExecutor {
	return &BoundedExecutor{
		driver: driver,
		audit:  audit,
		logger: logger.Named("executor"),
	}
}

// Execute runs req.SQL. It asks the driver for RowCap+1 rows; when the extra
// row arrives the result is cut to RowCap and marked truncated. Timeouts come
// back as a Timeout error and are never retried here.
func (e *BoundedExecutor) Execute(ctx context.Context, req ExecRequest) (*model.ExecutionResult, error) {
	if req.RowCap <= 0 {
		return nil, qerrors.New(qerrors.InvalidInput, "row cap must be positive")
	}

	execCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	start := time.Now()
	rows, err := e.driver.Fetch(execCtx, req.SQL, req.RowCap+1, req.Timeout)
	elapsed := time.Since(start)

	event := model.AuditEvent{
		ID:         uuid.NewString(),
		RequestID:  req.RequestID,
		SQL:        req.SQL,
		Attempt:    req.Attempt,
		ElapsedMS:  elapsed.Milliseconds(),
		ExecutedAt: start.UTC(),
	}

	if err != nil {
		err = e.classify(ctx, execCtx, err, req.Timeout)
		event.Outcome = model.AuditError
		if qerrors.Is(err, qerrors.Timeout) {
			event.Outcome = model.AuditTimeout
		}
		if dbErr, ok := AsDBError(err); ok {
			event.ErrorCode = dbErr.Code
		}
		event.Error = err.Error()
		e.record(ctx, event)

		e.logger.Warn("Execution failed",
			zap.String("request_id", req.RequestID),
			zap.Int("attempt", req.Attempt),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, err
	}

	result := &model.ExecutionResult{
		Columns:   rows.Columns,
		Rows:      rows.Values,
		RowCap:    req.RowCap,
		ElapsedMS: elapsed.Milliseconds(),
	}
	if result.Rows == nil {
		result.Rows = [][]any{}
	}
	if len(result.Rows) > req.RowCap {
		result.Rows = result.Rows[:req.RowCap]
		result.Truncated = true
	}

	event.Outcome = model.AuditSuccess
	event.RowCount = len(result.Rows)
	event.Truncated = result.Truncated
	e.record(ctx, event)

	e.logger.Info("Execution finished",
		zap.String("request_id", req.RequestID),
		zap.Int("attempt", req.Attempt),
		zap.Int("rows", len(result.Rows)),
		zap.Bool("truncated", result.Truncated),
		zap.Duration("elapsed", elapsed))
	return result, nil
}

// classify maps a driver failure onto the error taxonomy.
func (e *BoundedExecutor) classify(parent, execCtx context.Context, err error, timeout time.Duration) error {
	if parent.Err() != nil {
		return qerrors.Wrap(qerrors.Cancelled, "request cancelled during execution", err)
	}
	dbErr, isDB := AsDBError(err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(execCtx.Err(), context.DeadlineExceeded) || (isDB && dbErr.IsTimeout()) {
		return &qerrors.E{
			Kind:    qerrors.Timeout,
			Message: fmt.Sprintf("query exceeded %s", timeout),
			Err:     err,
		}
	}
	if isDB {
		return &qerrors.E{Kind: qerrors.DBExecution, Code: dbErr.Code, Message: "execution failed", Err: dbErr}
	}
	return qerrors.Wrap(qerrors.DBExecution, "execution failed", err)
}

func (e *BoundedExecutor) record(ctx context.Context, event model.AuditEvent) {
	if e.audit == nil {
		return
	}
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()
	if err := e.audit.Append(auditCtx, event); err != nil {
		e.logger.Error("Failed to append audit event",
			zap.String("request_id", event.RequestID),
			zap.Error(err))
	}
}
