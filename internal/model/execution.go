package model

// ExecutionResult is a bounded result set. Rows never exceed RowCap.
type ExecutionResult struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	RowCap    int      `json:"row_cap"`
	Truncated bool     `json:"truncated"`
	ElapsedMS int64    `json:"elapsed_ms"`
}

// RowCount returns the number of rows returned to the caller.
func (r *ExecutionResult) RowCount() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}
