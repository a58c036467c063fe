package sqlexec

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sso312/QueryLens-sub002/internal/model"
)

// fakeDriver serves generated rows or scripted failures.
type fakeDriver struct {
	mu       sync.Mutex
	rows     int
	failures []error // consumed one per call; nil entries succeed
	block    bool    // wait for ctx to end
	calls    []string
	maxRows  []int
}

func (d *fakeDriver) Fetch(ctx context.Context, sql string, maxRows int, timeout time.Duration) (*Rows, error) {
	d.mu.Lock()
	d.calls = append(d.calls, sql)
	d.maxRows = append(d.maxRows, maxRows)
	var err error
	if len(d.failures) > 0 {
		err = d.failures[0]
		if len(d.failures) > 1 {
			d.failures = d.failures[1:]
		}
	}
	d.mu.Unlock()

	if d.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	n := d.rows
	if n > maxRows {
		n = maxRows
	}
	out := &Rows{Columns: []string{"subject_id", "gender"}}
	for i := 0; i < n; i++ {
		out.Values = append(out.Values, []any{10000 + i, "F"})
	}
	return out, nil
}

func (d *fakeDriver) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type memoryAudit struct {
	mu     sync.Mutex
	events []model.AuditEvent
}

func (a *memoryAudit) Append(_ context.Context, e model.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return nil
}

// countingFixer returns a new statement on every call.
type countingFixer struct {
	calls  int
	err    error
	fixed  string
	onCall func()
}

func (f *countingFixer) Fix(_ context.Context, _ string, _ string, _ *DBError) (string, error) {
	f.calls++
	if f.onCall != nil {
		f.onCall()
	}
	if f.err != nil {
		return "", f.err
	}
	if f.fixed != "" {
		return f.fixed, nil
	}
	return fmt.Sprintf("SELECT %d FROM patients WHERE subject_id = 1", f.calls), nil
}
