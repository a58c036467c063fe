package sqlexec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/sso312/QueryLens-sub002/internal/errors"
	"github.com/sso312/QueryLens-sub002/internal/model"
)

func TestPolicyGate_Check(t *testing.T) {
	gate := NewPolicyGate(2)

	tests := []struct {
		name       string
		sql        string
		wantReason model.PolicyReason
		wantClause string
	}{
		{
			name:       "update is not a select",
			sql:        "UPDATE patients SET dod = NULL",
			wantReason: model.ReasonNotSelect,
			wantClause: "UPDATE",
		},
		{
			name:       "count without where",
			sql:        "SELECT COUNT(*) FROM admissions",
			wantReason: model.ReasonMissingWhere,
		},
		{
			name: "point lookup passes",
			sql:  "SELECT * FROM patients WHERE subject_id = 10006",
		},
		{
			name: "leading comment is skipped",
			sql:  "-- cohort\nSELECT subject_id FROM patients WHERE anchor_age > 65",
		},
		{
			name: "cte ending in select",
			sql:  "WITH recent AS (SELECT * FROM admissions WHERE admittime > now() - interval '30 days') SELECT count(*) FROM recent WHERE hadm_id IS NOT NULL",
		},
		{
			name:       "data modifying cte",
			sql:        "WITH gone AS (DELETE FROM patients WHERE dod IS NOT NULL RETURNING *) SELECT * FROM gone WHERE 1 = 1",
			wantReason: model.ReasonWriteBlocked,
			wantClause: "DELETE",
		},
		{
			name:       "write keyword inside a comment",
			sql:        "SELECT * FROM patients WHERE subject_id = 1 /* then DROP TABLE patients */",
			wantReason: model.ReasonWriteBlocked,
			wantClause: "DROP",
		},
		{
			name:       "write keyword inside a literal",
			sql:        "SELECT * FROM notes WHERE text = 'please delete'",
			wantReason: model.ReasonWriteBlocked,
			wantClause: "DELETE",
		},
		{
			name:       "select into creates a table",
			sql:        "SELECT * INTO backup FROM patients WHERE 1 = 1",
			wantReason: model.ReasonWriteBlocked,
			wantClause: "INTO",
		},
		{
			name: "identifiers containing keywords",
			sql:  "SELECT created_at, is_deleted, last_update FROM audit WHERE updated_by = 'x'",
		},
		{
			name:       "where only in a comment",
			sql:        "SELECT * FROM patients -- WHERE subject_id = 1",
			wantReason: model.ReasonMissingWhere,
		},
		{
			name:       "missing where reported before a write keyword",
			sql:        "SELECT * FROM t -- drop",
			wantReason: model.ReasonMissingWhere,
		},
		{
			name:       "join ceiling reported before a write keyword",
			sql:        "SELECT * FROM a JOIN b ON a.id = b.id JOIN c ON c.id = b.id JOIN d ON d.id = c.id WHERE a.note = 'delete'",
			wantReason: model.ReasonTooManyJoins,
			wantClause: "3 JOIN clauses",
		},
		{
			name:       "where only in a literal",
			sql:        "SELECT 'WHERE' FROM patients",
			wantReason: model.ReasonMissingWhere,
		},
		{
			name: "joins at the ceiling",
			sql:  "SELECT * FROM a JOIN b ON a.id = b.id LEFT JOIN c ON c.id = b.id WHERE a.x = 1",
		},
		{
			name:       "joins above the ceiling",
			sql:        "SELECT * FROM a JOIN b ON a.id = b.id JOIN c ON c.id = b.id JOIN d ON d.id = c.id WHERE a.x = 1",
			wantReason: model.ReasonTooManyJoins,
			wantClause: "3 JOIN clauses",
		},
		{
			name:       "stacked statements",
			sql:        "SELECT 1 FROM t WHERE a = 1; SELECT 2 FROM t WHERE a = 2",
			wantReason: model.ReasonNotSelect,
		},
		{
			name: "trailing terminator only",
			sql:  "SELECT 1 FROM t WHERE a = 1;",
		},
		{
			name:       "empty",
			sql:        "   ",
			wantReason: model.ReasonNotSelect,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := gate.Check(tt.sql)
			if tt.wantReason == "" {
				assert.True(t, v.Passed, "unexpected verdict %+v", v)
				return
			}
			assert.False(t, v.Passed)
			assert.Equal(t, tt.wantReason, v.Reason)
			if tt.wantClause != "" {
				assert.Equal(t, tt.wantClause, v.Clause)
			}
			assert.NotEmpty(t, v.Message)
		})
	}
}

func TestPolicyGate_CheckCompiled(t *testing.T) {
	gate := NewPolicyGate(6)

	tests := []struct {
		name       string
		dialect    Dialect
		sql        string
		wantReason model.PolicyReason
	}{
		{"oracle rownum wrapper", DialectOracle, "SELECT COUNT(*) FROM admissions LIMIT 10", model.ReasonMissingWhere},
		{"oracle offset wrapper", DialectOracle, "SELECT * FROM admissions LIMIT 10 OFFSET 20", model.ReasonMissingWhere},
		{"ansi fetch first", DialectANSI, "SELECT COUNT(*) FROM admissions LIMIT 10", model.ReasonMissingWhere},
		{"oracle with where", DialectOracle, "SELECT * FROM admissions WHERE hadm_id > 0 LIMIT 10", ""},
		{"postgres limit kept", DialectPostgres, "SELECT COUNT(*) FROM admissions LIMIT 10", model.ReasonMissingWhere},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled := NewPostprocessor(tt.dialect, nil).Postprocess(tt.sql)
			v := gate.CheckCompiled(compiled)
			if tt.wantReason == "" {
				assert.True(t, v.Passed, "unexpected verdict %+v", v)
				return
			}
			assert.False(t, v.Passed)
			assert.Equal(t, tt.wantReason, v.Reason)
		})
	}

	// the rewritten text alone would pass
	compiled := NewPostprocessor(DialectOracle, nil).Postprocess("SELECT COUNT(*) FROM admissions LIMIT 10")
	require.Contains(t, compiled.SQL, "ROWNUM")
	assert.True(t, gate.Check(compiled.SQL).Passed)
}

func TestPolicyGate_Deterministic(t *testing.T) {
	gate := NewPolicyGate(6)
	inputs := []string{
		"UPDATE patients SET dod = NULL",
		"SELECT COUNT(*) FROM admissions",
		"SELECT * FROM patients WHERE subject_id = 10006",
		"SELECT * FROM a JOIN b ON 1=1 WHERE x = 'drop'",
	}
	for _, sql := range inputs {
		assert.Equal(t, gate.Check(sql), gate.Check(sql), sql)
	}
}

func TestPolicyGate_Err(t *testing.T) {
	gate := NewPolicyGate(6)

	assert.NoError(t, gate.Err(gate.Check("SELECT 1 FROM t WHERE a = 1")))

	err := gate.Err(gate.Check("SELECT COUNT(*) FROM admissions"))
	require.Error(t, err)
	e, ok := qerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, qerrors.PolicyViolation, e.Kind)
	assert.Equal(t, "MISSING_WHERE", e.Code)
	assert.Equal(t, "WHERE clause required", e.Message)
}
