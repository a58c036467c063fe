package repository

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sso312/QueryLens-sub002/internal/model"
)

func TestParseFixture(t *testing.T) {
	data := []byte(`
snippets:
  - kind: schema
    text: "patients(subject_id, gender)"
    priority: 2
  - id: ex-1
    kind: example
    text: "SELECT COUNT(*) FROM patients WHERE gender = 'F'"
answers:
  - question: "How many female patients?"
    sql: "SELECT COUNT(*) FROM patients WHERE gender = 'F'"
    columns: [count]
    rows: [[42]]
    rowCap: 5000
`)
	f, err := ParseFixture(data)
	require.NoError(t, err)
	require.Len(t, f.Snippets, 2)
	assert.Equal(t, "schema-000", f.Snippets[0].ID)
	assert.Equal(t, "ex-1", f.Snippets[1].ID)
	assert.Equal(t, model.KindExample, f.Snippets[1].Kind)
	require.Len(t, f.Answers, 1)
	assert.Equal(t, []string{"count"}, f.Answers[0].Columns)
	assert.Equal(t, 5000, f.Answers[0].RowCap)
}

func TestParseFixture_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown kind", "snippets:\n  - kind: poem\n    text: x\n"},
		{"empty text", "snippets:\n  - kind: schema\n"},
		{"unknown field", "snippets:\n  - kind: schema\n    text: x\n    weight: 3\n"},
		{"blank question", "answers:\n  - question: \"?!\"\n    sql: SELECT 1\n"},
		{"missing sql", "answers:\n  - question: hello\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFixture([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLoadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("snippets:\n  - kind: glossary\n    text: los is length of stay\n"), 0o600))

	f, err := LoadFixture(path)
	require.NoError(t, err)
	assert.Len(t, f.Snippets, 1)

	_, err = LoadFixture(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadFixture_ShippedDemo(t *testing.T) {
	f, err := LoadFixture(filepath.Join("..", "..", "fixtures", "demo.yaml"))
	require.NoError(t, err)

	kinds := make(map[model.SnippetKind]int)
	for _, s := range f.Snippets {
		kinds[s.Kind]++
	}
	for _, k := range model.SnippetKinds {
		assert.NotZero(t, kinds[k], "no %s snippets", k)
	}
	assert.NotEmpty(t, f.Answers)
}
