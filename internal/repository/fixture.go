package repository

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/sso312/QueryLens-sub002/internal/model"
)

// Fixture is the on-disk demo corpus: retrieval snippets plus precomputed
// answers for the demo questions.
type Fixture struct {
	Snippets []model.Snippet    `json:"snippets"`
	Answers  []model.DemoAnswer `json:"answers"`
}

// LoadFixture reads and validates a YAML fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes fixture YAML. Unknown fields are rejected.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	for i, s := range f.Snippets {
		if !s.Kind.Valid() {
			return nil, fmt.Errorf("snippet %d: unknown kind %q", i, s.Kind)
		}
		if s.Text == "" {
			return nil, fmt.Errorf("snippet %d: empty text", i)
		}
		if s.ID == "" {
			f.Snippets[i].ID = fmt.Sprintf("%s-%03d", s.Kind, i)
		}
	}
	for i, a := range f.Answers {
		if model.NormalizeQuestion(a.Question) == "" {
			return nil, fmt.Errorf("answer %d: empty question", i)
		}
		if a.SQL == "" {
			return nil, fmt.Errorf("answer %d: empty sql", i)
		}
	}
	return &f, nil
}
