package model

// SnippetKind classifies a retrieved context snippet.
type SnippetKind string

const (
	KindSchema   SnippetKind = "schema"
	KindExample  SnippetKind = "example"
	KindTemplate SnippetKind = "template"
	KindGlossary SnippetKind = "glossary"
)

// SnippetKinds lists every kind in retrieval order.
var SnippetKinds = []SnippetKind{KindSchema, KindExample, KindTemplate, KindGlossary}

// TrimOrder is the order in which kinds are discarded when the payload is over
// budget. Examples are kept longest.
var TrimOrder = []SnippetKind{KindGlossary, KindSchema, KindTemplate, KindExample}

// Valid reports whether k is a known snippet kind.
func (k SnippetKind) Valid() bool {
	switch k {
	case KindSchema, KindExample, KindTemplate, KindGlossary:
		return true
	}
	return false
}

// Snippet is one retrieved piece of context.
type Snippet struct {
	ID       string      `json:"id" bson:"_id,omitempty"`
	Kind     SnippetKind `json:"kind" bson:"kind"`
	Text     string      `json:"text" bson:"text"`
	Priority int         `json:"priority" bson:"priority"`
	Tags     []string    `json:"tags,omitempty" bson:"tags,omitempty"`
}

// ContextPayload is the budgeted context handed to the generator.
type ContextPayload struct {
	Snippets    []Snippet           `json:"snippets"`
	TokenBudget int                 `json:"tokenBudget"`
	TokensUsed  int                 `json:"tokensUsed"`
	Dropped     map[SnippetKind]int `json:"dropped,omitempty"`
	Missing     []SnippetKind       `json:"missing,omitempty"`
}

// OfKind returns the snippets of kind k in payload order.
func (p ContextPayload) OfKind(k SnippetKind) []Snippet {
	var out []Snippet
	for _, s := range p.Snippets {
		if s.Kind == k {
			out = append(out, s)
		}
	}
	return out
}

// EstimateTokens approximates the token count of text at four characters per token.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
