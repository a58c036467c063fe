package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sso312/QueryLens-sub002/internal/model"
)

// RetrievalStore returns the top-k snippets of one kind for a question.
type RetrievalStore interface {
	Search(ctx context.Context, kind model.SnippetKind, query string, k int) ([]model.Snippet, error)
}

// SnippetWriter loads snippets into a store. Used by the seeder.
type SnippetWriter interface {
	Upsert(ctx context.Context, snippets []model.Snippet) error
}

// MongoSnippetStore searches snippets through a Mongo text index.
type MongoSnippetStore struct {
	collection *mongo.Collection
}

// NewMongoSnippetStore creates a store over the snippets collection.
func NewMongoSnippetStore(db *mongo.Database) *MongoSnippetStore {
	return &MongoSnippetStore{
		collection: db.Collection("snippets"),
	}
}

// EnsureIndexes creates the text and kind indexes Search relies on.
func (r *MongoSnippetStore) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "text", Value: "text"}, {Key: "tags", Value: "text"}}},
		{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "priority", Value: -1}}},
	})
	return err
}

func (r *MongoSnippetStore) Search(ctx context.Context, kind model.SnippetKind, query string, k int) ([]model.Snippet, error) {
	if k <= 0 {
		return nil, nil
	}

	filter := bson.M{"kind": kind}
	opts := options.Find().SetLimit(int64(k))
	if strings.TrimSpace(query) != "" {
		filter["$text"] = bson.M{"$search": query}
		opts.SetProjection(bson.M{"score": bson.M{"$meta": "textScore"}})
		opts.SetSort(bson.D{
			{Key: "score", Value: bson.M{"$meta": "textScore"}},
			{Key: "priority", Value: -1},
		})
	} else {
		opts.SetSort(bson.D{{Key: "priority", Value: -1}})
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var snippets []model.Snippet
	if err = cursor.All(ctx, &snippets); err != nil {
		return nil, err
	}
	return snippets, nil
}

func (r *MongoSnippetStore) Upsert(ctx context.Context, snippets []model.Snippet) error {
	for _, s := range snippets {
		_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": s.ID}, s, options.Replace().SetUpsert(true))
		if err != nil {
			return err
		}
	}
	return nil
}

// MemorySnippetStore ranks snippets by how many distinct question terms they
// contain. Ties go to higher priority, then to load order.
type MemorySnippetStore struct {
	mu       sync.RWMutex
	snippets []model.Snippet
	terms    [][]string
}

// NewMemorySnippetStore creates a store preloaded with snippets.
func NewMemorySnippetStore(snippets []model.Snippet) *MemorySnippetStore {
	s := &MemorySnippetStore{}
	_ = s.Upsert(context.Background(), snippets)
	return s
}

func (s *MemorySnippetStore) Upsert(_ context.Context, snippets []model.Snippet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sn := range snippets {
		words := strings.Fields(model.NormalizeQuestion(sn.Text + " " + strings.Join(sn.Tags, " ")))
		replaced := false
		if sn.ID != "" {
			for i := range s.snippets {
				if s.snippets[i].ID == sn.ID {
					s.snippets[i], s.terms[i] = sn, words
					replaced = true
					break
				}
			}
		}
		if !replaced {
			s.snippets = append(s.snippets, sn)
			s.terms = append(s.terms, words)
		}
	}
	return nil
}

func (s *MemorySnippetStore) Search(ctx context.Context, kind model.SnippetKind, query string, k int) ([]model.Snippet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	queryTerms := make(map[string]bool)
	for _, w := range strings.Fields(model.NormalizeQuestion(query)) {
		if len(w) > 2 {
			queryTerms[w] = true
		}
	}

	type scored struct {
		snippet model.Snippet
		score   int
		order   int
	}

	s.mu.RLock()
	var hits []scored
	for i, sn := range s.snippets {
		if sn.Kind != kind {
			continue
		}
		score := 0
		seen := make(map[string]bool)
		for _, w := range s.terms[i] {
			if queryTerms[w] && !seen[w] {
				seen[w] = true
				score++
			}
		}
		if score == 0 && len(queryTerms) > 0 {
			continue
		}
		hits = append(hits, scored{snippet: sn, score: score, order: i})
	}
	s.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		if hits[i].snippet.Priority != hits[j].snippet.Priority {
			return hits[i].snippet.Priority > hits[j].snippet.Priority
		}
		return hits[i].order < hits[j].order
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]model.Snippet, len(hits))
	for i, h := range hits {
		out[i] = h.snippet
	}
	return out, nil
}
