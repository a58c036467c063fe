package repository

import (
	"context"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/sso312/QueryLens-sub002/internal/model"
)

// CostLedger records every LLM call with its token usage.
type CostLedger interface {
	Record(ctx context.Context, entry model.CostEntry) error
	Summary(ctx context.Context) ([]model.CostSummary, error)
}

// MongoCostLedger stores entries in the llm_costs collection.
type MongoCostLedger struct {
	collection *mongo.Collection
}

func NewMongoCostLedger(db *mongo.Database) *MongoCostLedger {
	return &MongoCostLedger{
		collection: db.Collection("llm_costs"),
	}
}

func (r *MongoCostLedger) Record(ctx context.Context, entry model.CostEntry) error {
	_, err := r.collection.InsertOne(ctx, entry)
	return err
}

// Summary totals the ledger per model.
func (r *MongoCostLedger) Summary(ctx context.Context) ([]model.CostSummary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":              "$model",
			"calls":            bson.M{"$sum": 1},
			"promptTokens":     bson.M{"$sum": "$promptTokens"},
			"completionTokens": bson.M{"$sum": "$completionTokens"},
			"costUsd":          bson.M{"$sum": "$costUsd"},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	summaries := []model.CostSummary{}
	if err = cursor.All(ctx, &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

// MemoryCostLedger keeps every entry in process memory.
type MemoryCostLedger struct {
	mu      sync.Mutex
	entries []model.CostEntry
}

func NewMemoryCostLedger() *MemoryCostLedger {
	return &MemoryCostLedger{}
}

func (l *MemoryCostLedger) Record(_ context.Context, entry model.CostEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// Entries returns a copy of the recorded entries.
func (l *MemoryCostLedger) Entries() []model.CostEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.CostEntry(nil), l.entries...)
}

func (l *MemoryCostLedger) Summary(_ context.Context) ([]model.CostSummary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	byModel := make(map[string]*model.CostSummary)
	for _, e := range l.entries {
		s, ok := byModel[e.Model]
		if !ok {
			s = &model.CostSummary{Model: e.Model}
			byModel[e.Model] = s
		}
		s.Calls++
		s.PromptTokens += e.PromptTokens
		s.CompletionTokens += e.CompletionTokens
		s.CostUSD += e.CostUSD
	}

	out := make([]model.CostSummary, 0, len(byModel))
	for _, s := range byModel {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out, nil
}
