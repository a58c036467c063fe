package repository

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sso312/QueryLens-sub002/internal/model"
)

// AuditLog is the append-only record of database executions.
type AuditLog interface {
	Append(ctx context.Context, event model.AuditEvent) error
	Recent(ctx context.Context, limit int) ([]model.AuditEvent, error)
}

// MongoAuditLog stores audit events in the audit_events collection.
type MongoAuditLog struct {
	collection *mongo.Collection
}

func NewMongoAuditLog(db *mongo.Database) *MongoAuditLog {
	return &MongoAuditLog{
		collection: db.Collection("audit_events"),
	}
}

func (r *MongoAuditLog) Append(ctx context.Context, event model.AuditEvent) error {
	_, err := r.collection.InsertOne(ctx, event)
	return err
}

// Recent returns up to limit events, newest first.
func (r *MongoAuditLog) Recent(ctx context.Context, limit int) ([]model.AuditEvent, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "executedAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	events := []model.AuditEvent{}
	if err = cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// MemoryAuditLog keeps the last capacity events in a ring buffer.
type MemoryAuditLog struct {
	mu     sync.Mutex
	events []model.AuditEvent
	next   int
	full   bool
}

func NewMemoryAuditLog(capacity int) *MemoryAuditLog {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryAuditLog{events: make([]model.AuditEvent, capacity)}
}

func (l *MemoryAuditLog) Append(_ context.Context, event model.AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events[l.next] = event
	l.next = (l.next + 1) % len(l.events)
	if l.next == 0 {
		l.full = true
	}
	return nil
}

func (l *MemoryAuditLog) Recent(_ context.Context, limit int) ([]model.AuditEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.next
	if l.full {
		n = len(l.events)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]model.AuditEvent, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (l.next - i + len(l.events)) % len(l.events)
		out = append(out, l.events[idx])
	}
	return out, nil
}
