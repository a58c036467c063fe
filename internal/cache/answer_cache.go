package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sso312/QueryLens-sub002/internal/model"
)

// AnswerCache holds precomputed demo answers keyed by normalized question.
type AnswerCache interface {
	Get(ctx context.Context, q model.Question) (*model.DemoAnswer, error)
	Set(ctx context.Context, answer *model.DemoAnswer) error
}

func answerKey(normalized string) string {
	return fmt.Sprintf("querylens:answer:%s", normalized)
}

// RedisAnswerCache stores answers as JSON strings.
type RedisAnswerCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisAnswerCache creates a cache. A zero ttl keeps entries forever.
func NewRedisAnswerCache(client *redis.Client, ttl time.Duration) *RedisAnswerCache {
	return &RedisAnswerCache{
		client: client,
		ttl:    ttl,
	}
}

// Get returns nil, nil on a miss.
func (c *RedisAnswerCache) Get(ctx context.Context, q model.Question) (*model.DemoAnswer, error) {
	if q.IsEmpty() {
		return nil, nil
	}
	data, err := c.client.Get(ctx, answerKey(q.Normalized)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var answer model.DemoAnswer
	if err := json.Unmarshal(data, &answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

func (c *RedisAnswerCache) Set(ctx context.Context, answer *model.DemoAnswer) error {
	key := model.NormalizeQuestion(answer.Question)
	if key == "" {
		return fmt.Errorf("answer has no question")
	}
	if answer.CachedAt.IsZero() {
		answer.CachedAt = time.Now().UTC()
	}
	data, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, answerKey(key), data, c.ttl).Err()
}

// SeedAll writes answers in one pipeline.
func (c *RedisAnswerCache) SeedAll(ctx context.Context, answers []model.DemoAnswer) error {
	pipe := c.client.Pipeline()
	now := time.Now().UTC()
	for i := range answers {
		a := answers[i]
		key := model.NormalizeQuestion(a.Question)
		if key == "" {
			continue
		}
		if a.CachedAt.IsZero() {
			a.CachedAt = now
		}
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		pipe.Set(ctx, answerKey(key), data, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// MemoryAnswerCache is the in-process cache used without Redis.
type MemoryAnswerCache struct {
	mu      sync.RWMutex
	answers map[string]model.DemoAnswer
}

func NewMemoryAnswerCache(answers []model.DemoAnswer) *MemoryAnswerCache {
	c := &MemoryAnswerCache{answers: make(map[string]model.DemoAnswer)}
	for i := range answers {
		_ = c.Set(context.Background(), &answers[i])
	}
	return c
}

func (c *MemoryAnswerCache) Get(_ context.Context, q model.Question) (*model.DemoAnswer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.answers[q.Normalized]
	if !ok || q.IsEmpty() {
		return nil, nil
	}
	return &a, nil
}

func (c *MemoryAnswerCache) Set(_ context.Context, answer *model.DemoAnswer) error {
	key := model.NormalizeQuestion(answer.Question)
	if key == "" {
		return fmt.Errorf("answer has no question")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answers[key] = *answer
	return nil
}
