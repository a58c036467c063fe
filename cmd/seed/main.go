// Command seed loads the demo fixture into Mongo (retrieval snippets) and
// Redis (precomputed demo answers).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/sso312/QueryLens-sub002/internal/cache"
	"github.com/sso312/QueryLens-sub002/internal/config"
	"github.com/sso312/QueryLens-sub002/internal/logging"
	"github.com/sso312/QueryLens-sub002/internal/repository"
)

func main() {
	configPath := flag.String("config", os.Getenv("QUERYLENS_CONFIG"), "path to config file")
	fixturePath := flag.String("fixture", "", "fixture file (defaults to fixture_path)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *fixturePath != "" {
		cfg.FixturePath = *fixturePath
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := seed(ctx, cfg, logger); err != nil {
		logger.Fatal("seed failed", zap.Error(err))
	}
}

func seed(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	fixture, err := repository.LoadFixture(cfg.FixturePath)
	if err != nil {
		return err
	}
	if cfg.Mongo.URI == "" && cfg.Redis.Addr == "" {
		return fmt.Errorf("neither mongo.uri nor redis.addr is set; nothing to seed")
	}

	if cfg.Mongo.URI != "" {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return fmt.Errorf("connect mongo: %w", err)
		}
		defer client.Disconnect(context.Background())

		store := repository.NewMongoSnippetStore(client.Database(cfg.Mongo.Database))
		if err := store.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("ensure indexes: %w", err)
		}
		if err := store.Upsert(ctx, fixture.Snippets); err != nil {
			return fmt.Errorf("upsert snippets: %w", err)
		}
		logger.Info("snippets seeded",
			zap.String("database", cfg.Mongo.Database),
			zap.Int("count", len(fixture.Snippets)))
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		answers := cache.NewRedisAnswerCache(rdb, cfg.Redis.AnswerTTL)
		if err := answers.SeedAll(ctx, fixture.Answers); err != nil {
			return fmt.Errorf("seed answers: %w", err)
		}
		logger.Info("demo answers seeded",
			zap.String("addr", cfg.Redis.Addr),
			zap.Int("count", len(fixture.Answers)),
			zap.Duration("ttl", cfg.Redis.AnswerTTL))
	}
	return nil
}
