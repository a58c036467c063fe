// Package app wires the process dependencies from configuration. The server
// and the local CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/sso312/QueryLens-sub002/internal/cache"
	"github.com/sso312/QueryLens-sub002/internal/config"
	"github.com/sso312/QueryLens-sub002/internal/logging"
	"github.com/sso312/QueryLens-sub002/internal/repository"
	"github.com/sso312/QueryLens-sub002/internal/service"
	"github.com/sso312/QueryLens-sub002/internal/sqlexec"
)

const connectTimeout = 5 * time.Second

type App struct {
	Config *config.Config
	Logger *zap.Logger

	Pool    *pgxpool.Pool
	Mongo   *mongo.Client
	Redis   *redis.Client
	Catalog *sqlexec.Catalog

	Snippets   repository.RetrievalStore
	AuditLog   repository.AuditLog
	CostLedger repository.CostLedger
	Answers    cache.AnswerCache

	QueryService *service.QueryService
	AuthService  *service.AuthService
}

// Build connects the backing stores and assembles the pipeline. publisher
// may be nil. Callers must Close the returned App.
func Build(ctx context.Context, cfg *config.Config, publisher service.TrailPublisher, logger *zap.Logger) (*App, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}

	a := &App{Config: cfg, Logger: logger}
	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}

	dialect, err := sqlexec.ParseDialect(cfg.Pipeline.Dialect)
	if err != nil {
		a.Close()
		return nil, err
	}

	llm := service.NewGeminiClient(cfg.AI, logger)
	if !cfg.AI.IsEnabled() {
		logger.Warn("ai.api_key is not set; only cached demo answers will succeed")
	}

	post := sqlexec.NewPostprocessor(dialect, a.Catalog)
	gate := sqlexec.NewPolicyGate(cfg.Pipeline.MaxJoins)
	executor := sqlexec.NewBoundedExecutor(
		sqlexec.NewPgxDriver(a.Pool, cfg.Database.DefaultSchema), a.AuditLog, logger)

	opts := sqlexec.RepairOptions{MaxAttempts: cfg.Pipeline.MaxAttempts}
	if cfg.Pipeline.RuleRepair {
		opts.Rules = sqlexec.DefaultRepairRules()
	}
	if cfg.Pipeline.LLMRepair {
		opts.Fixer = service.NewLLMRepairer(llm, a.CostLedger, cfg.AI, logger)
	}

	a.QueryService = service.NewQueryService(service.QueryDeps{
		Answers:    a.Answers,
		Classifier: service.NewRiskClassifier(),
		Assembler:  service.NewContextAssembler(a.Snippets, cfg.Pipeline, logger),
		Generator:  service.NewSQLGenerator(llm, a.CostLedger, cfg.AI, cfg.Pipeline.ExpertThreshold, logger),
		Post:       post,
		Gate:       gate,
		Repair:     sqlexec.NewRepairLoop(executor, gate, post, opts, logger),
		Publisher:  publisher,
	}, cfg.Pipeline, logger)

	if cfg.Auth.Enabled {
		a.AuthService = service.NewAuthService(cfg.Auth)
	}
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	if err := a.connectPostgres(ctx); err != nil {
		return err
	}

	var fixture *repository.Fixture
	needFixture := cfg.Mongo.URI == "" || cfg.Redis.Addr == ""
	if needFixture && cfg.FixturePath != "" {
		f, err := repository.LoadFixture(cfg.FixturePath)
		if err != nil {
			return fmt.Errorf("load fixture: %w", err)
		}
		fixture = f
		a.Logger.Info("fixture loaded",
			zap.String("path", cfg.FixturePath),
			zap.Int("snippets", len(f.Snippets)),
			zap.Int("answers", len(f.Answers)))
	}
	if fixture == nil {
		fixture = &repository.Fixture{}
	}

	if cfg.Mongo.URI != "" {
		if err := a.connectMongo(ctx); err != nil {
			return err
		}
	} else {
		a.Snippets = repository.NewMemorySnippetStore(fixture.Snippets)
		a.AuditLog = repository.NewMemoryAuditLog(0)
		a.CostLedger = repository.NewMemoryCostLedger()
		a.Logger.Info("mongo.uri not set, using in-memory retrieval store and ledgers")
	}

	if cfg.Redis.Addr != "" {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		if err := a.Redis.Ping(pingCtx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		a.Answers = cache.NewRedisAnswerCache(a.Redis, cfg.Redis.AnswerTTL)
		a.Logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		a.Answers = cache.NewMemoryAnswerCache(fixture.Answers)
	}
	return nil
}

func (a *App) connectPostgres(ctx context.Context) error {
	cfg := a.Config

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("parse database.url: %w", err)
	}
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}

	a.Pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := a.Pool.Ping(pingCtx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	a.Logger.Info("connected to database", zap.String("url", logging.Mask(cfg.Database.URL)))

	if cfg.Database.LoadCatalog {
		catalog, err := sqlexec.LoadCatalog(ctx, a.Pool, cfg.Database.DefaultSchema, []string{cfg.Database.DefaultSchema})
		if err != nil {
			// Postprocessing still works without identifier casing.
			a.Logger.Warn("catalog load failed", zap.Error(err))
		} else {
			a.Catalog = catalog
			a.Logger.Info("catalog loaded", zap.Int("identifiers", catalog.Len()))
		}
	}
	return nil
}

func (a *App) connectMongo(ctx context.Context) error {
	cfg := a.Config

	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connCtx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	a.Mongo = client
	if err := client.Ping(connCtx, nil); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(cfg.Mongo.Database)
	store := repository.NewMongoSnippetStore(db)
	if err := store.EnsureIndexes(connCtx); err != nil {
		return fmt.Errorf("ensure snippet indexes: %w", err)
	}
	a.Snippets = store
	a.AuditLog = repository.NewMongoAuditLog(db)
	a.CostLedger = repository.NewMongoCostLedger(db)
	a.Logger.Info("connected to mongo", zap.String("database", cfg.Mongo.Database))
	return nil
}

// Close releases every connection Build opened.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.Mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		if err := a.Mongo.Disconnect(ctx); err != nil {
			a.Logger.Warn("mongo disconnect", zap.Error(err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("redis close", zap.Error(err))
		}
	}
}
