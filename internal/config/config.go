// Package config loads the process configuration once at startup. Components
// receive the sections they need by value and never read the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	AI       AIConfig       `mapstructure:"ai"`

	// Fixture file with snippets and demo answers, used when Mongo is absent.
	FixturePath string `mapstructure:"fixture_path"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	SafetyMargin    time.Duration `mapstructure:"safety_margin"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     string        `mapstructure:"cors_origins"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig holds the clinical database connection.
type DatabaseConfig struct {
	URL           string `mapstructure:"url"`
	MaxConns      int32  `mapstructure:"max_conns"`
	DefaultSchema string `mapstructure:"default_schema"`
	LoadCatalog   bool   `mapstructure:"load_catalog"`
}

// MongoConfig holds the retrieval store and ledger connection. An empty URI
// selects the in-memory implementations.
type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// RedisConfig holds the demo answer cache connection. An empty address
// disables the cache.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	AnswerTTL time.Duration `mapstructure:"answer_ttl"`
}

// AuthConfig holds operator login settings.
type AuthConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// TopKConfig is the per-kind retrieval depth.
type TopKConfig struct {
	Schema   int `mapstructure:"schema"`
	Example  int `mapstructure:"example"`
	Template int `mapstructure:"template"`
	Glossary int `mapstructure:"glossary"`
}

// PipelineConfig holds the safety pipeline knobs. MaxAttempts bounds real
// database executions per request, the first one included; 1 disables repair.
type PipelineConfig struct {
	ExpertThreshold  float64       `mapstructure:"expert_threshold"`
	TokenBudget      int           `mapstructure:"token_budget"`
	TopK             TopKConfig    `mapstructure:"top_k"`
	RetrievalTimeout time.Duration `mapstructure:"retrieval_timeout"`
	RowCap           int           `mapstructure:"row_cap"`
	DBTimeout        time.Duration `mapstructure:"db_timeout"`
	MaxJoins         int           `mapstructure:"max_joins"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	RuleRepair       bool          `mapstructure:"rule_repair"`
	LLMRepair        bool          `mapstructure:"llm_repair"`
	Dialect          string        `mapstructure:"dialect"`
}

// Load builds the configuration with precedence env > config file > defaults.
// path may be empty.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("QUERYLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.safety_margin", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.cors_origins", "*")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.default_schema", "public")
	v.SetDefault("database.load_catalog", true)

	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "querylens")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.answer_ttl", 24*time.Hour)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.username", "admin")
	v.SetDefault("auth.password", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 12*time.Hour)

	v.SetDefault("pipeline.expert_threshold", 4.0)
	v.SetDefault("pipeline.token_budget", 3000)
	v.SetDefault("pipeline.top_k.schema", 6)
	v.SetDefault("pipeline.top_k.example", 4)
	v.SetDefault("pipeline.top_k.template", 3)
	v.SetDefault("pipeline.top_k.glossary", 5)
	v.SetDefault("pipeline.retrieval_timeout", 3*time.Second)
	v.SetDefault("pipeline.row_cap", 5000)
	v.SetDefault("pipeline.db_timeout", 180*time.Second)
	v.SetDefault("pipeline.max_joins", 6)
	v.SetDefault("pipeline.max_attempts", 2)
	v.SetDefault("pipeline.rule_repair", true)
	v.SetDefault("pipeline.llm_repair", true)
	v.SetDefault("pipeline.dialect", "ansi")

	v.SetDefault("fixture_path", "fixtures/demo.yaml")

	setAIDefaults(v)
}

// Validate rejects configurations the pipeline cannot honour.
func (c *Config) Validate() error {
	p := c.Pipeline
	switch {
	case p.ExpertThreshold < 0 || p.ExpertThreshold > 10:
		return fmt.Errorf("pipeline.expert_threshold must be within [0, 10], got %v", p.ExpertThreshold)
	case p.TokenBudget <= 0:
		return fmt.Errorf("pipeline.token_budget must be positive, got %d", p.TokenBudget)
	case p.RowCap <= 0:
		return fmt.Errorf("pipeline.row_cap must be positive, got %d", p.RowCap)
	case p.DBTimeout <= 0:
		return fmt.Errorf("pipeline.db_timeout must be positive, got %s", p.DBTimeout)
	case p.MaxJoins < 0:
		return fmt.Errorf("pipeline.max_joins must not be negative, got %d", p.MaxJoins)
	case p.MaxAttempts < 1:
		return fmt.Errorf("pipeline.max_attempts must be at least 1, got %d", p.MaxAttempts)
	}
	switch strings.ToLower(p.Dialect) {
	case "ansi", "postgres", "oracle":
	default:
		return fmt.Errorf("pipeline.dialect must be one of ansi, postgres, oracle, got %q", p.Dialect)
	}
	if c.Auth.Enabled && (c.Auth.JWTSecret == "" || c.Auth.Password == "") {
		return fmt.Errorf("auth.enabled requires auth.password and auth.jwt_secret")
	}
	return nil
}

// RequestTimeout is the end-to-end budget of one request: the database
// timeout plus every LLM call the pipeline may make plus a safety margin.
func (c *Config) RequestTimeout() time.Duration {
	// draft and review, plus one repair call per retry
	llmCalls := 1 + c.Pipeline.MaxAttempts
	return c.Pipeline.DBTimeout*time.Duration(c.Pipeline.MaxAttempts) +
		c.AI.Timeout*time.Duration(llmCalls) +
		c.Pipeline.RetrievalTimeout +
		c.Server.SafetyMargin
}
