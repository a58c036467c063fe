package config

import (
	"time"

	"github.com/spf13/viper"
)

// LLMModels names the Gemini model used for each generation role.
type LLMModels struct {
	// Engineer writes the first draft (needs to be fast)
	Engineer string `mapstructure:"engineer" json:"engineer"`

	// Expert reviews high-risk drafts (quality over speed)
	Expert string `mapstructure:"expert" json:"expert"`

	// Repair fixes SQL the database rejected
	Repair string `mapstructure:"repair" json:"repair"`
}

// AIConfig holds all AI-related configuration
type AIConfig struct {
	APIKey     string        `mapstructure:"api_key" json:"-"` // Never serialize
	BaseURL    string        `mapstructure:"base_url" json:"baseUrl"`
	Models     LLMModels     `mapstructure:"models" json:"models"`
	Timeout    time.Duration `mapstructure:"timeout" json:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" json:"maxRetries"`

	// USD per 1K tokens, recorded in the cost ledger
	InputCostPer1K  float64 `mapstructure:"input_cost_per_1k" json:"inputCostPer1k"`
	OutputCostPer1K float64 `mapstructure:"output_cost_per_1k" json:"outputCostPer1k"`
}

// IsEnabled returns true if the AI API is configured
func (c AIConfig) IsEnabled() bool {
	return c.APIKey != ""
}

// ModelEndpoint returns the full endpoint for a given model
func (c AIConfig) ModelEndpoint(model string) string {
	return c.BaseURL + "/" + model + ":generateContent"
}

// Cost prices a call from its token usage.
func (c AIConfig) Cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1000*c.InputCostPer1K + float64(completionTokens)/1000*c.OutputCostPer1K
}

func setAIDefaults(v *viper.Viper) {
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.base_url", "https://generativelanguage.googleapis.com/v1beta/models")
	v.SetDefault("ai.models.engineer", "gemini-2.0-flash")
	v.SetDefault("ai.models.expert", "gemini-2.5-pro")
	v.SetDefault("ai.models.repair", "gemini-2.0-flash")
	v.SetDefault("ai.timeout", 30*time.Second)
	v.SetDefault("ai.max_retries", 2)
	v.SetDefault("ai.input_cost_per_1k", 0.0001)
	v.SetDefault("ai.output_cost_per_1k", 0.0004)

	// Keep the variable names existing deployments already export.
	_ = v.BindEnv("ai.api_key", "QUERYLENS_AI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("ai.models.engineer", "QUERYLENS_AI_MODELS_ENGINEER", "GEMINI_MODEL_ENGINEER")
	_ = v.BindEnv("ai.models.expert", "QUERYLENS_AI_MODELS_EXPERT", "GEMINI_MODEL_EXPERT")
}
