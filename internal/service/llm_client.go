package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sso312/QueryLens-sub002/internal/config"
	"github.com/sso312/QueryLens-sub002/internal/model"
)

// LLMRequest is one completion call.
type LLMRequest struct {
	Model        string
	SystemPrompt string
	UserPayload  string
}

// LLMResponse carries the raw model text and token usage.
type LLMResponse struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// LLMClient is the language model collaborator.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}

// GeminiClient calls the Gemini generateContent endpoint in JSON mode.
type GeminiClient struct {
	config config.AIConfig
	client *http.Client
	logger *zap.Logger
}

func NewGeminiClient(cfg config.AIConfig, logger *zap.Logger) *GeminiClient {
	return &GeminiClient{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.Named("gemini"),
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  map[string]any  `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Complete sends req, retrying with exponential backoff on 429 and 5xx.
func (c *GeminiClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	if !c.config.IsEnabled() {
		return LLMResponse{}, fmt.Errorf("AI API key not configured")
	}

	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.UserPayload}}}},
		GenerationConfig: map[string]any{
			"responseMimeType": "application/json",
			"temperature":      0,
		},
	}
	if req.SystemPrompt != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return LLMResponse{}, err
	}

	url := fmt.Sprintf("%s?key=%s", c.config.ModelEndpoint(req.Model), c.config.APIKey)

	var lastErr error
	attempts := c.config.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			c.logger.Warn("Retrying LLM call",
				zap.String("model", req.Model),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return LLMResponse{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, retry, err := c.do(ctx, url, jsonBody)
		if err == nil {
			if resp.PromptTokens == 0 {
				resp.PromptTokens = model.EstimateTokens(req.SystemPrompt + req.UserPayload)
			}
			if resp.CompletionTokens == 0 {
				resp.CompletionTokens = model.EstimateTokens(resp.Text)
			}
			return resp, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			return LLMResponse{}, err
		}
	}

	return LLMResponse{}, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// do performs one HTTP round trip. retry reports whether the failure is transient.
func (c *GeminiClient) do(ctx context.Context, url string, jsonBody []byte) (LLMResponse, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return LLMResponse{}, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return LLMResponse{}, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return LLMResponse{}, true, err
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return LLMResponse{}, true, fmt.Errorf("gemini API error %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return LLMResponse{}, false, fmt.Errorf("gemini API error %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return LLMResponse{}, false, err
	}
	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return LLMResponse{}, false, fmt.Errorf("empty response from Gemini")
	}

	return LLMResponse{
		Text:             geminiResp.Candidates[0].Content.Parts[0].Text,
		PromptTokens:     geminiResp.UsageMetadata.PromptTokenCount,
		CompletionTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
	}, false, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
