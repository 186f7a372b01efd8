package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pulsedesk/pulsedesk/internal/config"
)

// Provider is the interface for LLM providers.
type Provider interface {
	Generate(ctx context.Context, prompt, system string, maxTokens int) (string, error)
	IsConfigured() bool
}

// AnthropicProvider calls the Anthropic Messages API.
type AnthropicProvider struct {
	Model       string
	APIKey      string
	Temperature float64
	client      *http.Client
}

// NewAnthropicProvider creates a new Anthropic provider, reading the
// API key from the given environment variable.
func NewAnthropicProvider(model, apiKeyEnv string, temperature float64) *AnthropicProvider {
	return &AnthropicProvider{
		Model:       model,
		APIKey:      os.Getenv(apiKeyEnv),
		Temperature: temperature,
		client:      &http.Client{Timeout: 120 * time.Second},
	}
}

// IsConfigured checks if the API key is set.
func (a *AnthropicProvider) IsConfigured() bool {
	return a.APIKey != ""
}

// Generate sends a prompt to Anthropic and returns the response text.
func (a *AnthropicProvider) Generate(ctx context.Context, prompt, system string, maxTokens int) (string, error) {
	if a.APIKey == "" {
		return "", fmt.Errorf("Anthropic API key not configured")
	}

	body := map[string]any{
		"model":      a.Model,
		"max_tokens": maxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": a.Temperature,
	}
	if system != "" {
		body["system"] = system
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.anthropic.com/v1/messages", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("anthropic API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	var sb strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no text content in Anthropic response")
	}
	return sb.String(), nil
}

// OpenAIProvider calls the OpenAI chat completions API.
type OpenAIProvider struct {
	Model       string
	APIKey      string
	Temperature float64
	client      *http.Client
}

// NewOpenAIProvider creates a new OpenAI provider, reading the API key
// from the given environment variable.
func NewOpenAIProvider(model, apiKeyEnv string, temperature float64) *OpenAIProvider {
	return &OpenAIProvider{
		Model:       model,
		APIKey:      os.Getenv(apiKeyEnv),
		Temperature: temperature,
		client:      &http.Client{Timeout: 120 * time.Second},
	}
}

// IsConfigured checks if the API key is set.
func (o *OpenAIProvider) IsConfigured() bool {
	return o.APIKey != ""
}

// Generate sends a prompt to OpenAI and returns the response text.
func (o *OpenAIProvider) Generate(ctx context.Context, prompt, system string, maxTokens int) (string, error) {
	if o.APIKey == "" {
		return "", fmt.Errorf("OpenAI API key not configured")
	}

	messages := []map[string]string{}
	if system != "" {
		messages = append(messages, map[string]string{"role": "system", "content": system})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt})

	body := map[string]any{
		"model":       o.Model,
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": o.Temperature,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.openai.com/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.APIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("OpenAI API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in OpenAI response")
	}
	return result.Choices[0].Message.Content, nil
}

// CreateProvider creates an LLM provider based on configuration,
// falling back from Anthropic to OpenAI when the preferred provider
// has no key.
func CreateProvider(cfg config.Analysis, logger *zap.Logger) (Provider, error) {
	if strings.ToLower(cfg.Provider) != "openai" {
		p := NewAnthropicProvider(cfg.AnthropicModel, cfg.AnthropicKeyEnv, cfg.Temperature)
		if p.IsConfigured() {
			logger.Info("using Anthropic provider", zap.String("model", cfg.AnthropicModel))
			return p, nil
		}
		logger.Warn("Anthropic API key not set, trying OpenAI fallback",
			zap.String("key_env", cfg.AnthropicKeyEnv))
	}

	p := NewOpenAIProvider(cfg.OpenAIModel, cfg.OpenAIKeyEnv, cfg.Temperature)
	if p.IsConfigured() {
		logger.Info("using OpenAI provider", zap.String("model", cfg.OpenAIModel))
		return p, nil
	}

	return nil, fmt.Errorf("no LLM provider configured; set %s or %s",
		cfg.AnthropicKeyEnv, cfg.OpenAIKeyEnv)
}
