package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const anthropicDefaultURL = "https://api.anthropic.com"

// anthropicClient implements the Client interface for the Anthropic messages API.
type anthropicClient struct {
	httpClient *http.Client
	cfg        Config
}

// newAnthropicClient creates a new Anthropic API client.
func newAnthropicClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	cfg = cfg.withDefaults("claude-3-5-haiku-latest", anthropicDefaultURL)
	return &anthropicClient{
		cfg:        cfg,
		httpClient: newHTTPClient(cfg.Timeout),
	}, nil
}

// anthropicResponse represents the Anthropic API response structure.
type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Complete sends a messages request.
func (c *anthropicClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	requestBody := map[string]any{
		"model":       c.cfg.Model,
		"max_tokens":  c.cfg.MaxTokens,
		"temperature": c.cfg.Temperature,
		"system":      system,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}

	var response anthropicResponse
	err := postJSON(ctx, c.httpClient, "anthropic",
		strings.TrimRight(c.cfg.BaseURL, "/")+"/v1/messages",
		map[string]string{
			"x-api-key":         c.cfg.APIKey,
			"anthropic-version": "2023-06-01",
		},
		requestBody, &response)
	if err != nil {
		return "", err
	}

	for _, block := range response.Content {
		if block.Type == "" || block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", permanent(fmt.Errorf("no content in response"))
}
