package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const openAIDefaultURL = "https://api.openai.com"

// openAIClient implements the Client interface for the OpenAI chat API.
type openAIClient struct {
	httpClient *http.Client
	cfg        Config
}

// newOpenAIClient creates a new OpenAI API client.
func newOpenAIClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	cfg = cfg.withDefaults("gpt-4o-mini", openAIDefaultURL)
	return &openAIClient{
		cfg:        cfg,
		httpClient: newHTTPClient(cfg.Timeout),
	}, nil
}

// openAIResponse represents the OpenAI API response structure.
type openAIResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete sends a chat completion request.
func (c *openAIClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	requestBody := map[string]any{
		"model": c.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": prompt},
		},
		"temperature": c.cfg.Temperature,
		"max_tokens":  c.cfg.MaxTokens,
	}

	var response openAIResponse
	err := postJSON(ctx, c.httpClient, "OpenAI",
		strings.TrimRight(c.cfg.BaseURL, "/")+"/v1/chat/completions",
		map[string]string{"Authorization": "Bearer " + c.cfg.APIKey},
		requestBody, &response)
	if err != nil {
		return "", err
	}

	if len(response.Choices) == 0 {
		return "", permanent(fmt.Errorf("no completion choices returned"))
	}
	return response.Choices[0].Message.Content, nil
}
