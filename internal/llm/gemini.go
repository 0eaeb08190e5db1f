package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const geminiDefaultURL = "https://generativelanguage.googleapis.com"

// geminiClient implements the Client interface for the Gemini generateContent API.
type geminiClient struct {
	httpClient *http.Client
	cfg        Config
}

func newGeminiClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	cfg = cfg.withDefaults("gemini-2.0-flash-lite", geminiDefaultURL)
	return &geminiClient{
		cfg:        cfg,
		httpClient: newHTTPClient(cfg.Timeout),
	}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

// Complete sends a generateContent request.
func (c *geminiClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	requestBody := map[string]any{
		"systemInstruction": geminiContent{Parts: []geminiPart{{Text: system}}},
		"contents": []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		"generationConfig": map[string]any{
			"temperature":     c.cfg.Temperature,
			"maxOutputTokens": c.cfg.MaxTokens,
		},
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Model)

	var response geminiResponse
	err := postJSON(ctx, c.httpClient, "gemini", url,
		map[string]string{"x-goog-api-key": c.cfg.APIKey},
		requestBody, &response)
	if err != nil {
		return "", err
	}

	if len(response.Candidates) == 0 || len(response.Candidates[0].Content.Parts) == 0 {
		return "", permanent(fmt.Errorf("no candidates returned"))
	}

	var sb strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
