package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Veraticus/smart-captures/internal/common"
)

// Client defines the interface for LLM providers.
type Client interface {
	// Complete sends one system instruction and one user prompt and returns
	// the model's text reply.
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string // Overrides the provider endpoint, mainly for tests
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

func (c Config) withDefaults(model, baseURL string) Config {
	if c.Model == "" {
		c.Model = model
	}
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 256
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// postJSON sends body to url and decodes a 200 response into out. Transport,
// rate limit and server errors may be retried; other failures may not.
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return permanent(fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &common.RetryableError{Err: fmt.Errorf("%s request failed: %w", provider, err), Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s API (status %d)", common.ErrRateLimit, provider, resp.StatusCode)
	case resp.StatusCode >= 500:
		return &common.RetryableError{Err: fmt.Errorf("%s API error (status %d): %s", provider, resp.StatusCode, string(respBody)), Retryable: true}
	case resp.StatusCode != http.StatusOK:
		return permanent(fmt.Errorf("%s API error (status %d): %s", provider, resp.StatusCode, string(respBody)))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return permanent(fmt.Errorf("%w: %s: %w", common.ErrMalformedResponse, provider, err))
	}
	return nil
}

func permanent(err error) error {
	return &common.RetryableError{Err: err, Retryable: false}
}
