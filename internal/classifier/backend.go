package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/smart-captures/internal/common"
	"github.com/Veraticus/smart-captures/internal/llm"
	"github.com/Veraticus/smart-captures/internal/model"
)

// Backend answers a single remote classification request.
type Backend interface {
	Name() string
	Classify(ctx context.Context, text string, amount *decimal.Decimal) (llm.Classification, error)
}

// EndpointBackend posts {text, amount} to a classification function and
// expects {category, confidence} back.
type EndpointBackend struct {
	httpClient *http.Client
	url        string
	token      string
}

// NewEndpointBackend creates a backend for url. token, when set, is sent as a
// bearer token.
func NewEndpointBackend(url, token string, timeout time.Duration) *EndpointBackend {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EndpointBackend{
		url:        url,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name implements Backend.
func (b *EndpointBackend) Name() string { return model.SuggestionSourceEndpoint }

type endpointRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Text   string           `json:"text"`
}

// Classify implements Backend.
func (b *EndpointBackend) Classify(ctx context.Context, text string, amount *decimal.Decimal) (llm.Classification, error) {
	payload, err := json.Marshal(endpointRequest{Text: text, Amount: amount})
	if err != nil {
		return llm.Classification{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(payload))
	if err != nil {
		return llm.Classification{}, &common.RetryableError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return llm.Classification{}, &common.RetryableError{Err: fmt.Errorf("classify request failed: %w", err), Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.Classification{}, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return llm.Classification{}, fmt.Errorf("%w: classify endpoint", common.ErrRateLimit)
	case resp.StatusCode >= 500:
		return llm.Classification{}, &common.RetryableError{
			Err:       fmt.Errorf("classify endpoint error (status %d): %s", resp.StatusCode, string(body)),
			Retryable: true,
		}
	case resp.StatusCode != http.StatusOK:
		return llm.Classification{}, &common.RetryableError{
			Err: fmt.Errorf("classify endpoint error (status %d): %s", resp.StatusCode, string(body)),
		}
	}

	c, err := llm.ParseClassification(string(body))
	if err != nil {
		return llm.Classification{}, &common.RetryableError{Err: err}
	}
	return c, nil
}

// LLMBackend asks a language model directly.
type LLMBackend struct {
	client llm.Client
}

// NewLLMBackend wraps client.
func NewLLMBackend(client llm.Client) *LLMBackend {
	return &LLMBackend{client: client}
}

// Name implements Backend.
func (b *LLMBackend) Name() string { return model.SuggestionSourceLLM }

// Classify implements Backend.
func (b *LLMBackend) Classify(ctx context.Context, text string, amount *decimal.Decimal) (llm.Classification, error) {
	reply, err := b.client.Complete(ctx, llm.SystemJSONOnly, llm.ClassificationPrompt(text, amount, model.Categories))
	if err != nil {
		return llm.Classification{}, err
	}
	c, err := llm.ParseClassification(reply)
	if err != nil {
		return llm.Classification{}, &common.RetryableError{Err: err}
	}
	return c, nil
}
