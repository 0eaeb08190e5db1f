// Package classifier suggests an expense category for a message.
//
// Keyword runs locally. Remote asks an HTTP endpoint or a language model and
// falls back to Keyword whenever the remote answer is missing, malformed or
// not confident enough.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/smart-captures/internal/common"
	"github.com/Veraticus/smart-captures/internal/llm"
	"github.com/Veraticus/smart-captures/internal/metrics"
	"github.com/Veraticus/smart-captures/internal/model"
	"github.com/Veraticus/smart-captures/internal/service"
)

// Classifier suggests a category. It never fails: NoSuggestion is returned
// when nothing useful can be said.
type Classifier interface {
	Classify(ctx context.Context, text string, amount *decimal.Decimal) model.Suggestion
}

// Modes accepted by New.
const (
	ModeKeyword  = "keyword"
	ModeEndpoint = "endpoint"
	ModeLLM      = "llm"
)

// Config selects and tunes the classifier.
type Config struct {
	Mode          string
	EndpointURL   string
	EndpointToken string
	LLM           llm.Config
	Retry         service.RetryOptions
	MinConfidence float64
	CacheTTL      time.Duration
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

// New builds the classifier selected by cfg.Mode.
func New(cfg Config, m *metrics.Metrics, logger *slog.Logger) (Classifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	keyword := NewKeyword()

	switch strings.ToLower(cfg.Mode) {
	case "", ModeKeyword:
		return keyword, nil
	case ModeEndpoint:
		if cfg.EndpointURL == "" {
			return nil, fmt.Errorf("%w: classifier endpoint URL", common.ErrMissingConfig)
		}
		backend := NewEndpointBackend(cfg.EndpointURL, cfg.EndpointToken, cfg.Timeout)
		return NewRemote(backend, keyword, cfg, m, logger), nil
	case ModeLLM:
		client, err := llm.NewClient(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
		}
		return NewRemote(NewLLMBackend(client), keyword, cfg, m, logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown classifier mode %q", common.ErrInvalidConfig, cfg.Mode)
	}
}
