package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/Veraticus/smart-captures/internal/common"
	"github.com/Veraticus/smart-captures/internal/llm"
	"github.com/Veraticus/smart-captures/internal/metrics"
	"github.com/Veraticus/smart-captures/internal/model"
	"github.com/Veraticus/smart-captures/internal/service"
)

// DefaultMinConfidence is the threshold below which a remote answer is
// discarded in favor of the keyword fallback.
const DefaultMinConfidence = 0.5

// Fallback reasons recorded in metrics.
const (
	reasonError         = "error"
	reasonMalformed     = "malformed"
	reasonUnknown       = "unknown_category"
	reasonLowConfidence = "low_confidence"
	reasonRateLimited   = "rate_limited"
)

// Remote classifies through a Backend with caching, rate limiting and retries.
type Remote struct {
	backend       Backend
	fallback      Classifier
	cache         *cache.Cache
	limiter       *rate.Limiter
	metrics       *metrics.Metrics
	logger        *slog.Logger
	retry         service.RetryOptions
	minConfidence float64
}

// NewRemote creates a remote classifier. fallback answers whenever the
// backend cannot.
func NewRemote(backend Backend, fallback Classifier, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Remote {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 15 * time.Minute
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2,
			Jitter:       0.2,
		}
	}
	cfg.Retry.Operation = "classify via " + backend.Name()
	if m == nil {
		m = metrics.Nop()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Remote{
		backend:       backend,
		fallback:      fallback,
		cache:         cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		limiter:       rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		metrics:       m,
		logger:        logger.With("component", "classifier", "backend", backend.Name()),
		retry:         cfg.Retry,
		minConfidence: cfg.MinConfidence,
	}
}

func cacheKey(text string, amount *decimal.Decimal) string {
	if amount == nil {
		return text
	}
	return amount.String() + "|" + text
}

// Classify implements Classifier.
func (r *Remote) Classify(ctx context.Context, text string, amount *decimal.Decimal) model.Suggestion {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.NoSuggestion
	}

	key := cacheKey(text, amount)
	if cached, ok := r.cache.Get(key); ok {
		if s, ok := cached.(model.Suggestion); ok {
			return s
		}
	}

	suggestion, reason, err := r.classifyRemote(ctx, text, amount)
	if err != nil || reason != "" {
		r.metrics.ClassifierFallback.WithLabelValues(reason).Inc()
		r.logger.Debug("Using keyword fallback", "reason", reason, "error", err)
		return r.fallback.Classify(ctx, text, amount)
	}

	r.cache.Set(key, suggestion, cache.DefaultExpiration)
	return suggestion
}

// classifyRemote returns a usable suggestion, or the reason it could not.
func (r *Remote) classifyRemote(ctx context.Context, text string, amount *decimal.Decimal) (model.Suggestion, string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return model.NoSuggestion, reasonRateLimited, err
	}

	var result llm.Classification
	opts := r.retry
	opts.OnRetry = func(attempt int, err error) {
		r.metrics.ClassifierRetries.Inc()
		r.logger.Debug("Classification attempt failed", "attempt", attempt, "error", err)
	}
	err := common.WithRetry(ctx, func(int) error {
		var callErr error
		result, callErr = r.backend.Classify(ctx, text, amount)
		return callErr
	}, opts)
	if err != nil {
		if errors.Is(err, common.ErrMalformedResponse) {
			return model.NoSuggestion, reasonMalformed, err
		}
		return model.NoSuggestion, reasonError, err
	}

	category, ok := model.NormalizeCategory(result.Category)
	if !ok {
		return model.NoSuggestion, reasonUnknown, fmt.Errorf("%w: category %q", common.ErrMalformedResponse, result.Category)
	}

	suggestion := model.Suggestion{
		Category:   category,
		Confidence: result.Confidence,
		Source:     r.backend.Name(),
	}
	if !suggestion.Usable(r.minConfidence) {
		return model.NoSuggestion, reasonLowConfidence, nil
	}
	return suggestion, "", nil
}
