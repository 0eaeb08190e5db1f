package classifier

import (
	"context"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/smart-captures/internal/model"
)

// KeywordRule maps merchant keywords to a category.
type KeywordRule struct {
	Category string
	Keywords []string
}

// DefaultRules is checked in order; the first match wins.
func DefaultRules() []KeywordRule {
	return []KeywordRule{
		{Category: model.CategoryFood, Keywords: []string{"zomato", "swiggy"}},
		{Category: model.CategoryTravel, Keywords: []string{"uber", "ola"}},
		{Category: model.CategoryShopping, Keywords: []string{"amazon", "flipkart"}},
		{Category: model.CategoryBills, Keywords: []string{"rent", "electricity"}},
		{Category: model.CategoryEntertainment, Keywords: []string{"netflix", "spotify"}},
		{Category: model.CategoryHealth, Keywords: []string{"pharmacy", "doctor"}},
	}
}

// Keyword confidence levels.
const (
	keywordConfidence    = 0.9
	largeAmountBoost     = 0.02
	maxKeywordConfidence = 0.99
	largeBillConfidence  = 0.6
	smallFoodConfidence  = 0.55
)

var (
	largeAmount = decimal.NewFromInt(10000)
	smallAmount = decimal.NewFromInt(500)
)

type compiledRule struct {
	pattern  *regexp.Regexp
	category string
}

// Keyword is the local classifier.
type Keyword struct {
	rules []compiledRule
}

// NewKeyword creates a keyword classifier with DefaultRules.
func NewKeyword() *Keyword {
	return NewKeywordWithRules(DefaultRules())
}

// NewKeywordWithRules creates a keyword classifier. A keyword matches at the
// start of a word, so "ola" matches "Ola" and "olacabs" but not "cola".
func NewKeywordWithRules(rules []KeywordRule) *Keyword {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if len(r.Keywords) == 0 {
			continue
		}
		quoted := make([]string, len(r.Keywords))
		for i, kw := range r.Keywords {
			quoted[i] = regexp.QuoteMeta(strings.ToLower(kw))
		}
		compiled = append(compiled, compiledRule{
			category: r.Category,
			pattern:  regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)`),
		})
	}
	return &Keyword{rules: compiled}
}

// Classify implements Classifier.
func (k *Keyword) Classify(_ context.Context, text string, amount *decimal.Decimal) model.Suggestion {
	if strings.TrimSpace(text) == "" {
		return model.NoSuggestion
	}

	large := amount != nil && amount.GreaterThan(largeAmount)

	for _, rule := range k.rules {
		if !rule.pattern.MatchString(text) {
			continue
		}
		confidence := keywordConfidence
		if large {
			confidence += largeAmountBoost
		}
		if confidence > maxKeywordConfidence {
			confidence = maxKeywordConfidence
		}
		return model.Suggestion{Category: rule.category, Confidence: confidence, Source: model.SuggestionSourceKeyword}
	}

	switch {
	case large:
		return model.Suggestion{Category: model.CategoryBills, Confidence: largeBillConfidence, Source: model.SuggestionSourceKeyword}
	case amount != nil && amount.IsPositive() && amount.LessThan(smallAmount):
		return model.Suggestion{Category: model.CategoryFood, Confidence: smallFoodConfidence, Source: model.SuggestionSourceKeyword}
	default:
		return model.NoSuggestion
	}
}
