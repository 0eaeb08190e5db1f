package model

import "fmt"

// Suggestion sources.
const (
	SuggestionSourceKeyword  = "keyword"
	SuggestionSourceEndpoint = "endpoint"
	SuggestionSourceLLM      = "llm"
)

// Suggestion is a classifier's best guess for a category.
// An empty Category means there is no suggestion.
type Suggestion struct {
	Category   string
	Source     string
	Confidence float64
}

// NoSuggestion is returned when a classifier has nothing useful to offer.
var NoSuggestion = Suggestion{}

// Validate ensures the suggestion has sane values.
func (s Suggestion) Validate() error {
	if s.Confidence < 0.0 || s.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0, got %.2f", s.Confidence)
	}
	if s.Category == "" && s.Confidence > 0 {
		return fmt.Errorf("confidence %.2f given without a category", s.Confidence)
	}
	return nil
}

// Usable reports whether the suggestion clears the confidence threshold.
func (s Suggestion) Usable(threshold float64) bool {
	return s.Category != "" && s.Confidence >= threshold
}
