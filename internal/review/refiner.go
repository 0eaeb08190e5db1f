package review

import (
	"context"
	"fmt"

	"github.com/Veraticus/smart-captures/internal/llm"
	"github.com/Veraticus/smart-captures/internal/model"
)

// Refiner re-reads a candidate's raw text just before it is accepted and
// returns whatever fields it can improve on.
type Refiner interface {
	Refine(ctx context.Context, text string) (llm.Extraction, error)
}

// LLMRefiner asks a language model for {amount, category, date, name}.
type LLMRefiner struct {
	client llm.Client
}

// NewLLMRefiner creates a refiner backed by client.
func NewLLMRefiner(client llm.Client) *LLMRefiner {
	return &LLMRefiner{client: client}
}

// Refine implements Refiner.
func (r *LLMRefiner) Refine(ctx context.Context, text string) (llm.Extraction, error) {
	reply, err := r.client.Complete(ctx, llm.SystemJSONOnly, llm.ExtractionPrompt(text, model.Categories))
	if err != nil {
		return llm.Extraction{}, fmt.Errorf("extraction request failed: %w", err)
	}
	return llm.ParseExtraction(reply)
}
