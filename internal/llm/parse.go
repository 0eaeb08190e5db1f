package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/smart-captures/internal/common"
)

// Classification is a category guess returned by a model.
type Classification struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Extraction holds the fields a model read from a message. Amount is nil and
// Date is zero when the model could not provide them.
type Extraction struct {
	Date     time.Time
	Amount   *decimal.Decimal
	Category string
	Name     string
}

// cleanMarkdownWrapper strips ```json fences and any prose around the
// outermost JSON object.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```JSON")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
		content = strings.TrimSpace(content)
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}

// ParseClassification decodes a {"category","confidence"} reply. A
// confidence outside [0,1] makes the reply malformed.
func ParseClassification(content string) (Classification, error) {
	var c Classification
	if err := json.Unmarshal([]byte(cleanMarkdownWrapper(content)), &c); err != nil {
		return Classification{}, fmt.Errorf("%w: %w", common.ErrMalformedResponse, err)
	}
	c.Category = strings.TrimSpace(c.Category)
	if c.Category == "" {
		return Classification{}, fmt.Errorf("%w: no category found in response", common.ErrMalformedResponse)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return Classification{}, fmt.Errorf("%w: confidence %.2f out of range", common.ErrMalformedResponse, c.Confidence)
	}
	return c, nil
}

var extractionDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
}

// ParseExtraction decodes an {"amount","category","date","name"} reply.
// Unusable fields are left empty rather than failing the whole reply.
func ParseExtraction(content string) (Extraction, error) {
	var raw struct {
		Amount   *decimal.Decimal `json:"amount"`
		Category string           `json:"category"`
		Date     string           `json:"date"`
		Name     string           `json:"name"`
	}
	if err := json.Unmarshal([]byte(cleanMarkdownWrapper(content)), &raw); err != nil {
		return Extraction{}, fmt.Errorf("%w: %w", common.ErrMalformedResponse, err)
	}

	out := Extraction{
		Category: strings.TrimSpace(raw.Category),
		Name:     strings.TrimSpace(raw.Name),
	}
	if raw.Amount != nil && raw.Amount.IsPositive() {
		out.Amount = raw.Amount
	}
	date := strings.TrimSpace(raw.Date)
	for _, layout := range extractionDateLayouts {
		if t, err := time.Parse(layout, date); err == nil {
			out.Date = t
			break
		}
	}
	return out, nil
}
