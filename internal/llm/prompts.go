package llm

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// SystemJSONOnly instructs the model to answer with a bare JSON object.
const SystemJSONOnly = "You read bank and payment SMS messages. You MUST respond with ONLY a valid JSON object. " +
	"Do not include any explanatory text, markdown formatting, or commentary before or after the JSON."

// ClassificationPrompt asks for the closest category for a message.
func ClassificationPrompt(text string, amount *decimal.Decimal, categories []string) string {
	var sb strings.Builder
	sb.WriteString("Classify this transaction message into exactly one category.\n")
	fmt.Fprintf(&sb, "Categories: %s\n", strings.Join(categories, ", "))
	if amount != nil {
		fmt.Fprintf(&sb, "Amount: %s\n", amount.StringFixed(2))
	}
	fmt.Fprintf(&sb, "Message: %s\n", text)
	sb.WriteString(`Respond as {"category":"<one of the categories>","confidence":<0.0-1.0>}`)
	return sb.String()
}

// ExtractionPrompt asks for the transaction fields of a message.
func ExtractionPrompt(text string, categories []string) string {
	var sb strings.Builder
	sb.WriteString("From this SMS return JSON:\n")
	sb.WriteString(`{"amount":A,"category":"C","date":"D","name":"N"}` + "\n")
	fmt.Fprintf(&sb, "A=amount, C from [%s], D=date in the message or empty (ISO8601), N=merchant.\n", strings.Join(categories, ","))
	fmt.Fprintf(&sb, "SMS: %s", text)
	return sb.String()
}
