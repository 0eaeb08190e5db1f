// Package sms extracts transaction fields from bank and payment SMS text.
package sms

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultTitleMaxLen is how much of the body is used as a title when no
// merchant phrase is found.
const DefaultTitleMaxLen = 80

var (
	amountPattern = regexp.MustCompile(`(?i)(?:\bRs\.?|\bINR|₹)\s?([0-9,]+(?:\.\d{1,2})?)`)
	bankPattern   = regexp.MustCompile(`(?i)(HDFC|ICICI|SBI|State Bank|AXIS|Kotak|PhonePe|Google Pay|GooglePay|GPay|BHIM|Paytm|UPI|NPCI)`)
	titlePattern  = regexp.MustCompile(`(?i)\b(?:at|to|via)\s+([A-Za-z0-9 &.-]{3,40})`)
)

// Fields holds what could be read from one message. Amount is nil when the
// message names no currency amount.
type Fields struct {
	Amount *decimal.Decimal
	Bank   string
	Title  string
}

// HasAmount reports whether a positive amount was found.
func (f Fields) HasAmount() bool {
	return f.Amount != nil
}

// Parser extracts Fields from message text.
type Parser struct {
	titleMaxLen int
}

// NewParser creates a parser. A non-positive titleMaxLen selects the default.
func NewParser(titleMaxLen int) *Parser {
	if titleMaxLen <= 0 {
		titleMaxLen = DefaultTitleMaxLen
	}
	return &Parser{titleMaxLen: titleMaxLen}
}

// Parse extracts amount, bank and title from text.
func (p *Parser) Parse(text string) Fields {
	return Fields{
		Amount: ParseAmount(text),
		Bank:   ParseBank(text),
		Title:  p.Title(text),
	}
}

// ParseAmount returns the first rupee amount in text, or nil. Zero amounts
// are treated as absent.
func ParseAmount(text string) *decimal.Decimal {
	m := amountPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	digits := strings.ReplaceAll(m[1], ",", "")
	if digits == "" {
		return nil
	}
	amount, err := decimal.NewFromString(digits)
	if err != nil || !amount.IsPositive() {
		return nil
	}
	return &amount
}

// ParseBank returns the first bank or payment network named in text, as
// written in the message.
func ParseBank(text string) string {
	m := bankPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// Title returns the merchant following "at", "to" or "via", falling back to
// the start of the message.
func (p *Parser) Title(text string) string {
	if m := titlePattern.FindStringSubmatch(text); m != nil {
		if title := strings.TrimSpace(m[1]); title != "" {
			return title
		}
	}
	return truncate(strings.TrimSpace(text), p.titleMaxLen)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
