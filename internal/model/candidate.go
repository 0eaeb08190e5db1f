// Package model defines the core domain models used throughout the application.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CandidateStatus is the review state of a detected transaction.
type CandidateStatus string

// Candidate status constants.
const (
	StatusPending CandidateStatus = "pending"
	StatusAdded   CandidateStatus = "added"
	StatusIgnored CandidateStatus = "ignored"
)

// IsValid reports whether s is one of the known statuses.
func (s CandidateStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusAdded, StatusIgnored:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status can no longer change.
func (s CandidateStatus) IsTerminal() bool {
	return s == StatusAdded || s == StatusIgnored
}

// PendingCandidate is a transaction detected from an SMS that awaits the
// user's decision. JSON names follow the persisted queue format.
type PendingCandidate struct {
	OccurredAt        time.Time       `json:"date" validate:"required"`
	Amount            decimal.Decimal `json:"amount" validate:"gt=0"`
	ID                string          `json:"id" validate:"required"`
	RawText           string          `json:"raw_text" validate:"required"`
	SuggestedTitle    string          `json:"title,omitempty"`
	SuggestedBank     string          `json:"bank,omitempty"`
	SuggestedCategory string          `json:"category_suggested,omitempty"`
	Status            CandidateStatus `json:"status" validate:"required,oneof=pending added ignored"`
}

// IsPending reports whether the candidate still needs a decision.
func (c PendingCandidate) IsPending() bool {
	return c.Status == StatusPending
}

// DisplayName picks the most helpful label for the candidate.
func (c PendingCandidate) DisplayName() string {
	switch {
	case c.SuggestedBank != "":
		return c.SuggestedBank
	case c.SuggestedTitle != "":
		return c.SuggestedTitle
	default:
		return "Bank"
	}
}

// String implements fmt.Stringer for log output.
func (c PendingCandidate) String() string {
	return fmt.Sprintf("%s %s %s (%s)", c.ID, c.Amount.StringFixed(2), c.DisplayName(), c.Status)
}
