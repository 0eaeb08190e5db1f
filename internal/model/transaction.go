package model

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionSourceSMS marks ledger rows created from an SMS capture.
const TransactionSourceSMS = "sms"

// Transaction is a confirmed expense stored in the ledger.
type Transaction struct {
	Date      time.Time
	CreatedAt time.Time
	Amount    decimal.Decimal
	ID        string
	UserID    string
	Name      string
	Category  string
	Source    string // Where the transaction came from (sms, manual)
	SourceRef string // Identifier in the source system, e.g. the candidate ID
}

// GenerateHash creates a stable hash for duplicate detection across sources.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%s:%s",
		t.Date.Format("2006-01-02"),
		t.Amount.StringFixed(2),
		t.Name,
		t.UserID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
