package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the kind of ledger movement
type TransactionType string

const (
	TransactionTypeDebit     TransactionType = "debit"
	TransactionTypeCredit    TransactionType = "credit"
	TransactionTypeDraw      TransactionType = "draw"
	TransactionTypeRepayment TransactionType = "repayment"
	TransactionTypeDeposit   TransactionType = "deposit"
	TransactionTypeSpend     TransactionType = "spend"
	TransactionTypeRefund    TransactionType = "refund"
	TransactionTypeReversal  TransactionType = "reversal"
)

// TransactionTypes lists every accepted transaction type
var TransactionTypes = []TransactionType{
	TransactionTypeDebit,
	TransactionTypeCredit,
	TransactionTypeDraw,
	TransactionTypeRepayment,
	TransactionTypeDeposit,
	TransactionTypeSpend,
	TransactionTypeRefund,
	TransactionTypeReversal,
}

// String returns the string representation of TransactionType
func (t TransactionType) String() string {
	return string(t)
}

// IsValid checks if the transaction type is valid
func (t TransactionType) IsValid() bool {
	for _, known := range TransactionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsRefundLike reports whether the movement returns money to the company
func (t TransactionType) IsRefundLike() bool {
	return t == TransactionTypeRefund || t == TransactionTypeReversal
}

// TransactionStatus is the settlement state of a ledger entry
type TransactionStatus string

const (
	StatusPosted  TransactionStatus = "Posted"
	StatusPending TransactionStatus = "Pending"
	StatusFailed  TransactionStatus = "Failed"
)

// IsValid checks if the status is one of the known values
func (s TransactionStatus) IsValid() bool {
	return s == StatusPosted || s == StatusPending || s == StatusFailed
}

// CanTransitionTo reports whether a ledger entry may move from s to next.
// Only Pending→Posted and Failed→Pending (retry) are allowed.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusPosted
	case StatusFailed:
		return next == StatusPending
	default:
		return false
	}
}

// Transaction is a ledger entry. It is immutable apart from its status.
type Transaction struct {
	ID          string            `json:"id"`
	Type        TransactionType   `json:"type"`
	Status      TransactionStatus `json:"status"`
	Currency    string            `json:"currency"`
	Amount      decimal.Decimal   `json:"amount"`
	Vendor      string            `json:"vendor"`
	Module      string            `json:"module"`
	Marketplace string            `json:"marketplace"`
	Group       string            `json:"group"`
	CostCenter  string            `json:"costCenter"`
	TaxCode     string            `json:"taxCode"`
	OccurredAt  time.Time         `json:"occurredAt"`
	Reference   string            `json:"reference"`
	Note        string            `json:"note"`
}

// Validate performs basic validation on the Transaction
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("transaction ID cannot be empty")
	}
	if !t.Type.IsValid() {
		return fmt.Errorf("invalid transaction type: %s", t.Type)
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("invalid transaction status: %s", t.Status)
	}
	if strings.TrimSpace(t.Currency) == "" {
		return fmt.Errorf("transaction currency cannot be empty")
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("transaction amount cannot be negative")
	}
	if t.OccurredAt.IsZero() {
		return fmt.Errorf("transaction time cannot be zero")
	}
	return nil
}

// WithStatus returns a copy of the transaction carrying the new status
func (t Transaction) WithStatus(status TransactionStatus) Transaction {
	t.Status = status
	return t
}

// String returns a string representation of the Transaction
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %s, %s %s %s, Vendor: %s, Status: %s}",
		t.ID, t.Type, t.Amount.String(), t.Currency, t.Vendor, t.Status)
}

// InvoiceLine is a billable line item on a supplier invoice. Immutable.
type InvoiceLine struct {
	ID            string          `json:"id"`
	InvoiceNumber string          `json:"invoiceNumber"`
	InvoiceID     string          `json:"invoiceId"`
	Entity        string          `json:"entity"`
	Currency      string          `json:"currency"`
	ServiceDate   time.Time       `json:"serviceDate"`
	Description   string          `json:"description"`
	Vendor        string          `json:"vendor"`
	Module        string          `json:"module"`
	Marketplace   string          `json:"marketplace"`
	Group         string          `json:"group"`
	CostCenter    string          `json:"costCenter"`
	ProjectTag    string          `json:"projectTag"`
	TaxCode       string          `json:"taxCode"`
	Amount        decimal.Decimal `json:"amount"`
}

// Validate performs basic validation on the InvoiceLine
func (l *InvoiceLine) Validate() error {
	if strings.TrimSpace(l.ID) == "" {
		return fmt.Errorf("invoice line ID cannot be empty")
	}
	if strings.TrimSpace(l.Currency) == "" {
		return fmt.Errorf("invoice line currency cannot be empty")
	}
	if !l.Amount.IsPositive() {
		return fmt.Errorf("invoice line amount must be positive")
	}
	if l.ServiceDate.IsZero() {
		return fmt.Errorf("invoice line service date cannot be zero")
	}
	return nil
}

// String returns a string representation of the InvoiceLine
func (l *InvoiceLine) String() string {
	return fmt.Sprintf("InvoiceLine{ID: %s, Invoice: %s, %s %s, Vendor: %s}",
		l.ID, l.InvoiceNumber, l.Amount.String(), l.Currency, l.Vendor)
}

// ParseDecimalFromString parses a decimal value from string with validation
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	// Thousands separators and a leading currency symbol are tolerated.
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "_", "")
	s = strings.TrimLeft(s, "$€£ ")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// ParseTransactionType parses a transaction type case-insensitively
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("invalid transaction type '%s'", s)
	}
	return t, nil
}

// ParseTransactionStatus parses a transaction status case-insensitively
func ParseTransactionStatus(s string) (TransactionStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "posted", "settled":
		return StatusPosted, nil
	case "pending":
		return StatusPending, nil
	case "failed", "declined":
		return StatusFailed, nil
	default:
		return "", fmt.Errorf("invalid transaction status '%s'", s)
	}
}

// ParseTimeWithFormats attempts to parse time from string using multiple common formats
func ParseTimeWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
		"02/01/2006 15:04",
		"02/01/2006",
		"2006/01/02",
		"02 Jan 2006",
		"Jan 2, 2006",
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", s, lastErr)
}

// DaysBetween returns the absolute number of whole calendar days between the
// UTC dates of a and b. Times of day are ignored.
func DaysBetween(a, b time.Time) int {
	da := DayOf(a)
	db := DayOf(b)
	days := int(da.Sub(db).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// DayOf truncates t to midnight UTC of its calendar date
func DayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// NormalizeKey folds a vendor, module or marketplace name for comparison
func NormalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
