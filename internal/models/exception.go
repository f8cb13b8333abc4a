package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ExceptionType classifies a reconciliation problem
type ExceptionType string

const (
	ExceptionFailedCharge   ExceptionType = "FailedCharge"
	ExceptionPartialPayment ExceptionType = "PartialPayment"
	ExceptionDuplicate      ExceptionType = "Duplicate"
	ExceptionUnmatched      ExceptionType = "Unmatched"
	ExceptionRefundPending  ExceptionType = "RefundPending"
)

// IsValid checks if the exception type is known
func (t ExceptionType) IsValid() bool {
	switch t {
	case ExceptionFailedCharge, ExceptionPartialPayment, ExceptionDuplicate, ExceptionUnmatched, ExceptionRefundPending:
		return true
	}
	return false
}

// Severity ranks how urgently an exception needs attention
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// IsValid checks if the severity is known
func (s Severity) IsValid() bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

// ExceptionStatus is the review state of an exception
type ExceptionStatus string

const (
	ExceptionOpen          ExceptionStatus = "Open"
	ExceptionInvestigating ExceptionStatus = "Investigating"
	ExceptionResolved      ExceptionStatus = "Resolved"
)

// ParseExceptionStatus parses a status case-insensitively
func ParseExceptionStatus(s string) (ExceptionStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return ExceptionOpen, nil
	case "investigating":
		return ExceptionInvestigating, nil
	case "resolved":
		return ExceptionResolved, nil
	default:
		return "", fmt.Errorf("invalid exception status '%s'", s)
	}
}

var exceptionTransitions = map[ExceptionStatus][]ExceptionStatus{
	ExceptionOpen:          {ExceptionInvestigating, ExceptionResolved},
	ExceptionInvestigating: {ExceptionResolved, ExceptionOpen},
	ExceptionResolved:      {ExceptionOpen},
}

// CanTransitionTo reports whether an exception may move from s to next
func (s ExceptionStatus) CanTransitionTo(next ExceptionStatus) bool {
	for _, allowed := range exceptionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ExceptionItem flags an unresolved reconciliation issue
type ExceptionItem struct {
	ID            string           `json:"id"`
	Type          ExceptionType    `json:"type"`
	Severity      Severity         `json:"severity"`
	Status        ExceptionStatus  `json:"status"`
	Title         string           `json:"title"`
	Detail        string           `json:"detail"`
	LineID        string           `json:"lineId,omitempty"`
	TransactionID string           `json:"transactionId,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// IsOpen reports whether the exception still needs review
func (e *ExceptionItem) IsOpen() bool {
	return e.Status != ExceptionResolved
}

// Validate performs basic validation on the ExceptionItem
func (e *ExceptionItem) Validate() error {
	if !e.Type.IsValid() {
		return fmt.Errorf("invalid exception type: %s", e.Type)
	}
	if !e.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", e.Severity)
	}
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("exception title cannot be empty")
	}
	return nil
}
