// Package approvals keeps the CorporatePay approvals inbox: a keyed store of
// approval items, a small status workflow and a per-item audit trail.
package approvals

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the decision state of an approval item
type Status string

const (
	StatusPending   Status = "Pending"
	StatusApproved  Status = "Approved"
	StatusRejected  Status = "Rejected"
	StatusEscalated Status = "Escalated"
)

var statusTransitions = map[Status][]Status{
	StatusPending:   {StatusApproved, StatusRejected, StatusEscalated},
	StatusEscalated: {StatusApproved, StatusRejected},
}

// ParseStatus parses a status name case-insensitively
func ParseStatus(s string) (Status, error) {
	for _, st := range []Status{StatusPending, StatusApproved, StatusRejected, StatusEscalated} {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid approval status: %s", s)
}

// IsValid reports whether s is a known status
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusEscalated:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no transition leaves s
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransitionTo reports whether s may move to next
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AuditEntry records one status change
type AuditEntry struct {
	At      time.Time `json:"at"`
	Actor   string    `json:"actor"`
	From    Status    `json:"from"`
	To      Status    `json:"to"`
	Comment string    `json:"comment,omitempty"`
}

// ApprovalItem is one request waiting for, or past, a decision
type ApprovalItem struct {
	ID         string          `json:"id"`
	Workflow   string          `json:"workflow"`
	Title      string          `json:"title"`
	Requester  string          `json:"requester"`
	Department string          `json:"department"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Status     Status          `json:"status"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	Audit      []AuditEntry    `json:"audit"`
}

// Clone returns a copy that shares no audit slice with a
func (a ApprovalItem) Clone() ApprovalItem {
	a.Audit = append([]AuditEntry(nil), a.Audit...)
	return a
}

// Filter narrows List; empty fields match everything
type Filter struct {
	Workflow string
	Status   Status
}

// Matches reports whether item passes the filter
func (f Filter) Matches(item ApprovalItem) bool {
	if f.Workflow != "" && !strings.EqualFold(f.Workflow, item.Workflow) {
		return false
	}
	if f.Status != "" && f.Status != item.Status {
		return false
	}
	return true
}

// Store is a keyed approval item store. Put replaces the whole record for
// its id. Get reports a missing id with found == false and a nil error.
type Store interface {
	Get(ctx context.Context, id string) (item ApprovalItem, found bool, err error)
	List(ctx context.Context) ([]ApprovalItem, error)
	Put(ctx context.Context, item ApprovalItem) error
	Count(ctx context.Context) (int, error)
	Close() error
}

func sortItems(items []ApprovalItem) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
}
