package matcher

import (
	"fmt"

	"corporatepay-reconciliation/internal/models"

	"github.com/shopspring/decimal"
)

// DuplicateGroup represents a group of potentially duplicate transactions
type DuplicateGroup struct {
	GroupID      string               `json:"groupId"`
	Transactions []models.Transaction `json:"transactions"`
	Reason       string               `json:"reason"`
}

// Anomaly is a ledger condition that deserves an exception
type Anomaly struct {
	Type          models.ExceptionType `json:"type"`
	Severity      models.Severity      `json:"severity"`
	TransactionID string               `json:"transactionId"`
	Amount        decimal.Decimal      `json:"amount"`
	Title         string               `json:"title"`
	Detail        string               `json:"detail"`
}

// DetectDuplicates groups transactions sharing vendor, currency, amount and
// calendar day. Groups are returned in ledger order of their first member.
func DetectDuplicates(transactions []models.Transaction) []DuplicateGroup {
	type key struct {
		vendor, currency, amount, day string
	}

	order := []key{}
	groups := make(map[key][]models.Transaction)
	for _, tx := range transactions {
		k := key{
			vendor:   models.NormalizeKey(tx.Vendor),
			currency: tx.Currency,
			amount:   tx.Amount.String(),
			day:      dayKey(tx.OccurredAt),
		}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], tx)
	}

	var result []DuplicateGroup
	for _, k := range order {
		members := groups[k]
		if len(members) < 2 {
			continue
		}
		result = append(result, DuplicateGroup{
			GroupID:      fmt.Sprintf("DUP_%s", members[0].ID),
			Transactions: members,
			Reason:       generateDuplicateReason(members),
		})
	}
	return result
}

func generateDuplicateReason(members []models.Transaction) string {
	first := members[0]
	return fmt.Sprintf("Found %d %s transactions from %s for %s %s on %s",
		len(members), first.Type, first.Vendor, first.Amount.String(), first.Currency, dayKey(first.OccurredAt))
}

// DetectAnomalies scans the ledger for failed charges, refunds still pending
// and duplicates. Each duplicate after the first member of its group yields
// one anomaly.
func DetectAnomalies(transactions []models.Transaction) []Anomaly {
	var anomalies []Anomaly

	for _, tx := range transactions {
		switch {
		case tx.Status == models.StatusFailed:
			anomalies = append(anomalies, Anomaly{
				Type:          models.ExceptionFailedCharge,
				Severity:      models.SeverityHigh,
				TransactionID: tx.ID,
				Amount:        tx.Amount,
				Title:         fmt.Sprintf("Failed charge %s", tx.Reference),
				Detail:        fmt.Sprintf("%s %s %s at %s failed", tx.Type, tx.Amount.String(), tx.Currency, tx.Vendor),
			})
		case tx.Status == models.StatusPending && tx.Type.IsRefundLike():
			anomalies = append(anomalies, Anomaly{
				Type:          models.ExceptionRefundPending,
				Severity:      models.SeverityMedium,
				TransactionID: tx.ID,
				Amount:        tx.Amount,
				Title:         fmt.Sprintf("Refund pending %s", tx.Reference),
				Detail:        fmt.Sprintf("%s of %s %s from %s has not settled", tx.Type, tx.Amount.String(), tx.Currency, tx.Vendor),
			})
		}
	}

	for _, group := range DetectDuplicates(transactions) {
		for _, tx := range group.Transactions[1:] {
			anomalies = append(anomalies, Anomaly{
				Type:          models.ExceptionDuplicate,
				Severity:      models.SeverityMedium,
				TransactionID: tx.ID,
				Amount:        tx.Amount,
				Title:         fmt.Sprintf("Possible duplicate of %s", group.Transactions[0].ID),
				Detail:        group.Reason,
			})
		}
	}

	return anomalies
}
