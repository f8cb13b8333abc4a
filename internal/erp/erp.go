// Package erp resolves ledger transactions to general-ledger coding.
package erp

import (
	"corporatepay-reconciliation/internal/models"

	"github.com/shopspring/decimal"
)

// scopePrecedence is the order in which scoped mappings are tried
var scopePrecedence = []models.MappingScope{
	models.ScopeVendor,
	models.ScopeMarketplace,
	models.ScopeModule,
}

// JournalRow is one ERP-coded ledger entry
type JournalRow struct {
	TransactionID string                   `json:"transactionId"`
	OccurredAt    string                   `json:"occurredAt"`
	Type          models.TransactionType   `json:"type"`
	Status        models.TransactionStatus `json:"status"`
	Currency      string                   `json:"currency"`
	Amount        decimal.Decimal          `json:"amount"`
	Vendor        string                   `json:"vendor"`
	MappingID     string                   `json:"mappingId"`
	Scope         models.MappingScope      `json:"scope"`
	GLCode        string                   `json:"glCode"`
	CostCenter    string                   `json:"costCenter"`
	TaxCode       string                   `json:"taxCode"`
	Unresolved    bool                     `json:"unresolved"`
}

// ResolveMapping picks the mapping for tx among the enabled mappings: an exact
// vendor key first, then marketplace, then module, then the first Default
// mapping. Within a scope the earliest mapping wins. Returns nil when nothing
// applies.
func ResolveMapping(tx *models.Transaction, mappings []models.ErpMapping) *models.ErpMapping {
	for _, scope := range scopePrecedence {
		value := scopeValue(tx, scope)
		if value == "" {
			continue
		}
		for i := range mappings {
			m := &mappings[i]
			if m.Enabled && m.Scope == scope && m.Key == value {
				return m
			}
		}
	}

	for i := range mappings {
		m := &mappings[i]
		if m.Enabled && m.Scope == models.ScopeDefault && m.Key == models.DefaultMappingKey {
			return m
		}
	}
	return nil
}

func scopeValue(tx *models.Transaction, scope models.MappingScope) string {
	switch scope {
	case models.ScopeVendor:
		return tx.Vendor
	case models.ScopeMarketplace:
		return tx.Marketplace
	case models.ScopeModule:
		return tx.Module
	}
	return ""
}

// BuildJournal codes every transaction in ledger order. The mapping's cost
// center and tax code take precedence; the transaction's own values fill the
// gaps. Rows with no mapping are flagged Unresolved.
func BuildJournal(transactions []models.Transaction, mappings []models.ErpMapping) []JournalRow {
	rows := make([]JournalRow, 0, len(transactions))
	for i := range transactions {
		tx := &transactions[i]
		row := JournalRow{
			TransactionID: tx.ID,
			OccurredAt:    tx.OccurredAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			Type:          tx.Type,
			Status:        tx.Status,
			Currency:      tx.Currency,
			Amount:        tx.Amount,
			Vendor:        tx.Vendor,
			CostCenter:    tx.CostCenter,
			TaxCode:       tx.TaxCode,
		}

		m := ResolveMapping(tx, mappings)
		if m == nil {
			row.Unresolved = true
			rows = append(rows, row)
			continue
		}

		row.MappingID = m.ID
		row.Scope = m.Scope
		row.GLCode = m.GLCode
		if m.CostCenter != "" {
			row.CostCenter = m.CostCenter
		}
		if m.TaxCode != "" {
			row.TaxCode = m.TaxCode
		}
		rows = append(rows, row)
	}
	return rows
}

// Summary counts journal rows per GL code; unresolved rows are keyed "".
func Summary(rows []JournalRow) map[string]int {
	counts := make(map[string]int)
	for _, r := range rows {
		counts[r.GLCode]++
	}
	return counts
}
