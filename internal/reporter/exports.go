package reporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"corporatepay-reconciliation/internal/erp"
	"corporatepay-reconciliation/internal/models"
)

// LedgerCSVHeader is the fixed header of the ledger export. The ledger
// parser reads it back without aliases.
var LedgerCSVHeader = []string{
	"id", "type", "status", "currency", "amount", "vendor", "module", "marketplace",
	"group", "costCenter", "taxCode", "occurredAt", "reference", "note",
}

// JournalCSVHeader is the header of the ERP journal export
var JournalCSVHeader = []string{
	"transactionId", "occurredAt", "type", "status", "currency", "amount", "vendor",
	"mappingId", "scope", "glCode", "costCenter", "taxCode", "unresolved",
}

// WriteLedgerCSV writes transactions in ledger order
func WriteLedgerCSV(w io.Writer, transactions []models.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(LedgerCSVHeader); err != nil {
		return fmt.Errorf("failed to write ledger header: %w", err)
	}

	for _, tx := range transactions {
		record := []string{
			tx.ID,
			string(tx.Type),
			string(tx.Status),
			tx.Currency,
			tx.Amount.String(),
			tx.Vendor,
			tx.Module,
			tx.Marketplace,
			tx.Group,
			tx.CostCenter,
			tx.TaxCode,
			tx.OccurredAt.UTC().Format(time.RFC3339),
			tx.Reference,
			tx.Note,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write ledger row %s: %w", tx.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteJournalCSV writes one ERP journal row per transaction
func WriteJournalCSV(w io.Writer, rows []erp.JournalRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(JournalCSVHeader); err != nil {
		return fmt.Errorf("failed to write journal header: %w", err)
	}

	for _, row := range rows {
		record := []string{
			row.TransactionID,
			row.OccurredAt,
			string(row.Type),
			string(row.Status),
			row.Currency,
			row.Amount.String(),
			row.Vendor,
			row.MappingID,
			string(row.Scope),
			row.GLCode,
			row.CostCenter,
			row.TaxCode,
			strconv.FormatBool(row.Unresolved),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write journal row %s: %w", row.TransactionID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
