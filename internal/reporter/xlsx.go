package reporter

import (
	"fmt"
	"io"
	"time"

	"corporatepay-reconciliation/internal/reconciler"

	"github.com/xuri/excelize/v2"
)

// Sheet names of the XLSX workbook
const (
	SheetSummary    = "Summary"
	SheetMatches    = "Matches"
	SheetUnmatched  = "Unmatched"
	SheetExceptions = "Exceptions"
)

func (rg *ReportGenerator) generateXLSXReport(report *reconciler.Report, writer io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}
	for _, sheet := range []string{SheetMatches, SheetUnmatched, SheetExceptions} {
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	s := report.Summary
	summaryRows := [][]interface{}{
		{"Generated", s.GeneratedAt.Format(time.RFC3339)},
		{"Invoice lines", s.TotalLines},
		{"Fully matched lines", s.FullyMatchedLines},
		{"Partially matched lines", s.PartiallyMatchedLines},
		{"Unmatched lines", s.UnmatchedLines},
		{"Ledger transactions", s.TotalTransactions},
		{"Matched transactions", s.MatchedTransactions},
		{"Unmatched transactions", s.UnmatchedTransactions},
		{"Auto matches", s.AutoMatches},
		{"Manual matches", s.ManualMatches},
		{"Match rate", s.MatchRate},
		{"Open exceptions", s.OpenExceptions},
	}
	for _, t := range s.Totals {
		summaryRows = append(summaryRows,
			[]interface{}{t.Currency + " invoiced", t.Invoiced.InexactFloat64()},
			[]interface{}{t.Currency + " matched", t.Matched.InexactFloat64()},
			[]interface{}{t.Currency + " outstanding", t.Outstanding.InexactFloat64()},
		)
	}
	if err := writeSheet(f, SheetSummary, []string{"Metric", "Value"}, summaryRows, bold); err != nil {
		return err
	}

	matchRows := make([][]interface{}, 0, len(report.Matches))
	for _, m := range report.Matches {
		matchRows = append(matchRows, []interface{}{
			m.ID, m.LineID, m.TransactionID, m.Amount.InexactFloat64(), string(m.Method),
			m.Confidence, m.RuleID, m.CreatedBy, m.CreatedAt.UTC().Format(time.RFC3339), m.Note,
		})
	}
	if err := writeSheet(f, SheetMatches, MatchCSVHeader, matchRows, bold); err != nil {
		return err
	}

	unmatchedRows := make([][]interface{}, 0, len(report.UnmatchedLines)+len(report.UnmatchedTransactions))
	for _, lb := range report.UnmatchedLines {
		unmatchedRows = append(unmatchedRows, []interface{}{
			"line", lb.ID, lb.Vendor, lb.Currency, lb.Amount.InexactFloat64(), lb.Remaining.InexactFloat64(),
			lb.ServiceDate.Format("2006-01-02"),
		})
	}
	for _, tb := range report.UnmatchedTransactions {
		unmatchedRows = append(unmatchedRows, []interface{}{
			"transaction", tb.ID, tb.Vendor, tb.Currency, tb.Amount.InexactFloat64(), tb.Remaining.InexactFloat64(),
			tb.OccurredAt.UTC().Format("2006-01-02"),
		})
	}
	if err := writeSheet(f, SheetUnmatched,
		[]string{"kind", "id", "vendor", "currency", "amount", "remaining", "date"}, unmatchedRows, bold); err != nil {
		return err
	}

	exceptionRows := make([][]interface{}, 0, len(report.Exceptions))
	for _, e := range report.Exceptions {
		amount := ""
		if e.Amount != nil {
			amount = e.Amount.String()
		}
		exceptionRows = append(exceptionRows, []interface{}{
			e.ID, string(e.Type), string(e.Severity), string(e.Status), e.Title, e.Detail,
			e.LineID, e.TransactionID, amount, e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	if err := writeSheet(f, SheetExceptions,
		[]string{"id", "type", "severity", "status", "title", "detail", "line_id", "transaction_id", "amount", "created_at"},
		exceptionRows, bold); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.Write(writer); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]interface{}, headerStyle int) error {
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("failed to write %s header: %w", sheet, err)
		}
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("failed to style %s header: %w", sheet, err)
	}

	for r, row := range rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("failed to write %s row %d: %w", sheet, r+2, err)
			}
		}
	}
	return nil
}
