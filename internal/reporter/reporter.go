// Package reporter renders reconciliation reports and workspace exports.
//
// Supported output formats:
//   - Console: human-readable text with locale-aware number formatting
//   - JSON: the full report document, two-space indented
//   - CSV: one row per committed match
//   - XLSX: a workbook with Summary, Matches, Unmatched and Exceptions sheets
//
// The ledger and ERP journal exports live in exports.go.
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatJSON})
//	err = generator.GenerateReport(ws.Report(), os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"corporatepay-reconciliation/internal/models"
	"corporatepay-reconciliation/internal/reconciler"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
	FormatXLSX    OutputFormat = "xlsx"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV, FormatXLSX:
		return true
	default:
		return false
	}
}

// ParseOutputFormat parses a format name case-insensitively
func ParseOutputFormat(s string) (OutputFormat, error) {
	f := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if !f.IsValid() {
		return "", fmt.Errorf("invalid output format: %s (valid: console, json, csv, xlsx)", s)
	}
	return f, nil
}

// ContentType returns the MIME type of the format
func (f OutputFormat) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/plain; charset=utf-8"
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeMatches    bool `json:"include_matches"`
	IncludeExceptions bool `json:"include_exceptions"`
	IncludeAudit      bool `json:"include_audit"`

	// MaxListed caps each console listing; the rest is summarised
	MaxListed int `json:"max_listed"`

	// Language selects the console number format, e.g. "en" or "de"
	Language string `json:"language"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:            FormatConsole,
		IncludeMatches:    true,
		IncludeExceptions: true,
		IncludeAudit:      false,
		MaxListed:         10,
		Language:          "en",
		CSVDelimiter:      ',',
		CSVHeaders:        true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.MaxListed <= 0 {
		return fmt.Errorf("max listed must be positive, got %d", c.MaxListed)
	}

	if _, err := language.Parse(c.Language); err != nil {
		return fmt.Errorf("invalid language tag %q: %w", c.Language, err)
	}

	if c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n' || c.CSVDelimiter == '\r' {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}

	return nil
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config  *ReportConfig
	printer *message.Printer
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config:  config,
		printer: message.NewPrinter(language.Make(config.Language)),
	}, nil
}

// GenerateReport renders report in the configured format to writer
func (rg *ReportGenerator) GenerateReport(report *reconciler.Report, writer io.Writer) error {
	if report == nil {
		return fmt.Errorf("reconciliation report cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(report, writer)
	case FormatJSON:
		return rg.generateJSONReport(report, writer)
	case FormatCSV:
		return rg.generateCSVReport(report, writer)
	case FormatXLSX:
		return rg.generateXLSXReport(report, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(report *reconciler.Report, writer io.Writer) error {
	p := rg.printer
	s := report.Summary

	p.Fprintf(writer, "RECONCILIATION REPORT\n")
	p.Fprintf(writer, "Generated: %s\n\n", s.GeneratedAt.Format(time.RFC3339))

	p.Fprintf(writer, "=== SUMMARY ===\n")
	p.Fprintf(writer, "Invoice lines:\n")
	p.Fprintf(writer, "  Total:            %d\n", s.TotalLines)
	p.Fprintf(writer, "  Fully matched:    %d (%.1f%%)\n", s.FullyMatchedLines, percentage(s.FullyMatchedLines, s.TotalLines))
	p.Fprintf(writer, "  Partially paid:   %d (%.1f%%)\n", s.PartiallyMatchedLines, percentage(s.PartiallyMatchedLines, s.TotalLines))
	p.Fprintf(writer, "  Unmatched:        %d (%.1f%%)\n", s.UnmatchedLines, percentage(s.UnmatchedLines, s.TotalLines))
	p.Fprintf(writer, "\nLedger transactions:\n")
	p.Fprintf(writer, "  Total:            %d\n", s.TotalTransactions)
	p.Fprintf(writer, "  Matched:          %d\n", s.MatchedTransactions)
	p.Fprintf(writer, "  Unmatched:        %d\n", s.UnmatchedTransactions)
	p.Fprintf(writer, "\nMatches: %d auto, %d manual\n\n", s.AutoMatches, s.ManualMatches)

	p.Fprintf(writer, "=== TOTALS ===\n")
	for _, t := range s.Totals {
		p.Fprintf(writer, "%s\n", t.Currency)
		p.Fprintf(writer, "  Invoiced:         %s\n", rg.money(t.Invoiced))
		p.Fprintf(writer, "  Matched:          %s\n", rg.money(t.Matched))
		p.Fprintf(writer, "  Outstanding:      %s\n", rg.money(t.Outstanding))
		p.Fprintf(writer, "  Ledger total:     %s\n", rg.money(t.LedgerTotal))
		p.Fprintf(writer, "  Ledger open:      %s\n", rg.money(t.LedgerUnreconciled))
	}
	p.Fprintf(writer, "\n")

	if len(report.UnmatchedLines) > 0 {
		p.Fprintf(writer, "=== UNMATCHED LINES ===\n")
		for i, lb := range report.UnmatchedLines {
			if i >= rg.config.MaxListed {
				p.Fprintf(writer, "  ... and %d more\n", len(report.UnmatchedLines)-i)
				break
			}
			p.Fprintf(writer, "  %d. %s %s %s %s open of %s (%s)\n", i+1, lb.ID, lb.Vendor, lb.Currency,
				rg.money(lb.Remaining), rg.money(lb.Amount), lb.ServiceDate.Format("2006-01-02"))
		}
		p.Fprintf(writer, "\n")
	}

	if len(report.UnmatchedTransactions) > 0 {
		p.Fprintf(writer, "=== UNMATCHED TRANSACTIONS ===\n")
		for i, tb := range report.UnmatchedTransactions {
			if i >= rg.config.MaxListed {
				p.Fprintf(writer, "  ... and %d more\n", len(report.UnmatchedTransactions)-i)
				break
			}
			p.Fprintf(writer, "  %d. %s %s %s %s %s [%s]\n", i+1, tb.ID, tb.Vendor, tb.Type, tb.Currency,
				rg.money(tb.Amount), tb.Status)
		}
		p.Fprintf(writer, "\n")
	}

	if rg.config.IncludeMatches && len(report.Matches) > 0 {
		p.Fprintf(writer, "=== MATCHES ===\n")
		for i, m := range report.Matches {
			if i >= rg.config.MaxListed {
				p.Fprintf(writer, "  ... and %d more\n", len(report.Matches)-i)
				break
			}
			p.Fprintf(writer, "  %d. %s <- %s %s %s (%.2f)\n", i+1, m.LineID, m.TransactionID, rg.money(m.Amount), m.Method, m.Confidence)
		}
		p.Fprintf(writer, "\n")
	}

	if rg.config.IncludeExceptions && s.OpenExceptions > 0 {
		p.Fprintf(writer, "=== OPEN EXCEPTIONS ===\n")
		for _, severity := range []models.Severity{models.SeverityHigh, models.SeverityMedium, models.SeverityLow} {
			var titles []string
			for _, e := range report.Exceptions {
				if e.IsOpen() && e.Severity == severity {
					titles = append(titles, fmt.Sprintf("%s: %s", e.Type, e.Title))
				}
			}
			if len(titles) == 0 {
				continue
			}
			p.Fprintf(writer, "%s (%d):\n", strings.ToUpper(string(severity)), len(titles))
			for _, title := range titles {
				p.Fprintf(writer, "  - %s\n", title)
			}
		}
		p.Fprintf(writer, "\n")
	}

	if rg.config.IncludeAudit && len(report.Audit) > 0 {
		p.Fprintf(writer, "=== AUDIT ===\n")
		for _, e := range report.Audit {
			p.Fprintf(writer, "  %s %-10s %-26s %s\n", e.At.Format(time.RFC3339), e.Actor, e.Action, e.Detail)
		}
	}

	return nil
}

// generateJSONReport generates a structured JSON report
func (rg *ReportGenerator) generateJSONReport(report *reconciler.Report, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

// MatchCSVHeader is the header row of the CSV match listing
var MatchCSVHeader = []string{
	"match_id",
	"line_id",
	"transaction_id",
	"amount",
	"method",
	"confidence",
	"rule_id",
	"created_by",
	"created_at",
	"note",
}

// generateCSVReport lists every committed match
func (rg *ReportGenerator) generateCSVReport(report *reconciler.Report, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(MatchCSVHeader); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, m := range report.Matches {
		record := []string{
			m.ID,
			m.LineID,
			m.TransactionID,
			m.Amount.String(),
			string(m.Method),
			strconv.FormatFloat(m.Confidence, 'f', 4, 64),
			m.RuleID,
			m.CreatedBy,
			m.CreatedAt.UTC().Format(time.RFC3339),
			m.Note,
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write match record: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func (rg *ReportGenerator) money(d decimal.Decimal) string {
	return rg.printer.Sprintf("%.2f", d.InexactFloat64())
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}
