package reporter

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"corporatepay-reconciliation/internal/models"
	"corporatepay-reconciliation/internal/parsers"
	"corporatepay-reconciliation/internal/reconciler"
	"corporatepay-reconciliation/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func sampleTransactions() []models.Transaction {
	at := func(day int) time.Time { return time.Date(2025, 3, day, 10, 0, 0, 0, time.UTC) }
	return []models.Transaction{
		{ID: "T1", Type: models.TransactionTypeSpend, Status: models.StatusPosted, Currency: "UGX", Amount: decimal.NewFromInt(50000),
			Vendor: "SafeBoda", Module: "Rides", Group: "Sales", CostCenter: "CC-S", TaxCode: "VAT18", OccurredAt: at(10), Reference: "R-1"},
		{ID: "T2", Type: models.TransactionTypeSpend, Status: models.StatusPosted, Currency: "UGX", Amount: decimal.RequireFromString("120000.50"),
			Vendor: "EVzone Rides", Module: "Rides", OccurredAt: at(12), Reference: "R-2", Note: `client "A", airport`},
		{ID: "T3", Type: models.TransactionTypeRefund, Status: models.StatusPending, Currency: "UGX", Amount: decimal.NewFromInt(3000),
			Vendor: "Jumia", Module: "E-Commerce", Marketplace: "EVmart", OccurredAt: at(14)},
	}
}

func sampleReport(t *testing.T) *reconciler.Report {
	t.Helper()

	lines := []models.InvoiceLine{
		{ID: "L1", InvoiceID: "INV-1", Currency: "UGX", Vendor: "SafeBoda", Module: "Rides", Amount: decimal.NewFromInt(50000),
			ServiceDate: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)},
		{ID: "L2", InvoiceID: "INV-1", Currency: "UGX", Vendor: "Bolt", Module: "Rides", Amount: decimal.NewFromInt(75000),
			ServiceDate: time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)},
	}
	now := time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC)
	ws, err := reconciler.NewWorkspace(sampleTransactions(), lines, &reconciler.Options{Clock: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("NewWorkspace failed: %v", err)
	}
	ws.ScanExceptions("")
	ws.RunAutoMatch("")
	return ws.Report()
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name    string
		config  *ReportConfig
		wantErr bool
	}{
		{"nil config uses defaults", nil, false},
		{"json format", &ReportConfig{Format: FormatJSON, MaxListed: 5, Language: "en", CSVDelimiter: ','}, false},
		{"invalid format", &ReportConfig{Format: "pdf", MaxListed: 5, Language: "en", CSVDelimiter: ','}, true},
		{"zero max listed", &ReportConfig{Format: FormatJSON, MaxListed: 0, Language: "en", CSVDelimiter: ','}, true},
		{"bad language", &ReportConfig{Format: FormatJSON, MaxListed: 5, Language: "!!", CSVDelimiter: ','}, true},
		{"quote delimiter", &ReportConfig{Format: FormatCSV, MaxListed: 5, Language: "en", CSVDelimiter: '"'}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if generator.GetConfiguration() == nil {
				t.Error("expected configuration to be set")
			}
		})
	}
}

func TestParseOutputFormat(t *testing.T) {
	for _, in := range []string{"console", "JSON", " csv ", "xlsx"} {
		if _, err := ParseOutputFormat(in); err != nil {
			t.Errorf("ParseOutputFormat(%q) failed: %v", in, err)
		}
	}
	if _, err := ParseOutputFormat("pdf"); err == nil {
		t.Error("expected pdf to be rejected")
	}
	if FormatXLSX.ContentType() == FormatCSV.ContentType() {
		t.Error("expected distinct content types")
	}
}

func TestJSONReport(t *testing.T) {
	report := sampleReport(t)
	generator, _ := NewReportGenerator(&ReportConfig{Format: FormatJSON, MaxListed: 10, Language: "en", CSVDelimiter: ','})

	var buf bytes.Buffer
	if err := generator.GenerateReport(report, &buf); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}

	if !strings.HasPrefix(buf.String(), "{\n  \"summary\": {") {
		t.Errorf("expected two-space indented document, got prefix %q", buf.String()[:20])
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	want := []string{"summary", "matches", "unmatchedLines", "unmatchedTransactions", "exceptions", "erpMappings", "rules", "audit"}
	if len(doc) != len(want) {
		t.Errorf("expected %d top-level keys, got %d", len(want), len(doc))
	}
	for _, key := range want {
		if _, ok := doc[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}

	var lines []map[string]interface{}
	if err := json.Unmarshal(doc["unmatchedLines"], &lines); err != nil {
		t.Fatalf("unmatchedLines: %v", err)
	}
	if len(lines) != 1 || lines[0]["id"] != "L2" || lines[0]["remaining"] != "75000" {
		t.Errorf("unexpected unmatched lines: %v", lines)
	}
}

func TestConsoleReport(t *testing.T) {
	report := sampleReport(t)
	generator, _ := NewReportGenerator(nil)

	var buf bytes.Buffer
	if err := generator.GenerateReport(report, &buf); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}
	out := buf.String()

	for _, section := range []string{"RECONCILIATION REPORT", "=== SUMMARY ===", "=== TOTALS ===", "=== UNMATCHED LINES ===", "=== MATCHES ===", "=== OPEN EXCEPTIONS ==="} {
		if !strings.Contains(out, section) {
			t.Errorf("missing section %q", section)
		}
	}
	if !strings.Contains(out, "125,000.00") {
		t.Errorf("expected grouped invoice total, got:\n%s", out)
	}
	if strings.Contains(out, "=== AUDIT ===") {
		t.Error("audit should be omitted by default")
	}
}

func TestConsoleReportTruncatesListings(t *testing.T) {
	report := sampleReport(t)
	generator, _ := NewReportGenerator(&ReportConfig{Format: FormatConsole, MaxListed: 1, Language: "en", CSVDelimiter: ',', IncludeAudit: true})

	var buf bytes.Buffer
	if err := generator.GenerateReport(report, &buf); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}
	if !strings.Contains(buf.String(), "... and 1 more") {
		t.Errorf("expected truncated listing:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "=== AUDIT ===") {
		t.Error("expected audit section")
	}
}

func TestCSVReport(t *testing.T) {
	report := sampleReport(t)
	generator, _ := NewReportGenerator(&ReportConfig{Format: FormatCSV, MaxListed: 10, Language: "en", CSVDelimiter: ';', CSVHeaders: true})

	var buf bytes.Buffer
	if err := generator.GenerateReport(report, &buf); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}

	reader := csv.NewReader(&buf)
	reader.Comma = ';'
	records, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(records) != 1+len(report.Matches) {
		t.Fatalf("expected header plus %d rows, got %d", len(report.Matches), len(records))
	}
	if strings.Join(records[0], ",") != strings.Join(MatchCSVHeader, ",") {
		t.Errorf("unexpected header: %v", records[0])
	}
	if records[1][1] != "L1" || records[1][2] != "T1" || records[1][4] != string(models.MatchMethodAuto) {
		t.Errorf("unexpected first row: %v", records[1])
	}
}

func TestXLSXReport(t *testing.T) {
	report := sampleReport(t)
	generator, _ := NewReportGenerator(&ReportConfig{Format: FormatXLSX, MaxListed: 10, Language: "en", CSVDelimiter: ','})

	var buf bytes.Buffer
	if err := generator.GenerateReport(report, &buf); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader failed: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	want := []string{SheetSummary, SheetMatches, SheetUnmatched, SheetExceptions}
	if strings.Join(sheets, ",") != strings.Join(want, ",") {
		t.Errorf("expected sheets %v, got %v", want, sheets)
	}

	rows, err := f.GetRows(SheetMatches)
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if len(rows) != 1+len(report.Matches) {
		t.Errorf("expected %d match rows, got %d", 1+len(report.Matches), len(rows))
	}

	exceptionRows, _ := f.GetRows(SheetExceptions)
	if len(exceptionRows) != 1+len(report.Exceptions) {
		t.Errorf("expected %d exception rows, got %d", 1+len(report.Exceptions), len(exceptionRows))
	}
}

func TestLedgerCSVRoundTrip(t *testing.T) {
	original := sampleTransactions()

	var buf bytes.Buffer
	if err := WriteLedgerCSV(&buf, original); err != nil {
		t.Fatalf("WriteLedgerCSV failed: %v", err)
	}
	if !strings.HasPrefix(buf.String(), strings.Join(LedgerCSVHeader, ",")+"\n") {
		t.Errorf("unexpected header line: %q", strings.SplitN(buf.String(), "\n", 2)[0])
	}

	parser, err := parsers.NewLedgerParser(nil)
	if err != nil {
		t.Fatalf("NewLedgerParser failed: %v", err)
	}
	parsed, stats, err := parser.Parse(context.Background(), &buf, "export.csv")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if stats.HasErrors() {
		t.Fatalf("unexpected parse errors: %s", stats)
	}
	if len(parsed) != len(original) {
		t.Fatalf("expected %d transactions, got %d", len(original), len(parsed))
	}

	for i := range original {
		want, got := original[i], parsed[i]
		if !want.Amount.Equal(got.Amount) || !want.OccurredAt.Equal(got.OccurredAt) {
			t.Errorf("%s: amount/time mismatch: %s %s vs %s %s", want.ID, want.Amount, want.OccurredAt, got.Amount, got.OccurredAt)
		}
		got.Amount, got.OccurredAt = want.Amount, want.OccurredAt
		if got != want {
			t.Errorf("%s: round trip mismatch\nwant %+v\ngot  %+v", want.ID, want, got)
		}
	}
}

func TestJournalCSV(t *testing.T) {
	report := sampleReport(t)

	ws, _ := reconciler.NewWorkspace(sampleTransactions(), nil, nil)
	var buf bytes.Buffer
	if err := WriteJournalCSV(&buf, ws.Journal()); err != nil {
		t.Fatalf("WriteJournalCSV failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d", len(records))
	}

	glByTx := map[string]string{}
	for _, r := range records[1:] {
		glByTx[r[0]] = r[9]
	}
	// T2's vendor mapping beats its module; T3's marketplace beats its module
	want := map[string]string{"T1": "6100", "T2": "6110", "T3": "6210"}
	for tx, gl := range want {
		if glByTx[tx] != gl {
			t.Errorf("%s: expected GL %s, got %s", tx, gl, glByTx[tx])
		}
	}
	if report.Summary.JournalByGLCode["6100"] != 1 {
		t.Errorf("expected summary to count one 6100 row, got %v", report.Summary.JournalByGLCode)
	}
}

func TestSafeReportGenerator(t *testing.T) {
	generator, err := NewSafeReportGenerator(&ReportConfig{Format: FormatJSON, MaxListed: 10, Language: "en", CSVDelimiter: ','}, nil)
	if err != nil {
		t.Fatalf("NewSafeReportGenerator failed: %v", err)
	}

	err = generator.GenerateReportSafely(nil, &bytes.Buffer{})
	if !errors.HasCode(err, errors.CodeMissingField) {
		t.Errorf("expected missing field error, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "report.json")
	written, err := generator.WriteReportFile(sampleReport(t), path)
	if err != nil {
		t.Fatalf("WriteReportFile failed: %v", err)
	}
	if written != path {
		t.Errorf("expected %s, got %s", path, written)
	}
	data, err := os.ReadFile(path)
	if err != nil || !json.Valid(data) {
		t.Errorf("expected a valid JSON file, err=%v", err)
	}

	if _, err := NewSafeReportGenerator(&ReportConfig{Format: "pdf"}, nil); !errors.HasCode(err, errors.CodeInvalidConfig) {
		t.Errorf("expected invalid config error, got %v", err)
	}
}

func TestGenerateBackupPath(t *testing.T) {
	if got := generateBackupPath("/tmp/out/report.json"); got != "/tmp/out/report_backup.json" {
		t.Errorf("unexpected backup path %s", got)
	}
}
