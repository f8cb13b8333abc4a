package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"corporatepay-reconciliation/internal/reconciler"
	"corporatepay-reconciliation/internal/reporter"
	"corporatepay-reconciliation/pkg/errors"

	"github.com/spf13/cobra"
)

var (
	exportLedger    []string
	exportInvoices  []string
	exportKind      string
	exportOutput    string
	exportAutoMatch bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the ledger or the ERP journal as CSV",
	Long: `Export writes the loaded ledger or its ERP journal, one row per transaction
with the resolved GL code, cost center and tax code.

Examples:
  reconciler export --kind journal --ledger ledger.csv --invoices invoices.csv -o erp-journal.csv
  reconciler export --kind ledger --ledger ledger.csv --invoices invoices.csv`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringSliceVarP(&exportLedger, "ledger", "l", []string{}, "comma-separated paths to ledger CSV files (required)")
	exportCmd.Flags().StringSliceVarP(&exportInvoices, "invoices", "i", []string{}, "comma-separated paths to invoice line CSV files (required)")
	exportCmd.Flags().StringVarP(&exportKind, "kind", "k", "journal", "what to export: ledger or journal")
	exportCmd.Flags().StringVarP(&exportOutput, "output-file", "o", "", "output file path (default: stdout)")
	exportCmd.Flags().BoolVar(&exportAutoMatch, "automatch", false, "run auto-match before exporting")
}

func runExport(cmd *cobra.Command, args []string) error {
	kind := strings.ToLower(strings.TrimSpace(exportKind))
	if kind != "ledger" && kind != "journal" {
		return errors.ValidationError(errors.CodeOutOfRange, "kind", exportKind,
			fmt.Errorf("unknown export kind %q", exportKind)).
			WithSuggestion("use ledger or journal")
	}

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	loaded, err := loadWorkspace(ctx, exportLedger, exportInvoices, nil)
	if err != nil {
		return err
	}
	ws := loaded.Workspace
	if exportAutoMatch {
		ws.RunAutoMatch(reconciler.SystemActor)
	}

	var out io.Writer = cmd.OutOrStdout()
	if exportOutput != "" {
		file, err := os.Create(exportOutput)
		if err != nil {
			return errors.FileError(errors.CodeFilePermission, exportOutput, err)
		}
		defer file.Close()
		out = file
	}

	if err := writeExport(out, ws, kind); err != nil {
		return errors.WrapIfNeeded(err, errors.CategoryFile, errors.CodeFilePermission, kind+" export failed")
	}
	ws.RecordExport(kind+".csv", reconciler.SystemActor)
	return nil
}

func writeExport(w io.Writer, ws *reconciler.Workspace, kind string) error {
	if kind == "ledger" {
		return reporter.WriteLedgerCSV(w, ws.Snapshot().Transactions)
	}
	return reporter.WriteJournalCSV(w, ws.Journal())
}
