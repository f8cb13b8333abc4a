package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"corporatepay-reconciliation/cmd/reconciler/config"
	"corporatepay-reconciliation/internal/reconciler"
	"corporatepay-reconciliation/internal/reporter"
	"corporatepay-reconciliation/pkg/errors"
	"corporatepay-reconciliation/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the reconcile command
var (
	ledgerFiles   []string
	invoiceFiles  []string
	outputFormat  string
	outputFile    string
	startDate     string
	endDate       string
	skipScan      bool
	skipAutoMatch bool
	includeAudit  bool
	actor         string
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile ledger transactions with vendor invoice lines",
	Long: `Reconcile loads the CorporatePay ledger and the vendor invoice lines,
raises exceptions for failed charges, duplicates and pending refunds, runs the
batch auto-matcher and reports matched, partially matched and unmatched lines.

This command requires:
- One or more ledger files (CSV format)
- One or more invoice line files (CSV format)

Examples:
  # Basic reconciliation
  reconciler reconcile --ledger ledger.csv --invoices invoices.csv

  # Several ledgers restricted to one month
  reconciler reconcile --ledger jan.csv,feb.csv --invoices invoices.csv \
    --start-date 2025-03-01 --end-date 2025-03-31

  # Spreadsheet report with the audit trail
  reconciler reconcile --ledger ledger.csv --invoices invoices.csv \
    --output-format xlsx --output-file report.xlsx --include-audit

  # Only scan exceptions, leave matching to the reviewers
  reconciler reconcile --ledger ledger.csv --invoices invoices.csv --no-automatch`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	// Required flags
	reconcileCmd.Flags().StringSliceVarP(&ledgerFiles, "ledger", "l", []string{}, "comma-separated paths to ledger CSV files (required)")
	reconcileCmd.Flags().StringSliceVarP(&invoiceFiles, "invoices", "i", []string{}, "comma-separated paths to invoice line CSV files (required)")

	// Output flags
	reconcileCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv, xlsx")
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	reconcileCmd.Flags().BoolVar(&includeAudit, "include-audit", false, "include the audit trail in the report")

	// Date filtering flags
	reconcileCmd.Flags().StringVar(&startDate, "start-date", "", "filter start date (YYYY-MM-DD)")
	reconcileCmd.Flags().StringVar(&endDate, "end-date", "", "filter end date (YYYY-MM-DD)")

	// Pipeline flags
	reconcileCmd.Flags().BoolVar(&skipScan, "no-scan", false, "skip the exception scan")
	reconcileCmd.Flags().BoolVar(&skipAutoMatch, "no-automatch", false, "skip the batch auto-match pass")
	reconcileCmd.Flags().StringVar(&actor, "actor", reconciler.SystemActor, "actor recorded in the audit trail")

	// Bind flags to viper
	viper.BindPFlag("ledger-files", reconcileCmd.Flags().Lookup("ledger"))
	viper.BindPFlag("invoice-files", reconcileCmd.Flags().Lookup("invoices"))
	viper.BindPFlag("output-format", reconcileCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output-file", reconcileCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("start-date", reconcileCmd.Flags().Lookup("start-date"))
	viper.BindPFlag("end-date", reconcileCmd.Flags().Lookup("end-date"))
	viper.BindPFlag("report.include_audit", reconcileCmd.Flags().Lookup("include-audit"))
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file)
	ledgerFiles = viper.GetStringSlice("ledger-files")
	invoiceFiles = viper.GetStringSlice("invoice-files")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")
	startDate = viper.GetString("start-date")
	endDate = viper.GetString("end-date")

	if err := validateInputFiles(ledgerFiles, invoiceFiles); err != nil {
		return err
	}

	if _, err := reporter.ParseOutputFormat(outputFormat); err != nil {
		return errors.ValidationError(errors.CodeOutOfRange, "output-format", outputFormat, err).
			WithSuggestion("use console, json, csv or xlsx")
	}

	if _, err := config.CreateReconcilerConfig(viper.GetViper(), startDate, endDate, true, true); err != nil {
		return errors.ValidationError(errors.CodeInvalidDate, "date range", startDate+".."+endDate, err).
			WithSuggestion("dates use YYYY-MM-DD and the start date must not be after the end date")
	}

	// Validate output file directory exists if specified
	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return errors.FileError(errors.CodeFileNotFound, dir,
					fmt.Errorf("output directory does not exist: %s", dir))
			}
		}
	}

	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	log := logger.GetGlobalLogger().WithComponent("cli")
	log.WithFields(logger.Fields{
		"ledger_files":  strings.Join(ledgerFiles, ", "),
		"invoice_files": strings.Join(invoiceFiles, ", "),
		"output_format": outputFormat,
		"output_file":   outputFile,
	}).Debug("Starting reconciliation")

	// Create configurations
	v := viper.GetViper()
	serviceConfig, err := config.CreateReconcilerConfig(v, startDate, endDate, !skipScan, !skipAutoMatch)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "reconcile", nil, err)
	}
	reportConfig, err := config.CreateReportConfig(v, outputFormat)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "report", outputFormat, err)
	}

	opts, err := serviceOptions(serviceConfig, nil)
	if err != nil {
		return err
	}
	service, err := reconciler.NewService(opts)
	if err != nil {
		return err
	}

	result, err := service.Reconcile(ctx, &reconciler.Request{
		LedgerFiles:  ledgerFiles,
		InvoiceFiles: invoiceFiles,
		Actor:        actor,
	})
	if err != nil {
		return err
	}
	reportParseStats(result.LedgerStats, result.InvoiceStats)

	// Generate report
	generator, err := reporter.NewSafeReportGenerator(reportConfig, log)
	if err != nil {
		return err
	}

	if outputFile == "" {
		if err := generator.GenerateReportSafely(result.Report, cmd.OutOrStdout()); err != nil {
			return err
		}
	} else {
		written, err := generator.WriteReportFile(result.Report, outputFile)
		if err != nil {
			return err
		}
		if written != outputFile {
			fmt.Fprintf(os.Stderr, "Report written to %s instead of %s\n", written, outputFile)
		}
	}

	// Show completion message
	if viper.GetBool("verbose") {
		summary := result.Report.Summary
		fmt.Fprintf(os.Stderr, "\nReconciliation completed successfully.\n")
		fmt.Fprintf(os.Stderr, "Processed %d transactions and %d invoice lines.\n",
			summary.TotalTransactions, summary.TotalLines)
		fmt.Fprintf(os.Stderr, "Matched %d lines fully and %d partially, %d unmatched.\n",
			summary.FullyMatchedLines, summary.PartiallyMatchedLines, summary.UnmatchedLines)
		if len(result.Raised) > 0 {
			fmt.Fprintf(os.Stderr, "Raised %d exceptions.\n", len(result.Raised))
		}
		fmt.Fprintf(os.Stderr, "Processing time: %v (parsing %v, matching %v)\n",
			result.TotalTime, result.ParsingTime, result.MatchingTime)
	}

	return nil
}
