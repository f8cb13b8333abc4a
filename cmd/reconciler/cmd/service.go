package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"corporatepay-reconciliation/cmd/reconciler/config"
	"corporatepay-reconciliation/internal/metrics"
	"corporatepay-reconciliation/internal/parsers"
	"corporatepay-reconciliation/internal/reconciler"
	"corporatepay-reconciliation/pkg/errors"

	"github.com/spf13/viper"
)

// serviceOptions reads every workspace-related setting from viper
func serviceOptions(serviceConfig *reconciler.Config, recorder metrics.Recorder) (*reconciler.ServiceOptions, error) {
	v := viper.GetViper()

	ledgerConfig, err := config.CreateFileConfig(v, "ledger")
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "ledger", v.Get("ledger"), err)
	}
	invoiceConfig, err := config.CreateFileConfig(v, "invoices")
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "invoices", v.Get("invoices"), err)
	}
	matchingConfig, err := config.CreateMatchingConfig(v)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching", v.Get("matching"), err)
	}
	rules, err := config.CreateRules(v)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "rules", nil, err)
	}
	mappings, err := config.CreateMappings(v)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "mappings", nil, err)
	}

	return &reconciler.ServiceOptions{
		Config:         serviceConfig,
		LedgerFile:     ledgerConfig,
		InvoiceFile:    invoiceConfig,
		MatchingConfig: matchingConfig,
		Rules:          rules,
		Mappings:       mappings,
		Recorder:       recorder,
	}, nil
}

// loadWorkspace parses the input files into a fresh workspace without
// scanning or auto-matching
func loadWorkspace(ctx context.Context, ledgerFiles, invoiceFiles []string, recorder metrics.Recorder) (*reconciler.LoadResult, error) {
	if err := validateInputFiles(ledgerFiles, invoiceFiles); err != nil {
		return nil, err
	}

	serviceConfig, err := config.CreateReconcilerConfig(viper.GetViper(), "", "", false, false)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconcile", nil, err)
	}
	opts, err := serviceOptions(serviceConfig, recorder)
	if err != nil {
		return nil, err
	}
	service, err := reconciler.NewService(opts)
	if err != nil {
		return nil, err
	}

	loaded, err := service.Load(ctx, &reconciler.Request{
		LedgerFiles:  ledgerFiles,
		InvoiceFiles: invoiceFiles,
	})
	if err != nil {
		return nil, err
	}
	reportParseStats(loaded.LedgerStats, loaded.InvoiceStats)
	return loaded, nil
}

// validateInputFiles checks that every ledger and invoice file is readable
func validateInputFiles(ledgerFiles, invoiceFiles []string) error {
	if len(ledgerFiles) == 0 {
		return errors.ValidationError(errors.CodeMissingField, "ledger", nil,
			fmt.Errorf("at least one ledger file is required")).
			WithSuggestion("pass --ledger with one or more CSV files")
	}
	if len(invoiceFiles) == 0 {
		return errors.ValidationError(errors.CodeMissingField, "invoices", nil,
			fmt.Errorf("at least one invoice file is required")).
			WithSuggestion("pass --invoices with one or more CSV files")
	}

	for i, path := range ledgerFiles {
		if err := validateFileExists(path, fmt.Sprintf("ledger file %d", i+1)); err != nil {
			return err
		}
	}
	for i, path := range invoiceFiles {
		if err := validateFileExists(path, fmt.Sprintf("invoice file %d", i+1)); err != nil {
			return err
		}
	}
	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return errors.ValidationError(errors.CodeMissingField, description, filePath,
			fmt.Errorf("%s path cannot be empty", description))
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath,
			fmt.Errorf("%s does not exist: %s", description, filePath))
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath,
			fmt.Errorf("error accessing %s: %w", description, err))
	}

	if info.IsDir() {
		return errors.FileError(errors.CodeFileNotFound, filePath,
			fmt.Errorf("%s is a directory, expected a file: %s", description, filePath))
	}

	// Check if file is readable
	file, err := os.Open(filePath)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath,
			fmt.Errorf("%s is not readable: %w", description, err))
	}
	file.Close()

	return nil
}

// formatCodeCounts renders "invalid_amount: 2, invalid_date: 1"
func formatCodeCounts(summary *errors.ErrorSummary) string {
	codes := make([]string, 0, len(summary.ByCode))
	for code := range summary.ByCode {
		codes = append(codes, string(code))
	}
	sort.Strings(codes)

	parts := make([]string, len(codes))
	for i, code := range codes {
		parts[i] = fmt.Sprintf("%s: %d", code, summary.ByCode[errors.ErrorCode(code)])
	}
	return strings.Join(parts, ", ")
}

// reportParseStats prints skipped rows to stderr
func reportParseStats(groups ...[]*parsers.ParseStats) {
	for _, stats := range groups {
		for _, s := range stats {
			if s == nil || !s.HasErrors() {
				continue
			}
			fmt.Fprintf(os.Stderr, "Warning: %s (%s)\n", s.String(), formatCodeCounts(s.Summary()))
			for _, sample := range s.GetSampleErrors(3) {
				fmt.Fprintf(os.Stderr, "  %s\n", sample)
			}
		}
	}
}
