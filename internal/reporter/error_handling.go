package reporter

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"corporatepay-reconciliation/internal/reconciler"
	"corporatepay-reconciliation/pkg/errors"
	"corporatepay-reconciliation/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with error handling and fallbacks
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator with error handling
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"report_config",
			config,
			err,
		).WithSuggestion("check the report format, language and CSV delimiter")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely renders the report in memory first so a failed format
// never leaves half a document on writer. A failing non-console format falls
// back to the console rendering.
func (srg *SafeReportGenerator) GenerateReportSafely(report *reconciler.Report, writer io.Writer) error {
	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"output": getWriterDescription(writer),
	}).Info("Starting report generation")

	if err := srg.validateInputs(report, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed: input validation")
		return err
	}

	var buf bytes.Buffer
	if err := srg.GenerateReport(report, &buf); err != nil {
		srg.logger.WithError(err).Warn("Primary report generation failed, attempting fallback")
		if srg.config.Format == FormatConsole {
			return srg.wrapGenerationError(err)
		}
		return srg.generateWithFormatFallback(report, writer, err)
	}

	if _, err := buf.WriteTo(writer); err != nil {
		return srg.wrapGenerationError(err)
	}

	srg.logger.Info("Report generation completed successfully")
	return nil
}

// WriteReportFile renders the report to path. When path cannot be created
// the report goes to a sibling backup file instead.
func (srg *SafeReportGenerator) WriteReportFile(report *reconciler.Report, path string) (string, error) {
	file, err := os.Create(path)
	if err != nil {
		if !isFileError(err) {
			return "", errors.FileError(errors.CodeFilePermission, path, err)
		}
		backup := generateBackupPath(path)
		srg.logger.WithFields(logger.Fields{
			"original_file": path,
			"backup_file":   backup,
		}).Warn("Attempting output fallback")

		file, err = os.Create(backup)
		if err != nil {
			return "", errors.FileError(errors.CodeFilePermission, path, err).
				WithSuggestion("check that the output directory exists and is writable")
		}
		path = backup
	}
	defer file.Close()

	if err := srg.GenerateReportSafely(report, file); err != nil {
		return path, err
	}
	return path, nil
}

// validateInputs validates the inputs for report generation
func (srg *SafeReportGenerator) validateInputs(report *reconciler.Report, writer io.Writer) error {
	if report == nil {
		return errors.ValidationError(
			errors.CodeMissingField,
			"report",
			nil,
			nil,
		).WithSuggestion("provide a reconciliation report")
	}

	if writer == nil {
		return errors.ValidationError(
			errors.CodeMissingField,
			"writer",
			nil,
			nil,
		).WithSuggestion("provide an output writer")
	}

	return nil
}

// generateWithFormatFallback renders the console format after a failure
func (srg *SafeReportGenerator) generateWithFormatFallback(report *reconciler.Report, writer io.Writer, originalErr error) error {
	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole

	srg.logger.WithField("fallback_format", FormatConsole).Info("Attempting format fallback")

	fallbackGenerator, err := NewReportGenerator(&fallbackConfig)
	if err != nil {
		return srg.wrapGenerationError(originalErr)
	}

	fmt.Fprintf(writer, "NOTE: Report generated in fallback format due to error with requested format\n")
	fmt.Fprintf(writer, "Original error: %v\n\n", originalErr)

	if err := fallbackGenerator.GenerateReport(report, writer); err != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report_fallback",
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%v", originalErr, err),
		)
	}

	srg.logger.Info("Report generated successfully using format fallback")
	return nil
}

// wrapGenerationError wraps generation errors with context
func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return reconcilerErr
	}

	return errors.InternalError(
		errors.CodeUnexpectedError,
		"report_generation",
		err,
	).WithSuggestion("check the output destination and report format settings")
}

func isFileError(err error) bool {
	return os.IsPermission(err) || os.IsNotExist(err) || os.IsExist(err) || isSpaceError(err)
}

func generateBackupPath(originalPath string) string {
	dir := filepath.Dir(originalPath)
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]

	return filepath.Join(dir, fmt.Sprintf("%s_backup%s", name, ext))
}

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case *os.File:
		if w.Name() != "" {
			return fmt.Sprintf("file:%s", w.Name())
		}
		return "file:unnamed"
	default:
		return fmt.Sprintf("writer:%T", writer)
	}
}

func isSpaceError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no space left") ||
		strings.Contains(msg, "disk full") ||
		strings.Contains(msg, "device full")
}
