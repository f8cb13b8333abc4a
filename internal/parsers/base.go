// Package parsers reads ledger and invoice-line CSV exports.
//
// Real-world exports differ in header spelling, delimiter and character set.
// Every parser resolves its canonical columns through configured aliases and
// built-in synonyms, decodes the source encoding with golang.org/x/text and
// collects row-level problems instead of failing on the first bad row.
//
// Parser Types:
//   - LedgerParser: for CorporatePay ledger (transaction) exports
//   - InvoiceParser: for supplier invoice-line exports
//
// Example usage:
//
//	parser, err := parsers.NewLedgerParser(parsers.DefaultFileConfig())
//	transactions, stats, err := parser.ParseFile(ctx, "ledger.csv")
//	if stats.HasErrors() {
//		fmt.Println(errors.FormatRowErrors(stats.Errors()))
//	}
//
// Row errors are recoverable: the row is skipped and parsing continues until
// FileConfig.MaxErrors is reached. Missing required columns and undecodable
// input abort the file.
package parsers

import (
	"context"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"corporatepay-reconciliation/pkg/errors"
	"corporatepay-reconciliation/pkg/logger"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// BaseParser provides common CSV parsing functionality
type BaseParser struct {
	config *FileConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *FileConfig) *BaseParser {
	if config == nil {
		config = DefaultFileConfig()
	}

	log := logger.GetGlobalLogger().WithComponent("base_parser")
	log.WithFields(logger.Fields{
		"has_header": config.HasHeader,
		"delimiter":  string(config.Delimiter),
		"encoding":   config.Encoding,
	}).Debug("Created base parser")

	return &BaseParser{
		config: config,
		logger: log,
	}
}

// ParseContext holds state during parsing operations
type ParseContext struct {
	File       string
	LineNumber int
	Headers    []string
	HeaderMap  map[string]int
	ctx        context.Context
}

// NewParseContext creates a new parsing context
func NewParseContext(ctx context.Context, file string) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		File:      file,
		HeaderMap: make(map[string]int),
		ctx:       ctx,
	}
}

// IsCancelled checks if the parsing context has been cancelled
func (pc *ParseContext) IsCancelled() bool {
	select {
	case <-pc.ctx.Done():
		return true
	default:
		return false
	}
}

// GetColumnIndex returns the index of a canonical column, or -1 if absent
func (pc *ParseContext) GetColumnIndex(name string) int {
	if index, exists := pc.HeaderMap[name]; exists {
		return index
	}
	return -1
}

// OpenFile opens a CSV file and returns a reader decoding it
func (bp *BaseParser) OpenFile(filePath string) (*os.File, *csv.Reader, error) {
	bp.logger.WithField("file_path", filePath).Debug("Opening CSV file")

	file, err := os.Open(filePath)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open CSV file")

		if os.IsNotExist(err) {
			return nil, nil, errors.FileError(errors.CodeFileNotFound, filePath, err)
		}
		if os.IsPermission(err) {
			return nil, nil, errors.FileError(errors.CodeFilePermission, filePath, err)
		}
		return nil, nil, errors.FileError(errors.CodeFileCorrupted, filePath, err)
	}

	return file, bp.NewReader(file), nil
}

// NewReader wraps r with the configured decoder and CSV dialect
func (bp *BaseParser) NewReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(transform.NewReader(r, bp.config.Encoding.transformer()))
	reader.Comma = bp.config.Delimiter
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	return reader
}

// ReadHeaders resolves every column to its position in the file. Without a
// header row the columns are expected in canonical order.
func (bp *BaseParser) ReadHeaders(reader *csv.Reader, parseCtx *ParseContext, columns []Column) error {
	if !bp.config.HasHeader {
		parseCtx.Headers = make([]string, len(columns))
		for i, col := range columns {
			parseCtx.Headers[i] = col.Name
			parseCtx.HeaderMap[col.Name] = i
		}
		return nil
	}

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return errors.NewRowError(errors.CodeMissingColumn,
				&errors.RowContext{File: parseCtx.File, Line: 1}, "file is empty", nil).
				WithSuggestion("ensure the file contains a header row and data rows").
				Fatal()
		}
		return bp.readFailure(parseCtx, 1, err)
	}

	parseCtx.LineNumber = 1
	parseCtx.Headers = cleanHeaders(headers)

	positions := make(map[string]int, len(headers))
	for i, header := range parseCtx.Headers {
		key := normalizeHeader(header)
		if _, seen := positions[key]; !seen {
			positions[key] = i
		}
	}

	var missing []string
	for _, col := range columns {
		index := bp.locate(col, positions)
		if index >= 0 {
			parseCtx.HeaderMap[col.Name] = index
			continue
		}
		if col.Required {
			missing = append(missing, bp.config.GetColumnName(col.Name))
		}
	}

	if len(missing) > 0 {
		bp.logger.WithFields(logger.Fields{
			"missing_headers":   missing,
			"available_headers": parseCtx.Headers,
		}).Error("Required headers are missing")
		return errors.MissingColumnError(parseCtx.File, missing, parseCtx.Headers)
	}

	bp.logger.WithField("headers", parseCtx.Headers).Debug("Successfully read headers")
	return nil
}

// locate finds a column by configured alias first, then canonical name, then synonyms
func (bp *BaseParser) locate(col Column, positions map[string]int) int {
	candidates := append([]string{bp.config.GetColumnName(col.Name), col.Name}, col.Synonyms...)
	for _, name := range candidates {
		if index, ok := positions[normalizeHeader(name)]; ok {
			return index
		}
	}
	return -1
}

// ReadRecord returns the next non-empty record. io.EOF ends the file; a
// *errors.RowError reports a malformed or undecodable row.
func (bp *BaseParser) ReadRecord(reader *csv.Reader, parseCtx *ParseContext) ([]string, error) {
	for {
		if parseCtx.IsCancelled() {
			return nil, errors.InternalError(errors.CodeUnexpectedError, "csv_parsing", parseCtx.ctx.Err())
		}

		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil, err
			}
			return nil, bp.readFailure(parseCtx, parseCtx.LineNumber+1, err)
		}

		line, _ := reader.FieldPos(0)
		parseCtx.LineNumber = line

		if isEmptyRecord(record) {
			continue
		}
		return record, nil
	}
}

// readFailure classifies a csv.Reader error. Malformed quoting is
// recoverable, decoding and I/O failures are not.
func (bp *BaseParser) readFailure(parseCtx *ParseContext, line int, err error) *errors.RowError {
	var csvErr *csv.ParseError
	if stderrors.As(err, &csvErr) {
		parseCtx.LineNumber = csvErr.Line
		return errors.NewRowError(errors.CodeInvalidFormat,
			&errors.RowContext{File: parseCtx.File, Line: csvErr.StartLine},
			"malformed CSV record", csvErr.Err).
			WithSuggestion("check quoting; fields containing the delimiter or quotes must be enclosed in double quotes")
	}

	bp.logger.WithError(err).WithField("line_number", line).Warn("Failed to read CSV record")
	if stderrors.Is(err, encoding.ErrInvalidUTF8) {
		return errors.EncodingError(parseCtx.File, line, err)
	}
	return errors.NewRowError(errors.CodeInvalidFormat,
		&errors.RowContext{File: parseCtx.File, Line: line}, "unable to read file", err).Fatal()
}

// GetFieldValue returns the trimmed cell for a canonical column, or "" when
// the column is absent or the row is short
func (bp *BaseParser) GetFieldValue(record []string, parseCtx *ParseContext, column string) string {
	return strings.TrimSpace(bp.GetRawFieldValue(record, parseCtx, column))
}

// GetRawFieldValue returns the cell as read, keeping surrounding whitespace
// of free-text columns
func (bp *BaseParser) GetRawFieldValue(record []string, parseCtx *ParseContext, column string) string {
	index := parseCtx.GetColumnIndex(column)
	if index < 0 || index >= len(record) {
		return ""
	}
	return record[index]
}

func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		cleaned[i] = strings.TrimSpace(strings.TrimPrefix(header, "\ufeff"))
	}
	return cleaned
}

// normalizeHeader folds case and drops separators so "Cost Center",
// "cost_center" and "costCenter" compare equal
func normalizeHeader(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch r {
		case ' ', '_', '-', '.':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	File          string `json:"file"`
	TotalLines    int    `json:"total_lines"`
	RecordsParsed int    `json:"records_parsed"`
	RecordsValid  int    `json:"records_valid"`
	collector     *errors.RowErrorCollector
}

// NewParseStats creates a new ParseStats instance
func NewParseStats(file string, maxErrors int) *ParseStats {
	return &ParseStats{
		File:      file,
		collector: errors.NewRowErrorCollector(maxErrors),
	}
}

// AddError records a row error and reports whether parsing may continue
func (ps *ParseStats) AddError(err *errors.RowError) bool {
	return ps.collector.Add(err)
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return ps.collector.HasErrors()
}

// ErrorCount returns the number of row errors
func (ps *ParseStats) ErrorCount() int {
	return len(ps.collector.Errors())
}

// Errors returns the collected row errors
func (ps *ParseStats) Errors() []*errors.RowError {
	return ps.collector.Errors()
}

// Summary groups the row errors by category and code
func (ps *ParseStats) Summary() *errors.ErrorSummary {
	return ps.collector.Summary()
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, ps.ErrorCount())
}

// GetSampleErrors returns a sample of the parsing errors for logging
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	errs := ps.collector.Errors()
	limit := len(errs)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for _, err := range errs[:limit] {
		samples = append(samples, err.Error())
	}
	return samples
}

// abort converts the row error that stopped a parse into the returned error
func abort(file string, rowErr *errors.RowError) error {
	return errors.Wrap(rowErr, errors.CategoryParse, rowErr.Code, fmt.Sprintf("parsing %s aborted", file)).
		WithSuggestion(rowErr.Suggestion)
}
