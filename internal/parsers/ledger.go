package parsers

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"corporatepay-reconciliation/internal/models"
	"corporatepay-reconciliation/pkg/errors"
	"corporatepay-reconciliation/pkg/logger"
)

var (
	transactionTypeNames   = []string{"debit", "credit", "draw", "repayment", "deposit", "spend", "refund", "reversal"}
	transactionStatusNames = []string{"Posted", "Pending", "Failed"}
)

// LedgerParser handles parsing of CorporatePay ledger CSV exports
type LedgerParser struct {
	*BaseParser
	config *FileConfig
	logger logger.Logger
}

// NewLedgerParser creates a new LedgerParser with the given configuration
func NewLedgerParser(config *FileConfig) (*LedgerParser, error) {
	if config == nil {
		config = DefaultFileConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"ledger_parser_config",
			config,
			err,
		).WithSuggestion("check the ledger delimiter and encoding settings")
	}

	log := logger.GetGlobalLogger().WithComponent("ledger_parser")
	log.WithFields(logger.Fields{
		"has_header": config.HasHeader,
		"delimiter":  string(config.Delimiter),
		"encoding":   config.Encoding,
	}).Debug("Created ledger parser")

	return &LedgerParser{
		BaseParser: NewBaseParser(config),
		config:     config,
		logger:     log,
	}, nil
}

// ParseFile parses a ledger CSV file from disk
func (lp *LedgerParser) ParseFile(ctx context.Context, filePath string) ([]models.Transaction, *ParseStats, error) {
	file, reader, err := lp.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return lp.parse(ctx, reader, filePath)
}

// Parse parses ledger rows from r; name is used in error locations
func (lp *LedgerParser) Parse(ctx context.Context, r io.Reader, name string) ([]models.Transaction, *ParseStats, error) {
	return lp.parse(ctx, lp.NewReader(r), name)
}

func (lp *LedgerParser) parse(ctx context.Context, reader *csv.Reader, name string) ([]models.Transaction, *ParseStats, error) {
	lp.logger.WithFields(logger.Fields{
		"file_path": name,
		"operation": "parse_ledger",
	}).Info("Starting ledger parsing")

	parseCtx := NewParseContext(ctx, name)
	stats := NewParseStats(name, lp.config.MaxErrors)

	if err := lp.ReadHeaders(reader, parseCtx, LedgerColumns); err != nil {
		if rowErr, ok := err.(*errors.RowError); ok {
			stats.AddError(rowErr)
			return nil, stats, abort(name, rowErr)
		}
		return nil, stats, err
	}

	var transactions []models.Transaction
	seen := make(map[string]int)

	for {
		record, err := lp.ReadRecord(reader, parseCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErr, ok := err.(*errors.RowError)
			if !ok {
				return transactions, stats, err
			}
			if !stats.AddError(rowErr) {
				return transactions, stats, abort(name, rowErr)
			}
			continue
		}

		stats.RecordsParsed++

		tx, rowErr := lp.parseTransactionFromRecord(record, parseCtx)
		if rowErr == nil {
			if firstLine, dup := seen[tx.ID]; dup {
				rowErr = errors.NewRowError(errors.CodeInvalidData,
					&errors.RowContext{File: name, Line: parseCtx.LineNumber, Column: "id", Value: tx.ID},
					"duplicate transaction id", nil).
					WithSuggestion("transaction ids must be unique; first seen on line " + strconv.Itoa(firstLine))
			}
		}
		if rowErr != nil {
			lp.logger.WithFields(logger.Fields{
				"line_number": parseCtx.LineNumber,
				"code":        rowErr.Code,
			}).Debug("Skipping ledger row")
			if !stats.AddError(rowErr) {
				return transactions, stats, abort(name, rowErr)
			}
			continue
		}

		seen[tx.ID] = parseCtx.LineNumber
		transactions = append(transactions, tx)
		stats.RecordsValid++
	}

	stats.TotalLines = parseCtx.LineNumber

	lp.logger.WithFields(logger.Fields{
		"file_path":      name,
		"total_lines":    stats.TotalLines,
		"records_parsed": stats.RecordsParsed,
		"records_valid":  stats.RecordsValid,
		"error_count":    stats.ErrorCount(),
	}).Info("Ledger parsing completed")

	if stats.HasErrors() {
		lp.logger.WithField("sample_errors", stats.GetSampleErrors(3)).Warn("Encountered errors during parsing")
	}

	return transactions, stats, nil
}

// parseTransactionFromRecord creates a Transaction from a CSV record
func (lp *LedgerParser) parseTransactionFromRecord(record []string, parseCtx *ParseContext) (models.Transaction, *errors.RowError) {
	file, line := parseCtx.File, parseCtx.LineNumber
	field := func(name string) string {
		return lp.GetFieldValue(record, parseCtx, name)
	}
	text := func(name string) string {
		return lp.GetRawFieldValue(record, parseCtx, name)
	}

	for _, col := range LedgerColumns {
		if col.Required && field(col.Name) == "" {
			return models.Transaction{}, errors.EmptyValueError(file, line, lp.config.GetColumnName(col.Name))
		}
	}

	txType, err := models.ParseTransactionType(field("type"))
	if err != nil {
		return models.Transaction{}, errors.InvalidEnumError(file, line, "type", field("type"), transactionTypeNames)
	}

	status, err := models.ParseTransactionStatus(field("status"))
	if err != nil {
		return models.Transaction{}, errors.InvalidEnumError(file, line, "status", field("status"), transactionStatusNames)
	}

	amount, err := models.ParseDecimalFromString(field("amount"))
	if err != nil || amount.IsNegative() {
		return models.Transaction{}, errors.InvalidAmountError(file, line, "amount", field("amount"))
	}

	occurredAt, err := models.ParseTimeWithFormats(field("occurredAt"))
	if err != nil {
		return models.Transaction{}, errors.InvalidDateError(file, line, "occurredAt", field("occurredAt"))
	}

	tx := models.Transaction{
		ID:          field("id"),
		Type:        txType,
		Status:      status,
		Currency:    normalizeCurrency(field("currency")),
		Amount:      amount,
		Vendor:      field("vendor"),
		Module:      field("module"),
		Marketplace: field("marketplace"),
		Group:       field("group"),
		CostCenter:  field("costCenter"),
		TaxCode:     field("taxCode"),
		OccurredAt:  occurredAt,
		Reference:   text("reference"),
		Note:        text("note"),
	}

	if err := tx.Validate(); err != nil {
		return models.Transaction{}, errors.NewRowError(errors.CodeInvalidData,
			&errors.RowContext{File: file, Line: line, Value: tx.ID}, err.Error(), err)
	}

	return tx, nil
}
