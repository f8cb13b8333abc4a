package parsers

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"corporatepay-reconciliation/internal/models"
	"corporatepay-reconciliation/pkg/errors"
	"corporatepay-reconciliation/pkg/logger"
)

// InvoiceParser handles parsing of supplier invoice-line CSV exports
type InvoiceParser struct {
	*BaseParser
	config *FileConfig
	logger logger.Logger
}

// NewInvoiceParser creates a new InvoiceParser with the given configuration
func NewInvoiceParser(config *FileConfig) (*InvoiceParser, error) {
	if config == nil {
		config = DefaultFileConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"invoice_parser_config",
			config,
			err,
		).WithSuggestion("check the invoice delimiter and encoding settings")
	}

	return &InvoiceParser{
		BaseParser: NewBaseParser(config),
		config:     config,
		logger:     logger.GetGlobalLogger().WithComponent("invoice_parser"),
	}, nil
}

// ParseFile parses an invoice-line CSV file from disk
func (ip *InvoiceParser) ParseFile(ctx context.Context, filePath string) ([]models.InvoiceLine, *ParseStats, error) {
	file, reader, err := ip.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return ip.parse(ctx, reader, filePath)
}

// Parse parses invoice lines from r; name is used in error locations
func (ip *InvoiceParser) Parse(ctx context.Context, r io.Reader, name string) ([]models.InvoiceLine, *ParseStats, error) {
	return ip.parse(ctx, ip.NewReader(r), name)
}

func (ip *InvoiceParser) parse(ctx context.Context, reader *csv.Reader, name string) ([]models.InvoiceLine, *ParseStats, error) {
	ip.logger.WithField("file_path", name).Info("Starting invoice parsing")

	parseCtx := NewParseContext(ctx, name)
	stats := NewParseStats(name, ip.config.MaxErrors)

	if err := ip.ReadHeaders(reader, parseCtx, InvoiceColumns); err != nil {
		if rowErr, ok := err.(*errors.RowError); ok {
			stats.AddError(rowErr)
			return nil, stats, abort(name, rowErr)
		}
		return nil, stats, err
	}

	var lines []models.InvoiceLine
	seen := make(map[string]int)

	for {
		record, err := ip.ReadRecord(reader, parseCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErr, ok := err.(*errors.RowError)
			if !ok {
				return lines, stats, err
			}
			if !stats.AddError(rowErr) {
				return lines, stats, abort(name, rowErr)
			}
			continue
		}

		stats.RecordsParsed++

		line, rowErr := ip.parseLineFromRecord(record, parseCtx)
		if rowErr == nil {
			if firstLine, dup := seen[line.ID]; dup {
				rowErr = errors.NewRowError(errors.CodeInvalidData,
					&errors.RowContext{File: name, Line: parseCtx.LineNumber, Column: "id", Value: line.ID},
					"duplicate invoice line id", nil).
					WithSuggestion("invoice line ids must be unique; first seen on line " + strconv.Itoa(firstLine))
			}
		}
		if rowErr != nil {
			if !stats.AddError(rowErr) {
				return lines, stats, abort(name, rowErr)
			}
			continue
		}

		seen[line.ID] = parseCtx.LineNumber
		lines = append(lines, line)
		stats.RecordsValid++
	}

	stats.TotalLines = parseCtx.LineNumber

	ip.logger.WithFields(logger.Fields{
		"file_path":      name,
		"records_parsed": stats.RecordsParsed,
		"records_valid":  stats.RecordsValid,
		"error_count":    stats.ErrorCount(),
	}).Info("Invoice parsing completed")

	return lines, stats, nil
}

// parseLineFromRecord creates an InvoiceLine from a CSV record
func (ip *InvoiceParser) parseLineFromRecord(record []string, parseCtx *ParseContext) (models.InvoiceLine, *errors.RowError) {
	file, line := parseCtx.File, parseCtx.LineNumber
	field := func(name string) string {
		return ip.GetFieldValue(record, parseCtx, name)
	}
	text := func(name string) string {
		return ip.GetRawFieldValue(record, parseCtx, name)
	}

	for _, col := range InvoiceColumns {
		if col.Required && field(col.Name) == "" {
			return models.InvoiceLine{}, errors.EmptyValueError(file, line, ip.config.GetColumnName(col.Name))
		}
	}

	amount, err := models.ParseDecimalFromString(field("amount"))
	if err != nil || !amount.IsPositive() {
		return models.InvoiceLine{}, errors.InvalidAmountError(file, line, "amount", field("amount"))
	}

	serviceDate, err := models.ParseTimeWithFormats(field("serviceDate"))
	if err != nil {
		return models.InvoiceLine{}, errors.InvalidDateError(file, line, "serviceDate", field("serviceDate"))
	}

	return models.InvoiceLine{
		ID:            field("id"),
		InvoiceNumber: field("invoiceNumber"),
		InvoiceID:     field("invoiceId"),
		Entity:        field("entity"),
		Currency:      normalizeCurrency(field("currency")),
		ServiceDate:   serviceDate,
		Description:   text("description"),
		Vendor:        field("vendor"),
		Module:        field("module"),
		Marketplace:   field("marketplace"),
		Group:         field("group"),
		CostCenter:    field("costCenter"),
		ProjectTag:    field("projectTag"),
		TaxCode:       field("taxCode"),
		Amount:        amount,
	}, nil
}

func normalizeCurrency(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
