package errors

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// RowContext locates a problem inside an input CSV file
type RowContext struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   string `json:"column,omitempty"`
	Value    string `json:"value,omitempty"`
	Expected string `json:"expected,omitempty"`
}

// RowError is a parse error tied to one input row. Recoverable row errors
// cause the row to be skipped; unrecoverable ones abort the file.
type RowError struct {
	*ReconcilerError
	Row         *RowContext `json:"row"`
	Recoverable bool        `json:"recoverable"`
	Examples    []string    `json:"examples,omitempty"`
}

// Error implements the error interface with the row location appended
func (e *RowError) Error() string {
	msg := e.ReconcilerError.Error()
	if e.Row == nil {
		return msg
	}

	location := fmt.Sprintf("at %s", filepath.Base(e.Row.File))
	if e.Row.Line > 0 {
		location += fmt.Sprintf(":%d", e.Row.Line)
	}
	if e.Row.Column != "" {
		location += fmt.Sprintf(" column '%s'", e.Row.Column)
	}
	return msg + " " + location
}

// Detailed returns a multi-line description for console output
func (e *RowError) Detailed() string {
	lines := []string{fmt.Sprintf("ERROR: %s", e.Message)}

	if e.Row != nil {
		lines = append(lines, fmt.Sprintf("  → File: %s", e.Row.File))
		if e.Row.Line > 0 {
			lines = append(lines, fmt.Sprintf("  → Line: %d", e.Row.Line))
		}
		if e.Row.Column != "" {
			lines = append(lines, fmt.Sprintf("  → Column: %s", e.Row.Column))
		}
		if e.Row.Value != "" {
			lines = append(lines, fmt.Sprintf("  → Value: '%s'", e.Row.Value))
		}
		if e.Row.Expected != "" {
			lines = append(lines, fmt.Sprintf("  → Expected: %s", e.Row.Expected))
		}
	}

	if e.Suggestion != "" {
		lines = append(lines, fmt.Sprintf("  → Suggestion: %s", e.Suggestion))
	}
	if len(e.Examples) > 0 {
		lines = append(lines, "  → Examples: "+strings.Join(e.Examples, ", "))
	}

	return strings.Join(lines, "\n")
}

// NewRowError creates a row-level parse error
func NewRowError(code ErrorCode, row *RowContext, message string, cause error) *RowError {
	base := build(CategoryParse, code, message, cause)
	if row != nil {
		base.WithContext("file", row.File).
			WithContext("line", row.Line).
			WithContext("column", row.Column).
			WithContext("value", row.Value)
	}

	return &RowError{
		ReconcilerError: base,
		Row:             row,
		Recoverable:     true,
	}
}

// WithSuggestion sets the suggestion and returns the RowError
func (e *RowError) WithSuggestion(suggestion string) *RowError {
	e.ReconcilerError.WithSuggestion(suggestion)
	return e
}

// WithExamples attaches example values
func (e *RowError) WithExamples(examples ...string) *RowError {
	e.Examples = examples
	return e
}

// Fatal marks the error as unrecoverable
func (e *RowError) Fatal() *RowError {
	e.Recoverable = false
	return e
}

// InvalidAmountError reports an unparseable or non-positive amount
func InvalidAmountError(file string, line int, column, value string) *RowError {
	row := &RowContext{File: file, Line: line, Column: column, Value: value, Expected: "positive decimal number"}
	return NewRowError(CodeInvalidAmount, row, fmt.Sprintf("invalid amount '%s'", value), nil).
		WithSuggestion("remove currency symbols and thousands separators").
		WithExamples("165000", "1250.50")
}

// InvalidDateError reports a timestamp that matches none of the accepted layouts
func InvalidDateError(file string, line int, column, value string) *RowError {
	row := &RowContext{File: file, Line: line, Column: column, Value: value, Expected: "date or timestamp"}
	return NewRowError(CodeInvalidDate, row, fmt.Sprintf("invalid date '%s'", value), nil).
		WithSuggestion("use YYYY-MM-DD or RFC 3339").
		WithExamples("2025-03-14", "2025-03-14T09:30:00Z")
}

// InvalidEnumError reports a value outside a closed set such as a status
func InvalidEnumError(file string, line int, column, value string, allowed []string) *RowError {
	row := &RowContext{File: file, Line: line, Column: column, Value: value, Expected: strings.Join(allowed, "|")}
	return NewRowError(CodeInvalidData, row, fmt.Sprintf("unsupported %s '%s'", column, value), nil).
		WithSuggestion(fmt.Sprintf("use one of: %s", strings.Join(allowed, ", ")))
}

// EmptyValueError reports a required cell left blank
func EmptyValueError(file string, line int, column string) *RowError {
	row := &RowContext{File: file, Line: line, Column: column}
	return NewRowError(CodeMissingField, row, fmt.Sprintf("required column '%s' is empty", column), nil).
		WithSuggestion("fill in the value or drop the row")
}

// MissingColumnError reports headers that could not be resolved
func MissingColumnError(file string, missing []string, actual []string) *RowError {
	row := &RowContext{File: file, Line: 1, Expected: strings.Join(missing, ", ")}
	return NewRowError(CodeMissingColumn, row,
		fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")), nil).
		WithSuggestion(fmt.Sprintf("found headers: %s", strings.Join(actual, ", "))).
		Fatal()
}

// EncodingError reports input that cannot be decoded
func EncodingError(file string, line int, cause error) *RowError {
	row := &RowContext{File: file, Line: line}
	return NewRowError(CodeEncodingError, row, "unable to decode row", cause).
		WithSuggestion("set the source encoding or save the file as UTF-8").
		Fatal()
}

// RowErrorCollector gathers row errors while a file is parsed
type RowErrorCollector struct {
	errors    []*RowError
	maxErrors int
}

// NewRowErrorCollector creates a collector that stops accepting after maxErrors
func NewRowErrorCollector(maxErrors int) *RowErrorCollector {
	return &RowErrorCollector{maxErrors: maxErrors}
}

// Add records err and reports whether parsing may continue
func (c *RowErrorCollector) Add(err *RowError) bool {
	if err == nil {
		return true
	}
	c.errors = append(c.errors, err)
	if c.maxErrors > 0 && len(c.errors) >= c.maxErrors {
		return false
	}
	return err.Recoverable
}

// HasErrors returns true if any errors have been collected
func (c *RowErrorCollector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns the collected errors
func (c *RowErrorCollector) Errors() []*RowError {
	return c.errors
}

// Summary returns an ErrorSummary over the collected errors
func (c *RowErrorCollector) Summary() *ErrorSummary {
	base := make([]*ReconcilerError, len(c.errors))
	for i, err := range c.errors {
		base[i] = err.ReconcilerError
	}
	return NewErrorSummary(base)
}

// FormatRowErrors renders errors grouped by file, three in detail per file
func FormatRowErrors(errs []*RowError) string {
	if len(errs) == 0 {
		return "No parse errors"
	}
	if len(errs) == 1 {
		return errs[0].Detailed()
	}

	byFile := make(map[string][]*RowError)
	for _, err := range errs {
		file := "unknown"
		if err.Row != nil {
			file = filepath.Base(err.Row.File)
		}
		byFile[file] = append(byFile[file], err)
	}

	files := make([]string, 0, len(byFile))
	for file := range byFile {
		files = append(files, file)
	}
	sort.Strings(files)

	lines := []string{fmt.Sprintf("Found %d parse errors:", len(errs))}
	for _, file := range files {
		fileErrs := byFile[file]
		lines = append(lines, "", fmt.Sprintf("File: %s (%d errors)", file, len(fileErrs)))
		for i, err := range fileErrs {
			if i == 3 {
				lines = append(lines, fmt.Sprintf("... and %d more errors in this file", len(fileErrs)-3))
				break
			}
			lines = append(lines, err.Detailed())
		}
	}

	return strings.Join(lines, "\n")
}
