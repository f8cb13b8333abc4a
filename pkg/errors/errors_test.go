package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestReconcilerError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
	}{
		{
			name:       "file error",
			category:   CategoryFile,
			code:       CodeFileNotFound,
			message:    "file not found",
			cause:      errors.New("no such file"),
			expectCode: 2,
		},
		{
			name:       "parse error",
			category:   CategoryParse,
			code:       CodeInvalidFormat,
			message:    "invalid format",
			expectCode: 3,
		},
		{
			name:       "configuration error",
			category:   CategoryConfiguration,
			code:       CodeInvalidConfig,
			message:    "invalid config",
			cause:      errors.New("missing field"),
			expectCode: 4,
		},
		{
			name:       "storage error",
			category:   CategoryStorage,
			code:       CodeStoreUnavailable,
			message:    "redis down",
			cause:      errors.New("dial tcp: connection refused"),
			expectCode: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *ReconcilerError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}
			if err.Error() != tt.message {
				t.Errorf("expected error string %s, got %s", tt.message, err.Error())
			}
			if tt.cause != nil && err.Unwrap() != tt.cause {
				t.Errorf("expected to unwrap to %v, got %v", tt.cause, err.Unwrap())
			}
			if len(err.StackTrace) == 0 {
				t.Error("expected a captured stack trace")
			}
		})
	}
}

func TestReconcilerErrorWithContext(t *testing.T) {
	err := New(CategoryFile, CodeFileNotFound, "test error").
		WithContext("file", "/path/to/ledger.csv").
		WithContext("line", 42).
		WithSuggestion("check file path")

	if err.Context["file"] != "/path/to/ledger.csv" {
		t.Errorf("expected file context, got %v", err.Context["file"])
	}
	if err.Context["line"] != 42 {
		t.Errorf("expected line context 42, got %v", err.Context["line"])
	}

	expected := "test error (suggestion: check file path)"
	if err.Error() != expected {
		t.Errorf("expected error string '%s', got '%s'", expected, err.Error())
	}
}

func TestSpecificErrorConstructors(t *testing.T) {
	t.Run("FileError", func(t *testing.T) {
		cause := errors.New("permission denied")
		err := FileError(CodeFilePermission, "/test/ledger.csv", cause)

		if err.Category != CategoryFile {
			t.Errorf("expected file category, got %s", err.Category)
		}
		if err.Context["file_path"] != "/test/ledger.csv" {
			t.Errorf("expected file_path context, got %v", err.Context["file_path"])
		}
		if err.Suggestion == "" {
			t.Error("expected suggestion to be set")
		}
		if err.Cause != cause {
			t.Errorf("expected cause to be %v, got %v", cause, err.Cause)
		}
	})

	t.Run("ParseError", func(t *testing.T) {
		err := ParseError(CodeInvalidFormat, "invoices.csv", 10, "amount", "12.3.4", nil)

		if err.Category != CategoryParse {
			t.Errorf("expected parse category, got %s", err.Category)
		}
		if err.Context["line"] != 10 {
			t.Errorf("expected line context, got %v", err.Context["line"])
		}
	})

	t.Run("ValidationError", func(t *testing.T) {
		err := ValidationError(CodeExceedsBalance, "line", "5000", nil)

		if err.Category != CategoryValidation {
			t.Errorf("expected validation category, got %s", err.Category)
		}
		if !strings.Contains(err.Message, "exceeds the remaining line balance") {
			t.Errorf("unexpected message %q", err.Message)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		err := NotFound("approval", "APR-9")

		if err.Code != CodeNotFound {
			t.Errorf("expected not_found code, got %s", err.Code)
		}
		if err.Context["id"] != "APR-9" {
			t.Errorf("expected id context, got %v", err.Context["id"])
		}
	})

	t.Run("StorageError", func(t *testing.T) {
		err := StorageError(CodeStoreCorrupted, "file", "load", errors.New("unexpected EOF"))

		if err.Category != CategoryStorage {
			t.Errorf("expected storage category, got %s", err.Category)
		}
		if err.Context["backend"] != "file" {
			t.Errorf("expected backend context, got %v", err.Context["backend"])
		}
	})
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err    *ReconcilerError
		status int
	}{
		{NotFound("line", "L-1"), http.StatusNotFound},
		{ValidationError(CodeInvalidTransition, "exception status", "Open -> Open", nil), http.StatusConflict},
		{ValidationError(CodeInvalidAmount, "amount", "-1", nil), http.StatusUnprocessableEntity},
		{ParseError(CodeInvalidData, "body", 0, "status", "x", nil), http.StatusBadRequest},
		{StorageError(CodeStoreUnavailable, "redis", "get", nil), http.StatusServiceUnavailable},
		{InternalError(CodeUnexpectedError, "render", nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			if got := tt.err.HTTPStatus(); got != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, got)
			}
		})
	}
}

func TestErrorSummary(t *testing.T) {
	errs := []*ReconcilerError{
		New(CategoryFile, CodeFileNotFound, "error 1"),
		New(CategoryFile, CodeFilePermission, "error 2"),
		New(CategoryParse, CodeInvalidFormat, "error 3"),
		New(CategoryParse, CodeInvalidData, "error 4"),
		New(CategoryValidation, CodeInvalidAmount, "error 5"),
	}

	summary := NewErrorSummary(errs)

	if summary.Total != 5 {
		t.Errorf("expected total 5, got %d", summary.Total)
	}
	if summary.ByCategory[CategoryFile] != 2 {
		t.Errorf("expected 2 file errors, got %d", summary.ByCategory[CategoryFile])
	}
	if summary.ByCategory[CategoryValidation] != 1 {
		t.Errorf("expected 1 validation error, got %d", summary.ByCategory[CategoryValidation])
	}
	if summary.ByCategory[CategoryStorage] != 0 {
		t.Error("expected no storage errors")
	}
	if !summary.HasCode(CodeInvalidAmount) {
		t.Error("expected invalid_amount code")
	}
	if len(summary.SampleErrors) != 5 {
		t.Errorf("expected 5 samples, got %d", len(summary.SampleErrors))
	}
	if summary.GetExitCode() != 3 {
		t.Errorf("expected exit code 3, got %d", summary.GetExitCode())
	}
}

func TestEmptyErrorSummary(t *testing.T) {
	summary := NewErrorSummary(nil)

	if summary.Total != 0 {
		t.Errorf("expected total 0, got %d", summary.Total)
	}
	if summary.Error() != "no errors" {
		t.Errorf("expected 'no errors', got '%s'", summary.Error())
	}
	if summary.GetExitCode() != 0 {
		t.Errorf("expected exit code 0, got %d", summary.GetExitCode())
	}
}

func TestAsReconcilerError(t *testing.T) {
	reconcilerErr := New(CategoryFile, CodeFileNotFound, "test")
	wrapped := fmt.Errorf("loading: %w", reconcilerErr)

	if extracted, ok := AsReconcilerError(wrapped); !ok || extracted != reconcilerErr {
		t.Error("expected AsReconcilerError to find the error in the chain")
	}
	if _, ok := AsReconcilerError(errors.New("generic error")); ok {
		t.Error("expected AsReconcilerError to return false for generic error")
	}
	if _, ok := AsReconcilerError(nil); ok {
		t.Error("expected AsReconcilerError to return false for nil")
	}
	if !HasCode(wrapped, CodeFileNotFound) {
		t.Error("expected HasCode to match through the chain")
	}
}

func TestWrapIfNeeded(t *testing.T) {
	reconcilerErr := New(CategoryFile, CodeFileNotFound, "test")
	genericErr := errors.New("generic error")

	if got := WrapIfNeeded(reconcilerErr, CategoryParse, CodeInvalidFormat, "wrapped"); got != reconcilerErr {
		t.Error("expected WrapIfNeeded to return original ReconcilerError")
	}

	got := WrapIfNeeded(genericErr, CategoryParse, CodeInvalidFormat, "wrapped")
	if got.Cause != genericErr || got.Category != CategoryParse {
		t.Error("expected WrapIfNeeded to wrap generic error")
	}

	if WrapIfNeeded(nil, CategoryParse, CodeInvalidFormat, "wrapped") != nil {
		t.Error("expected WrapIfNeeded to return nil for nil input")
	}
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		category     ErrorCategory
		expectedCode int
	}{
		{CategoryFile, 2},
		{CategoryParse, 3},
		{CategoryValidation, 3},
		{CategoryConfiguration, 4},
		{CategoryReconciliation, 5},
		{CategoryInternal, 5},
		{CategoryStorage, 6},
		{ErrorCategory("unknown"), 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			err := New(tt.category, "test_code", "test message")
			if err.GetExitCode() != tt.expectedCode {
				t.Errorf("expected exit code %d for category %s, got %d",
					tt.expectedCode, tt.category, err.GetExitCode())
			}
		})
	}
}

func TestRowErrors(t *testing.T) {
	collector := NewRowErrorCollector(3)

	if !collector.Add(InvalidAmountError("ledger.csv", 4, "amount", "abc")) {
		t.Error("expected recoverable error to allow continuing")
	}
	if collector.Add(MissingColumnError("ledger.csv", []string{"currency"}, []string{"id", "amount"})) {
		t.Error("expected missing column error to stop parsing")
	}

	errs := collector.Errors()
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(errs))
	}
	if !strings.Contains(errs[0].Error(), "ledger.csv:4 column 'amount'") {
		t.Errorf("unexpected error string %q", errs[0].Error())
	}
	if !strings.Contains(errs[0].Detailed(), "Examples") {
		t.Error("expected examples in detailed output")
	}
	if collector.Summary().ByCode[CodeInvalidAmount] != 1 {
		t.Error("expected summary to count invalid_amount")
	}

	out := FormatRowErrors(errs)
	if !strings.HasPrefix(out, "Found 2 parse errors:") {
		t.Errorf("unexpected formatted output %q", out)
	}
}

func TestRowErrorCollectorLimit(t *testing.T) {
	collector := NewRowErrorCollector(2)

	collector.Add(EmptyValueError("invoices.csv", 2, "vendor"))
	if collector.Add(EmptyValueError("invoices.csv", 3, "vendor")) {
		t.Error("expected collector to stop at the limit")
	}
}
