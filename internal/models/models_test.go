package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTransactionType_IsValid(t *testing.T) {
	tests := []struct {
		txType TransactionType
		valid  bool
	}{
		{TransactionTypeDebit, true},
		{TransactionTypeRefund, true},
		{TransactionTypeReversal, true},
		{"DEBIT", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.txType), func(t *testing.T) {
			if got := tt.txType.IsValid(); got != tt.valid {
				t.Errorf("TransactionType.IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestTransactionStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to TransactionStatus
		allowed  bool
	}{
		{StatusPending, StatusPosted, true},
		{StatusFailed, StatusPending, true},
		{StatusPosted, StatusPending, false},
		{StatusPending, StatusFailed, false},
		{StatusFailed, StatusPosted, false},
		{StatusPosted, StatusPosted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.allowed)
			}
		})
	}
}

func TestTransaction_Validate(t *testing.T) {
	valid := Transaction{
		ID:         "TX-1",
		Type:       TransactionTypeSpend,
		Status:     StatusPosted,
		Currency:   "UGX",
		Amount:     decimal.NewFromInt(165000),
		OccurredAt: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name      string
		mutate    func(tx *Transaction)
		wantError bool
	}{
		{"valid", func(tx *Transaction) {}, false},
		{"empty id", func(tx *Transaction) { tx.ID = " " }, true},
		{"bad type", func(tx *Transaction) { tx.Type = "transfer" }, true},
		{"bad status", func(tx *Transaction) { tx.Status = "Settled" }, true},
		{"no currency", func(tx *Transaction) { tx.Currency = "" }, true},
		{"negative amount", func(tx *Transaction) { tx.Amount = decimal.NewFromInt(-1) }, true},
		{"zero time", func(tx *Transaction) { tx.OccurredAt = time.Time{} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := valid
			tt.mutate(&tx)
			err := tx.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestInvoiceLine_Validate(t *testing.T) {
	line := InvoiceLine{
		ID:          "L-1",
		Currency:    "UGX",
		Amount:      decimal.NewFromInt(10),
		ServiceDate: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
	}
	if err := line.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	line.Amount = decimal.Zero
	if err := line.Validate(); err == nil {
		t.Error("expected zero amount to be rejected")
	}
}

func TestWithStatusCopies(t *testing.T) {
	tx := Transaction{ID: "TX-1", Status: StatusPending}
	posted := tx.WithStatus(StatusPosted)

	if tx.Status != StatusPending {
		t.Errorf("original mutated: %s", tx.Status)
	}
	if posted.Status != StatusPosted {
		t.Errorf("expected Posted, got %s", posted.Status)
	}
}

func TestParseDecimalFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"165000", "165000", false},
		{"1,250.50", "1250.5", false},
		{"$99.99", "99.99", false},
		{"  42 ", "42", false},
		{"", "", true},
		{"abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDecimalFromString(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDecimalFromString() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got.String() != tt.expected {
				t.Errorf("ParseDecimalFromString() = %s, want %s", got.String(), tt.expected)
			}
		})
	}
}

func TestParseTransactionStatus(t *testing.T) {
	tests := []struct {
		input    string
		expected TransactionStatus
		wantErr  bool
	}{
		{"Posted", StatusPosted, false},
		{"pending", StatusPending, false},
		{"FAILED", StatusFailed, false},
		{"declined", StatusFailed, false},
		{"unknown", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTransactionStatus(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTransactionStatus() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("ParseTransactionStatus() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestParseTimeWithFormats(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Time
	}{
		{"2025-03-14", time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)},
		{"2025-03-14T09:30:00Z", time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)},
		{"2025-03-14 09:30:00", time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)},
		{"14/03/2025", time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimeWithFormats(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.expected) {
				t.Errorf("ParseTimeWithFormats() = %s, want %s", got, tt.expected)
			}
		})
	}

	if _, err := ParseTimeWithFormats("yesterday"); err == nil {
		t.Error("expected error for unparseable input")
	}
}

func TestDaysBetween(t *testing.T) {
	base := time.Date(2025, 3, 14, 23, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		other    time.Time
		expected int
	}{
		{"same instant", base, 0},
		{"same day different time", time.Date(2025, 3, 14, 0, 5, 0, 0, time.UTC), 0},
		{"next calendar day one hour later", base.Add(time.Hour), 1},
		{"three days earlier", time.Date(2025, 3, 11, 12, 0, 0, 0, time.UTC), 3},
		{"offset zone normalised", time.Date(2025, 3, 15, 1, 0, 0, 0, time.FixedZone("EAT", 3*3600)), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysBetween(base, tt.other); got != tt.expected {
				t.Errorf("DaysBetween() = %d, want %d", got, tt.expected)
			}
			if got := DaysBetween(tt.other, base); got != tt.expected {
				t.Errorf("DaysBetween() not symmetric: %d", got)
			}
		})
	}
}

func TestExceptionStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to ExceptionStatus
		allowed  bool
	}{
		{ExceptionOpen, ExceptionInvestigating, true},
		{ExceptionOpen, ExceptionResolved, true},
		{ExceptionInvestigating, ExceptionResolved, true},
		{ExceptionInvestigating, ExceptionOpen, true},
		{ExceptionResolved, ExceptionOpen, true},
		{ExceptionResolved, ExceptionInvestigating, false},
		{ExceptionOpen, ExceptionOpen, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.allowed)
			}
		})
	}
}

func TestAutoMatchRule_NormalizeAndValidate(t *testing.T) {
	rule := AutoMatchRule{Name: "  Vendor Same Day  ", DateWindowDays: 0, MinConfidence: 0.9}
	rule.Normalize()

	if rule.ID != "vendor-same-day" {
		t.Errorf("expected slug id, got %q", rule.ID)
	}
	if err := rule.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(r *AutoMatchRule)
	}{
		{"negative window", func(r *AutoMatchRule) { r.DateWindowDays = -1 }},
		{"tolerance above 100", func(r *AutoMatchRule) { r.AmountTolerancePct = 120 }},
		{"confidence above 1", func(r *AutoMatchRule) { r.MinConfidence = 1.5 }},
		{"missing name", func(r *AutoMatchRule) { r.Name = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := rule
			tt.mutate(&r)
			if err := r.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestDefaultRulesAreValid(t *testing.T) {
	for _, rule := range DefaultRules() {
		r := rule
		if err := r.Validate(); err != nil {
			t.Errorf("default rule %s invalid: %v", rule.ID, err)
		}
	}
}

func TestErpMapping_Validate(t *testing.T) {
	for _, m := range DefaultMappings() {
		mapping := m
		if err := mapping.Validate(); err != nil {
			t.Errorf("default mapping %s invalid: %v", m.ID, err)
		}
	}

	bad := ErpMapping{ID: "m", Scope: ScopeDefault, Key: "Rides", GLCode: "6000"}
	if err := bad.Validate(); err == nil {
		t.Error("expected default mapping with a non-* key to be rejected")
	}

	noGL := ErpMapping{ID: "m", Scope: ScopeVendor, Key: "EVzone Rides"}
	if err := noGL.Validate(); err == nil {
		t.Error("expected mapping without a GL code to be rejected")
	}
}
