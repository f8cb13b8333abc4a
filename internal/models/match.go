package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
)

// MatchMethod records how a match was created
type MatchMethod string

const (
	MatchMethodManual MatchMethod = "Manual"
	MatchMethodAuto   MatchMethod = "Auto"
)

// Match links an invoice line to a transaction for part or all of its amount
type Match struct {
	ID            string          `json:"id"`
	LineID        string          `json:"lineId"`
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	Method        MatchMethod     `json:"method"`
	Confidence    float64         `json:"confidence"`
	RuleID        string          `json:"ruleId,omitempty"`
	CreatedBy     string          `json:"createdBy"`
	Note          string          `json:"note,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// String returns a string representation of the Match
func (m *Match) String() string {
	return fmt.Sprintf("Match{ID: %s, Line: %s, Tx: %s, Amount: %s, Method: %s, Confidence: %.2f}",
		m.ID, m.LineID, m.TransactionID, m.Amount.String(), m.Method, m.Confidence)
}

// AutoMatchRule is a named policy controlling which fields must agree and how
// much date and amount drift is tolerated before two records are linked.
type AutoMatchRule struct {
	ID                     string  `json:"id" mapstructure:"id"`
	Name                   string  `json:"name" mapstructure:"name" validate:"required"`
	Enabled                bool    `json:"enabled" mapstructure:"enabled"`
	RequireSameVendor      bool    `json:"requireSameVendor" mapstructure:"require_same_vendor"`
	RequireSameModule      bool    `json:"requireSameModule" mapstructure:"require_same_module"`
	RequireSameMarketplace bool    `json:"requireSameMarketplace" mapstructure:"require_same_marketplace"`
	DateWindowDays         int     `json:"dateWindowDays" mapstructure:"date_window_days" validate:"gte=0,lte=365"`
	AmountTolerancePct     float64 `json:"amountTolerancePct" mapstructure:"amount_tolerance_pct" validate:"gte=0,lte=100"`
	MinConfidence          float64 `json:"minConfidence" mapstructure:"min_confidence" validate:"gte=0,lte=1"`
	AllowPartialMatch      bool    `json:"allowPartialMatch" mapstructure:"allow_partial_match"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Normalize fills in a derived id when the rule has none
func (r *AutoMatchRule) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	if strings.TrimSpace(r.ID) == "" && r.Name != "" {
		r.ID = slug.Make(r.Name)
	}
}

// Validate checks field ranges with the struct's validate tags
func (r *AutoMatchRule) Validate() error {
	if err := validate.Struct(r); err != nil {
		return describeValidation(err)
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("rule ID cannot be empty")
	}
	return nil
}

// ValidateStruct runs tag validation against any struct in this package
func ValidateStruct(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return describeValidation(err)
	}
	return nil
}

func describeValidation(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err
	}
	first := verrs[0]
	if first.Param() != "" {
		return fmt.Errorf("field %s failed %s=%s (got %v)", first.Field(), first.Tag(), first.Param(), first.Value())
	}
	return fmt.Errorf("field %s failed %s", first.Field(), first.Tag())
}

// DefaultRules returns the rule set used when none is configured
func DefaultRules() []AutoMatchRule {
	return []AutoMatchRule{
		{
			ID:                "exact-vendor-amount",
			Name:              "Exact vendor and amount",
			Enabled:           true,
			RequireSameVendor: true,
			RequireSameModule: true,
			DateWindowDays:    1,
			MinConfidence:     0.92,
		},
		{
			ID:                 "vendor-within-3-days",
			Name:               "Vendor within 3 days",
			Enabled:            true,
			RequireSameVendor:  true,
			DateWindowDays:     3,
			AmountTolerancePct: 2,
			MinConfidence:      0.8,
			AllowPartialMatch:  true,
		},
		{
			ID:                     "marketplace-loose",
			Name:                   "Marketplace loose",
			Enabled:                false,
			RequireSameMarketplace: true,
			DateWindowDays:         7,
			AmountTolerancePct:     5,
			MinConfidence:          0.7,
			AllowPartialMatch:      true,
		},
	}
}
