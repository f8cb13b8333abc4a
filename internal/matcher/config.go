// Package matcher pairs invoice lines with ledger transactions.
//
// Matching is rule driven. Every AutoMatchRule describes which attributes must
// agree (vendor, module, marketplace) and how much date and amount drift is
// tolerated. ScoreCandidate turns one (line, transaction, rule) triple into a
// confidence in [0,1]; the MatchingEngine uses it in two ways:
//
//  1. RankCandidates lists every plausible transaction for one line, scored
//     under the best enabled rule, for interactive review.
//  2. PlanAutoMatch walks all lines in ledger order and proposes at most one
//     match per line, honouring remaining balances, each rule's minimum
//     confidence and its partial-match policy.
//
// Candidate selection goes through a TransactionIndex keyed by currency and
// calendar day so a line only ever looks at transactions inside its window.
//
// Example usage:
//
//	engine := matcher.NewMatchingEngine(matcher.DefaultMatchingConfig())
//	engine.LoadTransactions(transactions)
//	engine.SetRules(models.DefaultRules())
//
//	plan := engine.PlanAutoMatch(lines, matcher.NewBalances(lines, transactions, committed))
package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MatchingConfig holds the engine-wide parameters that are not part of any
// single rule.
type MatchingConfig struct {
	// CandidateWindowDays bounds candidate selection around the service date
	CandidateWindowDays int `json:"candidate_window_days" mapstructure:"candidate_window_days"`

	// MaxSuggestions is the default length of a ranked suggestion list
	MaxSuggestions int `json:"max_suggestions" mapstructure:"max_suggestions"`

	// PartialNoiseFloor is the absolute remaining balance below which a
	// manual partial match is not flagged
	PartialNoiseFloor decimal.Decimal `json:"partial_noise_floor" mapstructure:"partial_noise_floor"`

	// PartialNoisePercent is the share of the line amount (0..100) below
	// which a manual partial match is not flagged
	PartialNoisePercent float64 `json:"partial_noise_percent" mapstructure:"partial_noise_percent"`
}

// DefaultMatchingConfig returns a configuration with sensible defaults
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		CandidateWindowDays: 30,
		MaxSuggestions:      8,
		PartialNoiseFloor:   decimal.NewFromInt(1000),
		PartialNoisePercent: 2,
	}
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if mc.CandidateWindowDays < 0 {
		return fmt.Errorf("candidate window days cannot be negative: %d", mc.CandidateWindowDays)
	}

	if mc.MaxSuggestions <= 0 {
		return fmt.Errorf("max suggestions must be positive: %d", mc.MaxSuggestions)
	}

	if mc.PartialNoiseFloor.IsNegative() {
		return fmt.Errorf("partial noise floor cannot be negative: %s", mc.PartialNoiseFloor)
	}

	if mc.PartialNoisePercent < 0.0 || mc.PartialNoisePercent > 100.0 {
		return fmt.Errorf("partial noise percent must be between 0.0 and 100.0: %f", mc.PartialNoisePercent)
	}

	return nil
}

// Clone creates a copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}
	clone := *mc
	return &clone
}

// PartialThreshold returns the remaining balance above which a manual match
// leaves a line flagged as partially paid: max(floor, pct% of the line).
func (mc *MatchingConfig) PartialThreshold(lineAmount decimal.Decimal) decimal.Decimal {
	pct := lineAmount.Mul(decimal.NewFromFloat(mc.PartialNoisePercent)).Div(decimal.NewFromInt(100))
	return decimal.Max(mc.PartialNoiseFloor, pct)
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{CandidateWindow: %d days, MaxSuggestions: %d, PartialNoise: max(%s, %.2f%%)}",
		mc.CandidateWindowDays, mc.MaxSuggestions, mc.PartialNoiseFloor.String(), mc.PartialNoisePercent)
}
