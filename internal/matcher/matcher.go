package matcher

import (
	"fmt"
	"sort"

	"corporatepay-reconciliation/internal/models"
	"corporatepay-reconciliation/pkg/logger"

	"github.com/shopspring/decimal"
)

// Skip reasons reported by PlanAutoMatch
const (
	SkipNoCandidate    = "no qualifying candidate"
	SkipPartialBlocked = "partial match not allowed"
	SkipZeroAmount     = "zero amount"
)

// MatchingEngine is the core engine responsible for candidate ranking and
// batch auto-matching
type MatchingEngine struct {
	Config           *MatchingConfig
	TransactionIndex *TransactionIndex
	Rules            []models.AutoMatchRule
	log              logger.Logger
}

// Candidate is one ranked transaction for an invoice line
type Candidate struct {
	Transaction models.Transaction `json:"transaction"`
	Score       float64            `json:"score"`
	RuleID      string             `json:"ruleId,omitempty"`
	RuleName    string             `json:"ruleName,omitempty"`
	Remaining   decimal.Decimal    `json:"remaining"`
	DaysApart   int                `json:"daysApart"`
	Reasons     []string           `json:"reasons,omitempty"`
}

// Proposal is a match the batch pass would create
type Proposal struct {
	LineID        string          `json:"lineId"`
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	RuleID        string          `json:"ruleId"`
	Score         float64         `json:"score"`
}

// SkippedLine is a line the batch pass left untouched
type SkippedLine struct {
	LineID        string  `json:"lineId"`
	Reason        string  `json:"reason"`
	TransactionID string  `json:"transactionId,omitempty"`
	RuleID        string  `json:"ruleId,omitempty"`
	Score         float64 `json:"score,omitempty"`
}

// AutoMatchPlan is the outcome of one batch pass before it is committed
type AutoMatchPlan struct {
	Proposals       []Proposal      `json:"proposals"`
	Skipped         []SkippedLine   `json:"skipped"`
	UnmatchedLines  []string        `json:"unmatchedLines"`
	MatchedAmount   decimal.Decimal `json:"matchedAmount"`
	LinesConsidered int             `json:"linesConsidered"`
}

// NewMatchingEngine creates a new matching engine with the specified configuration
func NewMatchingEngine(config *MatchingConfig) *MatchingEngine {
	if config == nil {
		config = DefaultMatchingConfig()
	}

	return &MatchingEngine{
		Config:           config,
		TransactionIndex: NewTransactionIndex(nil),
		Rules:            models.DefaultRules(),
		log:              logger.GetGlobalLogger().WithComponent("matcher"),
	}
}

// LoadTransactions loads transactions into the engine and builds indexes
func (me *MatchingEngine) LoadTransactions(transactions []models.Transaction) {
	me.TransactionIndex = NewTransactionIndex(transactions)
	stats := me.TransactionIndex.GetIndexStats()
	me.log.WithFields(logger.Fields{
		"transactions": stats.TotalTransactions,
		"currencies":   stats.Currencies,
		"days":         stats.DistinctDays,
	}).Debug("Transaction index built")
}

// SetRules replaces the rule set. Order matters for tie-breaks.
func (me *MatchingEngine) SetRules(rules []models.AutoMatchRule) {
	me.Rules = append([]models.AutoMatchRule(nil), rules...)
}

// EnabledRules returns the enabled rules in configured order
func (me *MatchingEngine) EnabledRules() []models.AutoMatchRule {
	var enabled []models.AutoMatchRule
	for _, rule := range me.Rules {
		if rule.Enabled {
			enabled = append(enabled, rule)
		}
	}
	return enabled
}

// candidatePool applies the shared filters: same currency, not Failed,
// remaining balance > 0 and within the candidate window.
func (me *MatchingEngine) candidatePool(line *models.InvoiceLine, balances *Balances) []models.Transaction {
	all := me.TransactionIndex.GetCandidates(line.Currency, line.ServiceDate, me.Config.CandidateWindowDays)
	pool := all[:0:0]
	for _, tx := range all {
		if tx.Status == models.StatusFailed {
			continue
		}
		if !balances.TransactionRemaining(tx.ID).IsPositive() {
			continue
		}
		pool = append(pool, tx)
	}
	return pool
}

// RankCandidates lists every candidate transaction for the line, each scored
// under the enabled rule that rates it highest, best first. Equal scores keep
// ledger order.
func (me *MatchingEngine) RankCandidates(line *models.InvoiceLine, balances *Balances) []Candidate {
	rules := me.EnabledRules()
	pool := me.candidatePool(line, balances)

	candidates := make([]Candidate, 0, len(pool))
	for i := range pool {
		tx := &pool[i]
		c := Candidate{
			Transaction: *tx,
			Remaining:   balances.TransactionRemaining(tx.ID),
			DaysApart:   models.DaysBetween(line.ServiceDate, tx.OccurredAt),
		}

		best := -1.0
		for j := range rules {
			breakdown := Explain(line, tx, &rules[j])
			if breakdown.Score > best {
				best = breakdown.Score
				c.Score = breakdown.Score
				c.RuleID = rules[j].ID
				c.RuleName = rules[j].Name
				c.Reasons = breakdown.Reasons
			}
		}
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	return candidates
}

// TopCandidates truncates RankCandidates to n entries, or to
// Config.MaxSuggestions when n <= 0
func (me *MatchingEngine) TopCandidates(line *models.InvoiceLine, balances *Balances, n int) []Candidate {
	if n <= 0 {
		n = me.Config.MaxSuggestions
	}
	ranked := me.RankCandidates(line, balances)
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// bestQualifying returns the enabled rule scoring tx highest among rules whose
// minimum confidence the score reaches. The earlier rule wins ties.
func bestQualifying(line *models.InvoiceLine, tx *models.Transaction, rules []models.AutoMatchRule) (int, float64) {
	bestRule, bestScore := -1, 0.0
	for i := range rules {
		score := ScoreCandidate(line, tx, &rules[i])
		if score < rules[i].MinConfidence || score <= 0 {
			continue
		}
		if bestRule < 0 || score > bestScore {
			bestRule, bestScore = i, score
		}
	}
	return bestRule, bestScore
}

// PlanAutoMatch proposes at most one match per line, processing lines in the
// given order against staged copies of the balances. The balances passed in
// are not modified.
func (me *MatchingEngine) PlanAutoMatch(lines []models.InvoiceLine, balances *Balances) *AutoMatchPlan {
	staged := balances.Clone()
	rules := me.EnabledRules()
	plan := &AutoMatchPlan{
		Proposals:      []Proposal{},
		Skipped:        []SkippedLine{},
		UnmatchedLines: []string{},
		MatchedAmount:  decimal.Zero,
	}

	for i := range lines {
		line := &lines[i]
		lineRemaining := staged.LineRemaining(line.ID)
		if !lineRemaining.IsPositive() {
			continue
		}
		plan.LinesConsidered++

		var (
			bestTx    *models.Transaction
			bestRule  = -1
			bestScore float64
		)
		pool := me.candidatePool(line, staged)
		for j := range pool {
			ruleIdx, score := bestQualifying(line, &pool[j], rules)
			if ruleIdx < 0 {
				continue
			}
			if bestTx == nil || score > bestScore {
				bestTx, bestRule, bestScore = &pool[j], ruleIdx, score
			}
		}

		if bestTx == nil {
			plan.Skipped = append(plan.Skipped, SkippedLine{LineID: line.ID, Reason: SkipNoCandidate})
			continue
		}

		rule := rules[bestRule]
		amount := decimal.Min(lineRemaining, staged.TransactionRemaining(bestTx.ID))
		skip := SkippedLine{LineID: line.ID, TransactionID: bestTx.ID, RuleID: rule.ID, Score: bestScore}
		if !amount.IsPositive() {
			skip.Reason = SkipZeroAmount
			plan.Skipped = append(plan.Skipped, skip)
			continue
		}
		if !rule.AllowPartialMatch && amount.LessThan(lineRemaining) {
			skip.Reason = SkipPartialBlocked
			plan.Skipped = append(plan.Skipped, skip)
			continue
		}

		plan.Proposals = append(plan.Proposals, Proposal{
			LineID:        line.ID,
			TransactionID: bestTx.ID,
			Amount:        amount,
			RuleID:        rule.ID,
			Score:         bestScore,
		})
		plan.MatchedAmount = plan.MatchedAmount.Add(amount)
		staged.Apply(line.ID, bestTx.ID, amount)
	}

	for _, line := range lines {
		if staged.LineRemaining(line.ID).IsPositive() {
			plan.UnmatchedLines = append(plan.UnmatchedLines, line.ID)
		}
	}

	me.log.WithFields(logger.Fields{
		"lines":     plan.LinesConsidered,
		"proposals": len(plan.Proposals),
		"skipped":   len(plan.Skipped),
		"unmatched": len(plan.UnmatchedLines),
	}).Debug("Auto-match plan computed")

	return plan
}

// String returns a short summary of the plan
func (p *AutoMatchPlan) String() string {
	return fmt.Sprintf("AutoMatchPlan{Proposals: %d, Skipped: %d, Unmatched: %d, Amount: %s}",
		len(p.Proposals), len(p.Skipped), len(p.UnmatchedLines), p.MatchedAmount.String())
}
