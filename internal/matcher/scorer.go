package matcher

import (
	"fmt"
	"math"

	"corporatepay-reconciliation/internal/models"

	"github.com/shopspring/decimal"
)

const (
	modulePenalty      = 0.65
	marketplacePenalty = 0.55
	dateDecayPerDay    = 0.12
	amountDecayFactor  = 2.2
)

var statusBias = map[models.TransactionStatus]float64{
	models.StatusPosted:  1.0,
	models.StatusPending: 0.7,
	models.StatusFailed:  0.0,
}

// ScoreBreakdown records each factor applied while scoring a candidate
type ScoreBreakdown struct {
	Score          float64  `json:"score"`
	VendorFactor   float64  `json:"vendorFactor"`
	ModuleFactor   float64  `json:"moduleFactor"`
	MarketFactor   float64  `json:"marketplaceFactor"`
	DateFactor     float64  `json:"dateFactor"`
	AmountFactor   float64  `json:"amountFactor"`
	StatusFactor   float64  `json:"statusFactor"`
	CurrencyFactor float64  `json:"currencyFactor"`
	DaysApart      int      `json:"daysApart"`
	DiffPercent    float64  `json:"diffPercent"`
	Reasons        []string `json:"reasons"`
}

// ScoreCandidate returns the confidence in [0,1] that tx settles line under
// rule. It is pure and deterministic.
func ScoreCandidate(line *models.InvoiceLine, tx *models.Transaction, rule *models.AutoMatchRule) float64 {
	return Explain(line, tx, rule).Score
}

// Explain scores a candidate and reports how the score was reached
func Explain(line *models.InvoiceLine, tx *models.Transaction, rule *models.AutoMatchRule) ScoreBreakdown {
	b := ScoreBreakdown{
		VendorFactor:   1,
		ModuleFactor:   1,
		MarketFactor:   1,
		DateFactor:     1,
		AmountFactor:   1,
		CurrencyFactor: 1,
	}

	if rule.RequireSameVendor && line.Vendor != tx.Vendor {
		b.VendorFactor = 0
		b.Reasons = append(b.Reasons, fmt.Sprintf("vendor mismatch: %q vs %q", line.Vendor, tx.Vendor))
		return b
	}

	score := 1.0

	if rule.RequireSameModule && line.Module != tx.Module {
		b.ModuleFactor = modulePenalty
		score *= modulePenalty
		b.Reasons = append(b.Reasons, "module differs")
	}

	if rule.RequireSameMarketplace && line.Marketplace != tx.Marketplace {
		b.MarketFactor = marketplacePenalty
		score *= marketplacePenalty
		b.Reasons = append(b.Reasons, "marketplace differs")
	}

	b.DaysApart = models.DaysBetween(line.ServiceDate, tx.OccurredAt)
	if b.DaysApart > rule.DateWindowDays {
		b.DateFactor = math.Max(0, 1-float64(b.DaysApart-rule.DateWindowDays)*dateDecayPerDay)
		score *= b.DateFactor
		b.Reasons = append(b.Reasons, fmt.Sprintf("%d days apart, window %d", b.DaysApart, rule.DateWindowDays))
	}

	b.DiffPercent = relativeDifference(line.Amount, tx.Amount)
	tolerance := rule.AmountTolerancePct / 100
	if b.DiffPercent > tolerance {
		if math.IsInf(b.DiffPercent, 1) {
			b.AmountFactor = 0
		} else {
			b.AmountFactor = math.Max(0, 1-(b.DiffPercent-tolerance)*amountDecayFactor)
		}
		score *= b.AmountFactor
		b.Reasons = append(b.Reasons, fmt.Sprintf("amount differs by %.2f%%", b.DiffPercent*100))
	}

	b.StatusFactor = statusBias[tx.Status]
	score *= b.StatusFactor
	if b.StatusFactor < 1 {
		b.Reasons = append(b.Reasons, fmt.Sprintf("transaction %s", tx.Status))
	}

	if line.Currency != tx.Currency {
		b.CurrencyFactor = 0
		b.Reasons = append(b.Reasons, fmt.Sprintf("currency mismatch: %s vs %s", line.Currency, tx.Currency))
		return b
	}

	b.Score = clamp01(score)
	return b
}

// relativeDifference returns |a-b|/a. A zero line amount yields 0 when the
// other amount is also zero and +Inf otherwise.
func relativeDifference(lineAmount, txAmount decimal.Decimal) float64 {
	diff := lineAmount.Sub(txAmount).Abs()
	if lineAmount.IsZero() {
		if diff.IsZero() {
			return 0
		}
		return math.Inf(1)
	}
	return diff.Div(lineAmount.Abs()).InexactFloat64()
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
