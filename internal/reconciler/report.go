package reconciler

import (
	"sort"
	"time"

	"corporatepay-reconciliation/internal/erp"
	"corporatepay-reconciliation/internal/matcher"
	"corporatepay-reconciliation/internal/models"

	"github.com/shopspring/decimal"
)

// CurrencyTotals sums invoice and ledger amounts for one currency
type CurrencyTotals struct {
	Currency           string          `json:"currency"`
	Invoiced           decimal.Decimal `json:"invoiced"`
	Matched            decimal.Decimal `json:"matched"`
	Outstanding        decimal.Decimal `json:"outstanding"`
	LedgerTotal        decimal.Decimal `json:"ledgerTotal"`
	LedgerUnreconciled decimal.Decimal `json:"ledgerUnreconciled"`
}

// Summary holds the headline figures of a report
type Summary struct {
	GeneratedAt           time.Time                        `json:"generatedAt"`
	TotalLines            int                              `json:"totalLines"`
	FullyMatchedLines     int                              `json:"fullyMatchedLines"`
	PartiallyMatchedLines int                              `json:"partiallyMatchedLines"`
	UnmatchedLines        int                              `json:"unmatchedLines"`
	TotalTransactions     int                              `json:"totalTransactions"`
	MatchedTransactions   int                              `json:"matchedTransactions"`
	UnmatchedTransactions int                              `json:"unmatchedTransactions"`
	TransactionsByStatus  map[models.TransactionStatus]int `json:"transactionsByStatus"`
	ManualMatches         int                              `json:"manualMatches"`
	AutoMatches           int                              `json:"autoMatches"`
	MatchRate             float64                          `json:"matchRate"`
	OpenExceptions        int                              `json:"openExceptions"`
	ExceptionsBySeverity  map[models.Severity]int          `json:"exceptionsBySeverity"`
	ExceptionsByType      map[models.ExceptionType]int     `json:"exceptionsByType"`
	JournalByGLCode       map[string]int                   `json:"journalByGlCode"`
	Totals                []CurrencyTotals                 `json:"totals"`
}

// LineBalance is an invoice line with its matched and open amounts
type LineBalance struct {
	models.InvoiceLine
	Matched   decimal.Decimal `json:"matched"`
	Remaining decimal.Decimal `json:"remaining"`
}

// TransactionBalance is a ledger entry with its matched and open amounts
type TransactionBalance struct {
	models.Transaction
	Matched   decimal.Decimal `json:"matched"`
	Remaining decimal.Decimal `json:"remaining"`
}

// Report is the full reconciliation result handed to the renderers
type Report struct {
	Summary               Summary                `json:"summary"`
	Matches               []models.Match         `json:"matches"`
	UnmatchedLines        []LineBalance          `json:"unmatchedLines"`
	UnmatchedTransactions []TransactionBalance   `json:"unmatchedTransactions"`
	Exceptions            []models.ExceptionItem `json:"exceptions"`
	ErpMappings           []models.ErpMapping    `json:"erpMappings"`
	Rules                 []models.AutoMatchRule `json:"rules"`
	Audit                 []models.AuditEvent    `json:"audit"`
}

// Report builds a report from the current workspace state
func (w *Workspace) Report() *Report {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return BuildReport(w.snapshot())
}

// BuildReport derives the report from a snapshot
func BuildReport(s *Snapshot) *Report {
	balances := matcher.NewBalances(s.Lines, s.Transactions, s.Matches)

	summary := Summary{
		GeneratedAt:          s.TakenAt,
		TotalLines:           len(s.Lines),
		TotalTransactions:    len(s.Transactions),
		ExceptionsBySeverity: make(map[models.Severity]int),
		ExceptionsByType:     make(map[models.ExceptionType]int),
		TransactionsByStatus: make(map[models.TransactionStatus]int),
	}

	report := &Report{
		Matches:               s.Matches,
		UnmatchedLines:        []LineBalance{},
		UnmatchedTransactions: []TransactionBalance{},
		Exceptions:            s.Exceptions,
		ErpMappings:           s.Mappings,
		Rules:                 s.Rules,
		Audit:                 s.Audit,
	}

	totals := make(map[string]*CurrencyTotals)
	totalsFor := func(currency string) *CurrencyTotals {
		t, ok := totals[currency]
		if !ok {
			t = &CurrencyTotals{Currency: currency}
			totals[currency] = t
		}
		return t
	}

	for _, line := range s.Lines {
		matched := balances.LineMatched(line.ID)
		remaining := balances.LineRemaining(line.ID)

		t := totalsFor(line.Currency)
		t.Invoiced = t.Invoiced.Add(line.Amount)
		t.Matched = t.Matched.Add(matched)
		t.Outstanding = t.Outstanding.Add(remaining)

		switch {
		case !remaining.IsPositive():
			summary.FullyMatchedLines++
			continue
		case matched.IsPositive():
			summary.PartiallyMatchedLines++
		default:
			summary.UnmatchedLines++
		}
		report.UnmatchedLines = append(report.UnmatchedLines, LineBalance{InvoiceLine: line, Matched: matched, Remaining: remaining})
	}

	for _, tx := range s.Transactions {
		summary.TransactionsByStatus[tx.Status]++
		matched := balances.TransactionMatched(tx.ID)
		remaining := balances.TransactionRemaining(tx.ID)

		t := totalsFor(tx.Currency)
		t.LedgerTotal = t.LedgerTotal.Add(tx.Amount)
		t.LedgerUnreconciled = t.LedgerUnreconciled.Add(remaining)

		if matched.IsPositive() {
			summary.MatchedTransactions++
		}
		if matched.IsZero() && tx.Status != models.StatusFailed {
			summary.UnmatchedTransactions++
			report.UnmatchedTransactions = append(report.UnmatchedTransactions,
				TransactionBalance{Transaction: tx, Matched: matched, Remaining: remaining})
		}
	}

	for _, m := range s.Matches {
		if m.Method == models.MatchMethodAuto {
			summary.AutoMatches++
		} else {
			summary.ManualMatches++
		}
	}

	for _, e := range s.Exceptions {
		summary.ExceptionsByType[e.Type]++
		if e.IsOpen() {
			summary.OpenExceptions++
			summary.ExceptionsBySeverity[e.Severity]++
		}
	}

	if summary.TotalLines > 0 {
		summary.MatchRate = float64(summary.FullyMatchedLines) / float64(summary.TotalLines)
	}
	summary.JournalByGLCode = erp.Summary(erp.BuildJournal(s.Transactions, s.Mappings))

	currencies := make([]string, 0, len(totals))
	for c := range totals {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)
	summary.Totals = make([]CurrencyTotals, 0, len(currencies))
	for _, c := range currencies {
		summary.Totals = append(summary.Totals, *totals[c])
	}

	report.Summary = summary
	return report
}
