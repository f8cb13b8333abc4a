package matcher

import (
	"corporatepay-reconciliation/internal/models"

	"github.com/shopspring/decimal"
)

// Balances tracks how much of every line and transaction is already claimed
// by matches. Remaining balance is entity amount minus the claimed sum.
type Balances struct {
	lineAmount map[string]decimal.Decimal
	txAmount   map[string]decimal.Decimal
	lineUsed   map[string]decimal.Decimal
	txUsed     map[string]decimal.Decimal
}

// NewBalances seeds balances from the committed matches
func NewBalances(lines []models.InvoiceLine, transactions []models.Transaction, matches []models.Match) *Balances {
	b := &Balances{
		lineAmount: make(map[string]decimal.Decimal, len(lines)),
		txAmount:   make(map[string]decimal.Decimal, len(transactions)),
		lineUsed:   make(map[string]decimal.Decimal, len(lines)),
		txUsed:     make(map[string]decimal.Decimal, len(transactions)),
	}
	for _, line := range lines {
		b.lineAmount[line.ID] = line.Amount
	}
	for _, tx := range transactions {
		b.txAmount[tx.ID] = tx.Amount
	}
	for _, m := range matches {
		b.Apply(m.LineID, m.TransactionID, m.Amount)
	}
	return b
}

// LineRemaining returns the unmatched balance of a line, zero if unknown
func (b *Balances) LineRemaining(lineID string) decimal.Decimal {
	return b.lineAmount[lineID].Sub(b.lineUsed[lineID])
}

// TransactionRemaining returns the unmatched balance of a transaction, zero if unknown
func (b *Balances) TransactionRemaining(txID string) decimal.Decimal {
	return b.txAmount[txID].Sub(b.txUsed[txID])
}

// LineMatched returns the claimed sum for a line
func (b *Balances) LineMatched(lineID string) decimal.Decimal {
	return b.lineUsed[lineID]
}

// TransactionMatched returns the claimed sum for a transaction
func (b *Balances) TransactionMatched(txID string) decimal.Decimal {
	return b.txUsed[txID]
}

// Apply claims amount against both entities
func (b *Balances) Apply(lineID, txID string, amount decimal.Decimal) {
	b.lineUsed[lineID] = b.lineUsed[lineID].Add(amount)
	b.txUsed[txID] = b.txUsed[txID].Add(amount)
}

// Release undoes a previous Apply
func (b *Balances) Release(lineID, txID string, amount decimal.Decimal) {
	b.lineUsed[lineID] = b.lineUsed[lineID].Sub(amount)
	b.txUsed[txID] = b.txUsed[txID].Sub(amount)
}

// Clone returns an independent copy used for staging a batch
func (b *Balances) Clone() *Balances {
	return &Balances{
		lineAmount: b.lineAmount,
		txAmount:   b.txAmount,
		lineUsed:   copyAmounts(b.lineUsed),
		txUsed:     copyAmounts(b.txUsed),
	}
}

func copyAmounts(src map[string]decimal.Decimal) map[string]decimal.Decimal {
	dst := make(map[string]decimal.Decimal, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
