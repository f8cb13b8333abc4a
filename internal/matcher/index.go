package matcher

import (
	"sort"
	"time"

	"corporatepay-reconciliation/internal/models"
)

const dayKeyLayout = "2006-01-02"

// TransactionIndex groups ledger transactions by currency and calendar day.
// Positions refer to ledger (load) order and are what callers sort by to keep
// first-come-first-served semantics.
type TransactionIndex struct {
	// AllTransactions holds all indexed transactions in ledger order
	AllTransactions []models.Transaction

	// CurrencyDayIndex maps currency → YYYY-MM-DD → ledger positions
	CurrencyDayIndex map[string]map[string][]int

	positions map[string]int
}

// IndexStats provides statistics about the index
type IndexStats struct {
	TotalTransactions int `json:"total_transactions"`
	Currencies        int `json:"currencies"`
	DistinctDays      int `json:"distinct_days"`
}

// NewTransactionIndex creates a new transaction index from a slice of transactions
func NewTransactionIndex(transactions []models.Transaction) *TransactionIndex {
	index := &TransactionIndex{
		AllTransactions:  make([]models.Transaction, 0, len(transactions)),
		CurrencyDayIndex: make(map[string]map[string][]int),
		positions:        make(map[string]int, len(transactions)),
	}

	for _, tx := range transactions {
		index.AddTransaction(tx)
	}
	return index
}

// AddTransaction appends a transaction to the index
func (ti *TransactionIndex) AddTransaction(tx models.Transaction) {
	pos := len(ti.AllTransactions)
	ti.AllTransactions = append(ti.AllTransactions, tx)
	ti.positions[tx.ID] = pos

	days, ok := ti.CurrencyDayIndex[tx.Currency]
	if !ok {
		days = make(map[string][]int)
		ti.CurrencyDayIndex[tx.Currency] = days
	}
	key := dayKey(tx.OccurredAt)
	days[key] = append(days[key], pos)
}

// UpdateTransaction replaces a transaction in place. Currency and date are
// immutable so the buckets are unaffected.
func (ti *TransactionIndex) UpdateTransaction(tx models.Transaction) bool {
	pos, ok := ti.positions[tx.ID]
	if !ok {
		return false
	}
	ti.AllTransactions[pos] = tx
	return true
}

// Get returns the transaction with the given id
func (ti *TransactionIndex) Get(id string) (models.Transaction, bool) {
	pos, ok := ti.positions[id]
	if !ok {
		return models.Transaction{}, false
	}
	return ti.AllTransactions[pos], true
}

// GetCandidates returns transactions in the currency whose day is within
// windowDays of date, in ledger order.
func (ti *TransactionIndex) GetCandidates(currency string, date time.Time, windowDays int) []models.Transaction {
	days, ok := ti.CurrencyDayIndex[currency]
	if !ok {
		return nil
	}

	var positions []int
	start := models.DayOf(date).AddDate(0, 0, -windowDays)
	// Iterate whichever side is smaller: the window or the populated days.
	if 2*windowDays+1 <= len(days) {
		for i := 0; i <= 2*windowDays; i++ {
			positions = append(positions, days[dayKey(start.AddDate(0, 0, i))]...)
		}
	} else {
		for key, bucket := range days {
			day, err := time.Parse(dayKeyLayout, key)
			if err != nil {
				continue
			}
			if models.DaysBetween(day, date) <= windowDays {
				positions = append(positions, bucket...)
			}
		}
	}

	sort.Ints(positions)
	return ti.collect(positions)
}

// GetIndexStats returns statistics about the transaction index
func (ti *TransactionIndex) GetIndexStats() IndexStats {
	stats := IndexStats{
		TotalTransactions: len(ti.AllTransactions),
		Currencies:        len(ti.CurrencyDayIndex),
	}
	for _, days := range ti.CurrencyDayIndex {
		stats.DistinctDays += len(days)
	}
	return stats
}

func (ti *TransactionIndex) collect(positions []int) []models.Transaction {
	if len(positions) == 0 {
		return nil
	}
	out := make([]models.Transaction, len(positions))
	for i, pos := range positions {
		out[i] = ti.AllTransactions[pos]
	}
	return out
}

func dayKey(t time.Time) string {
	return models.DayOf(t).Format(dayKeyLayout)
}
