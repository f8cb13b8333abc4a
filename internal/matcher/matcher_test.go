package matcher

import (
	"math/rand"
	"testing"
	"time"

	"corporatepay-reconciliation/internal/models"

	"github.com/shopspring/decimal"
)

func d(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func line(id, vendor string, amount int64, day int) models.InvoiceLine {
	return models.InvoiceLine{
		ID:          id,
		InvoiceID:   "INV-1",
		Currency:    "UGX",
		Vendor:      vendor,
		Module:      "Rides",
		Amount:      d(amount),
		ServiceDate: time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC),
	}
}

func ledgerTx(id, vendor string, amount int64, day int, status models.TransactionStatus) models.Transaction {
	return models.Transaction{
		ID:         id,
		Type:       models.TransactionTypeSpend,
		Status:     status,
		Currency:   "UGX",
		Amount:     d(amount),
		Vendor:     vendor,
		Module:     "Rides",
		OccurredAt: time.Date(2025, 3, day, 10, 0, 0, 0, time.UTC),
	}
}

func newEngine(txs []models.Transaction, rules ...models.AutoMatchRule) *MatchingEngine {
	engine := NewMatchingEngine(nil)
	engine.LoadTransactions(txs)
	if len(rules) > 0 {
		engine.SetRules(rules)
	}
	return engine
}

func TestNewMatchingEngine(t *testing.T) {
	engine := NewMatchingEngine(nil)
	if engine.Config == nil {
		t.Fatal("expected default config to be set")
	}
	if engine.Config.CandidateWindowDays != 30 || engine.Config.MaxSuggestions != 8 {
		t.Errorf("unexpected defaults: %s", engine.Config)
	}
	if len(engine.EnabledRules()) != 2 {
		t.Errorf("expected 2 enabled default rules, got %d", len(engine.EnabledRules()))
	}
}

func TestMatchingConfig_Validate(t *testing.T) {
	config := DefaultMatchingConfig()
	if err := config.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	bad := config.Clone()
	bad.MaxSuggestions = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected zero max suggestions to be rejected")
	}
	if config.MaxSuggestions != 8 {
		t.Error("Clone shares state with the original")
	}
}

func TestPartialThreshold(t *testing.T) {
	config := DefaultMatchingConfig()

	if got := config.PartialThreshold(d(10000)); !got.Equal(d(1000)) {
		t.Errorf("small line: expected floor 1000, got %s", got)
	}
	if got := config.PartialThreshold(d(165000)); !got.Equal(d(3300)) {
		t.Errorf("large line: expected 2%% = 3300, got %s", got)
	}
}

func TestRankCandidates(t *testing.T) {
	txs := []models.Transaction{
		ledgerTx("TX-far", "EVzone Rides", 165000, 20, models.StatusPosted),
		ledgerTx("TX-exact", "EVzone Rides", 165000, 14, models.StatusPosted),
		ledgerTx("TX-failed", "EVzone Rides", 165000, 14, models.StatusFailed),
		ledgerTx("TX-pending", "EVzone Rides", 165000, 14, models.StatusPending),
		ledgerTx("TX-other-vendor", "SkyJet", 165000, 14, models.StatusPosted),
		ledgerTx("TX-out-of-window", "EVzone Rides", 165000, 1, models.StatusPosted),
	}
	txs[5].OccurredAt = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	kes := ledgerTx("TX-kes", "EVzone Rides", 165000, 14, models.StatusPosted)
	kes.Currency = "KES"
	txs = append(txs, kes)

	engine := newEngine(txs)
	l := line("L-1", "EVzone Rides", 165000, 14)
	balances := NewBalances([]models.InvoiceLine{l}, txs, nil)

	ranked := engine.RankCandidates(&l, balances)
	got := make([]string, len(ranked))
	for i, c := range ranked {
		got[i] = c.Transaction.ID
	}

	expected := []string{"TX-exact", "TX-pending", "TX-far", "TX-other-vendor"}
	if len(got) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, got)
		}
	}

	if ranked[0].Score != 1 || ranked[0].RuleID != "exact-vendor-amount" {
		t.Errorf("expected exact match under first rule, got %+v", ranked[0])
	}
	if ranked[3].Score != 0 {
		t.Errorf("expected vendor mismatch to score 0, got %v", ranked[3].Score)
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Score > ranked[i-1].Score {
			t.Fatal("candidates not sorted by descending score")
		}
	}
}

func TestRankCandidates_SkipsExhaustedTransactions(t *testing.T) {
	txs := []models.Transaction{ledgerTx("TX-1", "EVzone Rides", 1000, 14, models.StatusPosted)}
	lines := []models.InvoiceLine{line("L-1", "EVzone Rides", 1000, 14), line("L-2", "EVzone Rides", 1000, 14)}
	committed := []models.Match{{LineID: "L-1", TransactionID: "TX-1", Amount: d(1000)}}

	engine := newEngine(txs)
	balances := NewBalances(lines, txs, committed)

	if got := engine.RankCandidates(&lines[1], balances); len(got) != 0 {
		t.Errorf("expected no candidates once the transaction is fully claimed, got %d", len(got))
	}
}

func TestTopCandidates(t *testing.T) {
	var txs []models.Transaction
	for i := 0; i < 12; i++ {
		txs = append(txs, ledgerTx(string(rune('A'+i)), "EVzone Rides", int64(1000+i), 14, models.StatusPosted))
	}
	engine := newEngine(txs)
	l := line("L-1", "EVzone Rides", 1000, 14)
	balances := NewBalances([]models.InvoiceLine{l}, txs, nil)

	if got := engine.TopCandidates(&l, balances, 0); len(got) != 8 {
		t.Errorf("expected default of 8 suggestions, got %d", len(got))
	}
	if got := engine.TopCandidates(&l, balances, 3); len(got) != 3 {
		t.Errorf("expected 3 suggestions, got %d", len(got))
	}
}

func TestPlanAutoMatch_Basic(t *testing.T) {
	txs := []models.Transaction{
		ledgerTx("TX-1", "EVzone Rides", 165000, 14, models.StatusPosted),
		ledgerTx("TX-2", "SkyJet", 420000, 15, models.StatusPosted),
	}
	lines := []models.InvoiceLine{
		line("L-1", "EVzone Rides", 165000, 14),
		line("L-2", "SkyJet", 420000, 15),
		line("L-3", "Nobody", 5000, 15),
	}

	engine := newEngine(txs)
	balances := NewBalances(lines, txs, nil)
	plan := engine.PlanAutoMatch(lines, balances)

	if len(plan.Proposals) != 2 {
		t.Fatalf("expected 2 proposals, got %d: %s", len(plan.Proposals), plan)
	}
	if plan.Proposals[0].LineID != "L-1" || plan.Proposals[0].TransactionID != "TX-1" {
		t.Errorf("unexpected first proposal %+v", plan.Proposals[0])
	}
	if plan.Proposals[0].Score != 1 || plan.Proposals[0].RuleID != "exact-vendor-amount" {
		t.Errorf("expected exact rule with score 1, got %+v", plan.Proposals[0])
	}
	if len(plan.Skipped) != 1 || plan.Skipped[0].Reason != SkipNoCandidate {
		t.Errorf("expected L-3 skipped for lack of candidates, got %+v", plan.Skipped)
	}
	if len(plan.UnmatchedLines) != 1 || plan.UnmatchedLines[0] != "L-3" {
		t.Errorf("expected L-3 unmatched, got %v", plan.UnmatchedLines)
	}
	if !plan.MatchedAmount.Equal(d(585000)) {
		t.Errorf("unexpected matched amount %s", plan.MatchedAmount)
	}
	if !balances.LineRemaining("L-1").Equal(d(165000)) {
		t.Error("PlanAutoMatch modified the caller's balances")
	}
}

func TestPlanAutoMatch_PartialPolicy(t *testing.T) {
	txs := []models.Transaction{ledgerTx("TX-small", "EVzone Rides", 60000, 14, models.StatusPosted)}
	lines := []models.InvoiceLine{line("L-1", "EVzone Rides", 100000, 14)}

	noPartial := models.AutoMatchRule{
		ID: "no-partial", Name: "No partial", Enabled: true,
		RequireSameVendor: true, DateWindowDays: 1, AmountTolerancePct: 50, MinConfidence: 0.5,
	}
	plan := newEngine(txs, noPartial).PlanAutoMatch(lines, NewBalances(lines, txs, nil))

	if len(plan.Proposals) != 0 {
		t.Fatalf("expected no proposals under a no-partial rule, got %+v", plan.Proposals)
	}
	if len(plan.Skipped) != 1 || plan.Skipped[0].Reason != SkipPartialBlocked {
		t.Errorf("expected partial skip, got %+v", plan.Skipped)
	}

	partial := noPartial
	partial.AllowPartialMatch = true
	plan = newEngine(txs, partial).PlanAutoMatch(lines, NewBalances(lines, txs, nil))
	if len(plan.Proposals) != 1 || !plan.Proposals[0].Amount.Equal(d(60000)) {
		t.Fatalf("expected a 60000 partial proposal, got %+v", plan.Proposals)
	}
}

func TestPlanAutoMatch_MinConfidence(t *testing.T) {
	txs := []models.Transaction{ledgerTx("TX-1", "EVzone Rides", 165000, 14, models.StatusPending)}
	lines := []models.InvoiceLine{line("L-1", "EVzone Rides", 165000, 14)}

	rule := models.AutoMatchRule{ID: "r", Name: "r", Enabled: true, RequireSameVendor: true, DateWindowDays: 1, MinConfidence: 0.8}
	plan := newEngine(txs, rule).PlanAutoMatch(lines, NewBalances(lines, txs, nil))

	if len(plan.Proposals) != 0 {
		t.Errorf("pending transaction scores 0.7 and must not pass 0.8, got %+v", plan.Proposals)
	}
}

func TestPlanAutoMatch_ZeroScoreNeverQualifies(t *testing.T) {
	txs := []models.Transaction{ledgerTx("TX-1", "SkyJet", 165000, 14, models.StatusPosted)}
	lines := []models.InvoiceLine{line("L-1", "EVzone Rides", 165000, 14)}

	rule := models.AutoMatchRule{ID: "r", Name: "r", Enabled: true, RequireSameVendor: true, DateWindowDays: 1, MinConfidence: 0}
	plan := newEngine(txs, rule).PlanAutoMatch(lines, NewBalances(lines, txs, nil))

	if len(plan.Proposals) != 0 {
		t.Errorf("vendor mismatch scores 0 and must not match under minConfidence 0, got %+v", plan.Proposals)
	}
	if len(plan.Skipped) != 1 || plan.Skipped[0].LineID != "L-1" {
		t.Errorf("expected L-1 skipped, got %+v", plan.Skipped)
	}
}

func TestPlanAutoMatch_FirstComeFirstServed(t *testing.T) {
	txs := []models.Transaction{ledgerTx("TX-1", "EVzone Rides", 1000, 14, models.StatusPosted)}
	lines := []models.InvoiceLine{
		line("L-first", "EVzone Rides", 1000, 14),
		line("L-second", "EVzone Rides", 1000, 14),
	}

	plan := newEngine(txs).PlanAutoMatch(lines, NewBalances(lines, txs, nil))

	if len(plan.Proposals) != 1 || plan.Proposals[0].LineID != "L-first" {
		t.Fatalf("expected the earlier line to claim the transaction, got %+v", plan.Proposals)
	}
	if len(plan.UnmatchedLines) != 1 || plan.UnmatchedLines[0] != "L-second" {
		t.Errorf("expected L-second unmatched, got %v", plan.UnmatchedLines)
	}
}

func TestPlanAutoMatch_TieBreaks(t *testing.T) {
	txs := []models.Transaction{
		ledgerTx("TX-a", "EVzone Rides", 1000, 14, models.StatusPosted),
		ledgerTx("TX-b", "EVzone Rides", 1000, 14, models.StatusPosted),
	}
	lines := []models.InvoiceLine{line("L-1", "EVzone Rides", 1000, 14)}

	r1 := models.AutoMatchRule{ID: "r1", Name: "r1", Enabled: true, DateWindowDays: 1, MinConfidence: 0.5}
	r2 := r1
	r2.ID, r2.Name = "r2", "r2"

	plan := newEngine(txs, r1, r2).PlanAutoMatch(lines, NewBalances(lines, txs, nil))
	if len(plan.Proposals) != 1 {
		t.Fatalf("expected one proposal, got %d", len(plan.Proposals))
	}
	if plan.Proposals[0].TransactionID != "TX-a" || plan.Proposals[0].RuleID != "r1" {
		t.Errorf("expected earliest transaction and rule to win ties, got %+v", plan.Proposals[0])
	}
}

func TestPlanAutoMatch_RespectsCommittedMatches(t *testing.T) {
	txs := []models.Transaction{ledgerTx("TX-1", "EVzone Rides", 1000, 14, models.StatusPosted)}
	lines := []models.InvoiceLine{line("L-1", "EVzone Rides", 1000, 14)}
	committed := []models.Match{{LineID: "L-1", TransactionID: "TX-1", Amount: d(1000)}}

	plan := newEngine(txs).PlanAutoMatch(lines, NewBalances(lines, txs, committed))
	if plan.LinesConsidered != 0 || len(plan.Proposals) != 0 {
		t.Errorf("expected settled line to be ignored, got %s", plan)
	}
}

func TestPlanAutoMatch_DisabledRulesIgnored(t *testing.T) {
	txs := []models.Transaction{ledgerTx("TX-1", "EVzone Rides", 1000, 14, models.StatusPosted)}
	lines := []models.InvoiceLine{line("L-1", "EVzone Rides", 1000, 14)}

	rule := models.AutoMatchRule{ID: "off", Name: "off", Enabled: false, MinConfidence: 0}
	plan := newEngine(txs, rule).PlanAutoMatch(lines, NewBalances(lines, txs, nil))
	if len(plan.Proposals) != 0 {
		t.Errorf("expected no proposals with every rule disabled, got %+v", plan.Proposals)
	}
}

func TestPlanAutoMatch_BalanceInvariant(t *testing.T) {
	r := rand.New(rand.NewSource(2025))
	vendors := []string{"EVzone Rides", "EVmart", "SkyJet"}
	statuses := []models.TransactionStatus{models.StatusPosted, models.StatusPosted, models.StatusPending, models.StatusFailed}

	for round := 0; round < 50; round++ {
		var txs []models.Transaction
		var lines []models.InvoiceLine
		for i := 0; i < 20; i++ {
			txs = append(txs, ledgerTx(
				"TX-"+string(rune('a'+i)),
				vendors[r.Intn(len(vendors))],
				int64(500+r.Intn(5000)),
				1+r.Intn(28),
				statuses[r.Intn(len(statuses))],
			))
			lines = append(lines, line(
				"L-"+string(rune('a'+i)),
				vendors[r.Intn(len(vendors))],
				int64(500+r.Intn(5000)),
				1+r.Intn(28),
			))
		}

		rules := models.DefaultRules()
		for i := range rules {
			rules[i].Enabled = true
		}
		engine := newEngine(txs, rules...)
		balances := NewBalances(lines, txs, nil)

		// Two passes: the second must respect what the first committed.
		var committed []models.Match
		for pass := 0; pass < 2; pass++ {
			plan := engine.PlanAutoMatch(lines, balances)
			for _, p := range plan.Proposals {
				committed = append(committed, models.Match{LineID: p.LineID, TransactionID: p.TransactionID, Amount: p.Amount})
				balances.Apply(p.LineID, p.TransactionID, p.Amount)
			}
		}

		lineSum := map[string]decimal.Decimal{}
		txSum := map[string]decimal.Decimal{}
		for _, m := range committed {
			if !m.Amount.IsPositive() {
				t.Fatalf("non-positive match amount %s", m.Amount)
			}
			lineSum[m.LineID] = lineSum[m.LineID].Add(m.Amount)
			txSum[m.TransactionID] = txSum[m.TransactionID].Add(m.Amount)
		}
		for _, l := range lines {
			if lineSum[l.ID].GreaterThan(l.Amount) {
				t.Fatalf("line %s over-matched: %s > %s", l.ID, lineSum[l.ID], l.Amount)
			}
		}
		for _, tx := range txs {
			if txSum[tx.ID].GreaterThan(tx.Amount) {
				t.Fatalf("transaction %s over-matched: %s > %s", tx.ID, txSum[tx.ID], tx.Amount)
			}
			if tx.Status == models.StatusFailed && txSum[tx.ID].IsPositive() {
				t.Fatalf("failed transaction %s was matched", tx.ID)
			}
		}
	}
}
