package reconciler

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"corporatepay-reconciliation/internal/erp"
	"corporatepay-reconciliation/internal/matcher"
	"corporatepay-reconciliation/internal/metrics"
	"corporatepay-reconciliation/internal/models"
	"corporatepay-reconciliation/pkg/errors"
	"corporatepay-reconciliation/pkg/logger"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// SystemActor is recorded on audit events no user initiated
const SystemActor = "system"

// maxListedLines caps how many line ids the aggregate unmatched exception names
const maxListedLines = 10

// IDSource generates identifiers for workspace entities and audit events
type IDSource interface {
	// NewID returns an id for a match or exception
	NewID() string
	// NewEventID returns a time-ordered id for an audit event
	NewEventID(at time.Time) string
}

type randomIDs struct {
	mu      sync.Mutex
	entropy io.Reader
}

// NewRandomIDs returns UUIDv4 entity ids and monotonic ULID event ids
func NewRandomIDs() IDSource {
	return &randomIDs{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (r *randomIDs) NewID() string {
	return uuid.NewString()
}

func (r *randomIDs) NewEventID(at time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), r.entropy).String()
}

// Options configures a Workspace. Nil fields select defaults.
type Options struct {
	MatchingConfig *matcher.MatchingConfig
	Rules          []models.AutoMatchRule
	Mappings       []models.ErpMapping
	Clock          func() time.Time
	IDs            IDSource
	Recorder       metrics.Recorder
}

// Workspace owns the loaded ledger, the invoice lines and everything derived
// from them. All access goes through its methods; returned slices are copies.
type Workspace struct {
	mu sync.RWMutex

	config   *matcher.MatchingConfig
	engine   *matcher.MatchingEngine
	balances *matcher.Balances

	transactions []models.Transaction
	txPos        map[string]int
	lines        []models.InvoiceLine
	linePos      map[string]int
	matches      []models.Match
	rules        []models.AutoMatchRule
	mappings     []models.ErpMapping
	exceptions   []models.ExceptionItem
	audit        []models.AuditEvent

	now      func() time.Time
	ids      IDSource
	recorder metrics.Recorder
	log      logger.Logger
}

// NewWorkspace builds a workspace over the given ledger and invoice lines
func NewWorkspace(transactions []models.Transaction, lines []models.InvoiceLine, opts *Options) (*Workspace, error) {
	if opts == nil {
		opts = &Options{}
	}

	config := opts.MatchingConfig
	if config == nil {
		config = matcher.DefaultMatchingConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching", config.String(), err)
	}

	rules := opts.Rules
	if rules == nil {
		rules = models.DefaultRules()
	}
	rules, err := normalizeRules(rules)
	if err != nil {
		return nil, err
	}

	mappings := opts.Mappings
	if mappings == nil {
		mappings = models.DefaultMappings()
	}
	if err := validateMappings(mappings); err != nil {
		return nil, err
	}

	w := &Workspace{
		config:       config.Clone(),
		transactions: append([]models.Transaction(nil), transactions...),
		txPos:        make(map[string]int, len(transactions)),
		lines:        append([]models.InvoiceLine(nil), lines...),
		linePos:      make(map[string]int, len(lines)),
		rules:        rules,
		mappings:     append([]models.ErpMapping(nil), mappings...),
		now:          opts.Clock,
		ids:          opts.IDs,
		recorder:     opts.Recorder,
		log:          logger.GetGlobalLogger().WithComponent("workspace"),
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.ids == nil {
		w.ids = NewRandomIDs()
	}
	if w.recorder == nil {
		w.recorder = metrics.Noop{}
	}

	for i, tx := range w.transactions {
		if _, dup := w.txPos[tx.ID]; dup {
			return nil, errors.ReconciliationError(errors.CodeDataInconsistent, "load_workspace",
				fmt.Errorf("duplicate transaction id %s", tx.ID))
		}
		w.txPos[tx.ID] = i
	}
	for i, line := range w.lines {
		if _, dup := w.linePos[line.ID]; dup {
			return nil, errors.ReconciliationError(errors.CodeDataInconsistent, "load_workspace",
				fmt.Errorf("duplicate invoice line id %s", line.ID))
		}
		w.linePos[line.ID] = i
	}

	w.engine = matcher.NewMatchingEngine(w.config)
	w.engine.LoadTransactions(w.transactions)
	w.engine.SetRules(w.rules)
	w.balances = matcher.NewBalances(w.lines, w.transactions, nil)

	w.log.WithFields(logger.Fields{
		"transactions": len(w.transactions),
		"lines":        len(w.lines),
		"rules":        len(w.rules),
		"mappings":     len(w.mappings),
	}).Info("Workspace loaded")

	return w, nil
}

func normalizeRules(rules []models.AutoMatchRule) ([]models.AutoMatchRule, error) {
	out := make([]models.AutoMatchRule, 0, len(rules))
	seen := make(map[string]bool, len(rules))
	for _, rule := range rules {
		rule.Normalize()
		if err := rule.Validate(); err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "rules", rule.ID, err)
		}
		if seen[rule.ID] {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "rules", rule.ID,
				fmt.Errorf("duplicate rule id %s", rule.ID))
		}
		seen[rule.ID] = true
		out = append(out, rule)
	}
	return out, nil
}

func validateMappings(mappings []models.ErpMapping) error {
	seen := make(map[string]bool, len(mappings))
	for i := range mappings {
		if err := mappings[i].Validate(); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "mappings", mappings[i].ID, err)
		}
		if seen[mappings[i].ID] {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "mappings", mappings[i].ID,
				fmt.Errorf("duplicate mapping id %s", mappings[i].ID))
		}
		seen[mappings[i].ID] = true
	}
	return nil
}

func actorOrSystem(actor string) string {
	if strings.TrimSpace(actor) == "" {
		return SystemActor
	}
	return strings.TrimSpace(actor)
}

// MatchRequest asks for a manual match of amount between a line and a transaction
type MatchRequest struct {
	LineID        string
	TransactionID string
	Amount        decimal.Decimal
	Actor         string
	Note          string
}

// MatchResult is a committed manual match and the exception it raised, if any
type MatchResult struct {
	Match     models.Match          `json:"match"`
	Exception *models.ExceptionItem `json:"exception,omitempty"`
}

// CreateMatch validates and commits a manual match. Nothing changes when the
// request is rejected.
func (w *Workspace) CreateMatch(req MatchRequest) (*MatchResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	line, ok := w.line(req.LineID)
	if !ok {
		return nil, errors.NotFound("invoice line", req.LineID)
	}
	tx, ok := w.transaction(req.TransactionID)
	if !ok {
		return nil, errors.NotFound("transaction", req.TransactionID)
	}
	if !req.Amount.IsPositive() {
		return nil, errors.ValidationError(errors.CodeInvalidAmount, "amount", req.Amount.String(), nil)
	}

	lineRemaining := w.balances.LineRemaining(line.ID)
	if req.Amount.GreaterThan(lineRemaining) {
		return nil, errors.ValidationError(errors.CodeExceedsBalance, "line", req.Amount.String(), nil).
			WithContext("remaining", lineRemaining.String())
	}
	txRemaining := w.balances.TransactionRemaining(tx.ID)
	if req.Amount.GreaterThan(txRemaining) {
		return nil, errors.ValidationError(errors.CodeExceedsBalance, "transaction", req.Amount.String(), nil).
			WithContext("remaining", txRemaining.String())
	}

	now := w.now()
	actor := actorOrSystem(req.Actor)
	m := models.Match{
		ID:            w.ids.NewID(),
		LineID:        line.ID,
		TransactionID: tx.ID,
		Amount:        req.Amount,
		Method:        models.MatchMethodManual,
		Confidence:    1,
		CreatedBy:     actor,
		Note:          strings.TrimSpace(req.Note),
		CreatedAt:     now,
	}
	w.commitMatch(m, actor, now)

	result := &MatchResult{Match: m}
	remaining := w.balances.LineRemaining(line.ID)
	if remaining.GreaterThan(w.config.PartialThreshold(line.Amount)) {
		exc := w.raiseException(models.ExceptionItem{
			Type:          models.ExceptionPartialPayment,
			Severity:      models.SeverityLow,
			Title:         fmt.Sprintf("Partial payment on line %s", line.ID),
			Detail:        fmt.Sprintf("%s %s of %s remains open after matching %s", remaining.StringFixed(2), line.Currency, line.Amount.StringFixed(2), tx.ID),
			LineID:        line.ID,
			TransactionID: tx.ID,
			Amount:        &remaining,
		}, actor, now)
		result.Exception = &exc
	}

	return result, nil
}

// RemoveMatch deletes a committed match and releases its amount
func (w *Workspace) RemoveMatch(id, actor string) (models.Match, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, m := range w.matches {
		if m.ID != id {
			continue
		}
		w.matches = append(w.matches[:i], w.matches[i+1:]...)
		w.balances.Release(m.LineID, m.TransactionID, m.Amount)
		w.appendAudit(actorOrSystem(actor), models.ActionMatchRemoved, m.ID,
			fmt.Sprintf("released %s between %s and %s", m.Amount.StringFixed(2), m.LineID, m.TransactionID), w.now())
		w.recorder.MatchRemoved()
		w.log.WithFields(logger.Fields{"match_id": m.ID, "line_id": m.LineID}).Info("Match removed")
		return m, nil
	}
	return models.Match{}, errors.NotFound("match", id)
}

// AutoMatchOutcome is the committed result of one batch auto-match run
type AutoMatchOutcome struct {
	Matches         []models.Match        `json:"matches"`
	Skipped         []matcher.SkippedLine `json:"skipped"`
	UnmatchedLines  []string              `json:"unmatchedLines"`
	MatchedAmount   decimal.Decimal       `json:"matchedAmount"`
	LinesConsidered int                   `json:"linesConsidered"`
	Exception       *models.ExceptionItem `json:"exception,omitempty"`
}

// RunAutoMatch plans a batch pass over every open line and commits it
func (w *Workspace) RunAutoMatch(actor string) *AutoMatchOutcome {
	w.mu.Lock()
	defer w.mu.Unlock()

	started := time.Now()
	actor = actorOrSystem(actor)
	plan := w.engine.PlanAutoMatch(w.lines, w.balances)
	now := w.now()

	outcome := &AutoMatchOutcome{
		Matches:         make([]models.Match, 0, len(plan.Proposals)),
		Skipped:         plan.Skipped,
		UnmatchedLines:  plan.UnmatchedLines,
		MatchedAmount:   plan.MatchedAmount,
		LinesConsidered: plan.LinesConsidered,
	}

	for _, p := range plan.Proposals {
		m := models.Match{
			ID:            w.ids.NewID(),
			LineID:        p.LineID,
			TransactionID: p.TransactionID,
			Amount:        p.Amount,
			Method:        models.MatchMethodAuto,
			Confidence:    p.Score,
			RuleID:        p.RuleID,
			CreatedBy:     actor,
			CreatedAt:     now,
		}
		w.commitMatch(m, actor, now)
		outcome.Matches = append(outcome.Matches, m)
	}

	if len(plan.UnmatchedLines) > 0 {
		exc := w.raiseUnmatched(plan.UnmatchedLines, actor, now)
		outcome.Exception = &exc
	}

	w.appendAudit(actor, models.ActionAutoMatchRun, "",
		fmt.Sprintf("%d matched, %d skipped, %d lines still open", len(outcome.Matches), len(outcome.Skipped), len(outcome.UnmatchedLines)), now)
	w.recorder.AutoMatchRun(len(outcome.Matches), len(outcome.Skipped), time.Since(started))

	w.log.WithFields(logger.Fields{
		"matched":        len(outcome.Matches),
		"skipped":        len(outcome.Skipped),
		"unmatched":      len(outcome.UnmatchedLines),
		"matched_amount": outcome.MatchedAmount.String(),
	}).Info("Auto-match run committed")

	return outcome
}

// raiseUnmatched records the aggregate unmatched exception. An unresolved
// aggregate from an earlier run is refreshed instead of duplicated.
func (w *Workspace) raiseUnmatched(lineIDs []string, actor string, now time.Time) models.ExceptionItem {
	listed := lineIDs
	if len(listed) > maxListedLines {
		listed = listed[:maxListedLines]
	}
	detail := "open lines: " + strings.Join(listed, ", ")
	if len(lineIDs) > len(listed) {
		detail += fmt.Sprintf(" and %d more", len(lineIDs)-len(listed))
	}
	title := fmt.Sprintf("%d invoice lines unmatched after auto-match", len(lineIDs))

	for i := range w.exceptions {
		e := &w.exceptions[i]
		if e.Type == models.ExceptionUnmatched && e.LineID == "" && e.TransactionID == "" && e.IsOpen() {
			e.Title = title
			e.Detail = detail
			e.UpdatedAt = now
			w.appendAudit(actor, models.ActionExceptionUpdated, e.ID, title, now)
			return copyException(*e)
		}
	}

	return w.raiseException(models.ExceptionItem{
		Type:     models.ExceptionUnmatched,
		Severity: models.SeverityMedium,
		Title:    title,
		Detail:   detail,
	}, actor, now)
}

// Candidates ranks up to n transactions for a line; n <= 0 selects the
// configured suggestion count
func (w *Workspace) Candidates(lineID string, n int) ([]matcher.Candidate, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	line, ok := w.line(lineID)
	if !ok {
		return nil, errors.NotFound("invoice line", lineID)
	}
	if n <= 0 {
		n = w.config.MaxSuggestions
	}
	return w.engine.TopCandidates(line, w.balances, n), nil
}

// SaveRule inserts or replaces a rule by id. New rules go last.
func (w *Workspace) SaveRule(rule models.AutoMatchRule, actor string) (models.AutoMatchRule, error) {
	rule.Normalize()
	if err := rule.Validate(); err != nil {
		return models.AutoMatchRule{}, errors.ValidationError(errors.CodeOutOfRange, "rule", rule.ID, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	replaced := false
	for i := range w.rules {
		if w.rules[i].ID == rule.ID {
			w.rules[i] = rule
			replaced = true
			break
		}
	}
	if !replaced {
		w.rules = append(w.rules, rule)
	}
	w.engine.SetRules(w.rules)

	w.appendAudit(actorOrSystem(actor), models.ActionRuleUpdated, rule.ID,
		fmt.Sprintf("enabled=%t window=%dd tolerance=%.2f%% min=%.2f", rule.Enabled, rule.DateWindowDays, rule.AmountTolerancePct, rule.MinConfidence), w.now())
	return rule, nil
}

// SaveMapping inserts or replaces an ERP mapping by id
func (w *Workspace) SaveMapping(mapping models.ErpMapping, actor string) (models.ErpMapping, error) {
	mapping.ID = strings.TrimSpace(mapping.ID)
	if err := mapping.Validate(); err != nil {
		return models.ErpMapping{}, errors.ValidationError(errors.CodeInvalidData, "mapping", mapping.ID, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	replaced := false
	for i := range w.mappings {
		if w.mappings[i].ID == mapping.ID {
			w.mappings[i] = mapping
			replaced = true
			break
		}
	}
	if !replaced {
		w.mappings = append(w.mappings, mapping)
	}

	w.appendAudit(actorOrSystem(actor), models.ActionMappingUpdated, mapping.ID,
		fmt.Sprintf("%s %s -> %s", mapping.Scope, mapping.Key, mapping.GLCode), w.now())
	return mapping, nil
}

// ApplyConfiguration replaces the rule and mapping sets together. Either both
// are applied or neither is.
func (w *Workspace) ApplyConfiguration(rules []models.AutoMatchRule, mappings []models.ErpMapping, actor string) error {
	normalized, err := normalizeRules(rules)
	if err != nil {
		return err
	}
	if err := validateMappings(mappings); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	actor = actorOrSystem(actor)
	w.rules = normalized
	w.engine.SetRules(w.rules)
	w.mappings = append([]models.ErpMapping(nil), mappings...)
	w.appendAudit(actor, models.ActionRuleUpdated, "*", fmt.Sprintf("%d rules reloaded", len(w.rules)), now)
	w.appendAudit(actor, models.ActionMappingUpdated, "*", fmt.Sprintf("%d mappings reloaded", len(w.mappings)), now)

	w.log.WithFields(logger.Fields{"rules": len(w.rules), "mappings": len(w.mappings)}).Info("Configuration applied")
	return nil
}

// ExceptionRequest describes a manually raised exception
type ExceptionRequest struct {
	Type          models.ExceptionType
	Severity      models.Severity
	Title         string
	Detail        string
	LineID        string
	TransactionID string
	Amount        *decimal.Decimal
	Actor         string
}

// CreateException raises a manual exception. Referenced entities must exist.
func (w *Workspace) CreateException(req ExceptionRequest) (models.ExceptionItem, error) {
	item := models.ExceptionItem{
		Type:          req.Type,
		Severity:      req.Severity,
		Title:         strings.TrimSpace(req.Title),
		Detail:        strings.TrimSpace(req.Detail),
		LineID:        strings.TrimSpace(req.LineID),
		TransactionID: strings.TrimSpace(req.TransactionID),
	}
	if req.Amount != nil {
		amount := *req.Amount
		item.Amount = &amount
	}
	if err := item.Validate(); err != nil {
		return models.ExceptionItem{}, errors.ValidationError(errors.CodeInvalidData, "exception", item.Title, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if item.LineID != "" {
		if _, ok := w.linePos[item.LineID]; !ok {
			return models.ExceptionItem{}, errors.NotFound("invoice line", item.LineID)
		}
	}
	if item.TransactionID != "" {
		if _, ok := w.txPos[item.TransactionID]; !ok {
			return models.ExceptionItem{}, errors.NotFound("transaction", item.TransactionID)
		}
	}

	return w.raiseException(item, actorOrSystem(req.Actor), w.now()), nil
}

// UpdateExceptionStatus moves an exception through its review workflow
func (w *Workspace) UpdateExceptionStatus(id string, status models.ExceptionStatus, actor string) (models.ExceptionItem, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := range w.exceptions {
		e := &w.exceptions[i]
		if e.ID != id {
			continue
		}
		if !e.Status.CanTransitionTo(status) {
			return models.ExceptionItem{}, errors.ValidationError(errors.CodeInvalidTransition, "exception status",
				fmt.Sprintf("%s -> %s", e.Status, status), nil)
		}
		from := e.Status
		now := w.now()
		e.Status = status
		e.UpdatedAt = now
		w.appendAudit(actorOrSystem(actor), models.ActionExceptionStatusChanged, e.ID,
			fmt.Sprintf("%s -> %s", from, status), now)
		return copyException(*e), nil
	}
	return models.ExceptionItem{}, errors.NotFound("exception", id)
}

// ScanExceptions raises ledger anomalies not already under review and
// returns the newly raised exceptions. Repeated scans raise nothing new.
func (w *Workspace) ScanExceptions(actor string) []models.ExceptionItem {
	w.mu.Lock()
	defer w.mu.Unlock()

	actor = actorOrSystem(actor)
	now := w.now()
	raised := []models.ExceptionItem{}

	for _, a := range matcher.DetectAnomalies(w.transactions) {
		if w.hasOpenException(a.Type, a.TransactionID) {
			continue
		}
		amount := a.Amount
		raised = append(raised, w.raiseException(models.ExceptionItem{
			Type:          a.Type,
			Severity:      a.Severity,
			Title:         a.Title,
			Detail:        a.Detail,
			TransactionID: a.TransactionID,
			Amount:        &amount,
		}, actor, now))
	}

	w.log.WithFields(logger.Fields{"raised": len(raised), "total": len(w.exceptions)}).Info("Exception scan completed")
	return raised
}

func (w *Workspace) hasOpenException(t models.ExceptionType, txID string) bool {
	for i := range w.exceptions {
		e := &w.exceptions[i]
		if e.Type == t && e.TransactionID == txID && e.IsOpen() {
			return true
		}
	}
	return false
}

// RetryTransaction moves a Failed transaction back to Pending
func (w *Workspace) RetryTransaction(id, actor string) (models.Transaction, error) {
	return w.transitionTransaction(id, models.StatusPending, actor)
}

// PostTransaction moves a Pending transaction to Posted
func (w *Workspace) PostTransaction(id, actor string) (models.Transaction, error) {
	return w.transitionTransaction(id, models.StatusPosted, actor)
}

func (w *Workspace) transitionTransaction(id string, next models.TransactionStatus, actor string) (models.Transaction, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	pos, ok := w.txPos[id]
	if !ok {
		return models.Transaction{}, errors.NotFound("transaction", id)
	}
	current := w.transactions[pos]
	if !current.Status.CanTransitionTo(next) {
		return models.Transaction{}, errors.ValidationError(errors.CodeInvalidTransition, "transaction status",
			fmt.Sprintf("%s -> %s", current.Status, next), nil)
	}

	updated := current.WithStatus(next)
	w.transactions[pos] = updated
	w.engine.TransactionIndex.UpdateTransaction(updated)
	w.appendAudit(actorOrSystem(actor), models.ActionTransactionStatusChange, id,
		fmt.Sprintf("%s -> %s", current.Status, next), w.now())

	w.log.WithFields(logger.Fields{"transaction_id": id, "from": current.Status, "to": next}).Info("Transaction status changed")
	return updated, nil
}

// RecordExport audits that an export of the given kind was produced
func (w *Workspace) RecordExport(kind, actor string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.appendAudit(actorOrSystem(actor), models.ActionExport, kind, "exported "+kind, w.now())
}

// LineRemaining returns the unmatched balance of a line
func (w *Workspace) LineRemaining(id string) (decimal.Decimal, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if _, ok := w.linePos[id]; !ok {
		return decimal.Zero, errors.NotFound("invoice line", id)
	}
	return w.balances.LineRemaining(id), nil
}

// TransactionRemaining returns the unmatched balance of a transaction
func (w *Workspace) TransactionRemaining(id string) (decimal.Decimal, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if _, ok := w.txPos[id]; !ok {
		return decimal.Zero, errors.NotFound("transaction", id)
	}
	return w.balances.TransactionRemaining(id), nil
}

// ExceptionFilter narrows ListExceptions; empty fields match everything
type ExceptionFilter struct {
	Status models.ExceptionStatus
	Type   models.ExceptionType
}

// ListExceptions returns exceptions in creation order
func (w *Workspace) ListExceptions(filter ExceptionFilter) []models.ExceptionItem {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := []models.ExceptionItem{}
	for _, e := range w.exceptions {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		out = append(out, copyException(e))
	}
	return out
}

// Journal resolves every transaction against the current ERP mappings
func (w *Workspace) Journal() []erp.JournalRow {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return erp.BuildJournal(w.transactions, w.mappings)
}

// Snapshot is a point-in-time copy of every workspace collection
type Snapshot struct {
	Config       *matcher.MatchingConfig
	Transactions []models.Transaction
	Lines        []models.InvoiceLine
	Matches      []models.Match
	Rules        []models.AutoMatchRule
	Mappings     []models.ErpMapping
	Exceptions   []models.ExceptionItem
	Audit        []models.AuditEvent
	TakenAt      time.Time
}

// Snapshot copies the workspace state
func (w *Workspace) Snapshot() *Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshot()
}

func (w *Workspace) snapshot() *Snapshot {
	exceptions := make([]models.ExceptionItem, len(w.exceptions))
	for i, e := range w.exceptions {
		exceptions[i] = copyException(e)
	}
	return &Snapshot{
		Config:       w.config.Clone(),
		Transactions: append([]models.Transaction{}, w.transactions...),
		Lines:        append([]models.InvoiceLine{}, w.lines...),
		Matches:      append([]models.Match{}, w.matches...),
		Rules:        append([]models.AutoMatchRule{}, w.rules...),
		Mappings:     append([]models.ErpMapping{}, w.mappings...),
		Exceptions:   exceptions,
		Audit:        append([]models.AuditEvent{}, w.audit...),
		TakenAt:      w.now(),
	}
}

func (w *Workspace) line(id string) (*models.InvoiceLine, bool) {
	pos, ok := w.linePos[id]
	if !ok {
		return nil, false
	}
	return &w.lines[pos], true
}

func (w *Workspace) transaction(id string) (*models.Transaction, bool) {
	pos, ok := w.txPos[id]
	if !ok {
		return nil, false
	}
	return &w.transactions[pos], true
}

func (w *Workspace) commitMatch(m models.Match, actor string, now time.Time) {
	w.matches = append(w.matches, m)
	w.balances.Apply(m.LineID, m.TransactionID, m.Amount)
	w.appendAudit(actor, models.ActionMatchCreated, m.ID,
		fmt.Sprintf("%s %s matched %s to %s", m.Method, m.Amount.StringFixed(2), m.LineID, m.TransactionID), now)
	w.recorder.MatchCreated(m.Method)

	w.log.WithFields(logger.Fields{
		"match_id":       m.ID,
		"line_id":        m.LineID,
		"transaction_id": m.TransactionID,
		"amount":         m.Amount.String(),
		"method":         m.Method,
	}).Debug("Match committed")
}

func (w *Workspace) raiseException(item models.ExceptionItem, actor string, now time.Time) models.ExceptionItem {
	item.ID = w.ids.NewID()
	item.Status = models.ExceptionOpen
	item.CreatedAt = now
	item.UpdatedAt = now
	w.exceptions = append(w.exceptions, item)
	w.appendAudit(actor, models.ActionExceptionCreated, item.ID, fmt.Sprintf("%s (%s): %s", item.Type, item.Severity, item.Title), now)
	w.recorder.ExceptionRaised(item.Type, item.Severity)
	return copyException(item)
}

func (w *Workspace) appendAudit(actor string, action models.AuditAction, entityID, detail string, at time.Time) {
	w.audit = append(w.audit, models.AuditEvent{
		ID:       w.ids.NewEventID(at),
		At:       at,
		Actor:    actor,
		Action:   action,
		EntityID: entityID,
		Detail:   detail,
	})
}

func copyException(e models.ExceptionItem) models.ExceptionItem {
	if e.Amount != nil {
		amount := *e.Amount
		e.Amount = &amount
	}
	return e
}
