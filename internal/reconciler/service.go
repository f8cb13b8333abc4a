package reconciler

import (
	"context"
	"fmt"
	"time"

	"corporatepay-reconciliation/internal/matcher"
	"corporatepay-reconciliation/internal/metrics"
	"corporatepay-reconciliation/internal/models"
	"corporatepay-reconciliation/internal/parsers"
	"corporatepay-reconciliation/pkg/errors"
	"corporatepay-reconciliation/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Config holds configuration options for the reconciliation service
type Config struct {
	// Date range filtering options
	StartDate *time.Time
	EndDate   *time.Time

	// MaxConcurrentFiles bounds how many input files parse at once
	MaxConcurrentFiles int

	// ScanExceptions raises ledger anomalies before auto-matching
	ScanExceptions bool

	// AutoMatch runs a batch auto-match pass after loading
	AutoMatch bool
}

// DefaultConfig returns a default configuration for the reconciliation service
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrentFiles: 4,
		ScanExceptions:     true,
		AutoMatch:          true,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MaxConcurrentFiles <= 0 {
		return fmt.Errorf("max concurrent files must be positive, got %d", c.MaxConcurrentFiles)
	}

	if c.StartDate != nil && c.EndDate != nil && c.StartDate.After(*c.EndDate) {
		return fmt.Errorf("start date must be before end date")
	}

	return nil
}

// Request names the files one reconciliation reads
type Request struct {
	LedgerFiles  []string
	InvoiceFiles []string
	Actor        string
}

// Validate validates the reconciliation request
func (r *Request) Validate() error {
	if len(r.LedgerFiles) == 0 {
		return fmt.Errorf("at least one ledger file is required")
	}

	if len(r.InvoiceFiles) == 0 {
		return fmt.Errorf("at least one invoice file is required")
	}

	return nil
}

// LoadResult is a freshly built workspace with per-file parse statistics
type LoadResult struct {
	Workspace    *Workspace
	LedgerStats  []*parsers.ParseStats
	InvoiceStats []*parsers.ParseStats
	ParsingTime  time.Duration
}

// Result is the outcome of a full reconciliation run
type Result struct {
	*LoadResult
	Raised       []models.ExceptionItem
	AutoMatch    *AutoMatchOutcome
	Report       *Report
	TotalTime    time.Duration
	MatchingTime time.Duration
}

// Service loads input files into a Workspace and drives a reconciliation run
type Service struct {
	ledgerParser  *parsers.LedgerParser
	invoiceParser *parsers.InvoiceParser
	config        *Config
	workspace     *Options
	log           logger.Logger
}

// ServiceOptions collects the collaborators of a Service. Nil fields select
// defaults.
type ServiceOptions struct {
	Config         *Config
	LedgerFile     *parsers.FileConfig
	InvoiceFile    *parsers.FileConfig
	MatchingConfig *matcher.MatchingConfig
	Rules          []models.AutoMatchRule
	Mappings       []models.ErpMapping
	Recorder       metrics.Recorder
	Clock          func() time.Time
	IDs            IDSource
}

// NewService creates a new reconciliation service
func NewService(opts *ServiceOptions) (*Service, error) {
	if opts == nil {
		opts = &ServiceOptions{}
	}

	config := opts.Config
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciliation", config, err)
	}

	ledgerParser, err := parsers.NewLedgerParser(opts.LedgerFile)
	if err != nil {
		return nil, err
	}
	invoiceParser, err := parsers.NewInvoiceParser(opts.InvoiceFile)
	if err != nil {
		return nil, err
	}

	return &Service{
		ledgerParser:  ledgerParser,
		invoiceParser: invoiceParser,
		config:        config,
		workspace: &Options{
			MatchingConfig: opts.MatchingConfig,
			Rules:          opts.Rules,
			Mappings:       opts.Mappings,
			Clock:          opts.Clock,
			IDs:            opts.IDs,
			Recorder:       opts.Recorder,
		},
		log: logger.GetGlobalLogger().WithComponent("reconciliation_service"),
	}, nil
}

// Load parses every ledger and invoice file concurrently and builds a
// workspace from them. Records keep file order, then row order.
func (s *Service) Load(ctx context.Context, req *Request) (*LoadResult, error) {
	if err := req.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "files", req, err)
	}

	started := time.Now()
	ledgers := make([][]models.Transaction, len(req.LedgerFiles))
	ledgerStats := make([]*parsers.ParseStats, len(req.LedgerFiles))
	invoices := make([][]models.InvoiceLine, len(req.InvoiceFiles))
	invoiceStats := make([]*parsers.ParseStats, len(req.InvoiceFiles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrentFiles)

	for i, path := range req.LedgerFiles {
		g.Go(func() error {
			txs, stats, err := s.ledgerParser.ParseFile(gctx, path)
			if err != nil {
				return err
			}
			ledgers[i], ledgerStats[i] = txs, stats
			return nil
		})
	}
	for i, path := range req.InvoiceFiles {
		g.Go(func() error {
			lines, stats, err := s.invoiceParser.ParseFile(gctx, path)
			if err != nil {
				return err
			}
			invoices[i], invoiceStats[i] = lines, stats
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var transactions []models.Transaction
	for _, txs := range ledgers {
		for _, tx := range txs {
			if s.withinRange(tx.OccurredAt) {
				transactions = append(transactions, tx)
			}
		}
	}
	var lines []models.InvoiceLine
	for _, ls := range invoices {
		for _, line := range ls {
			if s.withinRange(line.ServiceDate) {
				lines = append(lines, line)
			}
		}
	}

	ws, err := NewWorkspace(transactions, lines, s.workspace)
	if err != nil {
		return nil, err
	}

	parsing := time.Since(started)
	s.log.WithFields(logger.Fields{
		"ledger_files":  len(req.LedgerFiles),
		"invoice_files": len(req.InvoiceFiles),
		"transactions":  len(transactions),
		"lines":         len(lines),
		"duration":      parsing.String(),
	}).Info("Input files loaded")

	return &LoadResult{
		Workspace:    ws,
		LedgerStats:  ledgerStats,
		InvoiceStats: invoiceStats,
		ParsingTime:  parsing,
	}, nil
}

// Reconcile loads the request's files, optionally scans exceptions and runs
// auto-match, and reports the result
func (s *Service) Reconcile(ctx context.Context, req *Request) (*Result, error) {
	op := logger.NewOperationLogger("reconcile", s.log)
	started := time.Now()

	loaded, err := s.Load(ctx, req)
	if err != nil {
		op.Error(err, "Reconciliation failed")
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		op.Error(err, "Reconciliation cancelled")
		return nil, errors.InternalError(errors.CodeUnexpectedError, "reconcile", err)
	}

	result := &Result{LoadResult: loaded}
	ws := loaded.Workspace

	matching := time.Now()
	if s.config.ScanExceptions {
		result.Raised = ws.ScanExceptions(req.Actor)
	}
	if s.config.AutoMatch {
		result.AutoMatch = ws.RunAutoMatch(req.Actor)
	}
	result.MatchingTime = time.Since(matching)

	result.Report = ws.Report()
	result.TotalTime = time.Since(started)

	op.WithField("matches", len(result.Report.Matches)).
		WithField("unmatched_lines", len(result.Report.UnmatchedLines)).
		WithField("exceptions", len(result.Report.Exceptions)).
		Success("Reconciliation completed")
	return result, nil
}

func (s *Service) withinRange(t time.Time) bool {
	day := models.DayOf(t)
	if s.config.StartDate != nil && day.Before(models.DayOf(*s.config.StartDate)) {
		return false
	}
	if s.config.EndDate != nil && day.After(models.DayOf(*s.config.EndDate)) {
		return false
	}
	return true
}
