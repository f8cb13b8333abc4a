// Package server exposes the reconciliation workspace and the approvals inbox
// over HTTP with gin.
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"corporatepay-reconciliation/internal/approvals"
	"corporatepay-reconciliation/internal/metrics"
	"corporatepay-reconciliation/internal/reconciler"
	"corporatepay-reconciliation/internal/reporter"
	"corporatepay-reconciliation/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Config holds the HTTP listener settings
type Config struct {
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DefaultConfig returns the default listener settings
func DefaultConfig() *Config {
	return &Config{
		Addr:            ":8080",
		Mode:            gin.ReleaseMode,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Validate checks the listener settings
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	switch c.Mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
	default:
		return fmt.Errorf("invalid gin mode: %s (valid: debug, release, test)", c.Mode)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.ShutdownTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}
	return nil
}

// Params are the server's collaborators
type Params struct {
	Config    *Config
	Workspace *reconciler.Workspace
	Approvals *approvals.Service
	Metrics   *metrics.Prometheus
}

// Server routes HTTP requests to the workspace and approvals service
type Server struct {
	cfg       *Config
	workspace *reconciler.Workspace
	approvals *approvals.Service
	metrics   *metrics.Prometheus
	engine    *gin.Engine
	log       logger.Logger
}

// NewServer builds the gin engine and registers every route
func NewServer(p Params) (*Server, error) {
	cfg := p.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}
	if p.Workspace == nil {
		return nil, fmt.Errorf("server requires a workspace")
	}
	if p.Approvals == nil {
		p.Approvals = approvals.NewService(approvals.NewMemoryStore(), nil)
	}
	if p.Metrics == nil {
		p.Metrics = metrics.NewPrometheus()
	}

	gin.SetMode(cfg.Mode)

	s := &Server{
		cfg:       cfg,
		workspace: p.Workspace,
		approvals: p.Approvals,
		metrics:   p.Metrics,
		log:       logger.GetGlobalLogger().WithComponent("http"),
	}
	s.engine = s.newEngine()
	return s, nil
}

func (s *Server) newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(s.log))
	r.Use(Metrics(s.metrics))
	r.Use(ErrorHandlingMiddleware())
	r.NoRoute(notFoundHandler)

	r.GET("/healthz", s.Health)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := r.Group("/api/v1")
	{
		api.GET("/report", s.GetReport)
		api.GET("/lines/:id/candidates", s.GetCandidates)

		api.POST("/matches", s.CreateMatch)
		api.DELETE("/matches/:id", s.DeleteMatch)
		api.POST("/automatch", s.RunAutoMatch)

		api.GET("/exceptions", s.ListExceptions)
		api.POST("/exceptions", s.CreateException)
		api.POST("/exceptions/scan", s.ScanExceptions)
		api.PATCH("/exceptions/:id", s.UpdateException)

		api.PUT("/rules/:id", s.PutRule)
		api.PUT("/mappings/:id", s.PutMapping)

		api.POST("/transactions/:id/retry", s.RetryTransaction)
		api.POST("/transactions/:id/post", s.PostTransaction)

		export := api.Group("/export")
		export.GET("/ledger.csv", s.ExportLedger)
		export.GET("/journal.csv", s.ExportJournal)
		export.GET("/report.json", s.exportReport(reporter.FormatJSON, "report.json"))
		export.GET("/report.xlsx", s.exportReport(reporter.FormatXLSX, "report.xlsx"))

		api.GET("/approvals", s.ListApprovals)
		api.GET("/approvals/workflows", s.GetWorkflows)
		api.GET("/approvals/:id", s.GetApproval)
		api.PATCH("/approvals/:id/status", s.UpdateApprovalStatus)
	}
	return r
}

// Engine returns the HTTP handler
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.cfg.Addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return <-errCh
}

// Health reports liveness
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}
