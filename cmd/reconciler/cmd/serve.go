package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"corporatepay-reconciliation/cmd/reconciler/config"
	"corporatepay-reconciliation/internal/metrics"
	"corporatepay-reconciliation/internal/reconciler"
	"corporatepay-reconciliation/internal/server"
	"corporatepay-reconciliation/pkg/errors"
	"corporatepay-reconciliation/pkg/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ConfigWatchActor is recorded when a config file change reloads the rules
const ConfigWatchActor = "config-watch"

var (
	serveLedger    []string
	serveInvoices  []string
	serveScan      bool
	serveAutoMatch bool
	serveWatch     bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the reconciliation workspace and approvals inbox over HTTP",
	Long: `Serve loads the inputs into one workspace and exposes it, together with the
approvals inbox, as a JSON API under /api/v1. Prometheus metrics are served
on /metrics. When a config file is used, edits to its rules and mappings
apply without a restart.

Examples:
  reconciler serve --ledger ledger.csv --invoices invoices.csv
  reconciler serve --config reconciler.yaml --addr :9090 --automatch
  RECONCILER_APPROVALS_BACKEND=sqlite reconciler serve -l ledger.csv -i invoices.csv`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringSliceVarP(&serveLedger, "ledger", "l", []string{}, "comma-separated paths to ledger CSV files")
	serveCmd.Flags().StringSliceVarP(&serveInvoices, "invoices", "i", []string{}, "comma-separated paths to invoice line CSV files")
	serveCmd.Flags().BoolVar(&serveScan, "scan", true, "scan exceptions after loading")
	serveCmd.Flags().BoolVar(&serveAutoMatch, "automatch", false, "run auto-match after loading")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "reload rules and mappings when the config file changes")
	serveCmd.Flags().String("addr", ":8080", "listen address")
	serveCmd.Flags().String("mode", "release", "gin mode: debug, release, test")

	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("server.mode", serveCmd.Flags().Lookup("mode"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	log := logger.GetGlobalLogger().WithComponent("cli")
	v := viper.GetViper()

	serverConfig, err := config.CreateServerConfig(v)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "server", v.Get("server"), err)
	}

	prom := metrics.NewPrometheus()
	ws, err := buildServeWorkspace(ctx, prom)
	if err != nil {
		return err
	}
	if serveScan {
		ws.ScanExceptions(reconciler.SystemActor)
	}
	if serveAutoMatch {
		ws.RunAutoMatch(reconciler.SystemActor)
	}

	approvalsService, store, err := newApprovalsService(ctx, prom)
	if err != nil {
		return err
	}
	defer store.Close()

	srv, err := server.NewServer(server.Params{
		Config:    serverConfig,
		Workspace: ws,
		Approvals: approvalsService,
		Metrics:   prom,
	})
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "server", serverConfig.Addr, err)
	}

	if serveWatch && v.ConfigFileUsed() != "" {
		watchConfig(v, ws, log)
	}

	return srv.Run(ctx)
}

// buildServeWorkspace loads the input files, or starts an empty workspace
// when none are given
func buildServeWorkspace(ctx context.Context, recorder metrics.Recorder) (*reconciler.Workspace, error) {
	if len(serveLedger) > 0 || len(serveInvoices) > 0 {
		loaded, err := loadWorkspace(ctx, serveLedger, serveInvoices, recorder)
		if err != nil {
			return nil, err
		}
		return loaded.Workspace, nil
	}

	opts, err := serviceOptions(nil, recorder)
	if err != nil {
		return nil, err
	}
	return reconciler.NewWorkspace(nil, nil, &reconciler.Options{
		MatchingConfig: opts.MatchingConfig,
		Rules:          opts.Rules,
		Mappings:       opts.Mappings,
		Recorder:       recorder,
	})
}

// watchConfig applies rule and mapping edits from the config file. An
// invalid edit is logged and the previous configuration stays.
func watchConfig(v *viper.Viper, ws *reconciler.Workspace, log logger.Logger) {
	v.OnConfigChange(func(e fsnotify.Event) {
		entry := log.WithFields(logger.Fields{"file": e.Name, "op": e.Op.String()})

		rules, err := config.CreateRules(v)
		if err != nil {
			entry.WithError(err).Warn("Ignoring config change: invalid rules")
			return
		}
		mappings, err := config.CreateMappings(v)
		if err != nil {
			entry.WithError(err).Warn("Ignoring config change: invalid mappings")
			return
		}
		if err := ws.ApplyConfiguration(rules, mappings, ConfigWatchActor); err != nil {
			entry.WithError(err).Warn("Ignoring config change")
			return
		}
		entry.WithFields(logger.Fields{
			"rules":    len(rules),
			"mappings": len(mappings),
		}).Info("Configuration reloaded")
	})
	v.WatchConfig()
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
