package cmd

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"corporatepay-reconciliation/cmd/reconciler/config"
	"corporatepay-reconciliation/pkg/errors"
	"corporatepay-reconciliation/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	envFile   string
	verbose   bool
	logLevel  string
	logFormat string
	version   = "dev"
	commit    = "unknown"
	date      = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "CorporatePay reconciliation tool",
	Long: `Reconciler matches CorporatePay ledger transactions against vendor invoice
lines, raises reconciliation exceptions, maps transactions to ERP coding and
exports the results. It also serves the same workspace and the approvals
inbox over HTTP.

Examples:
  reconciler reconcile --ledger ledger.csv --invoices invoices.csv
  reconciler reconcile --ledger jan.csv,feb.csv --invoices boda.csv --output-format xlsx --output-file report.xlsx
  reconciler candidates --ledger ledger.csv --invoices invoices.csv --line INV-1001-1
  reconciler serve --config reconciler.yaml --ledger ledger.csv --invoices invoices.csv
  reconciler approvals list --status pending`,
	Version:           getVersionString(),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in the dotenv file, the config file and ENV variables.
func initConfig() {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Error reading env file: %s\n", err)
			os.Exit(1)
		}
	}

	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)

		// If a config file is specified, read it in.
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(1)
		}

		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	// Read environment variables that match, e.g. RECONCILER_APPROVALS_BACKEND
	viper.SetEnvPrefix("RECONCILER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

// setupLogging installs the global logger before any command runs
func setupLogging(cmd *cobra.Command, args []string) error {
	logConfig, err := config.CreateLoggerConfig(viper.GetViper(), viper.GetBool("verbose"))
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "logging", viper.GetString("log-level"), err)
	}

	log, err := logger.NewLogger(logConfig)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "logging", logConfig.Output, err)
	}
	logger.SetGlobalLogger(log)
	return nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
