// Package config turns viper settings into the component configurations the
// reconciler commands use.
package config

import (
	"fmt"
	"strings"
	"time"

	"corporatepay-reconciliation/internal/approvals"
	"corporatepay-reconciliation/internal/matcher"
	"corporatepay-reconciliation/internal/models"
	"corporatepay-reconciliation/internal/parsers"
	"corporatepay-reconciliation/internal/reconciler"
	"corporatepay-reconciliation/internal/reporter"
	"corporatepay-reconciliation/internal/server"
	"corporatepay-reconciliation/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// DateLayout is the layout of --start-date and --end-date
const DateLayout = "2006-01-02"

// SetDefaults registers the default of every key read by this package, so
// environment variables can override keys that no config file sets.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log-level", string(logger.InfoLevel))
	v.SetDefault("log-format", string(logger.TextFormat))
	v.SetDefault("log-output", string(logger.StderrOutput))
	v.SetDefault("log-file", "")

	for _, section := range []string{"ledger", "invoices"} {
		file := parsers.DefaultFileConfig()
		v.SetDefault(section+".has_header", file.HasHeader)
		v.SetDefault(section+".delimiter", string(file.Delimiter))
		v.SetDefault(section+".encoding", string(file.Encoding))
		v.SetDefault(section+".max_errors", file.MaxErrors)
	}

	matching := matcher.DefaultMatchingConfig()
	v.SetDefault("matching.candidate_window_days", matching.CandidateWindowDays)
	v.SetDefault("matching.max_suggestions", matching.MaxSuggestions)
	v.SetDefault("matching.partial_noise_floor", matching.PartialNoiseFloor.String())
	v.SetDefault("matching.partial_noise_percent", matching.PartialNoisePercent)

	report := reporter.DefaultReportConfig()
	v.SetDefault("report.language", report.Language)
	v.SetDefault("report.max_listed", report.MaxListed)
	v.SetDefault("report.include_audit", report.IncludeAudit)
	v.SetDefault("report.csv_delimiter", string(report.CSVDelimiter))

	service := reconciler.DefaultConfig()
	v.SetDefault("reconcile.max_concurrent_files", service.MaxConcurrentFiles)

	store := approvals.DefaultStoreConfig()
	v.SetDefault("approvals.backend", string(store.Backend))
	v.SetDefault("approvals.path", store.Path)
	v.SetDefault("approvals.dsn", store.DSN)
	v.SetDefault("approvals.redis_addr", store.RedisAddr)
	v.SetDefault("approvals.redis_password", store.RedisPassword)
	v.SetDefault("approvals.redis_db", store.RedisDB)
	v.SetDefault("approvals.redis_key", store.RedisKey)
	v.SetDefault("approvals.dial_timeout", store.DialTimeout)

	srv := server.DefaultConfig()
	v.SetDefault("server.addr", srv.Addr)
	v.SetDefault("server.mode", srv.Mode)
	v.SetDefault("server.read_timeout", srv.ReadTimeout)
	v.SetDefault("server.write_timeout", srv.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", srv.ShutdownTimeout)
}

// CreateLoggerConfig builds the logger configuration. verbose forces the
// debug level.
func CreateLoggerConfig(v *viper.Viper, verbose bool) (*logger.Config, error) {
	config := &logger.Config{
		Level:  logger.Level(strings.ToLower(v.GetString("log-level"))),
		Format: logger.Format(strings.ToLower(v.GetString("log-format"))),
		Output: logger.Output(strings.ToLower(v.GetString("log-output"))),
		File:   v.GetString("log-file"),
	}
	if verbose {
		config.Level = logger.DebugLevel
		config.CallerInfo = true
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateFileConfig builds the parser configuration of one input section,
// "ledger" or "invoices"
func CreateFileConfig(v *viper.Viper, section string) (*parsers.FileConfig, error) {
	delimiter, err := parsers.ParseDelimiter(v.GetString(section + ".delimiter"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", section, err)
	}
	encoding, err := parsers.ParseEncoding(v.GetString(section + ".encoding"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", section, err)
	}

	config := &parsers.FileConfig{
		HasHeader:     v.GetBool(section + ".has_header"),
		Delimiter:     delimiter,
		Encoding:      encoding,
		MaxErrors:     v.GetInt(section + ".max_errors"),
		ColumnAliases: v.GetStringMapString(section + ".column_aliases"),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", section, err)
	}
	return config, nil
}

// CreateMatchingConfig builds the matcher configuration
func CreateMatchingConfig(v *viper.Viper) (*matcher.MatchingConfig, error) {
	floor, err := decimal.NewFromString(v.GetString("matching.partial_noise_floor"))
	if err != nil {
		return nil, fmt.Errorf("invalid partial_noise_floor: %w", err)
	}
	config := &matcher.MatchingConfig{
		CandidateWindowDays: v.GetInt("matching.candidate_window_days"),
		MaxSuggestions:      v.GetInt("matching.max_suggestions"),
		PartialNoiseFloor:   floor,
		PartialNoisePercent: v.GetFloat64("matching.partial_noise_percent"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateRules reads the auto-match rules. Without a rules key the default
// rule set applies.
func CreateRules(v *viper.Viper) ([]models.AutoMatchRule, error) {
	if !v.IsSet("rules") {
		return models.DefaultRules(), nil
	}

	var rules []models.AutoMatchRule
	if err := v.UnmarshalKey("rules", &rules); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}
	for i := range rules {
		rules[i].Normalize()
		if err := rules[i].Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
	}
	return rules, nil
}

// CreateMappings reads the ERP mappings. Without a mappings key the default
// mapping set applies.
func CreateMappings(v *viper.Viper) ([]models.ErpMapping, error) {
	if !v.IsSet("mappings") {
		return models.DefaultMappings(), nil
	}

	var mappings []models.ErpMapping
	if err := v.UnmarshalKey("mappings", &mappings); err != nil {
		return nil, fmt.Errorf("failed to decode mappings: %w", err)
	}
	for i := range mappings {
		if err := mappings[i].Validate(); err != nil {
			return nil, fmt.Errorf("mapping %d: %w", i+1, err)
		}
	}
	return mappings, nil
}

// CreateReconcilerConfig builds the service configuration from the date
// range and the scan and auto-match switches
func CreateReconcilerConfig(v *viper.Viper, startDate, endDate string, scan, autoMatch bool) (*reconciler.Config, error) {
	config := reconciler.DefaultConfig()
	config.MaxConcurrentFiles = v.GetInt("reconcile.max_concurrent_files")
	config.ScanExceptions = scan
	config.AutoMatch = autoMatch

	start, err := ParseDate(startDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date format: %w", err)
	}
	end, err := ParseDate(endDate)
	if err != nil {
		return nil, fmt.Errorf("invalid end date format: %w", err)
	}
	config.StartDate = start
	config.EndDate = end

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateReportConfig builds the report configuration for one output format
func CreateReportConfig(v *viper.Viper, format string) (*reporter.ReportConfig, error) {
	outputFormat, err := reporter.ParseOutputFormat(format)
	if err != nil {
		return nil, err
	}
	delimiter, err := parsers.ParseDelimiter(v.GetString("report.csv_delimiter"))
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}

	config := reporter.DefaultReportConfig()
	config.Format = outputFormat
	config.Language = v.GetString("report.language")
	config.MaxListed = v.GetInt("report.max_listed")
	config.IncludeAudit = v.GetBool("report.include_audit")
	config.CSVDelimiter = delimiter

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateStoreConfig builds the approvals store configuration
func CreateStoreConfig(v *viper.Viper) (*approvals.StoreConfig, error) {
	config := &approvals.StoreConfig{
		Backend:       approvals.Backend(strings.ToLower(v.GetString("approvals.backend"))),
		Path:          v.GetString("approvals.path"),
		DSN:           v.GetString("approvals.dsn"),
		RedisAddr:     v.GetString("approvals.redis_addr"),
		RedisPassword: v.GetString("approvals.redis_password"),
		RedisDB:       v.GetInt("approvals.redis_db"),
		RedisKey:      v.GetString("approvals.redis_key"),
		DialTimeout:   v.GetDuration("approvals.dial_timeout"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateServerConfig builds the HTTP listener configuration
func CreateServerConfig(v *viper.Viper) (*server.Config, error) {
	config := &server.Config{
		Addr:            v.GetString("server.addr"),
		Mode:            v.GetString("server.mode"),
		ReadTimeout:     v.GetDuration("server.read_timeout"),
		WriteTimeout:    v.GetDuration("server.write_timeout"),
		ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ParseDate parses a YYYY-MM-DD date; empty means no bound
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
