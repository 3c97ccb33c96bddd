package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/tinytelemetry/triage/internal/model"
	"github.com/tinytelemetry/triage/internal/ollama"
)

const (
	envDev  = "dev"
	envProd = "prod"

	defaultBindHost    = "127.0.0.1"
	defaultAPIPort     = 3000
	defaultLokiURL     = "http://localhost:3100"
	defaultQuery       = `{namespace=~".+"} |~ "(?i)(error|fatal|panic)"`
	defaultReportFile  = "error_analysis_report.md"
	defaultReportTitle = "Error Analysis Report"
	defaultDevFetchCap = 10_000

	// Prod analysis defaults to the previous evening's peak window.
	prodWindowStartHour = 19
	prodWindowEndHour   = 22
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	LokiURL          string        `mapstructure:"loki-url"`
	OrgID            string        `mapstructure:"org-id"`
	Query            string        `mapstructure:"query"`
	FetchLimit       int           `mapstructure:"fetch-limit"`
	DaysBack         int           `mapstructure:"days-back"`
	StartTime        string        `mapstructure:"start-time"` // RFC3339, empty = derived
	EndTime          string        `mapstructure:"end-time"`
	QueryTimeout     time.Duration `mapstructure:"query-timeout"`
	Workers          int           `mapstructure:"workers"`
	PatternMaxLength int           `mapstructure:"pattern-max-length"`
	TopServices      int           `mapstructure:"top-services"`
	TopPatterns      int           `mapstructure:"top-patterns"`
	CriticalSample   int           `mapstructure:"critical-sample"`
	RulesPath        string        `mapstructure:"rules-path"`
	ReportPath       string        `mapstructure:"report-path"`
	ReportTitle      string        `mapstructure:"report-title"`
	Organization     string        `mapstructure:"organization"`
	ArchiveEnabled   bool          `mapstructure:"archive-enabled"`
	ArchivePath      string        `mapstructure:"archive-path"`
	DBPath           string        `mapstructure:"db-path"`
	InsertBatchSize  int           `mapstructure:"insert-batch-size"`
	RetentionDays    int           `mapstructure:"retention-days"` // 0 = keep everything
	LLMEnabled       bool          `mapstructure:"llm-enabled"`
	LLMEndpoint      string        `mapstructure:"llm-endpoint"`
	LLMModel         string        `mapstructure:"llm-model"`
	LLMAutoManage    bool          `mapstructure:"llm-auto-manage"`
	LLMTimeout       time.Duration `mapstructure:"llm-timeout"`
	ServeEnabled     bool          `mapstructure:"serve"`
	APIPort          int           `mapstructure:"api-port"`
	APIAddr          string        `mapstructure:"api-addr"`

	// Set by flags or derived, never from the config file.
	Env        string `mapstructure:"-"`
	InputFile  string `mapstructure:"-"`
	Replay     bool   `mapstructure:"-"`
	ConfigPath string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("loki-url", defaultLokiURL)
	v.SetDefault("org-id", "")
	v.SetDefault("query", defaultQuery)
	v.SetDefault("start-time", "")
	v.SetDefault("end-time", "")
	// Zero sentinel: the environment overlay fills it when nothing
	// explicit was given. Registered so env overrides still unmarshal.
	v.SetDefault("fetch-limit", 0)
	v.SetDefault("days-back", model.DefaultDaysBack)
	v.SetDefault("query-timeout", model.DefaultQueryTimeout)
	v.SetDefault("workers", model.DefaultWorkers)
	v.SetDefault("pattern-max-length", model.DefaultPatternMaxLength)
	v.SetDefault("top-services", model.DefaultTopServices)
	v.SetDefault("top-patterns", model.DefaultTopPatterns)
	v.SetDefault("critical-sample", model.DefaultCriticalSample)
	v.SetDefault("rules-path", "")
	v.SetDefault("report-path", "")
	v.SetDefault("report-title", "")
	v.SetDefault("organization", "")
	v.SetDefault("archive-enabled", true)
	v.SetDefault("archive-path", filepath.Join(home, ".local", "share", "triage", "raw.archive"))
	v.SetDefault("db-path", "")
	v.SetDefault("insert-batch-size", 2000)
	v.SetDefault("retention-days", 0)
	v.SetDefault("llm-enabled", false)
	v.SetDefault("llm-endpoint", ollama.DefaultEndpoint)
	v.SetDefault("llm-model", ollama.DefaultModel)
	v.SetDefault("llm-auto-manage", true)
	v.SetDefault("llm-timeout", ollama.DefaultTimeout)
	v.SetDefault("serve", false)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("api-addr", "")
}

// applyEnvironment layers environment-profile defaults on top of the
// generic ones. Values set explicitly (file, env var, flag) win.
// applyEnvironment fills environment defaults for anything the file,
// env vars, and flags left unset. Explicit values always win.
func applyEnvironment(cfg *appConfig) {
	switch cfg.Env {
	case envProd:
		// Previous evening's peak window unless a range was given.
		if cfg.StartTime == "" && cfg.EndTime == "" {
			yesterday := time.Now().UTC().AddDate(0, 0, -1)
			start := time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(),
				prodWindowStartHour, 0, 0, 0, time.UTC)
			end := time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(),
				prodWindowEndHour, 0, 0, 0, time.UTC)
			cfg.StartTime = start.Format(time.RFC3339)
			cfg.EndTime = end.Format(time.RFC3339)
		}
		if cfg.FetchLimit == 0 {
			cfg.FetchLimit = model.DefaultFetchLimit
		}
	case envDev:
		// Smaller default fetch so a dev run stays quick.
		if cfg.FetchLimit == 0 {
			cfg.FetchLimit = defaultDevFetchCap
		}
	}

	// Environment-specific report file, matching dev_report.md / prod_report.md.
	if cfg.ReportPath == "" {
		cfg.ReportPath = cfg.Env + "_" + defaultReportFile
	}

	if cfg.ReportTitle == "" {
		if cfg.Env == envProd {
			cfg.ReportTitle = defaultReportTitle + " - PRODUCTION"
		} else {
			cfg.ReportTitle = defaultReportTitle + " - DEV"
		}
	}
}

func (c *appConfig) validate() error {
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("invalid api-port: %d", c.APIPort)
	}
	if c.PatternMaxLength <= 0 {
		return fmt.Errorf("invalid pattern-max-length: %d", c.PatternMaxLength)
	}
	if c.FetchLimit <= 0 {
		return fmt.Errorf("invalid fetch-limit: %d", c.FetchLimit)
	}
	if c.DaysBack <= 0 {
		return fmt.Errorf("invalid days-back: %d", c.DaysBack)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("invalid workers: %d", c.Workers)
	}
	if c.CriticalSample <= 0 {
		return fmt.Errorf("invalid critical-sample: %d", c.CriticalSample)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("invalid retention-days: %d", c.RetentionDays)
	}
	for name, value := range map[string]string{"start-time": c.StartTime, "end-time": c.EndTime} {
		if value == "" {
			continue
		}
		if _, err := time.Parse(time.RFC3339, value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
	}
	return nil
}

// timeWindow resolves the configured analysis range; zero values mean
// "derive from days-back at fetch time".
func (c *appConfig) timeWindow() (start, end time.Time) {
	if c.StartTime != "" {
		start, _ = time.Parse(time.RFC3339, c.StartTime)
	}
	if c.EndTime != "" {
		end, _ = time.Parse(time.RFC3339, c.EndTime)
	}
	return start, end
}
