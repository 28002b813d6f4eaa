// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Viewports []ViewportConfig `mapstructure:"viewports" yaml:"viewports"`
	Selectors []string         `mapstructure:"selectors" yaml:"selectors"`
	Checks    ChecksConfig     `mapstructure:"checks" yaml:"checks"`
	Runner    RunnerConfig     `mapstructure:"runner" yaml:"runner"`
	Report    ReportConfig     `mapstructure:"report" yaml:"report"`
	Database  DatabaseConfig   `mapstructure:"database" yaml:"database"`
	// Audit gets its marching orders from CLI flags, not the config file.
	Audit AuditConfig `mapstructure:"-" yaml:"-"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser and the page readiness contract.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Concurrency       int           `mapstructure:"concurrency" yaml:"concurrency"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// NetworkIdleQuiet is how long the tab must have no in-flight requests to count as idle.
	NetworkIdleQuiet time.Duration `mapstructure:"network_idle_quiet" yaml:"network_idle_quiet"`
	ReadinessTimeout time.Duration `mapstructure:"readiness_timeout" yaml:"readiness_timeout"`
	// ReadySelector, when set, must be visible before a page counts as ready.
	ReadySelector string `mapstructure:"ready_selector" yaml:"ready_selector"`
}

// ViewportConfig is the file representation of a named viewport.
type ViewportConfig struct {
	Name   string `mapstructure:"name" yaml:"name"`
	Width  int    `mapstructure:"width" yaml:"width"`
	Height int    `mapstructure:"height" yaml:"height"`
}

// ChecksConfig tunes the assertion families.
type ChecksConfig struct {
	Enabled              []string      `mapstructure:"enabled" yaml:"enabled"`
	TargetMinSize        int           `mapstructure:"target_min_size" yaml:"target_min_size"`
	HoverSample          int           `mapstructure:"hover_sample" yaml:"hover_sample"`
	HoverSettleCap       time.Duration `mapstructure:"hover_settle_cap" yaml:"hover_settle_cap"`
	VisualMaxDiffRatio   float64       `mapstructure:"visual_max_diff_ratio" yaml:"visual_max_diff_ratio"`
	VisualPixelThreshold int           `mapstructure:"visual_pixel_threshold" yaml:"visual_pixel_threshold"`
	BaselineDir          string        `mapstructure:"baseline_dir" yaml:"baseline_dir"`
	UpdateBaselines      bool          `mapstructure:"update_baselines" yaml:"update_baselines"`
	// AxeSource is a local path or an http(s) URL for axe.min.js.
	AxeSource string   `mapstructure:"axe_source" yaml:"axe_source"`
	AxeTags   []string `mapstructure:"axe_tags" yaml:"axe_tags"`
}

// RunnerConfig configures case scheduling.
type RunnerConfig struct {
	CaseTimeout           time.Duration `mapstructure:"case_timeout" yaml:"case_timeout"`
	NavigationsPerSecond  float64       `mapstructure:"navigations_per_second" yaml:"navigations_per_second"`
	DiagnosticsEnrichment bool          `mapstructure:"diagnostics_enrichment" yaml:"diagnostics_enrichment"`
}

// ReportConfig selects the report writer.
type ReportConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// DatabaseConfig holds the optional run history database connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// AuditConfig holds settings populated from CLI flags for a specific audit run.
type AuditConfig struct {
	BaseURL   string
	Paths     []string
	Checks    []string
	Viewports []string
	Save      bool
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "layoutprobe")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.concurrency", 4)
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.network_idle_quiet", "500ms")
	v.SetDefault("browser.readiness_timeout", "30s")

	// -- Registry --
	v.SetDefault("viewports", []map[string]interface{}{
		{"name": "mobile", "width": 375, "height": 812},
		{"name": "tablet", "width": 768, "height": 1024},
		{"name": "desktop", "width": 1440, "height": 900},
	})
	v.SetDefault("selectors", []string{"header", "main", "footer", ".grid-container"})

	// -- Checks --
	v.SetDefault("checks.enabled", []string{})
	v.SetDefault("checks.target_min_size", 44)
	v.SetDefault("checks.hover_sample", 10)
	v.SetDefault("checks.hover_settle_cap", "300ms")
	v.SetDefault("checks.visual_max_diff_ratio", 0.01)
	v.SetDefault("checks.visual_pixel_threshold", 0)
	v.SetDefault("checks.baseline_dir", "testdata/baselines")
	v.SetDefault("checks.update_baselines", false)
	v.SetDefault("checks.axe_source", "https://cdnjs.cloudflare.com/ajax/libs/axe-core/4.10.2/axe.min.js")
	v.SetDefault("checks.axe_tags", []string{"wcag2a", "wcag2aa", "wcag21a", "wcag21aa"})

	// -- Runner --
	v.SetDefault("runner.case_timeout", "2m")
	v.SetDefault("runner.navigations_per_second", 0)
	v.SetDefault("runner.diagnostics_enrichment", true)

	// -- Report --
	v.SetDefault("report.format", "text")
	v.SetDefault("report.output", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Credentials belong in the environment, not the config file.
	_ = v.BindEnv("database.url", "LAYOUTPROBE_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading ~ in filesystem settings.
func (c *Config) expandPaths() error {
	paths := []*string{&c.Checks.BaselineDir, &c.Logger.LogFile, &c.Browser.ExecPath}
	if !isRemote(c.Checks.AxeSource) {
		paths = append(paths, &c.Checks.AxeSource)
	}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Browser.Concurrency <= 0 {
		return fmt.Errorf("browser.concurrency must be a positive integer")
	}
	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be a positive duration")
	}
	if len(c.Viewports) == 0 {
		return fmt.Errorf("at least one viewport must be configured")
	}
	seen := make(map[string]bool, len(c.Viewports))
	for _, vp := range c.Viewports {
		if vp.Name == "" {
			return fmt.Errorf("viewport names must not be empty")
		}
		if seen[vp.Name] {
			return fmt.Errorf("duplicate viewport name %q", vp.Name)
		}
		seen[vp.Name] = true
		if vp.Width <= 0 || vp.Height <= 0 {
			return fmt.Errorf("viewport %q must have positive dimensions", vp.Name)
		}
	}
	if err := c.Checks.Validate(); err != nil {
		return fmt.Errorf("checks configuration invalid: %w", err)
	}
	if c.Runner.CaseTimeout <= 0 {
		return fmt.Errorf("runner.case_timeout must be a positive duration")
	}
	if c.Runner.NavigationsPerSecond < 0 {
		return fmt.Errorf("runner.navigations_per_second must not be negative")
	}
	return nil
}

// Validate checks the assertion family settings.
func (c *ChecksConfig) Validate() error {
	if c.TargetMinSize <= 0 {
		return fmt.Errorf("target_min_size must be positive")
	}
	if c.HoverSample <= 0 {
		return fmt.Errorf("hover_sample must be positive")
	}
	if c.HoverSettleCap < 0 {
		return fmt.Errorf("hover_settle_cap must not be negative")
	}
	if c.VisualMaxDiffRatio < 0.0 || c.VisualMaxDiffRatio > 1.0 {
		return fmt.Errorf("visual_max_diff_ratio must be between 0.0 and 1.0")
	}
	if c.VisualPixelThreshold < 0 || c.VisualPixelThreshold > 255 {
		return fmt.Errorf("visual_pixel_threshold must be between 0 and 255")
	}
	return nil
}
