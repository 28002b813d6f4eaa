// cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/layoutprobe/internal/browser"
	"github.com/xkilldash9x/layoutprobe/internal/checks"
	"github.com/xkilldash9x/layoutprobe/internal/config"
	"github.com/xkilldash9x/layoutprobe/internal/fetch"
	"github.com/xkilldash9x/layoutprobe/internal/observability"
	"github.com/xkilldash9x/layoutprobe/internal/runner"
	"github.com/xkilldash9x/layoutprobe/internal/store"
)

type contextKey string

const configKey contextKey = "layoutprobe.config"

const axeFetchTimeout = 30 * time.Second

// errAuditFailed signals a completed audit with failing or errored cases.
// The report already describes them, so Execute prints nothing further.
var errAuditFailed = errors.New("audit reported failures")

// flagKeys maps command flags onto the config keys they override.
var flagKeys = map[string]string{
	"concurrency":      "browser.concurrency",
	"format":           "report.format",
	"output":           "report.output",
	"update-baselines": "checks.update_baselines",
}

// historyStore is the run history the audit and history commands use.
type historyStore interface {
	SaveRun(ctx context.Context, run *runner.Run) error
	ListRuns(ctx context.Context, limit int) ([]store.RunRecord, error)
	Violations(ctx context.Context, runID string) ([]store.ViolationRecord, error)
	Close()
}

// deps holds the collaborators commands construct. Tests swap them out.
type deps struct {
	newBrowser func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (runner.Browser, func(context.Context) error, error)
	openStore  func(ctx context.Context, url string, logger *zap.Logger) (historyStore, error)
	loadAxe    axeLoader
}

// axeLoader fetches axe-core from a path or URL. ignoreTLSErrors mirrors
// browser.ignore_tls_errors so the download trusts what Chrome trusts.
type axeLoader func(ctx context.Context, source string, ignoreTLSErrors bool) (string, error)

func defaultDeps() deps {
	return deps{
		newBrowser: func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (runner.Browser, func(context.Context) error, error) {
			m, err := browser.NewManager(ctx, cfg, logger)
			if err != nil {
				return nil, nil, err
			}
			return managerBrowser{m: m}, m.Shutdown, nil
		},
		openStore: func(ctx context.Context, url string, logger *zap.Logger) (historyStore, error) {
			s, err := store.Open(ctx, url, logger)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		loadAxe: func(ctx context.Context, source string, ignoreTLSErrors bool) (string, error) {
			client := fetch.NewClient(fetch.Config{
				RequestTimeout:  axeFetchTimeout,
				IgnoreTLSErrors: ignoreTLSErrors,
				ForceHTTP2:      true,
				Logger:          observability.GetLogger().Named("fetch"),
			})
			return checks.LoadAxeSource(ctx, client, source)
		},
	}
}

// managerBrowser adapts the chromedp manager to the runner.
type managerBrowser struct {
	m *browser.Manager
}

func (b managerBrowser) NewPage(ctx context.Context) (runner.Page, error) {
	p, err := b.m.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(defaultDeps())
}

func newRootCmd(d deps) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "layoutprobe",
		Short: "layoutprobe audits rendered pages for responsive layout and accessibility defects.",
		// Version is set at build time. See cmd/version.go.
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(v, cfgFile); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "layoutprobe"})
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			for flag, key := range flagKeys {
				if f := cmd.Flags().Lookup(flag); f != nil {
					if err := v.BindPFlag(key, f); err != nil {
						return fmt.Errorf("failed to bind flag %s: %w", flag, err)
					}
				}
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "layoutprobe"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting layoutprobe", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./layoutprobe.yaml)")
	cmd.SetVersionTemplate(`{{printf "layoutprobe version %s\n" .Version}}`)

	cmd.AddCommand(newAuditCmd(d))
	cmd.AddCommand(newChecksCmd())
	cmd.AddCommand(newViewportsCmd())
	cmd.AddCommand(newHistoryCmd(d))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	return execute(ctx, NewRootCmd(), os.Stderr, os.Args[1:])
}

func execute(ctx context.Context, root *cobra.Command, stderr io.Writer, args []string) int {
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	observability.Sync()
	if err == nil {
		return 0
	}
	if !errors.Is(err, errAuditFailed) {
		fmt.Fprintln(stderr, "Error:", err)
	}
	return 1
}

// initializeConfig reads the config file and LAYOUTPROBE_* environment variables.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("layoutprobe")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("LAYOUTPROBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

func configFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
