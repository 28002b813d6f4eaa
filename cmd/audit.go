// cmd/audit.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/layoutprobe/internal/browser"
	"github.com/xkilldash9x/layoutprobe/internal/checks"
	"github.com/xkilldash9x/layoutprobe/internal/config"
	"github.com/xkilldash9x/layoutprobe/internal/observability"
	"github.com/xkilldash9x/layoutprobe/internal/reporting"
	"github.com/xkilldash9x/layoutprobe/internal/runner"
	"github.com/xkilldash9x/layoutprobe/internal/snapshot"
	"github.com/xkilldash9x/layoutprobe/internal/viewport"
)

const browserShutdownTimeout = 20 * time.Second

// newAuditCmd creates and configures the `audit` command.
func newAuditCmd(d deps) *cobra.Command {
	var (
		paths     []string
		checkList []string
		viewports []string
		save      bool
	)

	auditCmd := &cobra.Command{
		Use:   "audit <base-url>",
		Short: "Runs the selected assertion families against one or more pages",
		Long: `Runs every selected check at each of its viewports for each path under the base URL.
The exit status is 1 when any case fails or errors.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			cfg.Audit = config.AuditConfig{
				BaseURL:   args[0],
				Paths:     paths,
				Checks:    checkList,
				Viewports: viewports,
				Save:      save,
			}
			if len(cfg.Audit.Checks) == 0 {
				cfg.Audit.Checks = cfg.Checks.Enabled
			}
			return runAudit(ctx, cmd.OutOrStdout(), cfg, d, logger)
		},
	}

	auditCmd.Flags().StringSliceVarP(&paths, "path", "p", []string{"/"}, "Path under the base URL to audit (repeatable)")
	auditCmd.Flags().StringSliceVar(&checkList, "check", nil, "Assertion family to run (repeatable, default all)")
	auditCmd.Flags().StringSliceVar(&viewports, "viewport", nil, "Restrict the registry to these viewports (repeatable)")
	auditCmd.Flags().Int("concurrency", 4, "Number of cases to run in parallel")
	auditCmd.Flags().StringP("format", "f", "text", "Report format (text, json, sarif, junit)")
	auditCmd.Flags().StringP("output", "o", "", "Report file (default stdout)")
	auditCmd.Flags().Bool("update-baselines", false, "Overwrite visual baselines instead of comparing")
	auditCmd.Flags().BoolVar(&save, "save", false, "Persist the run to the history database")

	return auditCmd
}

func runAudit(ctx context.Context, stdout io.Writer, cfg *config.Config, d deps, logger *zap.Logger) error {
	reg, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	selected, err := buildChecks(ctx, cfg, d.loadAxe, logger)
	if err != nil {
		return err
	}
	if cfg.Audit.Save && cfg.Database.URL == "" {
		return fmt.Errorf("--save requires database.url (or LAYOUTPROBE_DATABASE_URL)")
	}

	// Open the report before launching Chrome so a bad path fails fast.
	rep, err := openReporter(stdout, cfg.Report)
	if err != nil {
		return err
	}

	b, shutdown, err := d.newBrowser(ctx, cfg.Browser, logger)
	if err != nil {
		_ = rep.Close()
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(browser.Detach(ctx), browserShutdownTimeout)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("Browser shutdown failed", zap.Error(err))
		}
	}()

	r := runner.New(b, reg, runner.Options{
		Concurrency:          cfg.Browser.Concurrency,
		CaseTimeout:          cfg.Runner.CaseTimeout,
		NavigationsPerSecond: cfg.Runner.NavigationsPerSecond,
	}, logger)

	run, err := r.Execute(ctx, cfg.Audit.BaseURL, cfg.Audit.Paths, selected)
	if err != nil {
		_ = rep.Close()
		return fmt.Errorf("audit could not start: %w", err)
	}

	writeErr := rep.Write(run)
	closeErr := rep.Close()
	if writeErr != nil {
		return fmt.Errorf("failed to write report: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to finalize report: %w", closeErr)
	}

	if cfg.Audit.Save {
		if err := saveRun(ctx, cfg, d, run, logger); err != nil {
			return err
		}
	}

	if run.Failed() {
		return errAuditFailed
	}
	return nil
}

// buildRegistry turns the configured viewports into a registry narrowed to
// the requested names.
func buildRegistry(cfg *config.Config) (*viewport.Registry, error) {
	vs := make([]viewport.Viewport, 0, len(cfg.Viewports))
	for _, v := range cfg.Viewports {
		vs = append(vs, viewport.Viewport{Name: v.Name, Width: v.Width, Height: v.Height})
	}
	selectors := cfg.Selectors
	if len(selectors) == 0 {
		selectors = viewport.DefaultSelectors
	}
	reg, err := viewport.New(vs, selectors)
	if err != nil {
		return nil, fmt.Errorf("invalid viewport registry: %w", err)
	}
	return reg.Filter(cfg.Audit.Viewports)
}

// checkOptions maps the checks section of the config onto family options.
func checkOptions(cfg *config.Config, logger *zap.Logger) checks.Options {
	selectors := cfg.Selectors
	if len(selectors) == 0 {
		selectors = viewport.DefaultSelectors
	}
	return checks.Options{
		Selectors:            selectors,
		TargetMinSize:        cfg.Checks.TargetMinSize,
		HoverSample:          cfg.Checks.HoverSample,
		HoverSettleCap:       cfg.Checks.HoverSettleCap,
		Enrich:               cfg.Runner.DiagnosticsEnrichment,
		AxeTags:              cfg.Checks.AxeTags,
		Baselines:            snapshot.NewStore(cfg.Checks.BaselineDir, cfg.Checks.UpdateBaselines),
		VisualMaxDiffRatio:   cfg.Checks.VisualMaxDiffRatio,
		VisualPixelThreshold: uint8(cfg.Checks.VisualPixelThreshold),
		Logger:               logger,
	}
}

// buildChecks selects the families to run. axe-core is only loaded when the
// accessibility family is among them.
func buildChecks(ctx context.Context, cfg *config.Config, loadAxe axeLoader, logger *zap.Logger) ([]checks.Check, error) {
	opts := checkOptions(cfg, logger)
	selected, err := checks.Select(checks.All(opts), cfg.Audit.Checks)
	if err != nil {
		return nil, err
	}
	for _, c := range selected {
		if c.Name() != "accessibility" {
			continue
		}
		src, err := loadAxe(ctx, cfg.Checks.AxeSource, cfg.Browser.IgnoreTLSErrors)
		if err != nil {
			return nil, fmt.Errorf("failed to load axe-core: %w", err)
		}
		opts.AxeScript = src
		return checks.Select(checks.All(opts), cfg.Audit.Checks)
	}
	return selected, nil
}

type writerNopCloser struct {
	io.Writer
}

func (writerNopCloser) Close() error { return nil }

func openReporter(stdout io.Writer, rc config.ReportConfig) (reporting.Reporter, error) {
	if rc.Output == "" || rc.Output == "stdout" {
		return reporting.NewWriter(rc.Format, writerNopCloser{stdout}, Version)
	}
	return reporting.New(rc.Format, rc.Output, Version)
}

func saveRun(ctx context.Context, cfg *config.Config, d deps, run *runner.Run, logger *zap.Logger) error {
	s, err := d.openStore(ctx, cfg.Database.URL, logger)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer s.Close()
	if err := s.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	logger.Info("Run saved", zap.String("run_id", run.ID))
	return nil
}
