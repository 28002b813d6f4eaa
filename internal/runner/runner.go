// Package runner expands checks into cases (check x viewport x path) and
// executes them concurrently, one browser tab per case.
package runner

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/layoutprobe/internal/checks"
	"github.com/xkilldash9x/layoutprobe/internal/viewport"
)

// Page is a tab the runner owns for the duration of one case.
type Page interface {
	checks.Page
	Close(ctx context.Context) error
}

// Browser opens tabs.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
}

// Status is the outcome class of a case.
type Status string

const (
	StatusPass  Status = "pass"
	StatusFail  Status = "fail"
	StatusError Status = "error"
)

// Case is one scheduled check execution.
type Case struct {
	Index    int
	Check    checks.Check
	Viewport viewport.Viewport
	Path     string
	URL      string
}

// Result is the recorded outcome of a case.
type Result struct {
	Check       string
	Description string
	Viewport    viewport.Viewport
	Path        string
	URL         string
	Status      Status
	Message     string
	Violations  []checks.Violation
	Err         error
	Duration    time.Duration
}

// Run is one audit: every case result, in plan order.
type Run struct {
	ID         string
	BaseURL    string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []Result
}

// Counts tallies results by status.
func (r *Run) Counts() (passed, failed, errored int) {
	for _, res := range r.Results {
		switch res.Status {
		case StatusPass:
			passed++
		case StatusFail:
			failed++
		case StatusError:
			errored++
		}
	}
	return
}

// Failed reports whether any case failed or errored.
func (r *Run) Failed() bool {
	_, failed, errored := r.Counts()
	return failed+errored > 0
}

const defaultCaseTimeout = 2 * time.Minute

// Options tunes scheduling.
type Options struct {
	Concurrency          int
	CaseTimeout          time.Duration
	NavigationsPerSecond float64
}

// Runner schedules cases against a browser.
type Runner struct {
	browser Browser
	reg     *viewport.Registry
	opts    Options
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New returns a Runner. A non-positive NavigationsPerSecond disables the
// navigation throttle.
func New(b Browser, reg *viewport.Registry, opts Options, logger *zap.Logger) *Runner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.CaseTimeout <= 0 {
		opts.CaseTimeout = defaultCaseTimeout
	}
	limit := rate.Inf
	if opts.NavigationsPerSecond > 0 {
		limit = rate.Limit(opts.NavigationsPerSecond)
	}
	return &Runner{
		browser: b,
		reg:     reg,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.Named("runner"),
	}
}

// Plan expands checks into cases. Ordering is path, then check, then the
// check's viewports.
func (r *Runner) Plan(baseURL string, paths []string, cs []checks.Check) ([]Case, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}
	if len(paths) == 0 {
		paths = []string{"/"}
	}

	var cases []Case
	for _, p := range paths {
		ref, err := url.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", p, err)
		}
		target := base.ResolveReference(ref).String()
		for _, c := range cs {
			for _, vp := range c.Viewports(r.reg) {
				cases = append(cases, Case{
					Index:    len(cases),
					Check:    c,
					Viewport: vp,
					Path:     p,
					URL:      target,
				})
			}
		}
	}
	return cases, nil
}

// Execute plans and runs every case. Case failures and errors are recorded
// on the Run; the returned error is reserved for planning problems.
func (r *Runner) Execute(ctx context.Context, baseURL string, paths []string, cs []checks.Check) (*Run, error) {
	cases, err := r.Plan(baseURL, paths, cs)
	if err != nil {
		return nil, err
	}

	run := &Run{
		ID:        uuid.New().String(),
		BaseURL:   baseURL,
		StartedAt: time.Now().UTC(),
		Results:   make([]Result, len(cases)),
	}
	logger := r.logger.With(zap.String("run_id", run.ID))
	logger.Info("Starting audit.", zap.String("base_url", baseURL), zap.Int("cases", len(cases)), zap.Int("concurrency", r.opts.Concurrency))

	g := new(errgroup.Group)
	g.SetLimit(r.opts.Concurrency)
	for _, c := range cases {
		g.Go(func() error {
			run.Results[c.Index] = r.runCase(ctx, c, logger)
			return nil
		})
	}
	_ = g.Wait()

	run.FinishedAt = time.Now().UTC()
	passed, failed, errored := run.Counts()
	logger.Info("Audit complete.",
		zap.Int("passed", passed), zap.Int("failed", failed), zap.Int("errored", errored),
		zap.Duration("duration", run.FinishedAt.Sub(run.StartedAt)))
	return run, nil
}

func (r *Runner) runCase(ctx context.Context, c Case, logger *zap.Logger) (res Result) {
	res = Result{
		Check:       c.Check.Name(),
		Description: c.Check.Description(),
		Viewport:    c.Viewport,
		Path:        c.Path,
		URL:         c.URL,
	}
	start := time.Now()
	logger = logger.With(zap.String("check", res.Check), zap.String("viewport", c.Viewport.Name), zap.String("url", c.URL))

	defer func() {
		if p := recover(); p != nil {
			logger.Error("Panic during case execution.", zap.Any("panic_reason", p), zap.String("stack", string(debug.Stack())))
			res.Status = StatusError
			res.Err = fmt.Errorf("panic: %v", p)
		}
		res.Duration = time.Since(start)
	}()

	caseCtx, cancel := context.WithTimeout(ctx, r.opts.CaseTimeout)
	defer cancel()

	out, err := r.execute(caseCtx, c)
	switch {
	case err != nil:
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("case timed out after %s: %w", r.opts.CaseTimeout, err)
		}
		res.Status = StatusError
		res.Err = err
		logger.Warn("Case errored.", zap.Error(err))
	case out.Failed():
		res.Status = StatusFail
		res.Message = out.Message
		res.Violations = out.Violations
		logger.Info("Case failed.", zap.Int("violations", len(out.Violations)))
	default:
		res.Status = StatusPass
		logger.Debug("Case passed.")
	}
	return res
}

func (r *Runner) execute(ctx context.Context, c Case) (*checks.Outcome, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("navigation throttle: %w", err)
	}

	page, err := r.browser.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := page.Close(context.Background()); err != nil {
			r.logger.Debug("Failed to close tab.", zap.Error(err))
		}
	}()

	if err := checks.Prepare(ctx, page, c.Viewport, c.URL); err != nil {
		return nil, err
	}
	out, err := c.Check.Run(ctx, page, c.Viewport)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Check.Name(), err)
	}
	if out == nil {
		out = &checks.Outcome{}
	}
	return out, nil
}

// Summary renders a one-line tally.
func (r *Run) Summary() string {
	passed, failed, errored := r.Counts()
	parts := []string{fmt.Sprintf("%d passed", passed), fmt.Sprintf("%d failed", failed)}
	if errored > 0 {
		parts = append(parts, fmt.Sprintf("%d errored", errored))
	}
	return fmt.Sprintf("%d cases: %s", len(r.Results), strings.Join(parts, ", "))
}
