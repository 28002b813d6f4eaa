// Package checks implements the assertion families. Each family probes a
// prepared page once, collects typed violations and, when any exist, builds a
// single failure message enriched with element diagnostics.
package checks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/layoutprobe/internal/diagnostics"
	"github.com/xkilldash9x/layoutprobe/internal/probes"
	"github.com/xkilldash9x/layoutprobe/internal/snapshot"
	"github.com/xkilldash9x/layoutprobe/internal/viewport"
)

// Page is the browser capability the families drive.
type Page interface {
	diagnostics.Evaluator
	SetViewport(ctx context.Context, vp viewport.Viewport) error
	// Navigate loads url and returns once the page is ready for measurement.
	Navigate(ctx context.Context, url string) error
	// Screenshot captures the first element matching selector as PNG.
	Screenshot(ctx context.Context, selector string) ([]byte, error)
	Visible(ctx context.Context, selector string) (bool, error)
	// InjectScript evaluates src in the page's global scope.
	InjectScript(ctx context.Context, src string) error
}

// Check is one assertion family.
type Check interface {
	Name() string
	Description() string
	// Viewports lists the viewports the family runs at.
	Viewports(reg *viewport.Registry) []viewport.Viewport
	// Run probes a page already prepared at vp.
	Run(ctx context.Context, p Page, vp viewport.Viewport) (*Outcome, error)
}

// Violation is a single counterexample to a family's invariant.
type Violation interface {
	Summary() string
	// DiagnosticSelector addresses the offending element, or is empty when
	// there is nothing to enrich.
	DiagnosticSelector() string
}

// Outcome is the result of one Run. A nil error with violations is a failed
// case, never an infrastructure failure.
type Outcome struct {
	Violations []Violation
	Message    string
}

// Failed reports whether the invariant was broken.
func (o *Outcome) Failed() bool {
	return o != nil && len(o.Violations) > 0
}

// Diagnosed is embedded by violations that can carry enrichment text.
type Diagnosed struct {
	Diagnostics string `json:"diagnostics,omitempty"`
}

func (d *Diagnosed) annotate(text string) { d.Diagnostics = text }

type annotatable interface {
	annotate(text string)
}

// PrimaryClassToken returns the first whitespace-delimited token of a class
// attribute, or "" when there is none.
func PrimaryClassToken(className string) string {
	fields := strings.Fields(className)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Describe renders an element as tag or tag.primaryClass.
func Describe(tag, className string) string {
	if token := PrimaryClassToken(className); token != "" {
		return tag + "." + token
	}
	return tag
}

// Prepare sizes the page to vp and navigates it to url.
func Prepare(ctx context.Context, p Page, vp viewport.Viewport, url string) error {
	if err := p.SetViewport(ctx, vp); err != nil {
		return fmt.Errorf("failed to set viewport %s: %w", vp, err)
	}
	if err := p.Navigate(ctx, url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// Options tunes the families.
type Options struct {
	// Selectors are the layout containers checked by the containers family.
	Selectors            []string
	TargetMinSize        int
	HoverSample          int
	HoverSettleCap       time.Duration
	Enrich               bool
	AxeScript            string
	AxeTags              []string
	Baselines            *snapshot.Store
	VisualMaxDiffRatio   float64
	VisualPixelThreshold uint8
	Logger               *zap.Logger
}

// DefaultOptions returns the stock tuning.
func DefaultOptions() Options {
	return Options{
		Selectors:          viewport.DefaultSelectors,
		TargetMinSize:      44,
		HoverSample:        10,
		HoverSettleCap:     300 * time.Millisecond,
		Enrich:             true,
		AxeTags:            []string{"wcag2a", "wcag2aa", "wcag21a", "wcag21aa"},
		Baselines:          snapshot.NewStore("testdata/baselines", false),
		VisualMaxDiffRatio: 0.01,
		Logger:             zap.NewNop(),
	}
}

// All returns every family in a stable order.
func All(opts Options) []Check {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return []Check{
		&overflowCheck{},
		&reflowCheck{},
		&containersCheck{opts: opts},
		&targetSizeCheck{opts: opts},
		&boxSizingCheck{opts: opts},
		&flexCollapseCheck{opts: opts},
		&marginBleedCheck{opts: opts},
		&hoverShiftCheck{opts: opts},
		&accessibilityCheck{opts: opts},
		&visualCheck{opts: opts, logger: opts.Logger.Named("visual")},
	}
}

// Select filters checks by name, keeping the order of checks. An empty name
// list selects everything.
func Select(all []Check, names []string) ([]Check, error) {
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]Check, len(all))
	for _, c := range all {
		byName[c.Name()] = c
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := byName[n]; !ok {
			known := make([]string, 0, len(byName))
			for k := range byName {
				known = append(known, k)
			}
			sort.Strings(known)
			return nil, fmt.Errorf("unknown check %q (known: %s)", n, strings.Join(known, ", "))
		}
		wanted[n] = true
	}
	out := make([]Check, 0, len(wanted))
	for _, c := range all {
		if wanted[c.Name()] {
			out = append(out, c)
		}
	}
	return out, nil
}

// enrich fills diagnostics for the first n violations that address an element.
func enrich[V Violation](ctx context.Context, p Page, vs []V, n int) {
	for i, v := range vs {
		if i >= n {
			return
		}
		a, ok := any(v).(annotatable)
		if !ok {
			continue
		}
		sel := v.DiagnosticSelector()
		if sel == "" {
			continue
		}
		a.annotate(diagnostics.Describe(ctx, p, sel))
	}
}

// listing renders the first n summaries, one per indented line.
func listing[V Violation](vs []V, n int) string {
	var sb strings.Builder
	for i, v := range vs {
		if i >= n {
			fmt.Fprintf(&sb, "\n  ... and %d more", len(vs)-n)
			break
		}
		sb.WriteString("\n  ")
		sb.WriteString(v.Summary())
		if a, ok := any(v).(interface{ diagnosticsText() string }); ok {
			if text := a.diagnosticsText(); text != "" {
				sb.WriteString("\n    ")
				sb.WriteString(strings.ReplaceAll(text, "\n", "\n    "))
			}
		}
	}
	return sb.String()
}

func (d *Diagnosed) diagnosticsText() string { return d.Diagnostics }

// indentedJSON renders the first n violations as indented JSON.
func indentedJSON[V Violation](vs []V, n int) string {
	var more string
	if len(vs) > n {
		more = fmt.Sprintf("\n  ... and %d more", len(vs)-n)
		vs = vs[:n]
	}
	b, err := json.MarshalIndent(vs, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", vs) + more
	}
	return string(b) + more
}

func toViolations[V Violation](vs []V) []Violation {
	out := make([]Violation, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

func evaluate(ctx context.Context, p Page, res any, s probes.Script, args ...any) error {
	expr, err := probes.Call(s, args...)
	if err != nil {
		return err
	}
	if err := p.Evaluate(ctx, expr, res); err != nil {
		return fmt.Errorf("probe evaluation failed: %w", err)
	}
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
