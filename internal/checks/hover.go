package checks

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/layoutprobe/internal/probes"
	"github.com/xkilldash9x/layoutprobe/internal/viewport"
)

var hoverSelectors = []string{`a[href]`, `button`, `[role="button"]`, `input[type="submit"]`}

// HoverViolation is an interactive element whose hover state moves its next
// sibling.
type HoverViolation struct {
	Selector         string  `json:"selector"`
	Element          string  `json:"element"`
	Path             string  `json:"path"`
	ElWidthDelta     float64 `json:"elWidthDelta"`
	ElHeightDelta    float64 `json:"elHeightDelta"`
	SiblingTopDelta  float64 `json:"siblingTopDelta"`
	SiblingLeftDelta float64 `json:"siblingLeftDelta"`
	Diagnosed
}

func (v *HoverViolation) Summary() string {
	return fmt.Sprintf("%s (%s): hover moved the next sibling %gpx vertically and %gpx horizontally",
		v.Element, v.Selector, v.SiblingTopDelta, v.SiblingLeftDelta)
}

func (v *HoverViolation) DiagnosticSelector() string { return v.Path }

type hoverShiftCheck struct {
	opts Options
}

func (c *hoverShiftCheck) Name() string { return "hover-shift" }
func (c *hoverShiftCheck) Description() string {
	return "Hovering an interactive element does not shift the layout of its neighbours."
}
func (c *hoverShiftCheck) Viewports(reg *viewport.Registry) []viewport.Viewport { return reg.All() }

func (c *hoverShiftCheck) Run(ctx context.Context, p Page, vp viewport.Viewport) (*Outcome, error) {
	args := struct {
		Selectors   []string `json:"selectors"`
		Sample      int      `json:"sample"`
		SettleCapMs int64    `json:"settleCapMs"`
	}{hoverSelectors, c.opts.HoverSample, c.opts.HoverSettleCap.Milliseconds()}

	var raw []struct {
		Selector         string  `json:"selector"`
		Tag              string  `json:"tag"`
		ClassName        string  `json:"className"`
		Path             string  `json:"path"`
		ElWidthDelta     float64 `json:"elWidthDelta"`
		ElHeightDelta    float64 `json:"elHeightDelta"`
		SiblingTopDelta  float64 `json:"siblingTopDelta"`
		SiblingLeftDelta float64 `json:"siblingLeftDelta"`
	}
	if err := evaluate(ctx, p, &raw, probes.HoverShift, args); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return &Outcome{}, nil
	}

	found := make([]*HoverViolation, len(raw))
	for i, r := range raw {
		found[i] = &HoverViolation{
			Selector:         r.Selector,
			Element:          Describe(r.Tag, r.ClassName),
			Path:             r.Path,
			ElWidthDelta:     r.ElWidthDelta,
			ElHeightDelta:    r.ElHeightDelta,
			SiblingTopDelta:  r.SiblingTopDelta,
			SiblingLeftDelta: r.SiblingLeftDelta,
		}
	}
	if c.opts.Enrich {
		enrich(ctx, p, found, 3)
	}
	msg := fmt.Sprintf("Found %d hover %s causing layout shift at %s:%s",
		len(found), plural(len(found), "state", "states"), vp, listing(found, 5))
	return &Outcome{Violations: toViolations(found), Message: msg}, nil
}
