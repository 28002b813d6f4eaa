package checks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/layoutprobe/internal/viewport"
)

var visualLandmarks = []string{"header", "footer", "main"}

// VisualViolation is a landmark whose screenshot no longer matches its baseline.
type VisualViolation struct {
	Component    string  `json:"component"`
	Viewport     string  `json:"viewport"`
	Baseline     string  `json:"baseline"`
	Actual       string  `json:"actual,omitempty"`
	Ratio        float64 `json:"ratio"`
	MaxRatio     float64 `json:"maxRatio"`
	Created      bool    `json:"created,omitempty"`
	SizeMismatch bool    `json:"sizeMismatch,omitempty"`
}

func (v *VisualViolation) Summary() string {
	switch {
	case v.Created:
		return fmt.Sprintf("%s: no baseline existed, wrote %s", v.Component, v.Baseline)
	case v.SizeMismatch:
		return fmt.Sprintf("%s: screenshot size differs from %s (actual saved to %s)", v.Component, v.Baseline, v.Actual)
	default:
		return fmt.Sprintf("%s: %.2f%% of pixels differ from %s, allowed %.2f%% (actual saved to %s)",
			v.Component, v.Ratio*100, v.Baseline, v.MaxRatio*100, v.Actual)
	}
}

func (v *VisualViolation) DiagnosticSelector() string { return "" }

type visualCheck struct {
	opts   Options
	logger *zap.Logger
}

func (c *visualCheck) Name() string { return "visual" }
func (c *visualCheck) Description() string {
	return "Header, footer and main match their stored screenshot baselines."
}
func (c *visualCheck) Viewports(reg *viewport.Registry) []viewport.Viewport {
	return []viewport.Viewport{reg.Preferred(viewport.Desktop.Name, viewport.Desktop)}
}

func (c *visualCheck) Run(ctx context.Context, p Page, vp viewport.Viewport) (*Outcome, error) {
	if c.opts.Baselines == nil {
		return nil, fmt.Errorf("no baseline store configured")
	}

	var found []*VisualViolation
	for _, landmark := range visualLandmarks {
		visible, err := p.Visible(ctx, landmark)
		if err != nil {
			return nil, fmt.Errorf("failed to check visibility of %s: %w", landmark, err)
		}
		if !visible {
			c.logger.Debug("Skipping landmark that is not visible.", zap.String("component", landmark), zap.String("viewport", vp.Name))
			continue
		}

		shot, err := p.Screenshot(ctx, landmark)
		if err != nil {
			return nil, fmt.Errorf("failed to capture %s: %w", landmark, err)
		}
		res, err := c.opts.Baselines.Match(landmark, vp.Name, shot, c.opts.VisualPixelThreshold, c.opts.VisualMaxDiffRatio)
		if err != nil {
			return nil, err
		}

		switch {
		case res.Updated:
			c.logger.Info("Baseline updated.", zap.String("path", res.Path))
		case res.Created:
			found = append(found, &VisualViolation{
				Component: landmark, Viewport: vp.Name, Baseline: res.Path,
				MaxRatio: c.opts.VisualMaxDiffRatio, Created: true,
			})
		case res.Diff.Ratio() > c.opts.VisualMaxDiffRatio:
			found = append(found, &VisualViolation{
				Component:    landmark,
				Viewport:     vp.Name,
				Baseline:     res.Path,
				Actual:       res.ActualPath,
				Ratio:        res.Diff.Ratio(),
				MaxRatio:     c.opts.VisualMaxDiffRatio,
				SizeMismatch: res.Diff.SizeMismatch,
			})
		}
	}
	if len(found) == 0 {
		return &Outcome{}, nil
	}

	msg := fmt.Sprintf("Visual regression in %d %s at %s:%s",
		len(found), plural(len(found), "component", "components"), vp, listing(found, len(found)))
	return &Outcome{Violations: toViolations(found), Message: msg}, nil
}
