package checks

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/layoutprobe/internal/probes"
	"github.com/xkilldash9x/layoutprobe/internal/viewport"
)

// OverflowViolation is horizontal scroll on the document element.
type OverflowViolation struct {
	Viewport    string `json:"viewport"`
	ScrollWidth int    `json:"scrollWidth"`
	ClientWidth int    `json:"clientWidth"`
}

func (v *OverflowViolation) Summary() string {
	return fmt.Sprintf("Horizontal leakage detected at %s: scrollWidth (%d) !== clientWidth (%d)",
		v.Viewport, v.ScrollWidth, v.ClientWidth)
}

func (v *OverflowViolation) DiagnosticSelector() string { return "" }

func probeOverflow(ctx context.Context, p Page, vp viewport.Viewport) (*Outcome, error) {
	var m struct {
		ScrollWidth int `json:"scrollWidth"`
		ClientWidth int `json:"clientWidth"`
	}
	if err := evaluate(ctx, p, &m, probes.Overflow); err != nil {
		return nil, err
	}
	if m.ScrollWidth <= m.ClientWidth {
		return &Outcome{}, nil
	}
	v := &OverflowViolation{Viewport: vp.String(), ScrollWidth: m.ScrollWidth, ClientWidth: m.ClientWidth}
	return &Outcome{Violations: []Violation{v}, Message: v.Summary()}, nil
}

type overflowCheck struct{}

func (c *overflowCheck) Name() string { return "overflow" }
func (c *overflowCheck) Description() string {
	return "The document does not scroll horizontally at any configured viewport."
}
func (c *overflowCheck) Viewports(reg *viewport.Registry) []viewport.Viewport { return reg.All() }
func (c *overflowCheck) Run(ctx context.Context, p Page, vp viewport.Viewport) (*Outcome, error) {
	return probeOverflow(ctx, p, vp)
}

type reflowCheck struct{}

func (c *reflowCheck) Name() string { return "reflow" }
func (c *reflowCheck) Description() string {
	return "WCAG 1.4.10: content reflows without horizontal scrolling at 320x256."
}
func (c *reflowCheck) Viewports(*viewport.Registry) []viewport.Viewport {
	return []viewport.Viewport{viewport.Reflow}
}
func (c *reflowCheck) Run(ctx context.Context, p Page, vp viewport.Viewport) (*Outcome, error) {
	return probeOverflow(ctx, p, vp)
}

// ContainerViolation is a layout container wider than its parent.
type ContainerViolation struct {
	Selector     string  `json:"selector"`
	Path         string  `json:"path"`
	ElementWidth float64 `json:"elementWidth"`
	ParentWidth  float64 `json:"parentWidth"`
	Diagnosed
}

func (v *ContainerViolation) Summary() string {
	return fmt.Sprintf("%s is %gpx wide inside a %gpx parent", v.Path, v.ElementWidth, v.ParentWidth)
}

func (v *ContainerViolation) DiagnosticSelector() string { return v.Path }

type containersCheck struct {
	opts Options
}

func (c *containersCheck) Name() string { return "containers" }
func (c *containersCheck) Description() string {
	return "Layout containers are never wider than their parent element."
}
func (c *containersCheck) Viewports(reg *viewport.Registry) []viewport.Viewport { return reg.All() }

func (c *containersCheck) Run(ctx context.Context, p Page, vp viewport.Viewport) (*Outcome, error) {
	selectors := c.opts.Selectors
	if selectors == nil {
		selectors = []string{}
	}
	var found []*ContainerViolation
	if err := evaluate(ctx, p, &found, probes.Containers, selectors); err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return &Outcome{}, nil
	}
	if c.opts.Enrich {
		enrich(ctx, p, found, 5)
	}
	msg := fmt.Sprintf("Found %d %s wider than %s parent at %s:\n%s",
		len(found), plural(len(found), "container", "containers"),
		plural(len(found), "its", "their"), vp, indentedJSON(found, 10))
	return &Outcome{Violations: toViolations(found), Message: msg}, nil
}

// BleedViolation is a section child extending past its section's edges.
type BleedViolation struct {
	Section      string  `json:"section"`
	Child        string  `json:"child"`
	Path         string  `json:"path"`
	SectionLeft  float64 `json:"sectionLeft"`
	SectionRight float64 `json:"sectionRight"`
	ChildLeft    float64 `json:"childLeft"`
	ChildRight   float64 `json:"childRight"`
	Diagnosed
}

func (v *BleedViolation) Summary() string {
	return fmt.Sprintf("%s bleeds out of %s: child [%g, %g] vs section [%g, %g]",
		v.Child, v.Section, v.ChildLeft, v.ChildRight, v.SectionLeft, v.SectionRight)
}

func (v *BleedViolation) DiagnosticSelector() string { return v.Path }

const bleedSelector = "section, article, main"

type marginBleedCheck struct {
	opts Options
}

func (c *marginBleedCheck) Name() string { return "margin-bleed" }
func (c *marginBleedCheck) Description() string {
	return "Direct children of sections, articles and main stay within their horizontal bounds."
}
func (c *marginBleedCheck) Viewports(reg *viewport.Registry) []viewport.Viewport { return reg.All() }

func (c *marginBleedCheck) Run(ctx context.Context, p Page, vp viewport.Viewport) (*Outcome, error) {
	var raw []struct {
		SectionTag   string  `json:"sectionTag"`
		SectionClass string  `json:"sectionClass"`
		ChildTag     string  `json:"childTag"`
		ChildClass   string  `json:"childClass"`
		Path         string  `json:"path"`
		SectionLeft  float64 `json:"sectionLeft"`
		SectionRight float64 `json:"sectionRight"`
		ChildLeft    float64 `json:"childLeft"`
		ChildRight   float64 `json:"childRight"`
	}
	if err := evaluate(ctx, p, &raw, probes.MarginBleed, bleedSelector); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return &Outcome{}, nil
	}

	found := make([]*BleedViolation, len(raw))
	for i, r := range raw {
		found[i] = &BleedViolation{
			Section:      Describe(r.SectionTag, r.SectionClass),
			Child:        Describe(r.ChildTag, r.ChildClass),
			Path:         r.Path,
			SectionLeft:  r.SectionLeft,
			SectionRight: r.SectionRight,
			ChildLeft:    r.ChildLeft,
			ChildRight:   r.ChildRight,
		}
	}
	if c.opts.Enrich {
		enrich(ctx, p, found, 3)
	}
	msg := fmt.Sprintf("Found %d %s bleeding out of %s parent at %s:\n%s",
		len(found), plural(len(found), "element", "elements"),
		plural(len(found), "its", "their"), vp, indentedJSON(found, 5))
	return &Outcome{Violations: toViolations(found), Message: msg}, nil
}
