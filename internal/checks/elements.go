package checks

import (
	"context"
	"fmt"
	"strings"

	"github.com/xkilldash9x/layoutprobe/internal/probes"
	"github.com/xkilldash9x/layoutprobe/internal/viewport"
)

// interactiveSelector matches the elements WCAG 2.5.5 treats as pointer targets.
const interactiveSelector = `a[href], button, input, select, textarea, [role="button"], [role="link"], [tabindex="0"]`

// TargetViolation is an interactive element below the minimum target size.
type TargetViolation struct {
	Tag       string `json:"tag"`
	Text      string `json:"text"`
	ClassName string `json:"className"`
	Path      string `json:"path"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

func (v *TargetViolation) Summary() string {
	return fmt.Sprintf("%s %q class=%q: %dx%dpx", v.Tag, v.Text, v.ClassName, v.Width, v.Height)
}

func (v *TargetViolation) DiagnosticSelector() string { return v.Path }

type targetSizeCheck struct {
	opts Options
}

func (c *targetSizeCheck) Name() string { return "target-size" }
func (c *targetSizeCheck) Description() string {
	return "WCAG 2.5.5: visible interactive elements are at least 44x44 CSS pixels on mobile."
}
func (c *targetSizeCheck) Viewports(reg *viewport.Registry) []viewport.Viewport {
	return []viewport.Viewport{reg.Preferred(viewport.Mobile.Name, viewport.Mobile)}
}

func (c *targetSizeCheck) Run(ctx context.Context, p Page, vp viewport.Viewport) (*Outcome, error) {
	args := struct {
		Selector string `json:"selector"`
		MinSize  int    `json:"minSize"`
	}{interactiveSelector, c.opts.TargetMinSize}

	var found []*TargetViolation
	if err := evaluate(ctx, p, &found, probes.TargetSize, args); err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return &Outcome{}, nil
	}
	for _, v := range found {
		v.ClassName = PrimaryClassToken(v.ClassName)
		v.Text = truncate(v.Text, 50)
	}
	msg := fmt.Sprintf("Found %d touch %s smaller than %dx%dpx at %s:%s",
		len(found), plural(len(found), "target", "targets"),
		c.opts.TargetMinSize, c.opts.TargetMinSize, vp, listing(found, 10))
	return &Outcome{Violations: toViolations(found), Message: msg}, nil
}

// boxSizingSelectors are the structural tags expected to use border-box.
var boxSizingSelectors = []string{"header", "main", "footer", "section", "nav", "article", "aside", "div"}

// BoxSizingViolation is a structural element not using border-box.
type BoxSizingViolation struct {
	Selector  string `json:"selector"`
	Element   string `json:"element"`
	Path      string `json:"path"`
	BoxSizing string `json:"boxSizing"`
}

func (v *BoxSizingViolation) Summary() string {
	return fmt.Sprintf("%s: box-sizing is %s, expected border-box", v.Element, v.BoxSizing)
}

func (v *BoxSizingViolation) DiagnosticSelector() string { return v.Path }

type boxSizingCheck struct {
	opts Options
}

func (c *boxSizingCheck) Name() string { return "box-sizing" }
func (c *boxSizingCheck) Description() string {
	return "Structural elements compute box-sizing: border-box."
}
func (c *boxSizingCheck) Viewports(reg *viewport.Registry) []viewport.Viewport {
	return []viewport.Viewport{reg.Preferred(viewport.Desktop.Name, viewport.Desktop)}
}

func (c *boxSizingCheck) Run(ctx context.Context, p Page, vp viewport.Viewport) (*Outcome, error) {
	var raw []struct {
		Selector  string `json:"selector"`
		TagName   string `json:"tagName"`
		ClassName string `json:"className"`
		Path      string `json:"path"`
		BoxSizing string `json:"boxSizing"`
	}
	if err := evaluate(ctx, p, &raw, probes.BoxSizing, boxSizingSelectors); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return &Outcome{}, nil
	}
	found := make([]*BoxSizingViolation, len(raw))
	for i, r := range raw {
		found[i] = &BoxSizingViolation{
			Selector:  r.Selector,
			Element:   Describe(r.TagName, r.ClassName),
			Path:      r.Path,
			BoxSizing: r.BoxSizing,
		}
	}
	msg := fmt.Sprintf("Found %d %s without border-box at %s:%s",
		len(found), plural(len(found), "element", "elements"), vp, listing(found, 5))
	return &Outcome{Violations: toViolations(found), Message: msg}, nil
}

// CollapseViolation is a flex or grid child with content rendered at zero size.
type CollapseViolation struct {
	Parent        string  `json:"parent"`
	Child         string  `json:"child"`
	Path          string  `json:"path"`
	ParentDisplay string  `json:"parentDisplay"`
	ChildWidth    float64 `json:"childWidth"`
	ChildHeight   float64 `json:"childHeight"`
}

func (v *CollapseViolation) Summary() string {
	return fmt.Sprintf("%s (%s) > %s collapsed to %gx%g", v.Parent, v.ParentDisplay, v.Child, v.ChildWidth, v.ChildHeight)
}

func (v *CollapseViolation) DiagnosticSelector() string { return v.Path }

type flexCollapseCheck struct {
	opts Options
}

func (c *flexCollapseCheck) Name() string { return "flex-collapse" }
func (c *flexCollapseCheck) Description() string {
	return "Visible children of flex and grid containers that have content never collapse to zero size."
}
func (c *flexCollapseCheck) Viewports(reg *viewport.Registry) []viewport.Viewport {
	return []viewport.Viewport{reg.Preferred(viewport.Desktop.Name, viewport.Desktop)}
}

func (c *flexCollapseCheck) Run(ctx context.Context, p Page, vp viewport.Viewport) (*Outcome, error) {
	var raw []struct {
		ParentTag     string  `json:"parentTag"`
		ParentClass   string  `json:"parentClass"`
		ChildTag      string  `json:"childTag"`
		ChildClass    string  `json:"childClass"`
		Path          string  `json:"path"`
		ParentDisplay string  `json:"parentDisplay"`
		ChildWidth    float64 `json:"childWidth"`
		ChildHeight   float64 `json:"childHeight"`
	}
	if err := evaluate(ctx, p, &raw, probes.FlexCollapse); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return &Outcome{}, nil
	}
	found := make([]*CollapseViolation, len(raw))
	for i, r := range raw {
		found[i] = &CollapseViolation{
			Parent:        Describe(r.ParentTag, r.ParentClass),
			Child:         Describe(r.ChildTag, r.ChildClass),
			Path:          r.Path,
			ParentDisplay: r.ParentDisplay,
			ChildWidth:    r.ChildWidth,
			ChildHeight:   r.ChildHeight,
		}
	}
	msg := fmt.Sprintf("Found %d collapsed flex/grid %s at %s:%s",
		len(found), plural(len(found), "child", "children"), vp, listing(found, 5))
	return &Outcome{Violations: toViolations(found), Message: msg}, nil
}

// truncate shortens s to n runes.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
