package checks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/layoutprobe/internal/probes"
	"github.com/xkilldash9x/layoutprobe/internal/viewport"
)

func TestPrimaryClassToken(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"   ", ""},
		{"btn", "btn"},
		{"btn btn-primary", "btn"},
		{"\tnav-link\nactive", "nav-link"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, PrimaryClassToken(tt.in))
		})
	}
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "div", Describe("div", ""))
	assert.Equal(t, "div.card", Describe("div", "card  elevated"))
}

func TestOutcome_Failed(t *testing.T) {
	var nilOutcome *Outcome
	assert.False(t, nilOutcome.Failed())
	assert.False(t, (&Outcome{}).Failed())
	assert.True(t, (&Outcome{Violations: []Violation{&OverflowViolation{}}}).Failed())
}

func TestAll_NamesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range All(DefaultOptions()) {
		assert.False(t, seen[c.Name()], "duplicate check %s", c.Name())
		seen[c.Name()] = true
		assert.NotEmpty(t, c.Description())
	}
	assert.Len(t, seen, 10)
}

func TestSelect(t *testing.T) {
	all := All(DefaultOptions())

	got, err := Select(all, nil)
	require.NoError(t, err)
	assert.Len(t, got, len(all))

	got, err = Select(all, []string{"visual", "reflow", "reflow"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "reflow", got[0].Name(), "selection keeps registry order")
	assert.Equal(t, "visual", got[1].Name())

	_, err = Select(all, []string{"nope"})
	assert.ErrorContains(t, err, `unknown check "nope"`)
}

func TestViewports(t *testing.T) {
	reg := viewport.Default()
	opts := DefaultOptions()

	assert.Equal(t, reg.All(), findCheck("overflow", opts).Viewports(reg))
	assert.Equal(t, []viewport.Viewport{viewport.Reflow}, findCheck("reflow", opts).Viewports(reg))
	assert.Equal(t, []viewport.Viewport{viewport.Mobile}, findCheck("target-size", opts).Viewports(reg))
	assert.Equal(t, []viewport.Viewport{viewport.Desktop}, findCheck("box-sizing", opts).Viewports(reg))
	assert.Equal(t, []viewport.Viewport{viewport.Desktop}, findCheck("visual", opts).Viewports(reg))

	custom, err := viewport.New([]viewport.Viewport{{Name: "mobile", Width: 360, Height: 640}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []viewport.Viewport{{Name: "mobile", Width: 360, Height: 640}},
		findCheck("target-size", opts).Viewports(custom))
	assert.Equal(t, []viewport.Viewport{viewport.Desktop}, findCheck("flex-collapse", opts).Viewports(custom),
		"falls back to the stock desktop viewport")
}

func TestPrepare(t *testing.T) {
	ctx := context.Background()
	p := newFakePage()
	require.NoError(t, Prepare(ctx, p, viewport.Mobile, "http://localhost/"))
	assert.Equal(t, viewport.Mobile, p.viewport)
	assert.Equal(t, []string{"http://localhost/"}, p.navigated)

	p.navErr = errors.New("net::ERR_CONNECTION_REFUSED")
	err := Prepare(ctx, p, viewport.Mobile, "http://localhost/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to navigate to http://localhost/")
	assert.Contains(t, err.Error(), "ERR_CONNECTION_REFUSED")
}

func TestOverflowAndReflow(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()

	t.Run("no overflow", func(t *testing.T) {
		p := newFakePage()
		p.responses[probes.Overflow] = `{"scrollWidth":375,"clientWidth":375}`
		out, err := findCheck("overflow", opts).Run(ctx, p, viewport.Mobile)
		require.NoError(t, err)
		assert.False(t, out.Failed())
	})

	t.Run("leakage at reflow size", func(t *testing.T) {
		p := newFakePage()
		p.responses[probes.Overflow] = `{"scrollWidth":400,"clientWidth":320}`
		out, err := findCheck("reflow", opts).Run(ctx, p, viewport.Reflow)
		require.NoError(t, err)
		require.True(t, out.Failed())
		assert.Equal(t, "Horizontal leakage detected at reflow (320x256): scrollWidth (400) !== clientWidth (320)", out.Message)
		assert.Equal(t, &OverflowViolation{Viewport: "reflow (320x256)", ScrollWidth: 400, ClientWidth: 320}, out.Violations[0])
	})

	t.Run("evaluation failure", func(t *testing.T) {
		p := newFakePage()
		p.evalErr = context.DeadlineExceeded
		_, err := findCheck("overflow", opts).Run(ctx, p, viewport.Mobile)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})
}

func TestContainers(t *testing.T) {
	ctx := context.Background()
	p := newFakePage()
	var items []string
	for i := 0; i < 7; i++ {
		items = append(items, fmt.Sprintf(`{"selector":".grid-container","path":"html > body:nth-child(2) > div:nth-child(%d)","elementWidth":500,"parentWidth":375}`, i+1))
	}
	p.responses[probes.Containers] = "[" + strings.Join(items, ",") + "]"
	p.responses[probes.Diagnostics] = divDiagnostics

	out, err := findCheck("containers", DefaultOptions()).Run(ctx, p, viewport.Mobile)
	require.NoError(t, err)
	require.Len(t, out.Violations, 7)
	assert.Equal(t, 5, p.count(probes.Diagnostics), "only the first five are enriched")

	first := out.Violations[0].(*ContainerViolation)
	assert.Contains(t, first.Diagnostics, "Element: <div> (x)")
	assert.Empty(t, out.Violations[6].(*ContainerViolation).Diagnostics)
	assert.True(t, strings.HasPrefix(out.Message, "Found 7 containers wider than their parent at mobile (375x812):\n["))
	assert.Contains(t, out.Message, `"elementWidth": 500`)
}

func TestContainers_MessageIsCapped(t *testing.T) {
	p := newFakePage()
	var items []string
	for i := 0; i < 12; i++ {
		items = append(items, fmt.Sprintf(`{"selector":"main","path":"main > div:nth-child(%d)","elementWidth":400,"parentWidth":375}`, i+1))
	}
	p.responses[probes.Containers] = "[" + strings.Join(items, ",") + "]"
	opts := DefaultOptions()
	opts.Enrich = false

	out, err := findCheck("containers", opts).Run(context.Background(), p, viewport.Mobile)
	require.NoError(t, err)
	require.Len(t, out.Violations, 12)
	assert.Equal(t, 10, strings.Count(out.Message, `"elementWidth": 400`))
	assert.True(t, strings.HasSuffix(out.Message, "\n  ... and 2 more"), out.Message)
}

func TestContainers_EnrichmentDisabled(t *testing.T) {
	p := newFakePage()
	p.responses[probes.Containers] = `[{"selector":"main","path":"main","elementWidth":400,"parentWidth":375}]`
	opts := DefaultOptions()
	opts.Enrich = false

	out, err := findCheck("containers", opts).Run(context.Background(), p, viewport.Mobile)
	require.NoError(t, err)
	require.True(t, out.Failed())
	assert.Zero(t, p.count(probes.Diagnostics))
	assert.True(t, strings.HasPrefix(out.Message, "Found 1 container wider than its parent"))
}

func TestTargetSize(t *testing.T) {
	ctx := context.Background()
	p := newFakePage()
	var items []string
	items = append(items, `{"tag":"button","text":"Go","className":"btn  btn-sm","path":"#go","width":40,"height":40}`)
	for i := 0; i < 11; i++ {
		items = append(items, fmt.Sprintf(`{"tag":"a","text":"link %d","className":"","path":"a","width":60,"height":20}`, i))
	}
	p.responses[probes.TargetSize] = "[" + strings.Join(items, ",") + "]"

	out, err := findCheck("target-size", DefaultOptions()).Run(ctx, p, viewport.Mobile)
	require.NoError(t, err)
	require.Len(t, out.Violations, 12)

	first := out.Violations[0].(*TargetViolation)
	assert.Equal(t, "button", first.Tag)
	assert.Equal(t, 40, first.Width)
	assert.Equal(t, 40, first.Height)
	assert.Equal(t, "btn", first.ClassName)

	lines := strings.Split(out.Message, "\n")
	assert.Equal(t, "Found 12 touch targets smaller than 44x44px at mobile (375x812):", lines[0])
	assert.Equal(t, `  button "Go" class="btn": 40x40px`, lines[1])
	assert.Equal(t, `  a "link 0" class="": 60x20px`, lines[2])
	assert.Len(t, lines, 12, "header, ten entries and the remainder line")
	assert.Equal(t, "  ... and 2 more", lines[11])
	assert.Zero(t, p.count(probes.Diagnostics))
}

func TestTargetSize_Pass(t *testing.T) {
	p := newFakePage()
	p.responses[probes.TargetSize] = `[]`
	out, err := findCheck("target-size", DefaultOptions()).Run(context.Background(), p, viewport.Mobile)
	require.NoError(t, err)
	assert.False(t, out.Failed())
	assert.Empty(t, out.Message)
}

func TestBoxSizing(t *testing.T) {
	p := newFakePage()
	p.responses[probes.BoxSizing] = `[{"selector":"div","tagName":"div","className":"legacy wide","path":"main > div:nth-child(1)","boxSizing":"content-box"}]`

	out, err := findCheck("box-sizing", DefaultOptions()).Run(context.Background(), p, viewport.Desktop)
	require.NoError(t, err)
	require.Len(t, out.Violations, 1)
	assert.Equal(t, "Found 1 element without border-box at desktop (1440x900):\n  div.legacy: box-sizing is content-box, expected border-box", out.Message)
}

func TestFlexCollapse(t *testing.T) {
	p := newFakePage()
	p.responses[probes.FlexCollapse] = `[{"parentTag":"nav","parentClass":"menu","childTag":"span","childClass":"","path":"nav > span:nth-child(1)","parentDisplay":"flex","childWidth":0,"childHeight":18}]`

	out, err := findCheck("flex-collapse", DefaultOptions()).Run(context.Background(), p, viewport.Desktop)
	require.NoError(t, err)
	require.Len(t, out.Violations, 1)
	v := out.Violations[0].(*CollapseViolation)
	assert.Equal(t, "nav.menu", v.Parent)
	assert.Equal(t, "span", v.Child)
	assert.Contains(t, out.Message, "nav.menu (flex) > span collapsed to 0x18")
}

func TestMarginBleed(t *testing.T) {
	p := newFakePage()
	var items []string
	for i := 0; i < 6; i++ {
		items = append(items, fmt.Sprintf(`{"sectionTag":"section","sectionClass":"hero","childTag":"div","childClass":"banner","path":"section > div:nth-child(%d)","sectionLeft":0,"sectionRight":375,"childLeft":-20,"childRight":395}`, i+1))
	}
	p.responses[probes.MarginBleed] = "[" + strings.Join(items, ",") + "]"
	p.responses[probes.Diagnostics] = divDiagnostics

	out, err := findCheck("margin-bleed", DefaultOptions()).Run(context.Background(), p, viewport.Mobile)
	require.NoError(t, err)
	require.Len(t, out.Violations, 6)
	assert.Equal(t, 3, p.count(probes.Diagnostics))
	assert.Equal(t, "section.hero", out.Violations[0].(*BleedViolation).Section)
	assert.Equal(t, 5, strings.Count(out.Message, `"child": "div.banner"`), "message embeds the first five")
	assert.Equal(t, 3, strings.Count(out.Message, `"diagnostics":`))
}

func TestHoverShift(t *testing.T) {
	p := newFakePage()
	p.responses[probes.HoverShift] = `[{"selector":"a[href]","tag":"a","className":"nav-link active","path":"nav > a:nth-child(1)","elWidthDelta":0,"elHeightDelta":4,"siblingTopDelta":4,"siblingLeftDelta":0}]`
	p.responses[probes.Diagnostics] = divDiagnostics

	out, err := findCheck("hover-shift", DefaultOptions()).Run(context.Background(), p, viewport.Tablet)
	require.NoError(t, err)
	require.Len(t, out.Violations, 1)
	assert.Contains(t, out.Message, "a.nav-link (a[href]): hover moved the next sibling 4px vertically and 0px horizontally")
	assert.Contains(t, out.Message, "\n    Element: <div> (x)")
}

func TestAccessibility(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()
	opts.AxeScript = "window.axe = {};"

	p := newFakePage()
	p.exact[probes.AxeLoaded] = `false`
	p.responses[probes.AxeRun] = `[
		{"id":"image-alt","impact":"critical","description":"Images must have alternate text","nodes":2},
		{"id":"color-contrast","impact":"serious","description":"Elements must meet contrast ratio thresholds","nodes":1}
	]`

	out, err := findCheck("accessibility", opts).Run(ctx, p, viewport.Desktop)
	require.NoError(t, err)
	require.Len(t, out.Violations, 2)
	assert.Equal(t, []string{opts.AxeScript}, p.injected)
	assert.Equal(t, "color-contrast", out.Violations[0].(*AxeViolation).ID, "sorted by id")
	assert.Equal(t, strings.Join([]string{
		"Found 2 accessibility violations at desktop (1440x900):",
		"  [serious] color-contrast: Elements must meet contrast ratio thresholds (1 node)",
		"  [critical] image-alt: Images must have alternate text (2 nodes)",
	}, "\n"), out.Message)

	p.exact[probes.AxeLoaded] = `true`
	again, err := findCheck("accessibility", opts).Run(ctx, p, viewport.Desktop)
	require.NoError(t, err)
	assert.Len(t, p.injected, 1, "axe is not injected twice")
	assert.Equal(t, out.Message, again.Message, "repeated runs agree")
}

func TestAccessibility_NoSource(t *testing.T) {
	_, err := findCheck("accessibility", DefaultOptions()).Run(context.Background(), newFakePage(), viewport.Desktop)
	assert.ErrorContains(t, err, "axe-core source is not loaded")
}
