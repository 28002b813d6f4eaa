// Package probes holds the page functions evaluated inside a document and
// builds the expressions that invoke them.
//
// Every probe is a single JavaScript function expression. Call wraps it with a
// shared prelude of DOM helpers and applies it to JSON encoded arguments, so
// the whole measurement happens in one evaluation against one layout.
package probes

import (
	_ "embed"
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
)

// Script is the source of a page function expression.
type Script string

//go:embed js/prelude.js
var prelude string

var (
	//go:embed js/diagnostics.js
	diagnostics string
	//go:embed js/overflow.js
	overflow string
	//go:embed js/containers.js
	containers string
	//go:embed js/target_size.js
	targetSize string
	//go:embed js/box_sizing.js
	boxSizing string
	//go:embed js/flex_collapse.js
	flexCollapse string
	//go:embed js/margin_bleed.js
	marginBleed string
	//go:embed js/hover_shift.js
	hoverShift string
	//go:embed js/visible.js
	visible string
	//go:embed js/ready.js
	ready string
	//go:embed js/axe_run.js
	axeRun string
)

// The probes shipped with the binary.
var (
	Diagnostics  = Script(diagnostics)
	Overflow     = Script(overflow)
	Containers   = Script(containers)
	TargetSize   = Script(targetSize)
	BoxSizing    = Script(boxSizing)
	FlexCollapse = Script(flexCollapse)
	MarginBleed  = Script(marginBleed)
	HoverShift   = Script(hoverShift)
	Visible      = Script(visible)
	Ready        = Script(ready)
	AxeRun       = Script(axeRun)
)

// AxeLoaded reports whether the axe-core global is present in the document.
const AxeLoaded = `typeof window.axe !== 'undefined'`

// Call returns an expression that evaluates s applied to args. Arguments are
// JSON encoded so selectors never need manual quoting.
func Call(s Script, args ...any) (string, error) {
	body := strings.TrimSpace(string(s))
	if body == "" {
		return "", fmt.Errorf("embedded probe is empty or failed to load")
	}

	encoded := make([]string, 0, len(args))
	for i, arg := range args {
		b, err := json.Marshal(arg)
		if err != nil {
			return "", fmt.Errorf("failed to encode probe argument %d: %w", i, err)
		}
		encoded = append(encoded, string(b))
	}

	var sb strings.Builder
	sb.WriteString("(() => {\n")
	sb.WriteString(prelude)
	sb.WriteString("\nreturn (")
	sb.WriteString(body)
	sb.WriteString(")(")
	sb.WriteString(strings.Join(encoded, ", "))
	sb.WriteString(");\n})()")
	return sb.String(), nil
}

// MustCall is Call for arguments that are known to encode, such as strings
// and plain structs. It panics on an encoding failure.
func MustCall(s Script, args ...any) string {
	expr, err := Call(s, args...)
	if err != nil {
		panic(err)
	}
	return expr
}
