// Package diagnostics captures the computed layout of a single element and
// renders it as a fixed-order, human readable block for failure messages.
package diagnostics

import (
	"context"
	"fmt"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/layoutprobe/internal/probes"
)

// Evaluator runs an expression in a document and decodes its result into res.
type Evaluator interface {
	Evaluate(ctx context.Context, expression string, res any) error
}

// Rect mirrors a DOMRect. Field order follows DOMRect.toJSON so the encoded
// form reads the same as it would in the browser console.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// Record is a snapshot of one element's computed layout. When the selector
// matched nothing only Error is set.
type Record struct {
	Selector     string `json:"selector,omitempty"`
	TagName      string `json:"tagName,omitempty"`
	Width        string `json:"width,omitempty"`
	MaxWidth     string `json:"maxWidth,omitempty"`
	FlexBasis    string `json:"flexBasis,omitempty"`
	Padding      string `json:"padding,omitempty"`
	Margin       string `json:"margin,omitempty"`
	BoxSizing    string `json:"boxSizing,omitempty"`
	Display      string `json:"display,omitempty"`
	Overflow     string `json:"overflow,omitempty"`
	BoundingRect Rect   `json:"boundingRect"`
	Error        string `json:"error,omitempty"`
}

// NotFound returns the record produced for a selector that matched nothing.
func NotFound(selector string) Record {
	return Record{Error: "Element not found: " + selector}
}

// Collect reads the computed layout of the first element matching selector in
// a single evaluation. A missing element is reported through Record.Error, not
// as an error; errors are reserved for evaluation failures.
func Collect(ctx context.Context, ev Evaluator, selector string) (Record, error) {
	expr, err := probes.Call(probes.Diagnostics, selector)
	if err != nil {
		return Record{}, err
	}

	var rec Record
	if err := ev.Evaluate(ctx, expr, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to collect diagnostics for %q: %w", selector, err)
	}
	if rec.Error != "" {
		return Record{Error: rec.Error}, nil
	}
	return rec, nil
}

// Format renders rec as the multi-line diagnostics block. Records carrying an
// error render as the error text alone.
func Format(rec Record) string {
	if rec.Error != "" {
		return rec.Error
	}

	rect, err := json.Marshal(rec.BoundingRect)
	if err != nil {
		// Only non-finite coordinates fail to encode.
		rect = []byte(fmt.Sprintf("%+v", rec.BoundingRect))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Element: <%s> (%s)\n", rec.TagName, rec.Selector)
	fmt.Fprintf(&sb, "  width: %s\n", rec.Width)
	fmt.Fprintf(&sb, "  max-width: %s\n", rec.MaxWidth)
	fmt.Fprintf(&sb, "  flex-basis: %s\n", rec.FlexBasis)
	fmt.Fprintf(&sb, "  padding: %s\n", rec.Padding)
	fmt.Fprintf(&sb, "  margin: %s\n", rec.Margin)
	fmt.Fprintf(&sb, "  box-sizing: %s\n", rec.BoxSizing)
	fmt.Fprintf(&sb, "  display: %s\n", rec.Display)
	fmt.Fprintf(&sb, "  overflow: %s\n", rec.Overflow)
	fmt.Fprintf(&sb, "  bounding-rect: %s", rect)
	return sb.String()
}

// Describe collects and formats in one step. Evaluation failures are folded
// into the returned text so enrichment never aborts a report.
func Describe(ctx context.Context, ev Evaluator, selector string) string {
	rec, err := Collect(ctx, ev, selector)
	if err != nil {
		return fmt.Sprintf("diagnostics unavailable for %s: %v", selector, err)
	}
	return Format(rec)
}
