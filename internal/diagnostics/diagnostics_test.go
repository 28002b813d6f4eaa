package diagnostics

import (
	"context"
	"errors"
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cannedEvaluator answers every evaluation with a fixed JSON document.
type cannedEvaluator struct {
	response string
	err      error
	exprs    []string
}

func (c *cannedEvaluator) Evaluate(_ context.Context, expr string, res any) error {
	c.exprs = append(c.exprs, expr)
	if c.err != nil {
		return c.err
	}
	return json.Unmarshal([]byte(c.response), res)
}

func sampleRecord() Record {
	return Record{
		Selector:  ".grid-container",
		TagName:   "div",
		Width:     "1200px",
		MaxWidth:  "none",
		FlexBasis: "auto",
		Padding:   "0px 16px",
		Margin:    "0px",
		BoxSizing: "border-box",
		Display:   "grid",
		Overflow:  "visible",
		BoundingRect: Rect{
			X: 120, Y: 64.5, Width: 1200, Height: 300,
			Top: 64.5, Right: 1320, Bottom: 364.5, Left: 120,
		},
	}
}

func TestFormat(t *testing.T) {
	want := strings.Join([]string{
		"Element: <div> (.grid-container)",
		"  width: 1200px",
		"  max-width: none",
		"  flex-basis: auto",
		"  padding: 0px 16px",
		"  margin: 0px",
		"  box-sizing: border-box",
		"  display: grid",
		"  overflow: visible",
		`  bounding-rect: {"x":120,"y":64.5,"width":1200,"height":300,"top":64.5,"right":1320,"bottom":364.5,"left":120}`,
	}, "\n")
	assert.Equal(t, want, Format(sampleRecord()))
}

func TestFormat_HeaderWrapsTag(t *testing.T) {
	out := Format(Record{Selector: "main", TagName: "main"})
	first, _, _ := strings.Cut(out, "\n")
	assert.Equal(t, "Element: <main> (main)", first)
}

func TestFormat_Error(t *testing.T) {
	assert.Equal(t, "Element not found: #nope", Format(NotFound("#nope")))
}

func TestFormat_Deterministic(t *testing.T) {
	rec := sampleRecord()
	assert.Equal(t, Format(rec), Format(rec))
}

func TestCollect(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		ev := &cannedEvaluator{response: `{
			"selector": ".grid-container", "tagName": "div", "width": "1200px",
			"maxWidth": "none", "flexBasis": "auto", "padding": "0px 16px",
			"margin": "0px", "boxSizing": "border-box", "display": "grid",
			"overflow": "visible",
			"boundingRect": {"x":120,"y":64.5,"width":1200,"height":300,"top":64.5,"right":1320,"bottom":364.5,"left":120}
		}`}
		rec, err := Collect(ctx, ev, ".grid-container")
		require.NoError(t, err)
		assert.Equal(t, sampleRecord(), rec)
		require.Len(t, ev.exprs, 1, "collection must be a single evaluation")
		assert.Contains(t, ev.exprs[0], `(".grid-container")`)
	})

	t.Run("missing element", func(t *testing.T) {
		ev := &cannedEvaluator{response: `{"error":"Element not found: #missing"}`}
		rec, err := Collect(ctx, ev, "#missing")
		require.NoError(t, err)
		assert.Equal(t, NotFound("#missing"), rec)
		assert.Equal(t, "Element not found: #missing", Format(rec))
	})

	t.Run("evaluation failure", func(t *testing.T) {
		ev := &cannedEvaluator{err: errors.New("target closed")}
		_, err := Collect(ctx, ev, "main")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "target closed")
		assert.Contains(t, err.Error(), `"main"`)
	})
}

func TestDescribe(t *testing.T) {
	ctx := context.Background()

	ev := &cannedEvaluator{err: errors.New("boom")}
	assert.Equal(t, "diagnostics unavailable for main: failed to collect diagnostics for \"main\": boom",
		Describe(ctx, ev, "main"))

	ev = &cannedEvaluator{response: `{"error":"Element not found: aside"}`}
	assert.Equal(t, "Element not found: aside", Describe(ctx, ev, "aside"))
}

func FuzzFormat(f *testing.F) {
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		rec := Record{}
		if err := consumer.GenerateStruct(&rec); err != nil {
			return
		}

		out := Format(rec)
		if rec.Error != "" {
			if out != rec.Error {
				t.Fatalf("error record rendered as %q, want %q", out, rec.Error)
			}
			return
		}
		if !strings.HasPrefix(out, "Element: ") {
			t.Fatalf("report does not start with the element line: %q", out)
		}
		if !strings.Contains(out, "\n  bounding-rect: ") {
			t.Fatalf("report lacks the bounding rect line: %q", out)
		}
	})
}
