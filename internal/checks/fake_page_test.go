package checks

import (
	"context"
	"fmt"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/layoutprobe/internal/probes"
	"github.com/xkilldash9x/layoutprobe/internal/viewport"
)

// fakePage answers probe evaluations with canned JSON, keyed by probe.
type fakePage struct {
	responses map[probes.Script]string
	// exact holds answers for expressions that are not wrapped probes.
	exact   map[string]string
	evalErr error

	visible map[string]bool
	shots   map[string][]byte

	viewport  viewport.Viewport
	navigated []string
	injected  []string
	probed    []probes.Script
	navErr    error
}

func newFakePage() *fakePage {
	return &fakePage{
		responses: map[probes.Script]string{},
		exact:     map[string]string{},
		visible:   map[string]bool{},
		shots:     map[string][]byte{},
	}
}

func (f *fakePage) Evaluate(_ context.Context, expr string, res any) error {
	if f.evalErr != nil {
		return f.evalErr
	}
	if out, ok := f.exact[expr]; ok {
		return json.Unmarshal([]byte(out), res)
	}
	for script, out := range f.responses {
		if strings.Contains(expr, strings.TrimSpace(string(script))) {
			f.probed = append(f.probed, script)
			return json.Unmarshal([]byte(out), res)
		}
	}
	return fmt.Errorf("unscripted expression: %.60s", expr)
}

func (f *fakePage) SetViewport(_ context.Context, vp viewport.Viewport) error {
	f.viewport = vp
	return nil
}

func (f *fakePage) Navigate(_ context.Context, url string) error {
	if f.navErr != nil {
		return f.navErr
	}
	f.navigated = append(f.navigated, url)
	return nil
}

func (f *fakePage) Screenshot(_ context.Context, selector string) ([]byte, error) {
	shot, ok := f.shots[selector]
	if !ok {
		return nil, fmt.Errorf("no screenshot scripted for %s", selector)
	}
	return shot, nil
}

func (f *fakePage) Visible(_ context.Context, selector string) (bool, error) {
	return f.visible[selector], nil
}

func (f *fakePage) InjectScript(_ context.Context, src string) error {
	f.injected = append(f.injected, src)
	return nil
}

func (f *fakePage) count(s probes.Script) int {
	n := 0
	for _, p := range f.probed {
		if p == s {
			n++
		}
	}
	return n
}

const divDiagnostics = `{"selector":"x","tagName":"div","width":"500px","maxWidth":"none","flexBasis":"auto",
	"padding":"0px","margin":"0px","boxSizing":"content-box","display":"block","overflow":"visible",
	"boundingRect":{"x":0,"y":0,"width":500,"height":10,"top":0,"right":500,"bottom":10,"left":0}}`

func findCheck(name string, opts Options) Check {
	for _, c := range All(opts) {
		if c.Name() == name {
			return c
		}
	}
	panic("no check named " + name)
}
