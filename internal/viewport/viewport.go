// Package viewport holds the named viewport breakpoints and the layout container
// selectors that every assertion family iterates over. Registries are built once
// at startup and are read-only afterwards.
package viewport

import (
	"fmt"
)

// Viewport is a named width x height pair in CSS pixels.
type Viewport struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// String renders the viewport the way failure messages refer to it.
func (v Viewport) String() string {
	return fmt.Sprintf("%s (%dx%d)", v.Name, v.Width, v.Height)
}

// Standard breakpoints.
var (
	Mobile  = Viewport{Name: "mobile", Width: 375, Height: 812}
	Tablet  = Viewport{Name: "tablet", Width: 768, Height: 1024}
	Desktop = Viewport{Name: "desktop", Width: 1440, Height: 900}

	// Reflow is the WCAG 1.4.10 reference size: 320 CSS px wide, 256 tall.
	Reflow = Viewport{Name: "reflow", Width: 320, Height: 256}
)

// DefaultSelectors are the top-level layout containers audited by default.
var DefaultSelectors = []string{"header", "main", "footer", ".grid-container"}

// Registry is an immutable, ordered table of viewports plus the layout selector set.
type Registry struct {
	viewports []Viewport
	byName    map[string]int
	selectors []string
}

// Default returns the registry of mobile, tablet and desktop, in that order.
func Default() *Registry {
	reg, err := New([]Viewport{Mobile, Tablet, Desktop}, DefaultSelectors)
	if err != nil {
		panic(err)
	}
	return reg
}

// New builds a registry. Enumeration order is the order of vs.
func New(vs []Viewport, selectors []string) (*Registry, error) {
	if len(vs) == 0 {
		return nil, fmt.Errorf("registry needs at least one viewport")
	}
	reg := &Registry{
		viewports: make([]Viewport, 0, len(vs)),
		byName:    make(map[string]int, len(vs)),
		selectors: append([]string(nil), selectors...),
	}
	for _, v := range vs {
		if v.Name == "" {
			return nil, fmt.Errorf("viewport name must not be empty")
		}
		if _, dup := reg.byName[v.Name]; dup {
			return nil, fmt.Errorf("duplicate viewport %q", v.Name)
		}
		if v.Width <= 0 || v.Height <= 0 {
			return nil, fmt.Errorf("viewport %q has non-positive dimensions %dx%d", v.Name, v.Width, v.Height)
		}
		reg.byName[v.Name] = len(reg.viewports)
		reg.viewports = append(reg.viewports, v)
	}
	return reg, nil
}

// All returns a copy of the viewports in enumeration order.
func (r *Registry) All() []Viewport {
	return append([]Viewport(nil), r.viewports...)
}

// Names returns the viewport names in enumeration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.viewports))
	for i, v := range r.viewports {
		names[i] = v.Name
	}
	return names
}

// Lookup finds a viewport by name.
func (r *Registry) Lookup(name string) (Viewport, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Viewport{}, false
	}
	return r.viewports[i], true
}

// Selectors returns a copy of the layout container selectors.
func (r *Registry) Selectors() []string {
	return append([]string(nil), r.selectors...)
}

// Filter returns a registry restricted to the named viewports, keeping the
// original enumeration order. An empty names list returns r itself.
func (r *Registry) Filter(names []string) (*Registry, error) {
	if len(names) == 0 {
		return r, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := r.byName[n]; !ok {
			return nil, fmt.Errorf("unknown viewport %q (known: %v)", n, r.Names())
		}
		want[n] = true
	}
	var kept []Viewport
	for _, v := range r.viewports {
		if want[v.Name] {
			kept = append(kept, v)
		}
	}
	return New(kept, r.selectors)
}

// Preferred returns the registry entry with the given name, or fallback when the
// registry does not define it. Single-viewport families use it so a configured
// "mobile" overrides the built-in dimensions.
func (r *Registry) Preferred(name string, fallback Viewport) Viewport {
	if v, ok := r.Lookup(name); ok {
		return v
	}
	return fallback
}
