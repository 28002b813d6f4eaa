package checks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/xkilldash9x/layoutprobe/internal/probes"
	"github.com/xkilldash9x/layoutprobe/internal/viewport"
)

// AxeViolation is one axe-core rule failure.
type AxeViolation struct {
	ID          string `json:"id"`
	Impact      string `json:"impact"`
	Description string `json:"description"`
	Nodes       int    `json:"nodes"`
}

func (v *AxeViolation) Summary() string {
	return fmt.Sprintf("[%s] %s: %s (%d %s)", v.Impact, v.ID, v.Description, v.Nodes, plural(v.Nodes, "node", "nodes"))
}

func (v *AxeViolation) DiagnosticSelector() string { return "" }

type accessibilityCheck struct {
	opts Options
}

func (c *accessibilityCheck) Name() string { return "accessibility" }
func (c *accessibilityCheck) Description() string {
	return "axe-core reports no WCAG 2.1 A/AA violations."
}
func (c *accessibilityCheck) Viewports(reg *viewport.Registry) []viewport.Viewport { return reg.All() }

func (c *accessibilityCheck) Run(ctx context.Context, p Page, vp viewport.Viewport) (*Outcome, error) {
	if strings.TrimSpace(c.opts.AxeScript) == "" {
		return nil, errors.New("axe-core source is not loaded")
	}

	var loaded bool
	if err := p.Evaluate(ctx, probes.AxeLoaded, &loaded); err != nil {
		return nil, fmt.Errorf("failed to detect axe-core: %w", err)
	}
	if !loaded {
		if err := p.InjectScript(ctx, c.opts.AxeScript); err != nil {
			return nil, fmt.Errorf("failed to inject axe-core: %w", err)
		}
	}

	tags := c.opts.AxeTags
	if tags == nil {
		tags = []string{}
	}
	var found []*AxeViolation
	if err := evaluate(ctx, p, &found, probes.AxeRun, tags); err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return &Outcome{}, nil
	}

	// Stable order so repeated runs against the same document agree.
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].ID != found[j].ID {
			return found[i].ID < found[j].ID
		}
		return found[i].Impact < found[j].Impact
	})
	msg := fmt.Sprintf("Found %d accessibility %s at %s:%s",
		len(found), plural(len(found), "violation", "violations"), vp, listing(found, len(found)))
	return &Outcome{Violations: toViolations(found), Message: msg}, nil
}

// LoadAxeSource reads axe.min.js from a local path or an http(s) URL.
func LoadAxeSource(ctx context.Context, client *http.Client, source string) (string, error) {
	if source == "" {
		return "", errors.New("no axe-core source configured")
	}
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		b, err := os.ReadFile(source)
		if err != nil {
			return "", fmt.Errorf("failed to read axe-core from %s: %w", source, err)
		}
		return string(b), nil
	}

	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create axe-core request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch axe-core from %s: %w", source, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch axe-core from %s: unexpected status %s", source, resp.Status)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read axe-core response: %w", err)
	}
	return string(b), nil
}
