// internal/browser/options.go
package browser

import (
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/layoutprobe/internal/config"
)

// allocatorFlag is one Chrome command line switch, without leading dashes.
type allocatorFlag struct {
	Name  string
	Value interface{}
}

// allocatorFlags translates the browser configuration into Chrome switches
// applied on top of chromedp's defaults.
func allocatorFlags(cfg config.BrowserConfig) []allocatorFlag {
	flags := []allocatorFlag{
		// Hardened hosts and containers refuse the sandbox and a small /dev/shm.
		{Name: "no-sandbox", Value: true},
		{Name: "disable-dev-shm-usage", Value: true},
		// Deterministic rendering for screenshot comparison.
		{Name: "hide-scrollbars", Value: true},
		{Name: "force-color-profile", Value: "srgb"},
		{Name: "font-render-hinting", Value: "none"},
	}
	if !cfg.Headless {
		flags = append(flags, allocatorFlag{Name: "headless", Value: false})
	}
	if cfg.IgnoreTLSErrors {
		flags = append(flags,
			allocatorFlag{Name: "ignore-certificate-errors", Value: true},
			allocatorFlag{Name: "allow-insecure-localhost", Value: true},
		)
	}

	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		key, value, found := strings.Cut(arg, "=")
		if found {
			flags = append(flags, allocatorFlag{Name: key, Value: value})
		} else {
			flags = append(flags, allocatorFlag{Name: key, Value: true})
		}
	}
	return flags
}

// AllocatorOptions returns the chromedp exec allocator options for cfg.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for _, f := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(f.Name, f.Value))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}
