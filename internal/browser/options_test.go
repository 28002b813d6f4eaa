// internal/browser/options_test.go
package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/layoutprobe/internal/config"
)

func flagValue(flags []allocatorFlag, name string) (interface{}, bool) {
	for _, f := range flags {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

func TestAllocatorFlags(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{Headless: true})
		v, ok := flagValue(flags, "no-sandbox")
		assert.True(t, ok)
		assert.Equal(t, true, v)
		_, ok = flagValue(flags, "headless")
		assert.False(t, ok, "headless comes from chromedp's defaults")
		_, ok = flagValue(flags, "ignore-certificate-errors")
		assert.False(t, ok)
	})

	t.Run("Headful", func(t *testing.T) {
		v, ok := flagValue(allocatorFlags(config.BrowserConfig{Headless: false}), "headless")
		assert.True(t, ok)
		assert.Equal(t, false, v)
	})

	t.Run("IgnoreTLSErrors", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{Headless: true, IgnoreTLSErrors: true})
		_, ok := flagValue(flags, "ignore-certificate-errors")
		assert.True(t, ok)
		_, ok = flagValue(flags, "allow-insecure-localhost")
		assert.True(t, ok)
	})

	t.Run("CustomArgs", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{
			Headless: true,
			Args:     []string{"--disable-extensions", "lang=de-DE", "--window-size=1440,900", "  ", "--"},
		})
		v, ok := flagValue(flags, "disable-extensions")
		assert.True(t, ok)
		assert.Equal(t, true, v)
		v, ok = flagValue(flags, "lang")
		assert.True(t, ok)
		assert.Equal(t, "de-DE", v)
		v, ok = flagValue(flags, "window-size")
		assert.True(t, ok)
		assert.Equal(t, "1440,900", v)
		for _, f := range flags {
			assert.NotEmpty(t, f.Name)
		}
	})
}

func TestAllocatorOptions(t *testing.T) {
	base := AllocatorOptions(config.BrowserConfig{Headless: true})
	withPath := AllocatorOptions(config.BrowserConfig{Headless: true, ExecPath: "/usr/bin/chromium"})
	assert.Len(t, withPath, len(base)+1)
}
