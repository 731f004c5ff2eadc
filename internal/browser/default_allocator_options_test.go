// internal/browser/default_allocator_options_test.go
package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/pilot-cli/internal/config"
)

func TestAllocatorFlags(t *testing.T) {
	t.Run("Headless", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{Headless: true})
		assert.Equal(t, true, flags["headless"])
		assert.Equal(t, true, flags["hide-scrollbars"])
		assert.Equal(t, true, flags["no-sandbox"])
	})

	t.Run("HeadlessDisabled", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{Headless: false})
		assert.Equal(t, false, flags["headless"])
		assert.NotContains(t, flags, "hide-scrollbars")
	})

	t.Run("IgnoreTLSErrors", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{IgnoreTLSErrors: true})
		assert.Equal(t, true, flags["ignore-certificate-errors"])
		assert.Equal(t, true, flags["allow-insecure-localhost"])

		flags = allocatorFlags(config.BrowserConfig{})
		assert.NotContains(t, flags, "ignore-certificate-errors")
	})

	t.Run("WithCustomArgs", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{
			Args: []string{"--custom-arg1", "custom-arg2", "--lang=de-DE", "  ", "--no-sandbox=false"},
		})
		assert.Equal(t, true, flags["custom-arg1"])
		assert.Equal(t, true, flags["custom-arg2"])
		assert.Equal(t, "de-DE", flags["lang"])
		assert.Equal(t, "false", flags["no-sandbox"], "custom args override the built in flags")
		assert.NotContains(t, flags, "")
	})

	t.Run("WithViewport", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{Viewport: map[string]int{"width": 1920, "height": 1080}})
		assert.Equal(t, "1920,1080", flags["window-size"])

		flags = allocatorFlags(config.BrowserConfig{Viewport: map[string]int{"width": 1920}})
		assert.NotContains(t, flags, "window-size")
	})

	t.Run("WithUserAgent", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{UserAgent: "pilot/1.0"})
		assert.Equal(t, "pilot/1.0", flags["user-agent"])
	})
}

func TestDefaultAllocatorOptions(t *testing.T) {
	cfg := config.BrowserConfig{Headless: true, Args: []string{"--custom-arg1"}}
	base := DefaultAllocatorOptions(cfg)
	assert.Len(t, base, 3+len(allocatorFlags(cfg)))

	cfg.ExecPath = "/usr/bin/chromium"
	assert.Len(t, DefaultAllocatorOptions(cfg), len(base)+1)
}
