package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/renewbot/internal/config"
)

func TestLaunchFlags(t *testing.T) {
	cfg := config.NewDefaultConfig().Browser
	cfg.Headless = true
	cfg.Args = []string{"--lang=en-US", "mute-audio", "--"}

	flags := launchFlags(cfg, "test-agent", "http://127.0.0.1:8081")

	cases := map[string]interface{}{
		"enable-automation":             false,
		"headless":                      true,
		"disable-blink-features":        "AutomationControlled",
		"disable-site-isolation-trials": true,
		"disable-features":              "IsolateOrigins,site-per-process",
		"lang":                          "en-US",
		"mute-audio":                    true,
		"user-agent":                    "test-agent",
		"proxy-server":                  "http://127.0.0.1:8081",
		"window-size":                   "1280,720",
	}
	for name, want := range cases {
		got, ok := flagValue(flags, name)
		if assert.True(t, ok, name) {
			assert.Equal(t, want, got, name)
		}
	}
}

func TestLaunchFlags_NoProxy(t *testing.T) {
	cfg := config.NewDefaultConfig().Browser
	cfg.Viewport = map[string]int{"width": 1920, "height": 1080}
	flags := launchFlags(cfg, "", "")

	_, found := flagValue(flags, "proxy-server")
	assert.False(t, found)
	_, found = flagValue(flags, "user-agent")
	assert.False(t, found)
	size, _ := flagValue(flags, "window-size")
	assert.Equal(t, "1920,1080", size)
	assert.Equal(t, "1920x1080", describeViewport(cfg))
}

func TestLaunchFlags_ArgsOverrideDefaults(t *testing.T) {
	cfg := config.NewDefaultConfig().Browser
	cfg.Args = []string{"--disable-extensions=false"}
	v, ok := flagValue(launchFlags(cfg, "", ""), "disable-extensions")
	assert.True(t, ok)
	assert.Equal(t, "false", v)
}

func TestBuildAllocatorOptions(t *testing.T) {
	cfg := config.NewDefaultConfig().Browser
	base := buildAllocatorOptions(cfg, "", "")
	cfg.ExecPath = "/usr/bin/chromium"
	withPath := buildAllocatorOptions(cfg, "", "")
	assert.Len(t, withPath, len(base)+1)
}
