package browser

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/renewbot/internal/config"
)

// launchFlag is one Chromium command line switch.
type launchFlag struct {
	name  string
	value interface{}
}

// launchFlags computes the switches layered on top of chromedp's defaults. The
// challenge widget is a cross-origin iframe; site isolation is turned off so it
// stays inside the page's own CDP target where its frame and execution
// contexts are reachable.
func launchFlags(cfg config.BrowserConfig, userAgent, proxyServer string) []launchFlag {
	width, height := cfg.ViewportSize()
	flags := []launchFlag{
		{"enable-automation", false},
		{"headless", cfg.Headless},
		{"ignore-certificate-errors", cfg.IgnoreTLSErrors},
		{"disable-blink-features", "AutomationControlled"},
		{"disable-site-isolation-trials", true},
		{"disable-features", "IsolateOrigins,site-per-process"},
		{"disable-extensions", true},
		{"window-size", fmt.Sprintf("%d,%d", width, height)},
	}
	if userAgent != "" {
		flags = append(flags, launchFlag{"user-agent", userAgent})
	}
	if proxyServer != "" {
		flags = append(flags, launchFlag{"proxy-server", proxyServer})
	}

	for _, arg := range cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			flags = append(flags, launchFlag{name, value})
		} else {
			flags = append(flags, launchFlag{name, true})
		}
	}

	if runtime.GOOS == "linux" {
		flags = append(flags,
			launchFlag{"no-sandbox", true},
			launchFlag{"disable-dev-shm-usage", true},
		)
	}
	return flags
}

// buildAllocatorOptions turns the launch flags into exec allocator options.
// Later flags override earlier ones with the same name.
func buildAllocatorOptions(cfg config.BrowserConfig, userAgent, proxyServer string) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for _, f := range launchFlags(cfg, userAgent, proxyServer) {
		opts = append(opts, chromedp.Flag(f.name, f.value))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// flagValue returns the effective value of a named flag.
func flagValue(flags []launchFlag, name string) (interface{}, bool) {
	var (
		value interface{}
		found bool
	)
	for _, f := range flags {
		if f.name == name {
			value, found = f.value, true
		}
	}
	return value, found
}

func describeViewport(cfg config.BrowserConfig) string {
	w, h := cfg.ViewportSize()
	return fmt.Sprintf("%dx%d", w, h)
}
