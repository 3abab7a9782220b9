package stealth

import (
	"context"
	_ "embed"
	"fmt"
	"math/rand"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/renewbot/internal/config"
)

//go:embed evasions.js
var evasionsTemplate string

//go:embed challenge_hook.js
var challengeHookTemplate string

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Persona defines the browser characteristics to emulate.
type Persona struct {
	UserAgent     string   `json:"userAgent"`
	Platform      string   `json:"platform"`
	Languages     []string `json:"languages"`
	Timezone      string   `json:"timezone"`
	Locale        string   `json:"locale"`
	WebGLVendor   string   `json:"webglVendor"`
	WebGLRenderer string   `json:"webglRenderer"`
}

// DefaultPersona provides a realistic default browser profile.
var DefaultPersona = Persona{
	UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	Platform:      "Win32",
	Languages:     []string{"en-US", "en"},
	Timezone:      "America/Los_Angeles",
	Locale:        "en-US",
	WebGLVendor:   "Google Inc. (Intel)",
	WebGLRenderer: "ANGLE (Intel, Intel(R) UHD Graphics 630 Direct3D11 vs_5_0 ps_5_0, D3D11)",
}

// HookOptions are baked into the challenge hook. The screen coordinates stay
// fixed for the lifetime of a run.
type HookOptions struct {
	ScreenX int `json:"screenX"`
	ScreenY int `json:"screenY"`
}

// NewHookOptions draws the per-run pointer screen position from the configured ranges.
func NewHookOptions(cfg config.ChallengeConfig, rng *rand.Rand) HookOptions {
	return HookOptions{
		ScreenX: between(rng, cfg.ScreenXMin, cfg.ScreenXMax),
		ScreenY: between(rng, cfg.ScreenYMin, cfg.ScreenYMax),
	}
}

func between(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo+1)
}

// ChallengeHookScript renders the frame hook with its options inlined.
func ChallengeHookScript(opts HookOptions) (string, error) {
	return render(challengeHookTemplate, "__HOOK_OPTIONS__", opts)
}

// EvasionsScript renders the navigator evasions for a persona.
func EvasionsScript(p Persona) (string, error) {
	return render(evasionsTemplate, "__PERSONA__", p)
}

func render(template, placeholder string, v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode script options: %w", err)
	}
	return strings.Replace(template, placeholder, string(b), 1), nil
}

// Apply builds the CDP actions that make the tab look like an ordinary browser
// and installs the challenge hook on every new document, including subframes.
func Apply(p Persona, hook HookOptions, logger *zap.Logger) (chromedp.Tasks, error) {
	evasions, err := EvasionsScript(p)
	if err != nil {
		return nil, err
	}
	hookScript, err := ChallengeHookScript(hook)
	if err != nil {
		return nil, err
	}

	logger.Debug("Applying browser stealth persona.",
		zap.String("userAgent", p.UserAgent),
		zap.String("platform", p.Platform),
		zap.Int("screenX", hook.ScreenX),
		zap.Int("screenY", hook.ScreenY),
	)

	tasks := chromedp.Tasks{}
	if p.UserAgent != "" {
		tasks = append(tasks, emulation.SetUserAgentOverride(p.UserAgent).WithPlatform(p.Platform))
	}
	tasks = append(tasks,
		addScript("evasions", evasions, logger),
		addScript("challenge hook", hookScript, logger),
	)
	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}
	if p.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(p.Locale))
	}
	if len(p.Languages) > 0 {
		tasks = append(tasks, network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": acceptLanguage(p.Languages),
		}))
	}
	return tasks, nil
}

func addScript(name, source string, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		id, err := page.AddScriptToEvaluateOnNewDocument(source).Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to inject %s script: %w", name, err)
		}
		logger.Debug("Injected persistent script.", zap.String("script", name), zap.String("scriptID", string(id)))
		return nil
	})
}

// acceptLanguage formats languages with descending q-values, e.g. "en-US,en;q=0.9".
func acceptLanguage(langs []string) string {
	parts := make([]string, 0, len(langs))
	for i, l := range langs {
		if i == 0 {
			parts = append(parts, l)
			continue
		}
		q := 1.0 - 0.1*float64(i)
		if q < 0.1 {
			q = 0.1
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", l, q))
	}
	return strings.Join(parts, ",")
}
