// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. It is built once at
// process start and handed to constructors; nothing in the core reads the
// environment directly.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Network    NetworkConfig    `mapstructure:"network" yaml:"network"`
	Target     TargetConfig     `mapstructure:"target" yaml:"target"`
	Timings    Timings          `mapstructure:"timings" yaml:"timings"`
	Challenge  ChallengeConfig  `mapstructure:"challenge" yaml:"challenge"`
	Classifier ClassifierConfig `mapstructure:"classifier" yaml:"classifier"`
	Notify     NotifyConfig     `mapstructure:"notify" yaml:"notify"`
	Evidence   EvidenceConfig   `mapstructure:"evidence" yaml:"evidence"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Users      UsersConfig      `mapstructure:"users" yaml:"users"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the single Chromium tab used by a run.
type BrowserConfig struct {
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	ExecPath        string         `mapstructure:"exec_path" yaml:"exec_path"`
	RemoteURL       string         `mapstructure:"remote_url" yaml:"remote_url"`
	ConnectAttempts int            `mapstructure:"connect_attempts" yaml:"connect_attempts"`
	ConnectBackoff  time.Duration  `mapstructure:"connect_backoff" yaml:"connect_backoff"`
	ActionTimeout   time.Duration  `mapstructure:"action_timeout" yaml:"action_timeout"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Debug           bool           `mapstructure:"debug" yaml:"debug"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        map[string]int `mapstructure:"viewport" yaml:"viewport"`
	UserAgent       string         `mapstructure:"user_agent" yaml:"user_agent"`
	Humanoid        HumanoidConfig `mapstructure:"humanoid" yaml:"humanoid"`
}

// ViewportSize returns the configured viewport, falling back to 1280x720.
func (b BrowserConfig) ViewportSize() (int, int) {
	w, h := b.Viewport["width"], b.Viewport["height"]
	if w <= 0 {
		w = 1280
	}
	if h <= 0 {
		h = 720
	}
	return w, h
}

// ProxyConfig defines the upstream proxy the browser egresses through. Chrome
// cannot authenticate to a proxy from command line flags, so credentials in URL
// are handled by a local forwarder.
type ProxyConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
	// Listen is the local forwarder address, e.g. "127.0.0.1:0".
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// NetworkConfig tunes the network behavior of the application.
type NetworkConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Proxy   ProxyConfig   `mapstructure:"proxy" yaml:"proxy"`
}

// TargetConfig names the dashboard endpoints.
type TargetConfig struct {
	LoginURL   string `mapstructure:"login_url" yaml:"login_url"`
	ListingURL string `mapstructure:"listing_url" yaml:"listing_url"`
}

// Timings holds every fixed wait of the renewal flow. Each one stands in for a
// readiness signal the dashboard does not expose.
type Timings struct {
	LoginPageSettle   time.Duration `mapstructure:"login_page_settle" yaml:"login_page_settle"`
	FieldSettle       time.Duration `mapstructure:"field_settle" yaml:"field_settle"`
	IdentifierSubmit  time.Duration `mapstructure:"identifier_submit" yaml:"identifier_submit"`
	LoginSubmit       time.Duration `mapstructure:"login_submit" yaml:"login_submit"`
	OverviewSettle    time.Duration `mapstructure:"overview_settle" yaml:"overview_settle"`
	ManageSettle      time.Duration `mapstructure:"manage_settle" yaml:"manage_settle"`
	BackSettle        time.Duration `mapstructure:"back_settle" yaml:"back_settle"`
	RenewModalSettle  time.Duration `mapstructure:"renew_modal_settle" yaml:"renew_modal_settle"`
	ChallengeLead     time.Duration `mapstructure:"challenge_lead" yaml:"challenge_lead"`
	VerifySettle      time.Duration `mapstructure:"verify_settle" yaml:"verify_settle"`
	InfoSettle        time.Duration `mapstructure:"info_settle" yaml:"info_settle"`
	ModalCloseSettle  time.Duration `mapstructure:"modal_close_settle" yaml:"modal_close_settle"`
	ListingSettle     time.Duration `mapstructure:"listing_settle" yaml:"listing_settle"`
	FieldVisible      time.Duration `mapstructure:"field_visible" yaml:"field_visible"`
	RenewVisible      time.Duration `mapstructure:"renew_visible" yaml:"renew_visible"`
	InfoBeforeTimeout time.Duration `mapstructure:"info_before_timeout" yaml:"info_before_timeout"`
	InfoAfterTimeout  time.Duration `mapstructure:"info_after_timeout" yaml:"info_after_timeout"`
	ProbeTimeout      time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
}

// VerifyMode selects how a solved challenge is recognized.
type VerifyMode string

const (
	VerifyCheckbox    VerifyMode = "checkbox"
	VerifySuccessText VerifyMode = "success_text"
)

// ChallengeConfig controls the challenge probe-and-solve routine.
type ChallengeConfig struct {
	VendorMarkers []string      `mapstructure:"vendor_markers" yaml:"vendor_markers"`
	Settle        time.Duration `mapstructure:"settle" yaml:"settle"`
	PollInterval  time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	PollAttempts  int           `mapstructure:"poll_attempts" yaml:"poll_attempts"`
	VerifyMode    VerifyMode    `mapstructure:"verify_mode" yaml:"verify_mode"`
	// Pointer events inside challenge frames report a fixed screen position
	// drawn once per run from these ranges.
	ScreenXMin int `mapstructure:"screen_x_min" yaml:"screen_x_min"`
	ScreenXMax int `mapstructure:"screen_x_max" yaml:"screen_x_max"`
	ScreenYMin int `mapstructure:"screen_y_min" yaml:"screen_y_min"`
	ScreenYMax int `mapstructure:"screen_y_max" yaml:"screen_y_max"`
}

// ClassifierConfig holds the heuristics used to judge the post-login page.
type ClassifierConfig struct {
	BlockList         []string `mapstructure:"block_list" yaml:"block_list"`
	LoginRouteMarkers []string `mapstructure:"login_route_markers" yaml:"login_route_markers"`
	ErrorSelectors    []string `mapstructure:"error_selectors" yaml:"error_selectors"`
	SuccessIndicators []string `mapstructure:"success_indicators" yaml:"success_indicators"`
	AccountSelector   string   `mapstructure:"account_selector" yaml:"account_selector"`
}

// TelegramConfig configures the Telegram notification sink.
type TelegramConfig struct {
	Token    string        `mapstructure:"token" yaml:"-"`
	ChatID   string        `mapstructure:"chat_id" yaml:"chat_id"`
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// RatePerSecond bounds sends to one chat.
	RatePerSecond float64 `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	Caption       string  `mapstructure:"caption" yaml:"caption"`
}

// Enabled reports whether both the token and the recipient are set.
func (t TelegramConfig) Enabled() bool {
	return t.Token != "" && t.ChatID != ""
}

// NotifyConfig groups the outbound notification channels.
type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
}

// EvidenceConfig controls screenshot capture.
type EvidenceConfig struct {
	Dir     string `mapstructure:"dir" yaml:"dir"`
	Quality int    `mapstructure:"quality" yaml:"quality"`
}

// DatabaseConfig holds the outcome journal connection details. An empty URL
// disables the journal.
type DatabaseConfig struct {
	URL   string `mapstructure:"url" yaml:"url"`
	Table string `mapstructure:"table" yaml:"table"`
}

// UsersConfig points at the credential source. JSON takes precedence over File.
type UsersConfig struct {
	JSON string `mapstructure:"json" yaml:"-"`
	File string `mapstructure:"file" yaml:"file"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "renewbot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.connect_attempts", 5)
	v.SetDefault("browser.connect_backoff", "2s")
	v.SetDefault("browser.action_timeout", "60s")
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.args", []string{"--no-sandbox", "--disable-setuid-sandbox"})
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 720})
	setHumanoidDefaults(v)

	// -- Network --
	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.proxy.enabled", false)
	v.SetDefault("network.proxy.listen", "127.0.0.1:0")

	// -- Target --
	v.SetDefault("target.login_url", "https://auth.zampto.net/sign-in")
	v.SetDefault("target.listing_url", "https://dash.zampto.net/servers")

	// -- Timings --
	v.SetDefault("timings.login_page_settle", "2s")
	v.SetDefault("timings.field_settle", "500ms")
	v.SetDefault("timings.identifier_submit", "3s")
	v.SetDefault("timings.login_submit", "4s")
	v.SetDefault("timings.overview_settle", "3s")
	v.SetDefault("timings.manage_settle", "3s")
	v.SetDefault("timings.back_settle", "2s")
	v.SetDefault("timings.renew_modal_settle", "2s")
	v.SetDefault("timings.challenge_lead", "2s")
	v.SetDefault("timings.verify_settle", "5s")
	v.SetDefault("timings.info_settle", "3s")
	v.SetDefault("timings.modal_close_settle", "1s")
	v.SetDefault("timings.listing_settle", "3s")
	v.SetDefault("timings.field_visible", "10s")
	v.SetDefault("timings.renew_visible", "5s")
	v.SetDefault("timings.info_before_timeout", "3s")
	v.SetDefault("timings.info_after_timeout", "5s")
	v.SetDefault("timings.probe_timeout", "1s")

	// -- Challenge --
	v.SetDefault("challenge.vendor_markers", []string{"turnstile", "cloudflare", "challenges"})
	v.SetDefault("challenge.settle", "3s")
	v.SetDefault("challenge.poll_interval", "500ms")
	v.SetDefault("challenge.poll_attempts", 10)
	v.SetDefault("challenge.verify_mode", string(VerifyCheckbox))
	v.SetDefault("challenge.screen_x_min", 800)
	v.SetDefault("challenge.screen_x_max", 1200)
	v.SetDefault("challenge.screen_y_min", 400)
	v.SetDefault("challenge.screen_y_max", 600)

	// -- Classifier --
	v.SetDefault("classifier.block_list", []string{"access blocked", "vpn", "proxy detected", "blocked", "access denied"})
	v.SetDefault("classifier.login_route_markers", []string{"sign-in", "login", "auth"})
	v.SetDefault("classifier.error_selectors", []string{".error", ".alert", `[role="alert"]`, ".text-danger", ".text-red"})
	v.SetDefault("classifier.success_indicators", []string{"Servers Overview", "Dashboard", "Manage Server", "Create Server", "homepage", "dash.zampto"})
	v.SetDefault("classifier.account_selector", `[class*="user"], [class*="account"], [class*="profile"]`)

	// -- Notify --
	v.SetDefault("notify.telegram.endpoint", "https://api.telegram.org/bot%s/%s")
	v.SetDefault("notify.telegram.timeout", "30s")
	v.SetDefault("notify.telegram.rate_per_second", 1.0)
	v.SetDefault("notify.telegram.caption", "Debug Screenshot")

	// -- Evidence --
	v.SetDefault("evidence.dir", "screenshots")
	v.SetDefault("evidence.quality", 100)

	// -- Database --
	v.SetDefault("database.url", "")
	v.SetDefault("database.table", "renewal_outcomes")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Legacy environment names, kept so existing deployments keep working.
	_ = v.BindEnv("users.json", "RENEWBOT_USERS_JSON", "USERS_JSON")
	_ = v.BindEnv("notify.telegram.token", "RENEWBOT_NOTIFY_TELEGRAM_TOKEN", "TG_BOT_TOKEN")
	_ = v.BindEnv("notify.telegram.chat_id", "RENEWBOT_NOTIFY_TELEGRAM_CHAT_ID", "TG_CHAT_ID")
	_ = v.BindEnv("database.url", "RENEWBOT_DATABASE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := validateURL("target.login_url", c.Target.LoginURL); err != nil {
		return err
	}
	if err := validateURL("target.listing_url", c.Target.ListingURL); err != nil {
		return err
	}
	if c.Browser.ActionTimeout <= 0 {
		return fmt.Errorf("browser.action_timeout must be a positive duration")
	}
	if c.Browser.RemoteURL != "" && c.Browser.ConnectAttempts <= 0 {
		return fmt.Errorf("browser.connect_attempts must be a positive integer when browser.remote_url is set")
	}
	if err := c.Browser.Humanoid.Validate(); err != nil {
		return fmt.Errorf("browser.humanoid configuration invalid: %w", err)
	}
	if err := c.Challenge.Validate(); err != nil {
		return fmt.Errorf("challenge configuration invalid: %w", err)
	}
	if err := c.Timings.Validate(); err != nil {
		return fmt.Errorf("timings configuration invalid: %w", err)
	}
	if c.Network.Proxy.Enabled {
		if err := validateURL("network.proxy.url", c.Network.Proxy.URL); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the ChallengeConfig settings.
func (c *ChallengeConfig) Validate() error {
	if len(c.VendorMarkers) == 0 {
		return fmt.Errorf("vendor_markers must not be empty")
	}
	if c.PollAttempts <= 0 {
		return fmt.Errorf("poll_attempts must be greater than 0")
	}
	if c.Settle < 0 || c.PollInterval < 0 {
		return fmt.Errorf("settle and poll_interval must not be negative")
	}
	switch c.VerifyMode {
	case VerifyCheckbox, VerifySuccessText:
	default:
		return fmt.Errorf("verify_mode %q is not one of %q, %q", c.VerifyMode, VerifyCheckbox, VerifySuccessText)
	}
	if c.ScreenXMin > c.ScreenXMax || c.ScreenYMin > c.ScreenYMax {
		return fmt.Errorf("screen coordinate ranges are inverted")
	}
	return nil
}

// Validate rejects negative waits. Zero is allowed so tests and fast replays can
// collapse the flow's pacing.
func (t *Timings) Validate() error {
	named := map[string]time.Duration{
		"login_page_settle":   t.LoginPageSettle,
		"field_settle":        t.FieldSettle,
		"identifier_submit":   t.IdentifierSubmit,
		"login_submit":        t.LoginSubmit,
		"overview_settle":     t.OverviewSettle,
		"manage_settle":       t.ManageSettle,
		"back_settle":         t.BackSettle,
		"renew_modal_settle":  t.RenewModalSettle,
		"challenge_lead":      t.ChallengeLead,
		"verify_settle":       t.VerifySettle,
		"info_settle":         t.InfoSettle,
		"modal_close_settle":  t.ModalCloseSettle,
		"listing_settle":      t.ListingSettle,
		"field_visible":       t.FieldVisible,
		"renew_visible":       t.RenewVisible,
		"info_before_timeout": t.InfoBeforeTimeout,
		"info_after_timeout":  t.InfoAfterTimeout,
		"probe_timeout":       t.ProbeTimeout,
	}
	for name, d := range named {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", key, raw)
	}
	return nil
}
