// File: internal/config/humanoid_config.go
// This file defines the HumanoidConfig struct, the tunable parameters of the
// pointer model used for clicks that must look like genuine input.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// HumanoidConfig controls press/release pacing.
type HumanoidConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// ClickHoldMin and ClickHoldMax bound the uniform dwell between press and release.
	ClickHoldMin time.Duration `mapstructure:"click_hold_min" yaml:"click_hold_min"`
	ClickHoldMax time.Duration `mapstructure:"click_hold_max" yaml:"click_hold_max"`
	// ScrollIntoView centers the element before a role click.
	ScrollIntoView bool `mapstructure:"scroll_into_view" yaml:"scroll_into_view"`
}

// Validate checks the dwell range.
func (h *HumanoidConfig) Validate() error {
	if h.ClickHoldMin < 0 {
		return fmt.Errorf("click_hold_min must not be negative")
	}
	if h.ClickHoldMax < h.ClickHoldMin {
		return fmt.Errorf("click_hold_max (%s) must be >= click_hold_min (%s)", h.ClickHoldMax, h.ClickHoldMin)
	}
	return nil
}

func setHumanoidDefaults(v *viper.Viper) {
	v.SetDefault("browser.humanoid.enabled", true)
	v.SetDefault("browser.humanoid.click_hold_min", "50ms")
	v.SetDefault("browser.humanoid.click_hold_max", "150ms")
	v.SetDefault("browser.humanoid.scroll_into_view", true)
}
