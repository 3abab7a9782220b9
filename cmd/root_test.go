// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/renewbot/internal/config"
)

// isolate keeps ambient configuration out of the command under test.
func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Setenv("PWD", dir)
	t.Cleanup(func() { _ = os.Chdir(wd) })
	for _, name := range []string{"USERS_JSON", "RENEWBOT_USERS_JSON", "TG_BOT_TOKEN", "TG_CHAT_ID", "DATABASE_URL", "RENEWBOT_DATABASE_URL"} {
		t.Setenv(name, "")
	}
}

// interceptRun replaces the run command's action and returns where the
// resolved configuration will be captured.
func interceptRun(t *testing.T, root *cobra.Command) **config.Config {
	t.Helper()
	var captured *config.Config
	runCmd, _, err := root.Find([]string{"run"})
	require.NoError(t, err)
	runCmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := getConfigFromContext(cmd.Context())
		captured = cfg
		return err
	}
	return &captured
}

func execute(root *cobra.Command, args ...string) (string, error) {
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_VersionFlag(t *testing.T) {
	isolate(t)
	out, err := execute(NewRootCommand(), "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestVersionCmd(t *testing.T) {
	isolate(t)
	out, err := execute(NewRootCommand(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "renewbot "+Version)
}

func TestRunCmd_FlagsOverrideConfig(t *testing.T) {
	isolate(t)
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(`
browser:
  headless: true
  remote_url: "ws://config:9222"
evidence:
  dir: from-config
timings:
  login_submit: 7s
`), 0o600))

	root := NewRootCommand()
	captured := interceptRun(t, root)

	_, err := execute(root, "--config", configFile, "run",
		"--headless=false", "--evidence-dir", "from-flag", "--users-file", "users.json")
	require.NoError(t, err)

	cfg := *captured
	require.NotNil(t, cfg)
	assert.False(t, cfg.Browser.Headless, "flag beats config file")
	assert.Equal(t, "ws://config:9222", cfg.Browser.RemoteURL, "unset flag keeps config value")
	assert.Equal(t, "from-flag", cfg.Evidence.Dir)
	assert.Equal(t, "users.json", cfg.Users.File)
	assert.Equal(t, "7s", cfg.Timings.LoginSubmit.String())
	assert.Equal(t, "https://auth.zampto.net/sign-in", cfg.Target.LoginURL, "defaults still apply")
}

func TestRunCmd_EnvironmentOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("RENEWBOT_TARGET_LISTING_URL", "https://dash.example/servers")
	t.Setenv("TG_CHAT_ID", "-100123")

	root := NewRootCommand()
	captured := interceptRun(t, root)
	_, err := execute(root, "run")
	require.NoError(t, err)

	cfg := *captured
	assert.Equal(t, "https://dash.example/servers", cfg.Target.ListingURL)
	assert.Equal(t, "-100123", cfg.Notify.Telegram.ChatID)
}

func TestRunCmd_MissingConfigFile(t *testing.T) {
	isolate(t)
	_, err := execute(NewRootCommand(), "--config", filepath.Join(t.TempDir(), "absent.yaml"), "run")
	assert.Error(t, err)
}

func TestRunCmd_InvalidConfig(t *testing.T) {
	isolate(t)
	t.Setenv("RENEWBOT_TARGET_LOGIN_URL", "not a url")
	_, err := execute(NewRootCommand(), "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target.login_url")
}

func TestRunCmd_NoCredentials(t *testing.T) {
	isolate(t)
	_, err := execute(NewRootCommand(), "run")
	assert.ErrorIs(t, err, config.ErrNoCredentials)
}

func TestRunCmd_RejectsArgs(t *testing.T) {
	isolate(t)
	root := NewRootCommand()
	interceptRun(t, root)
	_, err := execute(root, "run", "extra")
	assert.Error(t, err)
}
