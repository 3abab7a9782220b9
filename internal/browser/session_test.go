package browser_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/renewbot/api/schemas"
	"github.com/xkilldash9x/renewbot/internal/browser"
	"github.com/xkilldash9x/renewbot/internal/browser/stealth"
	"github.com/xkilldash9x/renewbot/internal/config"
)

const fixturePage = `<!doctype html>
<html><body>
<div class="card">
  <div><h3>Alpha Node</h3>
    <div><div><button onclick="document.title='alpha'">Manage Server</button></div></div>
  </div>
</div>
<div class="card">
  <div><h3>Beta Node</h3>
    <div><div><button onclick="document.title='beta'">Manage Server</button></div></div>
  </div>
</div>
<button style="display:none">Manage Server</button>
<input type="email" id="email">
<div id="info">Server last renewed: 2024-05-01 Expiry date: 2024-06-01</div>
<iframe src="/frame" width="300" height="65"></iframe>
</body></html>`

const framePage = `<!doctype html><html><body><script>window.probe = {ready: true};</script>frame</body></html>`

// findChrome skips the test when no Chromium binary is on PATH.
func findChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser integration test in short mode")
	}
	for _, name := range []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no Chromium executable found")
	return ""
}

func setupSession(t *testing.T) (*browser.Session, string) {
	t.Helper()
	execPath := findChrome(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/frame", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(framePage))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(fixturePage))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := config.NewDefaultConfig()
	cfg.Browser.Headless = true
	cfg.Browser.ExecPath = execPath
	cfg.Browser.ActionTimeout = 20 * time.Second
	cfg.Browser.Humanoid.ClickHoldMin = time.Millisecond
	cfg.Browser.Humanoid.ClickHoldMax = 2 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	m, err := browser.NewManager(ctx, cfg, "", stealth.HookOptions{ScreenX: 900, ScreenY: 500}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	s, err := m.NewSession(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Navigate(ctx, srv.URL))
	return s, srv.URL
}

func TestSession_PageOperations(t *testing.T) {
	s, base := setupSession(t)
	ctx := context.Background()
	manage := schemas.Role{Kind: "button", Name: "Manage Server"}

	url, err := s.URL(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, base))

	n, err := s.CountRole(ctx, manage)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	label, ok, err := s.RoleLabel(ctx, manage, 1, 3, "h3, h4, .title, [class*=\"name\"]")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Beta Node", label)

	require.NoError(t, s.ClickRole(ctx, manage, 1))
	var title string
	require.NoError(t, s.EvaluateInFrame(ctx, mainFrameID(t, s), "document.title", &title))
	assert.Equal(t, "beta", title)

	require.NoError(t, s.Fill(ctx, `input[type="email"]`, "user@example.com", 5*time.Second))

	info, err := s.TextContaining(ctx, "div", []string{"Server last renewed"}, 2*time.Second)
	require.NoError(t, err)
	assert.Contains(t, info, "2024-05-01")

	_, ok, err = s.VisibleText(ctx, ".missing", 300*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Error(t, s.WaitRole(ctx, schemas.Role{Kind: "button", Name: "Renew Server"}, 300*time.Millisecond))

	png, err := s.Screenshot(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, png)
}

func TestSession_Frames(t *testing.T) {
	s, _ := setupSession(t)
	ctx := context.Background()

	frames, err := s.Frames(ctx)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Empty(t, frames[0].ParentID)
	assert.Equal(t, frames[0].ID, frames[1].ParentID)
	assert.True(t, strings.HasSuffix(frames[1].URL, "/frame"))

	var probe struct {
		Ready bool `json:"ready"`
	}
	require.NoError(t, s.EvaluateInFrame(ctx, frames[1].ID, "window.probe", &probe))
	assert.True(t, probe.Ready)

	box, err := s.FrameOwnerBox(ctx, frames[1].ID)
	require.NoError(t, err)
	assert.InDelta(t, 304, box.Width, 2, "300px plus the default iframe border")
	assert.False(t, box.Empty())
}

func mainFrameID(t *testing.T, s *browser.Session) string {
	t.Helper()
	frames, err := s.Frames(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, frames)
	return frames[0].ID
}
