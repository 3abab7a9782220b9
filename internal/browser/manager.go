// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/renewbot/api/schemas"
	"github.com/xkilldash9x/renewbot/internal/browser/stealth"
	"github.com/xkilldash9x/renewbot/internal/config"
)

const shutdownGracePeriod = 15 * time.Second

// Manager owns the browser process (or remote connection) and the tabs opened on it.
type Manager struct {
	cfg    *config.Config
	logger *zap.Logger

	persona stealth.Persona
	hook    stealth.HookOptions

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup

	activeMu sync.Mutex
	active   *Session
}

// NewManager starts a local Chromium, or connects to cfg.Browser.RemoteURL when
// it is set. proxyServer, if non-empty, is passed to a local browser as its
// proxy. The returned manager must be shut down.
func NewManager(ctx context.Context, cfg *config.Config, proxyServer string, hook stealth.HookOptions, logger *zap.Logger) (*Manager, error) {
	persona := stealth.DefaultPersona
	if cfg.Browser.UserAgent != "" {
		persona.UserAgent = cfg.Browser.UserAgent
	}
	m := &Manager{
		cfg:      cfg,
		logger:   logger.Named("browser_manager"),
		persona:  persona,
		hook:     hook,
		sessions: make(map[string]*Session),
	}

	if cfg.Browser.RemoteURL != "" {
		m.allocCtx, m.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.Browser.RemoteURL)
		m.logger.Info("Connecting to remote browser.", zap.String("url", cfg.Browser.RemoteURL))
	} else {
		opts := buildAllocatorOptions(cfg.Browser, persona.UserAgent, proxyServer)
		m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		m.logger.Info("Launching local browser.", zap.Bool("headless", cfg.Browser.Headless),
			zap.Bool("proxied", proxyServer != ""))
	}

	var ctxOpts []chromedp.ContextOption
	if cfg.Browser.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(m.logger.Sugar().Debugf))
	}
	ctxOpts = append(ctxOpts, chromedp.WithErrorf(m.logger.Sugar().Errorf))
	m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocCtx, ctxOpts...)

	if err := m.connect(ctx); err != nil {
		m.browserCancel()
		m.allocCancel()
		return nil, err
	}
	return m, nil
}

// connect starts (or attaches to) the browser, retrying remote endpoints that
// may still be coming up.
func (m *Manager) connect(ctx context.Context) error {
	attempts := 1
	if m.cfg.Browser.RemoteURL != "" && m.cfg.Browser.ConnectAttempts > 1 {
		attempts = m.cfg.Browser.ConnectAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		// The first Run binds the browser to browserCtx, so it is not bounded by ctx.
		errCh := make(chan error, 1)
		go func() { errCh <- chromedp.Run(m.browserCtx) }()

		select {
		case lastErr = <-errCh:
		case <-ctx.Done():
			return ctx.Err()
		}
		if lastErr == nil {
			m.logger.Info("Browser ready.", zap.Int("attempt", attempt))
			return nil
		}

		m.logger.Warn("Browser connection attempt failed.", zap.Int("attempt", attempt), zap.Error(lastErr))
		if attempt == attempts {
			break
		}
		// A failed first Run poisons the context; start over with a fresh one.
		m.browserCancel()
		m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocCtx)
		select {
		case <-time.After(m.cfg.Browser.ConnectBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("failed to start browser after %d attempt(s): %w", attempts, lastErr)
}

// NewSession opens and initializes a new tab.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	s := newSession(m.browserCtx, m.cfg, m.logger)
	m.wg.Add(1)
	s.onClose = func() {
		m.mu.Lock()
		delete(m.sessions, s.ID())
		m.mu.Unlock()
		m.wg.Done()
	}

	if err := s.Initialize(ctx, m.persona, m.hook); err != nil {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Close(cleanupCtx)
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	m.logger.Info("New browser tab opened.", zap.String("session_id", s.ID()))
	return s, nil
}

// EnsureHealthy returns s if it still responds, otherwise closes it and opens a
// replacement tab.
func (m *Manager) EnsureHealthy(ctx context.Context, s *Session) (*Session, error) {
	if s != nil && s.Healthy(ctx) {
		return s, nil
	}
	if s != nil {
		m.logger.Warn("Browser tab unhealthy, reopening.", zap.String("session_id", s.ID()))
		_ = s.Close(ctx)
	}
	return m.NewSession(ctx)
}

// ActivePage returns the tab shared by consecutive users, reopening it when the
// previous one stopped responding.
func (m *Manager) ActivePage(ctx context.Context) (schemas.Page, error) {
	m.activeMu.Lock()
	defer m.activeMu.Unlock()
	s, err := m.EnsureHealthy(ctx, m.active)
	if err != nil {
		m.active = nil
		return nil, err
	}
	m.active = s
	return s, nil
}

// Shutdown closes every tab and then the browser.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	for _, s := range open {
		_ = s.Close(ctx)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	graceCtx, cancel := context.WithTimeout(ctx, shutdownGracePeriod)
	defer cancel()
	var err error
	select {
	case <-done:
	case <-graceCtx.Done():
		err = fmt.Errorf("timed out waiting for browser tabs to close: %w", graceCtx.Err())
	}

	// Canceling the remote allocator only detaches; a local browser is terminated.
	m.browserCancel()
	m.allocCancel()
	m.logger.Info("Browser manager shut down.")
	return err
}
