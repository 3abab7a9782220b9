package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/renewbot/api/schemas"
	"github.com/xkilldash9x/renewbot/internal/browser/stealth"
	"github.com/xkilldash9x/renewbot/internal/config"
	"github.com/xkilldash9x/renewbot/internal/humanoid"
	"github.com/xkilldash9x/renewbot/internal/timing"
)

// ErrSessionClosed is returned by every operation on a closed session.
var ErrSessionClosed = errors.New("browser session is closed")

const healthCheckTimeout = 5 * time.Second

// Session is a single browser tab driven over CDP. It implements schemas.Page.
type Session struct {
	id     string
	ctx    context.Context // chromedp tab context
	cancel context.CancelFunc
	cfg    *config.Config
	logger *zap.Logger

	humanoid *humanoid.Humanoid

	// frame ID -> default (main world) execution context of that frame
	contextsMu sync.RWMutex
	contexts   map[string]runtime.ExecutionContextID

	closeOnce sync.Once
	onClose   func()
}

var _ schemas.Page = (*Session)(nil)

// newSession binds a new tab under browserCtx. The tab itself is created on the
// first action, which is Initialize.
func newSession(browserCtx context.Context, cfg *config.Config, logger *zap.Logger) *Session {
	id := uuid.NewString()
	tabCtx, cancel := chromedp.NewContext(browserCtx)
	s := &Session{
		id:       id,
		ctx:      tabCtx,
		cancel:   cancel,
		cfg:      cfg,
		logger:   logger.With(zap.String("session_id", id)),
		contexts: make(map[string]runtime.ExecutionContextID),
	}
	s.humanoid = humanoid.New(cfg.Browser.Humanoid, s, timing.Real{}, s.logger,
		rand.New(rand.NewSource(time.Now().UnixNano())))
	chromedp.ListenTarget(tabCtx, s.handleTargetEvent)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Initialize opens the tab and applies the persona, the challenge hook and the viewport.
func (s *Session) Initialize(ctx context.Context, persona stealth.Persona, hook stealth.HookOptions) error {
	tasks, err := stealth.Apply(persona, hook, s.logger)
	if err != nil {
		return err
	}
	width, height := s.cfg.Browser.ViewportSize()

	actions := chromedp.Tasks{
		dom.Enable(),
		runtime.Enable(),
		emulation.SetDeviceMetricsOverride(int64(width), int64(height), 1, false),
	}
	actions = append(actions, tasks...)

	// The first Run on a fresh tab context must not be bounded by a short-lived
	// context, or the tab is torn down with it.
	if err := chromedp.Run(s.ctx, actions); err != nil {
		return fmt.Errorf("failed to initialize browser tab: %w", err)
	}
	s.logger.Debug("Browser tab initialized.", zap.String("viewport", describeViewport(s.cfg.Browser)))
	return nil
}

func (s *Session) handleTargetEvent(ev interface{}) {
	switch e := ev.(type) {
	case *runtime.EventExecutionContextCreated:
		if e.Context == nil || len(e.Context.AuxData) == 0 {
			return
		}
		var aux struct {
			FrameID   string `json:"frameId"`
			IsDefault bool   `json:"isDefault"`
		}
		if err := json.Unmarshal([]byte(e.Context.AuxData), &aux); err != nil || !aux.IsDefault || aux.FrameID == "" {
			return
		}
		s.contextsMu.Lock()
		s.contexts[aux.FrameID] = e.Context.ID
		s.contextsMu.Unlock()
	case *runtime.EventExecutionContextDestroyed:
		s.contextsMu.Lock()
		for frameID, id := range s.contexts {
			if id == e.ExecutionContextID {
				delete(s.contexts, frameID)
			}
		}
		s.contextsMu.Unlock()
	case *runtime.EventExecutionContextsCleared:
		s.contextsMu.Lock()
		s.contexts = make(map[string]runtime.ExecutionContextID)
		s.contextsMu.Unlock()
	}
}

func (s *Session) frameContext(frameID string) (runtime.ExecutionContextID, bool) {
	s.contextsMu.RLock()
	defer s.contextsMu.RUnlock()
	id, ok := s.contexts[frameID]
	return id, ok
}

// runActions executes actions on the tab, canceled by either the tab or ctx.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// withActionTimeout bounds an operation that has no timeout of its own.
func (s *Session) withActionTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Browser.ActionTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.Browser.ActionTimeout)
}

// Healthy reports whether the tab still answers a trivial evaluation.
func (s *Session) Healthy(ctx context.Context) bool {
	if s.ctx.Err() != nil {
		return false
	}
	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	var state string
	if err := s.runActions(checkCtx, chromedp.Evaluate(healthExpr, &state)); err != nil {
		s.logger.Warn("Browser tab failed health check.", zap.Error(err))
		return false
	}
	return true
}

// Close closes the tab. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.logger.Debug("Closing browser tab.")
		done := make(chan struct{})
		go func() {
			defer close(done)
			s.cancel()
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
		if s.onClose != nil {
			s.onClose()
		}
	})
	return err
}
