// Package challenge locates an embedded Turnstile frame, clicks its checkbox at
// the position reported by the injected hook and waits for it to verify.
package challenge

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/renewbot/api/schemas"
	"github.com/xkilldash9x/renewbot/internal/config"
	"github.com/xkilldash9x/renewbot/internal/humanoid"
	"github.com/xkilldash9x/renewbot/internal/timing"
)

// hookDataExpr reads what the injected hook recorded inside the challenge frame.
const hookDataExpr = `window.__turnstile_data || null`

// checkboxCheckedExpr looks for a checked checkbox, falling back to the element
// captured by the hook when the input sits inside a closed shadow root.
const checkboxCheckedExpr = `(() => {
	const box = document.querySelector('input[type="checkbox"]') || window.__turnstile_checkbox;
	return box ? !!box.checked : false;
})()`

// successTextExpr reports whether a visible "Success" text node is present.
const successTextExpr = `(() => {
	const el = document.getElementById('success');
	if (el && el.getClientRects().length > 0 && getComputedStyle(el).visibility !== 'hidden') return true;
	return !!document.body && document.body.innerText.indexOf('Success') !== -1;
})()`

// hookData mirrors the object the injected script stores on window.
type hookData struct {
	XRatio float64 `json:"xRatio"`
	YRatio float64 `json:"yRatio"`
	Found  bool    `json:"found"`
}

// Solver runs the probe-and-solve routine against a page.
type Solver struct {
	cfg      config.ChallengeConfig
	humanCfg config.HumanoidConfig
	sleeper  timing.Sleeper
	logger   *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSolver creates a Solver. A nil rng is seeded from the clock.
func NewSolver(cfg config.ChallengeConfig, humanCfg config.HumanoidConfig, sleeper timing.Sleeper, logger *zap.Logger, rng *rand.Rand) *Solver {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Solver{
		cfg:      cfg,
		humanCfg: humanCfg,
		sleeper:  sleeper,
		logger:   logger.Named("challenge"),
		rng:      rng,
	}
}

// Solve finds the first challenge frame and tries to verify it. A page without a
// challenge yields {Found: false, Reason: not_found} and no input is sent. Every
// failure after the frame is found is reported in the result, never returned.
func (s *Solver) Solve(ctx context.Context, page schemas.ChallengePage, label string) schemas.ChallengeResult {
	logger := s.logger.With(zap.String("context", label))
	logger.Info("Checking for challenge frame.")

	frames, err := page.Frames(ctx)
	if err != nil {
		logger.Warn("Could not enumerate frames.", zap.Error(err))
		return schemas.ChallengeResult{Reason: schemas.ChallengeError, Err: fmt.Errorf("enumerate frames: %w", err)}
	}

	frame, ok := s.findChallengeFrame(frames)
	if !ok {
		logger.Info("No challenge frame present.")
		return schemas.ChallengeResult{Reason: schemas.ChallengeNotFound}
	}
	logger = logger.With(zap.String("frame_id", frame.ID))
	logger.Info("Challenge frame found, attempting verification.", zap.String("frame_url", frame.URL))

	if err := s.click(ctx, page, frame, logger); err != nil {
		logger.Error("Challenge click failed.", zap.Error(err))
		return schemas.ChallengeResult{Found: true, Reason: schemas.ChallengeError, Err: err}
	}

	if err := s.sleeper.Sleep(ctx, s.cfg.Settle); err != nil {
		return schemas.ChallengeResult{Found: true, Reason: schemas.ChallengeError, Err: err}
	}

	for attempt := 1; attempt <= s.cfg.PollAttempts; attempt++ {
		if s.verified(ctx, page, frame.ID) {
			logger.Info("Challenge verified.", zap.Int("attempt", attempt))
			return schemas.ChallengeResult{Found: true, Solved: true}
		}
		if err := s.sleeper.Sleep(ctx, s.cfg.PollInterval); err != nil {
			return schemas.ChallengeResult{Found: true, Reason: schemas.ChallengeError, Err: err}
		}
	}

	logger.Warn("Challenge state unknown after polling.", zap.Int("attempts", s.cfg.PollAttempts))
	return schemas.ChallengeResult{Found: true, Reason: schemas.ChallengeTimeout}
}

// findChallengeFrame returns the first frame, in frame-tree order, whose URL
// carries a vendor marker.
func (s *Solver) findChallengeFrame(frames []schemas.Frame) (schemas.Frame, bool) {
	for _, f := range frames {
		u := strings.ToLower(f.URL)
		for _, marker := range s.cfg.VendorMarkers {
			if marker != "" && strings.Contains(u, strings.ToLower(marker)) {
				return f, true
			}
		}
	}
	return schemas.Frame{}, false
}

// click computes the target point and sends the input. With hook data the point
// is the recorded checkbox center scaled into the iframe box; without it the
// iframe center is used.
func (s *Solver) click(ctx context.Context, page schemas.ChallengePage, frame schemas.Frame, logger *zap.Logger) error {
	var data *hookData
	if err := page.EvaluateInFrame(ctx, frame.ID, hookDataExpr, &data); err != nil {
		logger.Debug("Hook data unreadable, using frame center.", zap.Error(err))
		data = nil
	}

	box, err := page.FrameOwnerBox(ctx, frame.ID)
	if err != nil {
		return fmt.Errorf("locate challenge iframe: %w", err)
	}
	if box.Empty() {
		logger.Warn("Challenge iframe has no rendered box, skipping click.")
		return nil
	}

	h := humanoid.New(s.humanCfg, page, s.sleeper, logger, s.nextRand())

	if data != nil && data.Found {
		x, y := box.PointAt(data.XRatio, data.YRatio)
		logger.Info("Clicking recorded checkbox position.",
			zap.Float64("x", x), zap.Float64("y", y),
			zap.Float64("x_ratio", data.XRatio), zap.Float64("y_ratio", data.YRatio))
		return h.ClickAt(ctx, x, y)
	}

	x, y := box.Center()
	logger.Info("Hook data missing, clicking iframe center.", zap.Float64("x", x), zap.Float64("y", y))
	return h.MoveAndClick(ctx, x, y)
}

// verified runs one poll. Evaluation errors count as "not yet".
func (s *Solver) verified(ctx context.Context, page schemas.ChallengePage, frameID string) bool {
	expr := checkboxCheckedExpr
	if s.cfg.VerifyMode == config.VerifySuccessText {
		expr = successTextExpr
	}
	var ok bool
	if err := page.EvaluateInFrame(ctx, frameID, expr, &ok); err != nil {
		s.logger.Debug("Verification probe failed.", zap.Error(err))
		return false
	}
	return ok
}

func (s *Solver) nextRand() *rand.Rand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rand.New(rand.NewSource(s.rng.Int63()))
}
