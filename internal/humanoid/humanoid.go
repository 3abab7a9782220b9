// Filename: internal/humanoid/humanoid.go
package humanoid

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/renewbot/api/schemas"
	"github.com/xkilldash9x/renewbot/internal/config"
)

// Executor defines the contract for low-level browser input, agnostic of the
// automation driver. This interface is what makes the click model testable.
type Executor interface {
	// DispatchMouseEvent sends a raw mouse event through the input domain.
	DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error
}

// Sleeper pauses execution, respecting context cancellation.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Humanoid issues pointer input with humanlike pacing at explicit viewport
// coordinates.
type Humanoid struct {
	cfg      config.HumanoidConfig
	executor Executor
	sleeper  Sleeper
	logger   *zap.Logger

	mu                 sync.Mutex
	rng                *rand.Rand
	currentPos         schemas.MouseEventData
	currentButtonState schemas.MouseButton
}

// New creates a Humanoid. A nil rng is seeded from the clock.
func New(cfg config.HumanoidConfig, executor Executor, sleeper Sleeper, logger *zap.Logger, rng *rand.Rand) *Humanoid {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Humanoid{
		cfg:                cfg,
		executor:           executor,
		sleeper:            sleeper,
		logger:             logger.Named("humanoid"),
		rng:                rng,
		currentButtonState: schemas.ButtonNone,
	}
}

// ClickHoldDuration draws a dwell uniformly from [ClickHoldMin, ClickHoldMax].
func (h *Humanoid) ClickHoldDuration() time.Duration {
	lo, hi := h.cfg.ClickHoldMin, h.cfg.ClickHoldMax
	if hi <= lo {
		return lo
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return lo + time.Duration(h.rng.Int63n(int64(hi-lo)+1))
}

// ButtonState returns the button currently held, if any.
func (h *Humanoid) ButtonState() schemas.MouseButton {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentButtonState
}
