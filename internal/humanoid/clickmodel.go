// Filename: internal/humanoid/clickmodel.go
package humanoid

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/renewbot/api/schemas"
)

// ClickAt presses the left button at (x, y), holds it for a randomized dwell and
// releases it at the same point. No movement event is sent, so the press is the
// first thing the target sees at that position.
func (h *Humanoid) ClickAt(ctx context.Context, x, y float64) error {
	press := schemas.MouseEventData{
		Type:       schemas.MousePress,
		X:          x,
		Y:          y,
		Button:     schemas.ButtonLeft,
		ClickCount: 1,
		Buttons:    1,
	}
	if err := h.executor.DispatchMouseEvent(ctx, press); err != nil {
		return fmt.Errorf("mouse press at (%.2f, %.2f): %w", x, y, err)
	}

	h.mu.Lock()
	h.currentPos = press
	h.currentButtonState = schemas.ButtonLeft
	h.mu.Unlock()

	hold := h.ClickHoldDuration()
	h.logger.Debug("Holding click.", zap.Duration("dwell", hold))
	if err := h.sleeper.Sleep(ctx, hold); err != nil {
		// Never leave the button stuck down.
		_ = h.release(context.WithoutCancel(ctx), x, y)
		return err
	}

	return h.release(ctx, x, y)
}

// MoveAndClick moves the pointer to (x, y) first, then clicks there. This mirrors
// an ordinary mouse click and is used when no precise target is known.
func (h *Humanoid) MoveAndClick(ctx context.Context, x, y float64) error {
	move := schemas.MouseEventData{
		Type:   schemas.MouseMove,
		X:      x,
		Y:      y,
		Button: schemas.ButtonNone,
	}
	if err := h.executor.DispatchMouseEvent(ctx, move); err != nil {
		return fmt.Errorf("mouse move to (%.2f, %.2f): %w", x, y, err)
	}
	h.mu.Lock()
	h.currentPos = move
	h.mu.Unlock()
	return h.ClickAt(ctx, x, y)
}

func (h *Humanoid) release(ctx context.Context, x, y float64) error {
	up := schemas.MouseEventData{
		Type:       schemas.MouseRelease,
		X:          x,
		Y:          y,
		Button:     schemas.ButtonLeft,
		ClickCount: 1,
		Buttons:    0,
	}
	if err := h.executor.DispatchMouseEvent(ctx, up); err != nil {
		return fmt.Errorf("mouse release at (%.2f, %.2f): %w", x, y, err)
	}
	h.mu.Lock()
	h.currentPos = up
	h.currentButtonState = schemas.ButtonNone
	h.mu.Unlock()
	return nil
}
