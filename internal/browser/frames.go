package browser

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/renewbot/api/schemas"
)

const (
	isolatedWorldName = "renewbot_probe"
	mouseEventTimeout = 10 * time.Second
)

// Frames lists every frame of the tab in frame-tree (depth-first) order.
func (s *Session) Frames(ctx context.Context) ([]schemas.Frame, error) {
	var tree *page.FrameTree
	err := s.runActions(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		tree, err = page.GetFrameTree().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read frame tree: %w", err)
	}
	return flattenFrameTree(tree, nil), nil
}

func flattenFrameTree(tree *page.FrameTree, out []schemas.Frame) []schemas.Frame {
	if tree == nil || tree.Frame == nil {
		return out
	}
	out = append(out, schemas.Frame{
		ID:       string(tree.Frame.ID),
		ParentID: string(tree.Frame.ParentID),
		URL:      tree.Frame.URL,
	})
	for _, child := range tree.ChildFrames {
		out = flattenFrameTree(child, out)
	}
	return out
}

// EvaluateInFrame runs expression in the frame's main world so it sees globals
// left there by page scripts. A frame whose context has not been announced yet
// is evaluated in a fresh isolated world instead.
func (s *Session) EvaluateInFrame(ctx context.Context, frameID, expression string, res interface{}) error {
	return s.runActions(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		contextID, ok := s.frameContext(frameID)
		if !ok {
			id, err := page.CreateIsolatedWorld(cdp.FrameID(frameID)).WithWorldName(isolatedWorldName).Do(ctx)
			if err != nil {
				return fmt.Errorf("no execution context for frame %s: %w", frameID, err)
			}
			s.logger.Debug("Evaluating in isolated world.", zap.String("frame_id", frameID))
			contextID = id
		}

		obj, exception, err := runtime.Evaluate(expression).
			WithContextID(contextID).
			WithReturnByValue(true).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to evaluate in frame %s: %w", frameID, err)
		}
		if exception != nil {
			return fmt.Errorf("script exception in frame %s: %s", frameID, exceptionText(exception))
		}
		if res == nil || obj == nil || len(obj.Value) == 0 {
			return nil
		}
		return json.Unmarshal([]byte(obj.Value), res)
	}))
}

func exceptionText(ex *runtime.ExceptionDetails) string {
	if ex.Exception != nil && ex.Exception.Description != "" {
		return ex.Exception.Description
	}
	return ex.Text
}

// FrameOwnerBox returns the border box of the <iframe> hosting frameID in
// main-frame viewport coordinates, scrolling it into view first.
func (s *Session) FrameOwnerBox(ctx context.Context, frameID string) (schemas.Box, error) {
	var box schemas.Box
	err := s.runActions(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		backendID, _, err := dom.GetFrameOwner(cdp.FrameID(frameID)).Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve owner of frame %s: %w", frameID, err)
		}
		if err := dom.ScrollIntoViewIfNeeded().WithBackendNodeID(backendID).Do(ctx); err != nil {
			s.logger.Debug("Could not scroll frame owner into view.", zap.Error(err))
		}
		model, err := dom.GetBoxModel().WithBackendNodeID(backendID).Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to read box of frame %s: %w", frameID, err)
		}
		box = quadBounds(model.Border)
		return nil
	}))
	return box, err
}

// quadBounds returns the axis-aligned bounds of a CDP quad (x1,y1..x4,y4).
func quadBounds(q dom.Quad) schemas.Box {
	if len(q) < 8 {
		return schemas.Box{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i := 0; i+1 < len(q); i += 2 {
		minX, maxX = math.Min(minX, q[i]), math.Max(maxX, q[i])
		minY, maxY = math.Min(minY, q[i+1]), math.Max(maxY, q[i+1])
	}
	return schemas.Box{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// DispatchMouseEvent sends a raw mouse event through the input domain.
func (s *Session) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	p := input.DispatchMouseEvent(input.MouseType(data.Type), data.X, data.Y).
		WithButton(input.MouseButton(data.Button)).
		WithButtons(data.Buttons).
		WithClickCount(int64(data.ClickCount))

	opCtx, cancel := context.WithTimeout(ctx, mouseEventTimeout)
	defer cancel()
	if err := s.runActions(opCtx, p); err != nil {
		return fmt.Errorf("failed to dispatch %s at (%.1f, %.1f): %w", data.Type, data.X, data.Y, err)
	}
	return nil
}
