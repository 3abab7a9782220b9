package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/renewbot/api/schemas"
)

const pollInterval = 100 * time.Millisecond

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	opCtx, cancel := s.withActionTimeout(ctx)
	defer cancel()
	s.logger.Debug("Navigating.", zap.String("url", url))
	if err := s.runActions(opCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// GoBack moves one entry back in the tab history.
func (s *Session) GoBack(ctx context.Context) error {
	opCtx, cancel := s.withActionTimeout(ctx)
	defer cancel()
	if err := s.runActions(opCtx, chromedp.NavigateBack()); err != nil {
		return fmt.Errorf("failed to navigate back: %w", err)
	}
	return nil
}

// URL returns the current document location.
func (s *Session) URL(ctx context.Context) (string, error) {
	var loc string
	if err := s.runActions(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return loc, nil
}

// Text returns the rendered text of the document body.
func (s *Session) Text(ctx context.Context) (string, error) {
	var text string
	if err := s.runActions(ctx, chromedp.Evaluate(bodyTextExpr, &text)); err != nil {
		return "", fmt.Errorf("failed to read page text: %w", err)
	}
	return text, nil
}

// Fill replaces the value of the first visible element matching selector.
func (s *Session) Fill(ctx context.Context, selector, text string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	err := s.runActions(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
	cancel()
	if err != nil {
		return fmt.Errorf("field %q did not become visible within %s: %w", selector, timeout, err)
	}

	opCtx, cancel := s.withActionTimeout(ctx)
	defer cancel()
	if err := s.runActions(opCtx,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to fill %q: %w", selector, err)
	}
	return nil
}

// VisibleText waits for the first element matching selector to be visible and
// returns its inner text.
func (s *Session) VisibleText(ctx context.Context, selector string, timeout time.Duration) (string, bool, error) {
	expr, err := domCall("visibleText", textArgs{Selector: selector})
	if err != nil {
		return "", false, err
	}
	var res textResult
	ok, err := s.poll(ctx, expr, &res, timeout)
	if err != nil || !ok {
		return "", false, err
	}
	return res.Text, true, nil
}

// TextContaining returns the inner text of the first element of tag, in
// document order, whose text contains any needle (case-insensitive).
func (s *Session) TextContaining(ctx context.Context, tag string, needles []string, timeout time.Duration) (string, error) {
	expr, err := domCall("textContaining", textArgs{Tag: tag, Needles: needles})
	if err != nil {
		return "", err
	}
	var res textResult
	ok, err := s.poll(ctx, expr, &res, timeout)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("no <%s> containing %q within %s", tag, needles, timeout)
	}
	return res.Text, nil
}

// CountRole returns how many visible elements currently match role.
func (s *Session) CountRole(ctx context.Context, role schemas.Role) (int, error) {
	expr, err := domCall("count", newRoleArgs(role))
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.runActions(ctx, chromedp.Evaluate(expr, &n)); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", role, err)
	}
	return n, nil
}

// WaitRole waits up to timeout for a visible element matching role.
func (s *Session) WaitRole(ctx context.Context, role schemas.Role, timeout time.Duration) error {
	expr, err := domCall("count", newRoleArgs(role))
	if err != nil {
		return err
	}
	var n int
	ok, err := s.poll(ctx, expr, &n, timeout)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s not visible within %s", role, timeout)
	}
	return nil
}

// ClickRole scrolls the index-th match of role into view and clicks its center.
func (s *Session) ClickRole(ctx context.Context, role schemas.Role, index int) error {
	args := newRoleArgs(role)
	args.Index = index
	args.Scroll = s.cfg.Browser.Humanoid.ScrollIntoView
	expr, err := domCall("point", args)
	if err != nil {
		return err
	}

	var p *point
	if err := s.runActions(ctx, chromedp.Evaluate(expr, &p)); err != nil {
		return fmt.Errorf("failed to locate %s: %w", role, err)
	}
	if p == nil {
		return fmt.Errorf("no visible %s at index %d", role, index)
	}

	s.logger.Debug("Clicking element.", zap.Stringer("role", role), zap.Int("index", index),
		zap.Float64("x", p.X), zap.Float64("y", p.Y))
	if s.cfg.Browser.Humanoid.Enabled {
		return s.humanoid.MoveAndClick(ctx, p.X, p.Y)
	}
	return s.runActions(ctx, chromedp.MouseClickXY(p.X, p.Y))
}

// RoleLabel reads the label of the container around the index-th role match.
func (s *Session) RoleLabel(ctx context.Context, role schemas.Role, index, depth int, selector string) (string, bool, error) {
	args := newRoleArgs(role)
	args.Index = index
	args.Depth = depth
	args.Selector = selector
	expr, err := domCall("label", args)
	if err != nil {
		return "", false, err
	}
	var res labelResult
	if err := s.runActions(ctx, chromedp.Evaluate(expr, &res)); err != nil {
		return "", false, fmt.Errorf("failed to read label of %s #%d: %w", role, index, err)
	}
	return res.Text, res.OK, nil
}

// Screenshot captures the full page as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	quality := s.cfg.Evidence.Quality
	if quality <= 0 || quality > 100 {
		quality = 100
	}
	opCtx, cancel := s.withActionTimeout(ctx)
	defer cancel()
	var buf []byte
	if err := s.runActions(opCtx, chromedp.FullScreenshot(&buf, quality)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// poll evaluates expr until it yields a truthy value or timeout elapses. ok is
// false on timeout; any other failure is returned as err.
func (s *Session) poll(ctx context.Context, expr string, res interface{}, timeout time.Duration) (bool, error) {
	err := s.runActions(ctx, chromedp.Poll(expr, res,
		chromedp.WithPollingInterval(pollInterval),
		chromedp.WithPollingTimeout(timeout),
	))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, chromedp.ErrPollingTimeout):
		return false, nil
	default:
		return false, err
	}
}
