package schemas

import (
	"context"
	"time"
)

// Page is the contract the renewal core needs from a browser tab. It is
// implemented by browser.Session over CDP and by fakes in tests.
type Page interface {
	Navigate(ctx context.Context, url string) error
	GoBack(ctx context.Context) error
	URL(ctx context.Context) (string, error)
	// Text returns the rendered text of the document body.
	Text(ctx context.Context) (string, error)

	// Fill waits up to timeout for the first element matching selector to become
	// visible, then replaces its value with text.
	Fill(ctx context.Context, selector, text string, timeout time.Duration) error
	// VisibleText returns the inner text of the first visible element matching
	// selector, waiting up to timeout. ok is false when none became visible.
	VisibleText(ctx context.Context, selector string, timeout time.Duration) (text string, ok bool, err error)
	// TextContaining returns the inner text of the first element of the given tag,
	// in document order, whose text contains any of needles.
	TextContaining(ctx context.Context, tag string, needles []string, timeout time.Duration) (string, error)

	// CountRole returns how many visible elements currently match role.
	CountRole(ctx context.Context, role Role) (int, error)
	// WaitRole waits up to timeout for an element matching role to become visible.
	WaitRole(ctx context.Context, role Role, timeout time.Duration) error
	// ClickRole clicks the index-th visible element matching role.
	ClickRole(ctx context.Context, role Role, index int) error
	// RoleLabel looks `depth` ancestors above the index-th role match and reads
	// the first descendant matching selector. ok is false when that descendant is
	// missing or not visible; err is set when the ancestor chain does not exist.
	RoleLabel(ctx context.Context, role Role, index, depth int, selector string) (label string, ok bool, err error)

	ChallengePage
	Screenshotter
}

// ChallengePage is the narrow surface the challenge solver needs.
type ChallengePage interface {
	Frames(ctx context.Context) ([]Frame, error)
	// EvaluateInFrame runs expression in the frame's own (main world) context and
	// decodes the JSON result into res.
	EvaluateInFrame(ctx context.Context, frameID, expression string, res interface{}) error
	// FrameOwnerBox returns the bounding box of the <iframe> element hosting frameID.
	FrameOwnerBox(ctx context.Context, frameID string) (Box, error)
	DispatchMouseEvent(ctx context.Context, data MouseEventData) error
}

// Screenshotter captures the full page as PNG.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}
