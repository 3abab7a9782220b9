package schemas

import "fmt"

// -- Browser-agnostic primitives --

// Frame describes one frame attached to the active page.
type Frame struct {
	ID       string `json:"id"`
	ParentID string `json:"parentId,omitempty"`
	URL      string `json:"url"`
}

// Box is an element's bounding box in main-frame viewport coordinates (CSS pixels).
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the geometric center of the box.
func (b Box) Center() (float64, float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// PointAt maps a relative position (0..1 on each axis) inside the box to an absolute point.
func (b Box) PointAt(xRatio, yRatio float64) (float64, float64) {
	return b.X + b.Width*xRatio, b.Y + b.Height*yRatio
}

// Empty reports whether the box has no rendered area.
func (b Box) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Role identifies interactive elements the way an accessibility tree would:
// an ARIA role plus a case-insensitive pattern for the accessible name.
type Role struct {
	Kind string `json:"kind"` // "button" or "link"
	Name string `json:"name"` // regular expression source, matched case-insensitively
}

func (r Role) String() string {
	return fmt.Sprintf("%s[name~/%s/i]", r.Kind, r.Name)
}

// MouseEventType defines the type of a mouse event.
type MouseEventType string

const (
	MouseMove    MouseEventType = "mouseMoved"
	MousePress   MouseEventType = "mousePressed"
	MouseRelease MouseEventType = "mouseReleased"
)

// MouseButton defines the mouse button being pressed.
type MouseButton string

const (
	ButtonNone  MouseButton = "none"
	ButtonLeft  MouseButton = "left"
	ButtonRight MouseButton = "right"
)

// MouseEventData encapsulates all data for a mouse event.
type MouseEventData struct {
	Type       MouseEventType `json:"type"`
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
	Button     MouseButton    `json:"button"`
	Buttons    int64          `json:"buttons"`
	ClickCount int            `json:"clickCount"`
}
