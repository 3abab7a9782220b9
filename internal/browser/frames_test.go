package browser

import (
	"testing"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/renewbot/api/schemas"
)

func TestFlattenFrameTree_DepthFirst(t *testing.T) {
	tree := &page.FrameTree{
		Frame: &cdp.Frame{ID: "main", URL: "https://dash.example/servers"},
		ChildFrames: []*page.FrameTree{
			{
				Frame: &cdp.Frame{ID: "ads", ParentID: "main", URL: "https://ads.example/"},
				ChildFrames: []*page.FrameTree{
					{Frame: &cdp.Frame{ID: "nested", ParentID: "ads", URL: "about:blank"}},
				},
			},
			{Frame: &cdp.Frame{ID: "cf", ParentID: "main", URL: "https://challenges.cloudflare.com/turnstile"}},
		},
	}

	got := flattenFrameTree(tree, nil)
	assert.Equal(t, []schemas.Frame{
		{ID: "main", URL: "https://dash.example/servers"},
		{ID: "ads", ParentID: "main", URL: "https://ads.example/"},
		{ID: "nested", ParentID: "ads", URL: "about:blank"},
		{ID: "cf", ParentID: "main", URL: "https://challenges.cloudflare.com/turnstile"},
	}, got)

	assert.Empty(t, flattenFrameTree(nil, nil))
}

func TestQuadBounds(t *testing.T) {
	q := dom.Quad{100, 50, 400, 50, 400, 115, 100, 115}
	assert.Equal(t, schemas.Box{X: 100, Y: 50, Width: 300, Height: 65}, quadBounds(q))

	// Rotated quads are reduced to their bounding rectangle.
	rotated := dom.Quad{10, 0, 20, 10, 10, 20, 0, 10}
	assert.Equal(t, schemas.Box{X: 0, Y: 0, Width: 20, Height: 20}, quadBounds(rotated))

	assert.True(t, quadBounds(dom.Quad{1, 2}).Empty())
}

func TestHandleTargetEvent_TracksDefaultContexts(t *testing.T) {
	s := &Session{
		logger:   zaptest.NewLogger(t),
		contexts: make(map[string]runtime.ExecutionContextID),
	}

	s.handleTargetEvent(&runtime.EventExecutionContextCreated{Context: &runtime.ExecutionContextDescription{
		ID:      7,
		AuxData: []byte(`{"frameId":"cf","isDefault":true,"type":"default"}`),
	}})
	s.handleTargetEvent(&runtime.EventExecutionContextCreated{Context: &runtime.ExecutionContextDescription{
		ID:      8,
		AuxData: []byte(`{"frameId":"cf","isDefault":false,"type":"isolated"}`),
	}})
	s.handleTargetEvent(&runtime.EventExecutionContextCreated{Context: &runtime.ExecutionContextDescription{ID: 9}})

	id, ok := s.frameContext("cf")
	assert.True(t, ok)
	assert.Equal(t, runtime.ExecutionContextID(7), id, "isolated worlds must not replace the main world")

	s.handleTargetEvent(&runtime.EventExecutionContextDestroyed{ExecutionContextID: 7})
	_, ok = s.frameContext("cf")
	assert.False(t, ok)

	s.handleTargetEvent(&runtime.EventExecutionContextCreated{Context: &runtime.ExecutionContextDescription{
		ID:      10,
		AuxData: []byte(`{"frameId":"main","isDefault":true}`),
	}})
	s.handleTargetEvent(&runtime.EventExecutionContextsCleared{})
	_, ok = s.frameContext("main")
	assert.False(t, ok)
}

func TestExceptionText(t *testing.T) {
	assert.Equal(t, "Uncaught", exceptionText(&runtime.ExceptionDetails{Text: "Uncaught"}))
	assert.Equal(t, "TypeError: x is null", exceptionText(&runtime.ExceptionDetails{
		Text:      "Uncaught",
		Exception: &runtime.RemoteObject{Description: "TypeError: x is null"},
	}))
}
