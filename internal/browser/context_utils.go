package browser

import "context"

// CombineContext derives a context from ctx1 that is also canceled when ctx2 is.
// Values come from ctx1 only, so the chromedp target carried by the session
// context survives while ctx2 contributes the operation deadline.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(ctx1)
	go func() {
		select {
		case <-ctx2.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}
