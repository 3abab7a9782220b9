package humanoid

import (
	"context"
	"sync"
	"time"

	"github.com/xkilldash9x/renewbot/api/schemas"
)

// mockExecutor records dispatched events and sleeps.
type mockExecutor struct {
	mu               sync.Mutex
	dispatchedEvents []schemas.MouseEventData
	sleepDurations   []time.Duration

	MockDispatchMouseEvent func(ctx context.Context, data schemas.MouseEventData) error
	MockSleep              func(ctx context.Context, d time.Duration) error
}

func (m *mockExecutor) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	m.mu.Lock()
	m.dispatchedEvents = append(m.dispatchedEvents, data)
	m.mu.Unlock()
	if m.MockDispatchMouseEvent != nil {
		return m.MockDispatchMouseEvent(ctx, data)
	}
	return ctx.Err()
}

func (m *mockExecutor) Sleep(ctx context.Context, d time.Duration) error {
	m.mu.Lock()
	m.sleepDurations = append(m.sleepDurations, d)
	m.mu.Unlock()
	if m.MockSleep != nil {
		return m.MockSleep(ctx, d)
	}
	return ctx.Err()
}

func (m *mockExecutor) events() []schemas.MouseEventData {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]schemas.MouseEventData, len(m.dispatchedEvents))
	copy(out, m.dispatchedEvents)
	return out
}

func (m *mockExecutor) sleeps() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.sleepDurations))
	copy(out, m.sleepDurations)
	return out
}
