package window

import (
	"context"
	"errors"
	"time"
)

// ErrHostNotReady is returned when the editor host does not report
// readiness in time.
var ErrHostNotReady = errors.New("editor host not ready")

// MarkReady is called once by the hosting layer when it can render
// editor windows. Further calls are no-ops.
func (m *Manager) MarkReady() {
	m.readyOnce.Do(func() { close(m.ready) })
}

// Ready returns a channel closed once the host is ready.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// WaitReady blocks until the host is ready, ctx is done or timeout
// elapses. A non-positive timeout waits on ctx alone.
func (m *Manager) WaitReady(ctx context.Context, timeout time.Duration) error {
	select {
	case <-m.ready:
		return nil
	default:
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrHostNotReady
		}
		return ctx.Err()
	}
}
