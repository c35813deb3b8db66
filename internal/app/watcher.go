package app

import (
	"context"
	"sync"
	"time"

	"stayhold/internal/domain"
)

// ExpiryWatcher is the client-side countdown mirroring a lock's
// authoritative expiry. The remaining time is recomputed from the absolute
// ExpiresAt on every tick — never decremented locally — so the countdown
// stays correct across sleep, suspend and resume. Expiry fires only when no
// commit is in flight; the server-side sweep remains the backstop.
type ExpiryWatcher struct {
	clock    domain.Clock
	inFlight func() bool
	onTick   func(remaining time.Duration)
	onExpire func()

	mu        sync.Mutex
	expiresAt time.Time
	fired     bool
}

func NewExpiryWatcher(clock domain.Clock, expiresAt time.Time, inFlight func() bool, onTick func(time.Duration), onExpire func()) *ExpiryWatcher {
	return &ExpiryWatcher{clock: clock, expiresAt: expiresAt, inFlight: inFlight, onTick: onTick, onExpire: onExpire}
}

// SetExpiry follows a lock extension by moving the absolute deadline.
func (w *ExpiryWatcher) SetExpiry(t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.expiresAt = t
}

// Remaining recomputes the time left from the absolute deadline, floored at
// zero.
func (w *ExpiryWatcher) Remaining() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if r := w.expiresAt.Sub(w.clock.Now()); r > 0 {
		return r
	}
	return 0
}

// Watch consumes ticks until the watcher fires or ctx ends. The tick source
// is injected so tests drive it without real sleeps.
func (w *ExpiryWatcher) Watch(ctx context.Context, ticks <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			if w.Tick() {
				return
			}
		}
	}
}

// Tick runs one countdown step; reports whether the watcher fired.
func (w *ExpiryWatcher) Tick() bool {
	remaining := w.Remaining()
	if w.onTick != nil {
		w.onTick(remaining)
	}
	if remaining > 0 {
		return false
	}
	if w.inFlight != nil && w.inFlight() {
		// Mid-commit: the expiry watcher must not trigger a revert.
		return false
	}
	w.mu.Lock()
	if w.fired {
		w.mu.Unlock()
		return true
	}
	w.fired = true
	w.mu.Unlock()
	if w.onExpire != nil {
		w.onExpire()
	}
	return true
}
