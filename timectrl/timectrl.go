package timectrl

import (
	"context"
	"sync"
	"time"
)

// TickClock exposes the current simulation tick. Components that only need
// to know "when" depend on this rather than on the controller.
type TickClock interface {
	Now() int
}

// Mode describes how the TickController paces ticks.
type Mode int

const (
	// RealTime waits Interval of wall-clock time between ticks.
	RealTime Mode = iota
	// Accelerated advances as quickly as the listeners allow.
	Accelerated
)

// Listener is invoked once per tick, in registration order. A non-nil error
// stops the run.
type Listener func(ctx context.Context, tick int) error

// TickController drives integer simulation ticks and notifies registered
// listeners.
type TickController struct {
	mu        sync.RWMutex
	StartTick int
	Interval  time.Duration
	Mode      Mode

	current   int
	listeners []Listener
}

// NewTickController constructs a controller positioned at start.
func NewTickController(start int, interval time.Duration, mode Mode) *TickController {
	return &TickController{
		StartTick: start,
		Interval:  interval,
		Mode:      mode,
		current:   start,
	}
}

// Now returns the most recently dispatched tick. Implements TickClock.
func (tc *TickController) Now() int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.current
}

// SetTick repositions the controller, for example after an episode reset.
func (tc *TickController) SetTick(tick int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.current = tick
}

// AddListener registers a callback invoked on every tick.
func (tc *TickController) AddListener(fn Listener) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Run dispatches ticks StartTick .. StartTick+count-1 synchronously. It
// returns the first listener error or ctx.Err() on cancellation.
func (tc *TickController) Run(ctx context.Context, count int) error {
	tc.mu.RLock()
	listeners := append([]Listener(nil), tc.listeners...)
	start := tc.StartTick
	tc.mu.RUnlock()

	var ticker *time.Ticker
	if tc.Mode == RealTime && tc.Interval > 0 {
		ticker = time.NewTicker(tc.Interval)
		defer ticker.Stop()
	}

	for i := 0; i < count; i++ {
		if ticker != nil && i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		tick := start + i
		tc.mu.Lock()
		tc.current = tick
		tc.mu.Unlock()

		for _, fn := range listeners {
			if err := fn(ctx, tick); err != nil {
				return err
			}
		}
	}
	return nil
}

// Start runs the controller for count ticks in a separate goroutine. The
// returned channel receives the run's result and is then closed.
func (tc *TickController) Start(ctx context.Context, count int) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- tc.Run(ctx, count)
	}()
	return done
}
