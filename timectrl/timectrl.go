// Package timectrl drives the navigation engine's cycle cadence. A
// TimeController advances mission time in fixed ticks, either in step with
// the wall clock or accelerated for replays and tests, and notifies
// registered listeners on every advance.
package timectrl

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Clock is the read/drive surface consumers depend on instead of the
// concrete controller type.
type Clock interface {
	// Now returns the current mission time.
	Now() time.Time
	// AddListener registers a callback invoked synchronously on every tick.
	AddListener(fn func(time.Time))
	// Start advances mission time until the context is canceled or, when
	// duration > 0, until that much mission time has elapsed. The returned
	// channel is closed when the controller stops.
	Start(ctx context.Context, duration time.Duration) <-chan struct{}
}

// Mode describes how the TimeController advances mission time.
type Mode int

const (
	// RealTime advances one Tick of mission time per Tick of wall time.
	RealTime Mode = iota
	// Accelerated advances one Tick of mission time every millisecond of
	// wall time, for replays and tests.
	Accelerated
)

// ParseMode maps a mode name from flags or config to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "realtime", "real-time":
		return RealTime, nil
	case "accelerated", "fast":
		return Accelerated, nil
	default:
		return RealTime, fmt.Errorf("unknown time mode %q", s)
	}
}

// TimeController drives mission time and notifies registered listeners.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time
	listeners   []func(time.Time)
}

// NewTimeController constructs a controller. A non-positive tick falls back
// to one second.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	if tick <= 0 {
		tick = time.Second
	}
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current mission time. Implements Clock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// AddListener registers a callback invoked on every tick. Listeners run
// synchronously on the controller goroutine, so a slow listener delays the
// next tick rather than overlapping with it.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Start runs the controller in a separate goroutine until ctx is canceled
// or, when duration > 0, until that much mission time has elapsed. The
// returned channel is closed when the controller stops.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		tc.mu.Lock()
		simTime := tc.StartTime
		tc.currentTime = simTime
		tc.mu.Unlock()

		interval := tc.Tick
		if tc.Mode == Accelerated {
			interval = time.Millisecond
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		elapsed := time.Duration(0)
		for {
			if duration > 0 && elapsed >= duration {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			simTime = simTime.Add(tc.Tick)
			elapsed += tc.Tick

			tc.mu.Lock()
			tc.currentTime = simTime
			listeners := make([]func(time.Time), len(tc.listeners))
			copy(listeners, tc.listeners)
			tc.mu.Unlock()

			for _, fn := range listeners {
				fn(simTime)
			}
		}
	}()
	return done
}
