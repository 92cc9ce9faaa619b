// Package state owns the engine's published output: a single container with
// one publish operation, copy-safe reads, and subscriber fan-out. There is no
// package-level mutable state.
package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/mission-pnt/model"
)

// logCapacity bounds the event log carried with every snapshot.
const logCapacity = 10

// PublicationRecorder receives a count per published snapshot.
type PublicationRecorder interface {
	IncPublish()
}

// TrackingState holds the most recent Snapshot behind a RWMutex. Writers
// build the new value aside and swap it in whole, so readers observe
// complete cycles only.
type TrackingState struct {
	mu      sync.RWMutex
	snap    model.Snapshot
	logRing []string
	hasData bool

	subs   map[int]func(model.Snapshot)
	nextID int

	metrics PublicationRecorder
}

// Option customises TrackingState construction.
type Option func(*TrackingState)

// WithMetricsRecorder attaches an optional recorder for publish counts.
func WithMetricsRecorder(m PublicationRecorder) Option {
	return func(t *TrackingState) {
		t.metrics = m
	}
}

// New constructs an empty TrackingState.
func New(opts ...Option) *TrackingState {
	t := &TrackingState{subs: make(map[int]func(model.Snapshot))}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// AppendLog records a timestamped event line, keeping the newest ten. The
// ring is attached to every published snapshot.
func (t *TrackingState) AppendLog(line string) {
	stamped := fmt.Sprintf("[%s] %s", time.Now().UTC().Format("15:04:05"), line)
	t.mu.Lock()
	t.logRing = append(t.logRing, stamped)
	if len(t.logRing) > logCapacity {
		t.logRing = t.logRing[len(t.logRing)-logCapacity:]
	}
	t.mu.Unlock()
}

// Publish stamps UpdatedAt, attaches the event log, and swaps the snapshot
// in under the write lock. Subscribers are notified outside the lock with a
// deep copy, so a slow consumer cannot stall readers or the next cycle's
// writer.
func (t *TrackingState) Publish(snap model.Snapshot) {
	snap.UpdatedAt = time.Now().UTC()

	t.mu.Lock()
	snap.Log = append([]string(nil), t.logRing...)
	t.snap = snap
	t.hasData = true
	subs := make([]func(model.Snapshot), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.IncPublish()
	}
	if len(subs) > 0 {
		copied := snap.Clone()
		for _, fn := range subs {
			fn(copied)
		}
	}
}

// Snapshot returns a deep copy of the latest publication. The bool is false
// until the first Publish.
func (t *TrackingState) Snapshot() (model.Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.Clone(), t.hasData
}

// Subscribe registers a callback invoked with every published snapshot.
// The returned func removes the subscription.
func (t *TrackingState) Subscribe(fn func(model.Snapshot)) func() {
	if fn == nil {
		return func() {}
	}
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}
