package game

import (
	"context"
	"sync"
	"time"

	"github.com/TheNickoos/GilsTracker/internal/tracker"
)

// Framework stands in for the game client's per-frame update event. It fires
// every subscriber serially on each tick, so subscribers never run
// concurrently with each other.
type Framework struct {
	rate time.Duration

	mu     sync.Mutex
	subs   map[int]func()
	order  []int
	nextID int

	// fireMu keeps ticks from overlapping when Fire is called by hand
	// while Run is active.
	fireMu sync.Mutex
}

var _ tracker.Ticker = (*Framework)(nil)

// NewFramework returns a Framework that ticks every rate once Run is called.
func NewFramework(rate time.Duration) *Framework {
	if rate <= 0 {
		rate = 16 * time.Millisecond
	}
	return &Framework{rate: rate, subs: make(map[int]func())}
}

// Subscribe registers fn for every tick.
func (f *Framework) Subscribe(fn func()) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	f.order = append(f.order, id)
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs, id)
			for i, v := range f.order {
				if v == id {
					f.order = append(f.order[:i:i], f.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Subscribers returns the number of registered callbacks.
func (f *Framework) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Fire runs one tick synchronously.
func (f *Framework) Fire() {
	f.fireMu.Lock()
	defer f.fireMu.Unlock()

	f.mu.Lock()
	fns := make([]func(), 0, len(f.order))
	for _, id := range f.order {
		fns = append(fns, f.subs[id])
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Run ticks until ctx is cancelled.
func (f *Framework) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.rate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			f.Fire()
		}
	}
}

// AllGates returns a gate that is active only while every gate is active.
// Nil gates are skipped.
func AllGates(gates ...tracker.SessionGate) tracker.SessionGate {
	var g allGates
	for _, gate := range gates {
		if gate != nil {
			g = append(g, gate)
		}
	}
	return g
}

type allGates []tracker.SessionGate

func (g allGates) IsSessionActive() bool {
	for _, gate := range g {
		if !gate.IsSessionActive() {
			return false
		}
	}
	return len(g) > 0
}
