// Package tracker implements the gil session state machine. A Tracker is
// driven by a host Ticker at an arbitrary rate, throttles itself to at most
// one processed tick per poll interval, anchors a baseline on the first
// successful read of a session, and accumulates gains and losses from the
// per-tick differences that follow.
package tracker

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultPollInterval is the minimum spacing between processed ticks.
const DefaultPollInterval = 500 * time.Millisecond

// ErrUnavailable reports that the tracked quantity could not be read this
// tick (inventory not loaded, zoning, missing currency entry).
var ErrUnavailable = errors.New("tracked quantity unavailable")

// SessionGate reports whether a player session is currently active.
type SessionGate interface {
	IsSessionActive() bool
}

// SnapshotSource reads the tracked currency quantity. Implementations must
// be fast and non-blocking: they are called from the host tick context.
// Any returned error is treated as ErrUnavailable.
type SnapshotSource interface {
	ReadTrackedQuantity() (int64, error)
}

// Ticker is the host's periodic update signal. Subscribe registers fn to be
// called on every host tick and returns a function that removes it.
type Ticker interface {
	Subscribe(fn func()) (unsubscribe func())
}

// Clock supplies the current time. Readings from time.Now carry a monotonic
// component, so elapsed-time comparisons are immune to wall clock steps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// ChangeFunc receives the session totals after a gil change.
type ChangeFunc func(net, gained, spent int64)

// Change describes a single observed gil change.
type Change struct {
	Net     int64     `json:"net"`
	Gained  int64     `json:"gained"`
	Spent   int64     `json:"spent"`
	Delta   int64     `json:"delta"`
	Current int64     `json:"current"`
	At      time.Time `json:"at"`
}

// State is a consistent copy of the tracker's session state.
type State struct {
	Active    bool // session gate result at the last processed tick
	Tracking  bool
	Baseline  int64
	Current   int64
	NetDelta  int64
	Gained    int64
	Spent     int64
	StartedAt time.Time // when the baseline was anchored
	ChangedAt time.Time // when the last change was observed
}

type subscriber struct {
	id int
	fn func(Change)
}

// Tracker is the gil session state machine.
type Tracker struct {
	gate   SessionGate
	source SnapshotSource
	clock  Clock
	log    *logrus.Entry

	interval atomic.Int64 // nanoseconds
	closed   atomic.Bool

	// tickMu serializes Tick and is held while subscribers run, which keeps
	// notifications in observation order.
	tickMu   sync.Mutex
	lastPoll time.Time
	polled   bool

	// mu guards the session state below. It is never held while calling
	// out to subscribers, so handlers may call ResetBaseline or accessors.
	mu        sync.Mutex
	active    bool
	tracking  bool
	baseline  int64
	current   int64
	net       int64
	gained    int64
	spent     int64
	startedAt time.Time
	changedAt time.Time

	subMu  sync.Mutex
	subs   []subscriber
	nextID int

	unsubscribe func()
	closeOnce   sync.Once
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithInterval overrides the throttle interval. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.interval.Store(int64(d))
		}
	}
}

// WithClock replaces the time source, mainly for tests.
func WithClock(c Clock) Option {
	return func(t *Tracker) {
		if c != nil {
			t.clock = c
		}
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *logrus.Entry) Option {
	return func(t *Tracker) {
		if l != nil {
			t.log = l
		}
	}
}

// New creates a Tracker and, when ticker is non-nil, subscribes Tick to it.
func New(gate SessionGate, source SnapshotSource, ticker Ticker, opts ...Option) *Tracker {
	t := &Tracker{
		gate:   gate,
		source: source,
		clock:  systemClock{},
		log:    logrus.NewEntry(logrus.StandardLogger()).WithField("component", "tracker"),
	}
	t.interval.Store(int64(DefaultPollInterval))
	for _, opt := range opts {
		opt(t)
	}
	if ticker != nil {
		t.unsubscribe = ticker.Subscribe(t.Tick)
	}
	return t
}

// Interval returns the current throttle interval.
func (t *Tracker) Interval() time.Duration {
	return time.Duration(t.interval.Load())
}

// SetInterval changes the throttle interval; it applies from the next tick.
func (t *Tracker) SetInterval(d time.Duration) {
	if d > 0 {
		t.interval.Store(int64(d))
	}
}

// Close unsubscribes from the Ticker. After Close, Tick does nothing.
func (t *Tracker) Close() {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		if t.unsubscribe != nil {
			t.unsubscribe()
		}
		t.log.Debug("tracker closed")
	})
}

// Tick is the host tick entry point. It returns immediately unless the
// throttle interval has elapsed since the last processed tick.
func (t *Tracker) Tick() {
	if t.closed.Load() {
		return
	}

	t.tickMu.Lock()
	defer t.tickMu.Unlock()

	now := t.clock.Now()
	if t.polled && now.Sub(t.lastPoll) < t.Interval() {
		return
	}
	t.polled = true
	t.lastPoll = now

	active, ok := t.sessionActive()
	if !ok {
		return
	}
	if !active {
		t.mu.Lock()
		t.active = false
		wasTracking := t.resetLocked()
		t.mu.Unlock()
		if wasTracking {
			t.log.Info("Session ended; gil tracking reset")
		}
		return
	}

	value, err := t.readQuantity()

	t.mu.Lock()
	t.active = true
	if err != nil {
		t.mu.Unlock()
		if !errors.Is(err, ErrUnavailable) {
			t.log.WithError(err).Debug("gil read failed; skipping tick")
		}
		return
	}
	change, changed := t.advanceLocked(value, now)
	t.mu.Unlock()

	if changed {
		t.notify(change)
	}
}

// advanceLocked applies a successful read. Caller must hold t.mu.
func (t *Tracker) advanceLocked(value int64, now time.Time) (Change, bool) {
	if !t.tracking {
		t.tracking = true
		t.baseline = value
		t.current = value
		t.net = 0
		t.startedAt = now
		t.log.WithField("baseline", value).Info("Gil baseline set")
		return Change{}, false
	}

	diff := value - t.current
	if diff > 0 {
		t.gained += diff
	} else if diff < 0 {
		t.spent += -diff
	}
	t.current = value
	t.net = t.current - t.baseline

	if diff == 0 {
		return Change{}, false
	}
	t.changedAt = now
	return Change{
		Net:     t.net,
		Gained:  t.gained,
		Spent:   t.spent,
		Delta:   diff,
		Current: t.current,
		At:      now,
	}, true
}

// resetLocked wipes the session and reports whether it was tracking.
// Caller must hold t.mu.
func (t *Tracker) resetLocked() bool {
	was := t.tracking
	t.tracking = false
	t.baseline = 0
	t.current = 0
	t.net = 0
	t.gained = 0
	t.spent = 0
	t.startedAt = time.Time{}
	t.changedAt = time.Time{}
	return was
}

func (t *Tracker) sessionActive() (active, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			t.log.WithField("panic", r).Warn("session gate panicked; skipping tick")
			active, ok = false, false
		}
	}()
	return t.gate.IsSessionActive(), true
}

func (t *Tracker) readQuantity() (value int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, err = 0, fmt.Errorf("snapshot source panicked: %v", r)
		}
	}()
	return t.source.ReadTrackedQuantity()
}

// ResetBaseline forgets the current session. Tracking resumes with a new
// baseline on the next successful read. No notification is raised.
func (t *Tracker) ResetBaseline() {
	t.mu.Lock()
	t.resetLocked()
	t.mu.Unlock()
	t.log.Info("Gil baseline reset")
}

// Subscribe registers fn for change notifications and returns a function
// that removes it. fn runs synchronously in the tick context.
func (t *Tracker) Subscribe(fn ChangeFunc) (unsubscribe func()) {
	return t.Observe(func(c Change) { fn(c.Net, c.Gained, c.Spent) })
}

// Observe is like Subscribe but receives the full Change.
func (t *Tracker) Observe(fn func(Change)) (unsubscribe func()) {
	t.subMu.Lock()
	id := t.nextID
	t.nextID++
	t.subs = append(t.subs, subscriber{id: id, fn: fn})
	t.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.subMu.Lock()
			defer t.subMu.Unlock()
			for i, s := range t.subs {
				if s.id == id {
					t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (t *Tracker) notify(c Change) {
	t.subMu.Lock()
	subs := make([]subscriber, len(t.subs))
	copy(subs, t.subs)
	t.subMu.Unlock()

	for _, s := range subs {
		t.deliver(s, c)
	}
}

func (t *Tracker) deliver(s subscriber, c Change) {
	defer func() {
		if r := recover(); r != nil {
			t.log.WithField("panic", r).Error("gil change subscriber panicked")
		}
	}()
	s.fn(c)
}

// HasBaseline reports whether a session baseline is set.
func (t *Tracker) HasBaseline() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tracking
}

// CurrentValue returns the last observed quantity, if tracking.
func (t *Tracker) CurrentValue() (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current, t.tracking
}

// BaselineValue returns the session baseline, if tracking.
func (t *Tracker) BaselineValue() (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baseline, t.tracking
}

// NetDelta returns current minus baseline, or 0 when not tracking.
func (t *Tracker) NetDelta() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.net
}

// Gained returns the cumulative positive movement since the baseline.
func (t *Tracker) Gained() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gained
}

// Spent returns the cumulative negative movement since the baseline.
func (t *Tracker) Spent() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spent
}

// SessionActive reports the session gate result of the last processed tick.
func (t *Tracker) SessionActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Snapshot returns all session fields under a single lock acquisition.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State{
		Active:    t.active,
		Tracking:  t.tracking,
		Baseline:  t.baseline,
		Current:   t.current,
		NetDelta:  t.net,
		Gained:    t.gained,
		Spent:     t.spent,
		StartedAt: t.startedAt,
		ChangedAt: t.changedAt,
	}
}
