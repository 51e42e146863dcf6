package mock

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/TheNickoos/GilsTracker/internal/game"
	"github.com/TheNickoos/GilsTracker/internal/logging"
	"github.com/TheNickoos/GilsTracker/internal/tracker"
	"github.com/sirupsen/logrus"
)

// Phase is the scripted activity of the simulated player.
type Phase string

const (
	PhaseOffline  Phase = "offline"
	PhaseLoading  Phase = "loading"
	PhaseFarming  Phase = "farming"
	PhaseShopping Phase = "shopping"
	PhaseZoning   Phase = "zoning"
)

// script is one login-to-logout cycle, one entry per step.
var script = []Phase{
	PhaseOffline, PhaseOffline,
	PhaseLoading,
	PhaseFarming, PhaseFarming, PhaseFarming, PhaseFarming,
	PhaseFarming, PhaseFarming, PhaseFarming, PhaseFarming,
	PhaseShopping, PhaseShopping, PhaseShopping, PhaseShopping,
	PhaseZoning,
	PhaseFarming, PhaseFarming, PhaseFarming, PhaseFarming, PhaseFarming,
	PhaseShopping,
}

// Earning and spending activities, picked at random within a phase.
var (
	earnings = []string{"quest reward", "vendor sale", "retainer venture", "market sale"}
	costs    = []string{"repair", "teleport fee", "market purchase", "vendor purchase"}
)

// CycleLength is the number of steps in one scripted session.
var CycleLength = len(script)

// Client simulates a game client for demos and development: a player logs
// in, farms and spends gil, zones, and logs out, then the cycle repeats. It
// serves as both the session gate and the gil source.
type Client struct {
	step time.Duration
	log  *logrus.Entry

	mu        sync.Mutex
	rng       *rand.Rand
	tick      int
	phase     Phase
	loggedIn  bool
	loaded    bool
	gil       int64
	event     string
	onStepped func(Phase)
}

var (
	_ tracker.SessionGate    = (*Client)(nil)
	_ tracker.SnapshotSource = (*Client)(nil)
)

// NewClient returns a simulated client. The same seed always produces the
// same sequence of gil values.
func NewClient(seed int64, step time.Duration) *Client {
	if step <= 0 {
		step = time.Second
	}
	return &Client{
		step:  step,
		log:   logging.NewLogger("mock"),
		rng:   rand.New(rand.NewSource(seed)),
		phase: PhaseOffline,
	}
}

// OnStep registers a callback invoked after every scripted step.
func (c *Client) OnStep(fn func(Phase)) {
	c.mu.Lock()
	c.onStepped = fn
	c.mu.Unlock()
}

// IsSessionActive reports whether the simulated player is logged in.
func (c *Client) IsSessionActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

// ReadTrackedQuantity returns the simulated gil, or ErrUnavailable while
// the inventory is not loaded.
func (c *Client) ReadTrackedQuantity() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loggedIn || !c.loaded {
		return 0, tracker.ErrUnavailable
	}
	return c.gil, nil
}

// Phase returns the current scripted phase.
func (c *Client) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// LastEvent describes what moved gil on the most recent step, or "" if
// nothing did.
func (c *Client) LastEvent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.event
}

// Inventory renders the simulated state as an inventory, or nil when none
// is loaded.
func (c *Client) Inventory() game.Inventory {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loggedIn || !c.loaded {
		return nil
	}
	return game.Inventory{
		game.CurrencyContainer: {{BaseItemID: game.GilItemID, Quantity: c.gil}},
	}
}

// Step advances the script by one entry.
func (c *Client) Step() Phase {
	c.mu.Lock()
	phase := script[c.tick%len(script)]
	c.tick++
	c.apply(phase)
	c.phase = phase
	cb := c.onStepped
	gil, event := c.gil, c.event
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"phase": phase, "gil": gil, "event": event}).Debug("mock step")
	if cb != nil {
		cb(phase)
	}
	return phase
}

// apply mutates state for phase. Caller must hold c.mu.
func (c *Client) apply(phase Phase) {
	c.event = ""
	switch phase {
	case PhaseOffline:
		c.loggedIn = false
		c.loaded = false
	case PhaseLoading:
		c.loggedIn = true
		c.loaded = false
		// A fresh login may start from a different balance, e.g. an alt.
		c.gil = 50_000 + c.rng.Int63n(450_000)
	case PhaseFarming:
		c.loggedIn = true
		c.loaded = true
		// One step in five drops nothing.
		if c.rng.Intn(5) > 0 {
			c.gil += 50 + c.rng.Int63n(1450)
			c.event = earnings[c.rng.Intn(len(earnings))]
		}
	case PhaseShopping:
		c.loggedIn = true
		c.loaded = true
		spend := 100 + c.rng.Int63n(4900)
		if spend > c.gil {
			spend = c.gil
		}
		c.gil -= spend
		if spend > 0 {
			c.event = costs[c.rng.Intn(len(costs))]
		}
	case PhaseZoning:
		c.loggedIn = true
		c.loaded = false
	}
}

// Run steps the script until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.step)
	defer ticker.Stop()

	c.log.WithField("step", c.step).Info("Mock game client started")
	for {
		select {
		case <-ctx.Done():
			c.log.Info("Mock game client stopped")
			return nil
		case <-ticker.C:
			c.Step()
		}
	}
}
