// Package service connects the gil tracker to the websocket server, the
// session history and the notification sinks.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/TheNickoos/GilsTracker/internal/config"
	"github.com/TheNickoos/GilsTracker/internal/game"
	"github.com/TheNickoos/GilsTracker/internal/logging"
	"github.com/TheNickoos/GilsTracker/internal/notify"
	"github.com/TheNickoos/GilsTracker/internal/session"
	"github.com/TheNickoos/GilsTracker/internal/tracker"
	"github.com/TheNickoos/GilsTracker/internal/ws"
	"github.com/sirupsen/logrus"
)

// HealthFunc reports the health of the game data source. It may return nil
// when the source does not track health.
type HealthFunc func() *game.Health

// Service owns the session-level view of a Tracker.
type Service struct {
	tracker *tracker.Tracker
	history *session.History
	now     func() time.Time
	log     *logrus.Entry

	mu          sync.RWMutex
	cfg         *config.Config
	cfgPath     string
	broadcaster *ws.Broadcaster
	dispatcher  *notify.Dispatcher
	health      HealthFunc

	// historyStart is the baseline anchor time the recorded history
	// belongs to. A different anchor means the session was reset.
	histMu       sync.Mutex
	historyStart time.Time

	lastStatus session.Status
	unobserve  func()
}

var _ ws.Backend = (*Service)(nil)

// Option configures a Service.
type Option func(*Service)

// WithDispatcher forwards every change to d.
func WithDispatcher(d *notify.Dispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

// WithHealth sets the source health reporter.
func WithHealth(fn HealthFunc) Option {
	return func(s *Service) { s.health = fn }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a Service observing tr. cfgPath is where display changes are
// persisted; an empty path keeps them in memory only.
func New(tr *tracker.Tracker, cfg *config.Config, cfgPath string, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Service{
		tracker: tr,
		history: session.NewHistory(cfg.Broadcast.HistorySize),
		now:     time.Now,
		log:     logging.NewLogger("service"),
		cfg:     cfg.Clone(),
		cfgPath: cfgPath,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.unobserve = tr.Observe(s.handleChange)
	return s
}

// SetBroadcaster attaches the websocket broadcaster. It is separate from New
// because the broadcaster itself needs Snapshot.
func (s *Service) SetBroadcaster(b *ws.Broadcaster) {
	s.mu.Lock()
	s.broadcaster = b
	s.mu.Unlock()
}

// Close stops observing the tracker.
func (s *Service) Close() {
	if s.unobserve != nil {
		s.unobserve()
	}
}

func (s *Service) handleChange(c tracker.Change) {
	s.mu.RLock()
	b, d := s.broadcaster, s.dispatcher
	s.mu.RUnlock()

	// Sinks get every change, including one from a session reset mid-tick.
	if d != nil {
		d.Handle(c)
	}

	// A reset between the tick and this handler leaves c describing a
	// session that no longer exists.
	st := s.tracker.Snapshot()
	if !st.Tracking {
		s.log.WithField("delta", c.Delta).Debug("Dropping change from a reset session")
		return
	}

	s.histMu.Lock()
	if !st.StartedAt.Equal(s.historyStart) {
		s.history.Clear()
		s.historyStart = st.StartedAt
	}
	s.history.Add(c)
	s.histMu.Unlock()

	if b != nil {
		b.QueueChange(c, session.FromState(st, s.now()))
	}
}

// Summary returns the current session summary.
func (s *Service) Summary() session.Summary {
	return session.FromState(s.tracker.Snapshot(), s.now())
}

// History returns the changes recorded for the current session, oldest
// first.
func (s *Service) History() []tracker.Change {
	st := s.tracker.Snapshot()

	s.histMu.Lock()
	defer s.histMu.Unlock()
	if !st.Tracking || !st.StartedAt.Equal(s.historyStart) {
		s.history.Clear()
		return []tracker.Change{}
	}
	return s.history.All()
}

func (s *Service) Health() *game.Health {
	s.mu.RLock()
	fn := s.health
	s.mu.RUnlock()
	if fn == nil {
		return nil
	}
	return fn()
}

// Reset discards the session baseline and history and pushes a fresh
// snapshot to clients.
func (s *Service) Reset() {
	s.tracker.ResetBaseline()

	s.histMu.Lock()
	s.history.Clear()
	s.historyStart = time.Time{}
	s.histMu.Unlock()

	s.broadcastSnapshot()
}

func (s *Service) Display() config.DisplayConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Display
}

// SetDisplay applies display preferences, persists them when a config path
// is set, and announces them to clients.
func (s *Service) SetDisplay(d config.DisplayConfig) error {
	s.mu.Lock()
	next := s.cfg.Clone()
	next.Display = d
	if s.cfgPath != "" {
		if err := next.Save(s.cfgPath); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("save display config: %w", err)
		}
	}
	s.cfg = next
	b := s.broadcaster
	s.mu.Unlock()

	s.log.WithField("show_status_entry", d.ShowStatusEntry).Info("Display config updated")
	if b != nil {
		b.BroadcastConfig(d)
		b.BroadcastSnapshot()
	}
	return nil
}

// ApplyConfig hot-applies a reloaded config: the poll interval and the
// display preferences. Other settings need a restart.
func (s *Service) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	s.tracker.SetInterval(cfg.Tracker.PollInterval)

	s.mu.Lock()
	changed := s.cfg.Display != cfg.Display
	next := cfg.Clone()
	s.cfg = next
	b := s.broadcaster
	s.mu.Unlock()

	if changed && b != nil {
		b.BroadcastConfig(next.Display)
		b.BroadcastSnapshot()
	}
}

// Snapshot builds the full state sent to websocket clients.
func (s *Service) Snapshot() ws.SnapshotPayload {
	return ws.SnapshotPayload{
		Session: s.Summary(),
		Display: s.Display(),
		History: s.History(),
		Health:  s.Health(),
	}
}

func (s *Service) broadcastSnapshot() {
	s.mu.RLock()
	b := s.broadcaster
	s.mu.RUnlock()
	if b != nil {
		b.BroadcastSnapshot()
	}
}

// Run watches for session status transitions (login, first read, logout)
// and pushes a snapshot for each, until ctx is cancelled. interval <= 0
// uses the tracker's poll interval.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = s.tracker.Interval()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.checkStatus()
		}
	}
}

func (s *Service) checkStatus() {
	status := s.Summary().Status
	if status == s.lastStatus {
		return
	}
	s.log.WithFields(logrus.Fields{"from": s.lastStatus, "to": status}).Info("Session status changed")
	s.lastStatus = status
	if status != session.Tracking {
		s.histMu.Lock()
		s.history.Clear()
		s.histMu.Unlock()
	}
	s.broadcastSnapshot()
}
