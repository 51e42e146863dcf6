package game

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/TheNickoos/GilsTracker/internal/logging"
	"github.com/TheNickoos/GilsTracker/internal/tracker"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Record is one line of the client state feed. The game-side exporter
// appends a record whenever login state or inventory changes.
type Record struct {
	Time      time.Time `json:"time"`
	LoggedIn  bool      `json:"logged_in"`
	Player    string    `json:"player,omitempty"`
	Inventory Inventory `json:"inventory,omitempty"`
}

// Feed tails a JSONL client state file and serves the latest record as a
// tracker.SessionGate and tracker.SnapshotSource. IsSessionActive and
// ReadTrackedQuantity only read the cached record, so they never block on I/O.
type Feed struct {
	path string
	poll time.Duration
	log  *logrus.Entry

	// refreshMu serializes Refresh; offset and file are only touched under it.
	refreshMu sync.Mutex
	offset    int64
	file      os.FileInfo

	mu   sync.RWMutex
	last *Record

	health *sourceHealth
}

// NewFeed returns a Feed for path. poll is the fallback re-read interval used
// alongside file notifications.
func NewFeed(path string, poll time.Duration) *Feed {
	if poll <= 0 {
		poll = time.Second
	}
	return &Feed{
		path:   path,
		poll:   poll,
		log:    logging.NewLogger("feed"),
		health: newSourceHealth(DefaultHealthThreshold),
	}
}

// Path returns the feed file path.
func (f *Feed) Path() string { return f.path }

// IsSessionActive reports whether the latest record has a logged-in player.
func (f *Feed) IsSessionActive() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.last != nil && f.last.LoggedIn
}

// ReadTrackedQuantity returns the gil quantity from the latest record.
func (f *Feed) ReadTrackedQuantity() (int64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.last == nil || !f.last.LoggedIn {
		return 0, tracker.ErrUnavailable
	}
	if f.last.Inventory == nil {
		return 0, fmt.Errorf("inventory not loaded: %w", tracker.ErrUnavailable)
	}
	return f.last.Inventory.Gil()
}

// Latest returns a copy of the most recent record, if any.
func (f *Feed) Latest() (Record, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.last == nil {
		return Record{}, false
	}
	return *f.last, true
}

// Health reports the feed's read and parse failure state.
func (f *Feed) Health() Health {
	return f.health.snapshot()
}

// Refresh reads any complete lines appended since the last call. A missing
// file means the client is not running, which reads as logged out. A file
// that shrank, or was replaced by a different file, is re-read from the start.
func (f *Feed) Refresh() error {
	f.refreshMu.Lock()
	defer f.refreshMu.Unlock()

	info, err := os.Stat(f.path)
	if errors.Is(err, os.ErrNotExist) {
		f.setLatest(nil)
		f.offset = 0
		f.file = nil
		f.health.recordReadSuccess()
		return nil
	}
	if err != nil {
		f.health.recordReadFailure(err)
		return fmt.Errorf("stat feed: %w", err)
	}
	switch {
	case f.file != nil && !os.SameFile(f.file, info):
		f.log.WithFields(logrus.Fields{"offset": f.offset, "size": info.Size()}).Info("Feed replaced; re-reading from start")
		f.offset = 0
		f.setLatest(nil)
	case info.Size() < f.offset:
		f.log.WithFields(logrus.Fields{"offset": f.offset, "size": info.Size()}).Info("Feed truncated; re-reading from start")
		f.offset = 0
		f.setLatest(nil)
	}
	f.file = info
	if info.Size() == f.offset {
		f.health.recordReadSuccess()
		return nil
	}

	rec, newOffset, err := parseFeed(f.path, f.offset, f.health)
	if err != nil {
		f.health.recordReadFailure(err)
		return err
	}
	f.health.recordReadSuccess()
	f.offset = newOffset
	if rec != nil {
		f.setLatest(rec)
	}
	return nil
}

func (f *Feed) setLatest(rec *Record) {
	f.mu.Lock()
	prev := f.last
	f.last = rec
	f.mu.Unlock()

	prevIn := prev != nil && prev.LoggedIn
	nowIn := rec != nil && rec.LoggedIn
	switch {
	case nowIn && !prevIn:
		f.log.WithField("player", rec.Player).Info("Player logged in")
	case !nowIn && prevIn:
		f.log.Info("Player logged out")
	}
}

// parseFeed reads complete lines from offset and returns the last valid
// record along with the offset just past the last complete line. A trailing
// partial line is left for the next read. Malformed lines are skipped.
func parseFeed(path string, offset int64, health *sourceHealth) (*Record, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, offset, err
	}
	defer file.Close()

	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			return nil, offset, err
		}
	}

	var last *Record
	reader := bufio.NewReader(file)
	parsedOffset := offset

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return last, parsedOffset, err
		}
		if len(line) == 0 || line[len(line)-1] != '\n' {
			break
		}
		parsedOffset += int64(len(line))

		data := line[:len(line)-1]
		if len(data) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			if health != nil {
				health.recordParseFailure(fmt.Errorf("feed line at offset %d: %w", parsedOffset-int64(len(line)), err))
			}
			continue
		}
		if health != nil {
			health.recordParseSuccess()
		}
		last = &rec
	}
	return last, parsedOffset, nil
}

// Run keeps the cache current until ctx is cancelled. File notifications
// trigger an immediate refresh; the poll interval covers filesystems where
// notifications are unreliable.
func (f *Feed) Run(ctx context.Context) error {
	if err := f.Refresh(); err != nil {
		f.log.WithError(err).Warn("Initial feed read failed")
	}

	var events <-chan fsnotify.Event
	var errs <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if addErr := watcher.Add(filepath.Dir(f.path)); addErr != nil {
			f.log.WithError(addErr).Warn("Cannot watch feed directory; polling only")
			watcher.Close()
			watcher = nil
		}
	} else {
		f.log.WithError(err).Warn("File notifications unavailable; polling only")
		watcher = nil
	}
	if watcher != nil {
		defer watcher.Close()
		events = watcher.Events
		errs = watcher.Errors
	}

	ticker := time.NewTicker(f.poll)
	defer ticker.Stop()

	f.log.WithField("path", f.path).Info("Feed started")
	for {
		select {
		case <-ctx.Done():
			f.log.Info("Feed stopped")
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != filepath.Clean(f.path) {
				continue
			}
			f.refreshLogged()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			f.log.WithError(err).Warn("Feed watcher error")
		case <-ticker.C:
			f.refreshLogged()
		}
	}
}

func (f *Feed) refreshLogged() {
	if err := f.Refresh(); err != nil {
		f.log.WithError(err).Debug("Feed refresh failed")
	}
}
