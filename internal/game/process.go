package game

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/TheNickoos/GilsTracker/internal/logging"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"
)

// ProcessLister returns the names of running processes.
type ProcessLister func(ctx context.Context) ([]string, error)

// ProcessGate reports a session as possible only while the game client
// process is running. The process table is scanned in the background by
// Run; IsSessionActive returns the cached result.
type ProcessGate struct {
	name    string
	refresh time.Duration
	list    ProcessLister
	log     *logrus.Entry

	running atomic.Bool
}

// NewProcessGate watches for a process whose name matches name
// (case-insensitive, ".exe" suffix ignored).
func NewProcessGate(name string, refresh time.Duration) *ProcessGate {
	if refresh <= 0 {
		refresh = 2 * time.Second
	}
	return &ProcessGate{
		name:    normalizeProcessName(name),
		refresh: refresh,
		list:    listProcessNames,
		log:     logging.NewLogger("process-gate"),
	}
}

// WithLister replaces the process table reader, mainly for tests.
func (g *ProcessGate) WithLister(l ProcessLister) *ProcessGate {
	g.list = l
	return g
}

// IsSessionActive reports whether the client process was running at the
// last scan.
func (g *ProcessGate) IsSessionActive() bool {
	return g.running.Load()
}

// Scan checks the process table once.
func (g *ProcessGate) Scan(ctx context.Context) error {
	names, err := g.list(ctx)
	if err != nil {
		return err
	}
	found := false
	for _, n := range names {
		if normalizeProcessName(n) == g.name {
			found = true
			break
		}
	}
	if prev := g.running.Swap(found); prev != found {
		g.log.WithFields(logrus.Fields{"process": g.name, "running": found}).Info("Game client process state changed")
	}
	return nil
}

// Run scans at the refresh interval until ctx is cancelled.
func (g *ProcessGate) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.refresh)
	defer ticker.Stop()

	for {
		if err := g.Scan(ctx); err != nil && ctx.Err() == nil {
			g.log.WithError(err).Debug("Process scan failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func listProcessNames(ctx context.Context) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(procs))
	for _, p := range procs {
		// Processes can exit between listing and inspection.
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func normalizeProcessName(name string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".exe")
}
