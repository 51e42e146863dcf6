package game

import (
	"sync"
	"time"
)

// HealthStatus summarises how reliably a data source is being read.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusFailed   HealthStatus = "failed"
)

// DefaultHealthThreshold is the number of consecutive failures after which a
// source is reported degraded (parse errors) or failed (read errors).
const DefaultHealthThreshold = 3

// Health is a point-in-time copy of a source's failure counters.
type Health struct {
	Status        HealthStatus `json:"status"`
	ReadFailures  int          `json:"readFailures"`
	ParseFailures int          `json:"parseFailures"`
	LastError     string       `json:"lastError,omitempty"`
}

// sourceHealth tracks consecutive failure counts for a source. Fields are
// protected by mu because the feed goroutine writes them while the
// broadcaster reads them.
type sourceHealth struct {
	mu            sync.Mutex
	threshold     int
	readFailures  int
	lastReadErr   string
	lastReadFail  time.Time
	parseFailures int
	lastParseErr  string
	lastParseFail time.Time
}

func newSourceHealth(threshold int) *sourceHealth {
	if threshold <= 0 {
		threshold = DefaultHealthThreshold
	}
	return &sourceHealth{threshold: threshold}
}

func (h *sourceHealth) recordReadSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readFailures = 0
	h.lastReadErr = ""
}

func (h *sourceHealth) recordReadFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readFailures++
	h.lastReadErr = err.Error()
	h.lastReadFail = time.Now()
}

func (h *sourceHealth) recordParseSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.parseFailures = 0
}

func (h *sourceHealth) recordParseFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.parseFailures++
	h.lastParseErr = err.Error()
	h.lastParseFail = time.Now()
}

func (h *sourceHealth) snapshot() Health {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Health{
		Status:        h.statusLocked(),
		ReadFailures:  h.readFailures,
		ParseFailures: h.parseFailures,
		LastError:     h.lastErrorLocked(),
	}
}

// statusLocked computes health status. Caller must hold h.mu.
func (h *sourceHealth) statusLocked() HealthStatus {
	if h.readFailures >= h.threshold {
		return StatusFailed
	}
	if h.parseFailures >= h.threshold {
		return StatusDegraded
	}
	return StatusHealthy
}

// lastErrorLocked prefers whichever error occurred more recently.
func (h *sourceHealth) lastErrorLocked() string {
	if h.lastReadErr != "" && (h.lastParseErr == "" || h.lastReadFail.After(h.lastParseFail)) {
		return h.lastReadErr
	}
	return h.lastParseErr
}
