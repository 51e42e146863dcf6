package session

import (
	"encoding/json"
	"time"

	"github.com/TheNickoos/GilsTracker/internal/tracker"
)

// Status is the coarse session state shown to users.
type Status int

const (
	LoggedOut Status = iota
	Initializing
	Tracking
)

var statusNames = map[Status]string{
	LoggedOut:    "logged_out",
	Initializing: "initializing",
	Tracking:     "tracking",
}

var statusFromName = map[string]Status{
	"logged_out":   LoggedOut,
	"initializing": Initializing,
	"tracking":     Tracking,
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if v, ok := statusFromName[n]; ok {
		*s = v
	}
	return nil
}

// Summary is the wire and display form of a tracker state.
type Summary struct {
	Status    Status     `json:"status"`
	LoggedIn  bool       `json:"loggedIn"`
	Tracking  bool       `json:"tracking"`
	Baseline  int64      `json:"baseline"`
	Current   int64      `json:"current"`
	Net       int64      `json:"net"`
	Gained    int64      `json:"gained"`
	Spent     int64      `json:"spent"`
	PerHour   int64      `json:"perHour"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// FromState builds a Summary, computing the hourly rate as of now.
func FromState(st tracker.State, now time.Time) Summary {
	s := Summary{
		LoggedIn: st.Active,
		Tracking: st.Tracking,
	}
	switch {
	case st.Tracking:
		s.Status = Tracking
	case st.Active:
		s.Status = Initializing
	default:
		s.Status = LoggedOut
	}
	if !st.Tracking {
		return s
	}

	s.Baseline = st.Baseline
	s.Current = st.Current
	s.Net = st.NetDelta
	s.Gained = st.Gained
	s.Spent = st.Spent
	if !st.StartedAt.IsZero() {
		started := st.StartedAt
		s.StartedAt = &started
		s.PerHour = PerHour(st.NetDelta, now.Sub(started))
	}
	if !st.ChangedAt.IsZero() {
		changed := st.ChangedAt
		s.UpdatedAt = &changed
	}
	return s
}

// PerHour extrapolates net over elapsed to a whole-gil hourly rate,
// truncating toward zero. It is 0 when no time has elapsed.
func PerHour(net int64, elapsed time.Duration) int64 {
	if elapsed <= 0 {
		return 0
	}
	return int64(float64(net) / elapsed.Hours())
}
