// Package notify forwards gil changes to external sinks (AMQP, Redis) off
// the tick path.
package notify

import (
	"encoding/json"
	"time"

	"github.com/TheNickoos/GilsTracker/internal/tracker"
)

// EventGilChanged is the Type of every GilChangedMessage.
const EventGilChanged = "gil.changed"

// GilChangedMessage is the JSON body published for each observed change.
type GilChangedMessage struct {
	Type      string    `json:"type"`
	Net       int64     `json:"net"`
	Gained    int64     `json:"gained"`
	Spent     int64     `json:"spent"`
	Delta     int64     `json:"delta"`
	Current   int64     `json:"current"`
	Timestamp time.Time `json:"timestamp"`
}

// NewGilChangedMessage builds the message for c.
func NewGilChangedMessage(c tracker.Change) *GilChangedMessage {
	ts := c.At
	if ts.IsZero() {
		ts = time.Now()
	}
	return &GilChangedMessage{
		Type:      EventGilChanged,
		Net:       c.Net,
		Gained:    c.Gained,
		Spent:     c.Spent,
		Delta:     c.Delta,
		Current:   c.Current,
		Timestamp: ts,
	}
}

// ToJSON converts the message to JSON bytes
func (m *GilChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// GilChangedMessageFromJSON decodes a message published by this package.
func GilChangedMessageFromJSON(data []byte) (*GilChangedMessage, error) {
	var msg GilChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
