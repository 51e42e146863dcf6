// Package client provides WebSocket and HTTP clients for the GilsTracker
// daemon. Payload types are the daemon's own wire types.
package client

import (
	"encoding/json"

	"github.com/TheNickoos/GilsTracker/internal/config"
	"github.com/TheNickoos/GilsTracker/internal/game"
	"github.com/TheNickoos/GilsTracker/internal/session"
	"github.com/TheNickoos/GilsTracker/internal/tracker"
	"github.com/TheNickoos/GilsTracker/internal/ws"
)

// MessageType identifies the kind of WebSocket message.
type MessageType = ws.MessageType

const (
	MsgSnapshot = ws.MsgSnapshot
	MsgChange   = ws.MsgChange
	MsgConfig   = ws.MsgConfig
	MsgError    = ws.MsgError
)

// WSMessage is the envelope for all WebSocket messages. The payload is
// decoded once the type is known.
type WSMessage struct {
	Type    MessageType     `json:"type"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

type (
	Summary         = session.Summary
	Change          = tracker.Change
	Display         = config.DisplayConfig
	Health          = game.Health
	SnapshotPayload = ws.SnapshotPayload
	ChangePayload   = ws.ChangePayload
	ConfigPayload   = ws.ConfigPayload
	ErrorPayload    = ws.ErrorPayload
)

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status  string  `json:"status"`
	Clients int     `json:"clients"`
	Source  *Health `json:"source,omitempty"`
}
