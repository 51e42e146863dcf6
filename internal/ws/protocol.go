package ws

import (
	"github.com/TheNickoos/GilsTracker/internal/config"
	"github.com/TheNickoos/GilsTracker/internal/game"
	"github.com/TheNickoos/GilsTracker/internal/session"
	"github.com/TheNickoos/GilsTracker/internal/tracker"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgChange   MessageType = "change"
	MsgConfig   MessageType = "config"
	MsgError    MessageType = "error"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Seq     uint64      `json:"seq"`
	Payload interface{} `json:"payload"`
}

type SnapshotPayload struct {
	Session session.Summary      `json:"session"`
	Display config.DisplayConfig `json:"display"`
	History []tracker.Change     `json:"history"`
	Health  *game.Health         `json:"health,omitempty"`
}

// ChangePayload carries every change observed since the previous change
// message, oldest first, and the session totals after the last of them.
type ChangePayload struct {
	Changes []tracker.Change `json:"changes"`
	Session session.Summary  `json:"session"`
}

type ConfigPayload struct {
	Display config.DisplayConfig `json:"display"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
