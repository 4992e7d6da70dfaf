package models

import "time"

type Action string

const (
	ActionMessage    Action = "message"
	ActionConnect    Action = "connect"
	ActionDisconnect Action = "disconnect"
)

// ServerSender is the sender of synthetic presence messages.
const ServerSender = "$server"

// WireAction is the action tag clients see on the socket.
func (a Action) WireAction() string {
	switch a {
	case ActionConnect:
		return "$connect"
	case ActionDisconnect:
		return "$disconnect"
	default:
		return string(a)
	}
}

func (a Action) Valid() bool {
	switch a {
	case ActionMessage, ActionConnect, ActionDisconnect:
		return true
	}
	return false
}

// Message is one entry of a room's history, keyed by (RoomID, TimeSent).
type Message struct {
	RoomID   string `json:"roomId"`
	TimeSent int64  `json:"timeSent"`
	Sender   string `json:"sender"`
	Action   Action `json:"action"`
	Body     string `json:"body"`
}

// NowMillis reads the wall clock in milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
