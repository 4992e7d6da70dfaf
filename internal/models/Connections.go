package models

// Connection binds one gateway connection to a room for its whole lifetime.
type Connection struct {
	ConnectionID string `json:"connectionId"`
	RoomID       string `json:"roomId"`
	Username     string `json:"username"`
}
