package models

import (
	"github.com/google/uuid"
)

// DefaultRoomNamespace is the UUID namespace room ids are derived under.
var DefaultRoomNamespace = uuid.MustParse("031548bd-10e5-460f-89d4-915896e06f65")

type RoomStatus string

const (
	RoomReady    RoomStatus = "ready"
	RoomDeleting RoomStatus = "deleting"
	RoomNotReady RoomStatus = "not_ready"
)

func (s RoomStatus) Valid() bool {
	switch s {
	case RoomReady, RoomDeleting, RoomNotReady:
		return true
	}
	return false
}

type Room struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	CreatorID string     `json:"creatorId"`
	Status    RoomStatus `json:"status"`
}

// Open reports whether the room may host connections and messages.
func (r *Room) Open() bool {
	return r.Status == RoomReady
}

// RoomID derives the stable id of a room from its name, so a lookup by
// name never needs a secondary index.
func RoomID(namespace uuid.UUID, name string) string {
	return uuid.NewSHA1(namespace, []byte(name)).String()
}
