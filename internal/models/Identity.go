package models

// Identity is what the authorizer vouches for when a connection is
// established: who is connecting and to which room.
type Identity struct {
	Username string `json:"username"`
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
}

func (i Identity) Complete() bool {
	return i.Username != "" && i.RoomID != "" && i.RoomName != ""
}
