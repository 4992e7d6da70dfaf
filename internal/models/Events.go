package models

// Event is a room event as pushed to every member of the room.
type Event struct {
	Action   Action `json:"-"`
	RoomID   string `json:"-"`
	RoomName string `json:"roomName"`
	Message  string `json:"message"`
	Sender   string `json:"sender"`
	TimeSent int64  `json:"timeSent"`
}

// Payload is the JSON wire shape of an Event.
type Payload struct {
	Action   string `json:"action"`
	RoomName string `json:"roomName"`
	Message  string `json:"message"`
	TimeSent int64  `json:"timeSent"`
	Sender   string `json:"sender"`
}

func (e Event) Payload() Payload {
	return Payload{
		Action:   e.Action.WireAction(),
		RoomName: e.RoomName,
		Message:  e.Message,
		TimeSent: e.TimeSent,
		Sender:   e.Sender,
	}
}

// Record is the history entry an event is logged as.
func (e Event) Record() Message {
	return Message{
		RoomID:   e.RoomID,
		TimeSent: e.TimeSent,
		Sender:   e.Sender,
		Action:   e.Action,
		Body:     e.Message,
	}
}

// WithRecord returns the event carrying the key the record was stored under.
func (e Event) WithRecord(m Message) Event {
	e.TimeSent = m.TimeSent
	return e
}
