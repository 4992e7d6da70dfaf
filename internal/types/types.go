package types

import "raven-chat/internal/models"

type CreateRoomRequest struct {
	Name string `json:"name" validate:"required,max=64"`
}

type HistoryQuery struct {
	Name   string `param:"name"`
	After  int64  `query:"after" validate:"gte=0"`
	Before int64  `query:"before" validate:"gte=0"`
	Limit  int    `query:"limit" validate:"gte=0,lte=1000"`
}

type RoomDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatorID string `json:"creatorId"`
	Status    string `json:"status"`
}

type MessageDTO struct {
	TimeSent int64  `json:"timeSent"`
	Sender   string `json:"sender"`
	Action   string `json:"action"`
	Message  string `json:"message"`
}

type HistoryResponse struct {
	RoomName string       `json:"roomName"`
	Messages []MessageDTO `json:"messages"`
}

func NewRoomDTO(r models.Room) RoomDTO {
	return RoomDTO{
		ID:        r.ID,
		Name:      r.Name,
		CreatorID: r.CreatorID,
		Status:    string(r.Status),
	}
}

func NewMessageDTO(m models.Message) MessageDTO {
	return MessageDTO{
		TimeSent: m.TimeSent,
		Sender:   m.Sender,
		Action:   m.Action.WireAction(),
		Message:  m.Body,
	}
}
