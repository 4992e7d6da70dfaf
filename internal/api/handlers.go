package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"raven-chat/internal/middleware"
	"raven-chat/internal/models"
	"raven-chat/internal/rooms"
	"raven-chat/internal/types"
)

const requestTimeout = 5 * time.Second

type RoomService interface {
	ID(name string) string
	Create(ctx context.Context, name, creator string) (models.Room, error)
	Get(ctx context.Context, name string) (models.Room, error)
	List(ctx context.Context) ([]models.Room, error)
	Delete(ctx context.Context, name string) (bool, error)
}

type History interface {
	Query(ctx context.Context, roomID string, after, before int64, limit int) ([]models.Message, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	rooms   RoomService
	history History
	db      Pinger
}

func NewHandler(rooms RoomService, history History, db Pinger) *Handler {
	return &Handler{rooms: rooms, history: history, db: db}
}

// Register mounts the API on e. Middleware applies to the /v1 group only.
func (h *Handler) Register(e *echo.Echo, mws ...echo.MiddlewareFunc) {
	e.GET("/healthz", h.Health)

	v1 := e.Group("/v1", mws...)
	v1.GET("/rooms", h.ListRooms)
	v1.POST("/rooms", h.CreateRoom)
	v1.GET("/rooms/:name", h.GetRoom)
	v1.DELETE("/rooms/:name", h.DeleteRoom)
	v1.GET("/rooms/:name/messages", h.History)
}

func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		slog.Error("health check failed", "component", "api", "err", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListRooms(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	list, err := h.rooms.List(ctx)
	if err != nil {
		return internalError("list rooms", err)
	}

	out := make([]types.RoomDTO, 0, len(list))
	for _, r := range list {
		out = append(out, types.NewRoomDTO(r))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) CreateRoom(c echo.Context) error {
	var req types.CreateRoomRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	room, err := h.rooms.Create(ctx, req.Name, middleware.Username(c))
	switch {
	case errors.Is(err, rooms.ErrExists):
		return echo.NewHTTPError(http.StatusConflict, "Room already exists")
	case errors.Is(err, rooms.ErrInvalidName):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return internalError("create room", err)
	}
	return c.JSON(http.StatusCreated, types.NewRoomDTO(room))
}

func (h *Handler) GetRoom(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	room, err := h.rooms.Get(ctx, c.Param("name"))
	if err != nil {
		return roomError("get room", err)
	}
	return c.JSON(http.StatusOK, types.NewRoomDTO(room))
}

// DeleteRoom answers 204 once the room is gone and 202 while the sweeper
// still has records to drain.
func (h *Handler) DeleteRoom(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Minute)
	defer cancel()

	gone, err := h.rooms.Delete(ctx, c.Param("name"))
	if err != nil {
		if errors.Is(err, rooms.ErrNotFound) {
			return roomError("delete room", err)
		}
		slog.Warn("room teardown incomplete", "component", "api", "room", c.Param("name"), "err", err)
		return c.NoContent(http.StatusAccepted)
	}
	if !gone {
		return c.NoContent(http.StatusAccepted)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) History(c echo.Context) error {
	var q types.HistoryQuery
	if err := c.Bind(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid query")
	}
	if err := c.Validate(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	room, err := h.rooms.Get(ctx, q.Name)
	if err != nil {
		return roomError("history", err)
	}

	msgs, err := h.history.Query(ctx, room.ID, q.After, q.Before, q.Limit)
	if err != nil {
		return internalError("history", err)
	}

	resp := types.HistoryResponse{RoomName: room.Name, Messages: make([]types.MessageDTO, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, types.NewMessageDTO(m))
	}
	return c.JSON(http.StatusOK, resp)
}

func roomError(op string, err error) error {
	if errors.Is(err, rooms.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Room not found")
	}
	return internalError(op, err)
}

func internalError(op string, err error) error {
	slog.Error(op+" failed", "component", "api", "err", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
}
