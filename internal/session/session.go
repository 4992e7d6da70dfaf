// Package session runs the lifecycle of a connection: connect, zero or more
// messages, disconnect. Each event is handled as an independent invocation;
// all state lives in the durable store behind the directory and message log.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-playground/validator/v10"

	"raven-chat/internal/directory"
	"raven-chat/internal/fanout"
	"raven-chat/internal/models"
)

const (
	RouteConnect    = "$connect"
	RouteDisconnect = "$disconnect"
	RouteMessage    = "message"
	RouteDefault    = "$default"
)

var (
	ErrInvalidBody     = errors.New("invalid body")
	ErrInvalidIdentity = errors.New("connection is not bound to a user and a room")
)

// Event is one lifecycle event for one connection.
type Event struct {
	Route        string
	ConnectionID string
	Identity     models.Identity
	Body         []byte
}

// Response is the acknowledgement returned to the transport.
type Response struct {
	StatusCode int
	Body       string
}

func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Terminal reports that the connection must be closed: its membership was
// drained, typically because its room was deleted.
func (r Response) Terminal() bool {
	return r.StatusCode == http.StatusGone
}

var (
	respConnected    = Response{StatusCode: http.StatusOK, Body: "Connected."}
	respDisconnected = Response{StatusCode: http.StatusOK, Body: "Disconnected."}
	respSent         = Response{StatusCode: http.StatusOK, Body: "Data sent."}
	respNoop         = Response{StatusCode: http.StatusOK, Body: "No-op."}
	respInvalidBody  = Response{StatusCode: http.StatusBadRequest, Body: "Invalid body."}
	respInternal     = Response{StatusCode: http.StatusInternalServerError, Body: "Internal server error."}
	respGone         = Response{StatusCode: http.StatusGone, Body: "Connection closed."}
)

type Directory interface {
	Add(ctx context.Context, c models.Connection) error
	Get(ctx context.Context, connectionID string) (models.Connection, error)
	Remove(ctx context.Context, connectionID string) error
}

type MessageLog interface {
	Append(ctx context.Context, m models.Message) (models.Message, error)
}

type Broadcaster interface {
	Broadcast(ctx context.Context, ev models.Event) fanout.Report
}

// inboundFrame is what a client sends on the message route.
type inboundFrame struct {
	Message  *string `json:"message" validate:"required,max=4096"`
	TimeSent *int64  `json:"timeSent" validate:"omitempty,gt=0"`
}

type Handler struct {
	directory   Directory
	log         MessageLog
	broadcaster Broadcaster
	validate    *validator.Validate
}

func NewHandler(directory Directory, log MessageLog, broadcaster Broadcaster) *Handler {
	return &Handler{
		directory:   directory,
		log:         log,
		broadcaster: broadcaster,
		validate:    validator.New(),
	}
}

// Handle runs one lifecycle event to completion. It never panics and never
// retries; failures come back as a non-2xx Response.
func (h *Handler) Handle(ctx context.Context, ev Event) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("lifecycle handler panicked",
				"component", "session",
				"route", ev.Route,
				"connection_id", ev.ConnectionID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			resp = respInternal
		}
	}()

	var err error
	switch ev.Route {
	case RouteConnect:
		resp, err = h.connect(ctx, ev)
	case RouteDisconnect:
		resp, err = h.disconnect(ctx, ev)
	case RouteMessage:
		resp, err = h.message(ctx, ev)
	default:
		slog.Debug("unhandled route", "component", "session", "route", ev.Route, "connection_id", ev.ConnectionID)
		return respNoop
	}

	if err != nil {
		if errors.Is(err, ErrInvalidBody) {
			slog.Warn("rejected frame", "component", "session", "connection_id", ev.ConnectionID, "err", err)
			return respInvalidBody
		}
		slog.Error("lifecycle event failed",
			"component", "session",
			"route", ev.Route,
			"connection_id", ev.ConnectionID,
			"err", err,
		)
		return respInternal
	}
	return resp
}

// connect makes the membership durable before announcing it, so the new
// member receives its own join notice.
func (h *Handler) connect(ctx context.Context, ev Event) (Response, error) {
	if ev.ConnectionID == "" || !ev.Identity.Complete() {
		return Response{}, ErrInvalidIdentity
	}

	err := h.directory.Add(ctx, models.Connection{
		ConnectionID: ev.ConnectionID,
		RoomID:       ev.Identity.RoomID,
		Username:     ev.Identity.Username,
	})
	if err != nil {
		return Response{}, err
	}
	slog.Info("connected",
		"component", "session",
		"connection_id", ev.ConnectionID,
		"room_id", ev.Identity.RoomID,
		"username", ev.Identity.Username,
	)

	h.publish(ctx, presenceEvent(models.ActionConnect, ev.Identity))
	return respConnected, nil
}

// disconnect drops the membership before announcing it, so the leaving
// connection is not sent its own departure notice. A connection whose
// record was already drained with its room leaves silently.
func (h *Handler) disconnect(ctx context.Context, ev Event) (Response, error) {
	if err := h.member(ctx, ev); errors.Is(err, directory.ErrNotMember) {
		slog.Info("disconnected after drain", "component", "session", "connection_id", ev.ConnectionID)
		return respDisconnected, nil
	} else if err != nil {
		slog.Warn("membership check failed", "component", "session", "connection_id", ev.ConnectionID, "err", err)
	}

	if err := h.directory.Remove(ctx, ev.ConnectionID); err != nil {
		// The departure is still announced; a stale entry is evicted by
		// the first broadcast that finds it gone.
		slog.Error("directory removal failed", "component", "session", "connection_id", ev.ConnectionID, "err", err)
	}
	slog.Info("disconnected",
		"component", "session",
		"connection_id", ev.ConnectionID,
		"room_id", ev.Identity.RoomID,
		"username", ev.Identity.Username,
	)

	if ev.Identity.Complete() {
		h.publish(ctx, presenceEvent(models.ActionDisconnect, ev.Identity))
	}
	return respDisconnected, nil
}

func (h *Handler) message(ctx context.Context, ev Event) (Response, error) {
	if !ev.Identity.Complete() {
		return Response{}, ErrInvalidIdentity
	}

	frame, err := h.parseFrame(ev.Body)
	if err != nil {
		return Response{}, err
	}

	if err := h.member(ctx, ev); err != nil {
		if errors.Is(err, directory.ErrNotMember) {
			slog.Info("message from drained connection", "component", "session", "connection_id", ev.ConnectionID, "room_id", ev.Identity.RoomID)
			return respGone, nil
		}
		return Response{}, err
	}

	chat := models.Event{
		Action:   models.ActionMessage,
		RoomID:   ev.Identity.RoomID,
		RoomName: ev.Identity.RoomName,
		Message:  *frame.Message,
		Sender:   ev.Identity.Username,
	}
	if frame.TimeSent != nil {
		chat.TimeSent = *frame.TimeSent
	}

	h.publish(ctx, chat)
	return respSent, nil
}

// member checks that the connection is still listed in the room it joined.
func (h *Handler) member(ctx context.Context, ev Event) error {
	c, err := h.directory.Get(ctx, ev.ConnectionID)
	if err != nil {
		return err
	}
	if c.RoomID != ev.Identity.RoomID {
		return fmt.Errorf("%w: %s is in room %s", directory.ErrNotMember, ev.ConnectionID, c.RoomID)
	}
	return nil
}

func (h *Handler) parseFrame(body []byte) (inboundFrame, error) {
	var frame inboundFrame
	if err := json.Unmarshal(body, &frame); err != nil {
		return frame, fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	if err := h.validate.Struct(frame); err != nil {
		return frame, fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	return frame, nil
}

// publish logs the event to the room history and fans it out. The two are
// independent: a failed append is logged and the event is delivered anyway.
func (h *Handler) publish(ctx context.Context, ev models.Event) {
	stored, err := h.log.Append(ctx, ev.Record())
	if err != nil {
		slog.Warn("event not recorded in history",
			"component", "session",
			"room_id", ev.RoomID,
			"action", string(ev.Action),
			"err", err,
		)
	}
	if stored.TimeSent != 0 {
		ev = ev.WithRecord(stored)
	}
	h.broadcaster.Broadcast(ctx, ev)
}

func presenceEvent(action models.Action, id models.Identity) models.Event {
	return models.Event{
		Action:   action,
		RoomID:   id.RoomID,
		RoomName: id.RoomName,
		Message:  id.Username,
		Sender:   models.ServerSender,
	}
}
