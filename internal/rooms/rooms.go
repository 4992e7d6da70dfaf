// Package rooms provisions rooms and tears them down.
//
// A room is torn down in stages: it is first marked deleting, which stops
// new connections, then its connections and history are drained page by
// page, and only a pass that finds nothing left deletes the room itself.
// Messages that race in during teardown are caught by a later pass.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"raven-chat/internal/models"
	"raven-chat/internal/repository"
)

var (
	ErrNotFound    = errors.New("room not found")
	ErrExists      = errors.New("room already exists")
	ErrInvalidName = errors.New("room name must be 1-64 characters")
)

const (
	maxNameLength  = 64
	connPageSize   = 100
	teardownPasses = 3
)

type Store interface {
	Get(ctx context.Context, id string) (models.Room, error)
	Create(ctx context.Context, room models.Room) error
	List(ctx context.Context) ([]models.Room, error)
	ListByStatus(ctx context.Context, status models.RoomStatus) ([]models.Room, error)
	UpdateStatus(ctx context.Context, id string, from, to models.RoomStatus) error
	Delete(ctx context.Context, id string) error
}

type Connections interface {
	Scan(ctx context.Context, roomID, token string, pageSize int) (repository.Page[string], error)
	DeleteBatch(ctx context.Context, connectionIDs []string) error
}

type History interface {
	DeleteAll(ctx context.Context, roomID string) (int, error)
}

type Service struct {
	rooms     Store
	conns     Connections
	history   History
	namespace uuid.UUID
}

func NewService(rooms Store, conns Connections, history History, namespace uuid.UUID) *Service {
	return &Service{
		rooms:     rooms,
		conns:     conns,
		history:   history,
		namespace: namespace,
	}
}

func (s *Service) ID(name string) string {
	return models.RoomID(s.namespace, name)
}

func (s *Service) Create(ctx context.Context, name, creator string) (models.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return models.Room{}, ErrInvalidName
	}

	room := models.Room{
		ID:        s.ID(name),
		Name:      name,
		CreatorID: creator,
		Status:    models.RoomReady,
	}
	if err := s.rooms.Create(ctx, room); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return models.Room{}, ErrExists
		}
		return models.Room{}, err
	}

	slog.Info("room created", "component", "rooms", "room_id", room.ID, "name", name, "creator", creator)
	return room, nil
}

func (s *Service) Get(ctx context.Context, name string) (models.Room, error) {
	room, err := s.rooms.Get(ctx, s.ID(name))
	if errors.Is(err, repository.ErrNotFound) {
		return models.Room{}, ErrNotFound
	}
	return room, err
}

func (s *Service) List(ctx context.Context) ([]models.Room, error) {
	return s.rooms.List(ctx)
}

// Delete marks the room deleting and tears it down. It reports whether the
// room is fully gone; a room left behind is finished by Sweep.
func (s *Service) Delete(ctx context.Context, name string) (bool, error) {
	room, err := s.Get(ctx, name)
	if err != nil {
		return false, err
	}

	if room.Status != models.RoomDeleting {
		err := s.rooms.UpdateStatus(ctx, room.ID, room.Status, models.RoomDeleting)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return false, ErrNotFound
		case errors.Is(err, repository.ErrConflict):
			// Someone else moved it first; teardown below is idempotent.
		case err != nil:
			return false, fmt.Errorf("mark room %s deleting: %w", room.ID, err)
		}
		room.Status = models.RoomDeleting
	}

	return s.Teardown(ctx, room)
}

// Teardown drains a deleting room and deletes it once a pass finds nothing
// left to drain.
func (s *Service) Teardown(ctx context.Context, room models.Room) (bool, error) {
	if room.Status != models.RoomDeleting {
		return false, fmt.Errorf("room %s is %s, not deleting", room.ID, room.Status)
	}

	for pass := 1; pass <= teardownPasses; pass++ {
		conns, err := s.drainConnections(ctx, room.ID)
		if err != nil {
			return false, err
		}
		msgs, err := s.history.DeleteAll(ctx, room.ID)
		if err != nil {
			return false, err
		}

		if conns == 0 && msgs == 0 {
			if err := s.rooms.Delete(ctx, room.ID); err != nil {
				return false, fmt.Errorf("delete room %s: %w", room.ID, err)
			}
			slog.Info("room deleted", "component", "rooms", "room_id", room.ID, "name", room.Name, "passes", pass)
			return true, nil
		}
		slog.Debug("teardown pass drained records",
			"component", "rooms",
			"room_id", room.ID,
			"pass", pass,
			"connections", conns,
			"messages", msgs,
		)
	}

	slog.Info("room still draining", "component", "rooms", "room_id", room.ID)
	return false, nil
}

// Sweep resumes teardown of every room marked deleting.
func (s *Service) Sweep(ctx context.Context) error {
	pending, err := s.rooms.ListByStatus(ctx, models.RoomDeleting)
	if err != nil {
		return fmt.Errorf("list deleting rooms: %w", err)
	}

	var errs []error
	for _, room := range pending {
		if _, err := s.Teardown(ctx, room); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) drainConnections(ctx context.Context, roomID string) (int, error) {
	drained := 0
	token := ""
	for {
		page, err := s.conns.Scan(ctx, roomID, token, connPageSize)
		if err != nil {
			return drained, fmt.Errorf("scan room %s connections: %w", roomID, err)
		}
		if err := s.conns.DeleteBatch(ctx, page.Keys); err != nil {
			return drained, fmt.Errorf("delete room %s connections: %w", roomID, err)
		}
		drained += len(page.Keys)

		if page.Next == "" {
			return drained, nil
		}
		token = page.Next
	}
}
