// Package directory tracks which live connections belong to which room.
//
// Nothing is cached in process: every lookup reads the durable store, so any
// number of handler instances see the same membership and a restart loses
// nothing.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"raven-chat/internal/models"
	"raven-chat/internal/repository"
)

// Store is the slice of the durable store the directory needs.
type Store interface {
	Put(ctx context.Context, c models.Connection) error
	Get(ctx context.Context, connectionID string) (models.Connection, error)
	Delete(ctx context.Context, connectionID string) error
	ListByRoom(ctx context.Context, roomID string) ([]models.Connection, error)
}

var (
	ErrInvalidConnection = errors.New("connection requires an id, a room and a username")
	ErrNotMember         = errors.New("connection is not in the directory")
)

type Directory struct {
	store Store
}

func New(store Store) *Directory {
	return &Directory{store: store}
}

// Add records c as a member of its room. A second Add for the same
// connection id overwrites the first.
func (d *Directory) Add(ctx context.Context, c models.Connection) error {
	if c.ConnectionID == "" || c.RoomID == "" || c.Username == "" {
		return ErrInvalidConnection
	}
	if err := d.store.Put(ctx, c); err != nil {
		return fmt.Errorf("add connection %s to room %s: %w", c.ConnectionID, c.RoomID, err)
	}
	slog.Debug("connection added", "component", "directory", "connection_id", c.ConnectionID, "room_id", c.RoomID)
	return nil
}

// Get returns the membership record of a connection, or ErrNotMember once
// it has been removed or drained with its room.
func (d *Directory) Get(ctx context.Context, connectionID string) (models.Connection, error) {
	c, err := d.store.Get(ctx, connectionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.Connection{}, fmt.Errorf("%w: %s", ErrNotMember, connectionID)
		}
		return models.Connection{}, fmt.Errorf("get connection %s: %w", connectionID, err)
	}
	return c, nil
}

// Remove forgets a connection. Removing an unknown connection succeeds.
func (d *Directory) Remove(ctx context.Context, connectionID string) error {
	if err := d.store.Delete(ctx, connectionID); err != nil {
		return fmt.Errorf("remove connection %s: %w", connectionID, err)
	}
	slog.Debug("connection removed", "component", "directory", "connection_id", connectionID)
	return nil
}

// ListByRoom returns the current members of a room in no particular order.
func (d *Directory) ListByRoom(ctx context.Context, roomID string) ([]models.Connection, error) {
	conns, err := d.store.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("list connections in room %s: %w", roomID, err)
	}
	return conns, nil
}
