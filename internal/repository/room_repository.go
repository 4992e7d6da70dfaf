package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"raven-chat/internal/models"
)

type PostgresRoomsRepo struct {
	pool *pgxpool.Pool
}

func NewRoomsRepo(pool *pgxpool.Pool) *PostgresRoomsRepo {
	return &PostgresRoomsRepo{
		pool: pool,
	}
}

func (r *PostgresRoomsRepo) Get(ctx context.Context, id string) (models.Room, error) {
	const query = `SELECT id, name, creator_id, status FROM rooms WHERE id = $1`

	room, err := scanRoom(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Room{}, ErrNotFound
		}
		return models.Room{}, fmt.Errorf("get room %s: %w", id, err)
	}
	return room, nil
}

// Create inserts room only if no room with the same id exists.
func (r *PostgresRoomsRepo) Create(ctx context.Context, room models.Room) error {
	const query = `
        INSERT INTO rooms (id, name, creator_id, status)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query, room.ID, room.Name, room.CreatorID, string(room.Status))
	if err != nil {
		return fmt.Errorf("create room %s: %w", room.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicate
	}
	return nil
}

func (r *PostgresRoomsRepo) List(ctx context.Context) ([]models.Room, error) {
	return r.list(ctx, `SELECT id, name, creator_id, status FROM rooms ORDER BY name`)
}

func (r *PostgresRoomsRepo) ListByStatus(ctx context.Context, status models.RoomStatus) ([]models.Room, error) {
	return r.list(ctx, `SELECT id, name, creator_id, status FROM rooms WHERE status = $1 ORDER BY name`, string(status))
}

// UpdateStatus moves a room from one status to another. It fails with
// ErrConflict when the room is not currently in status from.
func (r *PostgresRoomsRepo) UpdateStatus(ctx context.Context, id string, from, to models.RoomStatus) error {
	const query = `UPDATE rooms SET status = $3 WHERE id = $1 AND status = $2`

	tag, err := r.pool.Exec(ctx, query, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("update room %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

func (r *PostgresRoomsRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete room %s: %w", id, err)
	}
	return nil
}

func (r *PostgresRoomsRepo) list(ctx context.Context, query string, args ...any) ([]models.Room, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	rooms, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Room, error) {
		return scanRoom(row)
	})
	if err != nil {
		return nil, fmt.Errorf("collect rooms: %w", err)
	}
	return rooms, nil
}

func scanRoom(row pgx.Row) (models.Room, error) {
	var room models.Room
	var status string
	if err := row.Scan(&room.ID, &room.Name, &room.CreatorID, &status); err != nil {
		return models.Room{}, err
	}
	room.Status = models.RoomStatus(status)
	return room, nil
}
