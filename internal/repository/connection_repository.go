package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"raven-chat/internal/models"
)

type PostgresConnectionsRepo struct {
	pool *pgxpool.Pool
}

func NewConnectionsRepo(pool *pgxpool.Pool) *PostgresConnectionsRepo {
	return &PostgresConnectionsRepo{
		pool: pool,
	}
}

// Put writes c, replacing any record with the same connection id.
func (r *PostgresConnectionsRepo) Put(ctx context.Context, c models.Connection) error {
	const query = `
        INSERT INTO connections (connection_id, room_id, username)
        VALUES ($1, $2, $3)
        ON CONFLICT (connection_id) DO UPDATE
        SET room_id = EXCLUDED.room_id, username = EXCLUDED.username`

	if _, err := r.pool.Exec(ctx, query, c.ConnectionID, c.RoomID, c.Username); err != nil {
		return fmt.Errorf("put connection %s: %w", c.ConnectionID, err)
	}
	return nil
}

func (r *PostgresConnectionsRepo) Get(ctx context.Context, connectionID string) (models.Connection, error) {
	const query = `SELECT connection_id, room_id, username FROM connections WHERE connection_id = $1`

	var c models.Connection
	err := r.pool.QueryRow(ctx, query, connectionID).Scan(&c.ConnectionID, &c.RoomID, &c.Username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Connection{}, ErrNotFound
		}
		return models.Connection{}, fmt.Errorf("get connection %s: %w", connectionID, err)
	}
	return c, nil
}

// Delete removes a connection. Deleting an absent connection is not an error.
func (r *PostgresConnectionsRepo) Delete(ctx context.Context, connectionID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM connections WHERE connection_id = $1`, connectionID); err != nil {
		return fmt.Errorf("delete connection %s: %w", connectionID, err)
	}
	return nil
}

func (r *PostgresConnectionsRepo) ListByRoom(ctx context.Context, roomID string) ([]models.Connection, error) {
	const query = `
        SELECT connection_id, room_id, username
        FROM connections
        WHERE room_id = $1
        ORDER BY username`

	rows, err := r.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("list connections for room %s: %w", roomID, err)
	}
	conns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Connection, error) {
		var c models.Connection
		err := row.Scan(&c.ConnectionID, &c.RoomID, &c.Username)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect connections: %w", err)
	}
	return conns, nil
}

// Scan pages through the connection ids of a room.
func (r *PostgresConnectionsRepo) Scan(ctx context.Context, roomID, token string, pageSize int) (Page[string], error) {
	const query = `
        SELECT connection_id FROM connections
        WHERE room_id = $1 AND connection_id > $2
        ORDER BY connection_id
        LIMIT $3`

	rows, err := r.pool.Query(ctx, query, roomID, token, pageSize)
	if err != nil {
		return Page[string]{}, fmt.Errorf("scan connections for room %s: %w", roomID, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return Page[string]{}, fmt.Errorf("collect connection ids: %w", err)
	}

	page := Page[string]{Keys: ids}
	if len(ids) == pageSize {
		page.Next = ids[len(ids)-1]
	}
	return page, nil
}

func (r *PostgresConnectionsRepo) DeleteBatch(ctx context.Context, connectionIDs []string) error {
	if len(connectionIDs) == 0 {
		return nil
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM connections WHERE connection_id = ANY($1)`, connectionIDs); err != nil {
		return fmt.Errorf("batch delete %d connections: %w", len(connectionIDs), err)
	}
	return nil
}
