package repository

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"raven-chat/internal/models"
)

type PostgresMessagesRepo struct {
	pool *pgxpool.Pool
}

func NewMessagesRepo(pool *pgxpool.Pool) *PostgresMessagesRepo {
	return &PostgresMessagesRepo{
		pool: pool,
	}
}

// Insert stores m only if no message exists under (m.RoomID, m.TimeSent).
func (r *PostgresMessagesRepo) Insert(ctx context.Context, m models.Message) error {
	const query = `
        INSERT INTO messages (room_id, time_sent, sender, action, body)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (room_id, time_sent) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query, m.RoomID, m.TimeSent, m.Sender, string(m.Action), m.Body)
	if err != nil {
		if isPgDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicate
	}
	return nil
}

// Query returns the messages of a room with time_sent in [after, before],
// most recent first.
func (r *PostgresMessagesRepo) Query(ctx context.Context, roomID string, after, before int64, limit int) ([]models.Message, error) {
	const query = `
        SELECT room_id, time_sent, sender, action, body
        FROM messages
        WHERE room_id = $1
          AND time_sent BETWEEN $2 AND $3
        ORDER BY time_sent DESC
        LIMIT $4`

	rows, err := r.pool.Query(ctx, query, roomID, after, before, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages for room %s: %w", roomID, err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0, limit)
	for rows.Next() {
		var m models.Message
		var action string
		if err := rows.Scan(&m.RoomID, &m.TimeSent, &m.Sender, &action, &m.Body); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Action = models.Action(action)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// Scan pages through the keys of a room's messages in ascending order.
func (r *PostgresMessagesRepo) Scan(ctx context.Context, roomID, token string, pageSize int) (Page[int64], error) {
	start := int64(math.MinInt64)
	if token != "" {
		v, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return Page[int64]{}, fmt.Errorf("invalid continuation token %q: %w", token, err)
		}
		start = v
	}

	const query = `
        SELECT time_sent FROM messages
        WHERE room_id = $1 AND time_sent > $2
        ORDER BY time_sent ASC
        LIMIT $3`

	rows, err := r.pool.Query(ctx, query, roomID, start, pageSize)
	if err != nil {
		return Page[int64]{}, fmt.Errorf("scan messages for room %s: %w", roomID, err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return Page[int64]{}, fmt.Errorf("collect message keys: %w", err)
	}

	page := Page[int64]{Keys: keys}
	if len(keys) == pageSize {
		page.Next = strconv.FormatInt(keys[len(keys)-1], 10)
	}
	return page, nil
}

// DeleteBatch removes the given messages of a room in one round trip.
func (r *PostgresMessagesRepo) DeleteBatch(ctx context.Context, roomID string, timeSents []int64) error {
	if len(timeSents) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, ts := range timeSents {
		batch.Queue(`DELETE FROM messages WHERE room_id = $1 AND time_sent = $2`, roomID, ts)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("batch delete %d messages in room %s: %w", len(timeSents), roomID, err)
	}
	slog.Debug("deleted message batch", "component", "repository", "room_id", roomID, "count", len(timeSents))
	return nil
}
