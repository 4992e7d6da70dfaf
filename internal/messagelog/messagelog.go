// Package messagelog keeps the ordered, per-room history of messages.
//
// Every message is keyed by (room, timeSent) and written with a conditional
// insert, so a room never holds two messages with the same timestamp. A
// collision is resolved by moving the timestamp forward and trying again, a
// bounded number of times.
package messagelog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"raven-chat/internal/models"
	"raven-chat/internal/repository"
)

var (
	ErrDuplicateTimestamp = errors.New("duplicate timestamp")
	ErrStoreUnavailable   = errors.New("message store unavailable")
)

const (
	DefaultMaxAttempts = 5
	DefaultLimit       = 50
	MaxLimit           = 1000
	deleteBatchSize    = 25
	scanPageSize       = 100
)

// AppendError reports an append that gave up. Err is ErrDuplicateTimestamp
// or ErrStoreUnavailable wrapping the last store error.
type AppendError struct {
	RoomID   string
	Attempts int
	Err      error
}

func (e *AppendError) Error() string {
	return fmt.Sprintf("append to room %s failed after %d attempts: %v", e.RoomID, e.Attempts, e.Err)
}

func (e *AppendError) Unwrap() error { return e.Err }

type Store interface {
	Insert(ctx context.Context, m models.Message) error
	Query(ctx context.Context, roomID string, after, before int64, limit int) ([]models.Message, error)
	Scan(ctx context.Context, roomID, token string, pageSize int) (repository.Page[int64], error)
	DeleteBatch(ctx context.Context, roomID string, timeSents []int64) error
}

type Options struct {
	MaxAttempts  int
	DefaultLimit int
	// Clock returns the current time in milliseconds.
	Clock func() int64
}

type Log struct {
	store        Store
	maxAttempts  int
	defaultLimit int
	clock        func() int64
}

func New(store Store, opts Options) *Log {
	l := &Log{
		store:        store,
		maxAttempts:  opts.MaxAttempts,
		defaultLimit: opts.DefaultLimit,
		clock:        opts.Clock,
	}
	if l.maxAttempts <= 0 {
		l.maxAttempts = DefaultMaxAttempts
	}
	if l.defaultLimit <= 0 {
		l.defaultLimit = DefaultLimit
	}
	if l.clock == nil {
		l.clock = models.NowMillis
	}
	return l
}

// Append stores m and returns it as stored. A zero TimeSent is stamped
// with the clock; on a timestamp collision the timestamp is regenerated
// and the insert retried.
func (l *Log) Append(ctx context.Context, m models.Message) (models.Message, error) {
	if m.TimeSent == 0 {
		m.TimeSent = l.clock()
	}

	var lastErr error
	ambiguous := false
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		err := l.store.Insert(ctx, m)
		switch {
		case err == nil:
			return m, nil

		case errors.Is(err, repository.ErrDuplicate):
			// A previous attempt may have landed before its error came back.
			if ambiguous && l.storedAs(ctx, m) {
				return m, nil
			}
			lastErr = fmt.Errorf("%w: %d", ErrDuplicateTimestamp, m.TimeSent)
			m.TimeSent = max(l.clock(), m.TimeSent+1)
			ambiguous = false

		default:
			lastErr = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
			ambiguous = true
		}

		slog.Debug("append attempt failed",
			"component", "messagelog",
			"room_id", m.RoomID,
			"attempt", attempt,
			"err", lastErr,
		)

		if ctx.Err() != nil {
			return m, &AppendError{RoomID: m.RoomID, Attempts: attempt, Err: fmt.Errorf("%w: %w", ErrStoreUnavailable, ctx.Err())}
		}
	}

	return m, &AppendError{RoomID: m.RoomID, Attempts: l.maxAttempts, Err: lastErr}
}

func (l *Log) storedAs(ctx context.Context, m models.Message) bool {
	got, err := l.store.Query(ctx, m.RoomID, m.TimeSent, m.TimeSent, 1)
	return err == nil && len(got) == 1 && got[0] == m
}

// Query returns up to limit messages of a room with timeSent in
// [after, before], most recent first. before <= 0 means now, limit <= 0
// means the default limit.
func (l *Log) Query(ctx context.Context, roomID string, after, before int64, limit int) ([]models.Message, error) {
	if before <= 0 {
		before = l.clock()
	}
	if after < 0 {
		after = 0
	}
	if limit <= 0 {
		limit = l.defaultLimit
	}
	limit = min(limit, MaxLimit)
	if after > before {
		return []models.Message{}, nil
	}

	msgs, err := l.store.Query(ctx, roomID, after, before, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return msgs, nil
}

// DeleteAll removes every message of a room, page by page. It is not
// atomic: on error some pages may already be gone. It returns the number
// of messages deleted.
func (l *Log) DeleteAll(ctx context.Context, roomID string) (int, error) {
	deleted := 0
	token := ""
	for {
		page, err := l.store.Scan(ctx, roomID, token, scanPageSize)
		if err != nil {
			return deleted, fmt.Errorf("scan room %s history: %w", roomID, err)
		}

		for start := 0; start < len(page.Keys); start += deleteBatchSize {
			batch := page.Keys[start:min(start+deleteBatchSize, len(page.Keys))]
			if err := l.store.DeleteBatch(ctx, roomID, batch); err != nil {
				return deleted, fmt.Errorf("delete room %s history: %w", roomID, err)
			}
			deleted += len(batch)
		}

		if page.Next == "" {
			break
		}
		token = page.Next
	}

	slog.Info("room history deleted", "component", "messagelog", "room_id", roomID, "count", deleted)
	return deleted, nil
}
