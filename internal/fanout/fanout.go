// Package fanout delivers room events to every live member of the room.
package fanout

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"raven-chat/internal/delivery"
	"raven-chat/internal/models"
)

// Directory is the membership view the dispatcher reads and heals.
type Directory interface {
	ListByRoom(ctx context.Context, roomID string) ([]models.Connection, error)
	Remove(ctx context.Context, connectionID string) error
}

type Options struct {
	// Concurrency bounds in-flight sends per broadcast. Zero means unbounded.
	Concurrency int
	// Timeout bounds each individual send. Zero means no extra bound.
	Timeout time.Duration
}

// Report counts the outcome of one broadcast.
type Report struct {
	Attempted int
	Delivered int
	Gone      int
	Failed    int
}

type Dispatcher struct {
	directory Directory
	channel   delivery.Channel
	opts      Options
}

func New(directory Directory, channel delivery.Channel, opts Options) *Dispatcher {
	return &Dispatcher{
		directory: directory,
		channel:   channel,
		opts:      opts,
	}
}

// Broadcast pushes ev to every member of its room and waits until every
// send has been attempted. It never fails: a recipient whose connection is
// gone is dropped from the directory, any other failure is logged.
func (d *Dispatcher) Broadcast(ctx context.Context, ev models.Event) Report {
	members, err := d.directory.ListByRoom(ctx, ev.RoomID)
	if err != nil {
		slog.Error("broadcast skipped: cannot list room members",
			"component", "fanout",
			"room_id", ev.RoomID,
			"err", err,
		)
		return Report{}
	}

	payload := ev.Payload()
	var delivered, gone, failed atomic.Int64

	// Sends run on a context detached from the caller's cancellation so a
	// departing client does not cut the broadcast short.
	sendCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	if d.opts.Concurrency > 0 {
		g.SetLimit(d.opts.Concurrency)
	}
	for _, member := range members {
		g.Go(func() error {
			switch err := d.send(sendCtx, member.ConnectionID, payload); {
			case err == nil:
				delivered.Add(1)
			case delivery.IsGone(err):
				gone.Add(1)
				d.evict(sendCtx, member, err)
			default:
				failed.Add(1)
				slog.Warn("delivery failed",
					"component", "fanout",
					"room_id", ev.RoomID,
					"connection_id", member.ConnectionID,
					"err", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Attempted: len(members),
		Delivered: int(delivered.Load()),
		Gone:      int(gone.Load()),
		Failed:    int(failed.Load()),
	}
	slog.Debug("broadcast complete",
		"component", "fanout",
		"room_id", ev.RoomID,
		"action", payload.Action,
		"attempted", report.Attempted,
		"delivered", report.Delivered,
		"gone", report.Gone,
		"failed", report.Failed,
	)
	return report
}

func (d *Dispatcher) send(ctx context.Context, connectionID string, payload models.Payload) error {
	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}
	return d.channel.Send(ctx, connectionID, payload)
}

// evict drops a dead connection from the directory. Failure is only logged;
// the next broadcast to the room will try again.
func (d *Dispatcher) evict(ctx context.Context, member models.Connection, cause error) {
	slog.Info("evicting stale connection",
		"component", "fanout",
		"room_id", member.RoomID,
		"connection_id", member.ConnectionID,
		"cause", cause,
	)
	if err := d.directory.Remove(ctx, member.ConnectionID); err != nil {
		slog.Error("stale connection cleanup failed",
			"component", "fanout",
			"connection_id", member.ConnectionID,
			"err", err,
		)
	}
}
