package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const sweepTimeout = 3 * time.Minute

// Teardown resumes teardown of every room marked deleting.
type Teardown interface {
	Sweep(ctx context.Context) error
}

type Sweeper struct {
	rooms    Teardown
	schedule string
	cron     *cron.Cron
}

func NewSweeper(rooms Teardown, schedule string) *Sweeper {
	return &Sweeper{
		rooms:    rooms,
		schedule: schedule,
		cron:     cron.New(),
	}
}

func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule sweeper %q: %w", s.schedule, err)
	}

	s.cron.Start()
	slog.Info("sweeper started", "component", "tasks", "schedule", s.schedule)
	return nil
}

func (s *Sweeper) RunOnce(ctx context.Context) {
	if err := s.rooms.Sweep(ctx); err != nil {
		slog.Error("room sweep failed", "component", "tasks", "err", err)
	}
}

// Stop waits for a running sweep to finish or ctx to expire.
func (s *Sweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		slog.Warn("sweeper stop timed out", "component", "tasks")
	}
}
