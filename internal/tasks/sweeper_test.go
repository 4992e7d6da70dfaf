package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTeardown struct {
	calls atomic.Int32
	err   error
}

func (c *countingTeardown) Sweep(ctx context.Context) error {
	c.calls.Add(1)
	return c.err
}

func TestSweeper_RunsOnSchedule(t *testing.T) {
	rooms := &countingTeardown{}
	s := NewSweeper(rooms, "@every 1s")
	require.NoError(t, s.Start())
	defer s.Stop(context.Background())

	assert.Eventually(t, func() bool { return rooms.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

func TestSweeper_RejectsBadSchedule(t *testing.T) {
	s := NewSweeper(&countingTeardown{}, "whenever")
	assert.Error(t, s.Start())
}

func TestSweeper_RunOnceSwallowsErrors(t *testing.T) {
	rooms := &countingTeardown{err: errors.New("store down")}
	s := NewSweeper(rooms, "@every 1m")

	s.RunOnce(context.Background())
	assert.Equal(t, int32(1), rooms.calls.Load())
}
