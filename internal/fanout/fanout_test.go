package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raven-chat/internal/delivery"
	"raven-chat/internal/models"
)

type fakeDirectory struct {
	mu        sync.Mutex
	conns     map[string]models.Connection
	listErr   error
	removeErr error
	removed   []string
}

func newFakeDirectory(conns ...models.Connection) *fakeDirectory {
	d := &fakeDirectory{conns: make(map[string]models.Connection)}
	for _, c := range conns {
		d.conns[c.ConnectionID] = c
	}
	return d
}

func (d *fakeDirectory) ListByRoom(ctx context.Context, roomID string) ([]models.Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listErr != nil {
		return nil, d.listErr
	}
	var out []models.Connection
	for _, c := range d.conns {
		if c.RoomID == roomID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (d *fakeDirectory) Remove(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removed = append(d.removed, id)
	if d.removeErr != nil {
		return d.removeErr
	}
	delete(d.conns, id)
	return nil
}

type fakeChannel struct {
	mu       sync.Mutex
	errs     map[string]error
	sent     map[string][]models.Payload
	attempts int
	// gate, when set, blocks every send until it is closed.
	gate    chan struct{}
	entered chan string
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{errs: make(map[string]error), sent: make(map[string][]models.Payload)}
}

func (c *fakeChannel) Send(ctx context.Context, id string, payload any) error {
	if c.entered != nil {
		c.entered <- id
	}
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if err := c.errs[id]; err != nil {
		return err
	}
	c.sent[id] = append(c.sent[id], payload.(models.Payload))
	return nil
}

func lobbyMembers(n int) []models.Connection {
	conns := make([]models.Connection, n)
	for i := range conns {
		conns[i] = models.Connection{ConnectionID: fmt.Sprintf("c%d", i), RoomID: "lobby", Username: fmt.Sprintf("user%d", i)}
	}
	return conns
}

var chatEvent = models.Event{
	Action:   models.ActionMessage,
	RoomID:   "lobby",
	RoomName: "lobby",
	Message:  "hi",
	Sender:   "A",
	TimeSent: 42,
}

func TestBroadcast_DeliversToEveryMember(t *testing.T) {
	dir := newFakeDirectory(lobbyMembers(3)...)
	ch := newFakeChannel()
	d := New(dir, ch, Options{})

	report := d.Broadcast(context.Background(), chatEvent)

	assert.Equal(t, Report{Attempted: 3, Delivered: 3}, report)
	for i := 0; i < 3; i++ {
		got := ch.sent[fmt.Sprintf("c%d", i)]
		require.Len(t, got, 1)
		assert.Equal(t, models.Payload{Action: "message", RoomName: "lobby", Message: "hi", TimeSent: 42, Sender: "A"}, got[0])
	}
}

func TestBroadcast_IsolatesFailures(t *testing.T) {
	dir := newFakeDirectory(lobbyMembers(5)...)
	ch := newFakeChannel()
	ch.errs["c1"] = fmt.Errorf("post to c1: %w", delivery.ErrGone)
	ch.errs["c3"] = fmt.Errorf("throttled: %w", delivery.ErrTransient)
	d := New(dir, ch, Options{})

	report := d.Broadcast(context.Background(), chatEvent)

	assert.Equal(t, Report{Attempted: 5, Delivered: 3, Gone: 1, Failed: 1}, report)
	assert.Equal(t, 5, ch.attempts)
	assert.Equal(t, []string{"c1"}, dir.removed, "only the gone connection is evicted")

	members, err := dir.ListByRoom(context.Background(), "lobby")
	require.NoError(t, err)
	assert.Len(t, members, 4)
	for _, m := range members {
		assert.NotEqual(t, "c1", m.ConnectionID)
	}
}

func TestBroadcast_CleanupFailureIsSwallowed(t *testing.T) {
	dir := newFakeDirectory(lobbyMembers(2)...)
	dir.removeErr = errors.New("store down")
	ch := newFakeChannel()
	ch.errs["c0"] = delivery.ErrGone
	d := New(dir, ch, Options{})

	report := d.Broadcast(context.Background(), chatEvent)

	assert.Equal(t, Report{Attempted: 2, Delivered: 1, Gone: 1}, report)
	assert.Equal(t, []string{"c0"}, dir.removed)
}

func TestBroadcast_ListFailureDeliversNothing(t *testing.T) {
	dir := newFakeDirectory(lobbyMembers(2)...)
	dir.listErr = errors.New("store down")
	ch := newFakeChannel()
	d := New(dir, ch, Options{})

	report := d.Broadcast(context.Background(), chatEvent)

	assert.Equal(t, Report{}, report)
	assert.Zero(t, ch.attempts)
}

func TestBroadcast_SendsConcurrently(t *testing.T) {
	const n = 8
	dir := newFakeDirectory(lobbyMembers(n)...)
	ch := newFakeChannel()
	ch.gate = make(chan struct{})
	ch.entered = make(chan string, n)
	d := New(dir, ch, Options{})

	done := make(chan Report)
	go func() { done <- d.Broadcast(context.Background(), chatEvent) }()

	// Every send must be in flight at once before any is allowed to finish.
	for i := 0; i < n; i++ {
		select {
		case <-ch.entered:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d sends started concurrently", i, n)
		}
	}
	close(ch.gate)

	select {
	case report := <-done:
		assert.Equal(t, n, report.Delivered)
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast did not complete")
	}
}

func TestBroadcast_AppliesSendTimeout(t *testing.T) {
	dir := newFakeDirectory(lobbyMembers(1)...)
	d := New(dir, deadlineChannel{}, Options{Timeout: 10 * time.Millisecond})

	report := d.Broadcast(context.Background(), chatEvent)
	assert.Equal(t, Report{Attempted: 1, Failed: 1}, report)
}

type deadlineChannel struct{}

func (deadlineChannel) Send(ctx context.Context, id string, payload any) error {
	<-ctx.Done()
	return fmt.Errorf("%w: %w", delivery.ErrTransient, ctx.Err())
}
