package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"raven-chat/internal/delivery"
	"raven-chat/internal/models"
	"raven-chat/internal/session"
)

func TestRouteOf(t *testing.T) {
	assert.Equal(t, session.RouteMessage, routeOf([]byte(`{"message":"hi"}`)))
	assert.Equal(t, session.RouteMessage, routeOf([]byte(`{"action":"message","message":"hi"}`)))
	assert.Equal(t, session.RouteMessage, routeOf([]byte(`not json`)))
	assert.Equal(t, "typing", routeOf([]byte(`{"action":"typing"}`)))
	assert.Equal(t, session.RouteDefault, routeOf([]byte(`{"action":"$disconnect"}`)))
}

func TestEnqueue_ClosedPeerIsAlwaysGone(t *testing.T) {
	p := newPeer("a", models.Identity{}, nil, DefaultOptions())
	p.close()

	// The queue has room, so only the closed check can refuse these.
	for i := 0; i < 100; i++ {
		err := p.enqueue(context.Background(), []byte("late"))
		assert.ErrorIs(t, err, delivery.ErrGone)
	}
	assert.Empty(t, p.send)
}

func TestEnqueue_FullQueueIsTransient(t *testing.T) {
	opts := DefaultOptions()
	opts.SendBuffer = 1
	p := newPeer("a", models.Identity{}, nil, opts)

	assert.NoError(t, p.enqueue(context.Background(), []byte("first")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.enqueue(ctx, []byte("second")), delivery.ErrTransient)
}
