// Package gateway terminates client websocket connections. It turns socket
// activity into lifecycle events for the session layer and implements the
// delivery channel that pushes room events back out.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"raven-chat/internal/auth"
	"raven-chat/internal/delivery"
	"raven-chat/internal/models"
	"raven-chat/internal/session"
)

type Authorizer interface {
	Authorize(ctx context.Context, token, roomName string) (models.Identity, error)
}

type Lifecycle interface {
	Handle(ctx context.Context, ev session.Event) session.Response
}

type Options struct {
	SendBuffer int
	ReadLimit  int64
	FrameRate  rate.Limit
	FrameBurst int
	PongWait   time.Duration
	PingPeriod time.Duration
	WriteWait  time.Duration
	// EventTimeout bounds the handling of one lifecycle event.
	EventTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		SendBuffer:   256,
		ReadLimit:    8192,
		FrameRate:    rate.Every(500 * time.Millisecond),
		FrameBurst:   5,
		PongWait:     60 * time.Second,
		PingPeriod:   50 * time.Second,
		WriteWait:    5 * time.Second,
		EventTimeout: 10 * time.Second,
	}
}

type Gateway struct {
	auth     Authorizer
	opts     Options
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	peers  map[string]*peer
	closed bool
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func New(authorizer Authorizer, opts Options) *Gateway {
	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		auth: authorizer,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		peers:  make(map[string]*peer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Send implements delivery.Channel for connections held by this gateway.
func (g *Gateway) Send(ctx context.Context, connectionID string, payload any) error {
	g.mu.RLock()
	p, ok := g.peers[connectionID]
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", delivery.ErrGone, connectionID)
	}

	data, err := encode(payload)
	if err != nil {
		return fmt.Errorf("%w: %w", delivery.ErrTransient, err)
	}
	return p.enqueue(ctx, data)
}

// Connections returns the number of open connections.
func (g *Gateway) Connections() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.peers)
}

// Handler upgrades authorized requests to websocket connections and runs
// their lifecycle through lc. The room is named by the "room" query
// parameter; the token comes from the "Authorizer" query parameter or a
// bearer Authorization header.
func (g *Gateway) Handler(lc Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := g.auth.Authorize(r.Context(), tokenFrom(r), r.URL.Query().Get("room"))
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrDenied):
				http.Error(w, "Forbidden", http.StatusForbidden)
			default:
				slog.Error("authorizer failed", "component", "gateway", "err", err)
				http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
			}
			return
		}

		conn, err := g.upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("upgrade failed", "component", "gateway", "err", err)
			return
		}

		p := newPeer(uuid.NewString(), identity, conn, g.opts)
		if !g.register(p) {
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "shutting down"))
			conn.Close()
			return
		}
		defer g.wg.Done()

		go p.writePump()

		if !g.dispatch(lc, p, session.RouteConnect, nil).OK() {
			g.disconnect(lc, p)
			return
		}

		p.readPump(func(route string, body []byte) {
			resp := g.dispatch(lc, p, route, body)
			switch {
			case resp.Terminal():
				p.state = session.Disconnected
				p.notify(resp.Body)
				p.close()
			case resp.StatusCode == http.StatusBadRequest:
				p.notify(resp.Body)
			}
		})
		g.disconnect(lc, p)
	}
}

// dispatch runs one lifecycle event for p, enforcing the connection's
// state machine first.
func (g *Gateway) dispatch(lc Lifecycle, p *peer, route string, body []byte) session.Response {
	next, err := session.Next(p.state, route)
	if err != nil {
		slog.Warn("dropped out-of-order event", "component", "gateway", "connection_id", p.id, "err", err)
		return session.Response{StatusCode: http.StatusConflict, Body: err.Error()}
	}

	ctx, cancel := context.WithTimeout(g.ctx, g.opts.EventTimeout)
	defer cancel()

	resp := lc.Handle(ctx, session.Event{
		Route:        route,
		ConnectionID: p.id,
		Identity:     p.identity,
		Body:         body,
	})
	if resp.OK() {
		p.state = next
	}
	return resp
}

// disconnect unregisters p, so later sends see it as gone, then reports
// the departure of a connection that had joined its room.
func (g *Gateway) disconnect(lc Lifecycle, p *peer) {
	g.mu.Lock()
	delete(g.peers, p.id)
	g.mu.Unlock()

	p.close()
	if p.state == session.Connected {
		g.dispatch(lc, p, session.RouteDisconnect, nil)
	}
}

func (g *Gateway) register(p *peer) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.peers[p.id] = p
	g.wg.Add(1)
	return true
}

// Shutdown closes every connection and waits for their disconnect events
// to be handled, or for ctx to expire.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	peers := make([]*peer, 0, len(g.peers))
	for _, p := range g.peers {
		peers = append(peers, p)
	}
	g.mu.Unlock()

	slog.Info("closing client connections", "component", "gateway", "count", len(peers))
	for _, p := range peers {
		p.close()
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	defer g.cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func tokenFrom(r *http.Request) string {
	if token := r.URL.Query().Get("Authorizer"); token != "" {
		return token
	}
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

// routeOf reads the route of an inbound frame from its "action" field.
// Frames without one are chat messages. Clients cannot raise the
// connect and disconnect routes themselves.
func routeOf(frame []byte) string {
	var envelope struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(frame, &envelope); err != nil || envelope.Action == "" {
		return session.RouteMessage
	}
	switch envelope.Action {
	case session.RouteConnect, session.RouteDisconnect:
		return session.RouteDefault
	}
	return envelope.Action
}

func encode(payload any) ([]byte, error) {
	if data, ok := payload.([]byte); ok {
		return data, nil
	}
	return json.Marshal(payload)
}
