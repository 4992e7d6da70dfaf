package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"raven-chat/internal/delivery"
	"raven-chat/internal/models"
	"raven-chat/internal/session"
)

// peer is one client connection terminated by this gateway.
type peer struct {
	id       string
	identity models.Identity
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	opts     Options

	limiter     *rate.Limiter
	lastWarning time.Time
	state       session.State
}

func newPeer(id string, identity models.Identity, conn *websocket.Conn, opts Options) *peer {
	return &peer{
		id:       id,
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, opts.SendBuffer),
		done:     make(chan struct{}),
		opts:     opts,
		limiter:  rate.NewLimiter(opts.FrameRate, opts.FrameBurst),
		state:    session.Connecting,
	}
}

// enqueue hands data to the write pump. A full queue is waited on until
// ctx expires, then reported as a transient failure.
func (p *peer) enqueue(ctx context.Context, data []byte) error {
	select {
	case <-p.done:
		return fmt.Errorf("%w: %s closed", delivery.ErrGone, p.id)
	default:
	}

	select {
	case p.send <- data:
		return nil
	default:
	}

	select {
	case <-p.done:
		return fmt.Errorf("%w: %s closed", delivery.ErrGone, p.id)
	case p.send <- data:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %s send queue full: %w", delivery.ErrTransient, p.id, ctx.Err())
	}
}

// close tells the write pump to say goodbye and drop the socket, which in
// turn ends the read pump. Safe to call more than once.
func (p *peer) close() {
	p.once.Do(func() { close(p.done) })
}

func (p *peer) writePump() {
	ticker := time.NewTicker(p.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		p.close()
		p.conn.Close()
	}()

	for {
		select {
		case <-p.done:
			p.flush()
			p.conn.SetWriteDeadline(time.Now().Add(p.opts.WriteWait))
			p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return

		case message := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(p.opts.WriteWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Debug("write failed", "component", "gateway", "connection_id", p.id, "err", err)
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(p.opts.WriteWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flush writes whatever is already queued, so a final notice reaches the
// client ahead of the close frame.
func (p *peer) flush() {
	for {
		select {
		case message := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(p.opts.WriteWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

// readPump feeds inbound frames to handle until the socket fails or closes.
func (p *peer) readPump(handle func(route string, body []byte)) {
	p.conn.SetReadLimit(p.opts.ReadLimit)
	p.conn.SetReadDeadline(time.Now().Add(p.opts.PongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(p.opts.PongWait))
		return nil
	})

	for {
		_, message, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Info("unexpected close", "component", "gateway", "connection_id", p.id, "err", err)
			}
			return
		}

		if !p.limiter.Allow() {
			if time.Since(p.lastWarning) > 3*time.Second {
				p.notify("Rate limit exceeded.")
				p.lastWarning = time.Now()
			}
			continue
		}

		handle(routeOf(message), message)
	}
}

// notify sends a server notice to this connection only, dropping it if the
// queue is full.
func (p *peer) notify(text string) {
	data, _ := encode(models.Payload{
		Action:   "error",
		Message:  text,
		Sender:   models.ServerSender,
		TimeSent: models.NowMillis(),
	})
	select {
	case p.send <- data:
	default:
	}
}
