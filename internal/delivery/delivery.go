// Package delivery defines the send-only channel used to push events to a
// remote connection.
package delivery

import (
	"context"
	"errors"
)

var (
	// ErrGone means the target connection no longer exists.
	ErrGone = errors.New("connection gone")
	// ErrTransient means the send failed but the connection may still be alive.
	ErrTransient = errors.New("transient delivery failure")
)

// Channel pushes a JSON-serializable payload to one connection. Errors
// wrap ErrGone or ErrTransient.
type Channel interface {
	Send(ctx context.Context, connectionID string, payload any) error
}

// IsGone reports whether err means the connection is gone for good.
func IsGone(err error) bool {
	return errors.Is(err, ErrGone)
}
