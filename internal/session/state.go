package session

import (
	"errors"
	"fmt"
)

// State is the lifecycle position of one connection.
type State int

const (
	Connecting State = iota
	Connected
	Disconnected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var ErrIllegalTransition = errors.New("illegal lifecycle transition")

// Next returns the state a connection moves to when route arrives in state s.
// Unknown routes leave the state unchanged.
func Next(s State, route string) (State, error) {
	switch {
	case route == RouteConnect && s == Connecting:
		return Connected, nil
	case route == RouteMessage && s == Connected:
		return Connected, nil
	case route == RouteDisconnect && s != Disconnected:
		return Disconnected, nil
	case route != RouteConnect && route != RouteMessage && route != RouteDisconnect:
		return s, nil
	}
	return s, fmt.Errorf("%w: %s while %s", ErrIllegalTransition, route, s)
}
