// Package auth decides whether a connection may be established, and for
// whom and which room.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"raven-chat/internal/models"
	"raven-chat/internal/repository"
)

const (
	issuer            = "raven"
	roomLookupTimeout = 5 * time.Second
)

var (
	// ErrDenied wraps every reason a connection is refused.
	ErrDenied = errors.New("connection denied")
	// ErrUnavailable means the decision could not be made.
	ErrUnavailable = errors.New("authorizer unavailable")
)

type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type RoomStore interface {
	Get(ctx context.Context, id string) (models.Room, error)
}

type Authorizer struct {
	key       []byte
	rooms     RoomStore
	namespace uuid.UUID
	lookups   singleflight.Group
}

func NewAuthorizer(key string, rooms RoomStore, namespace uuid.UUID) *Authorizer {
	return &Authorizer{
		key:       []byte(key),
		rooms:     rooms,
		namespace: namespace,
	}
}

// Authorize validates token and checks that roomName names a room that is
// ready to host connections.
func (a *Authorizer) Authorize(ctx context.Context, token, roomName string) (models.Identity, error) {
	claims, err := a.ValidateToken(token)
	if err != nil {
		return models.Identity{}, err
	}

	roomName = strings.TrimSpace(roomName)
	if roomName == "" {
		return models.Identity{}, fmt.Errorf("%w: no room requested", ErrDenied)
	}

	room, err := a.verifyRoom(ctx, models.RoomID(a.namespace, roomName))
	if err != nil {
		slog.Info("connection refused", "component", "auth", "room", roomName, "username", claims.Username, "err", err)
		return models.Identity{}, err
	}

	return models.Identity{
		Username: claims.Username,
		RoomID:   room.ID,
		RoomName: room.Name,
	}, nil
}

// verifyRoom loads a room, sharing one store read between concurrent
// connects to the same room. The shared read does not follow any single
// caller's cancellation.
func (a *Authorizer) verifyRoom(ctx context.Context, roomID string) (models.Room, error) {
	v, err, _ := a.lookups.Do(roomID, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), roomLookupTimeout)
		defer cancel()
		return a.rooms.Get(lookupCtx, roomID)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.Room{}, fmt.Errorf("%w: room does not exist", ErrDenied)
		}
		return models.Room{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	room := v.(models.Room)
	if !room.Open() {
		return models.Room{}, fmt.Errorf("%w: room is %s", ErrDenied, room.Status)
	}
	return room, nil
}

func (a *Authorizer) IssueToken(username string, ttl time.Duration) (string, error) {
	if username == "" {
		return "", errors.New("username is required")
	}
	now := time.Now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("sign token for %s: %w", username, err)
	}
	return signed, nil
}

func (a *Authorizer) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: missing token", ErrDenied)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.key, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDenied, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Username == "" {
		return nil, fmt.Errorf("%w: invalid token claims", ErrDenied)
	}
	return claims, nil
}
