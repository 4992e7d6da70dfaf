package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"raven-chat/internal/auth"
)

// UsernameKey is the echo context key holding the authenticated username.
const UsernameKey = "username"

type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// Authenticate requires a bearer token and stores its username on the context.
func Authenticate(tokens TokenValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
			}

			claims, err := tokens.ValidateToken(token)
			if err != nil {
				slog.Info("invalid token", "component", "middleware", "ip", c.RealIP(), "err", err)
				return echo.NewHTTPError(http.StatusUnauthorized, "Session expired or invalid")
			}

			c.Set(UsernameKey, claims.Username)
			return next(c)
		}
	}
}

// Username returns the name stored by Authenticate.
func Username(c echo.Context) string {
	name, _ := c.Get(UsernameKey).(string)
	return name
}
