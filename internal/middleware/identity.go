package middleware

// identity.go holds the accessors for the identity JWTAuth stores in the
// Echo context.  Handlers and the rate limiter use them instead of reading
// context keys directly.

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Context keys written by JWTAuth.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// Roles understood by the inventory routes.
const (
	RoleAdmin       = "ADMIN"
	RoleDistributor = "DISTRIBUTOR"
)

// UserID returns the authenticated subject.  JWTAuth stores a uint64;
// the other forms cover values set by tests or upstream middleware.
func UserID(c echo.Context) (uint64, error) {
	switch t := c.Get(ContextUserID).(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		if t > 0 {
			return uint64(t), nil
		}
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// Role returns the authenticated role or "".
func Role(c echo.Context) string {
	r, _ := c.Get(ContextRole).(string)
	return r
}

// userKey identifies the caller for rate limiting; "anon" when no user.
func userKey(c echo.Context) string {
	if id, err := UserID(c); err == nil {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
