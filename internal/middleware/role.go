package middleware

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
)

// RequireRole admits a request only when the role claim stored by JWTAuth
// is one of roles.  Anything else is answered with 403.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if role := Role(c); role == "" || !slices.Contains(roles, role) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "required_roles": roles})
			}
			return next(c)
		}
	}
}
