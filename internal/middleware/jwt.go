package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-inventory/internal/utils"
)

// JWTAuth validates the Bearer access token and stores the operator id and
// role in the context for UserID and Role.  secret must be the one the
// tokens were minted with.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			scheme, raw, ok := strings.Cut(c.Request().Header.Get(echo.HeaderAuthorization), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}

			claims, err := utils.ParseAccessToken(secret, strings.TrimSpace(raw))
			switch {
			case errors.Is(err, jwt.ErrTokenExpired):
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token expired"})
			case err != nil:
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			id, err := strconv.ParseUint(claims.Subject, 10, 64)
			if err != nil || id == 0 {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid subject"})
			}
			c.Set(ContextUserID, id)
			c.Set(ContextRole, claims.Role)
			return next(c)
		}
	}
}
