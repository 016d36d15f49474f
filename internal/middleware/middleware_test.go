package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticket-inventory/internal/config"
	"github.com/iliyamo/ticket-inventory/internal/utils"
)

const secret = "test-secret"

func serve(t *testing.T, mw []echo.MiddlewareFunc, header string) (*httptest.ResponseRecorder, echo.Context) {
	e := echo.New()
	var seen echo.Context
	e.GET("/probe", func(c echo.Context) error {
		seen = c
		return c.String(http.StatusOK, "ok")
	}, mw...)
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec, seen
}

func bearer(t *testing.T, id uint64, role string) string {
	tok, err := utils.NewAccessToken(secret, id, role, 5)
	require.NoError(t, err)
	return "Bearer " + tok.Token
}

func TestJWTAuth(t *testing.T) {
	rec, c := serve(t, []echo.MiddlewareFunc{JWTAuth(secret)}, bearer(t, 42, RoleDistributor))
	require.Equal(t, http.StatusOK, rec.Code)
	id, err := UserID(c)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)
	assert.Equal(t, RoleDistributor, Role(c))

	rec, _ = serve(t, []echo.MiddlewareFunc{JWTAuth(secret)}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = serve(t, []echo.MiddlewareFunc{JWTAuth("other")}, bearer(t, 42, RoleAdmin))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := utils.NewAccessToken(secret, 42, RoleAdmin, -1)
	require.NoError(t, err)
	rec, _ = serve(t, []echo.MiddlewareFunc{JWTAuth(secret)}, "Bearer "+expired.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "token expired")

	noSub := jwt.NewWithClaims(jwt.SigningMethodHS256, utils.Claims{Role: RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{
		Issuer: utils.Issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}})
	raw, err := noSub.SignedString([]byte(secret))
	require.NoError(t, err)
	rec, _ = serve(t, []echo.MiddlewareFunc{JWTAuth(secret)}, "Bearer "+raw)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid subject")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, utils.Claims{Role: RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{
		Issuer: utils.Issuer, Subject: "42", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}})
	raw, err = none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	rec, _ = serve(t, []echo.MiddlewareFunc{JWTAuth(secret)}, "Bearer "+raw)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	mw := []echo.MiddlewareFunc{JWTAuth(secret), RequireRole(RoleAdmin)}
	rec, _ := serve(t, mw, bearer(t, 1, RoleAdmin))
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = serve(t, mw, bearer(t, 2, RoleDistributor))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestNewTokenBucket_DisabledPassesThrough(t *testing.T) {
	rec, _ := serve(t, []echo.MiddlewareFunc{NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil)}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/schedules/7/sales", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/schedules/:id/sales")
	c.Set(ContextUserID, float64(42))

	cfg := config.RateLimitConfig{Prefix: "inv:rl", KeyStrategy: "user_route"}
	assert.Equal(t, "inv:rl:user:42:route:POST /v1/schedules/:id/sales", buildRateKey(cfg, c))

	c.Set(ContextUserID, nil)
	cfg.KeyStrategy = "user"
	assert.Equal(t, "inv:rl:user:anon", buildRateKey(cfg, c))

	cfg.KeyStrategy = "unknown"
	assert.Equal(t, "inv:rl:ip:192.0.2.1:user:anon:route:POST /v1/schedules/:id/sales", buildRateKey(cfg, c))
}

func TestMetrics(t *testing.T) {
	rec, _ := serve(t, []echo.MiddlewareFunc{Metrics()}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
