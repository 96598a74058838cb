package middleware

import (
	"net/http"
	"strings"

	"github.com/Skotchmaster/cartsync/pkg/tokens"
	"github.com/labstack/echo/v4"
)

const SessionHeader = "X-Session-ID"

// CartOwnerMiddleware resolves whose cart a request addresses: a bearer
// token, else the X-Session-ID header, else a freshly issued session id that
// is echoed back in the response header.
type CartOwnerMiddleware struct {
	JWTSecret    []byte
	NewSessionID func() string
}

func NewCartOwnerMiddleware(secret []byte, newSessionID func() string) *CartOwnerMiddleware {
	return &CartOwnerMiddleware{
		JWTSecret:    secret,
		NewSessionID: newSessionID,
	}
}

func (m *CartOwnerMiddleware) ResolveOwner(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if raw, ok := bearer(c); ok {
			claims, err := tokens.AccessClaimsFromToken(raw, m.JWTSecret)
			if err != nil || claims == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
			}
			setUserContext(c, claims)
			return next(c)
		}

		sid := strings.TrimSpace(c.Request().Header.Get(SessionHeader))
		if sid == "" {
			sid = m.NewSessionID()
			c.Response().Header().Set(SessionHeader, sid)
		}
		c.Set("session_id", sid)
		return next(c)
	}
}

// RequireUser rejects requests not carrying a valid bearer token.
func (m *CartOwnerMiddleware) RequireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, ok := bearer(c)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		}
		claims, err := tokens.AccessClaimsFromToken(raw, m.JWTSecret)
		if err != nil || claims == nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
		}
		setUserContext(c, claims)
		return next(c)
	}
}

func bearer(c echo.Context) (string, bool) {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

func setUserContext(c echo.Context, claims *tokens.AccessClaims) {
	c.Set("user_id", claims.Subject)
	c.Set("role", claims.Role)
}
