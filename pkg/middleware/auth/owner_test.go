package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Skotchmaster/cartsync/pkg/tokens"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("owner-secret")

func run(t *testing.T, h echo.HandlerFunc, mw echo.MiddlewareFunc, header map[string]string) (*httptest.ResponseRecorder, echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/panier", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, c, mw(h)(c)
}

func ok(c echo.Context) error { return c.NoContent(http.StatusOK) }

func TestResolveOwner(t *testing.T) {
	t.Parallel()
	m := NewCartOwnerMiddleware(secret, func() string { return "session_issued" })

	tok, err := tokens.NewAccessToken(secret, "user-7", "user", time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, c, err := run(t, ok, m.ResolveOwner, map[string]string{"Authorization": "Bearer " + tok, SessionHeader: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, "user-7", c.Get("user_id"))
	assert.Nil(t, c.Get("session_id"))

	_, c, err = run(t, ok, m.ResolveOwner, map[string]string{SessionHeader: "session_1"})
	require.NoError(t, err)
	assert.Equal(t, "session_1", c.Get("session_id"))

	rec, c, err := run(t, ok, m.ResolveOwner, nil)
	require.NoError(t, err)
	assert.Equal(t, "session_issued", c.Get("session_id"))
	assert.Equal(t, "session_issued", rec.Header().Get(SessionHeader))
}

func TestResolveOwner_BadToken(t *testing.T) {
	t.Parallel()
	m := NewCartOwnerMiddleware(secret, func() string { return "s" })

	expired, err := tokens.NewAccessToken(secret, "user-7", "user", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	foreign, err := tokens.NewAccessToken([]byte("other"), "user-7", "user", time.Now().Add(time.Hour))
	require.NoError(t, err)

	for _, tok := range []string{expired, foreign, "garbage"} {
		_, _, err := run(t, ok, m.ResolveOwner, map[string]string{"Authorization": "Bearer " + tok})
		var he *echo.HTTPError
		require.ErrorAs(t, err, &he)
		assert.Equal(t, http.StatusUnauthorized, he.Code)
	}
}

func TestRequireUser(t *testing.T) {
	t.Parallel()
	m := NewCartOwnerMiddleware(secret, func() string { return "s" })

	_, _, err := run(t, ok, m.RequireUser, map[string]string{SessionHeader: "session_1"})
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusUnauthorized, he.Code)

	tok, err := tokens.NewAccessToken(secret, "user-7", "admin", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, c, err := run(t, ok, m.RequireUser, map[string]string{"Authorization": "Bearer " + tok})
	require.NoError(t, err)
	assert.Equal(t, "admin", c.Get("role"))
}
