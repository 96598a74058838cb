package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	domain "github.com/Skotchmaster/cartsync/internal/models"
	"github.com/Skotchmaster/cartsync/internal/mykafka"
	"github.com/Skotchmaster/cartsync/pkg/db"
	"github.com/Skotchmaster/cartsync/pkg/tokens"
	"github.com/Skotchmaster/cartsync/services/cart/internal/models"
	"github.com/Skotchmaster/cartsync/services/cart/internal/repo"
	"github.com/Skotchmaster/cartsync/services/cart/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("cart-test-secret")

type testEnv struct {
	T *testing.T
	E *echo.Echo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(conn) })

	r := &repo.GormRepo{DB: conn}
	require.NoError(t, r.AutoMigrate(ctx))
	require.NoError(t, r.SaveProducts(ctx, []models.Product{
		service.FromDomainProduct(domain.Product{ID: 1, Name: "Koi", Price: 100, Stock: 3}),
	}))

	e := echo.New()
	Register(e, &Deps{
		CartHandler:  &CartHTTP{Svc: &service.CartService{Repo: r, Producer: mykafka.Nop{}}},
		JWTSecret:    secret,
		NewSessionID: func() string { return "session_new" },
	})
	return &testEnv{T: t, E: e}
}

func (env *testEnv) do(method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	env.T.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(env.T, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.E.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Panier  *domain.Cart `json:"panier"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func bearer(t *testing.T, user string) map[string]string {
	t.Helper()
	tok, err := tokens.NewAccessToken(secret, user, "user", time.Now().Add(time.Hour))
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + tok}
}

func TestGetCart_IssuesSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/panier", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "session_new", rec.Header().Get("X-Session-ID"))

	var cart domain.Cart
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cart))
	assert.Equal(t, "session_new", cart.SessionID)
	assert.Empty(t, cart.Items)
}

func TestAddItem(t *testing.T) {
	env := newTestEnv(t)
	sid := map[string]string{"X-Session-ID": "session_1"}

	rec := env.do(http.MethodPost, "/api/panier/items", map[string]any{"bassinId": 1, "quantity": 2, "prixOriginal": 100}, sid)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	require.True(t, resp.Success)
	require.NotNil(t, resp.Panier)
	require.Len(t, resp.Panier.Items, 1)
	assert.Equal(t, 200.0, resp.Panier.TotalPrice)
	assert.Empty(t, rec.Header().Get("X-Session-ID"))

	rec = env.do(http.MethodPost, "/api/panier/items", map[string]any{"bassinId": 1, "quantity": 2}, sid)
	require.Equal(t, http.StatusConflict, rec.Code)
	resp = decode(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "insufficient stock", resp.Message)

	rec = env.do(http.MethodPost, "/api/panier/items", map[string]any{"bassinId": 1, "quantity": 0}, sid)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/panier/items", map[string]any{"bassinId": 42, "quantity": 1}, sid)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateAndRemoveItem(t *testing.T) {
	env := newTestEnv(t)
	auth := bearer(t, "alice")

	rec := env.do(http.MethodPost, "/api/panier/items", map[string]any{"bassinId": 1, "quantity": 1}, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	id := decode(t, rec).Panier.Items[0].ID.Int64()
	path := "/api/panier/items/" + strconv.FormatInt(id, 10)

	rec = env.do(http.MethodPut, path, map[string]int{"quantity": 3}, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode(t, rec).Panier.Items[0].Quantity)

	rec = env.do(http.MethodPut, path, map[string]int{"quantity": 2}, map[string]string{"X-Session-ID": "session_other"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPut, "/api/panier/items/abc", map[string]int{"quantity": 2}, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodDelete, path, nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec).Panier.Items)

	rec = env.do(http.MethodDelete, "/api/panier", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode(t, rec).Success)
}

func TestInvalidBearerIsUnauthorized(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/panier", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMigrate(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/panier/items", map[string]any{"bassinId": 1, "quantity": 1}, map[string]string{"X-Session-ID": "session_1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPost, "/api/panier/migrate", map[string]string{"sessionId": "session_1"}, map[string]string{"X-Session-ID": "session_1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	auth := bearer(t, "alice")
	rec = env.do(http.MethodPost, "/api/panier/migrate", map[string]string{}, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/panier/migrate", map[string]string{"sessionId": "session_1"}, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	require.Len(t, resp.Panier.Items, 1)
	assert.Equal(t, "alice", resp.Panier.UserID)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health/live", nil, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health/ready", nil, nil).Code)
}
