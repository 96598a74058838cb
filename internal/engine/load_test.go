package engine

import (
	"context"
	"testing"
	"time"

	"github.com/Skotchmaster/cartsync/internal/models"
	"github.com/Skotchmaster/cartsync/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_PublishesServerCart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	remote := newFakeRemote(pool(1, 100, 5))
	kv := storage.NewMemory()
	first := newHarnessWith(t, remote, kv)

	added, err := first.E.AddToCart(ctx, pool(1, 100, 5), 2, AddOptions{})
	require.NoError(t, err)

	second := newHarnessWith(t, remote, kv)
	cart, err := second.E.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, added.Items, cart.Items)
	assert.Equal(t, added.SessionID, cart.SessionID, "same stored session id")
	assert.Zero(t, second.E.Pending())
}

func TestLoad_RevalidatesPromotions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := pool(1, 100, 5)
	p.Promotion = &models.Promotion{ID: 1, Name: "Flash", Rate: 0.5, Start: testNow.Add(-time.Hour), End: testNow.Add(time.Minute)}
	h := newHarness(t, p)

	_, err := h.E.AddToCart(ctx, p, 1, AddOptions{})
	require.NoError(t, err)
	require.Equal(t, 50.0, h.E.Cart().TotalPrice)

	h.Clock.Set(testNow.Add(time.Hour))
	cart, err := h.E.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, cart.Items[0].Promo)
	assert.Equal(t, 100.0, cart.TotalPrice)
}

func TestLoad_AnonymousFallsBackToCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, pool(1, 100, 5))

	added, err := h.E.AddToCart(ctx, pool(1, 100, 5), 1, AddOptions{})
	require.NoError(t, err)

	h.Remote.setFail("get", errUnavailable)
	h.E.State.Publish(models.NewCart("", ""))

	cart, err := h.E.Load(ctx)
	require.Error(t, err)
	assert.Equal(t, KindTransient, KindOf(err))
	assert.Equal(t, added.Items, cart.Items)
	assert.Equal(t, cart, h.E.Cart())
}

func TestLoad_ExpiredCacheIsEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, pool(1, 100, 5))

	_, err := h.E.AddToCart(ctx, pool(1, 100, 5), 1, AddOptions{})
	require.NoError(t, err)

	h.Remote.setFail("get", errUnavailable)
	h.Clock.Set(testNow.Add(49 * time.Hour))

	cart, err := h.E.Load(ctx)
	require.Error(t, err)
	assert.True(t, cart.IsEmpty())
	assert.NotEmpty(t, cart.SessionID)
}

func TestLoad_AuthenticatedFailureShowsEmptyCart(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.login(t, "user-1")
	h.Remote.setFail("get", errUnavailable)

	cart, err := h.E.Load(context.Background())
	require.Error(t, err)
	assert.True(t, cart.IsEmpty())
	assert.Equal(t, "user-1", cart.UserID)
	assert.Equal(t, models.NewCartID, cart.ID)
}

func TestLoad_UnauthorizedLogsOut(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.login(t, "user-1")
	h.Remote.setFail("get", errUnauthorized)

	cart, err := h.E.Load(context.Background())
	assert.Equal(t, KindUnauthorized, KindOf(err))
	assert.False(t, h.Identity.IsLoggedIn())
	assert.Empty(t, cart.UserID)
	assert.Equal(t, []notice{{"error", msgSessionExpired}}, h.Notes.all())
}
