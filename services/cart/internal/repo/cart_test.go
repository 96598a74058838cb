package repo

import (
	"context"
	"testing"

	"github.com/Skotchmaster/cartsync/pkg/db"
	"github.com/Skotchmaster/cartsync/services/cart/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestRepo(t *testing.T) *GormRepo {
	t.Helper()
	conn, err := db.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(conn) })

	r := &GormRepo{DB: conn}
	require.NoError(t, r.AutoMigrate(context.Background()))
	return r
}

func line(productID int64, qty int, props string) *models.CartItem {
	return &models.CartItem{ProductID: &productID, ProductName: "Bassin", Quantity: qty, CustomProperties: props, IsCustomized: props != ""}
}

var (
	anon  = models.Owner{SessionID: "session_1"}
	alice = models.Owner{UserID: "alice"}
)

func TestGormRepo_GetOrCreateCart(t *testing.T) {
	t.Parallel()
	r := newTestRepo(t)
	ctx := context.Background()

	_, err := r.FindCart(ctx, anon)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	first, err := r.GetOrCreateCart(ctx, anon)
	require.NoError(t, err)
	require.NotNil(t, first.SessionID)
	assert.Nil(t, first.UserID)
	assert.Empty(t, first.Items)

	again, err := r.GetOrCreateCart(ctx, anon)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
}

func TestGormRepo_AddItemMerges(t *testing.T) {
	t.Parallel()
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.AddItem(ctx, anon, line(1, 2, "")))
	merged := line(1, 3, "")
	require.NoError(t, r.AddItem(ctx, anon, merged))
	assert.Equal(t, 5, merged.Quantity)

	require.NoError(t, r.AddItem(ctx, anon, line(1, 1, `{"couleurSelectionnee":"bleu"}`)))
	require.NoError(t, r.AddItem(ctx, anon, line(2, 1, "")))

	cart, err := r.FindCart(ctx, anon)
	require.NoError(t, err)
	require.Len(t, cart.Items, 3)
	assert.Equal(t, 5, cart.Items[0].Quantity)
	assert.True(t, cart.Items[1].IsCustomized)
}

func TestGormRepo_ItemOpsScopedToOwner(t *testing.T) {
	t.Parallel()
	r := newTestRepo(t)
	ctx := context.Background()

	item := line(1, 1, "")
	require.NoError(t, r.AddItem(ctx, anon, item))

	require.ErrorIs(t, r.UpdateQuantity(ctx, alice, item.ID, 4), gorm.ErrRecordNotFound)
	require.ErrorIs(t, r.RemoveItem(ctx, alice, item.ID), gorm.ErrRecordNotFound)

	require.NoError(t, r.UpdateQuantity(ctx, anon, item.ID, 4))
	cart, err := r.FindCart(ctx, anon)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 4, cart.Items[0].Quantity)

	require.NoError(t, r.RemoveItem(ctx, anon, item.ID))
	cart, err = r.FindCart(ctx, anon)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestGormRepo_Clear(t *testing.T) {
	t.Parallel()
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Clear(ctx, alice))

	require.NoError(t, r.AddItem(ctx, alice, line(1, 1, "")))
	require.NoError(t, r.AddItem(ctx, alice, line(2, 1, "")))
	require.NoError(t, r.Clear(ctx, alice))
	require.NoError(t, r.Clear(ctx, alice))

	cart, err := r.FindCart(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestGormRepo_MoveCart(t *testing.T) {
	t.Parallel()
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.AddItem(ctx, alice, line(1, 1, "")))
	require.NoError(t, r.AddItem(ctx, anon, line(1, 2, "")))
	require.NoError(t, r.AddItem(ctx, anon, line(3, 1, "")))

	moved, err := r.MoveCart(ctx, anon.SessionID, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, 2, moved)

	cart, err := r.FindCart(ctx, alice)
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.Equal(t, int64(3), *cart.Items[1].ProductID)

	_, err = r.FindCart(ctx, anon)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	moved, err = r.MoveCart(ctx, "session_unknown", alice.UserID)
	require.NoError(t, err)
	assert.Zero(t, moved)
}

func TestGormRepo_Products(t *testing.T) {
	t.Parallel()
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.SaveProducts(ctx, []models.Product{{ID: 1, Name: "Koi", Price: 100, Stock: 3}, {ID: 2, Name: "Lotus", Price: 50}}))
	require.NoError(t, r.SaveProducts(ctx, []models.Product{{ID: 1, Name: "Koi", Price: 120, Stock: 3}}))

	p, err := r.Product(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 120.0, p.Price)

	_, err = r.Product(ctx, 9)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	all, err := r.Products(ctx, []int64{1, 2, 9})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
