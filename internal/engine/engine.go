// Package engine owns the shopper's cart: it applies optimistic mutations,
// reconciles them with the cart service, keeps an anonymous fallback copy,
// migrates anonymous carts on login and revalidates promotions over time.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Skotchmaster/cartsync/internal/broadcast"
	"github.com/Skotchmaster/cartsync/internal/cartclient"
	"github.com/Skotchmaster/cartsync/internal/catalog"
	"github.com/Skotchmaster/cartsync/internal/identity"
	"github.com/Skotchmaster/cartsync/internal/localcache"
	"github.com/Skotchmaster/cartsync/internal/metrics"
	"github.com/Skotchmaster/cartsync/internal/models"
	"github.com/Skotchmaster/cartsync/internal/mykafka"
	"github.com/Skotchmaster/cartsync/internal/notify"
	"github.com/Skotchmaster/cartsync/internal/session"
	"github.com/Skotchmaster/cartsync/internal/storage"
)

const DefaultPromotionInterval = time.Minute

// Remote is the cart service. *cartclient.Client implements it.
type Remote interface {
	GetCart(ctx context.Context, addr cartclient.Address) (cartclient.Result, error)
	AddItem(ctx context.Context, addr cartclient.Address, req cartclient.ItemRequest) (cartclient.Result, error)
	UpdateQuantity(ctx context.Context, addr cartclient.Address, itemID int64, qty int) (cartclient.Result, error)
	RemoveItem(ctx context.Context, addr cartclient.Address, itemID int64) (cartclient.Result, error)
	Clear(ctx context.Context, addr cartclient.Address) (cartclient.Result, error)
	Migrate(ctx context.Context, addr cartclient.Address, sessionID string) (cartclient.Result, error)
}

type Engine struct {
	Remote   Remote
	Identity identity.Provider
	Cache    *localcache.Store
	Session  *session.Provider
	// Catalog is optional; without it promotions are checked against the
	// products already linked to cart items.
	Catalog  catalog.Catalog
	State    *broadcast.Broadcaster
	Notifier notify.Notifier
	Events   mykafka.Publisher
	Now      func() time.Time

	PromotionInterval time.Duration

	pending     atomic.Int64
	lastLocalID atomic.Int64
	migrated    atomic.Bool
	migrateMu   sync.Mutex
}

// New wires an engine over kv for local state. The cache and session
// provider share the engine clock.
func New(remote Remote, id identity.Provider, kv storage.KV) *Engine {
	e := &Engine{
		Remote:            remote,
		Identity:          id,
		State:             broadcast.New(models.NewCart("", "")),
		Notifier:          notify.Log{},
		Events:            mykafka.Nop{},
		Now:               time.Now,
		PromotionInterval: DefaultPromotionInterval,
	}
	now := func() time.Time { return e.Now() }
	e.Cache = &localcache.Store{KV: kv, Identity: id, Now: now, TTL: localcache.DefaultTTL}
	e.Session = &session.Provider{KV: kv, Now: now}
	return e
}

// Pending is the number of operations awaiting the cart service.
func (e *Engine) Pending() int64 { return e.pending.Load() }

func (e *Engine) IsLoading() bool { return e.Pending() > 0 }

// Cart returns the currently published cart.
func (e *Engine) Cart() models.Cart { return e.State.Current() }

func (e *Engine) Subscribe() broadcast.Subscriber { return e.State.Subscribe() }

func (e *Engine) Unsubscribe(sub broadcast.Subscriber) { e.State.Unsubscribe(sub) }

// Migrated reports whether the current login's anonymous cart was migrated.
func (e *Engine) Migrated() bool { return e.migrated.Load() }

func (e *Engine) begin() {
	e.pending.Add(1)
	metrics.PendingOperations.Inc()
}

func (e *Engine) end() {
	e.pending.Add(-1)
	metrics.PendingOperations.Dec()
}

// nextLocalID derives a pending id from the clock, bumped so it never repeats.
func (e *Engine) nextLocalID() int64 {
	now := e.Now().UnixMilli()
	for {
		last := e.lastLocalID.Load()
		id := now
		if id <= last {
			id = last + 1
		}
		if e.lastLocalID.CompareAndSwap(last, id) {
			return id
		}
	}
}

// address picks the bearer token when logged in, else the session id,
// creating one if needed.
func (e *Engine) address(ctx context.Context) (cartclient.Address, error) {
	if e.Identity.IsLoggedIn() {
		return cartclient.Address{Token: e.Identity.Token()}, nil
	}
	sid, err := e.Session.Get(ctx)
	if err != nil {
		return cartclient.Address{}, err
	}
	return cartclient.Address{SessionID: sid}, nil
}

// emptyCart is what an identity sees before the server says otherwise.
func (e *Engine) emptyCart(ctx context.Context) models.Cart {
	if e.Identity.IsLoggedIn() {
		return models.NewCart(e.Identity.UserID(), "")
	}
	sid, _, _ := e.Session.Peek(ctx)
	return models.NewCart("", sid)
}
