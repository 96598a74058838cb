package engine

import (
	"context"
	"fmt"

	"github.com/Skotchmaster/cartsync/internal/cartclient"
	"github.com/Skotchmaster/cartsync/internal/models"
	"github.com/Skotchmaster/cartsync/pkg/logging"
)

// Load fetches the canonical cart for the current identity and publishes it.
// When the service cannot be reached anonymous shoppers get their local copy
// and logged-in shoppers an empty cart; the error is still returned.
// Promotions are checked on every load.
func (e *Engine) Load(ctx context.Context) (models.Cart, error) {
	e.begin()
	defer e.end()
	l := logging.FromContext(ctx).With("component", "engine", "op", opLoad)

	addr, err := e.address(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", cartclient.ErrTransient, err)
	} else {
		var res cartclient.Result
		res, err = e.Remote.GetCart(ctx, addr)
		if err == nil && res.Cart != nil {
			if res.SessionID != "" && addr.Token == "" {
				if serr := e.Session.Set(ctx, res.SessionID); serr == nil {
					addr.SessionID = res.SessionID
				}
			}
			cart := e.canonical(*res.Cart, addr)
			e.State.Publish(cart)
			if addr.Token == "" {
				e.writeCache(ctx, cart)
			}
			e.CheckPromotions(ctx)
			return e.State.Current(), nil
		}
		if err == nil {
			err = fmt.Errorf("empty cart response: %w", cartclient.ErrTransient)
		}
	}

	kind := classify(err)
	l.Warn("cart_load_failed", "kind", kind.String(), "error", err)

	var fallback models.Cart
	if kind == KindUnauthorized {
		e.Identity.Logout()
		e.Notifier.Error(ctx, msgSessionExpired)
	}
	if e.Identity.IsLoggedIn() {
		fallback = e.emptyCart(ctx)
	} else {
		cached, ok := e.Cache.Read(ctx)
		if ok {
			fallback = cached
		} else {
			fallback = e.emptyCart(ctx)
		}
		if fallback.SessionID == "" {
			fallback.SessionID = addr.SessionID
		}
	}
	e.State.Publish(fallback)
	e.CheckPromotions(ctx)
	return e.State.Current(), &Error{Op: opLoad, Kind: kind, Err: err}
}
