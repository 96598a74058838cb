package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/Skotchmaster/cartsync/internal/cartclient"
	"github.com/Skotchmaster/cartsync/internal/metrics"
	"github.com/Skotchmaster/cartsync/internal/models"
	"github.com/Skotchmaster/cartsync/internal/pricing"
	"github.com/Skotchmaster/cartsync/pkg/logging"
)

const (
	opAdd    = "add"
	opRemove = "remove"
	opUpdate = "update_quantity"
	opClear  = "clear"
	opLoad   = "load"
)

const (
	msgSessionExpired    = "Your session has expired, please log in again"
	msgInsufficientStock = "Insufficient stock for this product"
	msgOffline           = "Cart saved on this device, it will sync once the connection is back"
	msgNetwork           = "Network error, your cart was not changed"
	msgUnconfirmed       = "Your cart was updated but could not be refreshed yet"
)

type AddOptions struct {
	// Promotion overrides the product's own promotion. It is applied only
	// while active.
	Promotion     *models.Promotion
	Customization *models.Customization
}

type mutation struct {
	op string
	// apply computes the tentative cart; false leaves the cart untouched.
	apply func(models.Cart) (models.Cart, bool)
	// call performs the remote side. Nil means the change is local only.
	call    func(ctx context.Context, addr cartclient.Address) (cartclient.Result, error)
	success string
}

func (e *Engine) AddToCart(ctx context.Context, product models.Product, qty int, opts AddOptions) (models.Cart, error) {
	customized := opts.Customization != nil
	switch {
	case qty <= 0:
		return e.invalid(ctx, opAdd, ErrInvalidQuantity)
	case !customized && product.Stock <= 0:
		return e.invalid(ctx, opAdd, ErrOutOfStock)
	case !customized && qty > product.Stock:
		return e.invalid(ctx, opAdd, fmt.Errorf("requested %d, %d left: %w", qty, product.Stock, ErrInsufficientStock))
	}

	item := e.newItem(product, qty, opts)
	return e.run(ctx, mutation{
		op: opAdd,
		apply: func(c models.Cart) (models.Cart, bool) {
			for i := range c.Items {
				if c.Items[i].SameLine(item) {
					merged := c.Items[i].Clone()
					merged.Quantity += qty
					c.Items[i] = merged
					return c, true
				}
			}
			c.Items = append(c.Items, item.Clone())
			return c, true
		},
		call: func(ctx context.Context, addr cartclient.Address) (cartclient.Result, error) {
			return e.Remote.AddItem(ctx, addr, e.itemRequest(item, addr))
		},
		success: "Product added to cart",
	})
}

func (e *Engine) newItem(product models.Product, qty int, opts AddOptions) models.CartItem {
	p := product
	if product.Promotion != nil {
		promo := *product.Promotion
		p.Promotion = &promo
	}
	item := models.CartItem{
		ID:            models.Pending(e.nextLocalID()),
		ProductID:     models.Ptr(product.ID),
		ProductName:   product.Name,
		Product:       &p,
		Quantity:      qty,
		OriginalPrice: models.Ptr(product.Price),
		ImageURL:      product.ImageURL,
	}
	if c := opts.Customization.Clone(); c != nil {
		if c.ImageURL == "" {
			c.ImageURL = product.ImageURL
		}
		if c.EstimatedPrice != nil {
			item.OriginalPrice = models.Ptr(*c.EstimatedPrice)
		}
		item.Customization = c
	}

	promo := opts.Promotion
	if promo == nil {
		promo = product.Promotion
	}
	if promo != nil && promo.ActiveAt(e.Now()) {
		item.Promo = &models.AppliedPromotion{ID: promo.ID, Name: promo.Name, Rate: promo.Rate}
	}
	return pricing.Normalize(item)
}

func (e *Engine) itemRequest(item models.CartItem, addr cartclient.Address) cartclient.ItemRequest {
	req := cartclient.ItemRequest{
		Quantity:      item.Quantity,
		OriginalPrice: pricing.BasePrice(item),
		IsCustomized:  item.IsCustomized(),
		SessionID:     addr.SessionID,
		Customization: item.Customization.Clone(),
	}
	if item.ProductID != nil {
		req.ProductID = *item.ProductID
	}
	if addr.Token != "" {
		req.UserID = e.Identity.UserID()
	}
	if item.Promo != nil {
		req.PromotionID = item.Promo.ID
		req.PromotionName = item.Promo.Name
		req.Rate = item.Promo.Rate
	}
	return req
}

func (e *Engine) RemoveFromCart(ctx context.Context, id models.ItemID) (models.Cart, error) {
	if e.State.Current().Find(id) < 0 {
		return e.invalid(ctx, opRemove, fmt.Errorf("item %s: %w", id, ErrItemNotFound))
	}

	m := mutation{
		op: opRemove,
		apply: func(c models.Cart) (models.Cart, bool) {
			i := c.Find(id)
			if i < 0 {
				return c, false
			}
			c.Items = append(c.Items[:i:i], c.Items[i+1:]...)
			return c, true
		},
		success: "Product removed from cart",
	}
	if serverID, ok := id.ServerID(); ok {
		m.call = func(ctx context.Context, addr cartclient.Address) (cartclient.Result, error) {
			return e.Remote.RemoveItem(ctx, addr, serverID)
		}
	}
	return e.run(ctx, m)
}

// UpdateQuantity sets an absolute quantity. Zero or less removes the item.
func (e *Engine) UpdateQuantity(ctx context.Context, id models.ItemID, qty int) (models.Cart, error) {
	if qty <= 0 {
		return e.RemoveFromCart(ctx, id)
	}

	cur := e.State.Current()
	i := cur.Find(id)
	if i < 0 {
		return e.invalid(ctx, opUpdate, fmt.Errorf("item %s: %w", id, ErrItemNotFound))
	}
	if it := cur.Items[i]; !it.IsCustomized() && it.Product != nil && qty > it.Product.Stock {
		return e.invalid(ctx, opUpdate, fmt.Errorf("requested %d, %d left: %w", qty, it.Product.Stock, ErrInsufficientStock))
	}

	m := mutation{
		op: opUpdate,
		apply: func(c models.Cart) (models.Cart, bool) {
			i := c.Find(id)
			if i < 0 {
				return c, false
			}
			updated := c.Items[i].Clone()
			updated.Quantity = qty
			c.Items[i] = updated
			return c, true
		},
		success: "Quantity updated",
	}
	if serverID, ok := id.ServerID(); ok {
		m.call = func(ctx context.Context, addr cartclient.Address) (cartclient.Result, error) {
			return e.Remote.UpdateQuantity(ctx, addr, serverID, qty)
		}
	}
	return e.run(ctx, m)
}

// ClearCart empties the cart. Clearing an empty cart succeeds.
func (e *Engine) ClearCart(ctx context.Context) (models.Cart, error) {
	return e.run(ctx, mutation{
		op: opClear,
		apply: func(c models.Cart) (models.Cart, bool) {
			c.Items = []models.CartItem{}
			return c, true
		},
		call: func(ctx context.Context, addr cartclient.Address) (cartclient.Result, error) {
			return e.Remote.Clear(ctx, addr)
		},
		success: "Cart cleared",
	})
}

func (e *Engine) invalid(ctx context.Context, op string, err error) (models.Cart, error) {
	logging.FromContext(ctx).With("component", "engine", "op", op).Warn("cart_validation_failed", "error", err)
	metrics.MutationsTotal.WithLabelValues(op, KindValidation.String()).Inc()
	e.Notifier.Error(ctx, validationMessage(err))
	return e.State.Current(), &Error{Op: op, Kind: KindValidation, Err: err}
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, ErrOutOfStock):
		return "This product is out of stock"
	case errors.Is(err, ErrInsufficientStock):
		return msgInsufficientStock
	case errors.Is(err, ErrInvalidQuantity):
		return "Quantity must be at least 1"
	case errors.Is(err, ErrItemNotFound):
		return "This item is no longer in your cart"
	default:
		return "Invalid cart operation"
	}
}

// run applies m tentatively, performs the remote call and then either
// reconciles with the server cart or recovers from the failure.
func (e *Engine) run(ctx context.Context, m mutation) (models.Cart, error) {
	e.begin()
	defer e.end()

	anonymous := !e.Identity.IsLoggedIn()
	snapshot, tentative := e.State.Update(func(c models.Cart) (models.Cart, bool) {
		next, ok := m.apply(c)
		if !ok {
			return c, false
		}
		next = pricing.NormalizeCart(next)
		next.LastUpdated = e.Now()
		return next, true
	})

	if m.call == nil {
		if anonymous {
			e.writeCache(ctx, tentative)
		}
		metrics.MutationsTotal.WithLabelValues(m.op, "local").Inc()
		return tentative, nil
	}

	addr, err := e.address(ctx)
	if err != nil {
		return e.rollback(ctx, m.op, snapshot, tentative, anonymous, fmt.Errorf("%w: %w", cartclient.ErrTransient, err))
	}

	timer := metrics.NewTimer()
	res, err := m.call(ctx, addr)
	timer.ObserveDurationVec(metrics.RemoteRequestDuration, m.op)
	if err != nil {
		return e.rollback(ctx, m.op, snapshot, tentative, anonymous, err)
	}

	cart, confirmed := e.reconcile(ctx, res, addr)
	if !confirmed {
		metrics.MutationsTotal.WithLabelValues(m.op, "unconfirmed").Inc()
		e.Notifier.Info(ctx, msgUnconfirmed)
		return cart, nil
	}
	metrics.MutationsTotal.WithLabelValues(m.op, "success").Inc()
	e.Notifier.Success(ctx, m.success)
	e.emit(ctx, "cart_"+m.op, cart)
	return cart, nil
}

// reconcile publishes the server's cart in place of the tentative one. It
// reports false when no server cart could be obtained; the tentative cart
// then stays published.
func (e *Engine) reconcile(ctx context.Context, res cartclient.Result, addr cartclient.Address) (models.Cart, bool) {
	if res.SessionID != "" && addr.Token == "" {
		if err := e.Session.Set(ctx, res.SessionID); err != nil {
			logging.FromContext(ctx).Warn("session_adopt_failed", "error", err)
		} else {
			addr.SessionID = res.SessionID
		}
	}

	var server models.Cart
	if res.Cart != nil {
		server = *res.Cart
	} else {
		fetched, err := e.Remote.GetCart(ctx, addr)
		if err != nil || fetched.Cart == nil {
			tentative := e.State.Current()
			logging.FromContext(ctx).Warn("cart_unconfirmed", "error", err, "items", len(tentative.Items))
			if addr.Token == "" {
				e.writeCache(ctx, tentative)
			}
			return tentative, false
		}
		server = *fetched.Cart
	}

	cart := e.canonical(server, addr)
	e.State.Publish(cart)
	if addr.Token == "" {
		e.writeCache(ctx, cart)
	}
	return cart, true
}

// canonical re-prices a server cart and pins its owner to addr.
func (e *Engine) canonical(server models.Cart, addr cartclient.Address) models.Cart {
	if server.Items == nil {
		server.Items = []models.CartItem{}
	}
	cart := pricing.NormalizeCart(server)
	if addr.Token != "" {
		if cart.UserID == "" {
			cart.UserID = e.Identity.UserID()
		}
		cart.SessionID = ""
	} else {
		cart.UserID = ""
		if addr.SessionID != "" {
			cart.SessionID = addr.SessionID
		}
	}
	if cart.LastUpdated.IsZero() {
		cart.LastUpdated = e.Now()
	}
	return cart
}

// rollback classifies a failed remote call and leaves a valid published cart.
// Anonymous shoppers keep their tentative change when the service is
// unreachable.
func (e *Engine) rollback(ctx context.Context, op string, snapshot, tentative models.Cart, anonymous bool, err error) (models.Cart, error) {
	l := logging.FromContext(ctx).With("component", "engine", "op", op)

	kind := classify(err)
	metrics.MutationsTotal.WithLabelValues(op, kind.String()).Inc()

	if kind == KindTransient && anonymous {
		l.Warn("cart_mutation_offline", "error", err)
		e.writeCache(ctx, tentative)
		e.Notifier.Info(ctx, msgOffline)
		return tentative, nil
	}

	l.Error("cart_mutation_failed", "kind", kind.String(), "error", err)
	e.State.Publish(snapshot)
	if anonymous {
		e.writeCache(ctx, snapshot)
	}

	switch kind {
	case KindUnauthorized:
		e.Identity.Logout()
		e.Notifier.Error(ctx, msgSessionExpired)
	case KindConflict:
		e.Notifier.Error(ctx, msgInsufficientStock)
	case KindTransient:
		e.Notifier.Error(ctx, msgNetwork)
	default:
		e.Notifier.Error(ctx, rejectionMessage(err))
	}
	return snapshot, &Error{Op: op, Kind: kind, Err: err}
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, cartclient.ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, cartclient.ErrConflict):
		return KindConflict
	case errors.Is(err, cartclient.ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	default:
		return KindRejected
	}
}

func rejectionMessage(err error) string {
	var se *cartclient.StatusError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return "The cart service refused the change"
}

func (e *Engine) writeCache(ctx context.Context, cart models.Cart) {
	if err := e.Cache.Write(ctx, cart); err != nil {
		logging.FromContext(ctx).Warn("local_cart_write_failed", "error", err)
	}
}
