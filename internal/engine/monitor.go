package engine

import (
	"context"
	"reflect"
	"time"

	"github.com/Skotchmaster/cartsync/internal/metrics"
	"github.com/Skotchmaster/cartsync/internal/models"
	"github.com/Skotchmaster/cartsync/internal/pricing"
	"github.com/Skotchmaster/cartsync/pkg/logging"
)

const msgPricesUpdated = "Prices in your cart were updated: a promotion started or ended"

// CheckPromotions re-evaluates every item's promotion window against the
// clock. It publishes and notifies once when at least one item changed and
// reports whether that happened.
func (e *Engine) CheckPromotions(ctx context.Context) bool {
	var changed int
	_, after := e.State.Update(func(c models.Cart) (models.Cart, bool) {
		next, n := pricing.Revalidate(c, e.Now())
		changed = n
		if n == 0 {
			return c, false
		}
		next.LastUpdated = e.Now()
		return next, true
	})
	if changed == 0 {
		return false
	}

	logging.FromContext(ctx).With("component", "monitor").Info("promotions_transitioned", "items", changed, "total", after.TotalPrice)
	metrics.PromotionTransitionsTotal.Add(float64(changed))
	if !e.Identity.IsLoggedIn() {
		e.writeCache(ctx, after)
	}
	e.Notifier.Info(ctx, msgPricesUpdated)
	e.emit(ctx, "promotions_updated", after)
	return true
}

// WatchPromotions checks promotions now and then every PromotionInterval
// until ctx is done.
func (e *Engine) WatchPromotions(ctx context.Context) {
	interval := e.PromotionInterval
	if interval <= 0 {
		interval = DefaultPromotionInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.CheckPromotions(ctx)
	for {
		select {
		case <-ticker.C:
			e.CheckPromotions(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RefreshPromotions reloads the products linked to cart items from the
// catalog, then checks promotions against them.
func (e *Engine) RefreshPromotions(ctx context.Context) (bool, error) {
	if e.Catalog == nil {
		return e.CheckPromotions(ctx), nil
	}

	cur := e.State.Current()
	seen := make(map[int64]bool)
	var ids []int64
	for _, it := range cur.Items {
		if it.ProductID != nil && !seen[*it.ProductID] {
			seen[*it.ProductID] = true
			ids = append(ids, *it.ProductID)
		}
	}
	if len(ids) == 0 {
		return false, nil
	}

	products, err := e.Catalog.Products(ctx, ids)
	if err != nil {
		logging.FromContext(ctx).With("component", "monitor").Warn("catalog_refresh_failed", "error", err)
		return e.CheckPromotions(ctx), err
	}

	e.State.Update(func(c models.Cart) (models.Cart, bool) {
		dirty := false
		for i, it := range c.Items {
			if it.ProductID == nil {
				continue
			}
			p, ok := products[*it.ProductID]
			if !ok || (it.Product != nil && reflect.DeepEqual(*it.Product, p)) {
				continue
			}
			updated := it.Clone()
			fresh := p
			updated.Product = &fresh
			c.Items[i] = updated
			dirty = true
		}
		if !dirty {
			return c, false
		}
		return pricing.NormalizeCart(c), true
	})
	return e.CheckPromotions(ctx), nil
}
