// Package pricing computes per-item and per-cart prices. All amounts are
// rounded half away from zero to two decimal places.
package pricing

import (
	"time"

	"github.com/Skotchmaster/cartsync/internal/models"
	"github.com/shopspring/decimal"
)

const places = 2

func round(d decimal.Decimal) float64 {
	return d.Round(places).InexactFloat64()
}

// BasePrice is the item's original price, else its linked product price, else 0.
func BasePrice(item models.CartItem) float64 {
	switch {
	case item.OriginalPrice != nil:
		return *item.OriginalPrice
	case item.Product != nil:
		return item.Product.Price
	default:
		return 0
	}
}

// EffectivePrice resolves the unit price. A customization estimate wins over
// the base price, and an active promotion discounts whichever one applies.
func EffectivePrice(item models.CartItem) float64 {
	unit := decimal.NewFromFloat(BasePrice(item))
	if item.Customization != nil && item.Customization.EstimatedPrice != nil {
		unit = decimal.NewFromFloat(*item.Customization.EstimatedPrice)
	}
	if item.Promo != nil {
		unit = unit.Mul(decimal.NewFromInt(1).Sub(decimal.NewFromFloat(item.Promo.Rate)))
	}
	return round(unit)
}

func Subtotal(item models.CartItem) float64 {
	return round(decimal.NewFromFloat(EffectivePrice(item)).Mul(decimal.NewFromInt(int64(item.Quantity))))
}

// CartTotal sums item subtotals as stored on the items.
func CartTotal(cart models.Cart) float64 {
	total := decimal.Zero
	for _, it := range cart.Items {
		total = total.Add(decimal.NewFromFloat(it.Subtotal))
	}
	return round(total)
}

// Normalize recomputes the derived price fields of one item.
func Normalize(item models.CartItem) models.CartItem {
	if item.OriginalPrice == nil && item.Product != nil {
		item.OriginalPrice = models.Ptr(item.Product.Price)
	}
	item.EffectivePrice = EffectivePrice(item)
	item.Subtotal = Subtotal(item)
	return item
}

// NormalizeCart re-prices every item and the cart total. The input is not
// modified.
func NormalizeCart(cart models.Cart) models.Cart {
	out := cart.Clone()
	for i := range out.Items {
		out.Items[i] = Normalize(out.Items[i])
	}
	out.TotalPrice = CartTotal(out)
	return out
}

// Revalidate re-derives each item's promotion from its linked product as of
// now and returns the updated cart with the number of items whose promotion
// state changed. Items without a linked product keep what the server gave them.
func Revalidate(cart models.Cart, now time.Time) (models.Cart, int) {
	out := cart.Clone()
	changed := 0
	for i, it := range out.Items {
		if it.Product == nil {
			continue
		}
		promo := it.Product.Promotion
		switch {
		case promo == nil && it.Promo != nil:
			it.Promo = nil
		case promo != nil && promo.ActiveAt(now) && it.Promo == nil:
			it.Promo = &models.AppliedPromotion{ID: promo.ID, Name: promo.Name, Rate: promo.Rate}
		case promo != nil && !promo.ActiveAt(now) && it.Promo != nil:
			it.Promo = nil
		default:
			continue
		}
		out.Items[i] = Normalize(it)
		changed++
	}
	if changed > 0 {
		out.TotalPrice = CartTotal(out)
	}
	return out, changed
}
