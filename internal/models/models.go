package models

import (
	"reflect"
	"time"
)

// NewCartID marks a cart the server has not created yet.
const NewCartID int64 = -1

type Promotion struct {
	ID    int64     `json:"idPromotion"`
	Name  string    `json:"nomPromotion"`
	Rate  float64   `json:"tauxReduction"`
	Start time.Time `json:"dateDebut"`
	End   time.Time `json:"dateFin"`
}

// ActiveAt reports whether now lies in [Start, End], both ends inclusive.
func (p Promotion) ActiveAt(now time.Time) bool {
	return !now.Before(p.Start) && !now.After(p.End)
}

type Product struct {
	ID        int64      `json:"idBassin"`
	Name      string     `json:"nomBassin"`
	Price     float64    `json:"prix"`
	Stock     int        `json:"stock"`
	ImageURL  string     `json:"imageUrl,omitempty"`
	Promotion *Promotion `json:"promotion,omitempty"`
}

type Accessory struct {
	ID    int64   `json:"idAccessoire"`
	Name  string  `json:"nomAccessoire"`
	Price float64 `json:"prixAccessoire"`
}

type Customization struct {
	Material              string      `json:"materiauSelectionne,omitempty"`
	Dimension             string      `json:"dimensionSelectionnee,omitempty"`
	Color                 string      `json:"couleurSelectionnee,omitempty"`
	Accessories           []Accessory `json:"accessoires,omitempty"`
	EstimatedPrice        *float64    `json:"prixEstime,omitempty"`
	ManufacturingDuration string      `json:"dureeFabrication,omitempty"`
	ImageURL              string      `json:"imageUrl,omitempty"`
}

// Equal compares two payloads by value; nil only equals nil.
func (c *Customization) Equal(o *Customization) bool {
	if c == nil || o == nil {
		return c == nil && o == nil
	}
	return reflect.DeepEqual(c.normalized(), o.normalized())
}

func (c *Customization) normalized() Customization {
	n := *c
	if len(n.Accessories) == 0 {
		n.Accessories = nil
	}
	return n
}

func (c *Customization) Clone() *Customization {
	if c == nil {
		return nil
	}
	n := *c
	if c.Accessories != nil {
		n.Accessories = append([]Accessory(nil), c.Accessories...)
	}
	if c.EstimatedPrice != nil {
		v := *c.EstimatedPrice
		n.EstimatedPrice = &v
	}
	return &n
}

// AppliedPromotion is the promotion unit carried by an item. Name and rate
// are only ever set or cleared together.
type AppliedPromotion struct {
	ID   int64
	Name string
	Rate float64
}

type CartItem struct {
	ID             ItemID
	ProductID      *int64
	ProductName    string
	Product        *Product
	Quantity       int
	OriginalPrice  *float64
	Promo          *AppliedPromotion
	EffectivePrice float64
	Subtotal       float64
	Customization  *Customization
	ImageURL       string
}

func (i CartItem) IsCustomized() bool { return i.Customization != nil }

func (i CartItem) PromotionActive() bool { return i.Promo != nil }

// SameLine reports whether two items describe the same cart row: same
// product and deep-equal customization.
func (i CartItem) SameLine(o CartItem) bool {
	if (i.ProductID == nil) != (o.ProductID == nil) {
		return false
	}
	if i.ProductID != nil && *i.ProductID != *o.ProductID {
		return false
	}
	return i.Customization.Equal(o.Customization)
}

func (i CartItem) Clone() CartItem {
	n := i
	if i.ProductID != nil {
		v := *i.ProductID
		n.ProductID = &v
	}
	if i.OriginalPrice != nil {
		v := *i.OriginalPrice
		n.OriginalPrice = &v
	}
	if i.Promo != nil {
		p := *i.Promo
		n.Promo = &p
	}
	if i.Product != nil {
		p := *i.Product
		if i.Product.Promotion != nil {
			promo := *i.Product.Promotion
			p.Promotion = &promo
		}
		n.Product = &p
	}
	n.Customization = i.Customization.Clone()
	return n
}

type Cart struct {
	ID          int64      `json:"id"`
	UserID      string     `json:"userId,omitempty"`
	SessionID   string     `json:"sessionId,omitempty"`
	Items       []CartItem `json:"items"`
	TotalPrice  float64    `json:"totalPrice"`
	LastUpdated time.Time  `json:"lastUpdated"`
}

func NewCart(userID, sessionID string) Cart {
	c := Cart{ID: NewCartID, Items: []CartItem{}}
	if userID != "" {
		c.UserID = userID
	} else {
		c.SessionID = sessionID
	}
	return c
}

func (c Cart) Clone() Cart {
	n := c
	n.Items = make([]CartItem, len(c.Items))
	for i, it := range c.Items {
		n.Items[i] = it.Clone()
	}
	return n
}

func (c Cart) IsEmpty() bool { return len(c.Items) == 0 }

// Find returns the index of the item with the given id, or -1.
func (c Cart) Find(id ItemID) int {
	for i, it := range c.Items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func Ptr[T any](v T) *T { return &v }
