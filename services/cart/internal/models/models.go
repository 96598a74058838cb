package models

import (
	"time"

	"gorm.io/gorm"
)

// Owner addresses a cart: exactly one of the fields is set.
type Owner struct {
	UserID    string
	SessionID string
}

func (o Owner) IsUser() bool { return o.UserID != "" }

func (o Owner) String() string {
	if o.UserID != "" {
		return "user:" + o.UserID
	}
	return "session:" + o.SessionID
}

type Cart struct {
	ID        int64      `gorm:"primaryKey;autoIncrement"`
	UserID    *string    `gorm:"uniqueIndex"`
	SessionID *string    `gorm:"uniqueIndex"`
	Items     []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Cart) TableName() string {
	return "carts"
}

type CartItem struct {
	ID               int64    `gorm:"primaryKey;autoIncrement"`
	CartID           int64    `gorm:"index;not null"`
	ProductID        *int64   `gorm:"index"`
	ProductName      string   `gorm:"size:255"`
	Quantity         int      `gorm:"not null;check:quantity>0"`
	OriginalPrice    *float64 `gorm:"type:numeric(12,2)"`
	PromotionActive  bool     `gorm:"not null;default:false"`
	PromotionID      *int64
	PromotionName    string  `gorm:"size:255"`
	Rate             float64 `gorm:"not null;default:0"`
	IsCustomized     bool    `gorm:"not null;default:false"`
	CustomProperties string  `gorm:"type:text"`
	ImageURL         string  `gorm:"size:512"`
	CreatedAt        time.Time
}

func (i *CartItem) BeforeCreate(tx *gorm.DB) error {
	if !i.PromotionActive {
		i.PromotionID = nil
		i.PromotionName = ""
		i.Rate = 0
	}
	return nil
}

func (CartItem) TableName() string {
	return "cart_items"
}

type Product struct {
	ID             int64   `gorm:"primaryKey"`
	Name           string  `gorm:"size:255;not null"`
	Price          float64 `gorm:"type:numeric(12,2);not null"`
	Stock          int     `gorm:"not null;default:0"`
	ImageURL       string  `gorm:"size:512"`
	PromotionID    *int64
	PromotionName  string `gorm:"size:255"`
	Rate           float64
	PromotionStart *time.Time
	PromotionEnd   *time.Time
}

func (Product) TableName() string {
	return "products"
}
