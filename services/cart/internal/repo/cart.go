package repo

import (
	"context"
	"errors"

	"github.com/Skotchmaster/cartsync/services/cart/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormRepo struct {
	DB *gorm.DB
}

func (r *GormRepo) AutoMigrate(ctx context.Context) error {
	return r.DB.WithContext(ctx).AutoMigrate(&models.Cart{}, &models.CartItem{}, &models.Product{})
}

func ownerScope(o models.Owner) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if o.UserID != "" {
			return db.Where("user_id = ?", o.UserID)
		}
		return db.Where("session_id = ?", o.SessionID)
	}
}

func preloadItems(db *gorm.DB) *gorm.DB {
	return db.Order("cart_items.id ASC")
}

func (r *GormRepo) FindCart(ctx context.Context, owner models.Owner) (*models.Cart, error) {
	var cart models.Cart
	if err := r.DB.WithContext(ctx).Scopes(ownerScope(owner)).Preload("Items", preloadItems).First(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

// GetOrCreateCart returns the owner's cart, creating an empty one first if needed.
func (r *GormRepo) GetOrCreateCart(ctx context.Context, owner models.Owner) (*models.Cart, error) {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := cartFor(tx, owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r.FindCart(ctx, owner)
}

func cartFor(tx *gorm.DB, owner models.Owner) (*models.Cart, error) {
	var cart models.Cart
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Scopes(ownerScope(owner)).First(&cart).Error
	if err == nil {
		return &cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if owner.UserID != "" {
		uid := owner.UserID
		cart.UserID = &uid
	} else {
		sid := owner.SessionID
		cart.SessionID = &sid
	}
	if err := tx.Create(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

// AddItem merges item into the owner's cart: a row with the same product
// and custom properties gains the quantity, otherwise a new row is created.
func (r *GormRepo) AddItem(ctx context.Context, owner models.Owner, item *models.CartItem) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := cartFor(tx, owner)
		if err != nil {
			return err
		}
		return mergeItem(tx, cart.ID, item)
	})
}

func mergeItem(tx *gorm.DB, cartID int64, item *models.CartItem) error {
	q := tx.Model(&models.CartItem{}).Where("cart_id = ? AND custom_properties = ?", cartID, item.CustomProperties)
	if item.ProductID != nil {
		q = q.Where("product_id = ?", *item.ProductID)
	} else {
		q = q.Where("product_id IS NULL")
	}
	var existing models.CartItem
	err := q.First(&existing).Error
	switch {
	case err == nil:
		existing.Quantity += item.Quantity
		if err := tx.Model(&existing).Update("quantity", existing.Quantity).Error; err != nil {
			return err
		}
		*item = existing
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		item.ID = 0
		item.CartID = cartID
		return tx.Create(item).Error
	default:
		return err
	}
}

func (r *GormRepo) UpdateQuantity(ctx context.Context, owner models.Owner, itemID int64, qty int) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := ownedItem(tx, owner, itemID)
		if err != nil {
			return err
		}
		return tx.Model(item).Update("quantity", qty).Error
	})
}

func (r *GormRepo) RemoveItem(ctx context.Context, owner models.Owner, itemID int64) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := ownedItem(tx, owner, itemID)
		if err != nil {
			return err
		}
		return tx.Delete(item).Error
	})
}

func ownedItem(tx *gorm.DB, owner models.Owner, itemID int64) (*models.CartItem, error) {
	var item models.CartItem
	carts := tx.Model(&models.Cart{}).Select("id").Scopes(ownerScope(owner))
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND cart_id IN (?)", itemID, carts).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Clear removes every item of the owner's cart. A missing cart is not an error.
func (r *GormRepo) Clear(ctx context.Context, owner models.Owner) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cart models.Cart
		err := tx.Scopes(ownerScope(owner)).First(&cart).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return tx.Where("cart_id = ?", cart.ID).Delete(&models.CartItem{}).Error
	})
}

// MoveCart folds the session cart into the user's cart and deletes the
// session cart. It returns the number of rows moved.
func (r *GormRepo) MoveCart(ctx context.Context, sessionID, userID string) (int, error) {
	moved := 0
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		userCart, err := cartFor(tx, models.Owner{UserID: userID})
		if err != nil {
			return err
		}

		var sessionCart models.Cart
		err = tx.Where("session_id = ?", sessionID).Preload("Items", preloadItems).First(&sessionCart).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		for _, it := range sessionCart.Items {
			item := it
			if err := mergeItem(tx, userCart.ID, &item); err != nil {
				return err
			}
			moved++
		}
		if err := tx.Where("cart_id = ?", sessionCart.ID).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&sessionCart).Error
	})
	return moved, err
}
