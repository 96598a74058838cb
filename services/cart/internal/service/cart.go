package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/Skotchmaster/cartsync/internal/models"
	"github.com/Skotchmaster/cartsync/internal/mykafka"
	"github.com/Skotchmaster/cartsync/internal/pricing"
	"github.com/Skotchmaster/cartsync/pkg/logging"
	"github.com/Skotchmaster/cartsync/services/cart/internal/models"
	"github.com/Skotchmaster/cartsync/services/cart/internal/repo"
	"github.com/Skotchmaster/cartsync/services/cart/internal/transport"
	"gorm.io/gorm"
)

var (
	ErrValidation        = errors.New("validation")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

type CartService struct {
	Repo     *repo.GormRepo
	Producer mykafka.Publisher
	Now      func() time.Time
}

func (s *CartService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *CartService) GetCart(ctx context.Context, owner models.Owner) (domain.Cart, error) {
	cart, err := s.Repo.GetOrCreateCart(ctx, owner)
	if err != nil {
		return domain.Cart{}, err
	}
	return s.toDomain(ctx, cart)
}

func (s *CartService) AddItem(ctx context.Context, owner models.Owner, req transport.AddItemRequest) (domain.Cart, error) {
	if req.ProductID <= 0 {
		return domain.Cart{}, fmt.Errorf("bassinId must be positive: %w", ErrValidation)
	}
	if req.Quantity <= 0 {
		return domain.Cart{}, fmt.Errorf("quantity must be more than zero: %w", ErrValidation)
	}

	product, err := s.Repo.Product(ctx, req.ProductID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Cart{}, fmt.Errorf("product %d: %w", req.ProductID, ErrNotFound)
	}
	if err != nil {
		return domain.Cart{}, err
	}

	customized := req.IsCustomized || req.Customization != nil
	props, err := encodeCustomization(req.Customization)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("customProperties: %w", ErrValidation)
	}
	if customized && props == "" {
		props = "{}"
	}

	item := models.CartItem{
		ProductID:        &product.ID,
		ProductName:      product.Name,
		Quantity:         req.Quantity,
		IsCustomized:     customized,
		CustomProperties: props,
		ImageURL:         product.ImageURL,
	}
	price := product.Price
	if req.OriginalPrice > 0 {
		price = req.OriginalPrice
	}
	item.OriginalPrice = &price
	if promo := productPromotion(*product); promo != nil && promo.ActiveAt(s.now()) {
		item.PromotionActive = true
		item.PromotionID = &promo.ID
		item.PromotionName = promo.Name
		item.Rate = promo.Rate
	}

	if !customized {
		inCart, err := s.lineQuantity(ctx, owner, item)
		if err != nil {
			return domain.Cart{}, err
		}
		if inCart+req.Quantity > product.Stock {
			return domain.Cart{}, fmt.Errorf("product %d has %d in stock: %w", product.ID, product.Stock, ErrInsufficientStock)
		}
	}

	if err := s.Repo.AddItem(ctx, owner, &item); err != nil {
		return domain.Cart{}, err
	}
	return s.reload(ctx, owner, "item_added")
}

func (s *CartService) lineQuantity(ctx context.Context, owner models.Owner, item models.CartItem) (int, error) {
	cart, err := s.Repo.FindCart(ctx, owner)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	for _, it := range cart.Items {
		if it.ProductID != nil && *it.ProductID == *item.ProductID && it.CustomProperties == item.CustomProperties {
			return it.Quantity, nil
		}
	}
	return 0, nil
}

// UpdateQuantity sets an item's quantity; zero or less removes the item.
func (s *CartService) UpdateQuantity(ctx context.Context, owner models.Owner, itemID int64, qty int) (domain.Cart, error) {
	if qty <= 0 {
		return s.RemoveItem(ctx, owner, itemID)
	}

	cart, err := s.Repo.FindCart(ctx, owner)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Cart{}, fmt.Errorf("item %d: %w", itemID, ErrNotFound)
	}
	if err != nil {
		return domain.Cart{}, err
	}
	var item *models.CartItem
	for i := range cart.Items {
		if cart.Items[i].ID == itemID {
			item = &cart.Items[i]
		}
	}
	if item == nil {
		return domain.Cart{}, fmt.Errorf("item %d: %w", itemID, ErrNotFound)
	}

	if !item.IsCustomized && item.ProductID != nil {
		product, err := s.Repo.Product(ctx, *item.ProductID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Cart{}, err
		}
		if product != nil && qty > product.Stock {
			return domain.Cart{}, fmt.Errorf("product %d has %d in stock: %w", product.ID, product.Stock, ErrInsufficientStock)
		}
	}

	if err := s.Repo.UpdateQuantity(ctx, owner, itemID, qty); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Cart{}, fmt.Errorf("item %d: %w", itemID, ErrNotFound)
		}
		return domain.Cart{}, err
	}
	return s.reload(ctx, owner, "item_updated")
}

func (s *CartService) RemoveItem(ctx context.Context, owner models.Owner, itemID int64) (domain.Cart, error) {
	if err := s.Repo.RemoveItem(ctx, owner, itemID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Cart{}, fmt.Errorf("item %d: %w", itemID, ErrNotFound)
		}
		return domain.Cart{}, err
	}
	return s.reload(ctx, owner, "item_removed")
}

func (s *CartService) Clear(ctx context.Context, owner models.Owner) (domain.Cart, error) {
	if err := s.Repo.Clear(ctx, owner); err != nil {
		return domain.Cart{}, err
	}
	return s.reload(ctx, owner, "cart_cleared")
}

// Migrate moves the session cart into the user's cart.
func (s *CartService) Migrate(ctx context.Context, userID, sessionID string) (domain.Cart, error) {
	if userID == "" {
		return domain.Cart{}, fmt.Errorf("user required: %w", ErrValidation)
	}
	if sessionID == "" {
		return domain.Cart{}, fmt.Errorf("sessionId required: %w", ErrValidation)
	}
	moved, err := s.Repo.MoveCart(ctx, sessionID, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	logging.FromContext(ctx).Info("cart_migrated", "session_id", sessionID, "items", moved)
	return s.reload(ctx, models.Owner{UserID: userID}, "cart_migrated")
}

func (s *CartService) reload(ctx context.Context, owner models.Owner, event string) (domain.Cart, error) {
	cart, err := s.GetCart(ctx, owner)
	if err != nil {
		return domain.Cart{}, err
	}
	s.publish(ctx, event, owner, cart)
	return cart, nil
}

func (s *CartService) publish(ctx context.Context, eventType string, owner models.Owner, cart domain.Cart) {
	if s.Producer == nil {
		return
	}
	event := mykafka.CartEvent{
		Type:      eventType,
		Owner:     owner.String(),
		CartID:    cart.ID,
		Items:     len(cart.Items),
		Total:     cart.TotalPrice,
		Timestamp: s.now().UTC(),
	}
	if err := s.Producer.PublishEvent(ctx, mykafka.CartTopic, owner.String(), event); err != nil {
		logging.FromContext(ctx).Warn("cart_event_publish_failed", "type", eventType, "error", err)
	}
}

func (s *CartService) toDomain(ctx context.Context, rec *models.Cart) (domain.Cart, error) {
	ids := make([]int64, 0, len(rec.Items))
	for _, it := range rec.Items {
		if it.ProductID != nil {
			ids = append(ids, *it.ProductID)
		}
	}
	products, err := s.Repo.Products(ctx, ids)
	if err != nil {
		return domain.Cart{}, err
	}

	cart := domain.Cart{ID: rec.ID, Items: make([]domain.CartItem, 0, len(rec.Items)), LastUpdated: rec.UpdatedAt.UTC()}
	if rec.UserID != nil {
		cart.UserID = *rec.UserID
	} else if rec.SessionID != nil {
		cart.SessionID = *rec.SessionID
	}

	for _, it := range rec.Items {
		item := domain.CartItem{
			ID:            domain.Confirmed(it.ID),
			ProductID:     it.ProductID,
			ProductName:   it.ProductName,
			Quantity:      it.Quantity,
			OriginalPrice: it.OriginalPrice,
			ImageURL:      it.ImageURL,
		}
		if it.PromotionActive {
			item.Promo = &domain.AppliedPromotion{Name: it.PromotionName, Rate: it.Rate}
			if it.PromotionID != nil {
				item.Promo.ID = *it.PromotionID
			}
		}
		if it.IsCustomized {
			c, err := decodeCustomization(it.CustomProperties)
			if err != nil {
				logging.FromContext(ctx).Warn("custom_properties_decode_failed", "item_id", it.ID, "error", err)
				c = &domain.Customization{}
			}
			item.Customization = c
		}
		if it.ProductID != nil {
			if p, ok := products[*it.ProductID]; ok {
				item.Product = toDomainProduct(p)
			}
		}
		cart.Items = append(cart.Items, item)
	}
	return pricing.NormalizeCart(cart), nil
}

func toDomainProduct(p models.Product) *domain.Product {
	return &domain.Product{
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Stock:     p.Stock,
		ImageURL:  p.ImageURL,
		Promotion: productPromotion(p),
	}
}

func productPromotion(p models.Product) *domain.Promotion {
	if p.PromotionID == nil || p.PromotionStart == nil || p.PromotionEnd == nil {
		return nil
	}
	return &domain.Promotion{
		ID:    *p.PromotionID,
		Name:  p.PromotionName,
		Rate:  p.Rate,
		Start: *p.PromotionStart,
		End:   *p.PromotionEnd,
	}
}

// FromDomainProduct converts a catalog product into a storable row.
func FromDomainProduct(p domain.Product) models.Product {
	out := models.Product{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price,
		Stock:    p.Stock,
		ImageURL: p.ImageURL,
	}
	if promo := p.Promotion; promo != nil {
		id := promo.ID
		start, end := promo.Start, promo.End
		out.PromotionID = &id
		out.PromotionName = promo.Name
		out.Rate = promo.Rate
		out.PromotionStart = &start
		out.PromotionEnd = &end
	}
	return out
}

func encodeCustomization(c *domain.Customization) (string, error) {
	if c == nil {
		return "", nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeCustomization(s string) (*domain.Customization, error) {
	var c domain.Customization
	if s == "" {
		return &c, nil
	}
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return nil, err
	}
	return &c, nil
}
