package transport

import (
	domain "github.com/Skotchmaster/cartsync/internal/models"
)

type AddItemRequest struct {
	ProductID     int64                 `json:"bassinId"`
	Quantity      int                   `json:"quantity"`
	OriginalPrice float64               `json:"prixOriginal"`
	IsCustomized  bool                  `json:"isCustomized"`
	SessionID     string                `json:"sessionId,omitempty"`
	UserID        string                `json:"userId,omitempty"`
	PromotionID   int64                 `json:"promotionId,omitempty"`
	PromotionName string                `json:"nomPromotion,omitempty"`
	Rate          float64               `json:"tauxReduction,omitempty"`
	Customization *domain.Customization `json:"customProperties,omitempty"`
}

type UpdateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type MigrateRequest struct {
	SessionID string `json:"sessionId"`
}

type CartResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Panier  *domain.Cart `json:"panier,omitempty"`
}

func Fail(message string) CartResponse {
	return CartResponse{Success: false, Message: message}
}

func OK(message string, cart domain.Cart) CartResponse {
	return CartResponse{Success: true, Message: message, Panier: &cart}
}
