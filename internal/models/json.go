package models

import "encoding/json"

type cartItemJSON struct {
	ID              ItemID         `json:"id"`
	ProductID       *int64         `json:"bassinId,omitempty"`
	ProductName     string         `json:"nomBassin,omitempty"`
	Product         *Product       `json:"bassin,omitempty"`
	Quantity        int            `json:"quantity"`
	OriginalPrice   *float64       `json:"prixOriginal,omitempty"`
	PromotionActive bool           `json:"promotionActive"`
	PromotionID     int64          `json:"promotionId,omitempty"`
	PromotionName   string         `json:"nomPromotion,omitempty"`
	Rate            float64        `json:"tauxReduction,omitempty"`
	EffectivePrice  float64        `json:"effectivePrice"`
	Subtotal        float64        `json:"subtotal"`
	IsCustomized    bool           `json:"isCustomized"`
	Customization   *Customization `json:"customProperties,omitempty"`
	ImageURL        string         `json:"imageUrl,omitempty"`
}

func (i CartItem) MarshalJSON() ([]byte, error) {
	w := cartItemJSON{
		ID:             i.ID,
		ProductID:      i.ProductID,
		ProductName:    i.ProductName,
		Product:        i.Product,
		Quantity:       i.Quantity,
		OriginalPrice:  i.OriginalPrice,
		EffectivePrice: i.EffectivePrice,
		Subtotal:       i.Subtotal,
		IsCustomized:   i.Customization != nil,
		Customization:  i.Customization,
		ImageURL:       i.ImageURL,
	}
	if i.Promo != nil {
		w.PromotionActive = true
		w.PromotionID = i.Promo.ID
		w.PromotionName = i.Promo.Name
		w.Rate = i.Promo.Rate
	}
	return json.Marshal(w)
}

func (i *CartItem) UnmarshalJSON(b []byte) error {
	var w cartItemJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*i = CartItem{
		ID:             w.ID,
		ProductID:      w.ProductID,
		ProductName:    w.ProductName,
		Product:        w.Product,
		Quantity:       w.Quantity,
		OriginalPrice:  w.OriginalPrice,
		EffectivePrice: w.EffectivePrice,
		Subtotal:       w.Subtotal,
		Customization:  w.Customization,
		ImageURL:       w.ImageURL,
	}
	if w.PromotionActive {
		i.Promo = &AppliedPromotion{ID: w.PromotionID, Name: w.PromotionName, Rate: w.Rate}
	}
	if w.IsCustomized && i.Customization == nil {
		i.Customization = &Customization{}
	}
	if i.ProductID == nil && i.Product != nil {
		i.ProductID = Ptr(i.Product.ID)
	}
	return nil
}
