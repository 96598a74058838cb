package engine

import (
	"context"

	"github.com/Skotchmaster/cartsync/internal/models"
	"github.com/Skotchmaster/cartsync/internal/mykafka"
	"github.com/Skotchmaster/cartsync/pkg/logging"
)

func (e *Engine) emit(ctx context.Context, typ string, cart models.Cart) {
	owner := cart.UserID
	if owner == "" {
		owner = cart.SessionID
	}
	ev := mykafka.CartEvent{
		Type:      typ,
		Owner:     owner,
		CartID:    cart.ID,
		Items:     len(cart.Items),
		Total:     cart.TotalPrice,
		Timestamp: e.Now(),
	}
	if err := e.Events.PublishEvent(ctx, mykafka.CartTopic, owner, ev); err != nil {
		logging.FromContext(ctx).Warn("cart_event_publish_failed", "type", typ, "error", err)
	}
}
