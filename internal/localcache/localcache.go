// Package localcache keeps a TTL-bounded copy of the anonymous shopper's
// cart so it survives restarts and remote outages.
package localcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Skotchmaster/cartsync/internal/models"
	"github.com/Skotchmaster/cartsync/internal/storage"
	"github.com/Skotchmaster/cartsync/pkg/logging"
)

const (
	Key        = "local_cart_v2"
	DefaultTTL = 48 * time.Hour
)

// Envelope is the stored form. Times are unix milliseconds.
type Envelope struct {
	Cart        models.Cart `json:"cart"`
	Expiration  int64       `json:"expiration"`
	LastUpdated int64       `json:"lastUpdated"`
}

type LoginChecker interface {
	IsLoggedIn() bool
}

type Store struct {
	KV       storage.KV
	Identity LoginChecker
	Now      func() time.Time
	TTL      time.Duration
}

func New(kv storage.KV, id LoginChecker) *Store {
	return &Store{KV: kv, Identity: id, Now: time.Now, TTL: DefaultTTL}
}

// Read returns the cached cart and true, or an empty cart and false when
// the entry is absent, unreadable or expired. Expired entries are removed.
func (s *Store) Read(ctx context.Context) (models.Cart, bool) {
	log := logging.FromContext(ctx).With("component", "localcache")

	raw, ok, err := s.KV.Get(ctx, Key)
	if err != nil {
		log.Warn("local_cart_read_failed", "error", err)
		return models.NewCart("", ""), false
	}
	if !ok {
		return models.NewCart("", ""), false
	}

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		log.Warn("local_cart_corrupt", "error", err)
		return models.NewCart("", ""), false
	}
	if s.Now().UnixMilli() > env.Expiration {
		if err := s.KV.Delete(ctx, Key); err != nil {
			log.Warn("local_cart_expire_failed", "error", err)
		}
		return models.NewCart("", ""), false
	}
	if env.Cart.Items == nil {
		env.Cart.Items = []models.CartItem{}
	}
	return env.Cart, true
}

// Write stores cart with a fresh expiry. It does nothing for logged-in
// shoppers, whose cart lives on the server.
func (s *Store) Write(ctx context.Context, cart models.Cart) error {
	if s.Identity != nil && s.Identity.IsLoggedIn() {
		return nil
	}
	now := s.Now()
	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	b, err := json.Marshal(Envelope{
		Cart:        cart,
		Expiration:  now.Add(ttl).UnixMilli(),
		LastUpdated: now.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("encode local cart: %w", err)
	}
	if err := s.KV.Set(ctx, Key, string(b)); err != nil {
		return fmt.Errorf("store local cart: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	return s.KV.Delete(ctx, Key)
}
