// Package broadcast holds the single current cart and fans it out to
// subscribers.
package broadcast

import (
	"sync"

	"github.com/Skotchmaster/cartsync/internal/models"
)

// Subscriber receives published carts. Only the latest undelivered cart is
// kept, so a slow reader skips intermediate states but never sees a stale one
// after catching up.
type Subscriber chan models.Cart

type Broadcaster struct {
	mu          sync.Mutex
	current     models.Cart
	subscribers map[Subscriber]bool
	closed      bool
}

func New(initial models.Cart) *Broadcaster {
	return &Broadcaster{
		current:     initial.Clone(),
		subscribers: make(map[Subscriber]bool),
	}
}

// Current returns a copy of the published cart.
func (b *Broadcaster) Current() models.Cart {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current.Clone()
}

func (b *Broadcaster) Publish(cart models.Cart) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setLocked(cart)
}

// Update runs fn on a copy of the current cart and publishes the result
// atomically. fn returning false leaves the state and subscribers untouched.
// Update returns the cart that was current before fn ran, and the cart
// current afterwards.
func (b *Broadcaster) Update(fn func(models.Cart) (models.Cart, bool)) (before, after models.Cart) {
	b.mu.Lock()
	defer b.mu.Unlock()

	before = b.current.Clone()
	next, ok := fn(b.current.Clone())
	if !ok {
		return before, before.Clone()
	}
	b.setLocked(next)
	return before, b.current.Clone()
}

func (b *Broadcaster) setLocked(cart models.Cart) {
	b.current = cart.Clone()
	if b.closed {
		return
	}
	for sub := range b.subscribers {
		deliver(sub, b.current.Clone())
	}
}

func deliver(sub Subscriber, cart models.Cart) {
	select {
	case <-sub:
	default:
	}
	select {
	case sub <- cart:
	default:
	}
}

// Subscribe registers a subscriber that immediately holds the current cart.
func (b *Broadcaster) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 1)
	if b.closed {
		close(sub)
		return sub
	}
	sub <- b.current.Clone()
	b.subscribers[sub] = true
	return sub
}

func (b *Broadcaster) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Close ends every subscription. The broadcaster still accepts updates.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subscribers {
		delete(b.subscribers, sub)
		close(sub)
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
