// Package session issues and stores the anonymous shopper's session id.
package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Skotchmaster/cartsync/internal/storage"
	"github.com/google/uuid"
)

const Key = "session_id"

const suffixLen = 9

type Provider struct {
	KV  storage.KV
	Now func() time.Time

	// mu serializes first-use creation so concurrent callers share one id.
	mu sync.Mutex
}

func New(kv storage.KV) *Provider {
	return &Provider{KV: kv, Now: time.Now}
}

// NewID builds "session_<unix millis>_<9 random chars>".
func NewID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:suffixLen]
	return "session_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + suffix
}

// Get returns the stored id, creating and persisting one on first use.
func (p *Provider) Get(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, ok, err := p.Peek(ctx)
	if err != nil {
		return "", err
	}
	if ok {
		return id, nil
	}
	id = NewID(p.Now())
	if err := p.KV.Set(ctx, Key, id); err != nil {
		return "", fmt.Errorf("store session id: %w", err)
	}
	return id, nil
}

// Peek returns the stored id without creating one.
func (p *Provider) Peek(ctx context.Context) (string, bool, error) {
	id, ok, err := p.KV.Get(ctx, Key)
	if err != nil {
		return "", false, fmt.Errorf("read session id: %w", err)
	}
	if !ok || id == "" {
		return "", false, nil
	}
	return id, true, nil
}

// Set adopts an id issued by the cart service.
func (p *Provider) Set(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.KV.Set(ctx, Key, id)
}

func (p *Provider) Clear(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.KV.Delete(ctx, Key)
}
