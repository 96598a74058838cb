package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/Skotchmaster/cartsync/internal/cartclient"
	"github.com/Skotchmaster/cartsync/internal/metrics"
	"github.com/Skotchmaster/cartsync/internal/models"
	"github.com/Skotchmaster/cartsync/pkg/logging"
)

const msgMigrationFailed = "Your cart could not be transferred to your account, it will be retried at your next login"

type MigrationPath string

const (
	// PathLoad: no anonymous session was on record, the user cart was loaded.
	PathLoad    MigrationPath = "load"
	PathBulk    MigrationPath = "bulk"
	PathPerItem MigrationPath = "per_item"
)

// ItemResult is the outcome of replaying one anonymous item.
type ItemResult struct {
	Item models.CartItem
	Err  error
}

type MigrationReport struct {
	Path    MigrationPath
	Results []ItemResult
	Cart    models.Cart
}

// Failed counts replayed items the service refused.
func (r MigrationReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Migrate moves the anonymous session cart into the logged-in user's cart.
// A refused bulk migration falls back to adding each known item on its own;
// item failures are collected, never fatal, and the user cart is reloaded
// afterwards.
func (e *Engine) Migrate(ctx context.Context) (MigrationReport, error) {
	if !e.Identity.IsLoggedIn() {
		return MigrationReport{}, ErrNotLoggedIn
	}
	e.migrated.Store(true)
	e.migrateMu.Lock()
	defer e.migrateMu.Unlock()

	l := logging.FromContext(ctx).With("component", "migration")

	sessionID, ok, err := e.Session.Peek(ctx)
	if err != nil {
		l.Warn("session_read_failed", "error", err)
	}
	if !ok {
		metrics.MigrationsTotal.WithLabelValues(string(PathLoad)).Inc()
		cart, err := e.Load(ctx)
		return MigrationReport{Path: PathLoad, Cart: cart}, err
	}

	e.begin()
	defer e.end()

	items := e.anonymousItems(ctx)
	addr := cartclient.Address{Token: e.Identity.Token()}

	res, err := e.Remote.Migrate(ctx, addr, sessionID)
	if err == nil {
		e.forgetSession(ctx)
		cart, confirmed := e.reconcile(ctx, res, addr)
		if !confirmed {
			l.Warn("migrated_cart_unconfirmed")
		}
		e.CheckPromotions(ctx)
		metrics.MigrationsTotal.WithLabelValues(string(PathBulk)).Inc()
		l.Info("cart_migrated", "path", PathBulk, "items", len(cart.Items))
		e.Notifier.Success(ctx, "Your cart has been restored")
		e.emit(ctx, "cart_migrated", cart)
		return MigrationReport{Path: PathBulk, Cart: e.State.Current()}, nil
	}

	if classify(err) == KindUnauthorized {
		l.Error("cart_migration_failed", "error", err)
		e.Identity.Logout()
		e.Notifier.Error(ctx, msgSessionExpired)
		return MigrationReport{Path: PathBulk, Cart: e.State.Current()}, &Error{Op: "migrate", Kind: KindUnauthorized, Err: err}
	}

	l.Warn("bulk_migration_failed", "error", err, "items", len(items))
	results := e.replay(ctx, addr, items)
	metrics.MigrationsTotal.WithLabelValues(string(PathPerItem)).Inc()

	report := MigrationReport{Path: PathPerItem, Results: results}
	failed := report.Failed()
	// The session cart stays addressable until at least one item made it across.
	if failed < len(results) {
		e.forgetSession(ctx)
	}

	cart, loadErr := e.Load(ctx)
	report.Cart = cart
	if len(results) > 0 && failed == len(results) {
		e.migrated.Store(false)
		l.Error("cart_migration_failed", "failed", failed, "items", len(items))
		e.Notifier.Error(ctx, msgMigrationFailed)
		return report, &Error{Op: "migrate", Kind: classify(results[0].Err), Err: fmt.Errorf("%w: %w", ErrNothingMigrated, results[0].Err)}
	}
	if failed > 0 {
		l.Warn("cart_migration_partial", "failed", failed, "items", len(items))
		e.Notifier.Info(ctx, "Your cart has been restored, but some items could not be transferred")
	} else {
		e.Notifier.Success(ctx, "Your cart has been restored")
	}
	e.emit(ctx, "cart_migrated", cart)
	return report, loadErr
}

// anonymousItems lists what the shopper had before logging in: the local
// copy when there is one, else the published cart.
func (e *Engine) anonymousItems(ctx context.Context) []models.CartItem {
	if cached, ok := e.Cache.Read(ctx); ok && !cached.IsEmpty() {
		return cached.Items
	}
	return e.State.Current().Items
}

// replay adds every item concurrently and collects one result per item.
func (e *Engine) replay(ctx context.Context, addr cartclient.Address, items []models.CartItem) []ItemResult {
	results := make([]ItemResult, len(items))
	var wg sync.WaitGroup
	for i, it := range items {
		wg.Add(1)
		go func(i int, it models.CartItem) {
			defer wg.Done()
			_, err := e.Remote.AddItem(ctx, addr, e.itemRequest(it, addr))
			results[i] = ItemResult{Item: it, Err: err}
		}(i, it)
	}
	wg.Wait()
	return results
}

func (e *Engine) forgetSession(ctx context.Context) {
	if err := e.Session.Clear(ctx); err != nil {
		logging.FromContext(ctx).Warn("session_clear_failed", "error", err)
	}
	if err := e.Cache.Clear(ctx); err != nil {
		logging.FromContext(ctx).Warn("local_cart_clear_failed", "error", err)
	}
}

// WatchIdentity follows login state until ctx is done. Logging in migrates
// the anonymous cart once; logging out shows the session cart again.
func (e *Engine) WatchIdentity(ctx context.Context) {
	ch, cancel := e.Identity.Subscribe()
	defer cancel()

	l := logging.FromContext(ctx).With("component", "migration")
	prev := e.Identity.IsLoggedIn()
	for {
		select {
		case <-ctx.Done():
			return
		case loggedIn, ok := <-ch:
			if !ok {
				return
			}
			if loggedIn == prev {
				continue
			}
			prev = loggedIn
			if loggedIn {
				if !e.migrated.CompareAndSwap(false, true) {
					continue
				}
				if _, err := e.Migrate(ctx); err != nil {
					l.Warn("login_migration_error", "error", err)
				}
			} else {
				e.migrated.Store(false)
				if _, err := e.Load(ctx); err != nil {
					l.Warn("logout_load_error", "error", err)
				}
			}
		}
	}
}
