package engine

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Skotchmaster/cartsync/internal/cartclient"
	"github.com/Skotchmaster/cartsync/internal/identity"
	"github.com/Skotchmaster/cartsync/internal/models"
	"github.com/Skotchmaster/cartsync/internal/mykafka"
	"github.com/Skotchmaster/cartsync/internal/storage"
	"github.com/Skotchmaster/cartsync/pkg/tokens"
	"github.com/stretchr/testify/require"
)

type call struct {
	Op        string
	Addr      cartclient.Address
	ItemID    int64
	Qty       int
	Req       cartclient.ItemRequest
	SessionID string
}

// fakeRemote is an in-memory cart service keyed by address.
type fakeRemote struct {
	mu       sync.Mutex
	carts    map[string]*models.Cart
	products map[int64]models.Product
	nextID   int64
	calls    []call

	// fail makes every call of an operation return the error.
	fail map[string]error
	// failProduct refuses adds of the given product.
	failProduct map[int64]error
	// gate, when set, blocks every call until it is closed.
	gate chan struct{}
	// issueSession is returned as a service-issued session id.
	issueSession string
	// omitCart answers mutations without a cart body.
	omitCart bool
}

func newFakeRemote(products ...models.Product) *fakeRemote {
	r := &fakeRemote{
		carts:       make(map[string]*models.Cart),
		products:    make(map[int64]models.Product),
		fail:        make(map[string]error),
		failProduct: make(map[int64]error),
		nextID:      100,
	}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

func ownerKey(addr cartclient.Address) string {
	if addr.Token != "" {
		return "token:" + addr.Token
	}
	return "session:" + addr.SessionID
}

func (r *fakeRemote) enter(c call) (*models.Cart, error) {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	r.calls = append(r.calls, c)
	if err := r.fail[c.Op]; err != nil {
		return nil, err
	}
	key := ownerKey(c.Addr)
	cart, ok := r.carts[key]
	if !ok {
		n := models.NewCart("", c.Addr.SessionID)
		n.ID = int64(len(r.carts) + 1)
		cart = &n
		r.carts[key] = cart
	}
	return cart, nil
}

func (r *fakeRemote) result(cart *models.Cart) (cartclient.Result, error) {
	if r.omitCart {
		return cartclient.Result{Success: true, SessionID: r.issueSession}, nil
	}
	out := cart.Clone()
	return cartclient.Result{Success: true, Cart: &out, SessionID: r.issueSession}, nil
}

func (r *fakeRemote) GetCart(_ context.Context, addr cartclient.Address) (cartclient.Result, error) {
	cart, err := r.enter(call{Op: "get", Addr: addr})
	defer r.mu.Unlock()
	if err != nil {
		return cartclient.Result{}, err
	}
	return r.result(cart)
}

func (r *fakeRemote) AddItem(_ context.Context, addr cartclient.Address, req cartclient.ItemRequest) (cartclient.Result, error) {
	cart, err := r.enter(call{Op: "add", Addr: addr, Req: req})
	defer r.mu.Unlock()
	if err != nil {
		return cartclient.Result{}, err
	}
	if err := r.failProduct[req.ProductID]; err != nil {
		return cartclient.Result{}, err
	}

	item := models.CartItem{
		ProductID:     models.Ptr(req.ProductID),
		Quantity:      req.Quantity,
		OriginalPrice: models.Ptr(req.OriginalPrice),
		Customization: req.Customization.Clone(),
	}
	if p, ok := r.products[req.ProductID]; ok {
		item.ProductName = p.Name
		item.Product = &p
		if !req.IsCustomized && req.Quantity > p.Stock {
			return cartclient.Result{}, &cartclient.StatusError{Code: http.StatusConflict, Message: "Stock insuffisant"}
		}
	}
	if req.PromotionName != "" {
		item.Promo = &models.AppliedPromotion{ID: req.PromotionID, Name: req.PromotionName, Rate: req.Rate}
	}
	for i := range cart.Items {
		if cart.Items[i].SameLine(item) {
			cart.Items[i].Quantity += req.Quantity
			return r.result(cart)
		}
	}
	r.nextID++
	item.ID = models.Confirmed(r.nextID)
	cart.Items = append(cart.Items, item)
	return r.result(cart)
}

func (r *fakeRemote) UpdateQuantity(_ context.Context, addr cartclient.Address, itemID int64, qty int) (cartclient.Result, error) {
	cart, err := r.enter(call{Op: "update", Addr: addr, ItemID: itemID, Qty: qty})
	defer r.mu.Unlock()
	if err != nil {
		return cartclient.Result{}, err
	}
	i := cart.Find(models.Confirmed(itemID))
	if i < 0 {
		return cartclient.Result{}, &cartclient.StatusError{Code: http.StatusNotFound, Message: "item not found"}
	}
	cart.Items[i].Quantity = qty
	return r.result(cart)
}

func (r *fakeRemote) RemoveItem(_ context.Context, addr cartclient.Address, itemID int64) (cartclient.Result, error) {
	cart, err := r.enter(call{Op: "remove", Addr: addr, ItemID: itemID})
	defer r.mu.Unlock()
	if err != nil {
		return cartclient.Result{}, err
	}
	i := cart.Find(models.Confirmed(itemID))
	if i < 0 {
		return cartclient.Result{}, &cartclient.StatusError{Code: http.StatusNotFound, Message: "item not found"}
	}
	cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
	return r.result(cart)
}

func (r *fakeRemote) Clear(_ context.Context, addr cartclient.Address) (cartclient.Result, error) {
	cart, err := r.enter(call{Op: "clear", Addr: addr})
	defer r.mu.Unlock()
	if err != nil {
		return cartclient.Result{}, err
	}
	cart.Items = []models.CartItem{}
	return r.result(cart)
}

func (r *fakeRemote) Migrate(_ context.Context, addr cartclient.Address, sessionID string) (cartclient.Result, error) {
	cart, err := r.enter(call{Op: "migrate", Addr: addr, SessionID: sessionID})
	defer r.mu.Unlock()
	if err != nil {
		return cartclient.Result{}, err
	}
	src, ok := r.carts["session:"+sessionID]
	if ok {
		for _, it := range src.Items {
			r.nextID++
			it.ID = models.Confirmed(r.nextID)
			cart.Items = append(cart.Items, it)
		}
		delete(r.carts, "session:"+sessionID)
	}
	return r.result(cart)
}

func (r *fakeRemote) callsOf(op string) []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []call
	for _, c := range r.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (r *fakeRemote) setFail(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.fail, op)
		return
	}
	r.fail[op] = err
}

type notice struct {
	Kind string
	Msg  string
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *recordingNotifier) add(kind, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{Kind: kind, Msg: msg})
}

func (n *recordingNotifier) Success(_ context.Context, msg string) { n.add("success", msg) }
func (n *recordingNotifier) Error(_ context.Context, msg string)   { n.add("error", msg) }
func (n *recordingNotifier) Info(_ context.Context, msg string)    { n.add("info", msg) }

func (n *recordingNotifier) all() []notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notice(nil), n.notices...)
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = nil
}

type recordingEvents struct {
	mu     sync.Mutex
	events []mykafka.CartEvent
}

func (r *recordingEvents) PublishEvent(_ context.Context, _, _ string, event interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev, ok := event.(mykafka.CartEvent); ok {
		r.events = append(r.events, ev)
	}
	return nil
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type harness struct {
	E        *Engine
	Remote   *fakeRemote
	Identity *identity.State
	KV       *storage.Memory
	Notes    *recordingNotifier
	Events   *recordingEvents
	Clock    *fakeClock
}

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, products ...models.Product) *harness {
	t.Helper()
	return newHarnessWith(t, newFakeRemote(products...), storage.NewMemory())
}

func newHarnessWith(t *testing.T, remote *fakeRemote, kv *storage.Memory) *harness {
	t.Helper()
	h := &harness{
		Remote:   remote,
		Identity: identity.NewState(),
		KV:       kv,
		Notes:    &recordingNotifier{},
		Events:   &recordingEvents{},
		Clock:    &fakeClock{t: testNow},
	}
	h.E = New(remote, h.Identity, kv)
	h.E.Notifier = h.Notes
	h.E.Events = h.Events
	h.E.Now = h.Clock.Now
	t.Cleanup(h.E.State.Close)
	return h
}

func (h *harness) login(t *testing.T, userID string) string {
	t.Helper()
	tok, err := tokens.NewAccessToken([]byte("test-secret"), userID, "user", testNow.Add(24*time.Hour))
	require.NoError(t, err)
	require.NoError(t, h.Identity.Login(tok))
	return tok
}

func pool(id int64, price float64, stock int) models.Product {
	return models.Product{ID: id, Name: fmt.Sprintf("Bassin %d", id), Price: price, Stock: stock}
}
