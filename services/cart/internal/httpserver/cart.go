package httpserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Skotchmaster/cartsync/pkg/logging"
	"github.com/Skotchmaster/cartsync/services/cart/internal/models"
	"github.com/Skotchmaster/cartsync/services/cart/internal/service"
	"github.com/Skotchmaster/cartsync/services/cart/internal/transport"
	"github.com/labstack/echo/v4"
)

var errNoOwner = errors.New("no cart owner")

type CartHTTP struct {
	Svc *service.CartService
}

func (h *CartHTTP) GetOwner(c echo.Context) (models.Owner, error) {
	if s, ok := c.Get("user_id").(string); ok && s != "" {
		return models.Owner{UserID: s}, nil
	}
	if s, ok := c.Get("session_id").(string); ok && s != "" {
		return models.Owner{SessionID: s}, nil
	}
	return models.Owner{}, errNoOwner
}

// fail maps a service error onto a status code and the failure envelope.
func fail(c echo.Context, l *slog.Logger, event string, err error) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		l.Warn(event, "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, transport.Fail(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		l.Warn(event, "status", 404, "error", err)
		return c.JSON(http.StatusNotFound, transport.Fail(err.Error()))
	case errors.Is(err, service.ErrInsufficientStock):
		l.Warn(event, "status", 409, "error", err)
		return c.JSON(http.StatusConflict, transport.Fail("insufficient stock"))
	default:
		l.Error(event, "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, transport.Fail("internal server error"))
	}
}

func (h *CartHTTP) GetCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "get.cart")

	owner, err := h.GetOwner(c)
	if err != nil {
		l.Error("get_cart_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, transport.Fail("unauthorized"))
	}

	cart, err := h.Svc.GetCart(ctx, owner)
	if err != nil {
		return fail(c, l, "get_cart_error", err)
	}

	l.Info("cart successfully got", "items", len(cart.Items))
	return c.JSON(http.StatusOK, cart)
}

func (h *CartHTTP) AddItem(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "add.item")

	owner, err := h.GetOwner(c)
	if err != nil {
		l.Error("add_item_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, transport.Fail("unauthorized"))
	}

	var req transport.AddItemRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("add_item_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, transport.Fail("invalid body"))
	}

	cart, err := h.Svc.AddItem(ctx, owner, req)
	if err != nil {
		return fail(c, l, "add_item_error", err)
	}

	l.Info("item added successfully to cart", "product_id", req.ProductID)
	return c.JSON(http.StatusOK, transport.OK("item added", cart))
}

func (h *CartHTTP) UpdateItem(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "update.item")

	owner, err := h.GetOwner(c)
	if err != nil {
		l.Error("update_item_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, transport.Fail("unauthorized"))
	}

	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || itemID <= 0 {
		l.Warn("update_item_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, transport.Fail("invalid item id"))
	}

	var req transport.UpdateQuantityRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("update_item_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, transport.Fail("invalid body"))
	}

	cart, err := h.Svc.UpdateQuantity(ctx, owner, itemID, req.Quantity)
	if err != nil {
		return fail(c, l, "update_item_error", err)
	}

	l.Info("item quantity updated", "item_id", itemID, "quantity", req.Quantity)
	return c.JSON(http.StatusOK, transport.OK("quantity updated", cart))
}

func (h *CartHTTP) RemoveItem(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "remove.item")

	owner, err := h.GetOwner(c)
	if err != nil {
		l.Error("remove_item_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, transport.Fail("unauthorized"))
	}

	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || itemID <= 0 {
		l.Warn("remove_item_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, transport.Fail("invalid item id"))
	}

	cart, err := h.Svc.RemoveItem(ctx, owner, itemID)
	if err != nil {
		return fail(c, l, "remove_item_error", err)
	}

	l.Info("item removed from cart", "item_id", itemID)
	return c.JSON(http.StatusOK, transport.OK("item removed", cart))
}

func (h *CartHTTP) Clear(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "clear.cart")

	owner, err := h.GetOwner(c)
	if err != nil {
		l.Error("clear_cart_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, transport.Fail("unauthorized"))
	}

	cart, err := h.Svc.Clear(ctx, owner)
	if err != nil {
		return fail(c, l, "clear_cart_error", err)
	}

	l.Info("cart successfully cleared")
	return c.JSON(http.StatusOK, transport.OK("cart cleared", cart))
}

func (h *CartHTTP) Migrate(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "migrate.cart")

	owner, err := h.GetOwner(c)
	if err != nil || !owner.IsUser() {
		l.Error("migrate_cart_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, transport.Fail("unauthorized"))
	}

	var req transport.MigrateRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("migrate_cart_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, transport.Fail("invalid body"))
	}

	cart, err := h.Svc.Migrate(ctx, owner.UserID, req.SessionID)
	if err != nil {
		return fail(c, l, "migrate_cart_error", err)
	}

	l.Info("cart successfully migrated", "items", len(cart.Items))
	return c.JSON(http.StatusOK, transport.OK("cart migrated", cart))
}
