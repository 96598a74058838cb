package httpserver

import (
	"net/http"

	middleware "github.com/Skotchmaster/cartsync/pkg/middleware/auth"
	"github.com/labstack/echo/v4"
)

type Deps struct {
	CartHandler  *CartHTTP
	JWTSecret    []byte
	NewSessionID func() string
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	ownerMW := middleware.NewCartOwnerMiddleware(d.JWTSecret, d.NewSessionID)

	cart := e.Group("/api/panier")
	cart.Use(ownerMW.ResolveOwner)

	cart.GET("", d.CartHandler.GetCart)
	cart.DELETE("", d.CartHandler.Clear)
	cart.POST("/items", d.CartHandler.AddItem)
	cart.PUT("/items/:id", d.CartHandler.UpdateItem)
	cart.DELETE("/items/:id", d.CartHandler.RemoveItem)
	cart.POST("/migrate", d.CartHandler.Migrate, ownerMW.RequireUser)
}
