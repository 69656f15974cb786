package server

import (
	"net/http"

	"farmmarket/internal/config"
	"farmmarket/internal/handler"
	"farmmarket/internal/repository"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Auth    *handler.AuthHandler
	Listing *handler.ListingHandler
	Order   *handler.OrderHandler
	Catalog *handler.CatalogHandler
	Admin   *handler.AdminHandler
}

func RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository, h Handlers) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	h.Auth.RegisterRoutes(e, cfg, userRepo)
	h.Catalog.RegisterRoutes(e)
	h.Listing.RegisterRoutes(e, cfg, userRepo)
	h.Order.RegisterRoutes(e, cfg, userRepo)
	h.Admin.RegisterRoutes(e, cfg, userRepo)
}
