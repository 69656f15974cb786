package handler

import (
	"net/http"

	"farmmarket/internal/usecase"

	"github.com/labstack/echo/v4"
)

// 品種マスタと市場統計。どちらも匿名で読める。
type CatalogHandler struct {
	varieties *usecase.VarietyUsecase
	stats     *usecase.StatsUsecase
}

func NewCatalogHandler(varieties *usecase.VarietyUsecase, stats *usecase.StatsUsecase) *CatalogHandler {
	return &CatalogHandler{varieties: varieties, stats: stats}
}

func (h *CatalogHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/varieties", h.listVarieties)
	e.GET("/stats", h.marketStats)
}

func (h *CatalogHandler) listVarieties(c echo.Context) error {
	out, err := h.varieties.List(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CatalogHandler) marketStats(c echo.Context) error {
	out, err := h.stats.Market(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
