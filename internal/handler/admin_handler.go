package handler

import (
	"net/http"

	"farmmarket/internal/config"
	"farmmarket/internal/domain/model"
	"farmmarket/internal/middleware"
	"farmmarket/internal/repository"
	"farmmarket/internal/usecase"

	"github.com/labstack/echo/v4"
)

type AdminHandler struct {
	auth      *usecase.AuthUsecase
	listings  *usecase.ListingUsecase
	orders    *usecase.OrderUsecase
	varieties *usecase.VarietyUsecase
	audit     *usecase.AuditUsecase
}

func NewAdminHandler(
	auth *usecase.AuthUsecase,
	listings *usecase.ListingUsecase,
	orders *usecase.OrderUsecase,
	varieties *usecase.VarietyUsecase,
	audit *usecase.AuditUsecase,
) *AdminHandler {
	return &AdminHandler{auth: auth, listings: listings, orders: orders, varieties: varieties, audit: audit}
}

func (h *AdminHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	// /admin 配下は全部「JWT必須 + token_version一致 + ADMIN限定」
	admin := e.Group(
		"/admin",
		middleware.AuthJWT(cfg),
		middleware.TokenVersionGuard(userRepo),
		middleware.RoleGuard(model.RoleAdmin),
	)

	admin.POST("/listings/:id/approve", h.approveListing)
	admin.POST("/listings/:id/reject", h.rejectListing)
	admin.POST("/orders/:id/refund", h.refundOrder)
	admin.POST("/varieties", h.createVariety)
	admin.POST("/users/:id/force-logout", h.forceLogout)
	admin.GET("/audit-logs", h.auditLogs)
}

func (h *AdminHandler) approveListing(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid listing_id")
	}
	out, err := h.listings.Approve(c.Request().Context(), principal(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminHandler) rejectListing(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid listing_id")
	}
	var req ReasonRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	out, err := h.listings.Reject(c.Request().Context(), principal(c), id, req.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminHandler) refundOrder(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid order_id")
	}
	out, err := h.orders.Refund(c.Request().Context(), principal(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminHandler) createVariety(c echo.Context) error {
	var req usecase.CreateVarietyInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	out, err := h.varieties.Create(c.Request().Context(), principal(c), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *AdminHandler) forceLogout(c echo.Context) error {
	userID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid user_id")
	}
	res, err := h.auth.ForceLogout(c.Request().Context(), principal(c), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *AdminHandler) auditLogs(c echo.Context) error {
	in := usecase.ListAuditLogsInput{
		ResourceType: c.QueryParam("resource_type"),
		Action:       c.QueryParam("action"),
	}
	var err error
	if in.Page, err = queryInt(c, "page"); err != nil {
		return badRequest(c, "invalid page")
	}
	if in.Limit, err = queryInt(c, "limit"); err != nil {
		return badRequest(c, "invalid limit")
	}
	rid, err := queryInt64Ptr(c, "resource_id")
	if err != nil {
		return badRequest(c, "invalid resource_id")
	}
	if rid != nil {
		in.ResourceID = *rid
	}
	if in.ActorUserID, err = queryInt64Ptr(c, "actor_user_id"); err != nil {
		return badRequest(c, "invalid actor_user_id")
	}

	out, uerr := h.audit.List(c.Request().Context(), principal(c), in)
	if uerr != nil {
		return writeError(c, uerr)
	}
	return c.JSON(http.StatusOK, out)
}
