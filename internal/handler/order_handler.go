package handler

import (
	"net/http"
	"time"

	"farmmarket/internal/config"
	"farmmarket/internal/domain/model"
	"farmmarket/internal/middleware"
	"farmmarket/internal/repository"
	"farmmarket/internal/usecase"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	uc       *usecase.OrderUsecase
	messages *usecase.MessageUsecase
}

func NewOrderHandler(uc *usecase.OrderUsecase, messages *usecase.MessageUsecase) *OrderHandler {
	return &OrderHandler{uc: uc, messages: messages}
}

type ShipOrderRequest struct {
	TrackingNumber string `json:"tracking_number"`
}

type DeliverOrderRequest struct {
	DeliveredAt *time.Time `json:"delivered_at"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type PostMessageRequest struct {
	Message string `json:"message"`
}

func (h *OrderHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	g := e.Group("/orders")
	g.Use(middleware.AuthJWT(cfg))
	g.Use(middleware.TokenVersionGuard(userRepo))

	buyerOnly := middleware.RoleGuard(model.RoleBuyer)
	g.POST("", h.create, buyerOnly)
	g.GET("", h.listForBuyer, buyerOnly)
	g.GET("/:id", h.detail)

	//状態遷移（誰が何をできるかはusecase側のポリシーで判定）
	g.POST("/:id/confirm", h.confirm)
	g.POST("/:id/process", h.process)
	g.POST("/:id/ship", h.ship)
	g.POST("/:id/deliver", h.deliver)
	g.POST("/:id/cancel", h.cancel)
	g.POST("/:id/reject", h.reject)
	g.POST("/:id/mark-paid", h.markPaid)

	g.GET("/:id/messages", h.listMessages)
	g.POST("/:id/messages", h.postMessage)

	f := e.Group("/farmer/orders")
	f.Use(middleware.AuthJWT(cfg))
	f.Use(middleware.TokenVersionGuard(userRepo))
	f.Use(middleware.RoleGuard(model.RoleFarmer))
	f.GET("", h.listForFarmer)
}

func (h *OrderHandler) create(c echo.Context) error {
	var req usecase.CreateOrderInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.Create(c.Request().Context(), principal(c), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func listOrdersInput(c echo.Context) (usecase.ListOrdersInput, string) {
	in := usecase.ListOrdersInput{Status: c.QueryParam("status")}
	var err error
	if in.Page, err = queryInt(c, "page"); err != nil {
		return in, "invalid page"
	}
	if in.Limit, err = queryInt(c, "limit"); err != nil {
		return in, "invalid limit"
	}
	if in.From, err = queryTimePtr(c, "from"); err != nil {
		return in, "invalid from"
	}
	if in.To, err = queryTimePtr(c, "to"); err != nil {
		return in, "invalid to"
	}
	return in, ""
}

func (h *OrderHandler) listForBuyer(c echo.Context) error {
	in, msg := listOrdersInput(c)
	if msg != "" {
		return badRequest(c, msg)
	}
	out, err := h.uc.ListForBuyer(c.Request().Context(), principal(c), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) listForFarmer(c echo.Context) error {
	in, msg := listOrdersInput(c)
	if msg != "" {
		return badRequest(c, msg)
	}
	out, err := h.uc.ListForFarmer(c.Request().Context(), principal(c), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) detail(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid order_id")
	}
	out, err := h.uc.Get(c.Request().Context(), principal(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) confirm(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid order_id")
	}
	var req usecase.ConfirmOrderInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	out, err := h.uc.Confirm(c.Request().Context(), principal(c), id, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) process(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid order_id")
	}
	out, err := h.uc.Process(c.Request().Context(), principal(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) ship(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid order_id")
	}
	var req ShipOrderRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	out, err := h.uc.Ship(c.Request().Context(), principal(c), id, req.TrackingNumber)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) deliver(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid order_id")
	}
	var req DeliverOrderRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	out, err := h.uc.Deliver(c.Request().Context(), principal(c), id, req.DeliveredAt)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) cancel(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid order_id")
	}
	var req ReasonRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	out, err := h.uc.Cancel(c.Request().Context(), principal(c), id, req.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) reject(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid order_id")
	}
	var req ReasonRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	out, err := h.uc.Reject(c.Request().Context(), principal(c), id, req.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) markPaid(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid order_id")
	}
	out, err := h.uc.MarkPaid(c.Request().Context(), principal(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) listMessages(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid order_id")
	}
	out, err := h.messages.List(c.Request().Context(), principal(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) postMessage(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid order_id")
	}
	var req PostMessageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	out, err := h.messages.Post(c.Request().Context(), principal(c), id, req.Message)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}
