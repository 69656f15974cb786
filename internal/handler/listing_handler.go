package handler

import (
	"encoding/json"
	"net/http"

	"farmmarket/internal/config"
	"farmmarket/internal/domain/model"
	"farmmarket/internal/middleware"
	"farmmarket/internal/repository"
	"farmmarket/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type ListingHandler struct {
	uc *usecase.ListingUsecase
}

func NewListingHandler(uc *usecase.ListingUsecase) *ListingHandler {
	return &ListingHandler{uc: uc}
}

func (h *ListingHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	//公開: 一覧は匿名、詳細はトークンがあれば本人の未承認出品も見える
	pub := e.Group("/listings")
	pub.GET("", h.search)
	pub.GET("/:id", h.detail, middleware.OptionalAuthJWT(cfg), middleware.TokenVersionGuard(userRepo))

	g := e.Group("/farmer/listings")
	g.Use(middleware.AuthJWT(cfg))
	g.Use(middleware.TokenVersionGuard(userRepo))
	g.Use(middleware.RoleGuard(model.RoleFarmer))

	g.POST("", h.create)
	g.GET("", h.mine)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", h.delete)
}

func (h *ListingHandler) search(c echo.Context) error {
	in := usecase.SearchListingsInput{
		Q:                c.QueryParam("q"),
		Grade:            c.QueryParam("grade"),
		ProductionStatus: c.QueryParam("production_status"),
		Sort:             c.QueryParam("sort"),
		Order:            c.QueryParam("order"),
	}

	var err error
	if in.Page, err = queryInt(c, "page"); err != nil {
		return badRequest(c, "invalid page")
	}
	if in.Limit, err = queryInt(c, "limit"); err != nil {
		return badRequest(c, "invalid limit")
	}
	if in.VarietyID, err = queryInt64Ptr(c, "variety_id"); err != nil {
		return badRequest(c, "invalid variety_id")
	}
	if in.Organic, err = queryBoolPtr(c, "organic"); err != nil {
		return badRequest(c, "invalid organic")
	}
	if in.Lat, err = queryFloatPtr(c, "lat"); err != nil {
		return badRequest(c, "invalid lat")
	}
	if in.Lng, err = queryFloatPtr(c, "lng"); err != nil {
		return badRequest(c, "invalid lng")
	}
	if in.RadiusKm, err = queryFloatPtr(c, "radius_km"); err != nil {
		return badRequest(c, "invalid radius_km")
	}
	if in.MinPrice, err = queryDecimalPtr(c, "min_price"); err != nil {
		return badRequest(c, "invalid min_price")
	}
	if in.MaxPrice, err = queryDecimalPtr(c, "max_price"); err != nil {
		return badRequest(c, "invalid max_price")
	}

	out, uerr := h.uc.Search(c.Request().Context(), in)
	if uerr != nil {
		return writeError(c, uerr)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ListingHandler) detail(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid listing_id")
	}

	out, err := h.uc.Get(c.Request().Context(), principal(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ListingHandler) create(c echo.Context) error {
	var req usecase.ListingInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.Create(c.Request().Context(), principal(c), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *ListingHandler) mine(c echo.Context) error {
	page, err := queryInt(c, "page")
	if err != nil {
		return badRequest(c, "invalid page")
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return badRequest(c, "invalid limit")
	}

	out, uerr := h.uc.ListMine(c.Request().Context(), principal(c), page, limit)
	if uerr != nil {
		return writeError(c, uerr)
	}
	return c.JSON(http.StatusOK, out)
}

// PATCHは送られたキーだけを見るのでmapで受ける
func (h *ListingHandler) update(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid listing_id")
	}

	var patch map[string]json.RawMessage
	if err := json.NewDecoder(c.Request().Body).Decode(&patch); err != nil || patch == nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.Update(c.Request().Context(), principal(c), id, patch)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ListingHandler) delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid listing_id")
	}

	if err := h.uc.Delete(c.Request().Context(), principal(c), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func queryDecimalPtr(c echo.Context, key string) (*decimal.Decimal, error) {
	v := c.QueryParam(key)
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
