package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"farmmarket/internal/authz"
	"farmmarket/internal/logging"
	"farmmarket/internal/middleware"
	"farmmarket/internal/usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}

// usecaseのエラーを {"error","code"} に変換する
func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	if he, ok := usecase.AsHTTPError(err); ok {
		return c.JSON(he.Status, ErrorResponse{Error: he.Message, Code: usecase.ErrorCode(he)})
	}

	//500
	logging.FromContext(c.Request().Context()).Error("unhandled error", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: "internal_error"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: "validation_error"})
}

// HTTPErrorHandler はechoが返すエラー（404ルート、bind失敗など）も同じ形にそろえる
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		_ = c.JSON(he.Code, ErrorResponse{Error: msg, Code: usecase.ErrorCode(usecase.NewHTTPError(he.Code, msg))})
		return
	}
	_ = writeError(c, err)
}

func principal(c echo.Context) authz.Principal {
	p, _ := middleware.PrincipalFrom(c)
	return p
}

// パスの:idを正の整数として読む
func pathID(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func queryInt(c echo.Context, key string) (int, error) {
	v := strings.TrimSpace(c.QueryParam(key))
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func queryInt64Ptr(c echo.Context, key string) (*int64, error) {
	v := strings.TrimSpace(c.QueryParam(key))
	if v == "" {
		return nil, nil
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func queryFloatPtr(c echo.Context, key string) (*float64, error) {
	v := strings.TrimSpace(c.QueryParam(key))
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func queryBoolPtr(c echo.Context, key string) (*bool, error) {
	v := strings.TrimSpace(c.QueryParam(key))
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// 日付（2006-01-02）かRFC3339を受け付ける
func queryTimePtr(c echo.Context, key string) (*time.Time, error) {
	v := strings.TrimSpace(c.QueryParam(key))
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
