package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"farmmarket/internal/domain/model"
	"farmmarket/internal/logging"

	"go.uber.org/zap"
)

// エラーの種類。HTTPError.Errに入るのでerrors.Isで判定できる。
var (
	//400 入力不正
	ErrValidation = errors.New("validation error")
	//409 在庫不足
	ErrInsufficientStock = errors.New("insufficient stock")
	//422 最低注文数量未満
	ErrBelowMinimum = errors.New("below minimum order quantity")
	//409 遷移元が違う
	ErrInvalidTransition = model.ErrInvalidTransition
	//401 認証失敗（ログイン）
	ErrUnauthenticated = errors.New("unauthenticated")
	//403 権限なし
	ErrUnauthorized = errors.New("unauthorized")
	//409 構造的な競合（有効な注文がある出品の削除など）
	ErrConflict = errors.New("conflict")
	//404
	ErrNotFound = errors.New("not found")
	//503 ロックが取れない
	ErrServiceUnavailable = errors.New("service unavailable")
	//500
	ErrInternal = errors.New("internal error")
)

type HTTPError struct {
	Status  int
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// NewHTTPError はステータスから種類を決める。
func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
		Err:     kindForStatus(status),
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

func newError(kind error, message string) error {
	return &HTTPError{Status: statusForKind(kind), Message: message, Err: kind}
}

func invalid(message string) error { return newError(ErrValidation, message) }

func forbidden() error { return newError(ErrUnauthorized, "forbidden") }

func notFound(what string) error { return newError(ErrNotFound, what+" not found") }

func conflict(message string) error { return newError(ErrConflict, message) }

func invalidTransition(err error) error {
	return &HTTPError{Status: http.StatusConflict, Message: err.Error(), Err: ErrInvalidTransition}
}

// DBなど想定外の失敗。原因はログにだけ出す。
func dbError(ctx context.Context, err error) error {
	logging.FromContext(ctx).Error("db error", zap.Error(err))
	return newError(ErrInternal, "db error")
}

func statusForKind(kind error) int {
	switch kind {
	case ErrValidation:
		return http.StatusBadRequest
	case ErrInsufficientStock, ErrInvalidTransition, ErrConflict:
		return http.StatusConflict
	case ErrBelowMinimum:
		return http.StatusUnprocessableEntity
	case ErrUnauthenticated:
		return http.StatusUnauthorized
	case ErrUnauthorized:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func kindForStatus(status int) error {
	switch status {
	case http.StatusBadRequest:
		return ErrValidation
	case http.StatusUnauthorized:
		return ErrUnauthenticated
	case http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusUnprocessableEntity:
		return ErrBelowMinimum
	case http.StatusServiceUnavailable:
		return ErrServiceUnavailable
	default:
		return ErrInternal
	}
}

// ErrorCode はレスポンスのcodeに使う文字列
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrBelowMinimum):
		return "below_minimum"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrServiceUnavailable):
		return "service_unavailable"
	default:
		return "internal_error"
	}
}
