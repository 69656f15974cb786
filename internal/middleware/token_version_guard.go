package middleware

import (
	"farmmarket/internal/logging"
	"farmmarket/internal/repository"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// JWTのtvとDBのtoken_versionが一致するか確認。停止ユーザーも弾く。
// 匿名リクエストはそのまま通す（OptionalAuthJWTの後ろに置けるように）。
func TokenVersionGuard(userRepo repository.UserRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFrom(c)
			if !ok {
				return next(c)
			}
			tv, ok := c.Get(CtxTokenVersionKey).(int)
			if !ok || tv < 0 {
				return unauthorized(c)
			}

			ctx := c.Request().Context()
			user, err := userRepo.FindByID(ctx, p.ID)
			if err != nil {
				logging.FromContext(ctx).Error("token version lookup failed", zap.Int64("user_id", p.ID), zap.Error(err))
				return unauthorized(c)
			}
			if user == nil || user.TokenVersion != tv {
				return unauthorized(c)
			}
			if !user.IsActive {
				return forbidden(c, "account disabled")
			}
			//ロールはDBの値を正とする
			if user.Role != p.Role {
				return unauthorized(c)
			}

			return next(c)
		}
	}
}
