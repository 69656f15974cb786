package middleware

import (
	"farmmarket/internal/domain/model"

	"github.com/labstack/echo/v4"
)

// RoleGuard はAuthJWTの後ろに置き、指定ロール以外を403にする。
func RoleGuard(roles ...model.Role) echo.MiddlewareFunc {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFrom(c)
			if !ok {
				return unauthorized(c)
			}
			if !allowed[p.Role] {
				return forbidden(c, "forbidden")
			}
			return next(c)
		}
	}
}
