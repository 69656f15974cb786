package validator

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"farmmarket/internal/domain/model"
	"farmmarket/internal/repository"
	"farmmarket/internal/usecase"
)

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
)

type authValidator struct {
	users repository.UserRepository
}

// Usecaseは interface を依存注入
func NewAuthValidator(users repository.UserRepository) usecase.AuthValidator {
	return &authValidator{users: users}
}

func invalid(msg string) error {
	return usecase.NewHTTPError(http.StatusBadRequest, msg)
}

// サインアップの入力を検証
func (v *authValidator) ValidateRegister(ctx context.Context, in usecase.RegisterInput) error {
	if in.Name == "" || len(in.Name) > 255 {
		return invalid("invalid name")
	}
	if in.Email == "" || !emailRe.MatchString(in.Email) {
		return invalid("invalid email")
	}

	// パスワード最低文字数（8）
	if len(in.Password) < 8 || len(in.Password) > 72 {
		return invalid("password must be 8-72 characters")
	}

	if p := strings.TrimSpace(in.Phone); p != "" && !phoneRe.MatchString(p) {
		return invalid("invalid phone")
	}

	//自分で管理者にはなれない
	switch model.Role(in.Role) {
	case model.RoleFarmer, model.RoleBuyer:
	default:
		return invalid("role must be FARMER or BUYER")
	}

	// email重複チェック（DBが必要）
	u, err := v.users.FindByEmail(ctx, in.Email)
	if err != nil {
		return usecase.NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if u != nil {
		return usecase.NewHTTPError(http.StatusConflict, "email already used")
	}
	return nil
}

// ログインの入力を検証
func (v *authValidator) ValidateLogin(ctx context.Context, email string, password string) error {
	if email == "" || password == "" {
		return invalid("email and password required")
	}
	if !emailRe.MatchString(email) {
		return invalid("invalid email")
	}
	return nil
}
