package usecase

import (
	"context"
	"errors"
	"strings"

	"farmmarket/internal/authz"
	"farmmarket/internal/domain/model"
	repo "farmmarket/internal/repository"
)

type VarietyUsecase struct {
	varieties repo.VarietyRepository
}

func NewVarietyUsecase(varieties repo.VarietyRepository) *VarietyUsecase {
	return &VarietyUsecase{varieties: varieties}
}

func (u *VarietyUsecase) List(ctx context.Context) ([]model.Variety, error) {
	items, err := u.varieties.List(ctx, true)
	if err != nil {
		return nil, dbError(ctx, err)
	}
	return items, nil
}

type CreateVarietyInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// 管理者のみ
func (u *VarietyUsecase) Create(ctx context.Context, p authz.Principal, in CreateVarietyInput) (model.Variety, error) {
	if p.ID <= 0 || p.Role != model.RoleAdmin {
		return model.Variety{}, forbidden()
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return model.Variety{}, invalid("name required")
	}
	if len(name) > 100 {
		return model.Variety{}, invalid("name too long")
	}

	v, err := u.varieties.Create(ctx, model.Variety{
		Name:        name,
		Description: in.Description,
		IsActive:    true,
	})
	if errors.Is(err, repo.ErrDuplicateName) {
		return model.Variety{}, conflict("variety already exists")
	}
	if err != nil {
		return model.Variety{}, dbError(ctx, err)
	}
	return v, nil
}
