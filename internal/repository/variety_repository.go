package repository

import (
	"context"
	"errors"

	"farmmarket/internal/domain/model"
)

var ErrDuplicateName = errors.New("name already exists")

type VarietyRepository interface {
	List(ctx context.Context, activeOnly bool) ([]model.Variety, error)
	FindByID(ctx context.Context, id int64) (model.Variety, error)
	Create(ctx context.Context, v model.Variety) (model.Variety, error)
}
