package repository

import (
	"context"
	"errors"

	"farmmarket/internal/domain/model"
	repo "farmmarket/internal/repository"

	"gorm.io/gorm"
)

type VarietyGormRepository struct {
	db *gorm.DB
}

func NewVarietyGormRepository(db *gorm.DB) *VarietyGormRepository {
	return &VarietyGormRepository{db: db}
}

func (r *VarietyGormRepository) List(ctx context.Context, activeOnly bool) ([]model.Variety, error) {
	q := r.db.WithContext(ctx).Model(&model.Variety{})
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var items []model.Variety
	if err := q.Order("name asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *VarietyGormRepository) FindByID(ctx context.Context, id int64) (model.Variety, error) {
	var v model.Variety
	err := r.db.WithContext(ctx).First(&v, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Variety{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Variety{}, err
	}
	return v, nil
}

func (r *VarietyGormRepository) Create(ctx context.Context, v model.Variety) (model.Variety, error) {
	if err := r.db.WithContext(ctx).Create(&v).Error; err != nil {
		if isUniqueViolation(err) {
			return model.Variety{}, repo.ErrDuplicateName
		}
		return model.Variety{}, err
	}
	return v, nil
}
