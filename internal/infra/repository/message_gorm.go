package repository

import (
	"context"

	"farmmarket/internal/domain/model"

	"gorm.io/gorm"
)

type MessageGormRepository struct {
	db *gorm.DB
}

func NewMessageGormRepository(db *gorm.DB) *MessageGormRepository {
	return &MessageGormRepository{db: db}
}

func (r *MessageGormRepository) Create(ctx context.Context, m model.OrderMessage) (model.OrderMessage, error) {
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return model.OrderMessage{}, err
	}
	return m, nil
}

// 古い順。同時刻はid順
func (r *MessageGormRepository) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderMessage, error) {
	var items []model.OrderMessage
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at asc").
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
