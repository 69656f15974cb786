package repository

import (
	"context"

	"farmmarket/internal/domain/model"
	repo "farmmarket/internal/repository"

	"gorm.io/gorm"
)

type auditLogGormRepository struct {
	db *gorm.DB
}

func NewAuditLogGormRepository(db *gorm.DB) repo.AuditLogRepository {
	return &auditLogGormRepository{db: db}
}

func (r *auditLogGormRepository) Create(ctx context.Context, log model.AuditLog) error {
	return r.db.WithContext(ctx).Create(&log).Error
}

func (r *auditLogGormRepository) List(ctx context.Context, q repo.AuditLogQuery) ([]model.AuditLog, int64, error) {
	db := r.db.WithContext(ctx).Model(&model.AuditLog{})
	if q.ResourceType != "" {
		db = db.Where("resource_type = ?", q.ResourceType)
	}
	if q.ResourceID > 0 {
		db = db.Where("resource_id = ?", q.ResourceID)
	}
	if q.ActorUserID != nil {
		db = db.Where("actor_user_id = ?", *q.ActorUserID)
	}
	if q.Action != "" {
		db = db.Where("action = ?", q.Action)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []model.AuditLog
	err := db.Order("created_at ASC").Order("id ASC").
		Limit(q.Limit).Offset((q.Page - 1) * q.Limit).
		Find(&logs).Error
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
