package repository

import (
	"context"
	"time"

	"farmmarket/internal/domain/model"
	repo "farmmarket/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type NotificationGormRepository struct {
	db *gorm.DB
}

func NewNotificationGormRepository(db *gorm.DB) *NotificationGormRepository {
	return &NotificationGormRepository{db: db}
}

// dedup_keyが重複したら何もしない
func (r *NotificationGormRepository) Enqueue(ctx context.Context, n model.Notification) (bool, error) {
	if n.Status == "" {
		n.Status = model.NotificationPending
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "dedup_key"}}, DoNothing: true}).
		Create(&n)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func notificationClaimable(db *gorm.DB, staleBefore time.Time) *gorm.DB {
	return db.Where("(status = ? OR (status = ? AND claimed_at < ?))",
		model.NotificationPending, model.NotificationSending, staleBefore)
}

func (r *NotificationGormRepository) ListPending(ctx context.Context, staleBefore time.Time, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []model.Notification
	err := notificationClaimable(r.db.WithContext(ctx), staleBefore).
		Order("created_at asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *NotificationGormRepository) ListByOrderID(ctx context.Context, orderID int64) ([]model.Notification, error) {
	var items []model.Notification
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// 条件付きUPDATEなので同じ行を取れるのは一つだけ
func (r *NotificationGormRepository) Claim(ctx context.Context, id string, at time.Time, staleBefore time.Time) error {
	res := notificationClaimable(r.db.WithContext(ctx).Model(&model.Notification{}).Where("id = ?", id), staleBefore).
		Updates(map[string]interface{}{
			"status":     model.NotificationSending,
			"claimed_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrStale
	}
	return nil
}

func (r *NotificationGormRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND status = ?", id, model.NotificationSending).
		Updates(map[string]interface{}{
			"status":       model.NotificationDelivered,
			"delivered_at": at,
			"claimed_at":   nil,
			"attempts":     gorm.Expr("attempts + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrStale
	}
	return nil
}

func (r *NotificationGormRepository) MarkAttemptFailed(ctx context.Context, id string, reason string, maxAttempts int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n model.Notification
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&n, "id = ?", id).Error; err != nil {
			return err
		}

		attempts := n.Attempts + 1
		status := model.NotificationPending
		if attempts >= maxAttempts {
			status = model.NotificationFailed
		}
		return tx.Model(&model.Notification{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"attempts":   attempts,
				"status":     status,
				"last_error": reason,
				"claimed_at": nil,
			}).Error
	})
}
