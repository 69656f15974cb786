package repository

import (
	"context"
	"errors"
	"time"

	"farmmarket/internal/domain/model"
	repo "farmmarket/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderGormRepository struct {
	db *gorm.DB
}

func NewOrderGormRepository(db *gorm.DB) *OrderGormRepository {
	return &OrderGormRepository{db: db}
}

func (r *OrderGormRepository) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Order{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func (r *OrderGormRepository) FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Order{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func (r *OrderGormRepository) List(ctx context.Context, f repo.OrderListFilter) ([]model.Order, int64, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}

	q := r.db.WithContext(ctx).Model(&model.Order{})

	//status 絞り込み
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.BuyerID != nil {
		q = q.Where("buyer_id = ?", *f.BuyerID)
	}
	if f.FarmerID != nil {
		q = q.Where("farmer_id = ?", *f.FarmerID)
	}

	//期間絞り込み
	if f.From != nil {
		q = q.Where("order_date >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("order_date <= ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return []model.Order{}, 0, err
	}

	var items []model.Order
	offset := (f.Page - 1) * f.Limit
	if err := q.Order("id desc").Limit(f.Limit).Offset(offset).Find(&items).Error; err != nil {
		return []model.Order{}, 0, err
	}

	return items, total, nil
}

func (r *OrderGormRepository) Create(ctx context.Context, order model.Order) (model.Order, error) {
	if err := r.db.WithContext(ctx).Create(&order).Error; err != nil {
		return model.Order{}, err
	}
	return order, nil
}

// 遷移で変わりうる項目
var orderTransitionColumns = []string{
	"status", "payment_status", "expected_delivery_date", "actual_delivery_date",
	"tracking_number", "shipped_at", "auto_confirm_at", "farmer_notes", "cancel_reason",
}

func (r *OrderGormRepository) SaveTransition(ctx context.Context, order model.Order, from model.OrderStatus) error {
	res := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND status = ?", order.ID, from).
		Select(orderTransitionColumns).
		Updates(order)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrStale
	}
	return nil
}

func (r *OrderGormRepository) UpdatePaymentStatus(ctx context.Context, orderID int64, status model.PaymentStatus) error {
	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", orderID).
		Update("payment_status", status)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *OrderGormRepository) CountActiveByListing(ctx context.Context, listingID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("listing_id = ?", listingID).
		Where("status IN ?", model.ActiveOrderStatuses).
		Count(&n).Error
	return n, err
}

func (r *OrderGormRepository) ListPreOrdersAwaitingNotice(ctx context.Context, afterID int64, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []model.Order
	err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Where("is_pre_order = ?", true).
		Where("status IN ?", []model.OrderStatus{model.OrderStatusPending, model.OrderStatusConfirmed}).
		Where("notification_sent_available = ? OR notification_sent_day_before = ?", false, false).
		Order("id asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// false→trueの一方向。二度目はRowsAffected=0でfalse。
func (r *OrderGormRepository) MarkNotificationSent(ctx context.Context, orderID int64, flag repo.PreOrderFlag) (bool, error) {
	switch flag {
	case repo.FlagSentAvailable, repo.FlagSentDayBefore:
	default:
		return false, errors.New("unknown notification flag")
	}

	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND "+string(flag)+" = ?", orderID, false).
		Update(string(flag), true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *OrderGormRepository) ListAutoConfirmDue(ctx context.Context, now time.Time, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []model.Order
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OrderStatusShipped).
		Where("auto_confirm_at IS NOT NULL AND auto_confirm_at <= ?", now).
		Order("auto_confirm_at asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
