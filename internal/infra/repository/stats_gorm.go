package repository

import (
	"context"

	"farmmarket/internal/domain/model"
	repo "farmmarket/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type StatsGormRepository struct {
	db *gorm.DB
}

func NewStatsGormRepository(db *gorm.DB) *StatsGormRepository {
	return &StatsGormRepository{db: db}
}

func (r *StatsGormRepository) MarketStats(ctx context.Context) (repo.MarketStats, error) {
	out := repo.MarketStats{ByGrade: map[string]int64{}}
	db := r.db.WithContext(ctx)

	//販売中の出品
	available := func() *gorm.DB {
		return db.Model(&model.Listing{}).
			Where("approval_status = ?", model.ApprovalApproved).
			Where("is_available = ?", true)
	}

	if err := available().Count(&out.TotalListings).Error; err != nil {
		return repo.MarketStats{}, err
	}
	if err := available().Distinct("farmer_id").Count(&out.TotalFarmers).Error; err != nil {
		return repo.MarketStats{}, err
	}
	if err := available().Where("is_organic = ?", true).Count(&out.OrganicListings).Error; err != nil {
		return repo.MarketStats{}, err
	}

	var grades []struct {
		QualityGrade string
		N            int64
	}
	if err := available().Select("quality_grade, COUNT(*) AS n").Group("quality_grade").Scan(&grades).Error; err != nil {
		return repo.MarketStats{}, err
	}
	for _, g := range model.QualityGrades {
		out.ByGrade[string(g)] = 0
	}
	for _, g := range grades {
		out.ByGrade[g.QualityGrade] = g.N
	}

	var avg struct{ Value decimal.NullDecimal }
	if err := available().Select("AVG(price_per_unit) AS value").Scan(&avg).Error; err != nil {
		return repo.MarketStats{}, err
	}
	if avg.Value.Valid {
		out.AveragePrice = avg.Value.Decimal.Round(2)
	}

	if err := db.Model(&model.Order{}).Count(&out.TotalOrders).Error; err != nil {
		return repo.MarketStats{}, err
	}
	if err := db.Model(&model.Order{}).Where("status IN ?", model.ActiveOrderStatuses).Count(&out.ActiveOrders).Error; err != nil {
		return repo.MarketStats{}, err
	}

	var sales struct{ Value decimal.NullDecimal }
	if err := db.Model(&model.Order{}).
		Where("status = ?", model.OrderStatusDelivered).
		Select("SUM(total_amount) AS value").
		Scan(&sales).Error; err != nil {
		return repo.MarketStats{}, err
	}
	if sales.Value.Valid {
		out.DeliveredSales = sales.Value.Decimal
	}

	return out, nil
}
