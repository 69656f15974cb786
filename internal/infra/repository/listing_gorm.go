package repository

import (
	"context"
	"errors"
	"math"
	"strings"

	"farmmarket/internal/domain/model"
	repo "farmmarket/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	earthRadiusKm = 6371.0
	//半径検索で一度に読む上限
	radiusScanLimit = 1000
)

type ListingGormRepository struct {
	db *gorm.DB
}

// DI
func NewListingGormRepository(db *gorm.DB) *ListingGormRepository {
	return &ListingGormRepository{db: db}
}

var listingSortColumns = map[string]string{
	"":               "created_at",
	"created_at":     "created_at",
	"price":          "price_per_unit",
	"quantity":       "quantity_available",
	"available_from": "available_from",
	"harvest_date":   "harvest_date",
}

// 承認済みで買える出品だけを、絞り込み/ソート/ページング付きで返す。
func (r *ListingGormRepository) Search(ctx context.Context, q repo.ListingSearchQuery) ([]model.Listing, int64, error) {
	var listings []model.Listing
	var total int64

	tx := r.db.WithContext(ctx).Model(&model.Listing{}).
		Where("approval_status = ?", model.ApprovalApproved).
		Where("is_available = ?", true)

	if q.ProductionStatus != "" {
		tx = tx.Where("production_status = ?", q.ProductionStatus)
	} else {
		tx = tx.Where("production_status IN ?", []string{
			string(model.ProductionAvailable),
			string(model.ProductionInProduction),
		})
	}

	// 名前と説明を対象（DBに依存しないようLOWERで比較）
	if s := strings.TrimSpace(q.Q); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		tx = tx.Where("(LOWER(name) LIKE ? OR LOWER(description) LIKE ?)", like, like)
	}
	if q.VarietyID != nil {
		tx = tx.Where("variety_id = ?", *q.VarietyID)
	}
	if q.Grade != "" {
		tx = tx.Where("quality_grade = ?", q.Grade)
	}
	if q.Organic != nil {
		tx = tx.Where("is_organic = ?", *q.Organic)
	}

	//価格帯
	if q.MinPrice != nil {
		tx = tx.Where("price_per_unit >= ?", *q.MinPrice)
	}
	if q.MaxPrice != nil {
		tx = tx.Where("price_per_unit <= ?", *q.MaxPrice)
	}

	col, ok := listingSortColumns[q.Sort]
	if !ok {
		col = "created_at"
	}
	dir := "desc"
	if strings.EqualFold(q.Order, "asc") {
		dir = "asc"
	}
	orderBy := col + " " + dir

	radius := q.Lat != nil && q.Lng != nil && q.RadiusKm > 0
	if radius {
		//緯度経度の矩形で粗く絞ってから距離で判定する
		dLat := q.RadiusKm / 111.0
		dLng := q.RadiusKm / (111.0 * math.Max(math.Cos(*q.Lat*math.Pi/180), 0.01))
		tx = tx.Where("latitude BETWEEN ? AND ?", *q.Lat-dLat, *q.Lat+dLat).
			Where("longitude BETWEEN ? AND ?", *q.Lng-dLng, *q.Lng+dLng)

		var candidates []model.Listing
		if err := tx.Order(orderBy).Order("id " + dir).Limit(radiusScanLimit).Find(&candidates).Error; err != nil {
			return []model.Listing{}, 0, err
		}

		within := make([]model.Listing, 0, len(candidates))
		for _, l := range candidates {
			if l.Latitude == nil || l.Longitude == nil {
				continue
			}
			if DistanceKm(*q.Lat, *q.Lng, *l.Latitude, *l.Longitude) <= q.RadiusKm {
				within = append(within, l)
			}
		}
		return paginate(within, q.Page, q.Limit), int64(len(within)), nil
	}

	//total（件数）
	if err := tx.Count(&total).Error; err != nil {
		return []model.Listing{}, 0, err
	}

	offset := (q.Page - 1) * q.Limit
	if err := tx.Order(orderBy).Order("id " + dir).Offset(offset).Limit(q.Limit).Find(&listings).Error; err != nil {
		return []model.Listing{}, 0, err
	}

	return listings, total, nil
}

func paginate(items []model.Listing, page int, limit int) []model.Listing {
	start := (page - 1) * limit
	if start < 0 || start >= len(items) {
		return []model.Listing{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// DistanceKm は2点間の大円距離（haversine）
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func (r *ListingGormRepository) FindByID(ctx context.Context, id int64) (model.Listing, error) {
	var l model.Listing
	err := r.db.WithContext(ctx).First(&l, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Listing{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Listing{}, err
	}
	return l, nil
}

// SELECT ... FOR UPDATE で再読込
func (r *ListingGormRepository) FindByIDForUpdate(ctx context.Context, id int64) (model.Listing, error) {
	var l model.Listing
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&l, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Listing{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Listing{}, err
	}
	return l, nil
}

func (r *ListingGormRepository) ListByFarmer(ctx context.Context, farmerID int64, page int, limit int) ([]model.Listing, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Listing{}).
		Where("farmer_id = ?", farmerID).
		Count(&total).Error; err != nil {
		return []model.Listing{}, 0, err
	}

	var items []model.Listing
	offset := (page - 1) * limit
	err := r.db.WithContext(ctx).
		Where("farmer_id = ?", farmerID).
		Order("id desc").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return []model.Listing{}, 0, err
	}
	return items, total, nil
}

func (r *ListingGormRepository) Create(ctx context.Context, l model.Listing) (model.Listing, error) {
	if err := r.db.WithContext(ctx).Create(&l).Error; err != nil {
		return model.Listing{}, err
	}
	return l, nil
}

// 農家が変更できる項目 + 在庫関連
var listingMutableColumns = []string{
	"variety_id", "name", "description", "unit", "price_per_unit", "minimum_order_quantity",
	"quality_grade", "processing_method", "moisture_content", "purity_percentage", "is_organic",
	"harvest_date", "latitude", "longitude", "address",
	"quantity_available", "is_available", "production_status", "available_from",
}

func (r *ListingGormRepository) Update(ctx context.Context, l model.Listing) error {
	res := r.db.WithContext(ctx).
		Model(&model.Listing{ID: l.ID}).
		Select(listingMutableColumns).
		Updates(l)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *ListingGormRepository) UpdateApproval(ctx context.Context, id int64, status model.ApprovalStatus, reason string) error {
	res := r.db.WithContext(ctx).Model(&model.Listing{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"approval_status":  status,
			"rejection_reason": reason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 出品削除（論理削除）
func (r *ListingGormRepository) SoftDelete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&model.Listing{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
