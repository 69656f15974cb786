package repository

import (
	"context"
	"errors"

	"farmmarket/internal/domain/model"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("not found")
	//条件付き更新で対象行の状態が変わっていた
	ErrStale = errors.New("stale state")
)

// 公開出品の検索条件
type ListingSearchQuery struct {
	Page  int
	Limit int
	Q     string

	VarietyID        *int64
	Grade            model.QualityGrade
	Organic          *bool
	ProductionStatus model.ProductionStatus
	MinPrice         *decimal.Decimal
	MaxPrice         *decimal.Decimal

	//半径検索（km）。Lat/Lngが両方あるときだけ有効
	Lat      *float64
	Lng      *float64
	RadiusKm float64

	Sort  string // created_at / price / quantity / available_from / harvest_date
	Order string // asc / desc
}

type ListingRepository interface {
	Search(ctx context.Context, q ListingSearchQuery) ([]model.Listing, int64, error)
	FindByID(ctx context.Context, id int64) (model.Listing, error)

	//行ロック付きで再読込する（Tx内で使う）
	FindByIDForUpdate(ctx context.Context, id int64) (model.Listing, error)

	ListByFarmer(ctx context.Context, farmerID int64, page int, limit int) ([]model.Listing, int64, error)
	Create(ctx context.Context, l model.Listing) (model.Listing, error)

	//可変項目をまとめて保存
	Update(ctx context.Context, l model.Listing) error
	UpdateApproval(ctx context.Context, id int64, status model.ApprovalStatus, reason string) error
	SoftDelete(ctx context.Context, id int64) error
}
