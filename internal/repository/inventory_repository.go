package repository

import (
	"context"

	"farmmarket/internal/domain/model"

	"github.com/shopspring/decimal"
)

type InventoryRepository interface {
	// 在庫の現在値とis_availableを設定（予約ガードの中からのみ呼ぶ）
	SetQuantity(ctx context.Context, listingID int64, qty decimal.Decimal, isAvailable bool) error

	// 調整履歴作成
	CreateAdjustment(ctx context.Context, adjustment model.InventoryAdjustment) error

	ListAdjustments(ctx context.Context, listingID int64) ([]model.InventoryAdjustment, error)
}
