package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 在庫増減の履歴。予約・解放・農家の手動更新を残す。
type InventoryAdjustmentReason string

const (
	AdjustmentReserve InventoryAdjustmentReason = "reserve"
	AdjustmentRelease InventoryAdjustmentReason = "release"
	AdjustmentManual  InventoryAdjustmentReason = "manual"
)

type InventoryAdjustment struct {
	ID          int64                     `gorm:"primaryKey;autoIncrement" json:"id"`
	ListingID   int64                     `gorm:"not null;index" json:"listing_id"`
	ActorUserID int64                     `gorm:"not null;index" json:"actor_user_id"`
	Delta       decimal.Decimal           `gorm:"type:decimal(12,2);not null" json:"delta"`
	Reason      InventoryAdjustmentReason `gorm:"type:varchar(20);not null" json:"reason"`
	Reference   string                    `gorm:"type:varchar(64)" json:"reference,omitempty"`
	CreatedAt   time.Time                 `gorm:"not null;autoCreateTime" json:"created_at"`
}
