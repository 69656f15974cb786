package model

import "time"

type AuditAction string

const (
	//出品の在庫を手動で更新した
	AuditActionUpdateStock AuditAction = "UPDATE_STOCK"
	//注文ステータスを遷移させた
	AuditActionUpdateOrderStatus AuditAction = "UPDATE_ORDER_STATUS"
	//注文の支払い状態を変えた
	AuditActionUpdatePayment AuditAction = "UPDATE_PAYMENT"
	//出品の審査（承認/却下）
	AuditActionModerateListing AuditAction = "MODERATE_LISTING"
)

type AuditResourceType string

const (
	AuditResourceListing AuditResourceType = "listing"
	AuditResourceOrder   AuditResourceType = "order"
)

// 誰が、どの対象を、どう変えたかを遷移と同じTxで残す。
// ActorUserIDが0のものはシステム（自動受取など）による操作。
type AuditLog struct {
	ID           int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	ActorUserID  int64             `gorm:"not null;index" json:"actor_user_id"`
	Action       AuditAction       `gorm:"type:varchar(50);not null;index" json:"action"`
	ResourceType AuditResourceType `gorm:"type:varchar(50);not null;index" json:"resource_type"`
	ResourceID   int64             `gorm:"not null;index" json:"resource_id"`
	BeforeJSON   string            `gorm:"type:text" json:"before_json"`
	AfterJSON    string            `gorm:"type:text" json:"after_json"`
	CreatedAt    time.Time         `gorm:"not null;index" json:"created_at"`
}
