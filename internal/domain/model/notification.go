package model

import "time"

type NotificationKind string

const (
	NotificationOrderPlaced       NotificationKind = "order_placed"
	NotificationOrderStatus       NotificationKind = "order_status"
	NotificationPreOrderAvailable NotificationKind = "preorder_available"
	NotificationPreOrderDayBefore NotificationKind = "preorder_day_before"
)

type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationSending   NotificationStatus = "sending"
	NotificationDelivered NotificationStatus = "delivered"
	NotificationFailed    NotificationStatus = "failed"
)

// 送るべき通知（アウトボックス）。DedupKeyで同じ通知は一度しか積まれない。
type Notification struct {
	ID          string             `gorm:"type:varchar(36);primaryKey" json:"id"`
	OrderID     int64              `gorm:"not null;index" json:"order_id"`
	RecipientID int64              `gorm:"not null;index" json:"recipient_id"`
	Kind        NotificationKind   `gorm:"type:varchar(30);not null" json:"kind"`
	Title       string             `gorm:"type:varchar(255);not null" json:"title"`
	Body        string             `gorm:"type:text;not null" json:"body"`
	DedupKey    string             `gorm:"type:varchar(255);not null;uniqueIndex" json:"-"`
	Status      NotificationStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Attempts    int                `gorm:"not null" json:"attempts"`
	LastError   string             `gorm:"type:text" json:"last_error,omitempty"`
	ClaimedAt   *time.Time         `gorm:"index" json:"-"`
	CreatedAt   time.Time          `gorm:"not null;index" json:"created_at"`
	DeliveredAt *time.Time         `json:"delivered_at,omitempty"`
}
