package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// 終端状態（これ以上遷移しない）
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// 非終端状態。出品削除の可否判定などで使う。
var ActiveOrderStatuses = []OrderStatus{
	OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped,
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentPartial  PaymentStatus = "partial"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentFailed   PaymentStatus = "failed"
)

type DeliveryMethod string

const (
	DeliveryPickup  DeliveryMethod = "pickup"
	DeliveryCourier DeliveryMethod = "courier"
	DeliveryPostal  DeliveryMethod = "postal"
	DeliveryTruck   DeliveryMethod = "truck"
)

func (m DeliveryMethod) Valid() bool {
	switch m {
	case DeliveryPickup, DeliveryCourier, DeliveryPostal, DeliveryTruck:
		return true
	}
	return false
}

// 配送方法ごとの目安日数
func (m DeliveryMethod) EstimatedDays() int {
	switch m {
	case DeliveryPickup:
		return 1
	case DeliveryCourier:
		return 3
	case DeliveryPostal:
		return 7
	case DeliveryTruck:
		return 5
	default:
		return 5
	}
}

type DeliveryAddress struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// 注文。単価・合計は作成時のスナップショットで、出品側の変更に追従しない。
type Order struct {
	ID        int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	BuyerID   int64 `gorm:"not null;index" json:"buyer_id"`
	FarmerID  int64 `gorm:"not null;index" json:"farmer_id"`
	ListingID int64 `gorm:"not null;index" json:"listing_id"`

	//予約トークン（予約注文は在庫を確保しないので空）
	ReservationID string `gorm:"type:varchar(36);index" json:"reservation_id,omitempty"`

	Quantity    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"total_amount"`

	Status        OrderStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentStatus PaymentStatus `gorm:"type:varchar(20);not null" json:"payment_status"`
	PaymentMethod string        `gorm:"type:varchar(50);not null" json:"payment_method"`

	DeliveryMethod       DeliveryMethod  `gorm:"type:varchar(20);not null" json:"delivery_method"`
	DeliveryAddress      DeliveryAddress `gorm:"type:text;serializer:json" json:"delivery_address"`
	ExpectedDeliveryDate *time.Time      `json:"expected_delivery_date,omitempty"`
	ActualDeliveryDate   *time.Time      `json:"actual_delivery_date,omitempty"`
	TrackingNumber       string          `gorm:"type:varchar(100)" json:"tracking_number,omitempty"`
	ShippedAt            *time.Time      `json:"shipped_at,omitempty"`
	AutoConfirmAt        *time.Time      `gorm:"index" json:"auto_confirm_at,omitempty"`

	BuyerNotes   string `gorm:"type:varchar(500)" json:"buyer_notes,omitempty"`
	FarmerNotes  string `gorm:"type:varchar(500)" json:"farmer_notes,omitempty"`
	CancelReason string `gorm:"type:varchar(500)" json:"cancel_reason,omitempty"`

	IsPreOrder                bool       `gorm:"not null;index" json:"is_pre_order"`
	AvailableDate             *time.Time `json:"available_date,omitempty"`
	NotificationSentAvailable bool       `gorm:"not null" json:"notification_sent_available"`
	NotificationSentDayBefore bool       `gorm:"not null" json:"notification_sent_day_before"`

	OrderDate time.Time `gorm:"not null;index" json:"order_date"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// 在庫を確保している注文か（キャンセル時に戻す対象）
func (o Order) HoldsStock() bool {
	return !o.IsPreOrder
}

// 表示用の進捗率
func (o Order) ProgressPercentage() int {
	switch o.Status {
	case OrderStatusPending:
		return 10
	case OrderStatusConfirmed:
		return 30
	case OrderStatusProcessing:
		return 50
	case OrderStatusShipped:
		return 80
	case OrderStatusDelivered:
		return 100
	default:
		return 0
	}
}

// 配達予定日（未設定なら配送方法から推定）
func (o Order) EstimatedDeliveryDate() time.Time {
	if o.ExpectedDeliveryDate != nil {
		return *o.ExpectedDeliveryDate
	}
	return o.OrderDate.AddDate(0, 0, o.DeliveryMethod.EstimatedDays())
}

func (o Order) IsOverdue(now time.Time) bool {
	if o.Status == OrderStatusDelivered {
		return false
	}
	return now.After(o.EstimatedDeliveryDate())
}

// 配達予定日までの残り日数。配達済み・キャンセル済みはfalse。
func (o Order) DaysUntilDelivery(now time.Time) (int, bool) {
	if o.Status.IsTerminal() {
		return 0, false
	}
	d := o.EstimatedDeliveryDate().Sub(now)
	return int(d.Hours() / 24), true
}

type OrderMessage struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   int64     `gorm:"not null;index" json:"order_id"`
	SenderID  int64     `gorm:"not null;index" json:"sender_id"`
	Body      string    `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
