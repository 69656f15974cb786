package repository

import (
	"context"
	"time"

	"farmmarket/internal/domain/model"
)

type OrderListFilter struct {
	Page     int
	Limit    int
	Status   model.OrderStatus
	BuyerID  *int64
	FarmerID *int64
	From     *time.Time
	To       *time.Time
}

// 予約注文の通知フラグ
type PreOrderFlag string

const (
	FlagSentAvailable PreOrderFlag = "notification_sent_available"
	FlagSentDayBefore PreOrderFlag = "notification_sent_day_before"
)

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	//行ロック付き（Tx内で使う）
	FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error)
	List(ctx context.Context, f OrderListFilter) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) (model.Order, error)

	//遷移結果を保存。statusがfromのときだけ更新し、違えばErrStale
	SaveTransition(ctx context.Context, order model.Order, from model.OrderStatus) error
	UpdatePaymentStatus(ctx context.Context, orderID int64, status model.PaymentStatus) error

	CountActiveByListing(ctx context.Context, listingID int64) (int64, error)

	//通知が残っている予約注文（pending/confirmed）をafterIDより後からid順に
	ListPreOrdersAwaitingNotice(ctx context.Context, afterID int64, limit int) ([]model.Order, error)
	//フラグをfalse→trueにする。すでにtrueならfalseを返す
	MarkNotificationSent(ctx context.Context, orderID int64, flag PreOrderFlag) (bool, error)

	ListAutoConfirmDue(ctx context.Context, now time.Time, limit int) ([]model.Order, error)
}
