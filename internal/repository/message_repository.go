package repository

import (
	"context"

	"farmmarket/internal/domain/model"
)

// 注文スレッドは追記のみ
type MessageRepository interface {
	Create(ctx context.Context, m model.OrderMessage) (model.OrderMessage, error)
	//作成時刻の昇順
	ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderMessage, error)
}
