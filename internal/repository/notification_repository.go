package repository

import (
	"context"
	"time"

	"farmmarket/internal/domain/model"
)

// 通知アウトボックス
type NotificationRepository interface {
	//DedupKeyが既にあれば何もせずfalse
	Enqueue(ctx context.Context, n model.Notification) (bool, error)
	//pendingと、claimedAtがstaleBeforeより前のsending
	ListPending(ctx context.Context, staleBefore time.Time, limit int) ([]model.Notification, error)
	ListByOrderID(ctx context.Context, orderID int64) ([]model.Notification, error)
	//送信前にsendingへ。取れなければErrStale
	Claim(ctx context.Context, id string, at time.Time, staleBefore time.Time) error
	//sendingのものだけdeliveredにする。違えばErrStale
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	//attemptsを+1してpendingに戻し、maxAttemptsに達したらfailedにする
	MarkAttemptFailed(ctx context.Context, id string, reason string, maxAttempts int) error
}
