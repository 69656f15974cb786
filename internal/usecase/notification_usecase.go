package usecase

import (
	"context"
	"errors"
	"time"

	"farmmarket/internal/domain/model"
	"farmmarket/internal/logging"
	"farmmarket/internal/notify"
	repo "farmmarket/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newNotification(orderID, recipientID int64, kind model.NotificationKind, dedupKey, title, body string, now time.Time) model.Notification {
	return model.Notification{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		RecipientID: recipientID,
		Kind:        kind,
		Title:       title,
		Body:        body,
		DedupKey:    dedupKey,
		Status:      model.NotificationPending,
		CreatedAt:   now,
	}
}

// OutboxDispatcher は積まれた通知をゲートウェイに渡す。
// 送信中はTxを持たない。送る前に行をsendingで取るので、複数台で動かしても二重には送らない。
// claimTTLを過ぎたsendingは落ちたdispatcherのものとみなして取り直す。
type OutboxDispatcher struct {
	tm          repo.TransactionManager
	gateway     notify.Gateway
	maxAttempts int
	batchSize   int
	claimTTL    time.Duration
	now         func() time.Time
}

func NewOutboxDispatcher(tm repo.TransactionManager, gateway notify.Gateway, maxAttempts int) *OutboxDispatcher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &OutboxDispatcher{
		tm:          tm,
		gateway:     gateway,
		maxAttempts: maxAttempts,
		batchSize:   100,
		claimTTL:    5 * time.Minute,
		now:         time.Now,
	}
}

type DispatchResult struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

func (d *OutboxDispatcher) Dispatch(ctx context.Context) (DispatchResult, error) {
	var res DispatchResult

	var pending []model.Notification
	err := d.tm.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		pending, err = r.Notifications().ListPending(ctx, d.now().Add(-d.claimTTL), d.batchSize)
		return err
	})
	if err != nil {
		return res, dbError(ctx, err)
	}

	log := logging.FromContext(ctx)
	for _, n := range pending {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		claimed, err := d.claim(ctx, n.ID)
		if err != nil {
			return res, err
		}
		if !claimed {
			//別のdispatcherが先に取った
			res.Skipped++
			continue
		}

		to, found, err := d.recipient(ctx, n.RecipientID)
		if err != nil {
			return res, dbError(ctx, err)
		}
		if !found {
			//宛先がいないものは再送しても無駄
			if err := d.markFailed(ctx, n.ID, "recipient not found", 1); err != nil {
				return res, err
			}
			res.Failed++
			continue
		}

		sendErr := d.gateway.Send(ctx, to, notify.Message{
			NotificationID: n.ID,
			OrderID:        n.OrderID,
			Kind:           string(n.Kind),
			Title:          n.Title,
			Body:           n.Body,
		})
		if sendErr != nil {
			log.Warn("notification send failed",
				zap.String("notification_id", n.ID),
				zap.Int64("order_id", n.OrderID),
				zap.Error(sendErr),
			)
			if err := d.markFailed(ctx, n.ID, sendErr.Error(), d.maxAttempts); err != nil {
				return res, err
			}
			res.Failed++
			continue
		}

		err = d.tm.WithinTx(ctx, func(r repo.TxRepos) error {
			return r.Notifications().MarkDelivered(ctx, n.ID, d.now())
		})
		if errors.Is(err, repo.ErrStale) {
			//claimTTLを過ぎて取り直された
			log.Warn("notification claim lost before delivery", zap.String("notification_id", n.ID))
			res.Skipped++
			continue
		}
		if err != nil {
			return res, dbError(ctx, err)
		}
		res.Delivered++
	}
	return res, nil
}

func (d *OutboxDispatcher) claim(ctx context.Context, id string) (bool, error) {
	now := d.now()
	err := d.tm.WithinTx(ctx, func(r repo.TxRepos) error {
		return r.Notifications().Claim(ctx, id, now, now.Add(-d.claimTTL))
	})
	if errors.Is(err, repo.ErrStale) {
		return false, nil
	}
	if err != nil {
		return false, dbError(ctx, err)
	}
	return true, nil
}

func (d *OutboxDispatcher) recipient(ctx context.Context, userID int64) (notify.Recipient, bool, error) {
	var to notify.Recipient
	found := false
	err := d.tm.WithinTx(ctx, func(r repo.TxRepos) error {
		u, err := r.Users().FindByID(ctx, userID)
		if err != nil || u == nil {
			return err
		}
		to = notify.Recipient{UserID: u.ID, Name: u.Name, Phone: u.Phone}
		found = true
		return nil
	})
	return to, found, err
}

func (d *OutboxDispatcher) markFailed(ctx context.Context, id string, reason string, maxAttempts int) error {
	err := d.tm.WithinTx(ctx, func(r repo.TxRepos) error {
		return r.Notifications().MarkAttemptFailed(ctx, id, reason, maxAttempts)
	})
	if err != nil {
		return dbError(ctx, err)
	}
	return nil
}
