package usecase

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"farmmarket/internal/authz"
	"farmmarket/internal/domain/model"
	repo "farmmarket/internal/repository"
)

const maxMessageLen = 2000

// 注文ごとの買い手と農家のやりとり（追記のみ）
type MessageUsecase struct {
	tm  repo.TransactionManager
	now func() time.Time
}

func NewMessageUsecase(tm repo.TransactionManager) *MessageUsecase {
	return &MessageUsecase{tm: tm, now: time.Now}
}

func (u *MessageUsecase) Post(ctx context.Context, p authz.Principal, orderID int64, text string) (model.OrderMessage, error) {
	if orderID <= 0 {
		return model.OrderMessage{}, invalid("invalid order id")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return model.OrderMessage{}, invalid("message required")
	}
	if utf8.RuneCountInString(text) > maxMessageLen {
		return model.OrderMessage{}, invalid("message too long")
	}

	var out model.OrderMessage
	err := u.tm.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := u.orderFor(ctx, r, p, orderID, authz.ActionMessagePost)
		if err != nil {
			return err
		}
		out, err = r.Messages().Create(ctx, model.OrderMessage{
			OrderID:   o.ID,
			SenderID:  p.ID,
			Body:      text,
			CreatedAt: u.now(),
		})
		if err != nil {
			return dbError(ctx, err)
		}
		return nil
	})
	if err != nil {
		return model.OrderMessage{}, err
	}
	return out, nil
}

func (u *MessageUsecase) List(ctx context.Context, p authz.Principal, orderID int64) ([]model.OrderMessage, error) {
	if orderID <= 0 {
		return nil, invalid("invalid order id")
	}

	var out []model.OrderMessage
	err := u.tm.WithinTx(ctx, func(r repo.TxRepos) error {
		if _, err := u.orderFor(ctx, r, p, orderID, authz.ActionMessageView); err != nil {
			return err
		}
		var err error
		out, err = r.Messages().ListByOrderID(ctx, orderID)
		if err != nil {
			return dbError(ctx, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (u *MessageUsecase) orderFor(ctx context.Context, r repo.TxRepos, p authz.Principal, orderID int64, action authz.Action) (model.Order, error) {
	o, err := r.Orders().FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Order{}, notFound("order")
	}
	if err != nil {
		return model.Order{}, dbError(ctx, err)
	}
	if !authz.CanAct(p, authz.OrderResource(o), action) {
		return model.Order{}, forbidden()
	}
	return o, nil
}
