package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"farmmarket/internal/domain/model"
	"farmmarket/internal/logging"
	repo "farmmarket/internal/repository"

	"go.uber.org/zap"
)

type PreOrderDecision struct {
	SendAvailableNow bool
	SendDayBefore    bool
}

func (d PreOrderDecision) Any() bool { return d.SendAvailableNow || d.SendDayBefore }

// DecidePreOrderNotifications は予約注文に今送るべき通知を決める。副作用なし。
// 日付の比較はlocの暦日で行う。
func DecidePreOrderNotifications(l model.Listing, o model.Order, now time.Time, loc *time.Location) PreOrderDecision {
	var d PreOrderDecision
	if !o.IsPreOrder {
		return d
	}
	if o.Status != model.OrderStatusPending && o.Status != model.OrderStatusConfirmed {
		return d
	}
	if loc == nil {
		loc = time.UTC
	}
	today := dayOf(now, loc)

	if !o.NotificationSentAvailable {
		switch {
		case l.ProductionStatus == model.ProductionAvailable:
			d.SendAvailableNow = true
		case l.ProductionStatus == model.ProductionInProduction && l.AvailableFrom != nil &&
			!dayOf(*l.AvailableFrom, loc).After(today):
			d.SendAvailableNow = true
		}
	}

	if !o.NotificationSentDayBefore && o.AvailableDate != nil {
		if dayOf(*o.AvailableDate, loc).Equal(today.AddDate(0, 0, 1)) {
			d.SendDayBefore = true
		}
	}
	return d
}

// PreOrderScheduler は判定結果をアウトボックスに積む。
// フラグの更新と通知の積み込みは注文ごとに1つのTx。
type PreOrderScheduler struct {
	tm        repo.TransactionManager
	loc       *time.Location
	batchSize int
}

func NewPreOrderScheduler(tm repo.TransactionManager, loc *time.Location) *PreOrderScheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &PreOrderScheduler{tm: tm, loc: loc, batchSize: 200}
}

type SweepResult struct {
	Checked  int `json:"checked"`
	Enqueued int `json:"enqueued"`
}

// Sweep は対象の予約注文をカーソルで最後まで見る。
func (s *PreOrderScheduler) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var res SweepResult
	log := logging.FromContext(ctx)

	var lastID int64
	for {
		var orders []model.Order
		err := s.tm.WithinTx(ctx, func(r repo.TxRepos) error {
			var err error
			orders, err = r.Orders().ListPreOrdersAwaitingNotice(ctx, lastID, s.batchSize)
			return err
		})
		if err != nil {
			return res, dbError(ctx, err)
		}

		for _, o := range orders {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			lastID = o.ID
			res.Checked++

			n, err := s.sweepOne(ctx, o.ID, now)
			if err != nil {
				log.Error("pre-order sweep failed", zap.Int64("order_id", o.ID), zap.Error(err))
				continue
			}
			res.Enqueued += n
		}

		if len(orders) < s.batchSize {
			return res, nil
		}
	}
}

func (s *PreOrderScheduler) sweepOne(ctx context.Context, orderID int64, now time.Time) (int, error) {
	enqueued := 0
	err := s.tm.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		l, err := r.Listings().FindByID(ctx, o.ListingID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		d := DecidePreOrderNotifications(l, o, now, s.loc)
		if !d.Any() {
			return nil
		}

		buyerName := "there"
		if u, err := r.Users().FindByID(ctx, o.BuyerID); err != nil {
			return err
		} else if u != nil && u.Name != "" {
			buyerName = u.Name
		}

		if d.SendAvailableNow {
			ok, err := r.Orders().MarkNotificationSent(ctx, o.ID, repo.FlagSentAvailable)
			if err != nil {
				return err
			}
			if ok {
				body := fmt.Sprintf("Hello %s, your pre-ordered rice product '%s' is now available! "+
					"You can pick it up or we will deliver it to you soon. Order #%d", buyerName, l.Name, o.ID)
				if err := s.enqueue(ctx, r, o, model.NotificationPreOrderAvailable, "Pre-order Available", body, now); err != nil {
					return err
				}
				enqueued++
			}
		}

		if d.SendDayBefore {
			ok, err := r.Orders().MarkNotificationSent(ctx, o.ID, repo.FlagSentDayBefore)
			if err != nil {
				return err
			}
			if ok {
				body := fmt.Sprintf("Hello %s, reminder: Your pre-ordered rice product '%s' will be available tomorrow (%s). Order #%d",
					buyerName, l.Name, o.AvailableDate.In(s.loc).Format("January 2, 2006"), o.ID)
				if err := s.enqueue(ctx, r, o, model.NotificationPreOrderDayBefore, "Pre-order Reminder", body, now); err != nil {
					return err
				}
				enqueued++
			}
		}
		return nil
	})
	return enqueued, err
}

func (s *PreOrderScheduler) enqueue(ctx context.Context, r repo.TxRepos, o model.Order, kind model.NotificationKind, title, body string, now time.Time) error {
	_, err := r.Notifications().Enqueue(ctx, newNotification(
		o.ID, o.BuyerID, kind,
		fmt.Sprintf("order:%d:%s", o.ID, kind),
		title, body, now,
	))
	return err
}
