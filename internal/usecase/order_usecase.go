package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"farmmarket/internal/authz"
	"farmmarket/internal/domain/model"
	"farmmarket/internal/logging"
	repo "farmmarket/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	maxNotesLen  = 500
	maxReasonLen = 500
)

// 集計キャッシュの破棄（任意）
type StatsInvalidator interface {
	Invalidate(ctx context.Context) error
}

type OrderUsecase struct {
	tm               repo.TransactionManager
	guard            *ReservationGuard
	cache            StatsInvalidator
	autoConfirmAfter time.Duration
	loc              *time.Location
	now              func() time.Time
}

func NewOrderUsecase(tm repo.TransactionManager, guard *ReservationGuard, autoConfirmAfter time.Duration, loc *time.Location) *OrderUsecase {
	if loc == nil {
		loc = time.UTC
	}
	return &OrderUsecase{
		tm:               tm,
		guard:            guard,
		autoConfirmAfter: autoConfirmAfter,
		loc:              loc,
		now:              time.Now,
	}
}

func (u *OrderUsecase) WithStatsCache(c StatsInvalidator) *OrderUsecase {
	u.cache = c
	return u
}

type CreateOrderInput struct {
	ListingID       int64                 `json:"listing_id"`
	Quantity        decimal.Decimal       `json:"quantity"`
	DeliveryMethod  model.DeliveryMethod  `json:"delivery_method"`
	DeliveryAddress model.DeliveryAddress `json:"delivery_address"`
	PaymentMethod   string                `json:"payment_method"`
	BuyerNotes      string                `json:"notes"`
}

// 表示用の導出値付き
type OrderOutput struct {
	model.Order
	ProgressPercentage    int       `json:"progress_percentage"`
	EstimatedDeliveryDate time.Time `json:"estimated_delivery_date"`
	IsOverdue             bool      `json:"is_overdue"`
	DaysUntilDelivery     *int      `json:"days_until_delivery,omitempty"`
}

func toOrderOutput(o model.Order, now time.Time) OrderOutput {
	out := OrderOutput{
		Order:                 o,
		ProgressPercentage:    o.ProgressPercentage(),
		EstimatedDeliveryDate: o.EstimatedDeliveryDate(),
		IsOverdue:             o.IsOverdue(now),
	}
	if d, ok := o.DaysUntilDelivery(now); ok {
		out.DaysUntilDelivery = &d
	}
	return out
}

type OrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

func validateCreateOrder(in CreateOrderInput) error {
	if in.ListingID <= 0 {
		return invalid("invalid listing_id")
	}
	if !in.Quantity.IsPositive() {
		return invalid("quantity must be greater than 0")
	}
	if !in.Quantity.Equal(in.Quantity.Round(2)) {
		return invalid("quantity supports at most 2 decimal places")
	}
	if !in.DeliveryMethod.Valid() {
		return invalid("invalid delivery_method")
	}
	a := in.DeliveryAddress
	if strings.TrimSpace(a.City) == "" {
		return invalid("delivery_address.city required")
	}
	for _, f := range []string{a.Street, a.City, a.State, a.PostalCode, a.Country} {
		if len(f) > 255 {
			return invalid("delivery_address field too long")
		}
	}
	if len(in.PaymentMethod) > 50 {
		return invalid("payment_method too long")
	}
	if len(in.BuyerNotes) > maxNotesLen {
		return invalid("notes too long")
	}
	return nil
}

// Create は在庫の予約と注文作成を同じ排他区間・同じTxで行う。
// どこかで失敗すれば予約ごとロールバックされる。
func (u *OrderUsecase) Create(ctx context.Context, p authz.Principal, in CreateOrderInput) (OrderOutput, error) {
	if p.ID <= 0 {
		return OrderOutput{}, forbidden()
	}
	if err := validateCreateOrder(in); err != nil {
		return OrderOutput{}, err
	}

	var created model.Order
	err := u.guard.WithListing(ctx, in.ListingID, func(r repo.TxRepos) error {
		l, err := r.Listings().FindByID(ctx, in.ListingID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("listing")
		}
		if err != nil {
			return dbError(ctx, err)
		}
		if !authz.CanAct(p, authz.OrderOnListing(l), authz.ActionOrderCreate) {
			return forbidden()
		}

		res, err := u.guard.Reserve(ctx, r, l.ID, in.Quantity, p.ID)
		if err != nil {
			return err
		}

		//単価はこの時点のスナップショット
		now := u.now()
		created, err = r.Orders().Create(ctx, model.Order{
			BuyerID:         p.ID,
			FarmerID:        l.FarmerID,
			ListingID:       l.ID,
			ReservationID:   res.ID,
			Quantity:        res.Quantity,
			UnitPrice:       res.UnitPrice,
			TotalAmount:     res.Quantity.Mul(res.UnitPrice).Round(2),
			Status:          model.OrderStatusPending,
			PaymentStatus:   model.PaymentPending,
			PaymentMethod:   strings.TrimSpace(in.PaymentMethod),
			DeliveryMethod:  in.DeliveryMethod,
			DeliveryAddress: in.DeliveryAddress,
			BuyerNotes:      in.BuyerNotes,
			IsPreOrder:      res.PreOrder,
			AvailableDate:   res.AvailableFrom,
			OrderDate:       now,
		})
		if err != nil {
			return dbError(ctx, err)
		}

		//農家へ新規注文の通知
		_, err = r.Notifications().Enqueue(ctx, newNotification(
			created.ID, l.FarmerID, model.NotificationOrderPlaced,
			fmt.Sprintf("order:%d:placed", created.ID),
			"New Order Received",
			fmt.Sprintf("You have a new order for %s %s of %s", created.Quantity.String(), l.Unit, l.Name),
			now,
		))
		if err != nil {
			return dbError(ctx, err)
		}
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}

	logging.FromContext(ctx).Info("order created",
		zap.Int64("order_id", created.ID),
		zap.Int64("listing_id", created.ListingID),
		zap.Int64("buyer_id", created.BuyerID),
		zap.String("quantity", created.Quantity.String()),
		zap.Bool("pre_order", created.IsPreOrder),
	)
	u.invalidateStats(ctx)
	return toOrderOutput(created, u.now()), nil
}

type ConfirmOrderInput struct {
	ExpectedDeliveryDate *time.Time `json:"expected_delivery_date"`
	FarmerNotes          string     `json:"farmer_notes"`
}

func (u *OrderUsecase) Confirm(ctx context.Context, p authz.Principal, orderID int64, in ConfirmOrderInput) (OrderOutput, error) {
	if len(in.FarmerNotes) > maxNotesLen {
		return OrderOutput{}, invalid("farmer_notes too long")
	}
	//配達予定日は明日以降
	if in.ExpectedDeliveryDate != nil && !dayOf(*in.ExpectedDeliveryDate, u.loc).After(dayOf(u.now(), u.loc)) {
		return OrderOutput{}, invalid("expected_delivery_date must be after today")
	}
	return u.transition(ctx, p, orderID, authz.ActionOrderConfirm, model.ConfirmEvent{
		ExpectedDeliveryDate: in.ExpectedDeliveryDate,
		FarmerNotes:          in.FarmerNotes,
	})
}

func (u *OrderUsecase) Process(ctx context.Context, p authz.Principal, orderID int64) (OrderOutput, error) {
	return u.transition(ctx, p, orderID, authz.ActionOrderProcess, model.ProcessEvent{})
}

func (u *OrderUsecase) Ship(ctx context.Context, p authz.Principal, orderID int64, trackingNumber string) (OrderOutput, error) {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if len(trackingNumber) > 100 {
		return OrderOutput{}, invalid("tracking_number too long")
	}
	return u.transition(ctx, p, orderID, authz.ActionOrderShip, model.ShipEvent{
		TrackingNumber:   trackingNumber,
		AutoConfirmAfter: u.autoConfirmAfter,
	})
}

func (u *OrderUsecase) Deliver(ctx context.Context, p authz.Principal, orderID int64, at *time.Time) (OrderOutput, error) {
	return u.transition(ctx, p, orderID, authz.ActionOrderDeliver, model.DeliverEvent{At: at})
}

// Cancel は買い手・農家どちらからも。在庫を確保していた注文は在庫を戻す。
func (u *OrderUsecase) Cancel(ctx context.Context, p authz.Principal, orderID int64, reason string) (OrderOutput, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLen {
		return OrderOutput{}, invalid("reason too long")
	}
	if reason == "" {
		if p.Role == model.RoleBuyer {
			reason = "Cancelled by buyer"
		} else {
			reason = "Cancelled by farmer"
		}
	}
	return u.transition(ctx, p, orderID, authz.ActionOrderCancel, model.CancelEvent{Reason: reason})
}

// Reject は農家が保留中の注文を断る（キャンセルの一種）
func (u *OrderUsecase) Reject(ctx context.Context, p authz.Principal, orderID int64, reason string) (OrderOutput, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLen {
		return OrderOutput{}, invalid("reason too long")
	}
	if reason == "" {
		reason = "Rejected by farmer"
	}
	return u.transition(ctx, p, orderID, authz.ActionOrderReject, model.CancelEvent{Reason: reason})
}

// Refund は外部の返金イベント（管理者）
func (u *OrderUsecase) Refund(ctx context.Context, p authz.Principal, orderID int64) (OrderOutput, error) {
	return u.transition(ctx, p, orderID, authz.ActionOrderRefund, model.RefundEvent{})
}

func (u *OrderUsecase) transition(ctx context.Context, p authz.Principal, orderID int64, action authz.Action, ev model.OrderEvent) (OrderOutput, error) {
	if orderID <= 0 {
		return OrderOutput{}, invalid("invalid order id")
	}

	//ロックのキーと事前の権限確認のために一度読む
	o, err := u.find(ctx, orderID)
	if err != nil {
		return OrderOutput{}, err
	}
	if !authz.CanAct(p, authz.OrderResource(o), action) {
		return OrderOutput{}, forbidden()
	}

	var next model.Order
	apply := func(r repo.TxRepos) error {
		//ステータスはTx内で読み直したものだけを信用する
		cur, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("order")
		}
		if err != nil {
			return dbError(ctx, err)
		}
		if !authz.CanAct(p, authz.OrderResource(cur), action) {
			return forbidden()
		}
		if action == authz.ActionOrderReject && cur.Status != model.OrderStatusPending {
			return invalidTransition(fmt.Errorf("%w: only pending orders can be rejected", model.ErrInvalidTransition))
		}

		var eff model.Effect
		next, eff, err = model.Apply(cur, ev, u.now())
		if err != nil {
			return invalidTransition(err)
		}

		if err := r.Orders().SaveTransition(ctx, next, cur.Status); err != nil {
			if errors.Is(err, repo.ErrStale) {
				return invalidTransition(fmt.Errorf("%w: order %d changed concurrently", model.ErrInvalidTransition, cur.ID))
			}
			return dbError(ctx, err)
		}

		if eff.ReleaseStock {
			if err := u.guard.Release(ctx, r, cur.ListingID, cur.Quantity, p.ID, cur.ReservationID); err != nil {
				return err
			}
		}

		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  p.ID,
			Action:       model.AuditActionUpdateOrderStatus,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   cur.ID,
			BeforeJSON:   fmt.Sprintf(`{"status":%q}`, cur.Status),
			AfterJSON:    fmt.Sprintf(`{"status":%q}`, next.Status),
			CreatedAt:    u.now(),
		}); err != nil {
			return dbError(ctx, err)
		}

		recipient, title, body := statusNotice(next, p, action == authz.ActionOrderReject)
		if _, err := r.Notifications().Enqueue(ctx, newNotification(
			next.ID, recipient, model.NotificationOrderStatus,
			fmt.Sprintf("order:%d:status:%s", next.ID, next.Status),
			title, body, u.now(),
		)); err != nil {
			return dbError(ctx, err)
		}
		return nil
	}

	//在庫を戻すキャンセルは出品の排他区間で行う
	if _, isCancel := ev.(model.CancelEvent); isCancel && o.HoldsStock() {
		err = u.guard.WithListing(ctx, o.ListingID, apply)
	} else {
		err = u.tm.WithinTx(ctx, apply)
	}
	if err != nil {
		return OrderOutput{}, err
	}

	logging.FromContext(ctx).Info("order transition",
		zap.Int64("order_id", next.ID),
		zap.String("event", ev.Name()),
		zap.String("from", string(o.Status)),
		zap.String("to", string(next.Status)),
		zap.Int64("actor_id", p.ID),
	)
	if next.Status == model.OrderStatusCancelled || next.Status == model.OrderStatusDelivered {
		u.invalidateStats(ctx)
	}
	return toOrderOutput(next, u.now()), nil
}

// 相手側に送る通知（宛先, 件名, 本文）
func statusNotice(o model.Order, p authz.Principal, rejected bool) (int64, string, string) {
	recipient := o.BuyerID
	if p.Role == model.RoleBuyer {
		recipient = o.FarmerID
	}

	switch o.Status {
	case model.OrderStatusConfirmed:
		body := fmt.Sprintf("Your order #%d has been accepted by the farmer.", o.ID)
		if o.ExpectedDeliveryDate != nil {
			body += " Expected delivery: " + o.ExpectedDeliveryDate.Format("2006-01-02")
		}
		return recipient, "Order Accepted", body
	case model.OrderStatusProcessing:
		return recipient, "Order Processing", fmt.Sprintf("Your order #%d is being prepared.", o.ID)
	case model.OrderStatusShipped:
		body := fmt.Sprintf("Your order #%d has been shipped.", o.ID)
		if o.TrackingNumber != "" {
			body += " Tracking number: " + o.TrackingNumber
		}
		return recipient, "Order Shipped", body
	case model.OrderStatusDelivered:
		return recipient, "Order Delivered", fmt.Sprintf("Order #%d has been delivered.", o.ID)
	case model.OrderStatusCancelled:
		if rejected {
			return recipient, "Order Rejected", fmt.Sprintf("Your order #%d has been rejected by the farmer. Reason: %s", o.ID, o.CancelReason)
		}
		if p.Role == model.RoleBuyer {
			return recipient, "Order Cancelled", fmt.Sprintf("Order #%d has been cancelled by the buyer.", o.ID)
		}
		return recipient, "Order Cancelled", fmt.Sprintf("Your order #%d has been cancelled by the farmer. Reason: %s", o.ID, o.CancelReason)
	case model.OrderStatusRefunded:
		return recipient, "Order Refunded", fmt.Sprintf("Payment for order #%d has been refunded.", o.ID)
	default:
		return recipient, "Order Updated", fmt.Sprintf("Order #%d is now %s.", o.ID, o.Status)
	}
}

// MarkPaid は支払い状態だけを変える（決済そのものは外部）
func (u *OrderUsecase) MarkPaid(ctx context.Context, p authz.Principal, orderID int64) (OrderOutput, error) {
	if orderID <= 0 {
		return OrderOutput{}, invalid("invalid order id")
	}

	var out model.Order
	err := u.tm.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("order")
		}
		if err != nil {
			return dbError(ctx, err)
		}
		if !authz.CanAct(p, authz.OrderResource(o), authz.ActionOrderMarkPaid) {
			return forbidden()
		}
		if o.PaymentStatus == model.PaymentPaid {
			return conflict("order already paid")
		}
		if o.Status == model.OrderStatusCancelled || o.Status == model.OrderStatusRefunded {
			return invalidTransition(fmt.Errorf("%w: cannot mark %s order as paid", model.ErrInvalidTransition, o.Status))
		}

		before := o.PaymentStatus
		if err := r.Orders().UpdatePaymentStatus(ctx, o.ID, model.PaymentPaid); err != nil {
			return dbError(ctx, err)
		}
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  p.ID,
			Action:       model.AuditActionUpdatePayment,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   o.ID,
			BeforeJSON:   fmt.Sprintf(`{"payment_status":%q}`, before),
			AfterJSON:    fmt.Sprintf(`{"payment_status":%q}`, model.PaymentPaid),
			CreatedAt:    u.now(),
		}); err != nil {
			return dbError(ctx, err)
		}

		o.PaymentStatus = model.PaymentPaid
		out = o
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}
	return toOrderOutput(out, u.now()), nil
}

func (u *OrderUsecase) Get(ctx context.Context, p authz.Principal, orderID int64) (OrderOutput, error) {
	if orderID <= 0 {
		return OrderOutput{}, invalid("invalid order id")
	}
	o, err := u.find(ctx, orderID)
	if err != nil {
		return OrderOutput{}, err
	}
	if !authz.CanAct(p, authz.OrderResource(o), authz.ActionOrderView) {
		return OrderOutput{}, forbidden()
	}
	return toOrderOutput(o, u.now()), nil
}

func (u *OrderUsecase) find(ctx context.Context, orderID int64) (model.Order, error) {
	var o model.Order
	err := u.tm.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		o, err = r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("order")
		}
		if err != nil {
			return dbError(ctx, err)
		}
		return nil
	})
	return o, err
}

type ListOrdersInput struct {
	Page   int
	Limit  int
	Status string
	From   *time.Time
	To     *time.Time
}

func (u *OrderUsecase) ListForBuyer(ctx context.Context, p authz.Principal, in ListOrdersInput) (OrderListOutput, error) {
	if p.ID <= 0 || p.Role != model.RoleBuyer {
		return OrderListOutput{}, forbidden()
	}
	return u.list(ctx, in, func(f *repo.OrderListFilter) { f.BuyerID = &p.ID })
}

func (u *OrderUsecase) ListForFarmer(ctx context.Context, p authz.Principal, in ListOrdersInput) (OrderListOutput, error) {
	if p.ID <= 0 || p.Role != model.RoleFarmer {
		return OrderListOutput{}, forbidden()
	}
	return u.list(ctx, in, func(f *repo.OrderListFilter) { f.FarmerID = &p.ID })
}

func (u *OrderUsecase) list(ctx context.Context, in ListOrdersInput, scope func(*repo.OrderListFilter)) (OrderListOutput, error) {
	if in.Page == 0 {
		in.Page = 1
	}
	if in.Limit == 0 {
		in.Limit = 20
	}
	if in.Page < 1 {
		return OrderListOutput{}, invalid("invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return OrderListOutput{}, invalid("invalid limit")
	}
	status := model.OrderStatus(strings.TrimSpace(in.Status))
	if status != "" && !status.Valid() {
		return OrderListOutput{}, invalid("invalid status")
	}
	if in.From != nil && in.To != nil && in.From.After(*in.To) {
		return OrderListOutput{}, invalid("from must be <= to")
	}

	f := repo.OrderListFilter{Page: in.Page, Limit: in.Limit, Status: status, From: in.From, To: in.To}
	scope(&f)

	var out OrderListOutput
	err := u.tm.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().List(ctx, f)
		if err != nil {
			return dbError(ctx, err)
		}
		now := u.now()
		out.Items = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			out.Items = append(out.Items, toOrderOutput(o, now))
		}
		out.Total = total
		return nil
	})
	if err != nil {
		return OrderListOutput{}, err
	}
	out.Page = in.Page
	out.Limit = in.Limit
	return out, nil
}

// AutoConfirmDue は期限を過ぎた発送済み注文をシステムとして受取済みにする。
func (u *OrderUsecase) AutoConfirmDue(ctx context.Context, now time.Time, limit int) (int, error) {
	var due []model.Order
	err := u.tm.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		due, err = r.Orders().ListAutoConfirmDue(ctx, now, limit)
		if err != nil {
			return dbError(ctx, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log := logging.FromContext(ctx)
	done := 0
	for _, o := range due {
		_, err := u.Deliver(ctx, authz.System(), o.ID, nil)
		if errors.Is(err, ErrInvalidTransition) {
			//その間に受取済みになった
			continue
		}
		if err != nil {
			log.Error("auto confirm failed", zap.Int64("order_id", o.ID), zap.Error(err))
			continue
		}
		done++
	}
	return done, nil
}

func (u *OrderUsecase) invalidateStats(ctx context.Context) {
	if u.cache == nil {
		return
	}
	if err := u.cache.Invalidate(ctx); err != nil {
		logging.FromContext(ctx).Warn("stats cache invalidate failed", zap.Error(err))
	}
}

// 時刻をloc上の日付（0時）に丸める
func dayOf(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
