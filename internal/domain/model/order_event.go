package model

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidTransition = errors.New("invalid transition")

// 注文に適用できるイベント。実装はこのパッケージ内に閉じている。
type OrderEvent interface {
	Name() string
	isOrderEvent()
}

type ConfirmEvent struct {
	ExpectedDeliveryDate *time.Time
	FarmerNotes          string
}

type ProcessEvent struct{}

type ShipEvent struct {
	TrackingNumber string
	//0なら自動受取を設定しない
	AutoConfirmAfter time.Duration
}

type DeliverEvent struct {
	//nilなら現在時刻
	At *time.Time
}

type CancelEvent struct {
	Reason string
}

// 外部の返金イベント
type RefundEvent struct{}

func (ConfirmEvent) Name() string { return "confirm" }
func (ProcessEvent) Name() string { return "process" }
func (ShipEvent) Name() string    { return "ship" }
func (DeliverEvent) Name() string { return "deliver" }
func (CancelEvent) Name() string  { return "cancel" }
func (RefundEvent) Name() string  { return "refund" }

func (ConfirmEvent) isOrderEvent() {}
func (ProcessEvent) isOrderEvent() {}
func (ShipEvent) isOrderEvent()    {}
func (DeliverEvent) isOrderEvent() {}
func (CancelEvent) isOrderEvent()  {}
func (RefundEvent) isOrderEvent()  {}

// 遷移に伴う在庫への副作用
type Effect struct {
	ReleaseStock bool
}

// 遷移元の一覧
var transitionSources = map[string][]OrderStatus{
	"confirm": {OrderStatusPending},
	"process": {OrderStatusConfirmed},
	"ship":    {OrderStatusConfirmed, OrderStatusProcessing},
	"deliver": {OrderStatusShipped},
	"cancel":  {OrderStatusPending, OrderStatusConfirmed},
	"refund":  {OrderStatusDelivered},
}

// CanApply は遷移元が一致するかだけを見る。
func CanApply(from OrderStatus, ev OrderEvent) bool {
	if ev == nil {
		return false
	}
	for _, s := range transitionSources[ev.Name()] {
		if s == from {
			return true
		}
	}
	return false
}

// Apply は全ての(状態, イベント)の組に対して定義される。
// 不正な組はErrInvalidTransitionと元の注文をそのまま返す。
func Apply(o Order, ev OrderEvent, now time.Time) (Order, Effect, error) {
	if !CanApply(o.Status, ev) {
		name := "<nil>"
		if ev != nil {
			name = ev.Name()
		}
		return o, Effect{}, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, name, o.Status)
	}

	next := o
	var eff Effect

	switch e := ev.(type) {
	case ConfirmEvent:
		next.Status = OrderStatusConfirmed
		next.ExpectedDeliveryDate = e.ExpectedDeliveryDate
		next.FarmerNotes = e.FarmerNotes
	case ProcessEvent:
		next.Status = OrderStatusProcessing
	case ShipEvent:
		next.Status = OrderStatusShipped
		next.TrackingNumber = e.TrackingNumber
		shipped := now
		next.ShippedAt = &shipped
		if e.AutoConfirmAfter > 0 {
			at := now.Add(e.AutoConfirmAfter)
			next.AutoConfirmAt = &at
		}
	case DeliverEvent:
		next.Status = OrderStatusDelivered
		at := now
		if e.At != nil {
			at = *e.At
		}
		next.ActualDeliveryDate = &at
		next.AutoConfirmAt = nil
	case CancelEvent:
		next.Status = OrderStatusCancelled
		next.CancelReason = e.Reason
		//予約注文は在庫を確保していないので戻さない
		eff.ReleaseStock = o.HoldsStock()
	case RefundEvent:
		next.Status = OrderStatusRefunded
		next.PaymentStatus = PaymentRefunded
	default:
		return o, Effect{}, fmt.Errorf("%w: unknown event", ErrInvalidTransition)
	}

	return next, eff, nil
}
