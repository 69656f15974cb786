package model_test

import (
	"errors"
	"testing"
	"time"

	"farmmarket/internal/domain/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []model.OrderStatus{
	model.OrderStatusPending,
	model.OrderStatusConfirmed,
	model.OrderStatusProcessing,
	model.OrderStatusShipped,
	model.OrderStatusDelivered,
	model.OrderStatusCancelled,
	model.OrderStatusRefunded,
}

var allEvents = []model.OrderEvent{
	model.ConfirmEvent{},
	model.ProcessEvent{},
	model.ShipEvent{},
	model.DeliverEvent{},
	model.CancelEvent{},
	model.RefundEvent{},
}

func TestApply_TransitionTable(t *testing.T) {
	allowed := map[model.OrderStatus]map[string]model.OrderStatus{
		model.OrderStatusPending:    {"confirm": model.OrderStatusConfirmed, "cancel": model.OrderStatusCancelled},
		model.OrderStatusConfirmed:  {"process": model.OrderStatusProcessing, "ship": model.OrderStatusShipped, "cancel": model.OrderStatusCancelled},
		model.OrderStatusProcessing: {"ship": model.OrderStatusShipped},
		model.OrderStatusShipped:    {"deliver": model.OrderStatusDelivered},
		model.OrderStatusDelivered:  {"refund": model.OrderStatusRefunded},
	}
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	//全ての(状態, イベント)の組を確認する
	for _, st := range allStatuses {
		for _, ev := range allEvents {
			in := model.Order{ID: 1, Status: st, Quantity: decimal.NewFromInt(5)}
			out, _, err := model.Apply(in, ev, now)

			want, ok := allowed[st][ev.Name()]
			if ok {
				require.NoError(t, err, "%s from %s", ev.Name(), st)
				assert.Equal(t, want, out.Status)
				continue
			}
			assert.True(t, errors.Is(err, model.ErrInvalidTransition), "%s from %s", ev.Name(), st)
			assert.Equal(t, in, out)
		}
	}
}

func TestApply_NilEvent(t *testing.T) {
	in := model.Order{Status: model.OrderStatusPending}
	out, eff, err := model.Apply(in, nil, time.Now())

	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	assert.Equal(t, in, out)
	assert.False(t, eff.ReleaseStock)
}

func TestApply_CancelReleasesOnlyReservedStock(t *testing.T) {
	now := time.Now()

	_, eff, err := model.Apply(model.Order{Status: model.OrderStatusConfirmed}, model.CancelEvent{Reason: "changed plans"}, now)
	require.NoError(t, err)
	assert.True(t, eff.ReleaseStock)

	out, eff, err := model.Apply(model.Order{Status: model.OrderStatusPending, IsPreOrder: true}, model.CancelEvent{Reason: "x"}, now)
	require.NoError(t, err)
	assert.False(t, eff.ReleaseStock)
	assert.Equal(t, "x", out.CancelReason)
}

func TestApply_Effects(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	eta := now.AddDate(0, 0, 4)

	o, _, err := model.Apply(model.Order{Status: model.OrderStatusPending},
		model.ConfirmEvent{ExpectedDeliveryDate: &eta, FarmerNotes: "harvest on thursday"}, now)
	require.NoError(t, err)
	assert.Equal(t, eta, *o.ExpectedDeliveryDate)
	assert.Equal(t, "harvest on thursday", o.FarmerNotes)

	o, _, err = model.Apply(o, model.ShipEvent{TrackingNumber: "TRK-1", AutoConfirmAfter: 72 * time.Hour}, now)
	require.NoError(t, err)
	assert.Equal(t, "TRK-1", o.TrackingNumber)
	require.NotNil(t, o.ShippedAt)
	require.NotNil(t, o.AutoConfirmAt)
	assert.Equal(t, now.Add(72*time.Hour), *o.AutoConfirmAt)

	o, _, err = model.Apply(o, model.DeliverEvent{}, now)
	require.NoError(t, err)
	require.NotNil(t, o.ActualDeliveryDate)
	assert.Equal(t, now, *o.ActualDeliveryDate)
	assert.Nil(t, o.AutoConfirmAt)

	o, _, err = model.Apply(o, model.RefundEvent{}, now)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefunded, o.PaymentStatus)
}

func TestProgressPercentage(t *testing.T) {
	want := []int{10, 30, 50, 80, 100, 0, 0}
	for i, st := range allStatuses {
		assert.Equal(t, want[i], model.Order{Status: st}.ProgressPercentage(), st)
	}
}

func TestEstimatedDeliveryDate(t *testing.T) {
	base := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	cases := map[model.DeliveryMethod]int{
		model.DeliveryPickup:  1,
		model.DeliveryCourier: 3,
		model.DeliveryPostal:  7,
		model.DeliveryTruck:   5,
		"":                    5,
	}
	for m, days := range cases {
		o := model.Order{OrderDate: base, DeliveryMethod: m}
		assert.Equal(t, base.AddDate(0, 0, days), o.EstimatedDeliveryDate(), m)
	}

	expected := base.AddDate(0, 0, 2)
	o := model.Order{OrderDate: base, DeliveryMethod: model.DeliveryPostal, ExpectedDeliveryDate: &expected}
	assert.Equal(t, expected, o.EstimatedDeliveryDate())
}

func TestIsOverdue(t *testing.T) {
	base := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	o := model.Order{OrderDate: base, DeliveryMethod: model.DeliveryCourier, Status: model.OrderStatusShipped}

	assert.False(t, o.IsOverdue(base.AddDate(0, 0, 3)))
	assert.True(t, o.IsOverdue(base.AddDate(0, 0, 3).Add(time.Second)))

	o.Status = model.OrderStatusDelivered
	assert.False(t, o.IsOverdue(base.AddDate(0, 1, 0)))
}

func TestListingAvailability(t *testing.T) {
	l := model.Listing{ProductionStatus: model.ProductionAvailable, QuantityAvailable: decimal.Zero}
	l.RefreshAvailability()
	assert.False(t, l.IsAvailable)

	l.QuantityAvailable = decimal.NewFromInt(1)
	l.RefreshAvailability()
	assert.True(t, l.IsAvailable)

	d := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	l = model.Listing{ProductionStatus: model.ProductionInProduction, AvailableFrom: &d}
	l.RefreshAvailability()
	assert.True(t, l.IsAvailable)
	assert.NotNil(t, l.AvailableFrom)

	l.ProductionStatus = model.ProductionOutOfStock
	l.QuantityAvailable = decimal.NewFromInt(10)
	l.RefreshAvailability()
	assert.False(t, l.IsAvailable)
	assert.Nil(t, l.AvailableFrom)
}
