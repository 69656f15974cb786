package usecase

import (
	"context"
	"testing"
	"time"

	"farmmarket/internal/domain/model"
	"farmmarket/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecidePreOrderNotifications(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	tomorrow := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	nextWeek := now.AddDate(0, 0, 7)
	yesterday := now.AddDate(0, 0, -1)

	inProduction := func(from *time.Time) model.Listing {
		return model.Listing{ProductionStatus: model.ProductionInProduction, AvailableFrom: from}
	}
	preOrder := func(status model.OrderStatus, available *time.Time) model.Order {
		return model.Order{IsPreOrder: true, Status: status, AvailableDate: available}
	}

	cases := []struct {
		name    string
		listing model.Listing
		order   model.Order
		now     time.Time
		loc     *time.Location
		want    PreOrderDecision
	}{
		{
			name:    "listing already available",
			listing: model.Listing{ProductionStatus: model.ProductionAvailable},
			order:   preOrder(model.OrderStatusPending, &nextWeek),
			now:     now,
			want:    PreOrderDecision{SendAvailableNow: true},
		},
		{
			name:    "available date reached",
			listing: inProduction(&yesterday),
			order:   preOrder(model.OrderStatusConfirmed, &yesterday),
			now:     now,
			want:    PreOrderDecision{SendAvailableNow: true},
		},
		{
			name:    "day before",
			listing: inProduction(&tomorrow),
			order:   preOrder(model.OrderStatusPending, &tomorrow),
			now:     now,
			want:    PreOrderDecision{SendDayBefore: true},
		},
		{
			name:    "too early",
			listing: inProduction(&nextWeek),
			order:   preOrder(model.OrderStatusPending, &nextWeek),
			now:     now,
			want:    PreOrderDecision{},
		},
		{
			name:    "already notified",
			listing: model.Listing{ProductionStatus: model.ProductionAvailable},
			order: func() model.Order {
				o := preOrder(model.OrderStatusPending, &tomorrow)
				o.NotificationSentAvailable = true
				o.NotificationSentDayBefore = true
				return o
			}(),
			now:  now,
			want: PreOrderDecision{},
		},
		{
			name:    "both at once",
			listing: model.Listing{ProductionStatus: model.ProductionAvailable},
			order:   preOrder(model.OrderStatusPending, &tomorrow),
			now:     now,
			want:    PreOrderDecision{SendAvailableNow: true, SendDayBefore: true},
		},
		{
			name:    "cancelled order",
			listing: model.Listing{ProductionStatus: model.ProductionAvailable},
			order:   preOrder(model.OrderStatusCancelled, &tomorrow),
			now:     now,
			want:    PreOrderDecision{},
		},
		{
			name:    "not a pre-order",
			listing: model.Listing{ProductionStatus: model.ProductionAvailable},
			order:   model.Order{Status: model.OrderStatusPending},
			now:     now,
			want:    PreOrderDecision{},
		},
		{
			//UTCでは2日後、+08:00では翌日
			name:    "calendar day in zone",
			listing: inProduction(&nextWeek),
			order: func() model.Order {
				d := time.Date(2026, 3, 12, 1, 0, 0, 0, time.UTC)
				return preOrder(model.OrderStatusPending, &d)
			}(),
			now:  time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC),
			loc:  time.FixedZone("PHT", 8*60*60),
			want: PreOrderDecision{SendDayBefore: true},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DecidePreOrderNotifications(tc.listing, tc.order, tc.now, tc.loc)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPreOrderScheduler_SweepIsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	from := e.clock.AddDate(0, 0, 1)
	l := e.listing(t, 0, func(l *model.Listing) {
		l.ProductionStatus = model.ProductionInProduction
		l.AvailableFrom = &from
	})
	o := e.placeOrder(t, e.buyer, l.ID, "50")
	require.True(t, o.IsPreOrder)

	s := NewPreOrderScheduler(e.tm, time.UTC)

	res, err := s.Sweep(ctx, e.clock)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Checked)
	assert.Equal(t, 1, res.Enqueued)

	res, err = s.Sweep(ctx, e.clock)
	require.NoError(t, err)
	assert.Zero(t, res.Enqueued)

	var reminder model.Notification
	require.NoError(t, e.db.Where("order_id = ? AND kind = ?", o.ID, model.NotificationPreOrderDayBefore).First(&reminder).Error)
	assert.Equal(t, e.buyer.ID, reminder.RecipientID)
	assert.Equal(t, "Pre-order Reminder", reminder.Title)
	assert.Contains(t, reminder.Body, "Hello buyer")
	assert.Contains(t, reminder.Body, from.Format("January 2, 2006"))

	//出品が販売中になったら入荷通知
	require.NoError(t, e.db.Model(&model.Listing{}).Where("id = ?", l.ID).Updates(map[string]any{
		"production_status":  model.ProductionAvailable,
		"quantity_available": testutil.Dec("100"),
	}).Error)

	res, err = s.Sweep(ctx, e.clock.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Enqueued)

	got := e.reloadOrder(t, o.ID)
	assert.True(t, got.NotificationSentAvailable)
	assert.True(t, got.NotificationSentDayBefore)

	//両方送ったら対象外
	res, err = s.Sweep(ctx, e.clock.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Zero(t, res.Checked)

	var n int64
	require.NoError(t, e.db.Model(&model.Notification{}).Where("order_id = ? AND kind IN ?", o.ID,
		[]model.NotificationKind{model.NotificationPreOrderAvailable, model.NotificationPreOrderDayBefore}).Count(&n).Error)
	assert.Equal(t, int64(2), n)
}

func TestPreOrderScheduler_SweepReachesOrdersBeyondFirstBatch(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	far := e.clock.AddDate(0, 2, 0)
	later := e.listing(t, 0, func(l *model.Listing) {
		l.ProductionStatus = model.ProductionInProduction
		l.AvailableFrom = &far
	})
	for i := 0; i < 7; i++ {
		e.placeOrder(t, e.buyer, later.ID, "50")
	}

	tomorrow := e.clock.AddDate(0, 0, 1)
	soon := e.listing(t, 0, func(l *model.Listing) {
		l.ProductionStatus = model.ProductionInProduction
		l.AvailableFrom = &tomorrow
	})
	last := e.placeOrder(t, e.buyer2, soon.ID, "50")

	//バッチより多い未到来の注文があっても最後まで見る
	s := NewPreOrderScheduler(e.tm, time.UTC)
	s.batchSize = 3

	res, err := s.Sweep(ctx, e.clock)
	require.NoError(t, err)
	assert.Equal(t, 8, res.Checked)
	assert.Equal(t, 1, res.Enqueued)
	assert.True(t, e.reloadOrder(t, last.ID).NotificationSentDayBefore)

	res, err = s.Sweep(ctx, e.clock)
	require.NoError(t, err)
	assert.Equal(t, 8, res.Checked)
	assert.Zero(t, res.Enqueued)
}
