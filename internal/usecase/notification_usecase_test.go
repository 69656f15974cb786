package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"farmmarket/internal/domain/model"
	infrarepo "farmmarket/internal/infra/repository"
	"farmmarket/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu   sync.Mutex
	sent []notify.Message
	to   []notify.Recipient
	fail error
}

func (g *fakeGateway) Send(_ context.Context, to notify.Recipient, msg notify.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail != nil {
		return g.fail
	}
	g.sent = append(g.sent, msg)
	g.to = append(g.to, to)
	return nil
}

func TestOutboxDispatcher_DeliversOnce(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	o := e.placeOrder(t, e.buyer, e.listing(t, 100).ID, "20")

	gw := &fakeGateway{}
	d := NewOutboxDispatcher(e.tm, gw, 3)

	res, err := d.Dispatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Delivered)
	require.Len(t, gw.sent, 1)
	assert.Equal(t, o.ID, gw.sent[0].OrderID)
	assert.Equal(t, string(model.NotificationOrderPlaced), gw.sent[0].Kind)
	assert.Equal(t, e.farmer.ID, gw.to[0].UserID)
	assert.Equal(t, e.farmer.Phone, gw.to[0].Phone)

	res, err = d.Dispatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Delivered)
	assert.Len(t, gw.sent, 1)

	var n model.Notification
	require.NoError(t, e.db.Where("order_id = ?", o.ID).First(&n).Error)
	assert.Equal(t, model.NotificationDelivered, n.Status)
	assert.NotNil(t, n.DeliveredAt)
}

func TestOutboxDispatcher_RetriesThenFails(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	o := e.placeOrder(t, e.buyer, e.listing(t, 100).ID, "20")

	gw := &fakeGateway{fail: errors.New("sms gateway down")}
	d := NewOutboxDispatcher(e.tm, gw, 2)

	res, err := d.Dispatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	var n model.Notification
	require.NoError(t, e.db.Where("order_id = ?", o.ID).First(&n).Error)
	assert.Equal(t, model.NotificationPending, n.Status)
	assert.Equal(t, 1, n.Attempts)

	res, err = d.Dispatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	//失敗の確定後は送らない
	gw.fail = nil
	res, err = d.Dispatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Delivered)

	require.NoError(t, e.db.Where("order_id = ?", o.ID).First(&n).Error)
	assert.Equal(t, model.NotificationFailed, n.Status)
	assert.Equal(t, 2, n.Attempts)
	assert.Equal(t, "sms gateway down", n.LastError)
}

func TestOutboxDispatcher_UnknownRecipient(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, e.db.Create(&model.Notification{
		ID: "n-1", OrderID: 1, RecipientID: 4242, Kind: model.NotificationOrderStatus,
		Title: "t", Body: "b", DedupKey: "x", Status: model.NotificationPending, CreatedAt: e.clock,
	}).Error)

	gw := &fakeGateway{}
	res, err := NewOutboxDispatcher(e.tm, gw, 5).Dispatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, gw.sent)

	var n model.Notification
	require.NoError(t, e.db.First(&n, "id = ?", "n-1").Error)
	assert.Equal(t, model.NotificationFailed, n.Status)
}

func TestOutboxDispatcher_SkipsRowsClaimedElsewhere(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	o := e.placeOrder(t, e.buyer, e.listing(t, 100).ID, "20")

	var n model.Notification
	require.NoError(t, e.db.Where("order_id = ?", o.ID).First(&n).Error)

	//別のdispatcherが送信中
	other := infrarepo.NewNotificationGormRepository(e.db)
	require.NoError(t, other.Claim(ctx, n.ID, e.clock, e.clock.Add(-time.Minute)))

	gw := &fakeGateway{}
	d := NewOutboxDispatcher(e.tm, gw, 3)
	d.now = func() time.Time { return e.clock.Add(time.Minute) }

	res, err := d.Dispatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Delivered)
	assert.Empty(t, gw.sent)

	//送った側が配達済みにしたあとで取り直そうとしても送らない
	d.now = func() time.Time { return e.clock.Add(time.Hour) }
	require.NoError(t, other.MarkDelivered(ctx, n.ID, e.clock))
	res, err = d.Dispatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Delivered)
	assert.Empty(t, gw.sent)
}

func TestOutboxDispatcher_ReclaimsAbandonedSend(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	o := e.placeOrder(t, e.buyer, e.listing(t, 100).ID, "20")

	var n model.Notification
	require.NoError(t, e.db.Where("order_id = ?", o.ID).First(&n).Error)
	//取ったまま落ちた
	require.NoError(t, infrarepo.NewNotificationGormRepository(e.db).Claim(ctx, n.ID, e.clock, e.clock.Add(-time.Minute)))

	gw := &fakeGateway{}
	d := NewOutboxDispatcher(e.tm, gw, 3)
	d.now = func() time.Time { return e.clock.Add(d.claimTTL + time.Second) }

	res, err := d.Dispatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Delivered)
	require.Len(t, gw.sent, 1)
	assert.Equal(t, n.ID, gw.sent[0].NotificationID)

	require.NoError(t, e.db.First(&n, "id = ?", n.ID).Error)
	assert.Equal(t, model.NotificationDelivered, n.Status)
	assert.Nil(t, n.ClaimedAt)
}
