package usecase

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_ThreadBetweenParties(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	o := e.placeOrder(t, e.buyer, e.listing(t, 100).ID, "20")

	base := e.clock
	step := 0
	e.messages.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	_, err := e.messages.Post(ctx, as(e.buyer), o.ID, "  Can you deliver on Monday?  ")
	require.NoError(t, err)
	_, err = e.messages.Post(ctx, as(e.farmer), o.ID, "Yes")
	require.NoError(t, err)

	list, err := e.messages.List(ctx, as(e.farmer), o.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Can you deliver on Monday?", list[0].Body)
	assert.Equal(t, e.buyer.ID, list[0].SenderID)
	assert.Equal(t, e.farmer.ID, list[1].SenderID)
}

func TestMessage_Rules(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	o := e.placeOrder(t, e.buyer, e.listing(t, 100).ID, "20")

	_, err := e.messages.Post(ctx, as(e.buyer), o.ID, "   ")
	requireKind(t, err, ErrValidation, http.StatusBadRequest)

	_, err = e.messages.Post(ctx, as(e.buyer), o.ID, strings.Repeat("あ", 2001))
	requireKind(t, err, ErrValidation, http.StatusBadRequest)

	_, err = e.messages.Post(ctx, as(e.buyer), o.ID, strings.Repeat("あ", 2000))
	require.NoError(t, err)

	//当事者以外は読めない・書けない
	_, err = e.messages.Post(ctx, as(e.buyer2), o.ID, "hi")
	requireKind(t, err, ErrUnauthorized, http.StatusForbidden)
	_, err = e.messages.List(ctx, as(e.admin), o.ID)
	requireKind(t, err, ErrUnauthorized, http.StatusForbidden)

	_, err = e.messages.List(ctx, as(e.buyer), 9999)
	requireKind(t, err, ErrNotFound, http.StatusNotFound)
}
