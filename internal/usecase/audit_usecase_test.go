package usecase

import (
	"context"
	"net/http"
	"testing"

	"farmmarket/internal/domain/model"
	infraRepo "farmmarket/internal/infra/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudit_OrderHistory(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	l := e.listing(t, 100)
	o := e.placeOrder(t, e.buyer, l.ID, "20")

	_, err := e.orders.Confirm(ctx, as(e.farmer), o.ID, ConfirmOrderInput{})
	require.NoError(t, err)
	_, err = e.orders.Process(ctx, as(e.farmer), o.ID)
	require.NoError(t, err)

	uc := NewAuditUsecase(infraRepo.NewAuditLogGormRepository(e.db))

	out, err := uc.List(ctx, as(e.admin), ListAuditLogsInput{ResourceType: "order", ResourceID: o.ID})
	require.NoError(t, err)
	require.EqualValues(t, 2, out.Total)
	assert.Equal(t, model.AuditActionUpdateOrderStatus, out.Items[0].Action)
	assert.Contains(t, out.Items[0].AfterJSON, "confirmed")
	assert.Contains(t, out.Items[1].AfterJSON, "processing")
	assert.Equal(t, e.farmer.ID, out.Items[0].ActorUserID)

	out, err = uc.List(ctx, as(e.admin), ListAuditLogsInput{ResourceType: "order", ResourceID: o.ID, Limit: 1, Page: 2})
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.Contains(t, out.Items[0].AfterJSON, "processing")
}

func TestAudit_ListRules(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	uc := NewAuditUsecase(infraRepo.NewAuditLogGormRepository(e.db))

	_, err := uc.List(ctx, as(e.farmer), ListAuditLogsInput{})
	requireKind(t, err, ErrUnauthorized, http.StatusForbidden)

	for _, in := range []ListAuditLogsInput{
		{ResourceType: "user"},
		{Action: "DELETE"},
		{Limit: 500},
		{Page: -1},
		{ResourceID: -3},
	} {
		_, err := uc.List(ctx, as(e.admin), in)
		requireKind(t, err, ErrValidation, http.StatusBadRequest)
	}

	out, err := uc.List(ctx, as(e.admin), ListAuditLogsInput{})
	require.NoError(t, err)
	assert.NotNil(t, out.Items)
	assert.EqualValues(t, 0, out.Total)
}
