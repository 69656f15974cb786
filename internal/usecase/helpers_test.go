package usecase

import (
	"context"
	"testing"
	"time"

	"farmmarket/internal/authz"
	"farmmarket/internal/domain/model"
	"farmmarket/internal/infra/lock"
	infrarepo "farmmarket/internal/infra/repository"
	"farmmarket/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	db       *gorm.DB
	tm       *infrarepo.TxManagerGorm
	locker   *lock.KeyedMutex
	guard    *ReservationGuard
	orders   *OrderUsecase
	listings *ListingUsecase
	messages *MessageUsecase
	clock    time.Time

	farmer  model.User
	buyer   model.User
	buyer2  model.User
	admin   model.User
	variety model.Variety
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	gdb := testutil.NewDB(t)
	tm := infrarepo.NewTxManagerGorm(gdb)
	locker := lock.NewKeyedMutex()
	guard := NewReservationGuard(tm, locker, 5*time.Second, 3)

	e := &testEnv{
		db:     gdb,
		tm:     tm,
		locker: locker,
		guard:  guard,
		clock:  time.Now().UTC().Truncate(time.Second),
	}
	e.orders = NewOrderUsecase(tm, guard, time.Hour, time.UTC)
	e.orders.now = func() time.Time { return e.clock }
	e.listings = NewListingUsecase(tm, guard,
		infrarepo.NewListingGormRepository(gdb),
		infrarepo.NewVarietyGormRepository(gdb),
	)
	e.messages = NewMessageUsecase(tm)

	e.farmer = testutil.MustUser(t, gdb, model.RoleFarmer, "farmer")
	e.buyer = testutil.MustUser(t, gdb, model.RoleBuyer, "buyer")
	e.buyer2 = testutil.MustUser(t, gdb, model.RoleBuyer, "buyer2")
	e.admin = testutil.MustUser(t, gdb, model.RoleAdmin, "admin")
	e.variety = testutil.MustVariety(t, gdb, "Jasmine")
	return e
}

func as(u model.User) authz.Principal {
	return authz.Principal{ID: u.ID, Role: u.Role}
}

func (e *testEnv) listing(t *testing.T, qty int64, mutate ...func(*model.Listing)) model.Listing {
	t.Helper()
	return testutil.MustListing(t, e.db, e.farmer.ID, e.variety.ID, qty, mutate...)
}

func (e *testEnv) reload(t *testing.T, listingID int64) model.Listing {
	t.Helper()
	var l model.Listing
	require.NoError(t, e.db.Unscoped().First(&l, listingID).Error)
	return l
}

func (e *testEnv) reloadOrder(t *testing.T, orderID int64) model.Order {
	t.Helper()
	var o model.Order
	require.NoError(t, e.db.First(&o, orderID).Error)
	return o
}

func orderInput(listingID int64, qty string) CreateOrderInput {
	return CreateOrderInput{
		ListingID:      listingID,
		Quantity:       decimal.RequireFromString(qty),
		DeliveryMethod: model.DeliveryPickup,
		DeliveryAddress: model.DeliveryAddress{
			Street: "1 Rizal St", City: "Nueva Ecija", Country: "PH",
		},
		PaymentMethod: "cash",
	}
}

func (e *testEnv) placeOrder(t *testing.T, buyer model.User, listingID int64, qty string) OrderOutput {
	t.Helper()
	o, err := e.orders.Create(context.Background(), as(buyer), orderInput(listingID, qty))
	require.NoError(t, err)
	return o
}

func requireKind(t *testing.T, err error, kind error, status int) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, kind)
	he, ok := AsHTTPError(err)
	require.True(t, ok, "expected *HTTPError, got %T", err)
	require.Equal(t, status, he.Status)
}
