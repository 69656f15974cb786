package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"farmmarket/internal/domain/model"
	"farmmarket/internal/infra/lock"
	"farmmarket/internal/logging"
	repo "farmmarket/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reservation は同じTx内で注文作成に渡される予約結果。
// 予約注文は在庫を確保しないのでIDは空。
type Reservation struct {
	ID            string
	ListingID     int64
	Quantity      decimal.Decimal
	PreOrder      bool
	UnitPrice     decimal.Decimal
	AvailableFrom *time.Time
}

// ReservationGuard は出品ごとの排他区間（ロック→Tx→FOR UPDATE再読込）を作る。
// ロックは必ずTxを開く前に取る。
type ReservationGuard struct {
	tm          repo.TransactionManager
	locker      lock.Locker
	lockTimeout time.Duration
	retries     int
}

func NewReservationGuard(tm repo.TransactionManager, locker lock.Locker, lockTimeout time.Duration, retries int) *ReservationGuard {
	if lockTimeout <= 0 {
		lockTimeout = 2 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &ReservationGuard{tm: tm, locker: locker, lockTimeout: lockTimeout, retries: retries}
}

func listingLockKey(listingID int64) string {
	return "listing:" + strconv.FormatInt(listingID, 10)
}

// WithListing は出品の排他区間の中で1つのTxを開いてfnを実行する。
func (g *ReservationGuard) WithListing(ctx context.Context, listingID int64, fn func(r repo.TxRepos) error) error {
	unlock, err := g.acquire(ctx, listingID)
	if err != nil {
		return err
	}
	defer unlock()

	return g.tm.WithinTx(ctx, fn)
}

// 取得待ちのタイムアウトだけ再試行する
func (g *ReservationGuard) acquire(ctx context.Context, listingID int64) (lock.Unlock, error) {
	key := listingLockKey(listingID)
	log := logging.FromContext(ctx)

	for attempt := 0; ; attempt++ {
		lctx, cancel := context.WithTimeout(ctx, g.lockTimeout)
		unlock, err := g.locker.Lock(lctx, key)
		cancel()
		if err == nil {
			return unlock, nil
		}

		if !errors.Is(err, lock.ErrLockTimeout) {
			log.Error("listing lock failed", zap.String("key", key), zap.Error(err))
			return nil, newError(ErrServiceUnavailable, "lock backend unavailable")
		}
		if ctx.Err() != nil || attempt >= g.retries {
			log.Warn("listing lock contention",
				zap.String("key", key),
				zap.Int("attempts", attempt+1),
			)
			return nil, newError(ErrServiceUnavailable, "listing is busy, try again")
		}
	}
}

// Reserve は排他区間の中（WithListingのfn内）で呼ぶ。
func (g *ReservationGuard) Reserve(ctx context.Context, r repo.TxRepos, listingID int64, qty decimal.Decimal, actorID int64) (Reservation, error) {
	if !qty.IsPositive() {
		return Reservation{}, invalid("quantity must be greater than 0")
	}

	//区間内で必ず読み直す
	l, err := r.Listings().FindByIDForUpdate(ctx, listingID)
	if errors.Is(err, repo.ErrNotFound) {
		return Reservation{}, notFound("listing")
	}
	if err != nil {
		return Reservation{}, dbError(ctx, err)
	}
	if !l.IsVisible() {
		return Reservation{}, conflict("listing not available")
	}

	res := Reservation{
		ListingID: l.ID,
		Quantity:  qty,
		UnitPrice: l.PricePerUnit,
	}

	//予約注文：数量チェックはしないが最低数量は守る
	if l.IsPreOrder() {
		if l.AvailableFrom == nil {
			return Reservation{}, conflict("pre-order listing has no available_from")
		}
		if qty.LessThan(l.MinimumOrderQuantity) {
			return Reservation{}, belowMinimum(l)
		}
		res.PreOrder = true
		res.AvailableFrom = l.AvailableFrom
		return res, nil
	}

	if qty.GreaterThan(l.QuantityAvailable) {
		return Reservation{}, newError(ErrInsufficientStock, fmt.Sprintf(
			"insufficient stock: requested %s, available %s", qty.String(), l.QuantityAvailable.String()))
	}
	if qty.LessThan(l.MinimumOrderQuantity) {
		return Reservation{}, belowMinimum(l)
	}

	res.ID = uuid.NewString()
	l.QuantityAvailable = l.QuantityAvailable.Sub(qty)
	if err := g.saveQuantity(ctx, r, l, qty.Neg(), model.AdjustmentReserve, actorID, res.ID); err != nil {
		return Reservation{}, err
	}
	return res, nil
}

// Release は予約の逆。在庫を確保した注文のキャンセルからだけ呼ぶ。
func (g *ReservationGuard) Release(ctx context.Context, r repo.TxRepos, listingID int64, qty decimal.Decimal, actorID int64, reference string) error {
	if !qty.IsPositive() {
		return invalid("quantity must be greater than 0")
	}

	l, err := r.Listings().FindByIDForUpdate(ctx, listingID)
	if errors.Is(err, repo.ErrNotFound) {
		return notFound("listing")
	}
	if err != nil {
		return dbError(ctx, err)
	}

	l.QuantityAvailable = l.QuantityAvailable.Add(qty)
	return g.saveQuantity(ctx, r, l, qty, model.AdjustmentRelease, actorID, reference)
}

func (g *ReservationGuard) saveQuantity(
	ctx context.Context,
	r repo.TxRepos,
	l model.Listing,
	delta decimal.Decimal,
	reason model.InventoryAdjustmentReason,
	actorID int64,
	reference string,
) error {
	l.IsAvailable = l.DeriveAvailability()
	if err := r.Inventory().SetQuantity(ctx, l.ID, l.QuantityAvailable, l.IsAvailable); err != nil {
		return dbError(ctx, err)
	}
	if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
		ListingID:   l.ID,
		ActorUserID: actorID,
		Delta:       delta,
		Reason:      reason,
		Reference:   reference,
		CreatedAt:   time.Now(),
	}); err != nil {
		return dbError(ctx, err)
	}
	return nil
}

func belowMinimum(l model.Listing) error {
	return newError(ErrBelowMinimum, fmt.Sprintf(
		"quantity below minimum order quantity %s %s", l.MinimumOrderQuantity.String(), l.Unit))
}
