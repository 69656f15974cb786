package repository

import (
	"context"

	repo "farmmarket/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	listings      repo.ListingRepository
	inventory     repo.InventoryRepository
	orders        repo.OrderRepository
	messages      repo.MessageRepository
	notifications repo.NotificationRepository
	auditLogs     repo.AuditLogRepository
	users         repo.UserRepository
}

func (r *txReposGorm) Listings() repo.ListingRepository           { return r.listings }
func (r *txReposGorm) Inventory() repo.InventoryRepository        { return r.inventory }
func (r *txReposGorm) Orders() repo.OrderRepository               { return r.orders }
func (r *txReposGorm) Messages() repo.MessageRepository           { return r.messages }
func (r *txReposGorm) Notifications() repo.NotificationRepository { return r.notifications }
func (r *txReposGorm) AuditLogs() repo.AuditLogRepository         { return r.auditLogs }
func (r *txReposGorm) Users() repo.UserRepository                 { return r.users }

// NewTxRepos はdb（Txでも可）を共有するrepo一式を作る。
func NewTxRepos(db *gorm.DB) repo.TxRepos {
	return &txReposGorm{
		listings:      NewListingGormRepository(db),
		inventory:     NewInventoryGormRepository(db),
		orders:        NewOrderGormRepository(db),
		messages:      NewMessageGormRepository(db),
		notifications: NewNotificationGormRepository(db),
		auditLogs:     NewAuditLogGormRepository(db),
		users:         NewUserGormRepository(db),
	}
}

type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//repoはtxを持ったDBで作り直す
		return fn(NewTxRepos(tx))
	})
}
