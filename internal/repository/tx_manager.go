package repository

import "context"

// トランザクション内で使う約束
type TxRepos interface {
	Listings() ListingRepository
	Inventory() InventoryRepository
	Orders() OrderRepository
	Messages() MessageRepository
	Notifications() NotificationRepository
	AuditLogs() AuditLogRepository
	Users() UserRepository
}

// UsecaseからTxの開始/commit/rollbackを隠す。
type TransactionManager interface {
	WithinTx(ctx context.Context, fn func(r TxRepos) error) error
}
