package repository

import (
	"context"

	"farmmarket/internal/domain/model"
)

// AuditLogQuery は監査ログの絞り込み。ゼロ値の項目は条件にしない。
type AuditLogQuery struct {
	ResourceType model.AuditResourceType
	ResourceID   int64
	ActorUserID  *int64
	Action       model.AuditAction
	Page         int
	Limit        int
}

type AuditLogRepository interface {
	//遷移と同じTxで1件残す
	Create(ctx context.Context, log model.AuditLog) error

	//古い順（対象ごとの履歴として読む）
	List(ctx context.Context, q AuditLogQuery) ([]model.AuditLog, int64, error)
}
