package usecase

import (
	"context"

	"farmmarket/internal/authz"
	"farmmarket/internal/domain/model"
	repo "farmmarket/internal/repository"
)

// 管理者向けの監査ログ閲覧
type AuditUsecase struct {
	logs repo.AuditLogRepository
}

func NewAuditUsecase(logs repo.AuditLogRepository) *AuditUsecase {
	return &AuditUsecase{logs: logs}
}

type ListAuditLogsInput struct {
	ResourceType string
	ResourceID   int64
	ActorUserID  *int64
	Action       string
	Page         int
	Limit        int
}

type AuditLogListOutput struct {
	Items []model.AuditLog `json:"items"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

func (u *AuditUsecase) List(ctx context.Context, p authz.Principal, in ListAuditLogsInput) (AuditLogListOutput, error) {
	if p.ID <= 0 || p.Role != model.RoleAdmin {
		return AuditLogListOutput{}, forbidden()
	}

	if in.Page == 0 {
		in.Page = 1
	}
	if in.Limit == 0 {
		in.Limit = 50
	}
	if in.Page < 1 || in.Limit < 1 || in.Limit > 200 {
		return AuditLogListOutput{}, invalid("invalid paging")
	}

	q := repo.AuditLogQuery{ResourceID: in.ResourceID, ActorUserID: in.ActorUserID, Page: in.Page, Limit: in.Limit}
	switch rt := model.AuditResourceType(in.ResourceType); rt {
	case "", model.AuditResourceListing, model.AuditResourceOrder:
		q.ResourceType = rt
	default:
		return AuditLogListOutput{}, invalid("invalid resource_type")
	}
	switch a := model.AuditAction(in.Action); a {
	case "", model.AuditActionUpdateStock, model.AuditActionUpdateOrderStatus,
		model.AuditActionUpdatePayment, model.AuditActionModerateListing:
		q.Action = a
	default:
		return AuditLogListOutput{}, invalid("invalid action")
	}
	if in.ResourceID < 0 {
		return AuditLogListOutput{}, invalid("invalid resource_id")
	}

	items, total, err := u.logs.List(ctx, q)
	if err != nil {
		return AuditLogListOutput{}, dbError(ctx, err)
	}
	if items == nil {
		items = []model.AuditLog{}
	}
	return AuditLogListOutput{Items: items, Total: total, Page: in.Page, Limit: in.Limit}, nil
}
