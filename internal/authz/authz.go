// Package authz は「誰が、何に対して、何をできるか」を一か所で判定する。
package authz

import "farmmarket/internal/domain/model"

// 認証済みの呼び出し元
type Principal struct {
	ID   int64
	Role model.Role
}

// バッチなど利用者を伴わない操作の実行者
const RoleSystem model.Role = "SYSTEM"

func System() Principal {
	return Principal{ID: 0, Role: RoleSystem}
}

func (p Principal) IsSystem() bool { return p.Role == RoleSystem }

type ResourceKind string

const (
	KindListing ResourceKind = "listing"
	KindOrder   ResourceKind = "order"
)

// 判定対象。注文は買い手と出品農家の両方を持つ。
type Resource struct {
	Kind     ResourceKind
	FarmerID int64
	BuyerID  int64
}

func ListingResource(l model.Listing) Resource {
	return Resource{Kind: KindListing, FarmerID: l.FarmerID}
}

// 作成前の出品
func NewListingResource() Resource {
	return Resource{Kind: KindListing}
}

func OrderResource(o model.Order) Resource {
	return Resource{Kind: KindOrder, FarmerID: o.FarmerID, BuyerID: o.BuyerID}
}

// 出品に対する注文を作る前の判定用
func OrderOnListing(l model.Listing) Resource {
	return Resource{Kind: KindOrder, FarmerID: l.FarmerID}
}

type Action string

const (
	ActionListingCreate   Action = "listing:create"
	ActionListingUpdate   Action = "listing:update"
	ActionListingDelete   Action = "listing:delete"
	ActionListingModerate Action = "listing:moderate"

	ActionOrderCreate   Action = "order:create"
	ActionOrderView     Action = "order:view"
	ActionOrderConfirm  Action = "order:confirm"
	ActionOrderProcess  Action = "order:process"
	ActionOrderShip     Action = "order:ship"
	ActionOrderDeliver  Action = "order:deliver"
	ActionOrderCancel   Action = "order:cancel"
	ActionOrderReject   Action = "order:reject"
	ActionOrderMarkPaid Action = "order:mark_paid"
	ActionOrderRefund   Action = "order:refund"

	ActionMessagePost Action = "message:post"
	ActionMessageView Action = "message:view"
)

// CanAct は呼び出し元がresourceに対してactionを実行できるかを返す。
func CanAct(p Principal, r Resource, a Action) bool {
	if p.ID <= 0 && !p.IsSystem() {
		return false
	}

	isFarmer := p.Role == model.RoleFarmer && r.FarmerID != 0 && p.ID == r.FarmerID
	isBuyer := p.Role == model.RoleBuyer && r.BuyerID != 0 && p.ID == r.BuyerID

	switch r.Kind {
	case KindListing:
		switch a {
		case ActionListingCreate:
			return p.Role == model.RoleFarmer
		case ActionListingUpdate, ActionListingDelete:
			return isFarmer
		case ActionListingModerate:
			return p.Role == model.RoleAdmin
		}

	case KindOrder:
		switch a {
		case ActionOrderCreate:
			//自分の出品は買えない
			return p.Role == model.RoleBuyer && p.ID != r.FarmerID
		case ActionOrderView:
			return isFarmer || isBuyer || p.Role == model.RoleAdmin
		case ActionOrderConfirm, ActionOrderProcess, ActionOrderShip, ActionOrderReject, ActionOrderMarkPaid:
			return isFarmer
		case ActionOrderDeliver:
			//自動受取はシステムが行う
			return isFarmer || p.IsSystem()
		case ActionOrderCancel:
			return isFarmer || isBuyer
		case ActionOrderRefund:
			return p.Role == model.RoleAdmin || p.IsSystem()
		case ActionMessagePost, ActionMessageView:
			return isFarmer || isBuyer
		}
	}

	return false
}
