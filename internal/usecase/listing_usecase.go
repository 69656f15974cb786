package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"farmmarket/internal/authz"
	"farmmarket/internal/domain/model"
	"farmmarket/internal/logging"
	repo "farmmarket/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	maxSearchLimit  = 50
	defaultRadiusKm = 50
)

type ListingUsecase struct {
	tm        repo.TransactionManager
	guard     *ReservationGuard
	listings  repo.ListingRepository
	varieties repo.VarietyRepository
	cache     StatsInvalidator
	loc       *time.Location
	now       func() time.Time
}

// DI
func NewListingUsecase(
	tm repo.TransactionManager,
	guard *ReservationGuard,
	listings repo.ListingRepository,
	varieties repo.VarietyRepository,
) *ListingUsecase {
	return &ListingUsecase{
		tm:        tm,
		guard:     guard,
		listings:  listings,
		varieties: varieties,
		loc:       time.UTC,
		now:       time.Now,
	}
}

// 出品の変更で市場統計のキャッシュを捨てる
func (u *ListingUsecase) WithStatsCache(c StatsInvalidator) *ListingUsecase {
	u.cache = c
	return u
}

// 収穫日の「今日」を決めるタイムゾーン
func (u *ListingUsecase) WithLocation(loc *time.Location) *ListingUsecase {
	if loc != nil {
		u.loc = loc
	}
	return u
}

// 出品の入力。PATCHはこの形に現在値を重ねてから検証する。
type ListingInput struct {
	VarietyID            int64                  `json:"variety_id"`
	Name                 string                 `json:"name"`
	Description          string                 `json:"description"`
	Unit                 model.Unit             `json:"unit"`
	PricePerUnit         decimal.NullDecimal    `json:"price_per_unit"`
	MinimumOrderQuantity decimal.Decimal        `json:"minimum_order_quantity"`
	QuantityAvailable    decimal.NullDecimal    `json:"quantity_available"`
	QualityGrade         model.QualityGrade     `json:"quality_grade"`
	ProcessingMethod     model.ProcessingMethod `json:"processing_method"`
	MoistureContent      decimal.NullDecimal    `json:"moisture_content"`
	PurityPercentage     decimal.NullDecimal    `json:"purity_percentage"`
	IsOrganic            bool                   `json:"is_organic"`
	HarvestDate          *time.Time             `json:"harvest_date"`
	Latitude             *float64               `json:"latitude"`
	Longitude            *float64               `json:"longitude"`
	Address              string                 `json:"address"`
	ProductionStatus     model.ProductionStatus `json:"production_status"`
	AvailableFrom        *time.Time             `json:"available_from"`
}

// PATCHでnullにできない項目
var requiredListingFields = map[string]bool{
	"variety_id":         true,
	"name":               true,
	"description":        true,
	"unit":               true,
	"price_per_unit":     true,
	"quantity_available": true,
	"quality_grade":      true,
	"production_status":  true,
}

// PATCHで変更できない項目
var structuralListingFields = map[string]bool{
	"id":               true,
	"farmer_id":        true,
	"approval_status":  true,
	"rejection_reason": true,
	"created_at":       true,
	"updated_at":       true,
	"is_available":     true,
}

var (
	moistureMin = decimal.NewFromInt(5)
	moistureMax = decimal.NewFromInt(25)
	purityMin   = decimal.NewFromInt(50)
	purityMax   = decimal.NewFromInt(100)
)

// todayはloc上の今日の0時
func validateListingInput(in ListingInput, today time.Time) error {
	if in.VarietyID <= 0 {
		return invalid("variety_id required")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return invalid("name required")
	}
	if len(name) > 255 {
		return invalid("name too long")
	}
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return invalid("description required")
	}
	if len(desc) > 2000 {
		return invalid("description too long")
	}
	if !in.Unit.Valid() {
		return invalid("invalid unit")
	}
	if !in.PricePerUnit.Valid {
		return invalid("price_per_unit required")
	}
	if err := nonNegative("price_per_unit", in.PricePerUnit.Decimal); err != nil {
		return err
	}
	if err := nonNegative("minimum_order_quantity", in.MinimumOrderQuantity); err != nil {
		return err
	}
	if !in.QuantityAvailable.Valid {
		return invalid("quantity_available required")
	}
	if err := nonNegative("quantity_available", in.QuantityAvailable.Decimal); err != nil {
		return err
	}
	if !in.QualityGrade.Valid() {
		return invalid("invalid quality_grade")
	}
	if !in.ProcessingMethod.Valid() {
		return invalid("invalid processing_method")
	}
	if in.MoistureContent.Valid && !between(in.MoistureContent.Decimal, moistureMin, moistureMax) {
		return invalid("moisture_content must be between 5 and 25")
	}
	if in.PurityPercentage.Valid && !between(in.PurityPercentage.Decimal, purityMin, purityMax) {
		return invalid("purity_percentage must be between 50 and 100")
	}
	if in.HarvestDate != nil && dayOf(*in.HarvestDate, today.Location()).After(today) {
		return invalid("harvest_date must not be in the future")
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return invalid("latitude and longitude must be set together")
	}
	if in.Latitude != nil && (*in.Latitude < -90 || *in.Latitude > 90) {
		return invalid("invalid latitude")
	}
	if in.Longitude != nil && (*in.Longitude < -180 || *in.Longitude > 180) {
		return invalid("invalid longitude")
	}
	if len(in.Address) > 500 {
		return invalid("address too long")
	}
	if !in.ProductionStatus.Valid() {
		return invalid("invalid production_status")
	}
	//予約注文を受けるには入荷予定日が必要
	if in.ProductionStatus == model.ProductionInProduction && in.AvailableFrom == nil {
		return invalid("available_from required when in_production")
	}
	return nil
}

func nonNegative(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return invalid(field + " must be >= 0")
	}
	if !d.Equal(d.Round(2)) {
		return invalid(field + " supports at most 2 decimal places")
	}
	return nil
}

func between(d, lo, hi decimal.Decimal) bool {
	return !d.LessThan(lo) && !d.GreaterThan(hi)
}

func (in ListingInput) apply(l *model.Listing) {
	l.VarietyID = in.VarietyID
	l.Name = strings.TrimSpace(in.Name)
	l.Description = strings.TrimSpace(in.Description)
	l.Unit = in.Unit
	l.PricePerUnit = in.PricePerUnit.Decimal
	l.MinimumOrderQuantity = in.MinimumOrderQuantity
	l.QuantityAvailable = in.QuantityAvailable.Decimal
	l.QualityGrade = in.QualityGrade
	l.ProcessingMethod = in.ProcessingMethod
	l.MoistureContent = in.MoistureContent
	l.PurityPercentage = in.PurityPercentage
	l.IsOrganic = in.IsOrganic
	l.HarvestDate = in.HarvestDate
	l.Latitude = in.Latitude
	l.Longitude = in.Longitude
	l.Address = in.Address
	l.ProductionStatus = in.ProductionStatus
	l.AvailableFrom = in.AvailableFrom
	l.RefreshAvailability()
}

func inputFromListing(l model.Listing) ListingInput {
	return ListingInput{
		VarietyID:            l.VarietyID,
		Name:                 l.Name,
		Description:          l.Description,
		Unit:                 l.Unit,
		PricePerUnit:         decimal.NewNullDecimal(l.PricePerUnit),
		MinimumOrderQuantity: l.MinimumOrderQuantity,
		QuantityAvailable:    decimal.NewNullDecimal(l.QuantityAvailable),
		QualityGrade:         l.QualityGrade,
		ProcessingMethod:     l.ProcessingMethod,
		MoistureContent:      l.MoistureContent,
		PurityPercentage:     l.PurityPercentage,
		IsOrganic:            l.IsOrganic,
		HarvestDate:          l.HarvestDate,
		Latitude:             l.Latitude,
		Longitude:            l.Longitude,
		Address:              l.Address,
		ProductionStatus:     l.ProductionStatus,
		AvailableFrom:        l.AvailableFrom,
	}
}

func (u *ListingUsecase) ensureVariety(ctx context.Context, id int64) error {
	if id <= 0 {
		return invalid("variety_id required")
	}
	v, err := u.varieties.FindByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && !v.IsActive) {
		return invalid("unknown variety")
	}
	if err != nil {
		return dbError(ctx, err)
	}
	return nil
}

// Create は農家のみ。審査待ち（pending）で作られる。
func (u *ListingUsecase) Create(ctx context.Context, p authz.Principal, in ListingInput) (model.Listing, error) {
	if !authz.CanAct(p, authz.NewListingResource(), authz.ActionListingCreate) {
		return model.Listing{}, forbidden()
	}
	if in.ProductionStatus == "" {
		in.ProductionStatus = model.ProductionAvailable
	}
	if err := validateListingInput(in, dayOf(u.now(), u.loc)); err != nil {
		return model.Listing{}, err
	}
	if err := u.ensureVariety(ctx, in.VarietyID); err != nil {
		return model.Listing{}, err
	}

	l := model.Listing{
		FarmerID:       p.ID,
		ApprovalStatus: model.ApprovalPending,
	}
	in.apply(&l)

	var created model.Listing
	err := u.tm.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		created, err = r.Listings().Create(ctx, l)
		if err != nil {
			return dbError(ctx, err)
		}
		return nil
	})
	if err != nil {
		return model.Listing{}, err
	}

	logging.FromContext(ctx).Info("listing created",
		zap.Int64("listing_id", created.ID),
		zap.Int64("farmer_id", created.FarmerID),
	)
	u.invalidateStats(ctx)
	return created, nil
}

// Update は所有者のみ。数量が変わりうるので出品の排他区間で行う。
func (u *ListingUsecase) Update(ctx context.Context, p authz.Principal, listingID int64, patch map[string]json.RawMessage) (model.Listing, error) {
	if listingID <= 0 {
		return model.Listing{}, invalid("invalid listing id")
	}
	if len(patch) == 0 {
		return model.Listing{}, invalid("empty patch")
	}
	for k, v := range patch {
		if structuralListingFields[k] {
			return model.Listing{}, invalid(k + " cannot be changed")
		}
		if requiredListingFields[k] && bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return model.Listing{}, invalid(k + " cannot be null")
		}
	}

	//品種はTxの外で確認する
	if raw, ok := patch["variety_id"]; ok {
		var vid int64
		if err := json.Unmarshal(raw, &vid); err != nil {
			return model.Listing{}, invalid("invalid variety_id")
		}
		if err := u.ensureVariety(ctx, vid); err != nil {
			return model.Listing{}, err
		}
	}

	var updated model.Listing
	err := u.guard.WithListing(ctx, listingID, func(r repo.TxRepos) error {
		cur, err := r.Listings().FindByIDForUpdate(ctx, listingID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("listing")
		}
		if err != nil {
			return dbError(ctx, err)
		}
		if !authz.CanAct(p, authz.ListingResource(cur), authz.ActionListingUpdate) {
			return forbidden()
		}

		in, err := mergeListingPatch(inputFromListing(cur), patch)
		if err != nil {
			return err
		}
		if err := validateListingInput(in, dayOf(u.now(), u.loc)); err != nil {
			return err
		}

		next := cur
		in.apply(&next)
		if err := r.Listings().Update(ctx, next); err != nil {
			return dbError(ctx, err)
		}

		//手動の在庫変更は履歴と監査ログを残す
		if !next.QuantityAvailable.Equal(cur.QuantityAvailable) {
			if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
				ListingID:   cur.ID,
				ActorUserID: p.ID,
				Delta:       next.QuantityAvailable.Sub(cur.QuantityAvailable),
				Reason:      model.AdjustmentManual,
				CreatedAt:   u.now(),
			}); err != nil {
				return dbError(ctx, err)
			}
			if err := r.AuditLogs().Create(ctx, model.AuditLog{
				ActorUserID:  p.ID,
				Action:       model.AuditActionUpdateStock,
				ResourceType: model.AuditResourceListing,
				ResourceID:   cur.ID,
				BeforeJSON:   fmt.Sprintf(`{"quantity_available":%q}`, cur.QuantityAvailable.String()),
				AfterJSON:    fmt.Sprintf(`{"quantity_available":%q}`, next.QuantityAvailable.String()),
				CreatedAt:    u.now(),
			}); err != nil {
				return dbError(ctx, err)
			}
		}

		updated = next
		return nil
	})
	if err != nil {
		return model.Listing{}, err
	}
	u.invalidateStats(ctx)
	return updated, nil
}

// 現在値にpatchを重ねる。知らない項目はエラー。
func mergeListingPatch(base ListingInput, patch map[string]json.RawMessage) (ListingInput, error) {
	raw, err := json.Marshal(base)
	if err != nil {
		return ListingInput{}, newError(ErrInternal, "encode listing")
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ListingInput{}, newError(ErrInternal, "encode listing")
	}
	for k, v := range patch {
		if _, known := fields[k]; !known {
			return ListingInput{}, invalid("unknown field " + k)
		}
		fields[k] = v
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return ListingInput{}, invalid("invalid patch")
	}
	dec := json.NewDecoder(bytes.NewReader(merged))
	dec.DisallowUnknownFields()
	var out ListingInput
	if err := dec.Decode(&out); err != nil {
		return ListingInput{}, invalid("invalid patch: " + err.Error())
	}
	return out, nil
}

// Delete は所有者のみ。有効な注文がある出品は消せない。
func (u *ListingUsecase) Delete(ctx context.Context, p authz.Principal, listingID int64) error {
	if listingID <= 0 {
		return invalid("invalid listing id")
	}

	err := u.guard.WithListing(ctx, listingID, func(r repo.TxRepos) error {
		l, err := r.Listings().FindByIDForUpdate(ctx, listingID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("listing")
		}
		if err != nil {
			return dbError(ctx, err)
		}
		if !authz.CanAct(p, authz.ListingResource(l), authz.ActionListingDelete) {
			return forbidden()
		}

		n, err := r.Orders().CountActiveByListing(ctx, listingID)
		if err != nil {
			return dbError(ctx, err)
		}
		if n > 0 {
			return conflict(fmt.Sprintf("listing has %d active orders", n))
		}

		if err := r.Listings().SoftDelete(ctx, listingID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound("listing")
			}
			return dbError(ctx, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	u.invalidateStats(ctx)
	return nil
}

type SearchListingsInput struct {
	Page             int
	Limit            int
	Q                string
	VarietyID        *int64
	Grade            string
	Organic          *bool
	ProductionStatus string
	MinPrice         *decimal.Decimal
	MaxPrice         *decimal.Decimal
	Lat              *float64
	Lng              *float64
	RadiusKm         *float64
	Sort             string
	Order            string
}

type ListingListOutput struct {
	Items []model.Listing `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

func (u *ListingUsecase) Search(ctx context.Context, in SearchListingsInput) (ListingListOutput, error) {
	if in.Page == 0 {
		in.Page = 1
	}
	if in.Limit == 0 {
		in.Limit = 20
	}
	if in.Page < 1 {
		return ListingListOutput{}, invalid("invalid page")
	}
	if in.Limit < 1 || in.Limit > maxSearchLimit {
		return ListingListOutput{}, invalid("invalid limit")
	}
	if len(in.Q) > 100 {
		return ListingListOutput{}, invalid("q too long")
	}

	grade := model.QualityGrade(in.Grade)
	if grade != "" && !grade.Valid() {
		return ListingListOutput{}, invalid("invalid grade")
	}
	status := model.ProductionStatus(in.ProductionStatus)
	switch status {
	case "", model.ProductionAvailable, model.ProductionInProduction:
	default:
		return ListingListOutput{}, invalid("invalid production_status")
	}

	if in.MinPrice != nil && in.MinPrice.IsNegative() {
		return ListingListOutput{}, invalid("min_price must be >= 0")
	}
	if in.MaxPrice != nil && in.MaxPrice.IsNegative() {
		return ListingListOutput{}, invalid("max_price must be >= 0")
	}
	if in.MinPrice != nil && in.MaxPrice != nil && in.MinPrice.GreaterThan(*in.MaxPrice) {
		return ListingListOutput{}, invalid("min_price must be <= max_price")
	}

	if (in.Lat == nil) != (in.Lng == nil) {
		return ListingListOutput{}, invalid("lat and lng must be set together")
	}
	radius := float64(defaultRadiusKm)
	if in.RadiusKm != nil {
		if *in.RadiusKm <= 0 || *in.RadiusKm > 1000 {
			return ListingListOutput{}, invalid("invalid radius")
		}
		radius = *in.RadiusKm
	}

	switch in.Sort {
	case "", "created_at", "price", "quantity", "available_from", "harvest_date":
	default:
		return ListingListOutput{}, invalid("invalid sort")
	}
	switch strings.ToLower(in.Order) {
	case "", "asc", "desc":
	default:
		return ListingListOutput{}, invalid("invalid order")
	}

	items, total, err := u.listings.Search(ctx, repo.ListingSearchQuery{
		Page:             in.Page,
		Limit:            in.Limit,
		Q:                strings.TrimSpace(in.Q),
		VarietyID:        in.VarietyID,
		Grade:            grade,
		Organic:          in.Organic,
		ProductionStatus: status,
		MinPrice:         in.MinPrice,
		MaxPrice:         in.MaxPrice,
		Lat:              in.Lat,
		Lng:              in.Lng,
		RadiusKm:         radius,
		Sort:             in.Sort,
		Order:            in.Order,
	})
	if err != nil {
		return ListingListOutput{}, dbError(ctx, err)
	}
	return ListingListOutput{Items: items, Total: total, Page: in.Page, Limit: in.Limit}, nil
}

// Get は買い手に見える出品だけ。所有者と管理者は審査前でも見られる。
func (u *ListingUsecase) Get(ctx context.Context, p authz.Principal, listingID int64) (model.Listing, error) {
	if listingID <= 0 {
		return model.Listing{}, invalid("invalid listing id")
	}
	l, err := u.listings.FindByID(ctx, listingID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Listing{}, notFound("listing")
	}
	if err != nil {
		return model.Listing{}, dbError(ctx, err)
	}

	owner := p.Role == model.RoleFarmer && p.ID == l.FarmerID
	if !l.IsVisible() && !owner && p.Role != model.RoleAdmin {
		return model.Listing{}, notFound("listing")
	}
	return l, nil
}

func (u *ListingUsecase) ListMine(ctx context.Context, p authz.Principal, page int, limit int) (ListingListOutput, error) {
	if p.ID <= 0 || p.Role != model.RoleFarmer {
		return ListingListOutput{}, forbidden()
	}
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = 20
	}
	if page < 1 || limit < 1 || limit > 100 {
		return ListingListOutput{}, invalid("invalid paging")
	}

	items, total, err := u.listings.ListByFarmer(ctx, p.ID, page, limit)
	if err != nil {
		return ListingListOutput{}, dbError(ctx, err)
	}
	return ListingListOutput{Items: items, Total: total, Page: page, Limit: limit}, nil
}

func (u *ListingUsecase) Approve(ctx context.Context, p authz.Principal, listingID int64) (model.Listing, error) {
	return u.moderate(ctx, p, listingID, model.ApprovalApproved, "")
}

func (u *ListingUsecase) Reject(ctx context.Context, p authz.Principal, listingID int64, reason string) (model.Listing, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.Listing{}, invalid("reason required")
	}
	if len(reason) > 1000 {
		return model.Listing{}, invalid("reason too long")
	}
	return u.moderate(ctx, p, listingID, model.ApprovalRejected, reason)
}

func (u *ListingUsecase) moderate(ctx context.Context, p authz.Principal, listingID int64, status model.ApprovalStatus, reason string) (model.Listing, error) {
	if listingID <= 0 {
		return model.Listing{}, invalid("invalid listing id")
	}

	var out model.Listing
	err := u.tm.WithinTx(ctx, func(r repo.TxRepos) error {
		l, err := r.Listings().FindByIDForUpdate(ctx, listingID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("listing")
		}
		if err != nil {
			return dbError(ctx, err)
		}
		if !authz.CanAct(p, authz.ListingResource(l), authz.ActionListingModerate) {
			return forbidden()
		}

		if err := r.Listings().UpdateApproval(ctx, listingID, status, reason); err != nil {
			return dbError(ctx, err)
		}
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  p.ID,
			Action:       model.AuditActionModerateListing,
			ResourceType: model.AuditResourceListing,
			ResourceID:   listingID,
			BeforeJSON:   fmt.Sprintf(`{"approval_status":%q}`, l.ApprovalStatus),
			AfterJSON:    fmt.Sprintf(`{"approval_status":%q}`, status),
			CreatedAt:    u.now(),
		}); err != nil {
			return dbError(ctx, err)
		}

		l.ApprovalStatus = status
		l.RejectionReason = reason
		out = l
		return nil
	})
	if err != nil {
		return model.Listing{}, err
	}
	u.invalidateStats(ctx)
	return out, nil
}

func (u *ListingUsecase) invalidateStats(ctx context.Context) {
	if u.cache == nil {
		return
	}
	if err := u.cache.Invalidate(ctx); err != nil {
		logging.FromContext(ctx).Warn("stats cache invalidate failed", zap.Error(err))
	}
}
