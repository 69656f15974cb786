package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Unit string

const (
	UnitKg    Unit = "kg"
	UnitTons  Unit = "tons"
	UnitBags  Unit = "bags"
	UnitSacks Unit = "sacks"
)

func (u Unit) Valid() bool {
	switch u {
	case UnitKg, UnitTons, UnitBags, UnitSacks:
		return true
	}
	return false
}

type QualityGrade string

const (
	GradePremium    QualityGrade = "premium"
	GradeA          QualityGrade = "grade_a"
	GradeB          QualityGrade = "grade_b"
	GradeCommercial QualityGrade = "commercial"
)

// 集計で使う表示順
var QualityGrades = []QualityGrade{GradePremium, GradeA, GradeB, GradeCommercial}

func (g QualityGrade) Valid() bool {
	for _, v := range QualityGrades {
		if g == v {
			return true
		}
	}
	return false
}

type ProcessingMethod string

const (
	ProcessingMilled    ProcessingMethod = "milled"
	ProcessingBrown     ProcessingMethod = "brown"
	ProcessingParboiled ProcessingMethod = "parboiled"
	ProcessingOrganic   ProcessingMethod = "organic"
)

func (p ProcessingMethod) Valid() bool {
	switch p {
	case "", ProcessingMilled, ProcessingBrown, ProcessingParboiled, ProcessingOrganic:
		return true
	}
	return false
}

type ProductionStatus string

const (
	ProductionAvailable    ProductionStatus = "available"
	ProductionInProduction ProductionStatus = "in_production"
	ProductionOutOfStock   ProductionStatus = "out_of_stock"
)

func (s ProductionStatus) Valid() bool {
	switch s {
	case ProductionAvailable, ProductionInProduction, ProductionOutOfStock:
		return true
	}
	return false
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// 農家が出品する商品。quantity_availableは予約ガード経由でのみ増減する。
type Listing struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	FarmerID  int64  `gorm:"not null;index" json:"farmer_id"`
	VarietyID int64  `gorm:"not null;index" json:"variety_id"`
	Name      string `gorm:"type:varchar(255);not null" json:"name"`

	Description string `gorm:"type:text" json:"description"`

	Unit                 Unit            `gorm:"type:varchar(10);not null" json:"unit"`
	PricePerUnit         decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price_per_unit"`
	MinimumOrderQuantity decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"minimum_order_quantity"`

	QualityGrade     QualityGrade        `gorm:"type:varchar(20);not null;index" json:"quality_grade"`
	ProcessingMethod ProcessingMethod    `gorm:"type:varchar(20)" json:"processing_method,omitempty"`
	MoistureContent  decimal.NullDecimal `gorm:"type:decimal(5,2)" json:"moisture_content"`
	PurityPercentage decimal.NullDecimal `gorm:"type:decimal(5,2)" json:"purity_percentage"`
	IsOrganic        bool                `gorm:"not null;index" json:"is_organic"`
	HarvestDate      *time.Time          `json:"harvest_date,omitempty"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Address   string   `gorm:"type:varchar(500)" json:"address,omitempty"`

	QuantityAvailable decimal.Decimal  `gorm:"type:decimal(12,2);not null" json:"quantity_available"`
	IsAvailable       bool             `gorm:"not null;index" json:"is_available"`
	ProductionStatus  ProductionStatus `gorm:"type:varchar(20);not null;index" json:"production_status"`
	AvailableFrom     *time.Time       `json:"available_from,omitempty"`

	ApprovalStatus  ApprovalStatus `gorm:"type:varchar(20);not null;index" json:"approval_status"`
	RejectionReason string         `gorm:"type:varchar(1000)" json:"rejection_reason,omitempty"`

	CreatedAt time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// is_availableの導出ルール
func (l Listing) DeriveAvailability() bool {
	switch l.ProductionStatus {
	case ProductionInProduction:
		return true
	case ProductionAvailable:
		return l.QuantityAvailable.IsPositive()
	default:
		return false
	}
}

// 数量・ステータス変更後は必ず呼ぶ
func (l *Listing) RefreshAvailability() {
	if l.ProductionStatus != ProductionInProduction {
		l.AvailableFrom = nil
	}
	l.IsAvailable = l.DeriveAvailability()
}

func (l Listing) IsPreOrder() bool {
	return l.ProductionStatus == ProductionInProduction
}

// 買い手に見える出品か
func (l Listing) IsVisible() bool {
	if l.ApprovalStatus != ApprovalApproved {
		return false
	}
	return l.ProductionStatus == ProductionAvailable || l.ProductionStatus == ProductionInProduction
}
