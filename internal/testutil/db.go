// Package testutil はテスト用のDBとデータ作成ヘルパー。
package testutil

import (
	"testing"
	"time"

	"farmmarket/internal/domain/model"
	"farmmarket/internal/infra/db"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB はマイグレーション済みのインメモリSQLiteを返す。
// 接続を1本に固定するので、Tx中に別接続を待つ書き方をするとテストが止まる。
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(gdb))
	return gdb
}

func MustUser(t *testing.T, gdb *gorm.DB, role model.Role, name string) model.User {
	t.Helper()
	u := model.User{
		Name:         name,
		Email:        name + "@example.com",
		Phone:        "+639170000000",
		PasswordHash: "x",
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, gdb.Create(&u).Error)
	return u
}

func MustVariety(t *testing.T, gdb *gorm.DB, name string) model.Variety {
	t.Helper()
	v := model.Variety{Name: name, IsActive: true}
	require.NoError(t, gdb.Create(&v).Error)
	return v
}

// MustListing は承認済み・販売中の出品を作る。mutateで上書きできる。
func MustListing(t *testing.T, gdb *gorm.DB, farmerID int64, varietyID int64, qty int64, mutate ...func(*model.Listing)) model.Listing {
	t.Helper()
	l := model.Listing{
		FarmerID:             farmerID,
		VarietyID:            varietyID,
		Name:                 "Jasmine rice",
		Description:          "fresh harvest",
		Unit:                 model.UnitKg,
		PricePerUnit:         decimal.NewFromInt(20),
		MinimumOrderQuantity: decimal.NewFromInt(10),
		QualityGrade:         model.GradeA,
		QuantityAvailable:    decimal.NewFromInt(qty),
		ProductionStatus:     model.ProductionAvailable,
		ApprovalStatus:       model.ApprovalApproved,
	}
	for _, m := range mutate {
		m(&l)
	}
	l.RefreshAvailability()
	require.NoError(t, gdb.Create(&l).Error)
	return l
}

func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
