package repository

import (
	"context"

	"github.com/shopspring/decimal"
)

// マーケット全体の集計値
type MarketStats struct {
	TotalListings   int64            `json:"total_listings"`
	TotalFarmers    int64            `json:"total_farmers"`
	TotalOrders     int64            `json:"total_orders"`
	ActiveOrders    int64            `json:"active_orders"`
	OrganicListings int64            `json:"organic_listings"`
	ByGrade         map[string]int64 `json:"by_grade"`
	AveragePrice    decimal.Decimal  `json:"average_price"`
	DeliveredSales  decimal.Decimal  `json:"delivered_sales"`
}

type StatsRepository interface {
	MarketStats(ctx context.Context) (MarketStats, error)
}
