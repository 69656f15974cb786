package cache

import (
	"context"
	"testing"
	"time"

	repo "farmmarket/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsCache_RoundTripAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	c := NewStatsCache(rdb, time.Minute)
	ctx := context.Background()

	_, ok, err := c.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	in := repo.MarketStats{
		TotalListings: 3,
		ByGrade:       map[string]int64{"premium": 2},
		AveragePrice:  decimal.RequireFromString("21.50"),
	}
	require.NoError(t, c.Set(ctx, in))

	got, ok, err := c.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), got.TotalListings)
	assert.True(t, got.AveragePrice.Equal(in.AveragePrice))

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatsCache_InvalidateAndCorrupt(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	c := NewStatsCache(rdb, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, repo.MarketStats{TotalOrders: 1}))
	require.NoError(t, c.Invalidate(ctx))
	_, ok, err := c.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mr.Set(keyMarketStats, "{not json"))
	_, ok, err = c.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(keyMarketStats))
}
