package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	repo "farmmarket/internal/repository"

	"github.com/redis/go-redis/v9"
)

const keyMarketStats = "stats:market"

// StatsCache はマーケット集計をTTL付きでredisに置く。
type StatsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStatsCache(rdb *redis.Client, ttl time.Duration) *StatsCache {
	return &StatsCache{rdb: rdb, ttl: ttl}
}

// Get は(値, ヒットしたか, エラー)を返す。
func (c *StatsCache) Get(ctx context.Context) (repo.MarketStats, bool, error) {
	raw, err := c.rdb.Get(ctx, keyMarketStats).Bytes()
	if errors.Is(err, redis.Nil) {
		return repo.MarketStats{}, false, nil
	}
	if err != nil {
		return repo.MarketStats{}, false, err
	}
	var s repo.MarketStats
	if err := json.Unmarshal(raw, &s); err != nil {
		//壊れた値は捨てる
		_ = c.rdb.Del(ctx, keyMarketStats).Err()
		return repo.MarketStats{}, false, nil
	}
	return s, true, nil
}

func (c *StatsCache) Set(ctx context.Context, s repo.MarketStats) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, keyMarketStats, raw, c.ttl).Err()
}

func (c *StatsCache) Invalidate(ctx context.Context) error {
	return c.rdb.Del(ctx, keyMarketStats).Err()
}
