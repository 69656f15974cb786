package usecase

import (
	"context"

	"farmmarket/internal/logging"
	repo "farmmarket/internal/repository"

	"go.uber.org/zap"
)

type StatsCache interface {
	Get(ctx context.Context) (repo.MarketStats, bool, error)
	Set(ctx context.Context, s repo.MarketStats) error
}

type StatsUsecase struct {
	stats repo.StatsRepository
	cache StatsCache
}

// cacheはnil可
func NewStatsUsecase(stats repo.StatsRepository, cache StatsCache) *StatsUsecase {
	return &StatsUsecase{stats: stats, cache: cache}
}

func (u *StatsUsecase) Market(ctx context.Context) (repo.MarketStats, error) {
	log := logging.FromContext(ctx)

	if u.cache != nil {
		s, ok, err := u.cache.Get(ctx)
		if err != nil {
			//キャッシュが落ちていてもDBから返す
			log.Warn("stats cache get failed", zap.Error(err))
		} else if ok {
			return s, nil
		}
	}

	s, err := u.stats.MarketStats(ctx)
	if err != nil {
		return repo.MarketStats{}, dbError(ctx, err)
	}

	if u.cache != nil {
		if err := u.cache.Set(ctx, s); err != nil {
			log.Warn("stats cache set failed", zap.Error(err))
		}
	}
	return s, nil
}
