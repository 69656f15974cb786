package usecase

import (
	"context"
	"errors"
	"testing"

	repo "farmmarket/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// =====================
// Mock StatsRepository
// =====================

type MockStatsRepository struct {
	mock.Mock
}

func (m *MockStatsRepository) MarketStats(ctx context.Context) (repo.MarketStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(repo.MarketStats), args.Error(1)
}

// =====================
// Mock StatsCache
// =====================

type MockStatsCache struct {
	mock.Mock
}

func (m *MockStatsCache) Get(ctx context.Context) (repo.MarketStats, bool, error) {
	args := m.Called(ctx)
	return args.Get(0).(repo.MarketStats), args.Bool(1), args.Error(2)
}

func (m *MockStatsCache) Set(ctx context.Context, s repo.MarketStats) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func TestStats_CacheHit(t *testing.T) {
	ctx := context.Background()
	stats := new(MockStatsRepository)
	cache := new(MockStatsCache)

	cached := repo.MarketStats{TotalListings: 7}
	cache.On("Get", ctx).Return(cached, true, nil)

	got, err := NewStatsUsecase(stats, cache).Market(ctx)
	require.NoError(t, err)
	assert.Equal(t, cached, got)

	stats.AssertNotCalled(t, "MarketStats", mock.Anything)
	cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything)
}

func TestStats_CacheMissFillsCache(t *testing.T) {
	ctx := context.Background()
	stats := new(MockStatsRepository)
	cache := new(MockStatsCache)

	fresh := repo.MarketStats{TotalListings: 3, TotalFarmers: 2}
	cache.On("Get", ctx).Return(repo.MarketStats{}, false, nil)
	stats.On("MarketStats", ctx).Return(fresh, nil)
	cache.On("Set", ctx, fresh).Return(nil)

	got, err := NewStatsUsecase(stats, cache).Market(ctx)
	require.NoError(t, err)
	assert.Equal(t, fresh, got)

	stats.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestStats_CacheDownFallsBackToDB(t *testing.T) {
	ctx := context.Background()
	stats := new(MockStatsRepository)
	cache := new(MockStatsCache)

	fresh := repo.MarketStats{TotalOrders: 11}
	cache.On("Get", ctx).Return(repo.MarketStats{}, false, errors.New("redis down"))
	stats.On("MarketStats", ctx).Return(fresh, nil)
	cache.On("Set", ctx, fresh).Return(errors.New("redis down"))

	got, err := NewStatsUsecase(stats, cache).Market(ctx)
	require.NoError(t, err)
	assert.Equal(t, fresh, got)
}

func TestStats_DBError(t *testing.T) {
	ctx := context.Background()
	stats := new(MockStatsRepository)
	stats.On("MarketStats", ctx).Return(repo.MarketStats{}, errors.New("boom"))

	_, err := NewStatsUsecase(stats, nil).Market(ctx)
	require.ErrorIs(t, err, ErrInternal)
}
