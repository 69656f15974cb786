package repository_test

import (
	"context"
	"testing"
	"time"

	"farmmarket/internal/domain/model"
	infraRepo "farmmarket/internal/infra/repository"
	repo "farmmarket/internal/repository"
	"farmmarket/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestListingSearch_VisibilityAndFilters(t *testing.T) {
	gdb := testutil.NewDB(t)
	ctx := context.Background()
	farmer := testutil.MustUser(t, gdb, model.RoleFarmer, "farmer")
	v1 := testutil.MustVariety(t, gdb, "Jasmine")
	v2 := testutil.MustVariety(t, gdb, "Basmati")
	harvest := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	a := testutil.MustListing(t, gdb, farmer.ID, v1.ID, 100, func(l *model.Listing) {
		l.Name = "Organic jasmine"
		l.IsOrganic = true
		l.QualityGrade = model.GradePremium
	})
	b := testutil.MustListing(t, gdb, farmer.ID, v2.ID, 0, func(l *model.Listing) {
		l.Name = "Basmati pre-harvest"
		l.ProductionStatus = model.ProductionInProduction
		l.AvailableFrom = &harvest
		l.PricePerUnit = testutil.Dec("35.50")
	})
	//見えないもの
	testutil.MustListing(t, gdb, farmer.ID, v1.ID, 100, func(l *model.Listing) { l.ApprovalStatus = model.ApprovalPending })
	testutil.MustListing(t, gdb, farmer.ID, v1.ID, 0)
	testutil.MustListing(t, gdb, farmer.ID, v1.ID, 100, func(l *model.Listing) { l.ProductionStatus = model.ProductionOutOfStock })

	r := infraRepo.NewListingGormRepository(gdb)

	items, total, err := r.Search(ctx, repo.ListingSearchQuery{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, items, 2)

	items, _, err = r.Search(ctx, repo.ListingSearchQuery{Page: 1, Limit: 10, Organic: ptr(true)})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, a.ID, items[0].ID)

	items, _, err = r.Search(ctx, repo.ListingSearchQuery{Page: 1, Limit: 10, VarietyID: &v2.ID})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, b.ID, items[0].ID)

	items, _, err = r.Search(ctx, repo.ListingSearchQuery{Page: 1, Limit: 10, Grade: model.GradePremium})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, a.ID, items[0].ID)

	minPrice := testutil.Dec("30")
	items, _, err = r.Search(ctx, repo.ListingSearchQuery{Page: 1, Limit: 10, MinPrice: &minPrice})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, b.ID, items[0].ID)

	items, _, err = r.Search(ctx, repo.ListingSearchQuery{Page: 1, Limit: 10, Q: "BASMATI"})
	require.NoError(t, err)
	require.Len(t, items, 1)

	items, _, err = r.Search(ctx, repo.ListingSearchQuery{Page: 1, Limit: 10, Sort: "price", Order: "asc"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, a.ID, items[0].ID)
	assert.Equal(t, b.ID, items[1].ID)
}

func TestListingSearch_Radius(t *testing.T) {
	gdb := testutil.NewDB(t)
	ctx := context.Background()
	farmer := testutil.MustUser(t, gdb, model.RoleFarmer, "farmer")
	v := testutil.MustVariety(t, gdb, "Jasmine")

	//マニラ近郊とセブ
	near := testutil.MustListing(t, gdb, farmer.ID, v.ID, 10, func(l *model.Listing) {
		l.Latitude, l.Longitude = ptr(14.60), ptr(121.00)
	})
	testutil.MustListing(t, gdb, farmer.ID, v.ID, 10, func(l *model.Listing) {
		l.Latitude, l.Longitude = ptr(10.31), ptr(123.89)
	})
	testutil.MustListing(t, gdb, farmer.ID, v.ID, 10)

	r := infraRepo.NewListingGormRepository(gdb)
	items, total, err := r.Search(ctx, repo.ListingSearchQuery{
		Page: 1, Limit: 10, Lat: ptr(14.5995), Lng: ptr(120.9842), RadiusKm: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.Equal(t, near.ID, items[0].ID)
}

func TestDistanceKm(t *testing.T) {
	assert.InDelta(t, 0.0, infraRepo.DistanceKm(14.6, 121.0, 14.6, 121.0), 1e-9)
	//マニラ〜セブはおよそ570km
	assert.InDelta(t, 570, infraRepo.DistanceKm(14.5995, 120.9842, 10.3157, 123.8854), 15)
}

func TestListingUpdateAndDelete(t *testing.T) {
	gdb := testutil.NewDB(t)
	ctx := context.Background()
	farmer := testutil.MustUser(t, gdb, model.RoleFarmer, "farmer")
	v := testutil.MustVariety(t, gdb, "Jasmine")
	l := testutil.MustListing(t, gdb, farmer.ID, v.ID, 100)

	r := infraRepo.NewListingGormRepository(gdb)

	l.PricePerUnit = testutil.Dec("25")
	l.IsOrganic = false
	require.NoError(t, r.Update(ctx, l))

	got, err := r.FindByID(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, got.PricePerUnit.Equal(testutil.Dec("25")))

	require.NoError(t, r.SoftDelete(ctx, l.ID))
	_, err = r.FindByID(ctx, l.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.ErrorIs(t, r.SoftDelete(ctx, l.ID), repo.ErrNotFound)
}
