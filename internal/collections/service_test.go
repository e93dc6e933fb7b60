package collections

import (
	"context"
	"testing"
	"time"

	"stayvest-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupCollectionsTest(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Collection{}, &domain.Unit{}, &domain.PricingTier{}, &domain.Ownership{},
	))
	return &Service{DB: db}, db
}

func TestCreateCollection_SlugHandling(t *testing.T) {
	svc, _ := setupCollectionsTest(t)

	c, err := svc.CreateCollection(context.Background(), CreateCollectionInput{Name: "The Glamphouse"})
	require.NoError(t, err)
	assert.Equal(t, "the-glamphouse", c.Slug)
	assert.True(t, c.IsActive)

	_, err = svc.CreateCollection(context.Background(), CreateCollectionInput{
		Name: "Another", Slug: "The-Glamphouse",
	})
	require.Error(t, err)
	assert.Equal(t, "Collection slug already in use", err.Error())

	_, err = svc.CreateCollection(context.Background(), CreateCollectionInput{Name: "  "})
	require.Error(t, err)
	assert.Equal(t, "Collection name is required", err.Error())
}

func TestDeleteCollection_BlockedByDependents(t *testing.T) {
	svc, _ := setupCollectionsTest(t)

	c, err := svc.CreateCollection(context.Background(), CreateCollectionInput{Name: "Empty"})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteCollection(context.Background(), c.CollectionID))

	c, err = svc.CreateCollection(context.Background(), CreateCollectionInput{Name: "Occupied"})
	require.NoError(t, err)
	_, err = svc.CreateUnit(context.Background(), c.CollectionID, "A1", "")
	require.NoError(t, err)

	err = svc.DeleteCollection(context.Background(), c.CollectionID)
	require.Error(t, err)
	assert.Equal(t, "Collection has units or pricing tiers and cannot be deleted", err.Error())

	err = svc.DeleteCollection(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, "Collection not found", err.Error())
}

func TestCreateTier_Validation(t *testing.T) {
	svc, _ := setupCollectionsTest(t)
	c, err := svc.CreateCollection(context.Background(), CreateCollectionInput{Name: "Tiers"})
	require.NoError(t, err)

	tier, err := svc.CreateTier(context.Background(), CreateTierInput{
		CollectionID: c.CollectionID, Percentage: 500,
		CryptoPrice: decimal.NewFromInt(68875), FiatPrice: decimal.NewFromInt(72500),
		DisplayLabel: "5%",
	})
	require.NoError(t, err)
	assert.True(t, tier.IsActive)

	_, err = svc.CreateTier(context.Background(), CreateTierInput{
		CollectionID: c.CollectionID, Percentage: 500,
		CryptoPrice: decimal.NewFromInt(1), FiatPrice: decimal.NewFromInt(1),
	})
	require.Error(t, err)
	assert.Equal(t, "A tier with this percentage already exists for the collection", err.Error())

	_, err = svc.CreateTier(context.Background(), CreateTierInput{
		CollectionID: c.CollectionID, Percentage: 10001,
		CryptoPrice: decimal.NewFromInt(1), FiatPrice: decimal.NewFromInt(1),
	})
	require.Error(t, err)
	assert.Equal(t, "Percentage must be between 1 and 10000 basis points", err.Error())

	_, err = svc.CreateTier(context.Background(), CreateTierInput{
		CollectionID: c.CollectionID, Percentage: 100,
		CryptoPrice: decimal.Zero, FiatPrice: decimal.NewFromInt(1),
	})
	require.Error(t, err)
	assert.Equal(t, "Tier prices must be positive", err.Error())
}

func TestActiveTier_TamperAndValidityChecks(t *testing.T) {
	svc, _ := setupCollectionsTest(t)
	first, err := svc.CreateCollection(context.Background(), CreateCollectionInput{Name: "First"})
	require.NoError(t, err)
	second, err := svc.CreateCollection(context.Background(), CreateCollectionInput{Name: "Second"})
	require.NoError(t, err)

	tier, err := svc.CreateTier(context.Background(), CreateTierInput{
		CollectionID: first.CollectionID, Percentage: 500,
		CryptoPrice: decimal.NewFromInt(68875), FiatPrice: decimal.NewFromInt(72500),
	})
	require.NoError(t, err)

	got, err := svc.ActiveTier(context.Background(), first.CollectionID, tier.PricingTierID)
	require.NoError(t, err)
	assert.Equal(t, tier.PricingTierID, got.PricingTierID)

	// A tier cannot be paired with a different collection.
	_, err = svc.ActiveTier(context.Background(), second.CollectionID, tier.PricingTierID)
	require.Error(t, err)
	assert.Equal(t, "Pricing tier does not belong to this collection", err.Error())

	_, err = svc.ActiveTier(context.Background(), first.CollectionID, uuid.New())
	require.Error(t, err)
	assert.Equal(t, "Pricing tier not found", err.Error())

	// Expired validity window.
	past := time.Now().Add(-time.Hour)
	expired, err := svc.CreateTier(context.Background(), CreateTierInput{
		CollectionID: first.CollectionID, Percentage: 1000,
		CryptoPrice: decimal.NewFromInt(1), FiatPrice: decimal.NewFromInt(1),
		ValidUntil: &past,
	})
	require.NoError(t, err)
	_, err = svc.ActiveTier(context.Background(), first.CollectionID, expired.PricingTierID)
	require.Error(t, err)
	assert.Equal(t, "Pricing tier is not active", err.Error())
}

func TestGetBySlug_ReturnsTiersAndAvailability(t *testing.T) {
	svc, db := setupCollectionsTest(t)
	c, err := svc.CreateCollection(context.Background(), CreateCollectionInput{Name: "Glamphouse"})
	require.NoError(t, err)
	unit, err := svc.CreateUnit(context.Background(), c.CollectionID, "A1", "")
	require.NoError(t, err)
	_, err = svc.CreateTier(context.Background(), CreateTierInput{
		CollectionID: c.CollectionID, Percentage: 500,
		CryptoPrice: decimal.NewFromInt(68875), FiatPrice: decimal.NewFromInt(72500),
	})
	require.NoError(t, err)

	pid := uuid.New()
	require.NoError(t, db.Create(&domain.Ownership{
		UnitID: unit.UnitID, UserID: uuid.New(), PricingTierID: uuid.New(),
		PercentageOwned: 500, PurchasePrice: decimal.NewFromInt(72500),
		PaymentMethod: domain.MethodCard, Currency: "USD", PaymentID: &pid,
	}).Error)

	detail, err := svc.GetBySlug(context.Background(), "Glamphouse")
	require.NoError(t, err)
	assert.Equal(t, c.CollectionID, detail.Collection.CollectionID)
	require.Len(t, detail.Tiers, 1)
	require.Len(t, detail.Availability, 1)
	assert.Equal(t, 9500, detail.Availability[0].RemainingBP)

	_, err = svc.GetBySlug(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, "Collection not found", err.Error())
}

func TestCreateUnit_Validation(t *testing.T) {
	svc, _ := setupCollectionsTest(t)
	c, err := svc.CreateCollection(context.Background(), CreateCollectionInput{Name: "Units"})
	require.NoError(t, err)

	u, err := svc.CreateUnit(context.Background(), c.CollectionID, "A1", "")
	require.NoError(t, err)
	assert.Equal(t, domain.UnitAvailable, u.Status)

	_, err = svc.CreateUnit(context.Background(), c.CollectionID, "A2", "BROKEN")
	require.Error(t, err)
	assert.Equal(t, "Invalid unit status", err.Error())

	_, err = svc.CreateUnit(context.Background(), uuid.New(), "A3", "")
	require.Error(t, err)
	assert.Equal(t, "Collection not found", err.Error())
}
