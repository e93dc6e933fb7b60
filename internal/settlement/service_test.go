package settlement

import (
	"context"
	"testing"
	"time"

	"stayvest-backend/internal/constants"
	"stayvest-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupSettlementTest(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.User{}, &domain.Collection{}, &domain.Unit{}, &domain.PricingTier{},
		&domain.Payment{}, &domain.Ownership{}, &domain.InvestorProfile{},
		&domain.AffiliateProfile{}, &domain.AffiliateLink{}, &domain.AffiliateTransaction{},
	))
	return &Service{DB: db}, db
}

type fixture struct {
	collection domain.Collection
	units      []domain.Unit
	tier       domain.PricingTier
	buyer      domain.User
}

func seedFixture(t *testing.T, db *gorm.DB, unitCount, tierPercentage int, fiatPrice int64) fixture {
	t.Helper()
	f := fixture{
		collection: domain.Collection{Name: "Glamphouse", Slug: "glamphouse", IsActive: true},
		buyer:      domain.User{Fullname: "Buyer", Email: "buyer@example.com", Role: constants.UserRole},
	}
	require.NoError(t, db.Create(&f.collection).Error)
	require.NoError(t, db.Create(&f.buyer).Error)
	for i := 0; i < unitCount; i++ {
		u := domain.Unit{
			CollectionID: f.collection.CollectionID,
			Name:         string(rune('A' + i)),
			Status:       domain.UnitAvailable,
		}
		require.NoError(t, db.Create(&u).Error)
		f.units = append(f.units, u)
		time.Sleep(2 * time.Millisecond)
	}
	f.tier = domain.PricingTier{
		CollectionID: f.collection.CollectionID,
		Percentage:   tierPercentage,
		FiatPrice:    decimal.NewFromInt(fiatPrice),
		CryptoPrice:  decimal.NewFromInt(fiatPrice),
		IsActive:     true,
	}
	require.NoError(t, db.Create(&f.tier).Error)
	return f
}

func createPayment(t *testing.T, db *gorm.DB, f fixture, externalID string, amount int64) domain.Payment {
	t.Helper()
	p := domain.Payment{
		Provider:        domain.ProviderStripe,
		ExternalID:      externalID,
		UserID:          &f.buyer.UserID,
		Amount:          decimal.NewFromInt(amount),
		Currency:        "USD",
		Status:          domain.PaymentSuccess,
		CollectionID:    f.collection.CollectionID,
		PricingTierID:   f.tier.PricingTierID,
		PercentageToBuy: f.tier.Percentage,
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func settlementInput(f fixture, p domain.Payment) SettlementInput {
	return SettlementInput{
		PaymentID:       p.PaymentID,
		UserID:          f.buyer.UserID,
		CollectionID:    f.collection.CollectionID,
		PricingTierID:   f.tier.PricingTierID,
		PercentageToBuy: f.tier.Percentage,
		AmountPaid:      p.Amount,
		Currency:        "USD",
		PaymentMethod:   domain.MethodCard,
	}
}

func TestProcessSuccessfulPayment_CreatesOwnership(t *testing.T) {
	svc, db := setupSettlementTest(t)
	f := seedFixture(t, db, 1, 500, 72500)
	p := createPayment(t, db, f, "cs_1", 72500)

	res, err := svc.ProcessSuccessfulPayment(context.Background(), settlementInput(f, p))
	require.NoError(t, err)
	assert.False(t, res.AlreadyProcessed)
	assert.Equal(t, f.units[0].UnitID, res.UnitID)

	var ownership domain.Ownership
	require.NoError(t, db.Where("payment_id = ?", p.PaymentID).First(&ownership).Error)
	assert.Equal(t, 500, ownership.PercentageOwned)
	assert.Nil(t, ownership.ApprovalStatus)

	var payment domain.Payment
	require.NoError(t, db.First(&payment, "payment_id = ?", p.PaymentID).Error)
	assert.NotNil(t, payment.WebhookProcessedAt)

	// First purchase upgrades a default-role account to investor.
	var buyer domain.User
	require.NoError(t, db.First(&buyer, "user_id = ?", f.buyer.UserID).Error)
	assert.Equal(t, constants.Investor, buyer.Role)
}

func TestProcessSuccessfulPayment_Idempotent(t *testing.T) {
	svc, db := setupSettlementTest(t)
	f := seedFixture(t, db, 1, 500, 72500)
	p := createPayment(t, db, f, "cs_2", 72500)

	first, err := svc.ProcessSuccessfulPayment(context.Background(), settlementInput(f, p))
	require.NoError(t, err)
	second, err := svc.ProcessSuccessfulPayment(context.Background(), settlementInput(f, p))
	require.NoError(t, err)

	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, first.OwnershipID, second.OwnershipID)

	var count int64
	db.Model(&domain.Ownership{}).Count(&count)
	assert.Equal(t, int64(1), count)

	var profile domain.InvestorProfile
	require.NoError(t, db.Where("user_id = ?", f.buyer.UserID).First(&profile).Error)
	assert.Equal(t, 1, profile.TotalUnitsOwned)
	assert.True(t, profile.TotalInvested.Equal(decimal.NewFromInt(72500)))
}

func TestProcessSuccessfulPayment_NeverOversells(t *testing.T) {
	svc, db := setupSettlementTest(t)
	// One unit, 30% tier: exactly three settlements fit, the fourth must fail.
	f := seedFixture(t, db, 1, 3000, 10000)

	for i := 0; i < 3; i++ {
		p := createPayment(t, db, f, "cs_fill_"+string(rune('a'+i)), 10000)
		_, err := svc.ProcessSuccessfulPayment(context.Background(), settlementInput(f, p))
		require.NoError(t, err)
	}

	p := createPayment(t, db, f, "cs_overflow", 10000)
	_, err := svc.ProcessSuccessfulPayment(context.Background(), settlementInput(f, p))
	assert.ErrorIs(t, err, ErrNoAvailableUnit)

	var total int
	require.NoError(t, db.Model(&domain.Ownership{}).
		Select("COALESCE(SUM(percentage_owned), 0)").
		Where("unit_id = ?", f.units[0].UnitID).Scan(&total).Error)
	assert.LessOrEqual(t, total, domain.TotalUnitBasisPoints)
}

func TestProcessSuccessfulPayment_FirstFitInCreationOrder(t *testing.T) {
	svc, db := setupSettlementTest(t)
	f := seedFixture(t, db, 3, 6000, 50000)

	// 60% does not fit twice in one unit, so consecutive settlements walk
	// the units in creation order.
	var allocated []uuid.UUID
	for i := 0; i < 3; i++ {
		p := createPayment(t, db, f, "cs_order_"+string(rune('a'+i)), 50000)
		res, err := svc.ProcessSuccessfulPayment(context.Background(), settlementInput(f, p))
		require.NoError(t, err)
		allocated = append(allocated, res.UnitID)
	}
	assert.Equal(t, []uuid.UUID{f.units[0].UnitID, f.units[1].UnitID, f.units[2].UnitID}, allocated)
}

func TestProcessSuccessfulPayment_MarksUnitSoldOut(t *testing.T) {
	svc, db := setupSettlementTest(t)
	f := seedFixture(t, db, 1, 10000, 1450000)
	p := createPayment(t, db, f, "cs_full", 1450000)

	_, err := svc.ProcessSuccessfulPayment(context.Background(), settlementInput(f, p))
	require.NoError(t, err)

	var unit domain.Unit
	require.NoError(t, db.First(&unit, "unit_id = ?", f.units[0].UnitID).Error)
	assert.Equal(t, domain.UnitSoldOut, unit.Status)
}

func TestProcessSuccessfulPayment_CommissionUsesFiatPrice(t *testing.T) {
	svc, db := setupSettlementTest(t)
	f := seedFixture(t, db, 1, 500, 725000)

	affiliateUser := domain.User{Fullname: "Aff", Email: "aff@example.com"}
	require.NoError(t, db.Create(&affiliateUser).Error)
	profile := domain.AffiliateProfile{UserID: affiliateUser.UserID, CommissionRate: decimal.NewFromInt(5)}
	require.NoError(t, db.Create(&profile).Error)
	link := domain.AffiliateLink{AffiliateProfileID: profile.AffiliateProfileID, Code: "REF5"}
	require.NoError(t, db.Create(&link).Error)

	// Crypto-discounted amount paid; commission still comes off the fiat price.
	p := createPayment(t, db, f, "tx_crypto", 688750)
	in := settlementInput(f, p)
	in.PaymentMethod = domain.MethodCrypto
	in.AffiliateLinkID = &link.AffiliateLinkID

	_, err := svc.ProcessSuccessfulPayment(context.Background(), in)
	require.NoError(t, err)

	var tx domain.AffiliateTransaction
	require.NoError(t, db.Where("affiliate_link_id = ?", link.AffiliateLinkID).First(&tx).Error)
	assert.True(t, tx.CommissionAmount.Equal(decimal.NewFromInt(36250)), "got %s", tx.CommissionAmount)
	assert.True(t, tx.CommissionRate.Equal(decimal.NewFromInt(5)))
}

func TestProcessSuccessfulPayment_UnknownTier(t *testing.T) {
	svc, db := setupSettlementTest(t)
	f := seedFixture(t, db, 1, 500, 72500)
	p := createPayment(t, db, f, "cs_no_tier", 72500)

	in := settlementInput(f, p)
	in.PricingTierID = uuid.New()
	_, err := svc.ProcessSuccessfulPayment(context.Background(), in)
	assert.ErrorIs(t, err, ErrPricingTierNotFound)

	// Nothing was allocated and the failure is retryable.
	var count int64
	db.Model(&domain.Ownership{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestProcessSuccessfulPayment_PendingEntriesDoNotBlockBuyers(t *testing.T) {
	svc, db := setupSettlementTest(t)
	f := seedFixture(t, db, 1, 6000, 50000)

	// A staff entry awaiting approval covers 60% of the unit but must not
	// consume capacity yet.
	pending := domain.ApprovalPending
	require.NoError(t, db.Create(&domain.Ownership{
		UnitID: f.units[0].UnitID, UserID: f.buyer.UserID, PricingTierID: f.tier.PricingTierID,
		PercentageOwned: 6000, PurchasePrice: decimal.NewFromInt(50000),
		PaymentMethod: domain.MethodBankTransfer, Currency: "USD",
		ApprovalStatus: &pending,
	}).Error)

	p := createPayment(t, db, f, "cs_vs_pending", 50000)
	res, err := svc.ProcessSuccessfulPayment(context.Background(), settlementInput(f, p))
	require.NoError(t, err)
	assert.Equal(t, f.units[0].UnitID, res.UnitID)
}
