package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stayvest-backend/internal/affiliates"
	"stayvest-backend/internal/domain"
	"stayvest-backend/internal/settlement"
	"stayvest-backend/internal/users"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "whsec_test_secret_123"

func setupPaymentsDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.User{}, &domain.Collection{}, &domain.Unit{}, &domain.PricingTier{},
		&domain.Payment{}, &domain.Ownership{}, &domain.InvestorProfile{},
		&domain.AffiliateProfile{}, &domain.AffiliateLink{}, &domain.AffiliateTransaction{},
		&domain.Document{},
	))
	return db
}

func setupWebhookTest(t *testing.T) (*StripeWebhookHandler, *gorm.DB) {
	db := setupPaymentsDB(t)
	wh := &StripeWebhookHandler{
		DB:            db,
		WebhookSecret: testSecret,
		Settlement:    &settlement.Service{DB: db},
		Users:         &users.Service{DB: db},
		Affiliates:    &affiliates.Service{DB: db},
	}
	return wh, db
}

// seedOffering creates a collection with two units and one active tier.
func seedOffering(t *testing.T, db *gorm.DB, percentage int, fiatPrice int64) (domain.Collection, domain.PricingTier) {
	t.Helper()
	collection := domain.Collection{Name: "Glamphouse", Slug: "glamphouse", IsActive: true}
	require.NoError(t, db.Create(&collection).Error)
	for _, name := range []string{"Glamphouse A1", "Glamphouse A2"} {
		require.NoError(t, db.Create(&domain.Unit{
			CollectionID: collection.CollectionID, Name: name, Status: domain.UnitAvailable,
		}).Error)
		time.Sleep(2 * time.Millisecond) // distinct created_at for allocation order
	}
	tier := domain.PricingTier{
		CollectionID: collection.CollectionID,
		Percentage:   percentage,
		FiatPrice:    decimal.NewFromInt(fiatPrice),
		CryptoPrice:  decimal.NewFromInt(fiatPrice).Mul(decimal.NewFromFloat(0.95)),
		IsActive:     true,
	}
	require.NoError(t, db.Create(&tier).Error)
	return collection, tier
}

func signPayload(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	ts := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "." + string(payload)))
	sig := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%s,v1=%s", ts, sig)
}

func postWebhook(t *testing.T, wh *StripeWebhookHandler, body []byte, sig string) int {
	t.Helper()
	app := fiber.New()
	app.Post("/webhook", wh.HandleWebhook)
	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set("stripe-signature", sig)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func checkoutCompletedEvent(sessionID string, amountCents int64, metadata map[string]string) []byte {
	event := map[string]interface{}{
		"id":   "evt_" + sessionID,
		"type": "checkout.session.completed",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":             sessionID,
				"amount_total":   amountCents,
				"currency":       "usd",
				"payment_status": "paid",
				"metadata":       metadata,
			},
		},
	}
	body, _ := json.Marshal(event)
	return body
}

func TestWebhook_MissingSignature(t *testing.T) {
	wh, _ := setupWebhookTest(t)
	assert.Equal(t, 400, postWebhook(t, wh, []byte(`{}`), ""))
}

func TestWebhook_InvalidSignature(t *testing.T) {
	wh, _ := setupWebhookTest(t)
	body := []byte(`{"type":"checkout.session.completed"}`)
	assert.Equal(t, 400, postWebhook(t, wh, body, "t=123,v1=invalid"))
}

func TestWebhook_UnhandledEventType_Returns200(t *testing.T) {
	wh, _ := setupWebhookTest(t)
	event := map[string]interface{}{
		"id":   "evt_test_123",
		"type": "charge.succeeded",
		"data": map[string]interface{}{"object": map[string]interface{}{}},
	}
	body, _ := json.Marshal(event)
	assert.Equal(t, 200, postWebhook(t, wh, body, signPayload(t, body, testSecret)))
}

func TestWebhook_CheckoutCompleted_SettlesOwnership(t *testing.T) {
	wh, db := setupWebhookTest(t)
	collection, tier := seedOffering(t, db, 500, 72500)

	body := checkoutCompletedEvent("cs_test_001", 7250000, map[string]string{
		"collection_id":   collection.CollectionID.String(),
		"pricing_tier_id": tier.PricingTierID.String(),
		"email":           "guest@example.com",
		"fullname":        "Guest Buyer",
		"percentage":      "500",
	})
	assert.Equal(t, 200, postWebhook(t, wh, body, signPayload(t, body, testSecret)))

	var payment domain.Payment
	require.NoError(t, db.Where("external_id = ?", "cs_test_001").First(&payment).Error)
	assert.Equal(t, domain.ProviderStripe, payment.Provider)
	assert.Equal(t, "USD", payment.Currency)
	assert.True(t, payment.Amount.Equal(decimal.NewFromInt(72500)))

	// Guest account was created and owns the settled percentage.
	var buyer domain.User
	require.NoError(t, db.Where("email = ?", "guest@example.com").First(&buyer).Error)
	var ownership domain.Ownership
	require.NoError(t, db.Where("payment_id = ?", payment.PaymentID).First(&ownership).Error)
	assert.Equal(t, buyer.UserID, ownership.UserID)
	assert.Equal(t, 500, ownership.PercentageOwned)
	assert.Equal(t, domain.MethodCard, ownership.PaymentMethod)

	var profile domain.InvestorProfile
	require.NoError(t, db.Where("user_id = ?", buyer.UserID).First(&profile).Error)
	assert.Equal(t, 1, profile.TotalUnitsOwned)
}

func TestWebhook_Replay_DoesNotDuplicateOwnership(t *testing.T) {
	wh, db := setupWebhookTest(t)
	collection, tier := seedOffering(t, db, 1000, 145000)

	body := checkoutCompletedEvent("cs_test_replay", 14500000, map[string]string{
		"collection_id":   collection.CollectionID.String(),
		"pricing_tier_id": tier.PricingTierID.String(),
		"email":           "replay@example.com",
		"percentage":      "1000",
	})
	sig := signPayload(t, body, testSecret)
	assert.Equal(t, 200, postWebhook(t, wh, body, sig))
	assert.Equal(t, 200, postWebhook(t, wh, body, sig))

	var paymentCount, ownershipCount int64
	db.Model(&domain.Payment{}).Where("external_id = ?", "cs_test_replay").Count(&paymentCount)
	db.Model(&domain.Ownership{}).Count(&ownershipCount)
	assert.Equal(t, int64(1), paymentCount)
	assert.Equal(t, int64(1), ownershipCount)

	var profile domain.InvestorProfile
	var buyer domain.User
	require.NoError(t, db.Where("email = ?", "replay@example.com").First(&buyer).Error)
	require.NoError(t, db.Where("user_id = ?", buyer.UserID).First(&profile).Error)
	assert.True(t, profile.TotalInvested.Equal(decimal.NewFromInt(145000)), "replay must not double-count the aggregate")
}

func TestWebhook_CommissionComputedFromFiatPrice(t *testing.T) {
	wh, db := setupWebhookTest(t)
	collection, tier := seedOffering(t, db, 500, 725000)

	affiliateUser := domain.User{Fullname: "Affiliate", Email: "aff@example.com", Role: "investor"}
	require.NoError(t, db.Create(&affiliateUser).Error)
	profile, err := wh.Affiliates.CreateProfile(context.Background(), affiliateUser.UserID, decimal.NewFromInt(5))
	require.NoError(t, err)
	link, err := wh.Affiliates.CreateLink(context.Background(), profile.AffiliateProfileID, "SUMMER5")
	require.NoError(t, err)

	// Paid amount deliberately differs from the tier fiat price; the
	// commission base stays the fiat price.
	body := checkoutCompletedEvent("cs_test_aff", 1010000, map[string]string{
		"collection_id":   collection.CollectionID.String(),
		"pricing_tier_id": tier.PricingTierID.String(),
		"email":           "buyer@example.com",
		"affiliate_code":  "SUMMER5",
		"percentage":      "500",
	})
	assert.Equal(t, 200, postWebhook(t, wh, body, signPayload(t, body, testSecret)))

	var tx domain.AffiliateTransaction
	require.NoError(t, db.Where("affiliate_link_id = ?", link.AffiliateLinkID).First(&tx).Error)
	assert.Equal(t, "36250", tx.CommissionAmount.String())

	var updated domain.AffiliateProfile
	require.NoError(t, db.Where("affiliate_profile_id = ?", profile.AffiliateProfileID).First(&updated).Error)
	assert.True(t, updated.TotalEarned.Equal(decimal.NewFromInt(36250)))
	var updatedLink domain.AffiliateLink
	require.NoError(t, db.Where("affiliate_link_id = ?", link.AffiliateLinkID).First(&updatedLink).Error)
	assert.Equal(t, 1, updatedLink.ConversionCount)
}

func TestWebhook_SoldOut_Returns200_PaymentStaysUnsettled(t *testing.T) {
	wh, db := setupWebhookTest(t)
	collection, tier := seedOffering(t, db, 6000, 100000)

	// Fill both units so a 60% request cannot fit anywhere.
	filler := domain.User{Fullname: "Filler", Email: "filler@example.com"}
	require.NoError(t, db.Create(&filler).Error)
	var units []domain.Unit
	require.NoError(t, db.Where("collection_id = ?", collection.CollectionID).Find(&units).Error)
	for _, u := range units {
		pid := uuid.New()
		require.NoError(t, db.Create(&domain.Payment{
			PaymentID: pid, Provider: domain.ProviderManual, ExternalID: "seed-" + u.UnitID.String(),
			Amount: decimal.NewFromInt(1), Currency: "USD", Status: domain.PaymentSuccess,
			CollectionID: collection.CollectionID, PricingTierID: tier.PricingTierID, PercentageToBuy: 5000,
		}).Error)
		require.NoError(t, db.Create(&domain.Ownership{
			UnitID: u.UnitID, UserID: filler.UserID, PricingTierID: tier.PricingTierID,
			PercentageOwned: 5000, PurchasePrice: decimal.NewFromInt(1),
			PaymentMethod: domain.MethodBankTransfer, Currency: "USD", PaymentID: &pid,
		}).Error)
	}

	body := checkoutCompletedEvent("cs_test_soldout", 10000000, map[string]string{
		"collection_id":   collection.CollectionID.String(),
		"pricing_tier_id": tier.PricingTierID.String(),
		"email":           "late@example.com",
		"percentage":      "6000",
	})
	assert.Equal(t, 200, postWebhook(t, wh, body, signPayload(t, body, testSecret)))

	// The payment is recorded for manual resolution but nothing was allocated.
	var payment domain.Payment
	require.NoError(t, db.Where("external_id = ?", "cs_test_soldout").First(&payment).Error)
	var count int64
	db.Model(&domain.Ownership{}).Where("payment_id = ?", payment.PaymentID).Count(&count)
	assert.Equal(t, int64(0), count)
}
