package payments

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"stayvest-backend/internal/affiliates"
	"stayvest-backend/internal/collections"
	"stayvest-backend/internal/domain"
	"stayvest-backend/internal/settlement"
	"stayvest-backend/internal/users"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// depayTestKeys generates the widget-side key pair and a signer configured
// the way production is: peer public key for verification, own private key
// for response signing.
func depayTestKeys(t *testing.T) (*rsa.PrivateKey, *DePaySigner) {
	t.Helper()
	peerKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	ownKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	peerPubDER, err := x509.MarshalPKIXPublicKey(&peerKey.PublicKey)
	require.NoError(t, err)
	peerPubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: peerPubDER})
	ownPrivDER, err := x509.MarshalPKCS8PrivateKey(ownKey)
	require.NoError(t, err)
	ownPrivPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: ownPrivDER})

	signer, err := NewDePaySigner(string(peerPubPEM), string(ownPrivPEM))
	require.NoError(t, err)
	return peerKey, signer
}

func peerSign(t *testing.T, key *rsa.PrivateKey, body []byte) string {
	t.Helper()
	h := sha256.Sum256(body)
	sig, err := rsa.SignPSS(rand.Reader, key, crypto.SHA256, h[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256,
	})
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(sig)
}

func setupDePayTest(t *testing.T) (*DePayHandler, *rsa.PrivateKey, *gorm.DB) {
	db := setupPaymentsDB(t)
	peerKey, signer := depayTestKeys(t)
	h := &DePayHandler{
		DB:          db,
		Signer:      signer,
		Receiver:    "0xReceiverWallet",
		Settlement:  &settlement.Service{DB: db},
		Users:       &users.Service{DB: db},
		Affiliates:  &affiliates.Service{DB: db},
		Collections: &collections.Service{DB: db},
	}
	return h, peerKey, db
}

func postDePay(t *testing.T, h *DePayHandler, path string, body []byte, sig string) (int, map[string]interface{}) {
	t.Helper()
	app := fiber.New()
	app.Post("/callback", h.HandleCallback)
	app.Post("/config", h.HandleConfig)
	req := httptest.NewRequest("POST", path, strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set("x-signature", sig)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var parsed map[string]interface{}
	_ = json.Unmarshal(raw, &parsed)
	// Every response must be signed so the widget can trust rejections too.
	assert.NotEmpty(t, resp.Header.Get("x-signature"))
	return resp.StatusCode, parsed
}

func ownershipCallback(collection domain.Collection, tier domain.PricingTier, tx, email string) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"blockchain":  "ethereum",
		"transaction": tx,
		"sender":      "0xSender",
		"receiver":    "0xReceiverWallet",
		"token":       "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		"amount":      "68875.00",
		"status":      "success",
		"payload": map[string]string{
			"type":            DePayPayloadOwnership,
			"collection_id":   collection.CollectionID.String(),
			"pricing_tier_id": tier.PricingTierID.String(),
			"email":           email,
			"fullname":        "Crypto Buyer",
		},
	})
	return body
}

func TestDePayCallback_InvalidSignature(t *testing.T) {
	h, _, _ := setupDePayTest(t)
	status, parsed := postDePay(t, h, "/callback", []byte(`{}`), "bm90LWEtc2ln")
	assert.Equal(t, 401, status)
	assert.Equal(t, "error", parsed["status"])
}

func TestDePayCallback_MissingSignature(t *testing.T) {
	h, _, _ := setupDePayTest(t)
	status, _ := postDePay(t, h, "/callback", []byte(`{}`), "")
	assert.Equal(t, 401, status)
}

func TestDePayCallback_SettlesOwnership(t *testing.T) {
	h, peerKey, db := setupDePayTest(t)
	collection, tier := seedOffering(t, db, 500, 72500)

	body := ownershipCallback(collection, tier, "0xabc123", "crypto@example.com")
	status, parsed := postDePay(t, h, "/callback", body, peerSign(t, peerKey, body))
	require.Equal(t, 200, status)
	assert.Equal(t, "success", parsed["status"])

	var payment domain.Payment
	require.NoError(t, db.Where("external_id = ?", "0xabc123").First(&payment).Error)
	assert.Equal(t, domain.ProviderDePay, payment.Provider)
	assert.Equal(t, "USDC", payment.Currency)

	var ownership domain.Ownership
	require.NoError(t, db.Where("payment_id = ?", payment.PaymentID).First(&ownership).Error)
	assert.Equal(t, domain.MethodCrypto, ownership.PaymentMethod)
	assert.Equal(t, 500, ownership.PercentageOwned)
}

func TestDePayCallback_Replay_AlreadyProcessed(t *testing.T) {
	h, peerKey, db := setupDePayTest(t)
	collection, tier := seedOffering(t, db, 500, 72500)

	body := ownershipCallback(collection, tier, "0xreplay", "replay@example.com")
	sig := peerSign(t, peerKey, body)

	status, _ := postDePay(t, h, "/callback", body, sig)
	require.Equal(t, 200, status)
	status, parsed := postDePay(t, h, "/callback", body, sig)
	require.Equal(t, 200, status)
	assert.Equal(t, "already_processed", parsed["status"])

	var count int64
	db.Model(&domain.Ownership{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestDePayCallback_BookingAcknowledged(t *testing.T) {
	h, peerKey, db := setupDePayTest(t)
	body, _ := json.Marshal(map[string]interface{}{
		"transaction": "0xbooking",
		"status":      "success",
		"payload":     map[string]string{"type": DePayPayloadBooking},
	})
	status, parsed := postDePay(t, h, "/callback", body, peerSign(t, peerKey, body))
	assert.Equal(t, 200, status)
	assert.Equal(t, "acknowledged", parsed["status"])

	var count int64
	db.Model(&domain.Payment{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestDePayCallback_FailedPaymentIgnored(t *testing.T) {
	h, peerKey, db := setupDePayTest(t)
	collection, tier := seedOffering(t, db, 500, 72500)

	body, _ := json.Marshal(map[string]interface{}{
		"transaction": "0xfailed",
		"status":      "failed",
		"payload": map[string]string{
			"type":            DePayPayloadOwnership,
			"collection_id":   collection.CollectionID.String(),
			"pricing_tier_id": tier.PricingTierID.String(),
			"email":           "nope@example.com",
		},
	})
	status, parsed := postDePay(t, h, "/callback", body, peerSign(t, peerKey, body))
	assert.Equal(t, 200, status)
	assert.Equal(t, "ignored", parsed["status"])

	var count int64
	db.Model(&domain.Payment{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestDePayConfig_AmountFromStoredTier(t *testing.T) {
	h, _, db := setupDePayTest(t)
	collection, tier := seedOffering(t, db, 500, 72500)

	body, _ := json.Marshal(map[string]string{
		"collection_id":   collection.CollectionID.String(),
		"pricing_tier_id": tier.PricingTierID.String(),
	})
	status, parsed := postDePay(t, h, "/config", body, "")
	require.Equal(t, 200, status)

	accept, ok := parsed["accept"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, accept)
	first := accept[0].(map[string]interface{})
	assert.Equal(t, "68875.00", first["amount"])
	assert.Equal(t, "0xReceiverWallet", first["receiver"])
}
