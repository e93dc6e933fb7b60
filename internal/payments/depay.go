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
	"errors"
	"fmt"
	"strings"

	"stayvest-backend/internal/affiliates"
	"stayvest-backend/internal/collections"
	"stayvest-backend/internal/domain"
	"stayvest-backend/internal/settlement"
	"stayvest-backend/internal/users"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DePay payload types. Only OWNERSHIP payments settle shares; BOOKING
// payments are acknowledged and handled by the booking flow.
const (
	DePayPayloadOwnership = "OWNERSHIP"
	DePayPayloadBooking   = "BOOKING"
)

// depayToken maps an on-chain token contract to the currency we record.
type depayToken struct {
	Blockchain string
	Address    string
	Currency   string
	Decimals   int
}

// acceptedTokens is the static allow-list served by the config endpoint.
// The zero address denotes the chain's native coin.
var acceptedTokens = []depayToken{
	{Blockchain: "ethereum", Address: "0x0000000000000000000000000000000000000000", Currency: "ETH", Decimals: 18},
	{Blockchain: "ethereum", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Currency: "USDC", Decimals: 6},
	{Blockchain: "ethereum", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Currency: "USDT", Decimals: 6},
	{Blockchain: "arbitrum", Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Currency: "USDC", Decimals: 6},
	{Blockchain: "bsc", Address: "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d", Currency: "USDC", Decimals: 18},
}

func tokenCurrency(blockchain, address string) string {
	for _, t := range acceptedTokens {
		if strings.EqualFold(t.Blockchain, blockchain) && strings.EqualFold(t.Address, address) {
			return t.Currency
		}
	}
	// Unknown token still records something auditable.
	return strings.ToUpper(blockchain)
}

// DePaySigner holds the RSA key pair for the DePay channel: their public
// key verifies incoming callbacks, our private key signs every response.
type DePaySigner struct {
	peerKey *rsa.PublicKey
	ownKey  *rsa.PrivateKey
}

func NewDePaySigner(peerPublicPEM, ownPrivatePEM string) (*DePaySigner, error) {
	s := &DePaySigner{}
	if peerPublicPEM != "" {
		block, _ := pem.Decode([]byte(peerPublicPEM))
		if block == nil {
			return nil, errors.New("invalid DePay public key PEM")
		}
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse DePay public key: %w", err)
		}
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("DePay public key is not RSA")
		}
		s.peerKey = rsaPub
	}
	if ownPrivatePEM != "" {
		block, _ := pem.Decode([]byte(ownPrivatePEM))
		if block == nil {
			return nil, errors.New("invalid DePay private key PEM")
		}
		var priv any
		priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			priv, err = x509.ParsePKCS1PrivateKey(block.Bytes)
		}
		if err != nil {
			return nil, fmt.Errorf("parse DePay private key: %w", err)
		}
		rsaPriv, ok := priv.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("DePay private key is not RSA")
		}
		s.ownKey = rsaPriv
	}
	return s, nil
}

// Verify checks a base64url RSA-PSS SHA-256 signature over body.
func (s *DePaySigner) Verify(body []byte, signature string) error {
	if s.peerKey == nil {
		return errors.New("DePay public key not configured")
	}
	sig, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return errors.New("signature is not valid base64url")
	}
	h := sha256.Sum256(body)
	opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256}
	if err := rsa.VerifyPSS(s.peerKey, crypto.SHA256, h[:], sig, opts); err != nil {
		return errors.New("signature mismatch")
	}
	return nil
}

// Sign produces the base64url RSA-PSS SHA-256 signature for body.
func (s *DePaySigner) Sign(body []byte) (string, error) {
	if s.ownKey == nil {
		return "", nil
	}
	h := sha256.Sum256(body)
	opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256}
	sig, err := rsa.SignPSS(rand.Reader, s.ownKey, crypto.SHA256, h[:], opts)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(sig), nil
}

// DePayHandler serves the crypto rail: the payment callback and the
// widget configuration endpoint.
type DePayHandler struct {
	DB          *gorm.DB
	Signer      *DePaySigner
	Receiver    string
	Settlement  *settlement.Service
	Users       *users.Service
	Affiliates  *affiliates.Service
	Collections *collections.Service
}

type depayPayload struct {
	Type          string `json:"type"`
	CollectionID  string `json:"collection_id"`
	PricingTierID string `json:"pricing_tier_id"`
	Email         string `json:"email"`
	Fullname      string `json:"fullname"`
	UserID        string `json:"user_id"`
	AffiliateCode string `json:"affiliate_code"`
}

type depayCallback struct {
	Blockchain  string       `json:"blockchain"`
	Transaction string       `json:"transaction"`
	Sender      string       `json:"sender"`
	Receiver    string       `json:"receiver"`
	Token       string       `json:"token"`
	Amount      string       `json:"amount"`
	Status      string       `json:"status"`
	Payload     depayPayload `json:"payload"`
}

// respondSigned sends a JSON body with our signature in x-signature.
// Error responses are signed too so the widget can trust rejections.
func (h *DePayHandler) respondSigned(c *fiber.Ctx, status int, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return c.SendStatus(500)
	}
	sig, err := h.Signer.Sign(raw)
	if err != nil {
		log.Error().Err(err).Msg("DePay response signing failed")
		return c.SendStatus(500)
	}
	if sig != "" {
		c.Set("x-signature", sig)
	}
	c.Set("Content-Type", "application/json")
	return c.Status(status).Send(raw)
}

// HandleCallback POST /api/v1/depay/callback. DePay retries on non-2xx,
// so settled and already-settled both answer 200.
func (h *DePayHandler) HandleCallback(c *fiber.Ctx) error {
	rawBody := c.BodyRaw()
	if err := h.Signer.Verify(rawBody, c.Get("x-signature")); err != nil {
		log.Warn().Err(err).Msg("DePay callback signature verification failed")
		return h.respondSigned(c, 401, fiber.Map{"status": "error", "message": "Invalid signature"})
	}

	var cb depayCallback
	if err := json.Unmarshal(rawBody, &cb); err != nil {
		return h.respondSigned(c, 400, fiber.Map{"status": "error", "message": "Malformed payload"})
	}
	if cb.Transaction == "" {
		return h.respondSigned(c, 400, fiber.Map{"status": "error", "message": "Missing transaction hash"})
	}
	if cb.Status != "" && !strings.EqualFold(cb.Status, "success") {
		log.Info().Str("tx", cb.Transaction).Str("depay_status", cb.Status).Msg("DePay reported non-success payment, ignoring")
		return h.respondSigned(c, 200, fiber.Map{"status": "ignored"})
	}

	if cb.Payload.Type == DePayPayloadBooking {
		// Bookings are settled by the reservation flow, not share allocation.
		return h.respondSigned(c, 200, fiber.Map{"status": "acknowledged"})
	}
	if cb.Payload.Type != DePayPayloadOwnership {
		log.Warn().Str("tx", cb.Transaction).Str("type", cb.Payload.Type).Msg("DePay callback with unknown payload type")
		return h.respondSigned(c, 200, fiber.Map{"status": "ignored"})
	}

	// Replayed callbacks short-circuit on the tx hash.
	var existing domain.Payment
	if err := h.DB.WithContext(c.Context()).Where("external_id = ?", cb.Transaction).First(&existing).Error; err == nil {
		return h.respondSigned(c, 200, fiber.Map{"status": "already_processed"})
	}

	collectionID, err := uuid.Parse(cb.Payload.CollectionID)
	if err != nil {
		return h.respondSigned(c, 400, fiber.Map{"status": "error", "message": "Invalid collection id"})
	}
	tierID, err := uuid.Parse(cb.Payload.PricingTierID)
	if err != nil {
		return h.respondSigned(c, 400, fiber.Map{"status": "error", "message": "Invalid pricing tier id"})
	}
	if cb.Payload.Email == "" {
		return h.respondSigned(c, 400, fiber.Map{"status": "error", "message": "Missing buyer email"})
	}

	buyer, isNew, err := h.Users.GetOrCreateUser(c.Context(), cb.Payload.Email, cb.Payload.Fullname)
	if err != nil {
		log.Error().Err(err).Str("tx", cb.Transaction).Msg("DePay buyer resolution failed")
		return h.respondSigned(c, 500, fiber.Map{"status": "error", "message": "Internal error"})
	}

	var affiliateLinkID *uuid.UUID
	if cb.Payload.AffiliateCode != "" {
		link, err := h.Affiliates.ResolveCode(c.Context(), cb.Payload.AffiliateCode)
		if err == nil && link != nil {
			affiliateLinkID = &link.AffiliateLinkID
		}
	}

	amount, err := decimal.NewFromString(cb.Amount)
	if err != nil {
		amount = decimal.Zero
	}

	tier, err := h.Collections.ActiveTier(c.Context(), collectionID, tierID)
	if err != nil || tier == nil {
		return h.respondSigned(c, 400, fiber.Map{"status": "error", "message": "Pricing tier is not available for this collection"})
	}

	payment := domain.Payment{
		Provider:        domain.ProviderDePay,
		ExternalID:      cb.Transaction,
		UserID:          &buyer.UserID,
		Amount:          amount,
		Currency:        tokenCurrency(cb.Blockchain, cb.Token),
		Status:          domain.PaymentSuccess,
		CollectionID:    collectionID,
		PricingTierID:   tierID,
		PercentageToBuy: tier.Percentage,
		AffiliateLinkID: affiliateLinkID,
		Metadata:        datatypes.JSON(rawBody),
	}
	if err := h.DB.WithContext(c.Context()).Create(&payment).Error; err != nil {
		// Lost a race against a concurrent replay of the same tx hash.
		if errUnique := h.DB.WithContext(c.Context()).Where("external_id = ?", cb.Transaction).First(&existing).Error; errUnique == nil {
			return h.respondSigned(c, 200, fiber.Map{"status": "already_processed"})
		}
		log.Error().Err(err).Str("tx", cb.Transaction).Msg("DePay payment insert failed")
		return h.respondSigned(c, 500, fiber.Map{"status": "error", "message": "Internal error"})
	}

	result, err := h.Settlement.ProcessSuccessfulPayment(c.Context(), settlement.SettlementInput{
		PaymentID:       payment.PaymentID,
		UserID:          buyer.UserID,
		CollectionID:    collectionID,
		PricingTierID:   tierID,
		PercentageToBuy: tier.Percentage,
		AmountPaid:      amount,
		Currency:        payment.Currency,
		PaymentMethod:   domain.MethodCrypto,
		AffiliateLinkID: affiliateLinkID,
		IsNewUser:       isNew,
	})
	if err != nil {
		if isBusinessError(err) {
			log.Warn().Err(err).Str("tx", cb.Transaction).Msg("DePay settlement hit business failure, payment left unsettled")
			return h.respondSigned(c, 200, fiber.Map{"status": "unsettled", "message": err.Error()})
		}
		log.Error().Err(err).Str("tx", cb.Transaction).Msg("DePay settlement failed")
		return h.respondSigned(c, 500, fiber.Map{"status": "error", "message": "Internal error"})
	}
	if result.AlreadyProcessed {
		return h.respondSigned(c, 200, fiber.Map{"status": "already_processed"})
	}
	return h.respondSigned(c, 200, fiber.Map{"status": "success", "ownership_id": result.OwnershipID})
}

type depayConfigRequest struct {
	CollectionID  string `json:"collection_id"`
	PricingTierID string `json:"pricing_tier_id"`
}

type depayAcceptEntry struct {
	Blockchain string `json:"blockchain"`
	Token      string `json:"token"`
	Amount     string `json:"amount"`
	Receiver   string `json:"receiver"`
}

// HandleConfig POST /api/v1/depay/config. The widget asks which tokens we
// accept and for how much; the amount always comes from the stored tier's
// crypto price so a tampered client cannot discount itself.
func (h *DePayHandler) HandleConfig(c *fiber.Ctx) error {
	var req depayConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return h.respondSigned(c, 400, fiber.Map{"status": "error", "message": "Malformed payload"})
	}
	collectionID, err := uuid.Parse(req.CollectionID)
	if err != nil {
		return h.respondSigned(c, 400, fiber.Map{"status": "error", "message": "Invalid collection id"})
	}
	tierID, err := uuid.Parse(req.PricingTierID)
	if err != nil {
		return h.respondSigned(c, 400, fiber.Map{"status": "error", "message": "Invalid pricing tier id"})
	}
	tier, err := h.Collections.ActiveTier(c.Context(), collectionID, tierID)
	if err != nil || tier == nil {
		return h.respondSigned(c, 400, fiber.Map{"status": "error", "message": "Pricing tier is not available for this collection"})
	}

	accept := make([]depayAcceptEntry, 0, len(acceptedTokens))
	for _, t := range acceptedTokens {
		accept = append(accept, depayAcceptEntry{
			Blockchain: t.Blockchain,
			Token:      t.Address,
			Amount:     tier.CryptoPrice.StringFixed(2),
			Receiver:   h.Receiver,
		})
	}
	return h.respondSigned(c, 200, fiber.Map{"accept": accept})
}
