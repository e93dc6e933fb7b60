package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"stayvest-backend/internal/affiliates"
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

// StripeWebhookHandler turns checkout.session.completed events into
// settlements. Mounted on the raw body before any body-consuming middleware.
type StripeWebhookHandler struct {
	DB            *gorm.DB
	WebhookSecret string
	Settlement    *settlement.Service
	Users         *users.Service
	Affiliates    *affiliates.Service
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutSessionObject struct {
	ID            string            `json:"id"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	PaymentStatus string            `json:"payment_status"`
	CustomerEmail string            `json:"customer_email"`
	Metadata      map[string]string `json:"metadata"`
}

// HandleWebhook POST /api/v1/stripe/webhook. Signature failures and
// malformed payloads get 400; business failures inside a valid event get
// 200 so Stripe does not retry forever (the idempotency key makes any
// retry that does happen safe), and only unexpected processing errors
// get 500 to request a retry.
func (h *StripeWebhookHandler) HandleWebhook(c *fiber.Ctx) error {
	rawBody := c.BodyRaw()
	sig := c.Get("Stripe-Signature")

	if len(rawBody) == 0 {
		log.Warn().Msg("Stripe webhook received empty body (ensure no global body parser consumes the webhook body)")
		return c.Status(400).SendString("Webhook Error: empty body")
	}

	if err := verifyStripeSignature(rawBody, sig, h.WebhookSecret); err != nil {
		log.Warn().Err(err).Bool("has_sig", sig != "").Bool("has_secret", h.WebhookSecret != "").Msg("Stripe webhook signature verification failed")
		return c.Status(400).SendString(fmt.Sprintf("Webhook Error: %s", err.Error()))
	}

	var event stripeEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		log.Warn().Err(err).Msg("Stripe webhook JSON parse failed")
		return c.Status(400).SendString(fmt.Sprintf("Webhook Error: %s", err.Error()))
	}

	if event.Type == "checkout.session.completed" {
		var session checkoutSessionObject
		if err := json.Unmarshal(event.Data.Object, &session); err != nil {
			return c.Status(200).SendString("ok")
		}
		if err := h.handleCheckoutCompleted(c, session, rawBody); err != nil {
			log.Error().Err(err).Str("session_id", session.ID).Msg("Stripe checkout settlement failed")
			return c.Status(500).SendString("processing error")
		}
	}

	return c.Status(200).SendString("ok")
}

// handleCheckoutCompleted normalizes the session into the settlement
// contract. Business failures (sold out, unknown tier) are logged and
// swallowed: the payment row stays unsettled for manual resolution.
func (h *StripeWebhookHandler) handleCheckoutCompleted(c *fiber.Ctx, session checkoutSessionObject, rawBody []byte) error {
	meta := session.Metadata
	collectionIDStr := meta["collection_id"]
	tierIDStr := meta["pricing_tier_id"]
	email := meta["email"]
	if email == "" {
		email = session.CustomerEmail
	}
	if collectionIDStr == "" || tierIDStr == "" || email == "" {
		log.Warn().Str("session_id", session.ID).Msg("Stripe session missing required metadata, skipping")
		return nil
	}
	collectionID, err := uuid.Parse(collectionIDStr)
	if err != nil {
		return nil
	}
	tierID, err := uuid.Parse(tierIDStr)
	if err != nil {
		return nil
	}

	// Adapter-level idempotency: a replayed event for a session we already
	// recorded defers to the pipeline's own payment-id check.
	var existing domain.Payment
	if err := h.DB.WithContext(c.Context()).Where("external_id = ?", session.ID).First(&existing).Error; err == nil {
		if existing.UserID == nil {
			return nil
		}
		_, err := h.Settlement.ProcessSuccessfulPayment(c.Context(), settlement.SettlementInput{
			PaymentID:       existing.PaymentID,
			UserID:          *existing.UserID,
			CollectionID:    existing.CollectionID,
			PricingTierID:   existing.PricingTierID,
			PercentageToBuy: existing.PercentageToBuy,
			AmountPaid:      existing.Amount,
			Currency:        existing.Currency,
			PaymentMethod:   domain.MethodCard,
			AffiliateLinkID: existing.AffiliateLinkID,
		})
		if err != nil && isBusinessError(err) {
			log.Warn().Err(err).Str("session_id", session.ID).Msg("Stripe replay settlement hit business failure")
			return nil
		}
		return err
	}

	// Resolve or create the buyer (guest checkout).
	buyer, isNew, err := h.Users.GetOrCreateUser(c.Context(), email, meta["fullname"])
	if err != nil {
		return err
	}
	if userIDStr := meta["user_id"]; userIDStr != "" {
		// Authenticated checkout carries the session user id; prefer it when
		// it matches an actual account so the purchase lands on the signed-in
		// user even if they checked out with a secondary email.
		if id, parseErr := uuid.Parse(userIDStr); parseErr == nil {
			var u domain.User
			if err := h.DB.WithContext(c.Context()).Where("user_id = ?", id).First(&u).Error; err == nil {
				buyer = &u
				isNew = false
			}
		}
	}

	var affiliateLinkID *uuid.UUID
	if code := meta["affiliate_code"]; code != "" {
		link, err := h.Affiliates.ResolveCode(c.Context(), code)
		if err != nil {
			log.Warn().Err(err).Str("code", code).Msg("Affiliate code resolution failed, continuing without commission")
		} else if link != nil {
			affiliateLinkID = &link.AffiliateLinkID
		}
	}

	percentage := 0
	if pctStr := meta["percentage"]; pctStr != "" {
		percentage, _ = strconv.Atoi(pctStr)
	}

	amount := decimal.NewFromInt(session.AmountTotal).Div(decimal.NewFromInt(100))
	payment := domain.Payment{
		Provider:        domain.ProviderStripe,
		ExternalID:      session.ID,
		UserID:          &buyer.UserID,
		Amount:          amount,
		Currency:        strings.ToUpper(session.Currency),
		Status:          domain.PaymentSuccess,
		CollectionID:    collectionID,
		PricingTierID:   tierID,
		PercentageToBuy: percentage,
		AffiliateLinkID: affiliateLinkID,
		Metadata:        datatypes.JSON(rawBody),
	}
	if err := h.DB.WithContext(c.Context()).Create(&payment).Error; err != nil {
		return err
	}

	_, err = h.Settlement.ProcessSuccessfulPayment(c.Context(), settlement.SettlementInput{
		PaymentID:       payment.PaymentID,
		UserID:          buyer.UserID,
		CollectionID:    collectionID,
		PricingTierID:   tierID,
		PercentageToBuy: percentage,
		AmountPaid:      amount,
		Currency:        payment.Currency,
		PaymentMethod:   domain.MethodCard,
		AffiliateLinkID: affiliateLinkID,
		IsNewUser:       isNew,
	})
	if err != nil && isBusinessError(err) {
		log.Warn().Err(err).Str("session_id", session.ID).Msg("Stripe settlement hit business failure, payment left unsettled")
		return nil
	}
	return err
}

func isBusinessError(err error) bool {
	return errors.Is(err, settlement.ErrNoAvailableUnit) ||
		errors.Is(err, settlement.ErrPricingTierNotFound) ||
		errors.Is(err, settlement.ErrPaymentNotFound)
}

// verifyStripeSignature verifies the Stripe-Signature header using the webhook secret.
func verifyStripeSignature(payload []byte, sigHeader, secret string) error {
	if sigHeader == "" || secret == "" {
		return errors.New("missing signature or secret")
	}

	var timestamp string
	var signatures []string

	parts := strings.Split(sigHeader, ",")
	for _, part := range parts {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp == "" || len(signatures) == 0 {
		return errors.New("invalid signature format")
	}

	signedPayload := timestamp + "." + string(payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	expectedSig := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expectedSig)) {
			// Check tolerance (5 minutes)
			ts, err := strconv.ParseInt(timestamp, 10, 64)
			if err != nil {
				return errors.New("invalid timestamp")
			}
			diff := time.Now().Unix() - ts
			if diff < 0 {
				diff = -diff
			}
			if diff > 300 {
				return errors.New("timestamp too old")
			}
			return nil
		}
	}

	return errors.New("signature mismatch")
}
