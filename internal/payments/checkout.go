package payments

import (
	"context"
	"errors"
	"fmt"

	"stayvest-backend/internal/collections"
	"stayvest-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"gorm.io/gorm"
)

var (
	ErrCollectionNotFound = errors.New("Collection not found")
	ErrTierNotAvailable   = errors.New("Pricing tier is not available for this collection")
)

// StripeCheckoutCreator abstracts the Stripe SDK so checkout creation can
// be tested without network access.
type StripeCheckoutCreator interface {
	CreateSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// RealStripeCreator calls the live Stripe API.
type RealStripeCreator struct {
	SecretKey string
}

func (r *RealStripeCreator) CreateSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	stripe.Key = r.SecretKey
	return session.New(params)
}

// CheckoutService prepares Stripe Checkout Sessions for share purchases.
// The session metadata carries everything the webhook needs to settle
// without trusting the client again at callback time.
type CheckoutService struct {
	DB          *gorm.DB
	Collections *collections.Service
	Stripe      StripeCheckoutCreator
	SuccessURL  string
	CancelURL   string
}

type CheckoutInput struct {
	CollectionID  uuid.UUID
	PricingTierID uuid.UUID
	Email         string
	Fullname      string
	UserID        *uuid.UUID
	AffiliateCode string
}

type CheckoutResult struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// CreateStripeSession validates the purchase server-side, then asks Stripe
// for a hosted checkout page. Price and percentage always come from the
// stored tier, never the request body.
func (s *CheckoutService) CreateStripeSession(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	var collection domain.Collection
	if err := s.DB.WithContext(ctx).
		Where("collection_id = ? AND is_active = ?", in.CollectionID, true).
		First(&collection).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCollectionNotFound
		}
		return nil, err
	}

	tier, err := s.Collections.ActiveTier(ctx, in.CollectionID, in.PricingTierID)
	if err != nil {
		return nil, err
	}
	if tier == nil {
		return nil, ErrTierNotAvailable
	}

	amountCents := tier.FiatPrice.Mul(decimal.NewFromInt(100)).IntPart()
	metadata := map[string]string{
		"collection_id":   collection.CollectionID.String(),
		"pricing_tier_id": tier.PricingTierID.String(),
		"percentage":      fmt.Sprintf("%d", tier.Percentage),
		"email":           in.Email,
		"fullname":        in.Fullname,
	}
	if in.UserID != nil {
		metadata["user_id"] = in.UserID.String()
	}
	if in.AffiliateCode != "" {
		metadata["affiliate_code"] = in.AffiliateCode
	}

	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:    stripe.String(s.SuccessURL),
		CancelURL:     stripe.String(s.CancelURL),
		CustomerEmail: stripe.String(in.Email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String("usd"),
					UnitAmount: stripe.Int64(amountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(fmt.Sprintf("%s (%.2f%% ownership)", collection.Name, float64(tier.Percentage)/100)),
						Description: stripe.String(collection.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: metadata,
	}

	sess, err := s.Stripe.CreateSession(params)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session: %w", err)
	}

	return &CheckoutResult{SessionID: sess.ID, CheckoutURL: sess.URL}, nil
}
