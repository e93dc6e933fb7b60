package settlement

import (
	"context"
	"errors"
	"time"

	"stayvest-backend/internal/allocation"
	"stayvest-backend/internal/constants"
	"stayvest-backend/internal/domain"
	"stayvest-backend/internal/emails"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Expected business failures. The pipeline returns these instead of opaque
// errors so each rail adapter can shape its own failure response.
var (
	ErrPricingTierNotFound = errors.New("Pricing tier not found")
	ErrPaymentNotFound     = errors.New("Payment not found")
	ErrNoAvailableUnit     = allocation.ErrNoAvailableUnit
)

// SettlementInput is the normalized "payment confirmed" contract every rail
// adapter funnels into. PaymentID must reference an already-persisted
// Payment row.
type SettlementInput struct {
	PaymentID       uuid.UUID
	UserID          uuid.UUID
	CollectionID    uuid.UUID
	PricingTierID   uuid.UUID
	PercentageToBuy int
	AmountPaid      decimal.Decimal
	Currency        string
	PaymentMethod   string
	AffiliateLinkID *uuid.UUID
	IsNewUser       bool
}

// SettlementResult reports what the pipeline produced (or found, on replay).
type SettlementResult struct {
	OwnershipID      uuid.UUID `json:"ownership_id"`
	UnitID           uuid.UUID `json:"unit_id"`
	UnitName         string    `json:"unit_name"`
	AlreadyProcessed bool      `json:"already_processed"`
}

// Service is the settlement pipeline: the only code path allowed to turn a
// confirmed payment into an ownership.
type Service struct {
	DB        *gorm.DB
	Notifier  emails.Notifier
	Documents DocumentCreator
}

// DocumentCreator generates the MOA/RMA documents for a new ownership.
// Generation is best-effort and must never fail the purchase.
type DocumentCreator interface {
	CreateForOwnership(ctx context.Context, ownership *domain.Ownership) error
}

// ProcessSuccessfulPayment converts a confirmed payment into exactly one
// ownership, one optional affiliate commission, one investor-profile update
// and one set of notification emails.
//
// Steps 2-4 (tier lookup, allocation, ownership insert) run in one DB
// transaction holding unit row locks, so a concurrent settlement against the
// same inventory cannot oversell. Steps 5-7 (commission, profile,
// notifications) are applied after commit; their failures are logged and
// never roll back the purchase.
func (s *Service) ProcessSuccessfulPayment(ctx context.Context, in SettlementInput) (*SettlementResult, error) {
	// 1. Idempotency: replayed webhooks/callbacks return the prior result
	// without re-executing any side effect.
	var existing domain.Ownership
	err := s.DB.WithContext(ctx).Where("payment_id = ?", in.PaymentID).First(&existing).Error
	if err == nil {
		var unit domain.Unit
		_ = s.DB.WithContext(ctx).Where("unit_id = ?", existing.UnitID).First(&unit).Error
		log.Info().Str("payment_id", in.PaymentID.String()).Str("unit", unit.Name).Msg("Settlement replay, returning existing ownership")
		return &SettlementResult{
			OwnershipID:      existing.OwnershipID,
			UnitID:           existing.UnitID,
			UnitName:         unit.Name,
			AlreadyProcessed: true,
		}, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	var (
		ownership domain.Ownership
		unit      *domain.Unit
		tier      domain.PricingTier
	)

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 2. Pricing tier lookup. The rail adapter validated this already;
		// re-validate since the pipeline must be safe from any context.
		if err := tx.Where("pricing_tier_id = ?", in.PricingTierID).First(&tier).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrPricingTierNotFound
			}
			return err
		}

		// 3. Unit allocation under row locks. On exhaustion the payment
		// stays unsettled for manual resolution (refund or re-run).
		var err error
		unit, err = allocation.FindAvailableUnit(tx, in.CollectionID, tier.Percentage)
		if err != nil {
			return err
		}

		// 4. Ownership insert. Percentage comes from the tier, not the
		// caller's PercentageToBuy; the stored value is authoritative.
		// The unique index on payment_id backstops step 1 against races.
		ownership = domain.Ownership{
			UnitID:          unit.UnitID,
			UserID:          in.UserID,
			PricingTierID:   tier.PricingTierID,
			PercentageOwned: tier.Percentage,
			PurchasePrice:   in.AmountPaid,
			PaymentMethod:   in.PaymentMethod,
			Currency:        in.Currency,
			AffiliateLinkID: in.AffiliateLinkID,
			PaymentID:       &in.PaymentID,
		}
		if err := tx.Create(&ownership).Error; err != nil {
			return err
		}

		now := time.Now()
		if err := tx.Model(&domain.Payment{}).
			Where("payment_id = ?", in.PaymentID).
			Updates(map[string]interface{}{"status": domain.PaymentSuccess, "webhook_processed_at": now}).Error; err != nil {
			return err
		}

		return allocation.RefreshUnitStatus(tx, unit.UnitID)
	})
	if err != nil {
		return nil, err
	}

	// 5. Affiliate commission: always against the tier's fiat price, never
	// the amount paid: crypto prices are discounted but affiliates are paid
	// on the fiat reference price.
	if in.AffiliateLinkID != nil {
		if err := s.applyCommission(ctx, *in.AffiliateLinkID, &ownership, &tier); err != nil {
			log.Error().Err(err).
				Str("payment_id", in.PaymentID.String()).
				Str("affiliate_link_id", in.AffiliateLinkID.String()).
				Msg("Affiliate commission failed (purchase unaffected)")
		}
	}

	// 6. Investor profile aggregate.
	firstPurchase, err := s.updateInvestorProfile(ctx, in.UserID, in.AmountPaid)
	if err != nil {
		log.Error().Err(err).Str("user_id", in.UserID.String()).Msg("Investor profile update failed (purchase unaffected)")
	}

	// MOA/RMA documents through the black-box generator.
	if s.Documents != nil {
		if err := s.Documents.CreateForOwnership(ctx, &ownership); err != nil {
			log.Error().Err(err).Str("ownership_id", ownership.OwnershipID.String()).Msg("Document generation failed (purchase unaffected)")
		}
	}

	// 7. Notifications, each independently best-effort.
	s.sendPurchaseNotifications(ctx, in, &ownership, unit, firstPurchase)

	return &SettlementResult{
		OwnershipID: ownership.OwnershipID,
		UnitID:      unit.UnitID,
		UnitName:    unit.Name,
	}, nil
}

// applyCommission inserts the AffiliateTransaction (snapshotting the rate)
// and atomically increments the profile's running total and the link's
// conversion count.
func (s *Service) applyCommission(ctx context.Context, linkID uuid.UUID, ownership *domain.Ownership, tier *domain.PricingTier) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var link domain.AffiliateLink
		if err := tx.Where("affiliate_link_id = ?", linkID).First(&link).Error; err != nil {
			return err
		}
		var profile domain.AffiliateProfile
		if err := tx.Where("affiliate_profile_id = ?", link.AffiliateProfileID).First(&profile).Error; err != nil {
			return err
		}

		commission := tier.FiatPrice.Mul(profile.CommissionRate).Div(decimal.NewFromInt(100)).Round(2)

		if err := tx.Create(&domain.AffiliateTransaction{
			AffiliateLinkID:  linkID,
			OwnershipID:      ownership.OwnershipID,
			CommissionAmount: commission,
			CommissionRate:   profile.CommissionRate,
		}).Error; err != nil {
			return err
		}

		if err := tx.Model(&domain.AffiliateProfile{}).
			Where("affiliate_profile_id = ?", profile.AffiliateProfileID).
			Update("total_earned", gorm.Expr("total_earned + ?", commission)).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.AffiliateLink{}).
			Where("affiliate_link_id = ?", linkID).
			Update("conversion_count", gorm.Expr("conversion_count + ?", 1)).Error; err != nil {
			return err
		}

		if s.Notifier != nil {
			var affiliateUser domain.User
			if err := tx.Where("user_id = ?", profile.UserID).First(&affiliateUser).Error; err == nil {
				if err := s.Notifier.SendCommissionEarned(ctx, affiliateUser.Email, affiliateUser.Fullname, commission.StringFixed(2)); err != nil {
					log.Warn().Err(err).Str("email", affiliateUser.Email).Msg("Commission email failed")
				}
			}
		}
		return nil
	})
}

// updateInvestorProfile creates the profile on the first ownership (also
// upgrading default-role users to investor) or applies atomic delta
// increments. Returns whether this was the buyer's first purchase.
func (s *Service) updateInvestorProfile(ctx context.Context, userID uuid.UUID, amountPaid decimal.Decimal) (bool, error) {
	first := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile domain.InvestorProfile
		err := tx.Where("user_id = ?", userID).First(&profile).Error
		if err == gorm.ErrRecordNotFound {
			first = true
			if err := tx.Create(&domain.InvestorProfile{
				UserID:          userID,
				TotalInvested:   amountPaid,
				TotalUnitsOwned: 1,
			}).Error; err != nil {
				return err
			}
			// Role upgrade only for non-guest users still on the default role.
			return tx.Model(&domain.User{}).
				Where("user_id = ? AND role = ?", userID, constants.UserRole).
				Update("role", constants.Investor).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&domain.InvestorProfile{}).
			Where("user_id = ?", userID).
			Updates(map[string]interface{}{
				"total_invested":    gorm.Expr("total_invested + ?", amountPaid),
				"total_units_owned": gorm.Expr("total_units_owned + ?", 1),
			}).Error
	})
	return first, err
}

func (s *Service) sendPurchaseNotifications(ctx context.Context, in SettlementInput, ownership *domain.Ownership, unit *domain.Unit, firstPurchase bool) {
	if s.Notifier == nil {
		return
	}
	var buyer domain.User
	if err := s.DB.WithContext(ctx).Where("user_id = ?", in.UserID).First(&buyer).Error; err != nil {
		log.Warn().Err(err).Str("user_id", in.UserID.String()).Msg("Buyer lookup for notifications failed")
		return
	}

	if err := s.Notifier.SendPurchaseConfirmation(ctx, buyer.Email, buyer.Fullname, unit.Name, ownership.PercentageOwned, in.AmountPaid.StringFixed(2), in.Currency); err != nil {
		log.Warn().Err(err).Str("email", buyer.Email).Msg("Purchase confirmation email failed")
	}
	if err := s.Notifier.SendMOAReady(ctx, buyer.Email, buyer.Fullname, unit.Name); err != nil {
		log.Warn().Err(err).Str("email", buyer.Email).Msg("MOA-ready email failed")
	}
	if firstPurchase {
		var sendErr error
		if in.IsNewUser {
			sendErr = s.Notifier.SendGuestWelcome(ctx, buyer.Email, buyer.Fullname)
		} else {
			sendErr = s.Notifier.SendInvestorWelcome(ctx, buyer.Email, buyer.Fullname)
		}
		if sendErr != nil {
			log.Warn().Err(sendErr).Str("email", buyer.Email).Msg("Welcome email failed")
		}
	}
}
