package affiliates

import (
	"context"
	"errors"
	"strings"
	"time"

	"stayvest-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service struct {
	DB *gorm.DB
}

// CreateProfile enrolls a user as an affiliate with the given commission rate.
func (s *Service) CreateProfile(ctx context.Context, userID uuid.UUID, rate decimal.Decimal) (*domain.AffiliateProfile, error) {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		return nil, errors.New("Commission rate must be between 0 and 100")
	}
	var user domain.User
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.New("User not found")
		}
		return nil, err
	}
	var existing domain.AffiliateProfile
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&existing).Error; err == nil {
		return nil, errors.New("User is already an affiliate")
	}

	profile := &domain.AffiliateProfile{UserID: userID, CommissionRate: rate}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(profile).Error; err != nil {
			return err
		}
		return tx.Model(&domain.User{}).Where("user_id = ?", userID).Update("is_affiliate", true).Error
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// CreateLink mints a referral code for a profile.
func (s *Service) CreateLink(ctx context.Context, profileID uuid.UUID, code string) (*domain.AffiliateLink, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, errors.New("Referral code is required")
	}
	var profile domain.AffiliateProfile
	if err := s.DB.WithContext(ctx).Where("affiliate_profile_id = ?", profileID).First(&profile).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.New("Affiliate profile not found")
		}
		return nil, err
	}
	var existing domain.AffiliateLink
	if err := s.DB.WithContext(ctx).Where("code = ?", code).First(&existing).Error; err == nil {
		return nil, errors.New("Referral code already in use")
	}

	link := &domain.AffiliateLink{AffiliateProfileID: profileID, Code: code}
	if err := s.DB.WithContext(ctx).Create(link).Error; err != nil {
		return nil, err
	}
	return link, nil
}

// ResolveCode maps a referral code to its link. Unknown codes resolve to nil
// rather than an error: a stale code on a checkout must not block a purchase.
func (s *Service) ResolveCode(ctx context.Context, code string) (*domain.AffiliateLink, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, nil
	}
	var link domain.AffiliateLink
	err := s.DB.WithContext(ctx).Where("code = ?", code).First(&link).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// TrackClick atomically bumps a link's click counter.
func (s *Service) TrackClick(ctx context.Context, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	return s.DB.WithContext(ctx).Model(&domain.AffiliateLink{}).
		Where("code = ?", code).
		Update("click_count", gorm.Expr("click_count + ?", 1)).Error
}

// MarkPaid flags a commission as paid out (admin action); repeat calls are no-ops.
func (s *Service) MarkPaid(ctx context.Context, transactionID uuid.UUID) (*domain.AffiliateTransaction, error) {
	var txn domain.AffiliateTransaction
	if err := s.DB.WithContext(ctx).Where("affiliate_transaction_id = ?", transactionID).First(&txn).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.New("Commission transaction not found")
		}
		return nil, err
	}
	if txn.IsPaid {
		return &txn, nil
	}
	now := time.Now()
	if err := s.DB.WithContext(ctx).Model(&domain.AffiliateTransaction{}).
		Where("affiliate_transaction_id = ?", transactionID).
		Updates(map[string]interface{}{"is_paid": true, "paid_at": now}).Error; err != nil {
		return nil, err
	}
	txn.IsPaid = true
	txn.PaidAt = &now
	return &txn, nil
}

// DriftReport is one profile whose denormalized running total disagrees with
// the sum over its commission transactions.
type DriftReport struct {
	AffiliateProfileID uuid.UUID       `json:"affiliate_profile_id"`
	StoredTotal        decimal.Decimal `json:"stored_total"`
	ComputedTotal      decimal.Decimal `json:"computed_total"`
}

// Reconcile recomputes each profile's total from AffiliateTransaction rows
// and reports drift against the incremental counter. Read-only: flagged
// drift is surfaced for an admin decision, not silently corrected.
func (s *Service) Reconcile(ctx context.Context) ([]DriftReport, error) {
	var profiles []domain.AffiliateProfile
	if err := s.DB.WithContext(ctx).Find(&profiles).Error; err != nil {
		return nil, err
	}

	var drift []DriftReport
	for _, p := range profiles {
		var computed decimal.Decimal
		err := s.DB.WithContext(ctx).Model(&domain.AffiliateTransaction{}).
			Joins("JOIN \"AffiliateLinks\" ON \"AffiliateLinks\".affiliate_link_id = \"AffiliateTransactions\".affiliate_link_id").
			Where("\"AffiliateLinks\".affiliate_profile_id = ?", p.AffiliateProfileID).
			Select("COALESCE(SUM(commission_amount), 0)").
			Scan(&computed).Error
		if err != nil {
			return nil, err
		}
		if !computed.Equal(p.TotalEarned) {
			drift = append(drift, DriftReport{
				AffiliateProfileID: p.AffiliateProfileID,
				StoredTotal:        p.TotalEarned,
				ComputedTotal:      computed,
			})
		}
	}
	return drift, nil
}
