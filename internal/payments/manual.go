package payments

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"

	"stayvest-backend/internal/affiliates"
	"stayvest-backend/internal/collections"
	"stayvest-backend/internal/domain"
	"stayvest-backend/internal/settlement"
	"stayvest-backend/internal/users"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrReferenceNotFound = errors.New("Manual payment reference not found")
	ErrPaymentNotPending = errors.New("Payment has already been decided")
	ErrProofRequired     = errors.New("Proof of payment is required")
)

// BankDetails are the wire-transfer instructions shown to the buyer.
type BankDetails struct {
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	BankName      string `json:"bank_name"`
}

// ManualService runs the bank-transfer rail: initiate, submit proof,
// and the admin approve/reject decision that feeds the settlement
// pipeline.
type ManualService struct {
	DB          *gorm.DB
	Collections *collections.Service
	Settlement  *settlement.Service
	Users       *users.Service
	Affiliates  *affiliates.Service
	Bank        BankDetails
}

// newReferenceCode returns "MP-" plus 8 crypto-random base32 characters.
func newReferenceCode() (string, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "MP-" + base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}

type ManualInitiateInput struct {
	CollectionID  uuid.UUID
	PricingTierID uuid.UUID
}

type ManualInitiateResult struct {
	ReferenceCode string      `json:"reference_code"`
	Amount        string      `json:"amount"`
	Currency      string      `json:"currency"`
	Bank          BankDetails `json:"bank"`
}

// Initiate validates the purchase and hands out a unique reference code
// with transfer instructions. No Payment row exists until proof arrives;
// abandoned initiations leave nothing behind.
func (s *ManualService) Initiate(ctx context.Context, in ManualInitiateInput) (*ManualInitiateResult, error) {
	tier, err := s.Collections.ActiveTier(ctx, in.CollectionID, in.PricingTierID)
	if err != nil {
		return nil, err
	}
	if tier == nil {
		return nil, ErrTierNotAvailable
	}

	code, err := newReferenceCode()
	if err != nil {
		return nil, fmt.Errorf("generate reference code: %w", err)
	}

	return &ManualInitiateResult{
		ReferenceCode: code,
		Amount:        tier.FiatPrice.StringFixed(2),
		Currency:      "USD",
		Bank:          s.Bank,
	}, nil
}

type ManualSubmitInput struct {
	ReferenceCode string
	CollectionID  uuid.UUID
	PricingTierID uuid.UUID
	Email         string
	Fullname      string
	UserID        *uuid.UUID
	AffiliateCode string
	ProofURL      string
}

// SubmitProof records the transfer claim as a PENDING payment keyed by
// the reference code. The buyer account is created now so a guest's
// purchase is attached even if approval happens days later.
func (s *ManualService) SubmitProof(ctx context.Context, in ManualSubmitInput) (*domain.Payment, error) {
	if in.ProofURL == "" {
		return nil, ErrProofRequired
	}
	tier, err := s.Collections.ActiveTier(ctx, in.CollectionID, in.PricingTierID)
	if err != nil {
		return nil, err
	}
	if tier == nil {
		return nil, ErrTierNotAvailable
	}

	buyer, _, err := s.Users.GetOrCreateUser(ctx, in.Email, in.Fullname)
	if err != nil {
		return nil, err
	}
	if in.UserID != nil {
		var u domain.User
		if err := s.DB.WithContext(ctx).Where("user_id = ?", *in.UserID).First(&u).Error; err == nil {
			buyer = &u
		}
	}

	var affiliateLinkID *uuid.UUID
	if in.AffiliateCode != "" {
		link, err := s.Affiliates.ResolveCode(ctx, in.AffiliateCode)
		if err == nil && link != nil {
			affiliateLinkID = &link.AffiliateLinkID
		}
	}

	payment := domain.Payment{
		Provider:        domain.ProviderManual,
		ExternalID:      in.ReferenceCode,
		UserID:          &buyer.UserID,
		Amount:          tier.FiatPrice,
		Currency:        "USD",
		Status:          domain.PaymentPending,
		CollectionID:    in.CollectionID,
		PricingTierID:   in.PricingTierID,
		PercentageToBuy: tier.Percentage,
		AffiliateLinkID: affiliateLinkID,
		ProofURL:        in.ProofURL,
	}
	if err := s.DB.WithContext(ctx).Create(&payment).Error; err != nil {
		var existing domain.Payment
		if lookupErr := s.DB.WithContext(ctx).Where("external_id = ?", in.ReferenceCode).First(&existing).Error; lookupErr == nil {
			// Double-submit of the same reference returns the first claim.
			return &existing, nil
		}
		return nil, err
	}
	return &payment, nil
}

// ListPending returns manual payments awaiting an admin decision.
func (s *ManualService) ListPending(ctx context.Context) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := s.DB.WithContext(ctx).
		Where("provider = ? AND status = ?", domain.ProviderManual, domain.PaymentPending).
		Order("created_at ASC").
		Find(&payments).Error
	return payments, err
}

// Approve flips a PENDING manual payment to SUCCESS and settles it. The
// guarded update makes a double-click a no-op: only the request that wins
// the PENDING to SUCCESS transition reaches the pipeline, and the pipeline
// itself is idempotent on the payment id besides.
func (s *ManualService) Approve(ctx context.Context, referenceCode string) (*settlement.SettlementResult, error) {
	var payment domain.Payment
	if err := s.DB.WithContext(ctx).
		Where("external_id = ? AND provider = ?", referenceCode, domain.ProviderManual).
		First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReferenceNotFound
		}
		return nil, err
	}

	res := s.DB.WithContext(ctx).Model(&domain.Payment{}).
		Where("payment_id = ? AND status = ?", payment.PaymentID, domain.PaymentPending).
		Update("status", domain.PaymentSuccess)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if payment.Status == domain.PaymentSuccess {
			// Previous approval already went through; replay the pipeline,
			// which returns the existing ownership.
			return s.settle(ctx, payment)
		}
		return nil, ErrPaymentNotPending
	}

	result, err := s.settle(ctx, payment)
	if err != nil {
		// Settlement failed after the status flip; roll the payment back to
		// PENDING so the admin can retry once the cause is fixed.
		if rbErr := s.DB.WithContext(ctx).Model(&domain.Payment{}).
			Where("payment_id = ?", payment.PaymentID).
			Update("status", domain.PaymentPending).Error; rbErr != nil {
			log.Error().Err(rbErr).Str("reference", referenceCode).Msg("Manual payment status rollback failed")
		}
		return nil, err
	}
	return result, nil
}

func (s *ManualService) settle(ctx context.Context, payment domain.Payment) (*settlement.SettlementResult, error) {
	if payment.UserID == nil {
		return nil, errors.New("Manual payment has no buyer attached")
	}
	return s.Settlement.ProcessSuccessfulPayment(ctx, settlement.SettlementInput{
		PaymentID:       payment.PaymentID,
		UserID:          *payment.UserID,
		CollectionID:    payment.CollectionID,
		PricingTierID:   payment.PricingTierID,
		PercentageToBuy: payment.PercentageToBuy,
		AmountPaid:      payment.Amount,
		Currency:        payment.Currency,
		PaymentMethod:   domain.MethodBankTransfer,
		AffiliateLinkID: payment.AffiliateLinkID,
	})
}

// Reject marks a PENDING manual payment as REJECTED. The pipeline is never
// called, so no capacity is consumed.
func (s *ManualService) Reject(ctx context.Context, referenceCode string) error {
	res := s.DB.WithContext(ctx).Model(&domain.Payment{}).
		Where("external_id = ? AND provider = ? AND status = ?", referenceCode, domain.ProviderManual, domain.PaymentPending).
		Update("status", domain.PaymentRejected)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var payment domain.Payment
		if err := s.DB.WithContext(ctx).
			Where("external_id = ? AND provider = ?", referenceCode, domain.ProviderManual).
			First(&payment).Error; err != nil {
			return ErrReferenceNotFound
		}
		return ErrPaymentNotPending
	}
	return nil
}
