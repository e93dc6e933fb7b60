package ownerships

import (
	"context"
	"errors"

	"stayvest-backend/internal/allocation"
	"stayvest-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrEntryNotFound      = errors.New("Ownership entry not found")
	ErrEntryNotPending    = errors.New("Ownership entry has already been decided")
	ErrUnitNotFound       = errors.New("Unit not found")
	ErrInvalidPercentage  = errors.New("Percentage must be between 1 and 10000 basis points")
	ErrCapacityExceeded   = errors.New("Unit does not have enough remaining capacity")
	ErrUserNotFound       = errors.New("User not found")
	ErrNotStaffSubmission = errors.New("Only staff-submitted entries can be approved or rejected")
)

// Service manages staff-submitted ownership entries: sales closed
// off-platform (cash deals, legacy contracts) that staff record directly
// against a unit. Entries sit at PENDING_APPROVAL, consume no capacity,
// and only start counting once an admin approves them.
type Service struct {
	DB *gorm.DB
}

type SubmitEntryInput struct {
	UnitID          uuid.UUID
	UserID          uuid.UUID
	PercentageOwned int
	PurchasePrice   decimal.Decimal
	Currency        string
	PaymentMethod   string
}

// SubmitEntry records a pending entry. Capacity is checked loosely here
// for early feedback; the binding check happens at approval time under
// the unit lock.
func (s *Service) SubmitEntry(ctx context.Context, in SubmitEntryInput) (*domain.Ownership, error) {
	if in.PercentageOwned <= 0 || in.PercentageOwned > domain.TotalUnitBasisPoints {
		return nil, ErrInvalidPercentage
	}

	var unit domain.Unit
	if err := s.DB.WithContext(ctx).Where("unit_id = ?", in.UnitID).First(&unit).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnitNotFound
		}
		return nil, err
	}
	var user domain.User
	if err := s.DB.WithContext(ctx).Where("user_id = ?", in.UserID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	allocated, err := allocation.AllocatedBasisPoints(s.DB.WithContext(ctx), in.UnitID)
	if err != nil {
		return nil, err
	}
	if allocated+in.PercentageOwned > domain.TotalUnitBasisPoints {
		return nil, ErrCapacityExceeded
	}

	currency := in.Currency
	if currency == "" {
		currency = "USD"
	}
	method := in.PaymentMethod
	if method == "" {
		method = domain.MethodBankTransfer
	}

	status := domain.ApprovalPending
	entry := domain.Ownership{
		UnitID:          in.UnitID,
		UserID:          in.UserID,
		PercentageOwned: in.PercentageOwned,
		PurchasePrice:   in.PurchasePrice,
		PaymentMethod:   method,
		Currency:        currency,
		ApprovalStatus:  &status,
	}
	if err := s.DB.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, err
	}
	log.Info().
		Str("ownership_id", entry.OwnershipID.String()).
		Str("unit_id", in.UnitID.String()).
		Int("percentage", in.PercentageOwned).
		Msg("Staff ownership entry submitted")
	return &entry, nil
}

// ListPending returns entries awaiting an admin decision.
func (s *Service) ListPending(ctx context.Context) ([]domain.Ownership, error) {
	var entries []domain.Ownership
	err := s.DB.WithContext(ctx).
		Where("approval_status = ?", domain.ApprovalPending).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

// Approve flips a pending entry to APPROVED. The capacity check runs
// again inside the transaction, under the unit row lock, because other
// purchases may have consumed the unit since submission.
func (s *Service) Approve(ctx context.Context, ownershipID uuid.UUID) (*domain.Ownership, error) {
	var entry domain.Ownership
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked := tx
		if tx.Dialector.Name() == "postgres" {
			locked = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		if err := locked.Where("ownership_id = ?", ownershipID).First(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEntryNotFound
			}
			return err
		}
		if entry.ApprovalStatus == nil {
			return ErrNotStaffSubmission
		}
		if *entry.ApprovalStatus != domain.ApprovalPending {
			return ErrEntryNotPending
		}

		// Lock the unit row so the capacity sum stays true until commit.
		var unit domain.Unit
		if err := locked.Where("unit_id = ?", entry.UnitID).First(&unit).Error; err != nil {
			return err
		}
		allocated, err := allocation.AllocatedBasisPoints(tx, entry.UnitID)
		if err != nil {
			return err
		}
		if allocated+entry.PercentageOwned > domain.TotalUnitBasisPoints {
			return ErrCapacityExceeded
		}

		approved := domain.ApprovalApproved
		if err := tx.Model(&domain.Ownership{}).
			Where("ownership_id = ?", ownershipID).
			Update("approval_status", approved).Error; err != nil {
			return err
		}
		entry.ApprovalStatus = &approved
		return allocation.RefreshUnitStatus(tx, entry.UnitID)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Reject flips a pending entry to REJECTED and refreshes the unit status.
// A pending entry never held capacity, so nothing else changes.
func (s *Service) Reject(ctx context.Context, ownershipID uuid.UUID) (*domain.Ownership, error) {
	var entry domain.Ownership
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("ownership_id = ?", ownershipID).First(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEntryNotFound
			}
			return err
		}
		if entry.ApprovalStatus == nil {
			return ErrNotStaffSubmission
		}
		if *entry.ApprovalStatus != domain.ApprovalPending {
			return ErrEntryNotPending
		}
		rejected := domain.ApprovalRejected
		if err := tx.Model(&domain.Ownership{}).
			Where("ownership_id = ?", ownershipID).
			Update("approval_status", rejected).Error; err != nil {
			return err
		}
		entry.ApprovalStatus = &rejected
		return allocation.RefreshUnitStatus(tx, entry.UnitID)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// RejectApproved revokes an already approved entry, releasing its
// capacity and potentially flipping the unit back to AVAILABLE.
func (s *Service) RejectApproved(ctx context.Context, ownershipID uuid.UUID) (*domain.Ownership, error) {
	var entry domain.Ownership
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("ownership_id = ?", ownershipID).First(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEntryNotFound
			}
			return err
		}
		if entry.ApprovalStatus == nil {
			return ErrNotStaffSubmission
		}
		if *entry.ApprovalStatus != domain.ApprovalApproved {
			return ErrEntryNotPending
		}
		rejected := domain.ApprovalRejected
		if err := tx.Model(&domain.Ownership{}).
			Where("ownership_id = ?", ownershipID).
			Update("approval_status", rejected).Error; err != nil {
			return err
		}
		entry.ApprovalStatus = &rejected
		return allocation.RefreshUnitStatus(tx, entry.UnitID)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
