package investors

import (
	"context"
	"errors"

	"stayvest-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service struct {
	DB *gorm.DB
}

// Portfolio is the investor dashboard view: the denormalized profile plus
// the underlying ownership rows.
type Portfolio struct {
	Profile    *domain.InvestorProfile `json:"profile"`
	Ownerships []PortfolioEntry        `json:"ownerships"`
}

type PortfolioEntry struct {
	OwnershipID     uuid.UUID       `json:"ownership_id"`
	UnitID          uuid.UUID       `json:"unit_id"`
	UnitName        string          `json:"unit_name"`
	CollectionName  string          `json:"collection_name"`
	PercentageOwned int             `json:"percentage_owned"`
	PurchasePrice   decimal.Decimal `json:"purchase_price"`
	Currency        string          `json:"currency"`
	PaymentMethod   string          `json:"payment_method"`
	ApprovalStatus  *string         `json:"approval_status"`
	MOASigned       bool            `json:"moa_signed"`
	RMASigned       bool            `json:"rma_signed"`
}

// GetPortfolio returns the profile and ownerships for one user. A user with
// no purchases gets an empty portfolio, not an error.
func (s *Service) GetPortfolio(ctx context.Context, userID uuid.UUID) (*Portfolio, error) {
	out := &Portfolio{Ownerships: []PortfolioEntry{}}

	var profile domain.InvestorProfile
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if err == nil {
		out.Profile = &profile
	} else if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	var ownerships []domain.Ownership
	if err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&ownerships).Error; err != nil {
		return nil, err
	}
	if len(ownerships) == 0 {
		return out, nil
	}

	unitIDs := make([]uuid.UUID, 0, len(ownerships))
	for _, o := range ownerships {
		unitIDs = append(unitIDs, o.UnitID)
	}
	var units []domain.Unit
	s.DB.WithContext(ctx).Where("unit_id IN ?", unitIDs).Find(&units)
	unitByID := map[uuid.UUID]domain.Unit{}
	collectionIDs := map[uuid.UUID]bool{}
	for _, u := range units {
		unitByID[u.UnitID] = u
		collectionIDs[u.CollectionID] = true
	}

	collectionNames := map[uuid.UUID]string{}
	if len(collectionIDs) > 0 {
		ids := make([]uuid.UUID, 0, len(collectionIDs))
		for id := range collectionIDs {
			ids = append(ids, id)
		}
		var collections []domain.Collection
		s.DB.WithContext(ctx).Where("collection_id IN ?", ids).Find(&collections)
		for _, c := range collections {
			collectionNames[c.CollectionID] = c.Name
		}
	}

	for _, o := range ownerships {
		entry := PortfolioEntry{
			OwnershipID:     o.OwnershipID,
			UnitID:          o.UnitID,
			PercentageOwned: o.PercentageOwned,
			PurchasePrice:   o.PurchasePrice,
			Currency:        o.Currency,
			PaymentMethod:   o.PaymentMethod,
			ApprovalStatus:  o.ApprovalStatus,
			MOASigned:       o.MOASigned,
			RMASigned:       o.RMASigned,
		}
		if u, ok := unitByID[o.UnitID]; ok {
			entry.UnitName = u.Name
			entry.CollectionName = collectionNames[u.CollectionID]
		}
		out.Ownerships = append(out.Ownerships, entry)
	}
	return out, nil
}

// DriftReport is one investor profile whose counters disagree with the
// ownership rows they summarize.
type DriftReport struct {
	UserID           uuid.UUID       `json:"user_id"`
	StoredInvested   decimal.Decimal `json:"stored_invested"`
	ComputedInvested decimal.Decimal `json:"computed_invested"`
	StoredUnits      int             `json:"stored_units"`
	ComputedUnits    int             `json:"computed_units"`
}

// Reconcile recomputes total_invested and total_units_owned from Ownership
// rows (excluding rejected staff entries) and reports drift. Read-only.
func (s *Service) Reconcile(ctx context.Context) ([]DriftReport, error) {
	var profiles []domain.InvestorProfile
	if err := s.DB.WithContext(ctx).Find(&profiles).Error; err != nil {
		return nil, err
	}

	var drift []DriftReport
	for _, p := range profiles {
		var row struct {
			Invested decimal.Decimal
			Count    int
		}
		err := s.DB.WithContext(ctx).Model(&domain.Ownership{}).
			Where("user_id = ? AND (approval_status IS NULL OR approval_status = ?)", p.UserID, domain.ApprovalApproved).
			Select("COALESCE(SUM(purchase_price), 0) AS invested, COUNT(*) AS count").
			Scan(&row).Error
		if err != nil {
			return nil, err
		}
		if !row.Invested.Equal(p.TotalInvested) || row.Count != p.TotalUnitsOwned {
			drift = append(drift, DriftReport{
				UserID:           p.UserID,
				StoredInvested:   p.TotalInvested,
				ComputedInvested: row.Invested,
				StoredUnits:      p.TotalUnitsOwned,
				ComputedUnits:    row.Count,
			})
		}
	}
	return drift, nil
}

// GetProfile returns the raw aggregate row for a user.
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.InvestorProfile, error) {
	var profile domain.InvestorProfile
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.New("Investor profile not found")
		}
		return nil, err
	}
	return &profile, nil
}
