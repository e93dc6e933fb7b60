package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvestorProfile is the per-user purchase aggregate. Created on the first
// ownership, then incremented by delta on each subsequent one; the investors
// service can recompute from Ownership rows to detect drift.
type InvestorProfile struct {
	InvestorProfileID uuid.UUID       `gorm:"column:investor_profile_id;type:uuid;primaryKey" json:"investor_profile_id"`
	UserID            uuid.UUID       `gorm:"column:user_id;type:uuid;not null;uniqueIndex" json:"user_id"`
	TotalInvested     decimal.Decimal `gorm:"column:total_invested;type:decimal(20,2);not null;default:0" json:"total_invested"`
	TotalUnitsOwned   int             `gorm:"column:total_units_owned;not null;default:0" json:"total_units_owned"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

func (InvestorProfile) TableName() string {
	return "InvestorProfiles"
}

func (p *InvestorProfile) BeforeCreate(tx *gorm.DB) error {
	if p.InvestorProfileID == uuid.Nil {
		p.InvestorProfileID = uuid.New()
	}
	return nil
}
