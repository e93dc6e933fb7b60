package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AffiliateProfile belongs to a user who refers buyers. TotalEarned is a
// denormalized running total, incremented by delta at settlement time and
// reconciled against AffiliateTransaction rows on demand.
type AffiliateProfile struct {
	AffiliateProfileID uuid.UUID       `gorm:"column:affiliate_profile_id;type:uuid;primaryKey" json:"affiliate_profile_id"`
	UserID             uuid.UUID       `gorm:"column:user_id;type:uuid;not null;uniqueIndex" json:"user_id"`
	CommissionRate     decimal.Decimal `gorm:"column:commission_rate;type:decimal(5,2);not null" json:"commission_rate"`
	TotalEarned        decimal.Decimal `gorm:"column:total_earned;type:decimal(20,2);not null;default:0" json:"total_earned"`
	PayoutDetails      string          `gorm:"column:payout_details" json:"payout_details"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

func (AffiliateProfile) TableName() string {
	return "AffiliateProfiles"
}

func (a *AffiliateProfile) BeforeCreate(tx *gorm.DB) error {
	if a.AffiliateProfileID == uuid.Nil {
		a.AffiliateProfileID = uuid.New()
	}
	return nil
}

// AffiliateLink is a shareable referral code belonging to a profile.
type AffiliateLink struct {
	AffiliateLinkID    uuid.UUID `gorm:"column:affiliate_link_id;type:uuid;primaryKey" json:"affiliate_link_id"`
	AffiliateProfileID uuid.UUID `gorm:"column:affiliate_profile_id;type:uuid;not null;index" json:"affiliate_profile_id"`
	Code               string    `gorm:"column:code;not null;uniqueIndex" json:"code"`
	ClickCount         int       `gorm:"column:click_count;not null;default:0" json:"click_count"`
	ConversionCount    int       `gorm:"column:conversion_count;not null;default:0" json:"conversion_count"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func (AffiliateLink) TableName() string {
	return "AffiliateLinks"
}

func (l *AffiliateLink) BeforeCreate(tx *gorm.DB) error {
	if l.AffiliateLinkID == uuid.Nil {
		l.AffiliateLinkID = uuid.New()
	}
	return nil
}

// AffiliateTransaction is one commission earned, linked 1:1 to an ownership.
// CommissionRate is snapshotted at settlement time; only IsPaid is mutated
// afterwards (admin "mark paid").
type AffiliateTransaction struct {
	AffiliateTransactionID uuid.UUID       `gorm:"column:affiliate_transaction_id;type:uuid;primaryKey" json:"affiliate_transaction_id"`
	AffiliateLinkID        uuid.UUID       `gorm:"column:affiliate_link_id;type:uuid;not null;index" json:"affiliate_link_id"`
	OwnershipID            uuid.UUID       `gorm:"column:ownership_id;type:uuid;not null;uniqueIndex" json:"ownership_id"`
	CommissionAmount       decimal.Decimal `gorm:"column:commission_amount;type:decimal(20,2);not null" json:"commission_amount"`
	CommissionRate         decimal.Decimal `gorm:"column:commission_rate;type:decimal(5,2);not null" json:"commission_rate"`
	IsPaid                 bool            `gorm:"column:is_paid;not null;default:false" json:"is_paid"`
	PaidAt                 *time.Time      `gorm:"column:paid_at" json:"paid_at"`
	CreatedAt              time.Time       `json:"createdAt"`
	UpdatedAt              time.Time       `json:"updatedAt"`
}

func (AffiliateTransaction) TableName() string {
	return "AffiliateTransactions"
}

func (t *AffiliateTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.AffiliateTransactionID == uuid.Nil {
		t.AffiliateTransactionID = uuid.New()
	}
	return nil
}
