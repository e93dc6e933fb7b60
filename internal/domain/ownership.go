package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Ownership approval statuses for staff-submitted entries. A nil
// ApprovalStatus means the row came through a payment rail and counts
// against capacity immediately.
const (
	ApprovalPending  = "PENDING_APPROVAL"
	ApprovalApproved = "APPROVED"
	ApprovalRejected = "REJECTED"
)

// Ownership is one completed purchase of a percentage of a unit. Created
// exactly once per Payment by the settlement pipeline; the unique index on
// payment_id is the storage-layer backstop for idempotency. Rows are never
// deleted; rejection is a status flag.
type Ownership struct {
	OwnershipID     uuid.UUID       `gorm:"column:ownership_id;type:uuid;primaryKey" json:"ownership_id"`
	UnitID          uuid.UUID       `gorm:"column:unit_id;type:uuid;not null;index" json:"unit_id"`
	UserID          uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	PricingTierID   uuid.UUID       `gorm:"column:pricing_tier_id;type:uuid;not null" json:"pricing_tier_id"`
	PercentageOwned int             `gorm:"column:percentage_owned;not null" json:"percentage_owned"`
	PurchasePrice   decimal.Decimal `gorm:"column:purchase_price;type:decimal(20,2);not null" json:"purchase_price"`
	PaymentMethod   string          `gorm:"column:payment_method;not null" json:"payment_method"`
	Currency        string          `gorm:"column:currency;not null" json:"currency"`
	AffiliateLinkID *uuid.UUID      `gorm:"column:affiliate_link_id;type:uuid" json:"affiliate_link_id"`
	PaymentID       *uuid.UUID      `gorm:"column:payment_id;type:uuid;uniqueIndex" json:"payment_id"`
	ApprovalStatus  *string         `gorm:"column:approval_status" json:"approval_status"`
	MOASigned       bool            `gorm:"column:moa_signed;not null;default:false" json:"moa_signed"`
	MOASignedAt     *time.Time      `gorm:"column:moa_signed_at" json:"moa_signed_at"`
	RMASigned       bool            `gorm:"column:rma_signed;not null;default:false" json:"rma_signed"`
	RMASignedAt     *time.Time      `gorm:"column:rma_signed_at" json:"rma_signed_at"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func (Ownership) TableName() string {
	return "Ownerships"
}

func (o *Ownership) BeforeCreate(tx *gorm.DB) error {
	if o.OwnershipID == uuid.Nil {
		o.OwnershipID = uuid.New()
	}
	return nil
}

// CountsAgainstCapacity reports whether this row consumes unit capacity.
// Pending staff entries do not block buyers until approved; rejected entries
// release their capacity.
func (o *Ownership) CountsAgainstCapacity() bool {
	return o.ApprovalStatus == nil || *o.ApprovalStatus == ApprovalApproved
}
