package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Payment providers.
const (
	ProviderStripe = "STRIPE"
	ProviderDePay  = "DEPAY"
	ProviderManual = "MANUAL"
)

// Payment statuses.
const (
	PaymentPending  = "PENDING"
	PaymentSuccess  = "SUCCESS"
	PaymentFailed   = "FAILED"
	PaymentRejected = "REJECTED"
)

// Payment methods recorded on ownerships.
const (
	MethodCard         = "CARD"
	MethodCrypto       = "CRYPTO"
	MethodBankTransfer = "BANK_TRANSFER"
)

// Payment is one payment attempt. ExternalID is the provider's transaction
// identifier (Stripe session id, blockchain tx hash, or manual reference
// code) and serves as the global idempotency key: a replayed webhook or
// callback for the same ExternalID must never create a second Payment or
// Ownership. Rows are append-only audit trail.
type Payment struct {
	PaymentID          uuid.UUID       `gorm:"column:payment_id;type:uuid;primaryKey" json:"payment_id"`
	Provider           string          `gorm:"column:provider;not null" json:"provider"`
	ExternalID         string          `gorm:"column:external_id;not null;uniqueIndex" json:"external_id"`
	UserID             *uuid.UUID      `gorm:"column:user_id;type:uuid;index" json:"user_id"`
	Amount             decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	Currency           string          `gorm:"column:currency;not null" json:"currency"`
	Status             string          `gorm:"column:status;not null;default:PENDING" json:"status"`
	CollectionID       uuid.UUID       `gorm:"column:collection_id;type:uuid;not null" json:"collection_id"`
	PricingTierID      uuid.UUID       `gorm:"column:pricing_tier_id;type:uuid;not null" json:"pricing_tier_id"`
	PercentageToBuy    int             `gorm:"column:percentage_to_buy;not null" json:"percentage_to_buy"`
	AffiliateLinkID    *uuid.UUID      `gorm:"column:affiliate_link_id;type:uuid" json:"affiliate_link_id"`
	Metadata           datatypes.JSON  `gorm:"column:metadata;type:jsonb" json:"metadata"`
	ProofURL           string          `gorm:"column:proof_url" json:"proof_url"`
	WebhookProcessedAt *time.Time      `gorm:"column:webhook_processed_at" json:"webhook_processed_at"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

func (Payment) TableName() string {
	return "Payments"
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.PaymentID == uuid.Nil {
		p.PaymentID = uuid.New()
	}
	return nil
}
