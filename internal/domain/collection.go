package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Unit statuses.
const (
	UnitAvailable = "AVAILABLE"
	UnitSoldOut   = "SOLD_OUT"
	UnitDraft     = "DRAFT"
)

// TotalUnitBasisPoints is full ownership of one unit (100% = 10000 bp).
const TotalUnitBasisPoints = 10000

// Collection is a named property group (e.g. "Glamphouse") that owns units
// and pricing tiers. Deletion is blocked while dependent rows exist.
type Collection struct {
	CollectionID  uuid.UUID       `gorm:"column:collection_id;type:uuid;primaryKey" json:"collection_id"`
	Name          string          `gorm:"column:name;not null" json:"name"`
	Slug          string          `gorm:"column:slug;not null;uniqueIndex" json:"slug"`
	Description   string          `gorm:"column:description" json:"description"`
	IsActive      bool            `gorm:"column:is_active;not null;default:true" json:"is_active"`
	NightlyPrice  decimal.Decimal `gorm:"column:nightly_price;type:decimal(20,2);not null;default:0" json:"nightly_price"`
	CleaningFee   decimal.Decimal `gorm:"column:cleaning_fee;type:decimal(20,2);not null;default:0" json:"cleaning_fee"`
	MaxGuests     int             `gorm:"column:max_guests;not null;default:0" json:"max_guests"`
	HeroImageURL  string          `gorm:"column:hero_image_url" json:"hero_image_url"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func (Collection) TableName() string {
	return "Collections"
}

func (c *Collection) BeforeCreate(tx *gorm.DB) error {
	if c.CollectionID == uuid.Nil {
		c.CollectionID = uuid.New()
	}
	return nil
}

// Unit is one physical property within a collection. The sum of
// percentage_owned over non-rejected ownerships must never exceed
// TotalUnitBasisPoints; the allocation engine enforces this under row locks.
type Unit struct {
	UnitID       uuid.UUID `gorm:"column:unit_id;type:uuid;primaryKey" json:"unit_id"`
	CollectionID uuid.UUID `gorm:"column:collection_id;type:uuid;not null;index" json:"collection_id"`
	Name         string    `gorm:"column:name;not null" json:"name"`
	Status       string    `gorm:"column:status;not null;default:AVAILABLE" json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (Unit) TableName() string {
	return "Units"
}

func (u *Unit) BeforeCreate(tx *gorm.DB) error {
	if u.UnitID == uuid.Nil {
		u.UnitID = uuid.New()
	}
	return nil
}

// PricingTier is a fixed percentage offering for a collection. Crypto prices
// are discounted; affiliate commissions are always computed against
// FiatPrice regardless of the rail the buyer paid through.
type PricingTier struct {
	PricingTierID uuid.UUID       `gorm:"column:pricing_tier_id;type:uuid;primaryKey" json:"pricing_tier_id"`
	CollectionID  uuid.UUID       `gorm:"column:collection_id;type:uuid;not null;uniqueIndex:idx_tier_collection_pct" json:"collection_id"`
	Percentage    int             `gorm:"column:percentage;not null;uniqueIndex:idx_tier_collection_pct" json:"percentage"`
	CryptoPrice   decimal.Decimal `gorm:"column:crypto_price;type:decimal(20,2);not null" json:"crypto_price"`
	FiatPrice     decimal.Decimal `gorm:"column:fiat_price;type:decimal(20,2);not null" json:"fiat_price"`
	DisplayLabel  string          `gorm:"column:display_label" json:"display_label"`
	IsActive      bool            `gorm:"column:is_active;not null;default:true" json:"is_active"`
	ValidFrom     *time.Time      `gorm:"column:valid_from" json:"valid_from"`
	ValidUntil    *time.Time      `gorm:"column:valid_until" json:"valid_until"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func (PricingTier) TableName() string {
	return "PricingTiers"
}

func (t *PricingTier) BeforeCreate(tx *gorm.DB) error {
	if t.PricingTierID == uuid.Nil {
		t.PricingTierID = uuid.New()
	}
	return nil
}
