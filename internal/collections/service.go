package collections

import (
	"context"
	"errors"
	"strings"
	"time"

	"stayvest-backend/internal/allocation"
	"stayvest-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service struct {
	DB *gorm.DB
}

// CreateCollectionInput for admin collection creation.
type CreateCollectionInput struct {
	Name         string          `json:"name"`
	Slug         string          `json:"slug"`
	Description  string          `json:"description"`
	NightlyPrice decimal.Decimal `json:"nightly_price"`
	CleaningFee  decimal.Decimal `json:"cleaning_fee"`
	MaxGuests    int             `json:"max_guests"`
	HeroImageURL string          `json:"hero_image_url"`
}

func (s *Service) CreateCollection(ctx context.Context, in CreateCollectionInput) (*domain.Collection, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, errors.New("Collection name is required")
	}
	slug := strings.ToLower(strings.TrimSpace(in.Slug))
	if slug == "" {
		slug = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(in.Name), " ", "-"))
	}
	var existing domain.Collection
	if err := s.DB.WithContext(ctx).Where("slug = ?", slug).First(&existing).Error; err == nil {
		return nil, errors.New("Collection slug already in use")
	}

	c := &domain.Collection{
		Name:         strings.TrimSpace(in.Name),
		Slug:         slug,
		Description:  in.Description,
		IsActive:     true,
		NightlyPrice: in.NightlyPrice,
		CleaningFee:  in.CleaningFee,
		MaxGuests:    in.MaxGuests,
		HeroImageURL: in.HeroImageURL,
	}
	if err := s.DB.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteCollection removes a collection only while nothing has been sold or
// offered against it: any unit or tier blocks deletion.
func (s *Service) DeleteCollection(ctx context.Context, collectionID uuid.UUID) error {
	var c domain.Collection
	if err := s.DB.WithContext(ctx).Where("collection_id = ?", collectionID).First(&c).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return errors.New("Collection not found")
		}
		return err
	}

	var unitCount, tierCount int64
	if err := s.DB.WithContext(ctx).Model(&domain.Unit{}).Where("collection_id = ?", collectionID).Count(&unitCount).Error; err != nil {
		return err
	}
	if err := s.DB.WithContext(ctx).Model(&domain.PricingTier{}).Where("collection_id = ?", collectionID).Count(&tierCount).Error; err != nil {
		return err
	}
	if unitCount > 0 || tierCount > 0 {
		return errors.New("Collection has units or pricing tiers and cannot be deleted")
	}
	return s.DB.WithContext(ctx).Delete(&c).Error
}

// CreateUnit adds a physical unit to a collection.
func (s *Service) CreateUnit(ctx context.Context, collectionID uuid.UUID, name, status string) (*domain.Unit, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("Unit name is required")
	}
	if status == "" {
		status = domain.UnitAvailable
	}
	if status != domain.UnitAvailable && status != domain.UnitDraft {
		return nil, errors.New("Invalid unit status")
	}
	if _, err := s.getCollection(ctx, collectionID); err != nil {
		return nil, err
	}
	u := &domain.Unit{CollectionID: collectionID, Name: strings.TrimSpace(name), Status: status}
	if err := s.DB.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// CreateTierInput for admin tier creation. Percentage in basis points.
type CreateTierInput struct {
	CollectionID uuid.UUID       `json:"collection_id"`
	Percentage   int             `json:"percentage"`
	CryptoPrice  decimal.Decimal `json:"crypto_price"`
	FiatPrice    decimal.Decimal `json:"fiat_price"`
	DisplayLabel string          `json:"display_label"`
	ValidFrom    *time.Time      `json:"valid_from"`
	ValidUntil   *time.Time      `json:"valid_until"`
}

func (s *Service) CreateTier(ctx context.Context, in CreateTierInput) (*domain.PricingTier, error) {
	if in.Percentage <= 0 || in.Percentage > domain.TotalUnitBasisPoints {
		return nil, errors.New("Percentage must be between 1 and 10000 basis points")
	}
	if in.FiatPrice.LessThanOrEqual(decimal.Zero) || in.CryptoPrice.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("Tier prices must be positive")
	}
	if _, err := s.getCollection(ctx, in.CollectionID); err != nil {
		return nil, err
	}
	var existing domain.PricingTier
	if err := s.DB.WithContext(ctx).
		Where("collection_id = ? AND percentage = ?", in.CollectionID, in.Percentage).
		First(&existing).Error; err == nil {
		return nil, errors.New("A tier with this percentage already exists for the collection")
	}

	t := &domain.PricingTier{
		CollectionID: in.CollectionID,
		Percentage:   in.Percentage,
		CryptoPrice:  in.CryptoPrice,
		FiatPrice:    in.FiatPrice,
		DisplayLabel: in.DisplayLabel,
		IsActive:     true,
		ValidFrom:    in.ValidFrom,
		ValidUntil:   in.ValidUntil,
	}
	if err := s.DB.WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// ActiveTier fetches an active, currently-valid tier and verifies it belongs
// to the collection (defense against client tampering: a buyer must not be
// able to pair a cheap tier from one collection with a unit of another).
func (s *Service) ActiveTier(ctx context.Context, collectionID, tierID uuid.UUID) (*domain.PricingTier, error) {
	var tier domain.PricingTier
	if err := s.DB.WithContext(ctx).Where("pricing_tier_id = ?", tierID).First(&tier).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.New("Pricing tier not found")
		}
		return nil, err
	}
	if tier.CollectionID != collectionID {
		return nil, errors.New("Pricing tier does not belong to this collection")
	}
	if !tier.IsActive {
		return nil, errors.New("Pricing tier is not active")
	}
	now := time.Now()
	if tier.ValidFrom != nil && now.Before(*tier.ValidFrom) {
		return nil, errors.New("Pricing tier is not active")
	}
	if tier.ValidUntil != nil && now.After(*tier.ValidUntil) {
		return nil, errors.New("Pricing tier is not active")
	}
	return &tier, nil
}

// CollectionDetail is the public browse view.
type CollectionDetail struct {
	Collection   domain.Collection             `json:"collection"`
	Tiers        []domain.PricingTier          `json:"tiers"`
	Availability []allocation.UnitAvailability `json:"availability"`
}

// GetBySlug returns an active collection with its tiers and unit availability.
func (s *Service) GetBySlug(ctx context.Context, slug string) (*CollectionDetail, error) {
	var c domain.Collection
	if err := s.DB.WithContext(ctx).Where("slug = ? AND is_active = ?", strings.ToLower(slug), true).First(&c).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.New("Collection not found")
		}
		return nil, err
	}

	var tiers []domain.PricingTier
	if err := s.DB.WithContext(ctx).
		Where("collection_id = ? AND is_active = ?", c.CollectionID, true).
		Order("percentage ASC").
		Find(&tiers).Error; err != nil {
		return nil, err
	}

	availability, err := allocation.CollectionAvailability(ctx, s.DB, c.CollectionID)
	if err != nil {
		return nil, err
	}

	return &CollectionDetail{Collection: c, Tiers: tiers, Availability: availability}, nil
}

// ListActive returns all active collections.
func (s *Service) ListActive(ctx context.Context) ([]domain.Collection, error) {
	var out []domain.Collection
	if err := s.DB.WithContext(ctx).Where("is_active = ?", true).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) getCollection(ctx context.Context, id uuid.UUID) (*domain.Collection, error) {
	var c domain.Collection
	if err := s.DB.WithContext(ctx).Where("collection_id = ?", id).First(&c).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.New("Collection not found")
		}
		return nil, err
	}
	return &c, nil
}
