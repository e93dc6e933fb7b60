package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stayvest-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Generator produces the actual PDF for a document and returns its stored
// URL. PDF rendering is a black-box capability outside this service.
type Generator interface {
	Generate(ctx context.Context, kind string, ownership *domain.Ownership) (url string, err error)
}

// StubGenerator records a deterministic placeholder URL. Used until a real
// renderer is wired and in tests.
type StubGenerator struct {
	BaseURL string
}

func (g *StubGenerator) Generate(ctx context.Context, kind string, ownership *domain.Ownership) (string, error) {
	base := g.BaseURL
	if base == "" {
		base = "https://storage.stayvest.app/documents"
	}
	return fmt.Sprintf("%s/%s-%s.pdf", base, ownership.OwnershipID, kind), nil
}

type Service struct {
	DB        *gorm.DB
	Generator Generator
}

// CreateForOwnership generates the MOA and RMA for a fresh ownership. Each
// document is independent: one failing generation does not block the other.
func (s *Service) CreateForOwnership(ctx context.Context, ownership *domain.Ownership) error {
	var firstErr error
	for _, kind := range []string{domain.DocumentMOA, domain.DocumentRMA} {
		if err := s.createOne(ctx, kind, ownership); err != nil {
			log.Error().Err(err).Str("kind", kind).Str("ownership_id", ownership.OwnershipID.String()).Msg("Document generation failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Service) createOne(ctx context.Context, kind string, ownership *domain.Ownership) error {
	// Replayed settlements must not mint duplicate documents.
	var existing domain.Document
	err := s.DB.WithContext(ctx).
		Where("ownership_id = ? AND kind = ?", ownership.OwnershipID, kind).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	url := ""
	if s.Generator != nil {
		url, err = s.Generator.Generate(ctx, kind, ownership)
		if err != nil {
			return err
		}
	}
	return s.DB.WithContext(ctx).Create(&domain.Document{
		OwnershipID: ownership.OwnershipID,
		Kind:        kind,
		URL:         url,
	}).Error
}

// ListForOwnership returns the documents of one ownership.
func (s *Service) ListForOwnership(ctx context.Context, ownershipID uuid.UUID) ([]domain.Document, error) {
	var docs []domain.Document
	if err := s.DB.WithContext(ctx).Where("ownership_id = ?", ownershipID).Order("kind ASC").Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// Sign marks a document signed and mirrors the state onto the ownership so
// portfolio views need no join. Only the owning user may sign.
func (s *Service) Sign(ctx context.Context, documentID, userID uuid.UUID) (*domain.Document, error) {
	var doc domain.Document
	if err := s.DB.WithContext(ctx).Where("document_id = ?", documentID).First(&doc).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.New("Document not found")
		}
		return nil, err
	}

	var ownership domain.Ownership
	if err := s.DB.WithContext(ctx).Where("ownership_id = ?", doc.OwnershipID).First(&ownership).Error; err != nil {
		return nil, err
	}
	if ownership.UserID != userID {
		return nil, errors.New("Document does not belong to this user")
	}
	if doc.Signed {
		return &doc, nil
	}

	now := time.Now()
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Document{}).
			Where("document_id = ?", documentID).
			Updates(map[string]interface{}{"signed": true, "signed_at": now}).Error; err != nil {
			return err
		}
		ownershipField := map[string]interface{}{}
		switch doc.Kind {
		case domain.DocumentMOA:
			ownershipField["moa_signed"] = true
			ownershipField["moa_signed_at"] = now
		case domain.DocumentRMA:
			ownershipField["rma_signed"] = true
			ownershipField["rma_signed_at"] = now
		}
		return tx.Model(&domain.Ownership{}).
			Where("ownership_id = ?", doc.OwnershipID).
			Updates(ownershipField).Error
	})
	if err != nil {
		return nil, err
	}
	doc.Signed = true
	doc.SignedAt = &now
	return &doc, nil
}
