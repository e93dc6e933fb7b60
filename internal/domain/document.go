package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Document kinds.
const (
	DocumentMOA = "MOA"
	DocumentRMA = "RMA"
)

// Document is a generated MOA or RMA belonging to an ownership. Generation
// itself is a black-box capability; this row tracks the stored URL and
// signing state.
type Document struct {
	DocumentID  uuid.UUID  `gorm:"column:document_id;type:uuid;primaryKey" json:"document_id"`
	OwnershipID uuid.UUID  `gorm:"column:ownership_id;type:uuid;not null;index:idx_document_ownership_kind,unique" json:"ownership_id"`
	Kind        string     `gorm:"column:kind;not null;index:idx_document_ownership_kind,unique" json:"kind"`
	URL         string     `gorm:"column:url" json:"url"`
	Signed      bool       `gorm:"column:signed;not null;default:false" json:"signed"`
	SignedAt    *time.Time `gorm:"column:signed_at" json:"signed_at"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (Document) TableName() string {
	return "Documents"
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.DocumentID == uuid.Nil {
		d.DocumentID = uuid.New()
	}
	return nil
}
