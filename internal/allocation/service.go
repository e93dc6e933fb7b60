package allocation

import (
	"context"
	"errors"

	"stayvest-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNoAvailableUnit means no unit in the collection has enough remaining
// capacity for the requested percentage. Callers must treat this as "sold
// out for this tier" and never assign partial capacity.
var ErrNoAvailableUnit = errors.New("No available units with sufficient capacity")

// UnitAvailability is the per-unit capacity summary for a collection.
type UnitAvailability struct {
	UnitID      uuid.UUID `json:"unit_id"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	AllocatedBP int       `json:"allocated_bp"`
	RemainingBP int       `json:"remaining_bp"`
}

// FindAvailableUnit picks one unit of the collection with room for
// requestedBP more basis points, scanning units in creation order
// (first-fit; packing optimality is irrelevant since units are not fungible
// in price). Must be called inside the transaction that will insert the
// ownership: the FOR UPDATE lock on the unit rows keeps the capacity check
// and the insert atomic against concurrent settlements.
//
// Allocated capacity counts ownerships with nil or APPROVED approval status;
// pending staff entries do not yet block buyers and rejected ones release
// their capacity.
func FindAvailableUnit(tx *gorm.DB, collectionID uuid.UUID, requestedBP int) (*domain.Unit, error) {
	if requestedBP <= 0 || requestedBP > domain.TotalUnitBasisPoints {
		return nil, ErrNoAvailableUnit
	}

	// SQLite (tests) has a single writer and no FOR UPDATE syntax.
	locked := tx
	if tx.Dialector.Name() == "postgres" {
		locked = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var units []domain.Unit
	if err := locked.
		Where("collection_id = ? AND status <> ?", collectionID, domain.UnitDraft).
		Order("created_at ASC, unit_id ASC").
		Find(&units).Error; err != nil {
		return nil, err
	}

	for i := range units {
		allocated, err := allocatedBasisPoints(tx, units[i].UnitID)
		if err != nil {
			return nil, err
		}
		if allocated+requestedBP <= domain.TotalUnitBasisPoints {
			return &units[i], nil
		}
	}
	return nil, ErrNoAvailableUnit
}

// AllocatedBasisPoints sums percentage_owned over capacity-consuming
// ownerships of one unit. Callers that need the figure to stay true until
// they commit must hold the unit row lock themselves.
func AllocatedBasisPoints(tx *gorm.DB, unitID uuid.UUID) (int, error) {
	return allocatedBasisPoints(tx, unitID)
}

func allocatedBasisPoints(tx *gorm.DB, unitID uuid.UUID) (int, error) {
	var total int64
	err := tx.Model(&domain.Ownership{}).
		Where("unit_id = ? AND (approval_status IS NULL OR approval_status = ?)", unitID, domain.ApprovalApproved).
		Select("COALESCE(SUM(percentage_owned), 0)").
		Scan(&total).Error
	return int(total), err
}

// RefreshUnitStatus flips the unit to SOLD_OUT when fully allocated and back
// to AVAILABLE when capacity frees up (e.g. a staff entry gets rejected).
// Draft units are left alone.
func RefreshUnitStatus(tx *gorm.DB, unitID uuid.UUID) error {
	var unit domain.Unit
	if err := tx.Where("unit_id = ?", unitID).First(&unit).Error; err != nil {
		return err
	}
	if unit.Status == domain.UnitDraft {
		return nil
	}
	allocated, err := allocatedBasisPoints(tx, unitID)
	if err != nil {
		return err
	}
	status := domain.UnitAvailable
	if allocated >= domain.TotalUnitBasisPoints {
		status = domain.UnitSoldOut
	}
	if status == unit.Status {
		return nil
	}
	return tx.Model(&domain.Unit{}).Where("unit_id = ?", unitID).Update("status", status).Error
}

// CollectionAvailability returns the capacity summary for every non-draft
// unit of a collection (read-only, no locks).
func CollectionAvailability(ctx context.Context, db *gorm.DB, collectionID uuid.UUID) ([]UnitAvailability, error) {
	var units []domain.Unit
	if err := db.WithContext(ctx).
		Where("collection_id = ? AND status <> ?", collectionID, domain.UnitDraft).
		Order("created_at ASC, unit_id ASC").
		Find(&units).Error; err != nil {
		return nil, err
	}

	out := make([]UnitAvailability, 0, len(units))
	for _, u := range units {
		allocated, err := allocatedBasisPoints(db.WithContext(ctx), u.UnitID)
		if err != nil {
			return nil, err
		}
		out = append(out, UnitAvailability{
			UnitID:      u.UnitID,
			Name:        u.Name,
			Status:      u.Status,
			AllocatedBP: allocated,
			RemainingBP: domain.TotalUnitBasisPoints - allocated,
		})
	}
	return out, nil
}
