package ownerships

import (
	"stayvest-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Handlers struct {
	Service *Service
}

// SubmitEntry POST /api/v1/staff/ownership-entries: requires
// SUBMIT_OWNERSHIP_ENTRY.
func (h *Handlers) SubmitEntry(c *fiber.Ctx) error {
	var body struct {
		UnitID          string `json:"unit_id"`
		UserID          string `json:"user_id"`
		PercentageOwned int    `json:"percentage_owned"`
		PurchasePrice   string `json:"purchase_price"`
		Currency        string `json:"currency"`
		PaymentMethod   string `json:"payment_method"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	unitID, err := uuid.Parse(body.UnitID)
	if err != nil {
		return response.Error(c, "Invalid unit_id format", 400, nil)
	}
	userID, err := uuid.Parse(body.UserID)
	if err != nil {
		return response.Error(c, "Invalid user_id format", 400, nil)
	}
	price, err := decimal.NewFromString(body.PurchasePrice)
	if err != nil {
		return response.Error(c, "Invalid purchase_price", 400, nil)
	}

	entry, err := h.Service.SubmitEntry(c.Context(), SubmitEntryInput{
		UnitID:          unitID,
		UserID:          userID,
		PercentageOwned: body.PercentageOwned,
		PurchasePrice:   price,
		Currency:        body.Currency,
		PaymentMethod:   body.PaymentMethod,
	})
	if err != nil {
		return mapEntryError(c, err)
	}
	return response.SuccessCreated(c, "Ownership entry submitted for approval", entry, nil)
}

// ListPending GET /api/v1/admin/ownership-entries/pending
func (h *Handlers) ListPending(c *fiber.Ctx) error {
	entries, err := h.Service.ListPending(c.Context())
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Pending entries fetched successfully", entries, nil)
}

// Approve POST /api/v1/admin/ownership-entries/:ownership_id/approve
func (h *Handlers) Approve(c *fiber.Ctx) error {
	ownershipID, err := uuid.Parse(c.Params("ownership_id"))
	if err != nil {
		return response.Error(c, "Invalid ownership_id format", 400, nil)
	}
	entry, err := h.Service.Approve(c.Context(), ownershipID)
	if err != nil {
		return mapEntryError(c, err)
	}
	return response.Success(c, "Ownership entry approved", entry, nil)
}

// Reject POST /api/v1/admin/ownership-entries/:ownership_id/reject
func (h *Handlers) Reject(c *fiber.Ctx) error {
	ownershipID, err := uuid.Parse(c.Params("ownership_id"))
	if err != nil {
		return response.Error(c, "Invalid ownership_id format", 400, nil)
	}
	entry, err := h.Service.Reject(c.Context(), ownershipID)
	if err != nil {
		return mapEntryError(c, err)
	}
	return response.Success(c, "Ownership entry rejected", entry, nil)
}

// Revoke POST /api/v1/admin/ownership-entries/:ownership_id/revoke rejects
// an already approved entry, releasing its capacity.
func (h *Handlers) Revoke(c *fiber.Ctx) error {
	ownershipID, err := uuid.Parse(c.Params("ownership_id"))
	if err != nil {
		return response.Error(c, "Invalid ownership_id format", 400, nil)
	}
	entry, err := h.Service.RejectApproved(c.Context(), ownershipID)
	if err != nil {
		return mapEntryError(c, err)
	}
	return response.Success(c, "Ownership entry revoked", entry, nil)
}

func mapEntryError(c *fiber.Ctx, err error) error {
	statusMap := map[error]int{
		ErrEntryNotFound:      404,
		ErrUnitNotFound:       404,
		ErrUserNotFound:       404,
		ErrEntryNotPending:    409,
		ErrInvalidPercentage:  400,
		ErrCapacityExceeded:   409,
		ErrNotStaffSubmission: 400,
	}
	if code, ok := statusMap[err]; ok {
		return response.Error(c, err.Error(), code, nil)
	}
	return response.Error(c, "Internal Server Error", 500, nil)
}
