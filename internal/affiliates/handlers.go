package affiliates

import (
	"stayvest-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Handlers struct {
	Service *Service
}

// CreateProfile POST /api/v1/admin/affiliates
func (h *Handlers) CreateProfile(c *fiber.Ctx) error {
	var body struct {
		UserID         string `json:"user_id"`
		CommissionRate string `json:"commission_rate"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	userID, err := uuid.Parse(body.UserID)
	if err != nil {
		return response.Error(c, "Invalid user_id format", 400, nil)
	}
	rate, err := decimal.NewFromString(body.CommissionRate)
	if err != nil {
		return response.Error(c, "Invalid commission_rate", 400, nil)
	}

	profile, err := h.Service.CreateProfile(c.Context(), userID, rate)
	if err != nil {
		statusMap := map[string]int{
			"Commission rate must be between 0 and 100": 400,
			"User not found":              404,
			"User is already an affiliate": 409,
		}
		if code, ok := statusMap[err.Error()]; ok {
			return response.Error(c, err.Error(), code, nil)
		}
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.SuccessCreated(c, "Affiliate profile created successfully", profile, nil)
}

// CreateLink POST /api/v1/admin/affiliates/:profile_id/links
func (h *Handlers) CreateLink(c *fiber.Ctx) error {
	profileID, err := uuid.Parse(c.Params("profile_id"))
	if err != nil {
		return response.Error(c, "Invalid profile_id format", 400, nil)
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}

	link, err := h.Service.CreateLink(c.Context(), profileID, body.Code)
	if err != nil {
		statusMap := map[string]int{
			"Referral code is required":     400,
			"Affiliate profile not found":   404,
			"Referral code already in use":  409,
		}
		if code, ok := statusMap[err.Error()]; ok {
			return response.Error(c, err.Error(), code, nil)
		}
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.SuccessCreated(c, "Referral link created successfully", link, nil)
}

// TrackClick POST /api/v1/affiliates/track-click: public, fire and forget.
func (h *Handlers) TrackClick(c *fiber.Ctx) error {
	var body struct {
		Code string `json:"code"`
	}
	if err := c.BodyParser(&body); err != nil || body.Code == "" {
		return response.Error(c, "code is required", 400, nil)
	}
	if err := h.Service.TrackClick(c.Context(), body.Code); err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Click recorded", nil, nil)
}

// MarkPaid POST /api/v1/admin/affiliates/commissions/:transaction_id/mark-paid
func (h *Handlers) MarkPaid(c *fiber.Ctx) error {
	transactionID, err := uuid.Parse(c.Params("transaction_id"))
	if err != nil {
		return response.Error(c, "Invalid transaction_id format", 400, nil)
	}
	txn, err := h.Service.MarkPaid(c.Context(), transactionID)
	if err != nil {
		if err.Error() == "Commission transaction not found" {
			return response.Error(c, err.Error(), 404, nil)
		}
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Commission marked as paid", txn, nil)
}

// Reconcile GET /api/v1/admin/affiliates/reconcile
func (h *Handlers) Reconcile(c *fiber.Ctx) error {
	reports, err := h.Service.Reconcile(c.Context())
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Affiliate reconciliation complete", fiber.Map{
		"drift_count": len(reports),
		"reports":     reports,
	}, nil)
}
