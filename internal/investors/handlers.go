package investors

import (
	"stayvest-backend/internal/middleware"
	"stayvest-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *Service
}

// GetMyPortfolio GET /api/v1/investors/portfolio: the signed-in user's holdings.
func (h *Handlers) GetMyPortfolio(c *fiber.Ctx) error {
	userID, err := actorUserID(c)
	if err != nil {
		return response.Unauthorized(c, "Not authenticated")
	}
	portfolio, err := h.Service.GetPortfolio(c.Context(), userID)
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Portfolio fetched successfully", portfolio, nil)
}

// GetPortfolio GET /api/v1/admin/investors/:user_id/portfolio
func (h *Handlers) GetPortfolio(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("user_id"))
	if err != nil {
		return response.Error(c, "Invalid user_id format", 400, nil)
	}
	portfolio, err := h.Service.GetPortfolio(c.Context(), userID)
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Portfolio fetched successfully", portfolio, nil)
}

// Reconcile GET /api/v1/admin/investors/reconcile: drift report for the
// denormalized investor totals.
func (h *Handlers) Reconcile(c *fiber.Ctx) error {
	reports, err := h.Service.Reconcile(c.Context())
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Investor reconciliation complete", fiber.Map{
		"drift_count": len(reports),
		"reports":     reports,
	}, nil)
}

func actorUserID(c *fiber.Ctx) (uuid.UUID, error) {
	u := middleware.GetUser(c)
	m, ok := u.(map[string]interface{})
	if !ok {
		return uuid.Nil, fiber.ErrUnauthorized
	}
	idStr, _ := m["user_id"].(string)
	return uuid.Parse(idStr)
}
