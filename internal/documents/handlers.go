package documents

import (
	"stayvest-backend/internal/middleware"
	"stayvest-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *Service
}

// ListForOwnership GET /api/v1/documents/ownership/:ownership_id
func (h *Handlers) ListForOwnership(c *fiber.Ctx) error {
	ownershipID, err := uuid.Parse(c.Params("ownership_id"))
	if err != nil {
		return response.Error(c, "Invalid ownership_id format", 400, nil)
	}
	docs, err := h.Service.ListForOwnership(c.Context(), ownershipID)
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Documents fetched successfully", docs, nil)
}

// Sign POST /api/v1/documents/:document_id/sign: the signed-in owner
// signs their MOA or RMA.
func (h *Handlers) Sign(c *fiber.Ctx) error {
	documentID, err := uuid.Parse(c.Params("document_id"))
	if err != nil {
		return response.Error(c, "Invalid document_id format", 400, nil)
	}
	userID, err := actorUserID(c)
	if err != nil {
		return response.Unauthorized(c, "Not authenticated")
	}

	doc, err := h.Service.Sign(c.Context(), documentID, userID)
	if err != nil {
		statusMap := map[string]int{
			"Document not found":                    404,
			"Document does not belong to this user": 403,
		}
		if code, ok := statusMap[err.Error()]; ok {
			return response.Error(c, err.Error(), code, nil)
		}
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Document signed successfully", doc, nil)
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
