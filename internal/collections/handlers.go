package collections

import (
	"stayvest-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Handlers struct {
	Service *Service
}

// ListActive GET /api/v1/collections
func (h *Handlers) ListActive(c *fiber.Ctx) error {
	collections, err := h.Service.ListActive(c.Context())
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Collections fetched successfully", collections, nil)
}

// GetBySlug GET /api/v1/collections/:slug
func (h *Handlers) GetBySlug(c *fiber.Ctx) error {
	slug := c.Params("slug")
	if slug == "" {
		return response.Error(c, "slug is required", 400, nil)
	}
	detail, err := h.Service.GetBySlug(c.Context(), slug)
	if err != nil {
		if err.Error() == "Collection not found" {
			return response.Error(c, err.Error(), 404, nil)
		}
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Collection fetched successfully", detail, nil)
}

// CreateCollection POST /api/v1/admin/collections
func (h *Handlers) CreateCollection(c *fiber.Ctx) error {
	var body struct {
		Name         string `json:"name"`
		Slug         string `json:"slug"`
		Description  string `json:"description"`
		NightlyPrice string `json:"nightly_price"`
		CleaningFee  string `json:"cleaning_fee"`
		MaxGuests    int    `json:"max_guests"`
		HeroImageURL string `json:"hero_image_url"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	nightly, _ := decimal.NewFromString(body.NightlyPrice)
	cleaning, _ := decimal.NewFromString(body.CleaningFee)

	collection, err := h.Service.CreateCollection(c.Context(), CreateCollectionInput{
		Name:         body.Name,
		Slug:         body.Slug,
		Description:  body.Description,
		NightlyPrice: nightly,
		CleaningFee:  cleaning,
		MaxGuests:    body.MaxGuests,
		HeroImageURL: body.HeroImageURL,
	})
	if err != nil {
		statusMap := map[string]int{
			"Collection name is required":    400,
			"Collection slug already in use": 409,
		}
		if code, ok := statusMap[err.Error()]; ok {
			return response.Error(c, err.Error(), code, nil)
		}
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.SuccessCreated(c, "Collection created successfully", collection, nil)
}

// DeleteCollection DELETE /api/v1/admin/collections/:collection_id
func (h *Handlers) DeleteCollection(c *fiber.Ctx) error {
	collectionID, err := uuid.Parse(c.Params("collection_id"))
	if err != nil {
		return response.Error(c, "Invalid collection_id format", 400, nil)
	}
	if err := h.Service.DeleteCollection(c.Context(), collectionID); err != nil {
		statusMap := map[string]int{
			"Collection not found": 404,
			"Collection has units or pricing tiers and cannot be deleted": 409,
		}
		if code, ok := statusMap[err.Error()]; ok {
			return response.Error(c, err.Error(), code, nil)
		}
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Collection deleted successfully", nil, nil)
}

// CreateUnit POST /api/v1/admin/collections/:collection_id/units
func (h *Handlers) CreateUnit(c *fiber.Ctx) error {
	collectionID, err := uuid.Parse(c.Params("collection_id"))
	if err != nil {
		return response.Error(c, "Invalid collection_id format", 400, nil)
	}
	var body struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}

	unit, err := h.Service.CreateUnit(c.Context(), collectionID, body.Name, body.Status)
	if err != nil {
		statusMap := map[string]int{
			"Unit name is required": 400,
			"Invalid unit status":   400,
			"Collection not found":  404,
		}
		if code, ok := statusMap[err.Error()]; ok {
			return response.Error(c, err.Error(), code, nil)
		}
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.SuccessCreated(c, "Unit created successfully", unit, nil)
}

// CreateTier POST /api/v1/admin/collections/:collection_id/tiers
func (h *Handlers) CreateTier(c *fiber.Ctx) error {
	collectionID, err := uuid.Parse(c.Params("collection_id"))
	if err != nil {
		return response.Error(c, "Invalid collection_id format", 400, nil)
	}
	var body struct {
		Percentage   int    `json:"percentage"`
		CryptoPrice  string `json:"crypto_price"`
		FiatPrice    string `json:"fiat_price"`
		DisplayLabel string `json:"display_label"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	cryptoPrice, err := decimal.NewFromString(body.CryptoPrice)
	if err != nil {
		return response.Error(c, "Invalid crypto_price", 400, nil)
	}
	fiatPrice, err := decimal.NewFromString(body.FiatPrice)
	if err != nil {
		return response.Error(c, "Invalid fiat_price", 400, nil)
	}

	tier, err := h.Service.CreateTier(c.Context(), CreateTierInput{
		CollectionID: collectionID,
		Percentage:   body.Percentage,
		CryptoPrice:  cryptoPrice,
		FiatPrice:    fiatPrice,
		DisplayLabel: body.DisplayLabel,
	})
	if err != nil {
		statusMap := map[string]int{
			"Percentage must be between 1 and 10000 basis points":         400,
			"Tier prices must be positive":                                400,
			"A tier with this percentage already exists for the collection": 409,
			"Collection not found":                                        404,
		}
		if code, ok := statusMap[err.Error()]; ok {
			return response.Error(c, err.Error(), code, nil)
		}
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.SuccessCreated(c, "Pricing tier created successfully", tier, nil)
}
