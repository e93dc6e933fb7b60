package payments

import (
	"errors"

	"stayvest-backend/internal/middleware"
	"stayvest-backend/internal/pkg/response"
	"stayvest-backend/internal/settlement"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers serves the buyer-facing purchase endpoints and the admin
// manual-payment queue. Webhook/callback endpoints live on their own
// handler structs.
type Handlers struct {
	Checkout *CheckoutService
	Manual   *ManualService
}

// CreateStripeCheckout POST /api/v1/purchases/stripe/checkout. Works for
// guests (email in body) and signed-in users (session identity attached).
func (h *Handlers) CreateStripeCheckout(c *fiber.Ctx) error {
	var body struct {
		CollectionID  string `json:"collection_id"`
		PricingTierID string `json:"pricing_tier_id"`
		Email         string `json:"email"`
		Fullname      string `json:"fullname"`
		AffiliateCode string `json:"affiliate_code"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	collectionID, err := uuid.Parse(body.CollectionID)
	if err != nil {
		return response.Error(c, "Invalid collection_id format", 400, nil)
	}
	tierID, err := uuid.Parse(body.PricingTierID)
	if err != nil {
		return response.Error(c, "Invalid pricing_tier_id format", 400, nil)
	}

	email := body.Email
	fullname := body.Fullname
	var userID *uuid.UUID
	if actor := sessionIdentity(c); actor != nil {
		userID = &actor.ID
		if email == "" {
			email = actor.Email
		}
		if fullname == "" {
			fullname = actor.Fullname
		}
	}
	if email == "" {
		return response.Error(c, "email is required", 400, nil)
	}

	result, err := h.Checkout.CreateStripeSession(c.Context(), CheckoutInput{
		CollectionID:  collectionID,
		PricingTierID: tierID,
		Email:         email,
		Fullname:      fullname,
		UserID:        userID,
		AffiliateCode: body.AffiliateCode,
	})
	if err != nil {
		return mapPurchaseError(c, err)
	}
	return response.Success(c, "Checkout session created", result, nil)
}

// InitiateManual POST /api/v1/purchases/manual/initiate
func (h *Handlers) InitiateManual(c *fiber.Ctx) error {
	var body struct {
		CollectionID  string `json:"collection_id"`
		PricingTierID string `json:"pricing_tier_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	collectionID, err := uuid.Parse(body.CollectionID)
	if err != nil {
		return response.Error(c, "Invalid collection_id format", 400, nil)
	}
	tierID, err := uuid.Parse(body.PricingTierID)
	if err != nil {
		return response.Error(c, "Invalid pricing_tier_id format", 400, nil)
	}

	result, err := h.Manual.Initiate(c.Context(), ManualInitiateInput{
		CollectionID:  collectionID,
		PricingTierID: tierID,
	})
	if err != nil {
		return mapPurchaseError(c, err)
	}
	return response.Success(c, "Bank transfer instructions generated", result, nil)
}

// SubmitManualProof POST /api/v1/purchases/manual/submit-proof
func (h *Handlers) SubmitManualProof(c *fiber.Ctx) error {
	var body struct {
		ReferenceCode string `json:"reference_code"`
		CollectionID  string `json:"collection_id"`
		PricingTierID string `json:"pricing_tier_id"`
		Email         string `json:"email"`
		Fullname      string `json:"fullname"`
		AffiliateCode string `json:"affiliate_code"`
		ProofURL      string `json:"proof_url"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	if body.ReferenceCode == "" {
		return response.Error(c, "reference_code is required", 400, nil)
	}
	collectionID, err := uuid.Parse(body.CollectionID)
	if err != nil {
		return response.Error(c, "Invalid collection_id format", 400, nil)
	}
	tierID, err := uuid.Parse(body.PricingTierID)
	if err != nil {
		return response.Error(c, "Invalid pricing_tier_id format", 400, nil)
	}

	email := body.Email
	var userID *uuid.UUID
	if actor := sessionIdentity(c); actor != nil {
		userID = &actor.ID
		if email == "" {
			email = actor.Email
		}
	}
	if email == "" {
		return response.Error(c, "email is required", 400, nil)
	}

	payment, err := h.Manual.SubmitProof(c.Context(), ManualSubmitInput{
		ReferenceCode: body.ReferenceCode,
		CollectionID:  collectionID,
		PricingTierID: tierID,
		Email:         email,
		Fullname:      body.Fullname,
		UserID:        userID,
		AffiliateCode: body.AffiliateCode,
		ProofURL:      body.ProofURL,
	})
	if err != nil {
		return mapPurchaseError(c, err)
	}
	return response.SuccessCreated(c, "Payment proof submitted for review", payment, nil)
}

// ListPendingManual GET /api/v1/admin/manual-payments/pending
func (h *Handlers) ListPendingManual(c *fiber.Ctx) error {
	payments, err := h.Manual.ListPending(c.Context())
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Pending manual payments fetched", payments, nil)
}

// ApproveManual POST /api/v1/admin/manual-payments/:reference/approve
func (h *Handlers) ApproveManual(c *fiber.Ctx) error {
	reference := c.Params("reference")
	if reference == "" {
		return response.Error(c, "reference is required", 400, nil)
	}
	result, err := h.Manual.Approve(c.Context(), reference)
	if err != nil {
		return mapPurchaseError(c, err)
	}
	msg := "Payment approved and shares allocated"
	if result.AlreadyProcessed {
		msg = "Payment was already settled"
	}
	return response.Success(c, msg, result, nil)
}

// RejectManual POST /api/v1/admin/manual-payments/:reference/reject
func (h *Handlers) RejectManual(c *fiber.Ctx) error {
	reference := c.Params("reference")
	if reference == "" {
		return response.Error(c, "reference is required", 400, nil)
	}
	if err := h.Manual.Reject(c.Context(), reference); err != nil {
		return mapPurchaseError(c, err)
	}
	return response.Success(c, "Payment rejected", nil, nil)
}

type identity struct {
	ID       uuid.UUID
	Email    string
	Fullname string
}

func sessionIdentity(c *fiber.Ctx) *identity {
	u := middleware.GetUser(c)
	m, ok := u.(map[string]interface{})
	if !ok {
		return nil
	}
	idStr, _ := m["user_id"].(string)
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil
	}
	email, _ := m["email"].(string)
	fullname, _ := m["fullname"].(string)
	return &identity{ID: id, Email: email, Fullname: fullname}
}

func mapPurchaseError(c *fiber.Ctx, err error) error {
	statusMap := map[error]int{
		ErrCollectionNotFound:             404,
		ErrTierNotAvailable:               400,
		ErrReferenceNotFound:              404,
		ErrPaymentNotPending:              409,
		ErrProofRequired:                  400,
		settlement.ErrNoAvailableUnit:     409,
		settlement.ErrPricingTierNotFound: 404,
		settlement.ErrPaymentNotFound:     404,
	}
	for sentinel, code := range statusMap {
		if errors.Is(err, sentinel) {
			return response.Error(c, err.Error(), code, nil)
		}
	}
	statusByMsg := map[string]int{
		"Pricing tier not found":                         404,
		"Pricing tier does not belong to this collection": 400,
		"Pricing tier is not active":                     400,
	}
	if code, ok := statusByMsg[err.Error()]; ok {
		return response.Error(c, err.Error(), code, nil)
	}
	return response.Error(c, "Internal Server Error", 500, nil)
}
