package users

import (
	"stayvest-backend/internal/domain"
	"stayvest-backend/internal/middleware"
	"stayvest-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const userSessionsPrefix = "user_sessions:"

// Handlers holds the user service and session config for registration
// (which logs the user in directly).
type Handlers struct {
	Service *Service
	Rdb     *redis.Client
	Config  middleware.SessionConfig
}

// CreateUserRequest body.
type CreateUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Fullname string `json:"fullname"`
}

// CreateUser POST /api/v1/users/create-user: register, rotate session,
// set cookie, return 201 with data.user.
func (h *Handlers) CreateUser(c *fiber.Ctx) error {
	var req CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	if req.Email == "" || req.Password == "" || req.Fullname == "" {
		return response.Error(c, "Missing required fields", 400, nil)
	}

	u, err := h.Service.CreateUser(c.Context(), CreateUserInput{
		Email:    req.Email,
		Password: req.Password,
		Fullname: req.Fullname,
	})
	if err != nil {
		return mapCreateError(c, err)
	}

	sid := middleware.RegenerateSessionID(c)
	middleware.SetSessionUser(c, middleware.SessionUser{
		UserID:   u.UserID.String(),
		Fullname: u.Fullname,
		Email:    u.Email,
		Role:     u.Role,
	})
	if h.Rdb != nil {
		_ = h.Rdb.SAdd(c.Context(), userSessionsPrefix+u.UserID.String(), sid).Err()
	}

	cookie := middleware.SessionCookieConfig(h.Config)
	cookie.Value = "s:" + sid
	c.Cookie(&cookie)

	return response.SuccessCreated(c, "User created successfully", fiber.Map{"user": safeUser(u)}, nil)
}

// ViewUser GET /api/v1/users/view-user: returns the session user.
func (h *Handlers) ViewUser(c *fiber.Ctx) error {
	actor := getSessionActor(c)
	if actor == nil {
		return response.Unauthorized(c, "Unauthorized")
	}

	u, err := h.Service.ViewUser(c.Context(), actor.UserID)
	if err != nil {
		return mapViewError(c, err)
	}
	return response.Success(c, "User found", fiber.Map{"user": safeUser(u)}, nil)
}

// UpdateRoleRequest body: user_id, role.
type UpdateRoleRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// UpdateRole PATCH /api/v1/users/update-role: requires ASSIGN_ROLE
// (middleware applied on route).
func (h *Handlers) UpdateRole(c *fiber.Ctx) error {
	var req UpdateRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "user_id and role are required", 400, nil)
	}
	if req.UserID == "" || req.Role == "" {
		return response.Error(c, "user_id and role are required", 400, nil)
	}

	u, err := h.Service.UpdateRole(c.Context(), req.UserID, req.Role)
	if err != nil {
		msg := err.Error()
		if msg == "User not found" {
			return response.Error(c, msg, 404, nil)
		}
		return response.Error(c, msg, 400, nil)
	}
	return response.Success(c, "User role updated successfully", fiber.Map{"user": safeUser(u)}, nil)
}

type sessionActor struct {
	UserID string
	Role   string
}

func getSessionActor(c *fiber.Ctx) *sessionActor {
	u := middleware.GetUser(c)
	if u == nil {
		return nil
	}
	m, ok := u.(map[string]interface{})
	if !ok {
		return nil
	}
	userID, _ := m["user_id"].(string)
	role, _ := m["role"].(string)
	if userID == "" || role == "" {
		return nil
	}
	return &sessionActor{UserID: userID, Role: role}
}

func safeUser(u *domain.User) fiber.Map {
	return fiber.Map{
		"user_id":      u.UserID.String(),
		"fullname":     u.Fullname,
		"email":        u.Email,
		"role":         u.Role,
		"is_affiliate": u.IsAffiliate,
		"createdAt":    u.CreatedAt,
		"updatedAt":    u.UpdatedAt,
	}
}

func mapCreateError(c *fiber.Ctx, err error) error {
	msg := err.Error()
	status := 500
	switch {
	case msg == "Invalid email format", msg == "Invalid password format",
		msg == "Full name is required and must be a non-empty string",
		msg == "Full name contains invalid characters (only letters, spaces, hyphens, and apostrophes allowed)":
		status = 400
	case msg == "Email already registered":
		status = 409
	}
	return response.Error(c, msg, status, nil)
}

func mapViewError(c *fiber.Ctx, err error) error {
	msg := err.Error()
	status := 500
	switch {
	case msg == "Missing user ID", msg == "Invalid user ID format (must be a valid UUID)":
		status = 400
	case msg == "User not found":
		status = 404
	}
	return response.Error(c, msg, status, nil)
}
