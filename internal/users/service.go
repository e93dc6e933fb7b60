package users

import (
	"context"
	"errors"
	"strings"

	"stayvest-backend/internal/constants"
	"stayvest-backend/internal/domain"
	"stayvest-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Service struct {
	DB *gorm.DB
}

// CreateUserInput for self-service registration.
type CreateUserInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Fullname string `json:"fullname"`
}

// CreateUser registers a user with a password.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*domain.User, error) {
	if in.Email == "" || !validation.IsValidEmail(in.Email) {
		return nil, errors.New("Invalid email format")
	}
	if in.Password == "" || !validation.IsValidPassword(in.Password) {
		return nil, errors.New("Invalid password format")
	}
	trimmed := strings.TrimSpace(in.Fullname)
	if trimmed == "" {
		return nil, errors.New("Full name is required and must be a non-empty string")
	}
	if !validation.IsValidFullname(trimmed) {
		return nil, errors.New("Full name contains invalid characters (only letters, spaces, hyphens, and apostrophes allowed)")
	}

	email := strings.TrimSpace(strings.ToLower(in.Email))

	var existing domain.User
	if err := s.DB.WithContext(ctx).Where("email = ?", email).First(&existing).Error; err == nil {
		return nil, errors.New("Email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), 10)
	if err != nil {
		return nil, err
	}

	u := &domain.User{
		Email:        email,
		PasswordHash: string(hash),
		Fullname:     trimmed,
		Role:         constants.UserRole,
	}
	if err := s.DB.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// GetOrCreateUser resolves a checkout email to a user, creating a guest
// account when none exists. This is an idempotent upsert keyed by email:
// two checkouts with the same address always resolve to the same user, and
// an existing row always wins wholesale (fullname/role from the checkout are
// ignored for existing accounts). Returns the user and whether it was
// freshly created.
func (s *Service) GetOrCreateUser(ctx context.Context, email, fullname string) (*domain.User, bool, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !validation.IsValidEmail(email) {
		return nil, false, errors.New("Invalid email format")
	}

	var u domain.User
	err := s.DB.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if err == nil {
		return &u, false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, false, err
	}

	if strings.TrimSpace(fullname) == "" {
		fullname = strings.SplitN(email, "@", 2)[0]
	}
	u = domain.User{
		Email:    email,
		Fullname: strings.TrimSpace(fullname),
		Role:     constants.Guest,
	}
	if err := s.DB.WithContext(ctx).Create(&u).Error; err != nil {
		// Concurrent checkout with the same email: the unique index on
		// email makes the second insert fail, re-read the winner.
		var winner domain.User
		if err2 := s.DB.WithContext(ctx).Where("email = ?", email).First(&winner).Error; err2 == nil {
			return &winner, false, nil
		}
		return nil, false, err
	}
	return &u, true, nil
}

// ViewUser returns one user by id.
func (s *Service) ViewUser(ctx context.Context, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, errors.New("Missing user ID")
	}
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, errors.New("Invalid user ID format (must be a valid UUID)")
	}
	var u domain.User
	if err := s.DB.WithContext(ctx).Where("user_id = ?", id).First(&u).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.New("User not found")
		}
		return nil, err
	}
	return &u, nil
}

// UpdateRole assigns a new role to a user (admin action).
func (s *Service) UpdateRole(ctx context.Context, userID, role string) (*domain.User, error) {
	if !constants.IsValidRole(role) {
		return nil, errors.New("Invalid role")
	}
	u, err := s.ViewUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.DB.WithContext(ctx).Model(&domain.User{}).
		Where("user_id = ?", u.UserID).
		Update("role", role).Error; err != nil {
		return nil, err
	}
	u.Role = role
	return u, nil
}
