package service

import (
	"context"
	"strings"

	apperrors "github.com/opportunity-scanner/internal/errors"
	"github.com/opportunity-scanner/internal/models"
	"github.com/opportunity-scanner/internal/storage"
	"github.com/opportunity-scanner/internal/types"
)

// UserService handles user registration and tier management.
// Identity issuance is external; this service only stores the account record.
type UserService struct {
	userRepo *storage.UserRepository
}

func NewUserService(userRepo *storage.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

// CreateUserInput represents input for creating a user
type CreateUserInput struct {
	Email string `json:"email"`
	Tier  string `json:"tier,omitempty"`
}

// Create registers a new user. Tier defaults to free when omitted.
func (s *UserService) Create(ctx context.Context, input *CreateUserInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperrors.NewInvalidParameterError("email", "a valid email is required")
	}

	tier := types.TierFree
	if input.Tier != "" {
		tier = types.UserTier(input.Tier)
	}

	user := &models.User{
		Email: email,
		Tier:  tier,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Get returns a user by id
func (s *UserService) Get(ctx context.Context, userID string) (*models.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// UpdateTier changes a user's tier. The new tier's refill amounts take
// effect at the next credit refill, not immediately.
func (s *UserService) UpdateTier(ctx context.Context, userID string, tier types.UserTier) error {
	return s.userRepo.UpdateTier(ctx, userID, tier)
}
