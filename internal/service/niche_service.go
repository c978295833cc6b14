package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/opportunity-scanner/internal/config"
	apperrors "github.com/opportunity-scanner/internal/errors"
	"github.com/opportunity-scanner/internal/models"
	"github.com/opportunity-scanner/internal/types"
)

// NicheStore is the slice of the niche repository the service needs
type NicheStore interface {
	Create(ctx context.Context, niche *models.Niche) error
	GetByID(ctx context.Context, userID, id string) (*models.Niche, error)
	ListByUser(ctx context.Context, userID string, activeOnly bool) ([]*models.Niche, error)
	Update(ctx context.Context, niche *models.Niche) error
	Delete(ctx context.Context, userID, id string) error
	CountByUser(ctx context.Context, userID string) (int, error)
}

// TierReader resolves a user's tier
type TierReader interface {
	GetUserTier(ctx context.Context, userID string) (types.UserTier, error)
}

// NicheService manages a user's scan niches and enforces per-tier limits.
type NicheService struct {
	nicheRepo NicheStore
	userRepo  TierReader
	tiers     config.TierTable
}

func NewNicheService(
	nicheRepo NicheStore,
	userRepo TierReader,
	tiers config.TierTable,
) *NicheService {
	return &NicheService{
		nicheRepo: nicheRepo,
		userRepo:  userRepo,
		tiers:     tiers,
	}
}

// CreateNicheInput represents input for creating a niche
type CreateNicheInput struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
}

// Create adds a niche for the user, enforcing the tier's max_niches limit
func (s *NicheService) Create(ctx context.Context, userID string, input *CreateNicheInput) (*models.Niche, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewInvalidParameterError("name", "name is required")
	}
	keywords := cleanKeywords(input.Keywords)
	if len(keywords) == 0 {
		return nil, apperrors.NewInvalidParameterError("keywords", "at least one keyword is required")
	}

	tier, err := s.userRepo.GetUserTier(ctx, userID)
	if err != nil {
		return nil, err
	}

	count, err := s.nicheRepo.CountByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count niches: %w", err)
	}

	limit := s.tiers.Limits(tier).MaxNiches
	if count >= limit {
		return nil, apperrors.NewTierLimitExceededError(string(tier), limit)
	}

	niche := &models.Niche{
		UserID:   userID,
		Name:     name,
		Keywords: keywords,
		IsActive: true,
	}
	if err := s.nicheRepo.Create(ctx, niche); err != nil {
		return nil, fmt.Errorf("failed to create niche: %w", err)
	}
	return niche, nil
}

// List returns the user's niches
func (s *NicheService) List(ctx context.Context, userID string, activeOnly bool) ([]*models.Niche, error) {
	return s.nicheRepo.ListByUser(ctx, userID, activeOnly)
}

// UpdateNicheInput represents input for updating a niche. Nil fields are
// left unchanged.
type UpdateNicheInput struct {
	Name     *string  `json:"name,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
	IsActive *bool    `json:"isActive,omitempty"`
}

// Update modifies a niche the user owns
func (s *NicheService) Update(ctx context.Context, userID, nicheID string, input *UpdateNicheInput) (*models.Niche, error) {
	niche, err := s.nicheRepo.GetByID(ctx, userID, nicheID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.NewInvalidParameterError("name", "name cannot be empty")
		}
		niche.Name = name
	}
	if input.Keywords != nil {
		keywords := cleanKeywords(input.Keywords)
		if len(keywords) == 0 {
			return nil, apperrors.NewInvalidParameterError("keywords", "at least one keyword is required")
		}
		niche.Keywords = keywords
	}
	if input.IsActive != nil {
		niche.IsActive = *input.IsActive
	}

	if err := s.nicheRepo.Update(ctx, niche); err != nil {
		return nil, err
	}
	return niche, nil
}

// Delete removes a niche the user owns
func (s *NicheService) Delete(ctx context.Context, userID, nicheID string) error {
	return s.nicheRepo.Delete(ctx, userID, nicheID)
}

func cleanKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	var cleaned []string
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		cleaned = append(cleaned, k)
	}
	return cleaned
}
