package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/model"
)

type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

// Profile returns the public profile of a user with their activity counts.
// Legacy roles are reported under their canonical name.
func (s *UserService) Profile(ctx context.Context, userID string) (*model.UserResponse, error) {
	const op = "service.User.Profile"

	u, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	reports, validations, err := s.repo.Activity(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: activity: %w", op, err)
	}

	role := model.ParseRole(string(u.Role))
	return &model.UserResponse{
		ID:              u.ID,
		Name:            u.Name,
		Role:            role,
		Weight:          u.Weight,
		ReportCount:     reports,
		ValidationCount: validations,
		MemberSince:     u.CreatedAt.UTC().Format(time.RFC3339),
	}, nil
}
