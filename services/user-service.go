package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NAHIAN-19/project-planner/logging"
	"github.com/NAHIAN-19/project-planner/models"
	"github.com/NAHIAN-19/project-planner/repositories"
)

type UserService struct {
	store UserStore
	plans *models.PlanCatalog
	now   func() time.Time
}

func NewUserService(store UserStore, plans *models.PlanCatalog) *UserService {
	return &UserService{store: store, plans: plans, now: time.Now}
}

// Register creates the profile of an authenticated identity on the default plan.
func (s *UserService) Register(ctx context.Context, userID, username, email string) (*models.User, error) {
	if userID == "" || username == "" {
		return nil, newError(ErrValidation, "User id and username are required.")
	}
	u := &models.User{
		ID:        userID,
		Username:  username,
		Email:     email,
		Plan:      s.plans.Default,
		CreatedAt: s.now().UTC(),
	}
	err := s.store.CreateUser(ctx, u)
	if errors.Is(err, repositories.ErrDuplicate) {
		return nil, newError(ErrConflict, "A user with this id or username already exists.")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to register user: %w", err)
	}
	logging.Logger.Infof("Event ID: USER_REGISTERED, Description: User %s registered as %s", u.ID, u.Username)
	return u, nil
}

func (s *UserService) Get(ctx context.Context, userID string) (*models.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, newError(ErrNotFound, "User profile not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return u, nil
}

func (s *UserService) ChangePlan(ctx context.Context, userID, plan string) (*models.User, error) {
	if _, ok := s.plans.Get(plan); !ok {
		return nil, newError(ErrValidation, "Unknown plan %q.", plan)
	}
	err := s.store.UpdateUserPlan(ctx, userID, plan)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, newError(ErrNotFound, "User profile not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to change plan: %w", err)
	}
	logging.Logger.Infof("Event ID: USER_PLAN_CHANGED, Description: User %s moved to plan %s", userID, plan)
	return s.Get(ctx, userID)
}

func (s *UserService) Plans() []models.Plan {
	return s.plans.Plans
}

// planOf resolves the plan of a user, falling back to the default plan for unknown names.
func planOf(ctx context.Context, users UserStore, plans *models.PlanCatalog, userID string) (models.Plan, error) {
	u, err := users.GetUser(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return models.Plan{}, newError(ErrNotFound, "User profile not found.")
	}
	if err != nil {
		return models.Plan{}, fmt.Errorf("failed to load user: %w", err)
	}
	if p, ok := plans.Get(u.Plan); ok {
		return p, nil
	}
	p, _ := plans.Get(plans.Default)
	return p, nil
}
