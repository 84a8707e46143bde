package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NAHIAN-19/project-planner/logging"
	"github.com/NAHIAN-19/project-planner/models"
	"github.com/NAHIAN-19/project-planner/repositories"
	"github.com/google/uuid"
)

type ProjectInput struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Status      models.ProjectStatus `json:"status"`
	StartDate   *time.Time           `json:"startDate"`
	EndDate     *time.Time           `json:"endDate"`
}

// ProjectPatch holds the fields to change; nil fields are left alone.
type ProjectPatch struct {
	Name        *string               `json:"name"`
	Description *string               `json:"description"`
	Status      *models.ProjectStatus `json:"status"`
	StartDate   *time.Time            `json:"startDate"`
	EndDate     *time.Time            `json:"endDate"`
}

type ProjectService struct {
	store interface {
		ProjectStore
		UserStore
	}
	plans    *models.PlanCatalog
	notifier Notifier
	access   access
	now      func() time.Time
}

func NewProjectService(store Store, plans *models.PlanCatalog, notifier Notifier) *ProjectService {
	return &ProjectService{
		store:    store,
		plans:    plans,
		notifier: notifier,
		access:   access{projects: store, tasks: store},
		now:      time.Now,
	}
}

func validateDates(start, end *time.Time) error {
	if start != nil && end != nil && !end.After(*start) {
		return newError(ErrValidation, "End date must be after start date.")
	}
	return nil
}

func (s *ProjectService) Create(ctx context.Context, actor string, in ProjectInput) (*models.Project, error) {
	if in.Name == "" {
		return nil, newError(ErrValidation, "Project name is required.")
	}
	if in.Status == "" {
		in.Status = models.ProjectNotStarted
	}
	if !in.Status.Valid() {
		return nil, newError(ErrValidation, "Invalid project status %q.", in.Status)
	}
	if err := validateDates(in.StartDate, in.EndDate); err != nil {
		return nil, err
	}

	plan, err := planOf(ctx, s.store, s.plans, actor)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p := &models.Project{
		ID:          uuid.New().String(),
		Name:        in.Name,
		Description: in.Description,
		Status:      in.Status,
		OwnerID:     actor,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		CreatedAt:   now,
	}
	owner := &models.ProjectMembership{
		ID:        uuid.New().String(),
		ProjectID: p.ID,
		UserID:    actor,
		Role:      models.RoleOwner,
		JoinedAt:  now,
	}
	err = s.store.CreateProject(ctx, p, owner, plan.MaxProjects)
	if errors.Is(err, repositories.ErrLimitReached) {
		return nil, newError(ErrLimitExceeded, "Your %s plan allows at most %d projects.", plan.Name, plan.MaxProjects)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	logging.Logger.Infof("Event ID: PROJECT_CREATED, Description: Project %s created by %s", p.ID, actor)
	return p, nil
}

func (s *ProjectService) Get(ctx context.Context, actor, id string) (*models.Project, error) {
	p, err := s.access.project(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.requireMember(ctx, p, actor); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *ProjectService) List(ctx context.Context, actor string) ([]models.Project, error) {
	projects, err := s.store.ListProjectsForUser(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

func (s *ProjectService) ownedProject(ctx context.Context, actor, id, deny string) (*models.Project, error) {
	p, err := s.access.project(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != actor {
		return nil, newError(ErrPermission, "%s", deny)
	}
	return p, nil
}

func (s *ProjectService) Update(ctx context.Context, actor, id string, patch ProjectPatch) (*models.Project, error) {
	p, err := s.ownedProject(ctx, actor, id, "Only the project owner can update this project.")
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		if *patch.Name == "" {
			return nil, newError(ErrValidation, "Project name is required.")
		}
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, newError(ErrValidation, "Invalid project status %q.", *patch.Status)
		}
		p.Status = *patch.Status
	}
	if patch.StartDate != nil {
		p.StartDate = patch.StartDate
	}
	if patch.EndDate != nil {
		p.EndDate = patch.EndDate
	}
	if err := validateDates(p.StartDate, p.EndDate); err != nil {
		return nil, err
	}

	if err := s.store.UpdateProject(ctx, p); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, newError(ErrNotFound, "Project not found.")
		}
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	return p, nil
}

func (s *ProjectService) Delete(ctx context.Context, actor, id string) error {
	if _, err := s.ownedProject(ctx, actor, id, "Only the project owner can delete this project."); err != nil {
		return err
	}
	err := s.store.DeleteProject(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return newError(ErrNotFound, "Project not found.")
	}
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	logging.Logger.Infof("Event ID: PROJECT_DELETED, Description: Project %s deleted by %s", id, actor)
	return nil
}

// AddMember adds userID to the project, within the member limit of the owner's plan.
func (s *ProjectService) AddMember(ctx context.Context, actor, projectID, userID string) (*models.ProjectMembership, error) {
	p, err := s.ownedProject(ctx, actor, projectID, "Only the project owner can add members.")
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, newError(ErrNotFound, "User not found.")
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	plan, err := planOf(ctx, s.store, s.plans, p.OwnerID)
	if err != nil {
		return nil, err
	}

	m := &models.ProjectMembership{
		ID:        uuid.New().String(),
		ProjectID: p.ID,
		UserID:    userID,
		Role:      models.RoleMember,
		JoinedAt:  s.now().UTC(),
	}
	err = s.store.AddMembership(ctx, m, plan.MaxMembersPerProject)
	switch {
	case errors.Is(err, repositories.ErrDuplicate):
		return nil, newError(ErrConflict, "User is already a member of this project.")
	case errors.Is(err, repositories.ErrLimitReached):
		return nil, newError(ErrLimitExceeded, "The %s plan allows at most %d members per project.", plan.Name, plan.MaxMembersPerProject)
	case errors.Is(err, repositories.ErrNotFound):
		return nil, newError(ErrNotFound, "Project not found.")
	case err != nil:
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	s.notifier.Notify(ctx, models.Event{
		Recipients: []string{userID},
		Type:       models.NotificationProject,
		Title:      "Added to project",
		Body:       fmt.Sprintf("You have been added to the project %q.", p.Name),
		URL:        "/projects/" + p.ID,
	})
	return m, nil
}

func (s *ProjectService) RemoveMember(ctx context.Context, actor, projectID, userID string) error {
	p, err := s.ownedProject(ctx, actor, projectID, "Only the project owner can remove members.")
	if err != nil {
		return err
	}
	if userID == p.OwnerID {
		return newError(ErrValidation, "The project owner cannot be removed.")
	}
	err = s.store.RemoveMembership(ctx, projectID, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return newError(ErrNotFound, "User is not a member of this project.")
	}
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return nil
}

func (s *ProjectService) ListMembers(ctx context.Context, actor, projectID string) ([]models.ProjectMembership, error) {
	p, err := s.access.project(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.access.requireMember(ctx, p, actor); err != nil {
		return nil, err
	}
	members, err := s.store.ListMemberships(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}
