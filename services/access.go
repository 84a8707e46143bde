package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/NAHIAN-19/project-planner/models"
	"github.com/NAHIAN-19/project-planner/repositories"
)

// access answers the membership questions every service asks.
type access struct {
	projects ProjectStore
	tasks    TaskStore
}

func (a access) project(ctx context.Context, id string) (*models.Project, error) {
	p, err := a.projects.GetProject(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, newError(ErrNotFound, "Project not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	return p, nil
}

func (a access) task(ctx context.Context, id string) (*models.Task, error) {
	t, err := a.tasks.GetTask(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, newError(ErrNotFound, "Task not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	return t, nil
}

// isMember is true for the owner and for every user holding a membership.
func (a access) isMember(ctx context.Context, p *models.Project, userID string) (bool, error) {
	if p.OwnerID == userID {
		return true, nil
	}
	_, err := a.projects.GetMembership(ctx, p.ID, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return true, nil
}

func (a access) requireMember(ctx context.Context, p *models.Project, userID string) error {
	ok, err := a.isMember(ctx, p, userID)
	if err != nil {
		return err
	}
	if !ok {
		return newError(ErrPermission, "You are not a member of this project or the owner.")
	}
	return nil
}

func (a access) isAssignee(ctx context.Context, taskID, userID string) (bool, error) {
	ok, err := a.tasks.IsAssignee(ctx, taskID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check assignment: %w", err)
	}
	return ok, nil
}

// recipients returns ids without duplicates, empties and the excluded users, keeping order.
func recipients(ids []string, exclude ...string) []string {
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || skip[id] {
			continue
		}
		skip[id] = true
		out = append(out, id)
	}
	return out
}
