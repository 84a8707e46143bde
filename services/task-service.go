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

type TaskInput struct {
	ProjectID    string            `json:"projectId"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Status       models.TaskStatus `json:"status"`
	NeedApproval bool              `json:"needApproval"`
	DueDate      *time.Time        `json:"dueDate"`
	Assignees    []string          `json:"assignees"`
}

// TaskPatch holds the fields to change; nil fields are left alone.
type TaskPatch struct {
	Name         *string            `json:"name"`
	Description  *string            `json:"description"`
	Status       *models.TaskStatus `json:"status"`
	NeedApproval *bool              `json:"needApproval"`
	DueDate      *time.Time         `json:"dueDate"`
}

type TaskQuery struct {
	ProjectID  string
	Status     models.TaskStatus
	AssigneeID string
}

// directStatuses are the targets an assignee may set without approval.
var directStatuses = map[models.TaskStatus]bool{
	models.StatusCompleted: true,
}

type TaskService struct {
	store interface {
		TaskStore
		ProjectStore
	}
	notifier Notifier
	access   access
	now      func() time.Time
}

func NewTaskService(store Store, notifier Notifier) *TaskService {
	return &TaskService{
		store:    store,
		notifier: notifier,
		access:   access{projects: store, tasks: store},
		now:      time.Now,
	}
}

func (s *TaskService) Create(ctx context.Context, actor string, in TaskInput) (*models.Task, error) {
	if in.Name == "" {
		return nil, newError(ErrValidation, "Task name is required.")
	}
	p, err := s.access.project(ctx, in.ProjectID)
	if err != nil {
		return nil, err
	}
	if err := s.access.requireMember(ctx, p, actor); err != nil {
		return nil, err
	}

	if in.Status == "" {
		in.Status = models.StatusNotStarted
	}
	if !in.Status.Valid() {
		return nil, newError(ErrValidation, "Invalid status value.")
	}
	if in.Status == models.StatusCompleted {
		return nil, newError(ErrValidation, "A task cannot be created as completed.")
	}
	now := s.now().UTC()
	if in.DueDate != nil && in.DueDate.Before(now) {
		return nil, newError(ErrValidation, "Due date cannot be in the past.")
	}

	assignees := recipients(in.Assignees)
	for _, userID := range assignees {
		ok, err := s.access.isMember(ctx, p, userID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, newError(ErrValidation, "User %s is not a member of this project.", userID)
		}
	}

	t := &models.Task{
		ID:           uuid.New().String(),
		ProjectID:    p.ID,
		Name:         in.Name,
		Description:  in.Description,
		Status:       in.Status,
		NeedApproval: in.NeedApproval,
		CreatedBy:    actor,
		DueDate:      in.DueDate,
		CreatedAt:    now,
		UpdatedAt:    now,
		Assignees:    assignees,
	}
	assignments := make([]models.TaskAssignment, 0, len(assignees))
	for _, userID := range assignees {
		assignments = append(assignments, models.TaskAssignment{TaskID: t.ID, UserID: userID, AssignedBy: actor, AssignedAt: now})
	}
	if err := s.store.CreateTask(ctx, t, assignments); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, newError(ErrNotFound, "Project not found.")
		}
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	logging.Logger.Infof("Event ID: TASK_CREATED, Description: Task %s created in project %s by %s", t.ID, p.ID, actor)

	s.notifyAssigned(ctx, t, recipients(assignees, actor))
	return t, nil
}

func (s *TaskService) notifyAssigned(ctx context.Context, t *models.Task, users []string) {
	if len(users) == 0 {
		return
	}
	s.notifier.Notify(ctx, models.Event{
		Recipients: users,
		Type:       models.NotificationTask,
		Title:      "New task assignment",
		Body:       fmt.Sprintf("You have been assigned to the task %q.", t.Name),
		URL:        "/tasks/" + t.ID,
	})
}

// visibleTask loads a task the actor may see: project members and assignees.
func (s *TaskService) visibleTask(ctx context.Context, actor, id string) (*models.Task, *models.Project, error) {
	t, err := s.access.task(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.access.project(ctx, t.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	member, err := s.access.isMember(ctx, p, actor)
	if err != nil {
		return nil, nil, err
	}
	if !member {
		assigned, err := s.access.isAssignee(ctx, t.ID, actor)
		if err != nil {
			return nil, nil, err
		}
		if !assigned {
			return nil, nil, newError(ErrPermission, "You are not a member of this project or the owner.")
		}
	}
	return t, p, nil
}

func (s *TaskService) withAssignees(ctx context.Context, t *models.Task) error {
	ids, err := s.store.ListAssignees(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("failed to load assignees: %w", err)
	}
	t.Assignees = ids
	return nil
}

func (s *TaskService) Get(ctx context.Context, actor, id string) (*models.Task, error) {
	t, _, err := s.visibleTask(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.withAssignees(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// List returns tasks of the given project, or of every project the actor belongs to.
func (s *TaskService) List(ctx context.Context, actor string, q TaskQuery) ([]models.Task, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, newError(ErrValidation, "Invalid status value.")
	}
	filter := models.TaskFilter{Status: q.Status, AssigneeID: q.AssigneeID}

	if q.ProjectID != "" {
		p, err := s.access.project(ctx, q.ProjectID)
		if err != nil {
			return nil, err
		}
		if err := s.access.requireMember(ctx, p, actor); err != nil {
			return nil, err
		}
		filter.ProjectIDs = []string{p.ID}
	} else {
		projects, err := s.store.ListProjectsForUser(ctx, actor)
		if err != nil {
			return nil, fmt.Errorf("failed to list projects: %w", err)
		}
		filter.ProjectIDs = make([]string, 0, len(projects))
		for _, p := range projects {
			filter.ProjectIDs = append(filter.ProjectIDs, p.ID)
		}
	}

	tasks, err := s.store.ListTasks(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

func (s *TaskService) ownedTask(ctx context.Context, actor, id, deny string) (*models.Task, *models.Project, error) {
	t, err := s.access.task(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.access.project(ctx, t.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	if p.OwnerID != actor {
		return nil, nil, newError(ErrPermission, "%s", deny)
	}
	return t, p, nil
}

// Update edits a task. Completion is not reachable from here; it goes through the status
// endpoint or an approved request. Only the fields in the patch are written.
func (s *TaskService) Update(ctx context.Context, actor, id string, patch TaskPatch) (*models.Task, error) {
	t, _, err := s.ownedTask(ctx, actor, id, "Only the project owner can update this task.")
	if err != nil {
		return nil, err
	}

	u := models.TaskUpdate{
		Name:         patch.Name,
		Description:  patch.Description,
		NeedApproval: patch.NeedApproval,
		DueDate:      patch.DueDate,
		UpdatedAt:    s.now().UTC(),
	}
	if patch.Name != nil && *patch.Name == "" {
		return nil, newError(ErrValidation, "Task name is required.")
	}
	if patch.Status != nil && *patch.Status != t.Status {
		if !patch.Status.Valid() {
			return nil, newError(ErrValidation, "Invalid status value.")
		}
		if *patch.Status == models.StatusCompleted {
			return nil, newError(ErrValidation, "Tasks are completed through the status endpoint or an approved status change request.")
		}
		u.Status = patch.Status
		u.ExpectStatus = t.Status
	}

	err = s.store.UpdateTask(ctx, t.ID, u)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return nil, newError(ErrNotFound, "Task not found.")
	case errors.Is(err, repositories.ErrApproved):
		return nil, newError(ErrInvalidState, "The task was completed by an approved status change request.")
	case errors.Is(err, repositories.ErrStale):
		return nil, newError(ErrConflict, "The task status changed in the meantime. Reload it and try again.")
	case err != nil:
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	updated, err := s.access.task(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if err := s.withAssignees(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *TaskService) Delete(ctx context.Context, actor, id string) error {
	if _, _, err := s.ownedTask(ctx, actor, id, "Only the project owner can delete this task."); err != nil {
		return err
	}
	err := s.store.DeleteTask(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return newError(ErrNotFound, "Task not found.")
	}
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	logging.Logger.Infof("Event ID: TASK_DELETED, Description: Task %s deleted by %s", id, actor)
	return nil
}

func (s *TaskService) Assign(ctx context.Context, actor, taskID, userID string) (*models.TaskAssignment, error) {
	t, p, err := s.ownedTask(ctx, actor, taskID, "Only the project owner can assign users to this task.")
	if err != nil {
		return nil, err
	}
	member, err := s.access.isMember(ctx, p, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, newError(ErrValidation, "User %s is not a member of this project.", userID)
	}

	a := &models.TaskAssignment{TaskID: t.ID, UserID: userID, AssignedBy: actor, AssignedAt: s.now().UTC()}
	err = s.store.AddAssignment(ctx, a)
	if errors.Is(err, repositories.ErrDuplicate) {
		return nil, newError(ErrConflict, "User is already assigned to this task.")
	}
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, newError(ErrNotFound, "Task not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to assign user: %w", err)
	}
	s.notifyAssigned(ctx, t, recipients([]string{userID}, actor))
	return a, nil
}

func (s *TaskService) Unassign(ctx context.Context, actor, taskID, userID string) error {
	if _, _, err := s.ownedTask(ctx, actor, taskID, "Only the project owner can unassign users from this task."); err != nil {
		return err
	}
	err := s.store.RemoveAssignment(ctx, taskID, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return newError(ErrNotFound, "User is not assigned to this task.")
	}
	if err != nil {
		return fmt.Errorf("failed to unassign user: %w", err)
	}
	return nil
}

// SetStatusDirectly lets an assignee complete a task that does not require approval.
func (s *TaskService) SetStatusDirectly(ctx context.Context, actor, taskID string, status models.TaskStatus) (*models.Task, error) {
	t, err := s.access.task(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.NeedApproval {
		return nil, newError(ErrPermission, "Task requires approval to change status.")
	}
	assigned, err := s.access.isAssignee(ctx, t.ID, actor)
	if err != nil {
		return nil, err
	}
	if !assigned {
		return nil, newError(ErrPermission, "You must be assigned to the task to change its status.")
	}
	if !directStatuses[status] {
		return nil, newError(ErrValidation, "Invalid status value.")
	}

	at := s.now().UTC()
	if err := s.store.SetTaskStatus(ctx, t.ID, status, at); err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("failed to update task status: %w", err)
		}
		// The task vanished or started requiring approval since it was read.
		if _, err := s.access.task(ctx, t.ID); err != nil {
			return nil, err
		}
		return nil, newError(ErrPermission, "Task requires approval to change status.")
	}
	t.Status = status
	t.UpdatedAt = at
	logging.Logger.Infof("Event ID: TASK_STATUS_CHANGED, Description: Task %s set to %s by %s", t.ID, status, actor)

	if p, err := s.access.project(ctx, t.ProjectID); err == nil {
		s.notifier.Notify(ctx, models.Event{
			Recipients: recipients([]string{p.OwnerID}, actor),
			Type:       models.NotificationTask,
			Title:      "Task completed",
			Body:       fmt.Sprintf("The task %q was marked as %s.", t.Name, status),
			URL:        "/tasks/" + t.ID,
		})
	}
	if err := s.withAssignees(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// MarkOverdue flips unfinished tasks past their due date to overdue.
func (s *TaskService) MarkOverdue(ctx context.Context) (int64, error) {
	n, err := s.store.MarkOverdue(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to mark overdue tasks: %w", err)
	}
	if n > 0 {
		logging.Logger.Infof("Event ID: TASKS_OVERDUE, Description: Marked %d tasks as overdue", n)
	}
	return n, nil
}

// RunOverdueSweep calls MarkOverdue every interval until ctx ends.
func (s *TaskService) RunOverdueSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.MarkOverdue(ctx); err != nil {
				logging.Logger.Errorf("Event ID: OVERDUE_SWEEP_FAILED, Description: %v", err)
			}
		}
	}
}
