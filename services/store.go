package services

import (
	"context"
	"time"

	"github.com/NAHIAN-19/project-planner/models"
)

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpdateUserPlan(ctx context.Context, id, plan string) error
}

// ProjectStore enforces plan limits inside its own transactions; pass models.Unlimited to skip.
type ProjectStore interface {
	CreateProject(ctx context.Context, p *models.Project, owner *models.ProjectMembership, maxOwned int) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListProjectsForUser(ctx context.Context, userID string) ([]models.Project, error)
	UpdateProject(ctx context.Context, p *models.Project) error
	DeleteProject(ctx context.Context, id string) error
	AddMembership(ctx context.Context, m *models.ProjectMembership, maxMembers int) error
	RemoveMembership(ctx context.Context, projectID, userID string) error
	GetMembership(ctx context.Context, projectID, userID string) (*models.ProjectMembership, error)
	ListMemberships(ctx context.Context, projectID string) ([]models.ProjectMembership, error)
}

// TaskStore.UpdateTask writes only the fields set in the update. A status change returns
// ErrStale when the stored status moved and ErrApproved once an approval completed the task.
type TaskStore interface {
	CreateTask(ctx context.Context, t *models.Task, assignments []models.TaskAssignment) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, f models.TaskFilter) ([]models.Task, error)
	UpdateTask(ctx context.Context, id string, u models.TaskUpdate) error
	DeleteTask(ctx context.Context, id string) error
	SetTaskStatus(ctx context.Context, id string, status models.TaskStatus, at time.Time) error
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
	AddAssignment(ctx context.Context, a *models.TaskAssignment) error
	RemoveAssignment(ctx context.Context, taskID, userID string) error
	ListAssignees(ctx context.Context, taskID string) ([]string, error)
	IsAssignee(ctx context.Context, taskID, userID string) (bool, error)
}

// RequestStore persists status change requests. DecideRequest applies a decision and, on
// accept, completes the task in the same transaction; it returns ErrNotPending when the
// request was already decided.
type RequestStore interface {
	CreateRequest(ctx context.Context, r *models.StatusChangeRequest) error
	GetRequest(ctx context.Context, id string) (*models.StatusChangeRequest, error)
	ListRequests(ctx context.Context, f models.RequestFilter) ([]models.StatusChangeRequest, int, error)
	UpdateRequestReason(ctx context.Context, id, reason string) error
	DecideRequest(ctx context.Context, id string, d models.Decision) (*models.StatusChangeRequest, error)
}

type CommentStore interface {
	CreateComment(ctx context.Context, c *models.Comment) error
	GetComment(ctx context.Context, id string) (*models.Comment, error)
	ListComments(ctx context.Context, taskID string) ([]models.Comment, error)
	UpdateComment(ctx context.Context, id, content string, at time.Time) error
	DeleteComment(ctx context.Context, id string) error
}

// Store is everything the relational backends provide.
type Store interface {
	UserStore
	ProjectStore
	TaskStore
	RequestStore
	CommentStore
	Ping(ctx context.Context) error
	Close() error
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
	DeleteNotification(ctx context.Context, userID, id string) error
	GetPreferences(ctx context.Context, userID string) (models.NotificationPreferences, error)
	SetPreferences(ctx context.Context, userID string, prefs models.NotificationPreferences) error
}

// Notifier hands an event to the notification pipeline. It never fails the caller.
type Notifier interface {
	Notify(ctx context.Context, ev models.Event)
}
