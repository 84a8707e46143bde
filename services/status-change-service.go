package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NAHIAN-19/project-planner/logging"
	"github.com/NAHIAN-19/project-planner/models"
	"github.com/NAHIAN-19/project-planner/repositories"
	"github.com/NAHIAN-19/project-planner/tracing"
	"github.com/google/uuid"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type RequestQuery struct {
	TaskID    string
	ProjectID string
	Page      int
	PageSize  int
}

type RequestPage struct {
	Count    int                          `json:"count"`
	Page     int                          `json:"page"`
	PageSize int                          `json:"pageSize"`
	Results  []models.StatusChangeRequest `json:"results"`
}

// requestable are the task states a completion request may start from.
var requestable = map[models.TaskStatus]bool{
	models.StatusNotStarted: true,
	models.StatusInProgress: true,
	models.StatusOverdue:    true,
}

// StatusChangeService runs the approval workflow: assignees ask for a task to be completed and
// the project owner accepts or rejects. At most one request per task is pending at a time.
type StatusChangeService struct {
	store interface {
		RequestStore
		TaskStore
		ProjectStore
	}
	notifier Notifier
	access   access
	now      func() time.Time
}

func NewStatusChangeService(store Store, notifier Notifier) *StatusChangeService {
	return &StatusChangeService{
		store:    store,
		notifier: notifier,
		access:   access{projects: store, tasks: store},
		now:      time.Now,
	}
}

func (s *StatusChangeService) Submit(ctx context.Context, requester, taskID, reason string) (*models.StatusChangeRequest, error) {
	t, err := s.store.GetTask(ctx, taskID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, newError(ErrValidation, "Task %q does not exist.", taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}

	assigned, err := s.access.isAssignee(ctx, t.ID, requester)
	if err != nil {
		return nil, err
	}
	if !assigned {
		return nil, newError(ErrValidation, "You are not assigned to this task.")
	}
	if !requestable[t.Status] {
		return nil, newError(ErrValidation, "Only tasks that are not started, in progress or overdue can be marked as completed.")
	}
	if !t.NeedApproval {
		return nil, newError(ErrValidation, "Task doesn't require approval to be completed.")
	}

	r := &models.StatusChangeRequest{
		ID:          uuid.New().String(),
		TaskID:      t.ID,
		ProjectID:   t.ProjectID,
		RequestedBy: requester,
		RequestTime: s.now().UTC(),
		Reason:      reason,
		Status:      models.RequestPending,
	}
	err = s.store.CreateRequest(ctx, r)
	switch {
	case errors.Is(err, repositories.ErrDuplicate):
		return nil, newError(ErrValidation, "A pending status change request already exists for this task.")
	case errors.Is(err, repositories.ErrNotFound):
		return nil, newError(ErrValidation, "Task %q does not exist.", taskID)
	case err != nil:
		return nil, fmt.Errorf("failed to create status change request: %w", err)
	}
	logging.Logger.Infof("Event ID: STATUS_CHANGE_REQUESTED, Description: Request %s for task %s submitted by %s", r.ID, t.ID, requester)

	if p, err := s.access.project(ctx, t.ProjectID); err == nil {
		s.notifier.Notify(ctx, models.Event{
			Recipients: recipients([]string{p.OwnerID}, requester),
			Type:       models.NotificationApproval,
			Title:      "Approval requested",
			Body:       fmt.Sprintf("A request to complete the task %q is waiting for your decision.", t.Name),
			URL:        "/status-change-requests/" + r.ID,
		})
	}
	return r, nil
}

// List filters by task or project when given, otherwise returns the viewer's own requests.
// Results are ordered newest first, ties broken by id descending.
func (s *StatusChangeService) List(ctx context.Context, viewer string, q RequestQuery) (*RequestPage, error) {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = DefaultPageSize
	}
	if q.Page < 1 {
		return nil, newError(ErrValidation, "Invalid page.")
	}
	if q.PageSize < 1 {
		return nil, newError(ErrValidation, "Invalid page size.")
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}

	filter := models.RequestFilter{Offset: (q.Page - 1) * q.PageSize, Limit: q.PageSize}
	if q.TaskID != "" {
		if err := s.canViewTaskRequests(ctx, viewer, q.TaskID); err != nil {
			return nil, err
		}
		filter.TaskID = q.TaskID
	}
	if q.ProjectID != "" {
		p, err := s.access.project(ctx, q.ProjectID)
		if err != nil {
			return nil, err
		}
		if err := s.access.requireMember(ctx, p, viewer); err != nil {
			return nil, err
		}
		filter.ProjectID = p.ID
	}
	if q.TaskID == "" && q.ProjectID == "" {
		filter.RequestedBy = viewer
	}

	items, total, err := s.store.ListRequests(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list status change requests: %w", err)
	}
	return &RequestPage{Count: total, Page: q.Page, PageSize: q.PageSize, Results: items}, nil
}

// canViewTaskRequests admits assignees of the task and members of its project.
func (s *StatusChangeService) canViewTaskRequests(ctx context.Context, viewer, taskID string) error {
	t, err := s.access.task(ctx, taskID)
	if err != nil {
		return err
	}
	assigned, err := s.access.isAssignee(ctx, t.ID, viewer)
	if err != nil || assigned {
		return err
	}
	p, err := s.access.project(ctx, t.ProjectID)
	if err != nil {
		return err
	}
	member, err := s.access.isMember(ctx, p, viewer)
	if err != nil {
		return err
	}
	if !member {
		return newError(ErrPermission, "You are not assigned to this task.")
	}
	return nil
}

func (s *StatusChangeService) request(ctx context.Context, id string) (*models.StatusChangeRequest, error) {
	r, err := s.store.GetRequest(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, newError(ErrNotFound, "Status change request not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load status change request: %w", err)
	}
	return r, nil
}

func (s *StatusChangeService) Get(ctx context.Context, viewer, id string) (*models.StatusChangeRequest, error) {
	r, err := s.request(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.RequestedBy == viewer {
		return r, nil
	}
	if err := s.canViewTaskRequests(ctx, viewer, r.TaskID); err != nil {
		return nil, err
	}
	return r, nil
}

// UpdateReason lets the requester reword a request while it is still pending.
func (s *StatusChangeService) UpdateReason(ctx context.Context, actor, id, reason string) (*models.StatusChangeRequest, error) {
	r, err := s.request(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.RequestedBy != actor {
		return nil, newError(ErrPermission, "Only the requester can edit this status change request.")
	}
	err = s.store.UpdateRequestReason(ctx, id, reason)
	switch {
	case errors.Is(err, repositories.ErrNotPending):
		return nil, newError(ErrInvalidState, "Only pending status change requests can be updated.")
	case errors.Is(err, repositories.ErrNotFound):
		return nil, newError(ErrNotFound, "Status change request not found.")
	case err != nil:
		return nil, fmt.Errorf("failed to update status change request: %w", err)
	}
	r.Reason = reason
	return r, nil
}

// Decide accepts or rejects a pending request. Accepting completes the task in the same
// store transaction. Of two concurrent decisions only the first succeeds; the other gets
// ErrInvalidState.
func (s *StatusChangeService) Decide(ctx context.Context, actor, id, action string) (decided *models.StatusChangeRequest, err error) {
	ctx, span := tracing.StartSpan(ctx, "status_change.decide", tracing.KindInternal)
	span.WithAttributes(map[string]string{"request.id": id, "action": action})
	defer func() { tracing.EndSpan(span, err) }()

	r, err := s.request(ctx, id)
	if err != nil {
		return nil, err
	}
	act := models.Action(action)
	if !act.Valid() {
		return nil, newError(ErrInvalidAction, "Invalid action. Must be 'accept' or 'reject'.")
	}
	p, err := s.access.project(ctx, r.ProjectID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != actor {
		return nil, newError(ErrPermission, "Only the project owner can accept or reject status change requests.")
	}
	if r.Status != models.RequestPending {
		return nil, newError(ErrInvalidState, "This status change request is not pending.")
	}

	decided, err = s.store.DecideRequest(ctx, id, models.Decision{Action: act, Actor: actor, At: s.now().UTC()})
	switch {
	case errors.Is(err, repositories.ErrNotPending):
		return nil, newError(ErrInvalidState, "This status change request is not pending.")
	case errors.Is(err, repositories.ErrNotFound):
		return nil, newError(ErrNotFound, "Status change request not found.")
	case err != nil:
		return nil, fmt.Errorf("failed to decide status change request: %w", err)
	}
	logging.Logger.Infof("Event ID: STATUS_CHANGE_DECIDED, Description: Request %s %s by %s", id, decided.Status, actor)

	s.notifyDecision(ctx, actor, decided)
	return decided, nil
}

func (s *StatusChangeService) notifyDecision(ctx context.Context, actor string, r *models.StatusChangeRequest) {
	users := []string{r.RequestedBy}
	assignees, err := s.store.ListAssignees(ctx, r.TaskID)
	if err != nil {
		logging.Logger.Warnf("Event ID: NOTIFY_ASSIGNEES_FAILED, Description: Could not load assignees of task %s: %v", r.TaskID, err)
	}
	users = append(users, assignees...)

	taskName := r.TaskID
	if t, err := s.store.GetTask(ctx, r.TaskID); err == nil {
		taskName = t.Name
	}
	s.notifier.Notify(ctx, models.Event{
		Recipients: recipients(users, actor),
		Type:       models.NotificationApproval,
		Title:      "Status change request " + string(r.Status),
		Body:       fmt.Sprintf("The request to complete the task %q was %s.", taskName, r.Status),
		URL:        "/status-change-requests/" + r.ID,
	})
}
