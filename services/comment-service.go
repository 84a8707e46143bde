package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/NAHIAN-19/project-planner/models"
	"github.com/NAHIAN-19/project-planner/repositories"
	"github.com/google/uuid"
)

type CommentService struct {
	store interface {
		CommentStore
		TaskStore
		ProjectStore
	}
	notifier Notifier
	access   access
	now      func() time.Time
}

func NewCommentService(store Store, notifier Notifier) *CommentService {
	return &CommentService{
		store:    store,
		notifier: notifier,
		access:   access{projects: store, tasks: store},
		now:      time.Now,
	}
}

// Add posts a comment on a task. Only assignees and the project owner may comment; a reply
// must point at a top-level comment of the same task.
func (s *CommentService) Add(ctx context.Context, actor, taskID, content string, parentID *string) (*models.Comment, error) {
	t, err := s.access.task(ctx, taskID)
	if err != nil {
		return nil, err
	}
	p, err := s.access.project(ctx, t.ProjectID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != actor {
		assigned, err := s.access.isAssignee(ctx, t.ID, actor)
		if err != nil {
			return nil, err
		}
		if !assigned {
			return nil, newError(ErrPermission, "Only assignees or the project owner can comment on this task.")
		}
	}

	content, err = checkContent(content)
	if err != nil {
		return nil, err
	}

	if parentID != nil && *parentID != "" {
		parent, err := s.store.GetComment(ctx, *parentID)
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, newError(ErrValidation, "Parent comment not found.")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load parent comment: %w", err)
		}
		if parent.TaskID != t.ID {
			return nil, newError(ErrValidation, "Parent comment belongs to another task.")
		}
		if parent.ParentID != nil {
			return nil, newError(ErrValidation, "Replies cannot be nested.")
		}
	} else {
		parentID = nil
	}

	now := s.now().UTC()
	c := &models.Comment{
		ID:        uuid.New().String(),
		TaskID:    t.ID,
		AuthorID:  actor,
		ParentID:  parentID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateComment(ctx, c); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, newError(ErrNotFound, "Task not found.")
		}
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}

	assignees, err := s.store.ListAssignees(ctx, t.ID)
	if err == nil {
		s.notifier.Notify(ctx, models.Event{
			Recipients: recipients(append(assignees, p.OwnerID), actor),
			Type:       models.NotificationComment,
			Title:      "New comment",
			Body:       fmt.Sprintf("A new comment was posted on the task %q.", t.Name),
			URL:        "/tasks/" + t.ID,
		})
	}
	return c, nil
}

func (s *CommentService) List(ctx context.Context, actor, taskID string) ([]models.Comment, error) {
	t, err := s.access.task(ctx, taskID)
	if err != nil {
		return nil, err
	}
	p, err := s.access.project(ctx, t.ProjectID)
	if err != nil {
		return nil, err
	}
	member, err := s.access.isMember(ctx, p, actor)
	if err != nil {
		return nil, err
	}
	if !member {
		assigned, err := s.access.isAssignee(ctx, t.ID, actor)
		if err != nil {
			return nil, err
		}
		if !assigned {
			return nil, newError(ErrPermission, "You are not a member of this project or the owner.")
		}
	}
	comments, err := s.store.ListComments(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return comments, nil
}

func checkContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", newError(ErrValidation, "Comment content is required.")
	}
	if utf8.RuneCountInString(content) > models.MaxCommentLength {
		return "", newError(ErrValidation, "Comment cannot exceed %d characters.", models.MaxCommentLength)
	}
	return content, nil
}

// Update replaces the content of a comment. Only the author may edit it.
func (s *CommentService) Update(ctx context.Context, actor, id, content string) (*models.Comment, error) {
	c, err := s.store.GetComment(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, newError(ErrNotFound, "Comment not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load comment: %w", err)
	}
	if c.AuthorID != actor {
		return nil, newError(ErrPermission, "Only the author can edit this comment.")
	}
	content, err = checkContent(content)
	if err != nil {
		return nil, err
	}

	at := s.now().UTC()
	err = s.store.UpdateComment(ctx, id, content, at)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, newError(ErrNotFound, "Comment not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update comment: %w", err)
	}
	c.Content = content
	c.UpdatedAt = at
	return c, nil
}

// Delete removes a comment and its replies. Only the author may delete it.
func (s *CommentService) Delete(ctx context.Context, actor, id string) error {
	c, err := s.store.GetComment(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return newError(ErrNotFound, "Comment not found.")
	}
	if err != nil {
		return fmt.Errorf("failed to load comment: %w", err)
	}
	if c.AuthorID != actor {
		return newError(ErrPermission, "Only the author can delete this comment.")
	}
	err = s.store.DeleteComment(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return newError(ErrNotFound, "Comment not found.")
	}
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return nil
}
