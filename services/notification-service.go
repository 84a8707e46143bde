package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/NAHIAN-19/project-planner/models"
	"github.com/NAHIAN-19/project-planner/repositories"
)

// NotificationService is the read side of notifications: listing, marking and preferences.
type NotificationService struct {
	store NotificationStore
}

func NewNotificationService(store NotificationStore) *NotificationService {
	return &NotificationService{store: store}
}

func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	notifications, err := s.store.ListNotifications(ctx, userID, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	err := s.store.MarkRead(ctx, userID, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return newError(ErrNotFound, "Notification not found.")
	}
	if err != nil {
		return fmt.Errorf("failed to mark notification as read: %w", err)
	}
	return nil
}

func (s *NotificationService) Delete(ctx context.Context, userID, id string) error {
	err := s.store.DeleteNotification(ctx, userID, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return newError(ErrNotFound, "Notification not found.")
	}
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	return nil
}

// Preferences returns a value for every notification type; unset types are enabled.
func (s *NotificationService) Preferences(ctx context.Context, userID string) (models.NotificationPreferences, error) {
	stored, err := s.store.GetPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	prefs := make(models.NotificationPreferences, len(models.NotificationTypes))
	for _, t := range models.NotificationTypes {
		prefs[t] = stored.Enabled(t)
	}
	return prefs, nil
}

// SetPreferences stores the given types and leaves the others untouched.
func (s *NotificationService) SetPreferences(ctx context.Context, userID string, prefs models.NotificationPreferences) (models.NotificationPreferences, error) {
	for t := range prefs {
		if !t.Valid() {
			return nil, newError(ErrValidation, "Unknown notification type %q.", t)
		}
	}
	if len(prefs) > 0 {
		if err := s.store.SetPreferences(ctx, userID, prefs); err != nil {
			return nil, fmt.Errorf("failed to save preferences: %w", err)
		}
	}
	return s.Preferences(ctx, userID)
}
