package models

import "time"

type NotificationType string

const (
	NotificationProject  NotificationType = "project"
	NotificationTask     NotificationType = "task"
	NotificationComment  NotificationType = "comment"
	NotificationApproval NotificationType = "approval"
)

var NotificationTypes = []NotificationType{NotificationProject, NotificationTask, NotificationComment, NotificationApproval}

func (t NotificationType) Valid() bool {
	for _, known := range NotificationTypes {
		if t == known {
			return true
		}
	}
	return false
}

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	URL       string           `json:"url"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
}

// NotificationPreferences maps a type to whether the user wants it. Missing types are enabled.
type NotificationPreferences map[NotificationType]bool

func (p NotificationPreferences) Enabled(t NotificationType) bool {
	enabled, ok := p[t]
	return !ok || enabled
}

// Event is a notification addressed to one or more users, before fan-out.
type Event struct {
	Recipients []string         `json:"recipients"`
	Type       NotificationType `json:"type"`
	Title      string           `json:"title"`
	Body       string           `json:"body"`
	URL        string           `json:"url"`
}

// Delivery is one recipient's copy of an Event. ID and CreatedAt are fixed when the event is
// fanned out, so a redelivered copy stores the same notification.
type Delivery struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	URL       string           `json:"url"`
	CreatedAt time.Time        `json:"createdAt"`
}

func (d Delivery) Notification() *Notification {
	return &Notification{
		ID:        d.ID,
		UserID:    d.UserID,
		Type:      d.Type,
		Title:     d.Title,
		Body:      d.Body,
		URL:       d.URL,
		CreatedAt: d.CreatedAt,
	}
}
