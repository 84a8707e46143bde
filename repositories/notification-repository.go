package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NAHIAN-19/project-planner/logging"
	"github.com/NAHIAN-19/project-planner/models"
	"github.com/gocql/gocql"
)

// NotificationRepo stores notifications in Cassandra, one partition per recipient.
type NotificationRepo struct {
	session *gocql.Session
}

// NewNotificationRepo connects to the cluster, creating the keyspace when it is missing.
func NewNotificationRepo(hosts, keyspace string) (*NotificationRepo, error) {
	cluster := gocql.NewCluster(strings.Split(hosts, ",")...)
	cluster.Keyspace = "system"
	cluster.Timeout = 5 * time.Second
	session, err := cluster.CreateSession()
	if err != nil {
		logging.Logger.Errorf("Event ID: CASSANDRA_CONNECT_FAILED, Description: %v", err)
		return nil, err
	}

	err = session.Query(fmt.Sprintf(
		`CREATE KEYSPACE IF NOT EXISTS %s
         WITH replication = {
             'class': 'SimpleStrategy',
             'replication_factor': 1
         }`, keyspace)).Exec()
	session.Close()
	if err != nil {
		logging.Logger.Errorf("Event ID: CASSANDRA_KEYSPACE_FAILED, Description: failed to create keyspace %s: %v", keyspace, err)
		return nil, err
	}

	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.One
	session, err = cluster.CreateSession()
	if err != nil {
		logging.Logger.Errorf("Event ID: CASSANDRA_CONNECT_FAILED, Description: failed to connect to keyspace %s: %v", keyspace, err)
		return nil, err
	}

	logging.Logger.Infof("Event ID: DB_CONNECTED, Description: Connected to Cassandra keyspace %s", keyspace)
	return &NotificationRepo{session: session}, nil
}

func (nr *NotificationRepo) CloseSession() {
	nr.session.Close()
	logging.Logger.Info("Event ID: DB_DISCONNECTED, Description: Cassandra session closed")
}

func (nr *NotificationRepo) CreateTables(ctx context.Context) error {
	err := nr.session.Query(
		`CREATE TABLE IF NOT EXISTS notifications (
			user_id TEXT,
			created_at TIMESTAMP,
			id UUID,
			type TEXT,
			title TEXT,
			body TEXT,
			url TEXT,
			is_read BOOLEAN,
			PRIMARY KEY ((user_id), created_at, id)
		) WITH CLUSTERING ORDER BY (created_at DESC, id ASC)`).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to create notifications table: %w", err)
	}

	err = nr.session.Query(
		`CREATE TABLE IF NOT EXISTS notification_preferences (
			user_id TEXT,
			type TEXT,
			enabled BOOLEAN,
			PRIMARY KEY ((user_id), type)
		)`).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to create notification_preferences table: %w", err)
	}

	logging.Logger.Info("Event ID: DB_SCHEMA_READY, Description: Notification tables ready")
	return nil
}

// CreateNotification writes the row. Rewriting the same id and timestamp overwrites it, so
// redelivered notifications do not duplicate.
func (nr *NotificationRepo) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = gocql.TimeUUID().String()
	}
	id, err := gocql.ParseUUID(n.ID)
	if err != nil {
		return fmt.Errorf("invalid notification id: %w", err)
	}

	err = nr.session.Query(
		`INSERT INTO notifications (user_id, created_at, id, type, title, body, url, is_read)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.UserID, n.CreatedAt, id, string(n.Type), n.Title, n.Body, n.URL, n.IsRead,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (nr *NotificationRepo) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	iter := nr.session.Query(
		`SELECT id, user_id, type, title, body, url, is_read, created_at
		 FROM notifications WHERE user_id = ?`, userID).WithContext(ctx).Iter()

	notifications := []models.Notification{}
	var (
		id      gocql.UUID
		n       models.Notification
		typeStr string
	)
	for iter.Scan(&id, &n.UserID, &typeStr, &n.Title, &n.Body, &n.URL, &n.IsRead, &n.CreatedAt) {
		if unreadOnly && n.IsRead {
			continue
		}
		n.ID = id.String()
		n.Type = models.NotificationType(typeStr)
		notifications = append(notifications, n)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

// createdAt finds the clustering timestamp of a notification inside the user's partition.
func (nr *NotificationRepo) createdAt(ctx context.Context, userID string, id gocql.UUID) (time.Time, error) {
	var createdAt time.Time
	err := nr.session.Query(
		`SELECT created_at FROM notifications WHERE user_id = ? AND id = ? ALLOW FILTERING`,
		userID, id).WithContext(ctx).Scan(&createdAt)
	if errors.Is(err, gocql.ErrNotFound) {
		return time.Time{}, ErrNotFound
	}
	return createdAt, err
}

func (nr *NotificationRepo) MarkRead(ctx context.Context, userID, notificationID string) error {
	id, err := gocql.ParseUUID(notificationID)
	if err != nil {
		return ErrNotFound
	}
	createdAt, err := nr.createdAt(ctx, userID, id)
	if err != nil {
		return err
	}
	err = nr.session.Query(
		`UPDATE notifications SET is_read = true WHERE user_id = ? AND created_at = ? AND id = ?`,
		userID, createdAt, id).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to mark notification as read: %w", err)
	}
	return nil
}

func (nr *NotificationRepo) DeleteNotification(ctx context.Context, userID, notificationID string) error {
	id, err := gocql.ParseUUID(notificationID)
	if err != nil {
		return ErrNotFound
	}
	createdAt, err := nr.createdAt(ctx, userID, id)
	if err != nil {
		return err
	}
	err = nr.session.Query(
		`DELETE FROM notifications WHERE user_id = ? AND created_at = ? AND id = ?`,
		userID, createdAt, id).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	return nil
}

func (nr *NotificationRepo) GetPreferences(ctx context.Context, userID string) (models.NotificationPreferences, error) {
	iter := nr.session.Query(
		`SELECT type, enabled FROM notification_preferences WHERE user_id = ?`, userID).WithContext(ctx).Iter()

	prefs := models.NotificationPreferences{}
	var (
		t       string
		enabled bool
	)
	for iter.Scan(&t, &enabled) {
		prefs[models.NotificationType(t)] = enabled
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	return prefs, nil
}

func (nr *NotificationRepo) SetPreferences(ctx context.Context, userID string, prefs models.NotificationPreferences) error {
	batch := nr.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	for t, enabled := range prefs {
		batch.Query(`INSERT INTO notification_preferences (user_id, type, enabled) VALUES (?, ?, ?)`,
			userID, string(t), enabled)
	}
	if err := nr.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}
