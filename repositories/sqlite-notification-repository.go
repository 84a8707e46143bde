package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/NAHIAN-19/project-planner/models"
)

// SQLiteNotificationRepo keeps notifications next to the relational data when no Cassandra
// cluster is configured.
type SQLiteNotificationRepo struct {
	db *sql.DB
}

func NewSQLiteNotificationRepo(store *SQLiteStore) *SQLiteNotificationRepo {
	return &SQLiteNotificationRepo{db: store.db}
}

func (nr *SQLiteNotificationRepo) CreateNotification(ctx context.Context, n *models.Notification) error {
	_, err := nr.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, body, url, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, string(n.Type), n.Title, n.Body, n.URL, n.IsRead, utc(n.CreatedAt))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (nr *SQLiteNotificationRepo) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	query := `SELECT id, user_id, type, title, body, url, is_read, created_at FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := nr.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.URL, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (nr *SQLiteNotificationRepo) MarkRead(ctx context.Context, userID, id string) error {
	res, err := nr.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification as read: %w", err)
	}
	return expectOne(res)
}

func (nr *SQLiteNotificationRepo) DeleteNotification(ctx context.Context, userID, id string) error {
	res, err := nr.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	return expectOne(res)
}

func (nr *SQLiteNotificationRepo) GetPreferences(ctx context.Context, userID string) (models.NotificationPreferences, error) {
	rows, err := nr.db.QueryContext(ctx, `SELECT type, enabled FROM notification_preferences WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	defer rows.Close()

	prefs := models.NotificationPreferences{}
	for rows.Next() {
		var t string
		var enabled bool
		if err := rows.Scan(&t, &enabled); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		prefs[models.NotificationType(t)] = enabled
	}
	return prefs, rows.Err()
}

func (nr *SQLiteNotificationRepo) SetPreferences(ctx context.Context, userID string, prefs models.NotificationPreferences) error {
	tx, err := nr.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for t, enabled := range prefs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO notification_preferences (user_id, type, enabled) VALUES (?, ?, ?)
			ON CONFLICT (user_id, type) DO UPDATE SET enabled = excluded.enabled`,
			userID, string(t), enabled)
		if err != nil {
			return fmt.Errorf("failed to save preference: %w", err)
		}
	}
	return tx.Commit()
}
