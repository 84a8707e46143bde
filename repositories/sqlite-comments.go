package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/NAHIAN-19/project-planner/models"
)

func (s *SQLiteStore) CreateComment(ctx context.Context, c *models.Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, task_id, author_id, parent_id, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TaskID, c.AuthorID, nullString(c.ParentID), c.Content, utc(c.CreatedAt), utc(c.UpdatedAt))
	if isForeignKeyViolation(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	c := &models.Comment{}
	var parent sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, task_id, author_id, parent_id, content, created_at, updated_at FROM comments WHERE id = ?`, id,
	).Scan(&c.ID, &c.TaskID, &c.AuthorID, &parent, &c.Content, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get comment: %w", err)
	}
	c.ParentID = stringPtr(parent)
	return c, nil
}

// ListComments returns a task's comments oldest first, so replies follow their parents.
func (s *SQLiteStore) ListComments(ctx context.Context, taskID string) ([]models.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, author_id, parent_id, content, created_at, updated_at FROM comments
		WHERE task_id = ? ORDER BY created_at ASC, id ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		var c models.Comment
		var parent sql.NullString
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &parent, &c.Content, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		c.ParentID = stringPtr(parent)
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *SQLiteStore) UpdateComment(ctx context.Context, id, content string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE comments SET content = ?, updated_at = ? WHERE id = ?`, content, utc(at), id)
	if err != nil {
		return fmt.Errorf("failed to update comment: %w", err)
	}
	return expectOne(res)
}

func (s *SQLiteStore) DeleteComment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return expectOne(res)
}
