package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NAHIAN-19/project-planner/models"
)

const taskColumns = `t.id, t.project_id, t.name, t.description, t.status, t.need_approval, t.approved_by,
	t.created_by, t.due_date, t.created_at, t.updated_at`

func scanTask(row interface{ Scan(...any) error }) (*models.Task, error) {
	t := &models.Task{}
	var approvedBy sql.NullString
	err := row.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Description, &t.Status, &t.NeedApproval, &approvedBy,
		&t.CreatedBy, &t.DueDate, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.ApprovedBy = stringPtr(approvedBy)
	return t, nil
}

// CreateTask inserts the task with its initial assignments and refreshes the project's task count.
func (s *SQLiteStore) CreateTask(ctx context.Context, t *models.Task, assignments []models.TaskAssignment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (id, project_id, name, description, status, need_approval, approved_by, created_by, due_date, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.ProjectID, t.Name, t.Description, string(t.Status), t.NeedApproval, nullString(t.ApprovedBy),
			t.CreatedBy, nullTime(t.DueDate), utc(t.CreatedAt), utc(t.UpdatedAt))
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to create task: %w", err)
		}
		for i := range assignments {
			if err := insertAssignment(ctx, tx, &assignments[i]); err != nil {
				return err
			}
		}
		return recomputeProjectCounts(ctx, tx, t.ProjectID)
	})
}

func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	return getTask(ctx, s.db, id)
}

func getTask(ctx context.Context, exec executor, id string) (*models.Task, error) {
	t, err := scanTask(exec.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) ListTasks(ctx context.Context, f models.TaskFilter) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks t`
	var where []string
	var args []any

	if f.AssigneeID != "" {
		query += ` JOIN task_assignments a ON a.task_id = t.id`
		where = append(where, "a.user_id = ?")
		args = append(args, f.AssigneeID)
	}
	if f.ProjectIDs != nil {
		if len(f.ProjectIDs) == 0 {
			return []models.Task{}, nil
		}
		where = append(where, "t.project_id IN ("+placeholders(len(f.ProjectIDs))+")")
		for _, id := range f.ProjectIDs {
			args = append(args, id)
		}
	}
	if f.Status != "" {
		where = append(where, "t.status = ?")
		args = append(args, string(f.Status))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY t.created_at DESC, t.id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// UpdateTask writes the fields set in u. The status column is only touched when u.Status is
// set, and then only while it still holds u.ExpectStatus and no approval has completed the task.
func (s *SQLiteStore) UpdateTask(ctx context.Context, id string, u models.TaskUpdate) error {
	set := []string{"updated_at = ?"}
	args := []any{utc(u.UpdatedAt)}
	if u.Name != nil {
		set = append(set, "name = ?")
		args = append(args, *u.Name)
	}
	if u.Description != nil {
		set = append(set, "description = ?")
		args = append(args, *u.Description)
	}
	if u.NeedApproval != nil {
		set = append(set, "need_approval = ?")
		args = append(args, *u.NeedApproval)
	}
	if u.DueDate != nil {
		set = append(set, "due_date = ?")
		args = append(args, utc(*u.DueDate))
	}

	where := "id = ?"
	whereArgs := []any{id}
	if u.Status != nil {
		set = append(set, "status = ?")
		args = append(args, string(*u.Status))
		where += ` AND status = ? AND NOT EXISTS (
			SELECT 1 FROM status_change_requests r WHERE r.task_id = tasks.id AND r.status = ?)`
		whereArgs = append(whereArgs, string(u.ExpectStatus), string(models.RequestApproved))
	}
	args = append(args, whereArgs...)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE tasks SET `+strings.Join(set, ", ")+` WHERE `+where, args...)
		if err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		if _, err := getTask(ctx, tx, id); err != nil {
			return err
		}
		var approved int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM status_change_requests WHERE task_id = ? AND status = ?`,
			id, string(models.RequestApproved)).Scan(&approved)
		if err != nil {
			return fmt.Errorf("failed to check approvals: %w", err)
		}
		if approved > 0 {
			return ErrApproved
		}
		return ErrStale
	})
}

func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var projectID string
		err := tx.QueryRowContext(ctx, `SELECT project_id FROM tasks WHERE id = ?`, id).Scan(&projectID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load task: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}
		return recomputeProjectCounts(ctx, tx, projectID)
	})
}

// SetTaskStatus changes only the status of a task that does not require approval.
func (s *SQLiteStore) SetTaskStatus(ctx context.Context, id string, status models.TaskStatus, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND need_approval = 0`,
		string(status), utc(at), id)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return expectOne(res)
}

// MarkOverdue flips unfinished tasks whose due date has passed to overdue.
func (s *SQLiteStore) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, updated_at = ?
		WHERE due_date IS NOT NULL AND due_date < ? AND status IN (?, ?)`,
		string(models.StatusOverdue), utc(now), utc(now), string(models.StatusNotStarted), string(models.StatusInProgress))
	if err != nil {
		return 0, fmt.Errorf("failed to mark overdue tasks: %w", err)
	}
	return res.RowsAffected()
}

func insertAssignment(ctx context.Context, exec executor, a *models.TaskAssignment) error {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO task_assignments (task_id, user_id, assigned_by, assigned_at) VALUES (?, ?, ?, ?)`,
		a.TaskID, a.UserID, a.AssignedBy, utc(a.AssignedAt))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if isForeignKeyViolation(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to assign user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddAssignment(ctx context.Context, a *models.TaskAssignment) error {
	return insertAssignment(ctx, s.db, a)
}

func (s *SQLiteStore) RemoveAssignment(ctx context.Context, taskID, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM task_assignments WHERE task_id = ? AND user_id = ?`, taskID, userID)
	if err != nil {
		return fmt.Errorf("failed to unassign user: %w", err)
	}
	return expectOne(res)
}

func (s *SQLiteStore) ListAssignees(ctx context.Context, taskID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM task_assignments WHERE task_id = ? ORDER BY assigned_at ASC, user_id ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignees: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan assignee: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) IsAssignee(ctx context.Context, taskID, userID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM task_assignments WHERE task_id = ? AND user_id = ?`, taskID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check assignment: %w", err)
	}
	return n > 0, nil
}
