package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/NAHIAN-19/project-planner/models"
)

const requestColumns = `id, task_id, project_id, requested_by, request_time, reason, status, approved_by, decided_at`

func scanRequest(row interface{ Scan(...any) error }) (*models.StatusChangeRequest, error) {
	r := &models.StatusChangeRequest{}
	var approvedBy sql.NullString
	err := row.Scan(&r.ID, &r.TaskID, &r.ProjectID, &r.RequestedBy, &r.RequestTime, &r.Reason, &r.Status,
		&approvedBy, &r.DecidedAt)
	if err != nil {
		return nil, err
	}
	r.ApprovedBy = stringPtr(approvedBy)
	return r, nil
}

// CreateRequest stores a new pending request. A second pending request for the same task
// violates idx_requests_one_pending and yields ErrDuplicate.
func (s *SQLiteStore) CreateRequest(ctx context.Context, r *models.StatusChangeRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO status_change_requests (id, task_id, project_id, requested_by, request_time, reason, status, approved_by, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, NULL)`,
		r.ID, r.TaskID, r.ProjectID, r.RequestedBy, utc(r.RequestTime), r.Reason, string(r.Status))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if isForeignKeyViolation(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to create status change request: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRequest(ctx context.Context, id string) (*models.StatusChangeRequest, error) {
	return getRequest(ctx, s.db, id)
}

func getRequest(ctx context.Context, exec executor, id string) (*models.StatusChangeRequest, error) {
	r, err := scanRequest(exec.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM status_change_requests WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status change request: %w", err)
	}
	return r, nil
}

// ListRequests returns one page of matching requests, newest first, and the total match count.
func (s *SQLiteStore) ListRequests(ctx context.Context, f models.RequestFilter) ([]models.StatusChangeRequest, int, error) {
	var where []string
	var args []any
	if f.TaskID != "" {
		where = append(where, "task_id = ?")
		args = append(args, f.TaskID)
	}
	if f.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.RequestedBy != "" {
		where = append(where, "requested_by = ?")
		args = append(args, f.RequestedBy)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM status_change_requests`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count status change requests: %w", err)
	}

	query := `SELECT ` + requestColumns + ` FROM status_change_requests` + clause +
		` ORDER BY request_time DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list status change requests: %w", err)
	}
	defer rows.Close()

	requests := []models.StatusChangeRequest{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan status change request: %w", err)
		}
		requests = append(requests, *r)
	}
	return requests, total, rows.Err()
}

// UpdateRequestReason edits the free-text reason of a request that is still pending.
func (s *SQLiteStore) UpdateRequestReason(ctx context.Context, id, reason string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE status_change_requests SET reason = ? WHERE id = ? AND status = ?`,
			reason, id, string(models.RequestPending))
		if err != nil {
			return fmt.Errorf("failed to update reason: %w", err)
		}
		return pendingOrMissing(ctx, tx, res, id)
	})
}

// DecideRequest moves a pending request to its outcome. On accept the task is completed in the
// same transaction. The conditional update makes the first decision win; later ones get
// ErrNotPending.
func (s *SQLiteStore) DecideRequest(ctx context.Context, id string, d models.Decision) (*models.StatusChangeRequest, error) {
	var decided *models.StatusChangeRequest
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var approvedBy any
		if d.Action == models.ActionAccept {
			approvedBy = d.Actor
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE status_change_requests SET status = ?, approved_by = ?, decided_at = ?
			WHERE id = ? AND status = ?`,
			string(d.Outcome()), approvedBy, utc(d.At), id, string(models.RequestPending))
		if err != nil {
			return fmt.Errorf("failed to decide status change request: %w", err)
		}
		if err := pendingOrMissing(ctx, tx, res, id); err != nil {
			return err
		}

		if d.Action == models.ActionAccept {
			res, err := tx.ExecContext(ctx, `
				UPDATE tasks SET status = ?, approved_by = ?, updated_at = ?
				WHERE id = (SELECT task_id FROM status_change_requests WHERE id = ?)`,
				string(models.StatusCompleted), d.Actor, utc(d.At), id)
			if err != nil {
				return fmt.Errorf("failed to complete task: %w", err)
			}
			if err := expectOne(res); err != nil {
				return err
			}
		}

		decided, err = getRequest(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return decided, nil
}

// pendingOrMissing turns a zero-row conditional update into ErrNotFound or ErrNotPending.
func pendingOrMissing(ctx context.Context, exec executor, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	err = exec.QueryRowContext(ctx, `SELECT COUNT(*) FROM status_change_requests WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to look up status change request: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrNotPending
}
