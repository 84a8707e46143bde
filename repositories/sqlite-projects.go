package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/NAHIAN-19/project-planner/models"
)

const projectColumns = `p.id, p.name, p.description, p.status, p.owner_id, p.start_date, p.end_date,
	p.member_count, p.task_count, p.created_at`

func scanProject(row interface{ Scan(...any) error }) (*models.Project, error) {
	p := &models.Project{}
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.OwnerID, &p.StartDate, &p.EndDate,
		&p.MemberCount, &p.TaskCount, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CreateProject inserts the project and its owner membership in one transaction. A maxOwned
// of models.Unlimited disables the owned-project limit.
func (s *SQLiteStore) CreateProject(ctx context.Context, p *models.Project, owner *models.ProjectMembership, maxOwned int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if maxOwned != models.Unlimited {
			var owned int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE owner_id = ?`, p.OwnerID).Scan(&owned); err != nil {
				return fmt.Errorf("failed to count owned projects: %w", err)
			}
			if owned >= maxOwned {
				return ErrLimitReached
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO projects (id, name, description, status, owner_id, start_date, end_date, member_count, task_count, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, ?)`,
			p.ID, p.Name, p.Description, string(p.Status), p.OwnerID, nullTime(p.StartDate), nullTime(p.EndDate), utc(p.CreatedAt))
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to create project: %w", err)
		}
		if err := insertMembership(ctx, tx, owner); err != nil {
			return err
		}
		if err := recomputeProjectCounts(ctx, tx, p.ID); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `SELECT member_count, task_count FROM projects WHERE id = ?`, p.ID).
			Scan(&p.MemberCount, &p.TaskCount)
	})
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects p WHERE p.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// ListProjectsForUser returns the projects userID belongs to, newest first.
func (s *SQLiteStore) ListProjectsForUser(ctx context.Context, userID string) ([]models.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects p
		JOIN project_memberships m ON m.project_id = p.id
		WHERE m.user_id = ?
		ORDER BY p.created_at DESC, p.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

func (s *SQLiteStore) UpdateProject(ctx context.Context, p *models.Project) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects SET name = ?, description = ?, status = ?, start_date = ?, end_date = ?
		WHERE id = ?`,
		p.Name, p.Description, string(p.Status), nullTime(p.StartDate), nullTime(p.EndDate), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	return expectOne(res)
}

// DeleteProject removes the project; tasks, assignments, requests, comments and memberships cascade.
func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return expectOne(res)
}

func insertMembership(ctx context.Context, exec executor, m *models.ProjectMembership) error {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO project_memberships (id, project_id, user_id, role, joined_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.ProjectID, m.UserID, string(m.Role), utc(m.JoinedAt))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if isForeignKeyViolation(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to add membership: %w", err)
	}
	return nil
}

// AddMembership adds m while the project has fewer than maxMembers members, then refreshes
// the project's member count in the same transaction.
func (s *SQLiteStore) AddMembership(ctx context.Context, m *models.ProjectMembership, maxMembers int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if maxMembers != models.Unlimited {
			var current int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM project_memberships WHERE project_id = ?`, m.ProjectID).Scan(&current); err != nil {
				return fmt.Errorf("failed to count members: %w", err)
			}
			if current >= maxMembers {
				return ErrLimitReached
			}
		}
		if err := insertMembership(ctx, tx, m); err != nil {
			return err
		}
		return recomputeProjectCounts(ctx, tx, m.ProjectID)
	})
}

// RemoveMembership drops the membership along with the user's assignments on the project's tasks.
func (s *SQLiteStore) RemoveMembership(ctx context.Context, projectID, userID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM project_memberships WHERE project_id = ? AND user_id = ?`, projectID, userID)
		if err != nil {
			return fmt.Errorf("failed to remove membership: %w", err)
		}
		if err := expectOne(res); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			DELETE FROM task_assignments
			WHERE user_id = ? AND task_id IN (SELECT id FROM tasks WHERE project_id = ?)`, userID, projectID)
		if err != nil {
			return fmt.Errorf("failed to remove assignments: %w", err)
		}
		return recomputeProjectCounts(ctx, tx, projectID)
	})
}

func (s *SQLiteStore) GetMembership(ctx context.Context, projectID, userID string) (*models.ProjectMembership, error) {
	m := &models.ProjectMembership{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, user_id, role, joined_at FROM project_memberships
		WHERE project_id = ? AND user_id = ?`, projectID, userID,
	).Scan(&m.ID, &m.ProjectID, &m.UserID, &m.Role, &m.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) ListMemberships(ctx context.Context, projectID string) ([]models.ProjectMembership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, user_id, role, joined_at FROM project_memberships
		WHERE project_id = ? ORDER BY joined_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	members := []models.ProjectMembership{}
	for rows.Next() {
		var m models.ProjectMembership
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
