package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/NAHIAN-19/project-planner/models"
)

func (s *SQLiteStore) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, plan, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.Plan, utc(u.CreatedAt))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	u := &models.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, plan, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username, &u.Email, &u.Plan, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) UpdateUserPlan(ctx context.Context, id, plan string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET plan = ? WHERE id = ?`, plan, id)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	return expectOne(res)
}
