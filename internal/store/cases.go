package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"eviforge/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// CreateCase inserts a new case row.
func (s *Store) CreateCase(ctx context.Context, c *models.Case) error {
	if c == nil {
		return fmt.Errorf("case is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cases (id, name, status, created_at) VALUES (?, ?, ?, ?)
	`, c.ID, c.Name, string(c.Status), formatTime(c.CreatedAt))
	return err
}

// GetCase returns one case by id.
func (s *Store) GetCase(ctx context.Context, id string) (*models.Case, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, status, created_at FROM cases WHERE id = ?
	`, id)

	var c models.Case
	var status, createdAt string
	if err := row.Scan(&c.ID, &c.Name, &status, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.Status = models.CaseStatus(status)
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = t
	return &c, nil
}

// ListCases returns all cases, newest first.
func (s *Store) ListCases(ctx context.Context) ([]models.Case, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, status, created_at FROM cases ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cases := []models.Case{}
	for rows.Next() {
		var c models.Case
		var status, createdAt string
		if err := rows.Scan(&c.ID, &c.Name, &status, &createdAt); err != nil {
			return nil, err
		}
		c.Status = models.CaseStatus(status)
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		c.CreatedAt = t
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// CloseCase transitions a case from open to closed. Closing an already
// closed or missing case returns ErrNotFound.
func (s *Store) CloseCase(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cases SET status = ? WHERE id = ? AND status = ?
	`, string(models.CaseClosed), id, string(models.CaseOpen))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats returns deployment-wide counters for the overview endpoint.
func (s *Store) Stats(ctx context.Context) (models.CaseStats, error) {
	var stats models.CaseStats
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cases").Scan(&stats.Cases); err != nil {
		return stats, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM evidence").Scan(&stats.Evidence); err != nil {
		return stats, err
	}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM jobs WHERE state IN (?, ?)
	`, string(models.JobPending), string(models.JobRunning)).Scan(&stats.JobsRunning)
	return stats, err
}
