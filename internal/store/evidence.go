package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"eviforge/internal/models"
)

// CreateEvidence inserts one evidence record. The (case_id, vault_path)
// pair is unique; evidence rows are never updated or deleted.
func (s *Store) CreateEvidence(ctx context.Context, ev *models.Evidence) error {
	if ev == nil {
		return fmt.Errorf("evidence is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evidence (id, case_id, source, vault_path, size_bytes, md5, sha256, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.CaseID, ev.Source, ev.VaultPath, ev.SizeBytes, ev.MD5, ev.SHA256, formatTime(ev.IngestedAt))
	return err
}

// GetEvidence returns one evidence record by id.
func (s *Store) GetEvidence(ctx context.Context, id string) (*models.Evidence, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, case_id, source, vault_path, size_bytes, md5, sha256, ingested_at
		FROM evidence WHERE id = ?
	`, id)
	return scanEvidence(row)
}

// ListEvidenceByCase returns a case's evidence records, newest first.
func (s *Store) ListEvidenceByCase(ctx context.Context, caseID string) ([]models.Evidence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, case_id, source, vault_path, size_bytes, md5, sha256, ingested_at
		FROM evidence WHERE case_id = ? ORDER BY ingested_at DESC, id
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.Evidence{}
	for rows.Next() {
		ev, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *ev)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvidence(scanner rowScanner) (*models.Evidence, error) {
	var ev models.Evidence
	var ingestedAt string
	err := scanner.Scan(&ev.ID, &ev.CaseID, &ev.Source, &ev.VaultPath, &ev.SizeBytes, &ev.MD5, &ev.SHA256, &ingestedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t, err := parseTime(ingestedAt)
	if err != nil {
		return nil, err
	}
	ev.IngestedAt = t
	return &ev, nil
}
