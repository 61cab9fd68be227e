package store

import (
	"context"

	"eviforge/internal/models"
)

// CaseStore abstracts case and evidence persistence.
type CaseStore interface {
	CreateCase(ctx context.Context, c *models.Case) error
	GetCase(ctx context.Context, id string) (*models.Case, error)
	ListCases(ctx context.Context) ([]models.Case, error)
	CloseCase(ctx context.Context, id string) error
	Stats(ctx context.Context) (models.CaseStats, error)

	CreateEvidence(ctx context.Context, ev *models.Evidence) error
	GetEvidence(ctx context.Context, id string) (*models.Evidence, error)
	ListEvidenceByCase(ctx context.Context, caseID string) ([]models.Evidence, error)
}

// JobStore abstracts job lifecycle persistence. Both execution
// topologies drive jobs exclusively through these calls.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, caseID string, seq int64) (*models.Job, error)
	ListJobsByCase(ctx context.Context, caseID string) ([]models.Job, error)
	TransitionJob(ctx context.Context, caseID string, seq int64, from, to models.JobState, up JobUpdate) error
	SetDispatchPath(ctx context.Context, caseID string, seq int64, path models.DispatchPath) error
}

var (
	_ CaseStore = (*Store)(nil)
	_ JobStore  = (*Store)(nil)
)
