// Package cases orchestrates case lifecycle operations across the
// store, the vault, and the custody ledger. The HTTP server and the
// CLI both go through this service so every pathway produces the same
// custody trail.
package cases

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"eviforge/internal/custody"
	"eviforge/internal/models"
	"eviforge/internal/store"
	"eviforge/internal/vault"
)

var (
	// ErrCaseClosed rejects mutations against a closed case.
	ErrCaseClosed = errors.New("case is closed")
	// ErrNameRequired rejects case creation without a name.
	ErrNameRequired = errors.New("case name is required")
)

// Service ties together the three stores of record for a case: the
// SQLite rows, the vault tree, and the custody ledger.
type Service struct {
	store  *store.Store
	vault  *vault.Vault
	ledger *custody.Ledger
}

// NewService creates a case service.
func NewService(st *store.Store, v *vault.Vault, ledger *custody.Ledger) *Service {
	return &Service{store: st, vault: v, ledger: ledger}
}

type openPayload struct {
	Name string `json:"name"`
}

type closePayload struct {
	Name string `json:"name"`
}

type ingestPayload struct {
	EvidenceID string `json:"evidence_id"`
	VaultPath  string `json:"vault_path"`
	Source     string `json:"source"`
	SizeBytes  int64  `json:"size_bytes"`
	MD5        string `json:"md5"`
	SHA256     string `json:"sha256"`
}

// CreateCase opens a new case: vault subtree, store row, and the
// case.opened genesis entry of its custody ledger.
func (s *Service) CreateCase(ctx context.Context, actor, name string) (*models.Case, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}

	c := &models.Case{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    models.CaseOpen,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.vault.EnsureCase(c.ID); err != nil {
		return nil, fmt.Errorf("prepare vault: %w", err)
	}
	if err := s.store.CreateCase(ctx, c); err != nil {
		return nil, err
	}
	if _, err := s.ledger.Append(ctx, c.ID, actor, models.ActionCaseOpened, openPayload{Name: c.Name}); err != nil {
		return nil, fmt.Errorf("custody append: %w", err)
	}
	return c, nil
}

// CloseCase transitions a case open→closed and records the closure.
func (s *Service) CloseCase(ctx context.Context, actor, id string) (*models.Case, error) {
	c, err := s.store.GetCase(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != models.CaseOpen {
		return nil, fmt.Errorf("%w: %s", ErrCaseClosed, id)
	}
	if err := s.store.CloseCase(ctx, id); err != nil {
		// The row existed a moment ago; a concurrent close got there
		// first.
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCaseClosed, id)
		}
		return nil, err
	}
	c.Status = models.CaseClosed
	if _, err := s.ledger.Append(ctx, id, actor, models.ActionCaseClosed, closePayload{Name: c.Name}); err != nil {
		return nil, fmt.Errorf("custody append: %w", err)
	}
	return c, nil
}

// Ingest copies evidence bytes into the vault, records the evidence
// row, and appends evidence.ingested to the ledger.
func (s *Service) Ingest(ctx context.Context, actor, caseID, name, source string, src io.Reader) (*models.Evidence, error) {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.CaseOpen {
		return nil, fmt.Errorf("%w: %s", ErrCaseClosed, caseID)
	}

	ev, err := s.vault.Ingest(ctx, caseID, name, source, src)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateEvidence(ctx, ev); err != nil {
		return nil, err
	}
	if _, err := s.ledger.Append(ctx, caseID, actor, models.ActionEvidenceIngested, ingestPayload{
		EvidenceID: ev.ID,
		VaultPath:  ev.VaultPath,
		Source:     ev.Source,
		SizeBytes:  ev.SizeBytes,
		MD5:        ev.MD5,
		SHA256:     ev.SHA256,
	}); err != nil {
		return nil, fmt.Errorf("custody append: %w", err)
	}
	return ev, nil
}

// IngestFile ingests a file from the local filesystem, recording its
// absolute path as the evidence source.
func (s *Service) IngestFile(ctx context.Context, actor, caseID, path string) (*models.Evidence, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return s.Ingest(ctx, actor, caseID, filepath.Base(abs), abs, f)
}

// EvidenceCheck is one evidence item's re-verification outcome.
type EvidenceCheck struct {
	EvidenceID string `json:"evidence_id"`
	VaultPath  string `json:"vault_path"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
}

// Verification is the combined integrity report for a case.
type Verification struct {
	Ledger   models.VerificationResult `json:"ledger"`
	Evidence []EvidenceCheck           `json:"evidence"`
	OK       bool                      `json:"ok"`
}

// Verify recomputes the custody chain and every evidence digest. A
// valid verification also clears a halted ledger for the case.
func (s *Service) Verify(ctx context.Context, caseID string) (*Verification, error) {
	if _, err := s.store.GetCase(ctx, caseID); err != nil {
		return nil, err
	}

	ledgerResult, err := s.ledger.Verify(caseID)
	if err != nil {
		return nil, err
	}

	items, err := s.store.ListEvidenceByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	checks := make([]EvidenceCheck, 0, len(items))
	allOK := ledgerResult.Valid
	for _, ev := range items {
		check := EvidenceCheck{EvidenceID: ev.ID, VaultPath: ev.VaultPath, OK: true}
		if err := s.vault.VerifyEvidence(ctx, ev); err != nil {
			check.OK = false
			check.Error = err.Error()
			allOK = false
		}
		checks = append(checks, check)
	}

	return &Verification{Ledger: ledgerResult, Evidence: checks, OK: allOK}, nil
}
