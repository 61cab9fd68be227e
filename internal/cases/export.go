package cases

import (
	"context"
	"fmt"
	"io"
	"time"

	"eviforge/internal/format"
	"eviforge/internal/models"
)

// Bundle is the offline representation of one case: every record a
// reviewer needs to re-verify the custody chain and evidence digests
// without access to the originating deployment.
type Bundle struct {
	ExportedAt time.Time       `yaml:"exported_at"`
	Case       bundleCase      `yaml:"case"`
	Evidence   []bundleItem    `yaml:"evidence"`
	Jobs       []bundleJob     `yaml:"jobs"`
	Custody    []bundleCustody `yaml:"custody"`
}

type bundleCase struct {
	ID        string    `yaml:"id"`
	Name      string    `yaml:"name"`
	Status    string    `yaml:"status"`
	CreatedAt time.Time `yaml:"created_at"`
}

type bundleItem struct {
	ID         string    `yaml:"id"`
	Source     string    `yaml:"source"`
	VaultPath  string    `yaml:"vault_path"`
	SizeBytes  int64     `yaml:"size_bytes"`
	MD5        string    `yaml:"md5"`
	SHA256     string    `yaml:"sha256"`
	IngestedAt time.Time `yaml:"ingested_at"`
}

type bundleJob struct {
	Seq          int64      `yaml:"seq"`
	EvidenceID   string     `yaml:"evidence_id,omitempty"`
	Module       string     `yaml:"module"`
	State        string     `yaml:"state"`
	Reason       string     `yaml:"reason,omitempty"`
	DispatchPath string     `yaml:"dispatch_path,omitempty"`
	Artifacts    []string   `yaml:"artifacts,omitempty"`
	CreatedAt    time.Time  `yaml:"created_at"`
	StartedAt    *time.Time `yaml:"started_at,omitempty"`
	FinishedAt   *time.Time `yaml:"finished_at,omitempty"`
}

type bundleCustody struct {
	Seq           int64  `yaml:"seq"`
	PrevDigest    string `yaml:"prev_digest"`
	Actor         string `yaml:"actor"`
	Action        string `yaml:"action"`
	Timestamp     string `yaml:"ts"`
	PayloadDigest string `yaml:"payload_digest"`
	Digest        string `yaml:"digest"`
}

// ExportBundle assembles the offline bundle for one case.
func (s *Service) ExportBundle(ctx context.Context, caseID string) (*Bundle, error) {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	evidence, err := s.store.ListEvidenceByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	jobs, err := s.store.ListJobsByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	entries, err := s.ledger.Read(caseID)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	bundle := &Bundle{
		ExportedAt: time.Now().UTC(),
		Case: bundleCase{
			ID:        c.ID,
			Name:      c.Name,
			Status:    string(c.Status),
			CreatedAt: c.CreatedAt,
		},
	}
	for _, ev := range evidence {
		bundle.Evidence = append(bundle.Evidence, bundleItem{
			ID:         ev.ID,
			Source:     ev.Source,
			VaultPath:  ev.VaultPath,
			SizeBytes:  ev.SizeBytes,
			MD5:        ev.MD5,
			SHA256:     ev.SHA256,
			IngestedAt: ev.IngestedAt,
		})
	}
	for _, job := range jobs {
		bundle.Jobs = append(bundle.Jobs, bundleJob{
			Seq:          job.Seq,
			EvidenceID:   job.EvidenceID,
			Module:       job.Module,
			State:        string(job.State),
			Reason:       job.Reason,
			DispatchPath: string(job.DispatchPath),
			Artifacts:    job.Artifacts,
			CreatedAt:    job.CreatedAt,
			StartedAt:    job.StartedAt,
			FinishedAt:   job.FinishedAt,
		})
	}
	for _, entry := range entries {
		bundle.Custody = append(bundle.Custody, bundleCustody{
			Seq:           entry.Seq,
			PrevDigest:    entry.PrevDigest,
			Actor:         entry.Actor,
			Action:        entry.Action,
			Timestamp:     entry.Timestamp,
			PayloadDigest: entry.PayloadDigest,
			Digest:        entry.Digest,
		})
	}
	return bundle, nil
}

// WriteYAML renders the bundle as a YAML document.
func (b *Bundle) WriteYAML(w io.Writer) error {
	return format.YAMLFormatter{}.Write(w, b)
}

// CustodyEntries converts the bundle's custody section back to ledger
// entries so an exported chain can be re-verified offline.
func (b *Bundle) CustodyEntries(caseID string) []models.CustodyEntry {
	out := make([]models.CustodyEntry, 0, len(b.Custody))
	for _, entry := range b.Custody {
		out = append(out, models.CustodyEntry{
			CaseID:        caseID,
			Seq:           entry.Seq,
			PrevDigest:    entry.PrevDigest,
			Actor:         entry.Actor,
			Action:        entry.Action,
			Timestamp:     entry.Timestamp,
			PayloadDigest: entry.PayloadDigest,
			Digest:        entry.Digest,
		})
	}
	return out
}
