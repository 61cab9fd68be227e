package modules

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"eviforge/internal/models"
)

// Inventory records evidence metadata as seen on disk alongside the
// digests recorded at ingest.
type Inventory struct{}

func (m *Inventory) Name() string { return "inventory" }
func (m *Inventory) Tool() string { return "" }

func (m *Inventory) Accepts(ev models.Evidence) bool {
	return ev.VaultPath != ""
}

type inventoryReport struct {
	EvidenceID string `json:"evidence_id"`
	Source     string `json:"source"`
	VaultPath  string `json:"vault_path"`
	SizeBytes  int64  `json:"size_bytes"`
	OnDiskSize int64  `json:"on_disk_size"`
	MD5        string `json:"md5"`
	SHA256     string `json:"sha256"`
	Mode       string `json:"mode"`
	ModTime    string `json:"mod_time"`
}

func (m *Inventory) Run(ctx context.Context, inv Invocation) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	info, err := os.Stat(inv.EvidencePath)
	if err != nil {
		return Outcome{}, err
	}

	report := inventoryReport{
		EvidenceID: inv.Evidence.ID,
		Source:     inv.Evidence.Source,
		VaultPath:  inv.Evidence.VaultPath,
		SizeBytes:  inv.Evidence.SizeBytes,
		OnDiskSize: info.Size(),
		MD5:        inv.Evidence.MD5,
		SHA256:     inv.Evidence.SHA256,
		Mode:       info.Mode().String(),
		ModTime:    info.ModTime().UTC().Format("2006-01-02T15:04:05Z07:00"),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return Outcome{}, err
	}
	if err := os.WriteFile(filepath.Join(inv.OutputDir, "inventory.json"), data, 0o644); err != nil {
		return Outcome{}, err
	}

	return Outcome{
		OK:        true,
		Artifacts: []string{"inventory.json"},
		Findings:  map[string]any{"on_disk_size": info.Size()},
	}, nil
}
