package modules

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"eviforge/internal/models"
)

// Verify recomputes the vault copy's digests and compares them against
// the values recorded at ingest. A mismatch is reported as a module
// failure with the integrity_mismatch reason.
type Verify struct{}

func (m *Verify) Name() string { return "verify" }
func (m *Verify) Tool() string { return "" }

func (m *Verify) Accepts(ev models.Evidence) bool {
	return ev.VaultPath != ""
}

type verifyReport struct {
	EvidenceID  string `json:"evidence_id"`
	RecordedMD5 string `json:"recorded_md5"`
	RecordedSHA string `json:"recorded_sha256"`
	ComputedMD5 string `json:"computed_md5"`
	ComputedSHA string `json:"computed_sha256"`
	Match       bool   `json:"match"`
}

func (m *Verify) Run(ctx context.Context, inv Invocation) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	f, err := os.Open(inv.EvidencePath)
	if err != nil {
		return Outcome{}, err
	}
	defer f.Close()

	md5Sum, shaSum := md5.New(), sha256.New()
	if _, err := io.Copy(io.MultiWriter(md5Sum, shaSum), f); err != nil {
		return Outcome{}, err
	}

	report := verifyReport{
		EvidenceID:  inv.Evidence.ID,
		RecordedMD5: inv.Evidence.MD5,
		RecordedSHA: inv.Evidence.SHA256,
		ComputedMD5: hex.EncodeToString(md5Sum.Sum(nil)),
		ComputedSHA: hex.EncodeToString(shaSum.Sum(nil)),
	}
	report.Match = report.ComputedMD5 == report.RecordedMD5 && report.ComputedSHA == report.RecordedSHA

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return Outcome{}, err
	}
	if err := os.WriteFile(filepath.Join(inv.OutputDir, "verify.json"), data, 0o644); err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		OK:        report.Match,
		Artifacts: []string{"verify.json"},
		Findings:  map[string]any{"match": report.Match},
	}
	if !report.Match {
		out.Reason = models.ReasonIntegrityMismatch
	}
	return out, nil
}
